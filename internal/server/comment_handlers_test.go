package server

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type commentJSON struct {
	ID       string `json:"id"`
	PostID   string `json:"postId"`
	AuthorID string `json:"authorId"`
	ParentID string `json:"parentId"`
	Status   string `json:"status"`
	Content  struct {
		Text string `json:"text"`
	} `json:"content"`
	Stats struct {
		Likes   int64 `json:"likesCount"`
		Replies int64 `json:"repliesCount"`
	} `json:"stats"`
}

type commentPage struct {
	Items []commentJSON `json:"items"`
	Total int64         `json:"total"`
}

func (e *testEnv) createComment(t *testing.T, userID, postID string, body map[string]any) commentJSON {
	t.Helper()
	resp, raw := e.do(t, http.MethodPost, "/api/posts/"+postID+"/comments", userID, body)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	return decode[commentJSON](t, raw)
}

func TestComments_Thread(t *testing.T) {
	env := newTestEnv(t)
	post := env.createPost(t, "user_alice", map[string]any{"text": "discuss"})
	base := "/api/posts/" + post.ID + "/comments"

	top := env.createComment(t, "user_bob", post.ID, map[string]any{"text": "first!"})
	assert.Equal(t, post.ID, top.PostID)
	assert.Equal(t, "user_bob", top.AuthorID)

	reply := env.createComment(t, "user_alice", post.ID, map[string]any{"text": "welcome", "parentId": top.ID})
	assert.Equal(t, top.ID, reply.ParentID)

	resp, raw := env.do(t, http.MethodGet, base, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	page := decode[commentPage](t, raw)
	require.Len(t, page.Items, 1)
	assert.Equal(t, top.ID, page.Items[0].ID)
	assert.Equal(t, int64(1), page.Items[0].Stats.Replies)

	resp, raw = env.do(t, http.MethodGet, base+"?parent="+top.ID, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	replies := decode[commentPage](t, raw)
	require.Len(t, replies.Items, 1)
	assert.Equal(t, reply.ID, replies.Items[0].ID)

	resp, raw = env.do(t, http.MethodGet, "/api/posts/"+post.ID, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	detail := decode[struct {
		Post postJSON `json:"post"`
	}](t, raw)
	assert.Equal(t, int64(2), detail.Post.Stats.Comments)
}

func TestCreateComment_Validation(t *testing.T) {
	env := newTestEnv(t)
	post := env.createPost(t, "user_alice", map[string]any{"text": "discuss"})

	tests := []struct {
		name   string
		userID string
		postID string
		body   map[string]any
		want   int
	}{
		{name: "Empty text", userID: "user_bob", postID: post.ID, body: map[string]any{"text": "   "}, want: http.StatusBadRequest},
		{name: "Unknown post", userID: "user_bob", postID: "nope", body: map[string]any{"text": "hi"}, want: http.StatusNotFound},
		{name: "Anonymous", userID: "", postID: post.ID, body: map[string]any{"text": "hi"}, want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, raw := env.do(t, http.MethodPost, "/api/posts/"+tt.postID+"/comments", tt.userID, tt.body)
			assert.Equal(t, tt.want, resp.StatusCode, string(raw))
		})
	}
}

func TestUpdateAndDeleteComment(t *testing.T) {
	env := newTestEnv(t)
	post := env.createPost(t, "user_alice", map[string]any{"text": "discuss"})
	comment := env.createComment(t, "user_bob", post.ID, map[string]any{"text": "tpyo"})
	path := "/api/posts/" + post.ID + "/comments/" + comment.ID

	resp, _ := env.do(t, http.MethodPut, path, "user_alice", map[string]any{"text": "not yours"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, raw := env.do(t, http.MethodPut, path, "user_bob", map[string]any{"text": "typo"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	assert.Equal(t, "typo", decode[commentJSON](t, raw).Content.Text)

	resp, _ = env.do(t, http.MethodDelete, path, "user_alice", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = env.do(t, http.MethodDelete, path, "user_bob", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, raw = env.do(t, http.MethodGet, "/api/posts/"+post.ID, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(0), decode[struct {
		Post postJSON `json:"post"`
	}](t, raw).Post.Stats.Comments)
}

func TestLikeComment(t *testing.T) {
	env := newTestEnv(t)
	post := env.createPost(t, "user_alice", map[string]any{"text": "discuss"})
	comment := env.createComment(t, "user_bob", post.ID, map[string]any{"text": "nice"})
	path := "/api/posts/" + post.ID + "/comments/" + comment.ID + "/like"

	resp, raw := env.do(t, http.MethodPost, path, "user_alice", map[string]any{"reaction": "haha"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	res := decode[struct {
		Action     string `json:"action"`
		LikesCount int64  `json:"likesCount"`
	}](t, raw)
	assert.Equal(t, "added", res.Action)
	assert.Equal(t, int64(1), res.LikesCount)

	resp, _ = env.do(t, http.MethodPost, "/api/posts/"+post.ID+"/comments/missing/like", "user_alice", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
