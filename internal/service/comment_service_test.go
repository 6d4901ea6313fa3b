package service

import (
	"context"
	"strings"
	"testing"

	"facefeed/internal/domain"
	"facefeed/internal/models"
	"facefeed/internal/notifications"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommentService_CreateComment_Validation(t *testing.T) {
	t.Parallel()

	svc := NewCommentService(Deps{})
	ctx := context.Background()

	_, err := svc.CreateComment(ctx, CreateCommentInput{AuthorID: "u1", PostID: "p1", Text: "  "})
	assertValidationError(t, err)

	_, err = svc.CreateComment(ctx, CreateCommentInput{AuthorID: "u1", PostID: "p1", Text: strings.Repeat("x", 2001)})
	assertValidationError(t, err)

	_, err = svc.CreateComment(ctx, CreateCommentInput{PostID: "p1", Text: "hi"})
	assertCode(t, err, models.CodeUnauthorized)
}

func TestCommentService_CreateComment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "alice", domain.RoleUser)
	env.seedUser(t, "bob", domain.RoleUser)
	post := env.seedPost(t, "alice", "hello")

	top, err := env.comments.CreateComment(ctx, CreateCommentInput{
		AuthorID: "bob",
		PostID:   post.ID(),
		Text:     strings.Repeat("y", 2000),
	})
	require.NoError(t, err)
	assert.False(t, top.IsReply())

	reply, err := env.comments.CreateComment(ctx, CreateCommentInput{
		AuthorID: "alice",
		PostID:   post.ID(),
		ParentID: top.ID(),
		Text:     "thanks @bob #yay",
	})
	require.NoError(t, err)
	assert.Equal(t, top.ID(), reply.ParentID())
	assert.Equal(t, []string{"bob"}, reply.Content().Mentions)

	stored, err := env.deps.Posts.FindByID(ctx, post.ID())
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.Stats().Comments)

	parent, err := env.deps.Comments.FindByID(ctx, top.ID())
	require.NoError(t, err)
	assert.Equal(t, int64(1), parent.Stats().Replies)
	assert.Equal(t, int64(1), env.userStats(t, "bob").Comments)

	// bob's comment is announced to everyone and to the post author.
	types := env.events.types()
	assert.Contains(t, types, notifications.EventCommentCreated)
	var direct int
	for _, e := range env.events.events {
		if e.Recipient == "alice" {
			direct++
		}
	}
	assert.Equal(t, 1, direct)
}

func TestCommentService_ParentMustBelongToPost(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "alice", domain.RoleUser)
	first := env.seedPost(t, "alice", "one")
	second := env.seedPost(t, "alice", "two")

	parent, err := env.comments.CreateComment(ctx, CreateCommentInput{AuthorID: "alice", PostID: first.ID(), Text: "root"})
	require.NoError(t, err)

	_, err = env.comments.CreateComment(ctx, CreateCommentInput{
		AuthorID: "alice",
		PostID:   second.ID(),
		ParentID: parent.ID(),
		Text:     "misplaced",
	})
	assertValidationError(t, err)
	assert.Contains(t, err.Error(), "Parent comment does not belong to this post")

	_, err = env.comments.CreateComment(ctx, CreateCommentInput{AuthorID: "alice", PostID: second.ID(), ParentID: "nope", Text: "x"})
	assertCode(t, err, models.CodeNotFound)

	_, err = env.comments.CreateComment(ctx, CreateCommentInput{AuthorID: "alice", PostID: "missing", Text: "x"})
	assertCode(t, err, models.CodeNotFound)
}

func TestCommentService_GetComments(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "alice", domain.RoleUser)
	post := env.seedPost(t, "alice", "thread")

	root, err := env.comments.CreateComment(ctx, CreateCommentInput{AuthorID: "alice", PostID: post.ID(), Text: "root"})
	require.NoError(t, err)
	for _, text := range []string{"a", "b", "c"} {
		_, err := env.comments.CreateComment(ctx, CreateCommentInput{AuthorID: "alice", PostID: post.ID(), ParentID: root.ID(), Text: text})
		require.NoError(t, err)
	}

	top, err := env.comments.GetComments(ctx, ListCommentsInput{PostID: post.ID()})
	require.NoError(t, err)
	assert.Equal(t, int64(1), top.Total)
	require.Len(t, top.Items, 1)
	assert.Equal(t, root.ID(), top.Items[0].ID())

	replies, err := env.comments.GetComments(ctx, ListCommentsInput{PostID: post.ID(), ParentID: root.ID(), Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), replies.Total)
	require.Len(t, replies.Items, 2)
	assert.Equal(t, "a", replies.Items[0].Content().Text)

	_, err = env.comments.GetComments(ctx, ListCommentsInput{PostID: "missing"})
	assertCode(t, err, models.CodeNotFound)
}

func TestCommentService_UpdateComment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "alice", domain.RoleUser)
	env.seedUser(t, "bob", domain.RoleUser)
	post := env.seedPost(t, "alice", "post")
	other := env.seedPost(t, "alice", "other")

	c, err := env.comments.CreateComment(ctx, CreateCommentInput{AuthorID: "bob", PostID: post.ID(), Text: "frist"})
	require.NoError(t, err)

	_, err = env.comments.UpdateComment(ctx, UpdateCommentInput{ActorID: "alice", PostID: post.ID(), CommentID: c.ID(), Text: "first"})
	assertCode(t, err, models.CodeForbidden)

	_, err = env.comments.UpdateComment(ctx, UpdateCommentInput{ActorID: "bob", PostID: other.ID(), CommentID: c.ID(), Text: "first"})
	assertCode(t, err, models.CodeNotFound)

	updated, err := env.comments.UpdateComment(ctx, UpdateCommentInput{ActorID: "bob", PostID: post.ID(), CommentID: c.ID(), Text: "first"})
	require.NoError(t, err)
	assert.Equal(t, "first", updated.Content().Text)
	assert.True(t, updated.Metadata().IsEdited)

	require.NoError(t, env.comments.DeleteComment(ctx, "bob", post.ID(), c.ID()))
	_, err = env.comments.UpdateComment(ctx, UpdateCommentInput{ActorID: "bob", PostID: post.ID(), CommentID: c.ID(), Text: "again"})
	assertValidationError(t, err)
}

func TestCommentService_DeleteComment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "alice", domain.RoleUser)
	env.seedUser(t, "bob", domain.RoleUser)
	env.seedUser(t, "carol", domain.RoleUser)
	env.seedUser(t, "mod", domain.RoleModerator)
	post := env.seedPost(t, "alice", "post")

	root, err := env.comments.CreateComment(ctx, CreateCommentInput{AuthorID: "bob", PostID: post.ID(), Text: "root"})
	require.NoError(t, err)
	reply, err := env.comments.CreateComment(ctx, CreateCommentInput{AuthorID: "bob", PostID: post.ID(), ParentID: root.ID(), Text: "reply"})
	require.NoError(t, err)

	err = env.comments.DeleteComment(ctx, "carol", post.ID(), reply.ID())
	assertCode(t, err, models.CodeForbidden)

	require.NoError(t, env.comments.DeleteComment(ctx, "mod", post.ID(), reply.ID()))
	require.NoError(t, env.comments.DeleteComment(ctx, "bob", post.ID(), reply.ID()), "deleting twice is a no-op")

	stored, err := env.deps.Comments.FindByID(ctx, reply.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.CommentDeleted, stored.Status())

	p, err := env.deps.Posts.FindByID(ctx, post.ID())
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.Stats().Comments)

	parent, err := env.deps.Comments.FindByID(ctx, root.ID())
	require.NoError(t, err)
	assert.Equal(t, int64(0), parent.Stats().Replies)
	assert.Equal(t, int64(1), env.userStats(t, "bob").Comments)
	assert.Contains(t, env.events.types(), notifications.EventCommentDeleted)

	// Deleted replies are not valid parents.
	_, err = env.comments.CreateComment(ctx, CreateCommentInput{AuthorID: "bob", PostID: post.ID(), ParentID: reply.ID(), Text: "late"})
	assertValidationError(t, err)
}

func TestCommentService_PrivatePostEventsStayWithAuthor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "alice", domain.RoleUser)
	post, err := env.posts.CreatePost(ctx, CreatePostInput{AuthorID: "alice", Text: "diary", Privacy: "private"})
	require.NoError(t, err)

	c, err := env.comments.CreateComment(ctx, CreateCommentInput{AuthorID: "alice", PostID: post.ID(), Text: "note to self"})
	require.NoError(t, err)
	_, err = env.reactions.LikePost(ctx, "alice", post.ID(), "")
	require.NoError(t, err)
	require.NoError(t, env.comments.DeleteComment(ctx, "alice", post.ID(), c.ID()))

	assert.Equal(t, []string{
		notifications.EventCommentCreated,
		notifications.EventPostReactionUpdated,
		notifications.EventCommentDeleted,
	}, env.events.types())
	for _, e := range env.events.events {
		assert.Equal(t, "alice", e.Recipient, "%s must not be broadcast", e.Type)
	}
}

func TestCommentService_PublicPostEventsAreBroadcast(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "alice", domain.RoleUser)
	env.seedUser(t, "bob", domain.RoleUser)
	post := env.seedPost(t, "alice", "open")
	before := len(env.events.types())

	c, err := env.comments.CreateComment(ctx, CreateCommentInput{AuthorID: "bob", PostID: post.ID(), Text: "hi"})
	require.NoError(t, err)
	require.NoError(t, env.comments.DeleteComment(ctx, "bob", post.ID(), c.ID()))

	var broadcast, direct []string
	for _, e := range env.events.events[before:] {
		switch e.Recipient {
		case "":
			broadcast = append(broadcast, e.Type)
		case "alice":
			direct = append(direct, e.Type)
		default:
			t.Fatalf("unexpected recipient %q", e.Recipient)
		}
	}
	assert.Equal(t, []string{notifications.EventCommentCreated, notifications.EventCommentDeleted}, broadcast)
	assert.Equal(t, []string{notifications.EventCommentCreated}, direct)
}
