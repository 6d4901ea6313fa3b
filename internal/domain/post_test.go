package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freezeClock(t *testing.T, at time.Time) {
	t.Helper()
	prev := nowFunc
	nowFunc = func() time.Time { return at }
	t.Cleanup(func() { nowFunc = prev })
}

func TestDerivePostType(t *testing.T) {
	tests := []struct {
		name    string
		content PostContent
		want    PostType
	}{
		{"text only", PostContent{Text: "hello"}, PostTypeText},
		{"video only", PostContent{VideoURL: "https://youtu.be/x"}, PostTypeVideo},
		{"text and video", PostContent{Text: "hello", VideoURL: "https://youtu.be/x"}, PostTypeMixed},
		{"blank text with video", PostContent{Text: "   ", VideoURL: "https://youtu.be/x"}, PostTypeVideo},
		{"images only", PostContent{ImageURLs: []string{"https://cdn/x.jpg"}}, PostTypeText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DerivePostType(tt.content))
			assert.Equal(t, tt.want, NewPost(PostParams{Content: tt.content}).Type())
		})
	}
}

func TestNewPost_Defaults(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	freezeClock(t, at)

	p := NewPost(PostParams{ID: "p1", AuthorID: "u1", Content: BuildPostContent("hello #world @bob", "", nil, nil, nil)})

	assert.Equal(t, PostTypeText, p.Type())
	assert.Equal(t, PrivacyPublic, p.Privacy())
	assert.Equal(t, int64(0), p.Stats().Likes)
	assert.Equal(t, ModerationApproved, p.Metadata().ModerationStatus)
	assert.Equal(t, at, p.CreatedAt())
	assert.Equal(t, at, p.UpdatedAt())
	assert.Equal(t, []string{"world"}, p.Content().Hashtags)
	assert.Equal(t, []string{"bob"}, p.Content().Mentions)
}

func TestPost_CountersFloorAtZero(t *testing.T) {
	p := NewPost(PostParams{ID: "p1", Content: PostContent{Text: "x"}})

	liked := p.IncrementLikes()
	assert.Equal(t, p.Stats().Likes+1, liked.Stats().Likes)
	assert.Equal(t, int64(0), p.Stats().Likes, "receiver must not change")

	assert.Equal(t, int64(0), liked.DecrementLikes().DecrementLikes().Stats().Likes)
	assert.Equal(t, int64(0), p.DecrementComments().Stats().Comments)

	negative := NewPost(PostParams{Stats: PostStats{Likes: -5, Views: -1}})
	assert.Equal(t, int64(0), negative.Stats().Likes)
	assert.Equal(t, int64(0), negative.Stats().Views)
}

func TestPost_UpdateContentRecordsHistory(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := NewPost(PostParams{ID: "p1", Content: PostContent{Text: "first"}, CreatedAt: created})

	edited := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	freezeClock(t, edited)
	updated := p.UpdateContent(PostContent{Text: "second", VideoURL: "https://vimeo.com/1"})

	assert.Equal(t, PostTypeMixed, updated.Type())
	assert.True(t, updated.Metadata().IsEdited)
	require.Len(t, updated.Metadata().EditHistory, 1)
	assert.Equal(t, "first", updated.Metadata().EditHistory[0].PreviousText)
	assert.Equal(t, edited, updated.UpdatedAt())
	assert.Equal(t, created, updated.CreatedAt())
	assert.Equal(t, "first", p.Content().Text)
	assert.False(t, p.Metadata().IsEdited)
}

func TestPost_GettersReturnCopies(t *testing.T) {
	p := NewPost(PostParams{Content: PostContent{Text: "x", ImageURLs: []string{"https://a/1.jpg"}}})
	c := p.Content()
	c.ImageURLs[0] = "mutated"
	assert.Equal(t, "https://a/1.jpg", p.Content().ImageURLs[0])
}

func TestPost_EngagementRate(t *testing.T) {
	assert.Zero(t, PostStats{Likes: 3}.EngagementRate())
	assert.InDelta(t, 0.5, PostStats{Likes: 2, Comments: 2, Shares: 1, Views: 10}.EngagementRate(), 1e-9)
}

func TestPost_VisibleTo(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	freezeClock(t, now)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	public := NewPost(PostParams{AuthorID: "u1", PublishedAt: &past})
	scheduled := NewPost(PostParams{AuthorID: "u1", PublishedAt: &future})
	private := NewPost(PostParams{AuthorID: "u1", Privacy: PrivacyPrivate, PublishedAt: &past})
	rejected := public.WithModerationStatus(ModerationRejected)

	assert.True(t, public.VisibleTo(""))
	assert.False(t, scheduled.VisibleTo("u2"))
	assert.True(t, scheduled.VisibleTo("u1"))
	assert.False(t, private.VisibleTo("u2"))
	assert.False(t, rejected.VisibleTo("u2"))
	assert.True(t, rejected.VisibleTo("u1"))
}

func TestPost_JSONRoundTrip(t *testing.T) {
	published := time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)
	p := NewPost(PostParams{
		ID:          "p1",
		AuthorID:    "u1",
		Content:     BuildPostContent("see https://example.com #Go", "https://youtu.be/abc", []string{"https://cdn/a.jpg"}, nil, []string{"@Ann"}),
		Privacy:     PrivacyFriends,
		Stats:       PostStats{Likes: 1, Comments: 2, Shares: 3, Views: 4},
		Metadata:    PostMetadata{IsPinned: true, ModerationStatus: ModerationFlagged},
		CreatedAt:   published,
		UpdatedAt:   published,
		PublishedAt: &published,
	})

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"engagementRate":1.5`)

	var back Post
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, p.Params(), back.Params())
	assert.Equal(t, PostTypeMixed, back.Type())
}
