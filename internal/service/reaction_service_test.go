package service

import (
	"context"
	"testing"

	"facefeed/internal/domain"
	"facefeed/internal/models"
	"facefeed/internal/notifications"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReactionService_LikePostTwiceRestoresCount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "alice", domain.RoleUser)
	env.seedUser(t, "bob", domain.RoleUser)
	post := env.seedPost(t, "alice", "like me")

	res, err := env.reactions.LikePost(ctx, "bob", post.ID(), "")
	require.NoError(t, err)
	assert.Equal(t, ReactionAdded, res.Action)
	assert.Equal(t, domain.ReactionLike, res.Reaction)
	assert.Equal(t, int64(1), res.LikesCount)
	assert.Equal(t, int64(1), res.Reactions[domain.ReactionLike])
	assert.Equal(t, int64(1), env.userStats(t, "alice").Likes)

	res, err = env.reactions.LikePost(ctx, "bob", post.ID(), "like")
	require.NoError(t, err)
	assert.Equal(t, ReactionRemoved, res.Action)
	assert.Empty(t, res.Reaction)
	assert.Equal(t, int64(0), res.LikesCount)
	assert.Empty(t, res.Reactions)
	assert.Equal(t, int64(0), env.userStats(t, "alice").Likes)

	stored, err := env.deps.Posts.FindByID(ctx, post.ID())
	require.NoError(t, err)
	assert.Equal(t, post.Stats().Likes, stored.Stats().Likes)

	assert.Contains(t, env.events.types(), notifications.EventPostReactionUpdated)
}

func TestReactionService_ChangeReaction(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "alice", domain.RoleUser)
	env.seedUser(t, "bob", domain.RoleUser)
	env.seedUser(t, "carol", domain.RoleUser)
	post := env.seedPost(t, "alice", "react")

	_, err := env.reactions.LikePost(ctx, "bob", post.ID(), "haha")
	require.NoError(t, err)
	_, err = env.reactions.LikePost(ctx, "carol", post.ID(), "haha")
	require.NoError(t, err)

	res, err := env.reactions.LikePost(ctx, "bob", post.ID(), "WOW")
	require.NoError(t, err)
	assert.Equal(t, ReactionChanged, res.Action)
	assert.Equal(t, domain.ReactionWow, res.Reaction)
	assert.Equal(t, int64(2), res.LikesCount, "changing a reaction keeps the count")
	assert.Equal(t, map[domain.Reaction]int64{domain.ReactionHaha: 1, domain.ReactionWow: 1}, res.Reactions)

	like, err := env.deps.Likes.Find(ctx, "bob", post.ID(), domain.TargetPost)
	require.NoError(t, err)
	assert.Equal(t, domain.ReactionWow, like.Reaction())
}

func TestReactionService_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "alice", domain.RoleUser)
	post := env.seedPost(t, "alice", "react")

	_, err := env.reactions.LikePost(ctx, "alice", post.ID(), "meh")
	assertValidationError(t, err)

	_, err = env.reactions.LikePost(ctx, "", post.ID(), "")
	assertCode(t, err, models.CodeUnauthorized)

	_, err = env.reactions.LikePost(ctx, "alice", "missing", "")
	assertCode(t, err, models.CodeNotFound)
}

func TestReactionService_LikeComment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "alice", domain.RoleUser)
	env.seedUser(t, "bob", domain.RoleUser)
	post := env.seedPost(t, "alice", "post")
	other := env.seedPost(t, "alice", "other")

	c, err := env.comments.CreateComment(ctx, CreateCommentInput{AuthorID: "bob", PostID: post.ID(), Text: "comment"})
	require.NoError(t, err)

	res, err := env.reactions.LikeComment(ctx, "alice", post.ID(), c.ID(), "care")
	require.NoError(t, err)
	assert.Equal(t, ReactionAdded, res.Action)
	assert.Equal(t, int64(1), res.LikesCount)
	assert.Equal(t, int64(1), env.userStats(t, "bob").Likes)

	// Post and comment likes are independent.
	_, err = env.deps.Likes.Find(ctx, "alice", post.ID(), domain.TargetPost)
	assertCode(t, err, models.CodeNotFound)

	_, err = env.reactions.LikeComment(ctx, "alice", other.ID(), c.ID(), "")
	assertCode(t, err, models.CodeNotFound)

	res, err = env.reactions.LikeComment(ctx, "alice", post.ID(), c.ID(), "care")
	require.NoError(t, err)
	assert.Equal(t, ReactionRemoved, res.Action)
	assert.Equal(t, int64(0), res.LikesCount)

	require.NoError(t, env.comments.DeleteComment(ctx, "bob", post.ID(), c.ID()))
	_, err = env.reactions.LikeComment(ctx, "alice", post.ID(), c.ID(), "")
	assertCode(t, err, models.CodeNotFound)
}

func TestReactionService_UsesOneTransaction(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "alice", domain.RoleUser)
	post := env.seedPost(t, "alice", "tx")

	tx := &inlineTx{}
	d := env.deps
	d.Tx = tx
	svc := NewReactionService(d)

	_, err := svc.LikePost(ctx, "alice", post.ID(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, tx.calls)
}
