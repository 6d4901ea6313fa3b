package notifications

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEventuallyTimeout = time.Second
	testPollInterval      = 10 * time.Millisecond
)

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case data := <-c.Send:
		var ev Event
		require.NoError(t, json.Unmarshal(data, &ev))
		return ev
	case <-time.After(testEventuallyTimeout):
		t.Fatal("no event received")
		return Event{}
	}
}

func TestHub_PublishLocal(t *testing.T) {
	hub := NewHub(nil)
	alice, err := hub.Register("alice", nil)
	require.NoError(t, err)
	bob, err := hub.Register("bob", nil)
	require.NoError(t, err)
	anon, err := hub.Register("", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, hub.Connections())

	hub.Publish(context.Background(), Event{Type: EventPostCreated, PostID: "p1", ActorID: "alice"})
	for _, c := range []*Client{alice, bob, anon} {
		ev := receive(t, c)
		assert.Equal(t, EventPostCreated, ev.Type)
		assert.Equal(t, "p1", ev.PostID)
		assert.False(t, ev.At.IsZero())
	}

	hub.Publish(context.Background(), Event{Type: EventCommentCreated, Recipient: "bob", PostID: "p1"})
	assert.Equal(t, EventCommentCreated, receive(t, bob).Type)
	assert.Empty(t, alice.Send)
	assert.Empty(t, anon.Send)

	require.NoError(t, hub.Shutdown(context.Background()))
	assert.Equal(t, 0, hub.Connections())
}

func TestHub_UnregisterIsIdempotent(t *testing.T) {
	hub := NewHub(nil)
	c, err := hub.Register("alice", nil)
	require.NoError(t, err)

	hub.Unregister(c)
	hub.Unregister(c)
	assert.Equal(t, 0, hub.Connections())

	_, open := <-c.Send
	assert.False(t, open)

	// Publishing after the client left must not panic.
	hub.Publish(context.Background(), Event{Type: EventPostCreated})
}

func TestHub_PerUserLimit(t *testing.T) {
	hub := NewHub(nil)
	for range maxConnsPerUser {
		_, err := hub.Register("alice", nil)
		require.NoError(t, err)
	}
	_, err := hub.Register("alice", nil)
	assert.ErrorIs(t, err, ErrTooManyUserConnections)

	require.NoError(t, hub.Shutdown(context.Background()))
	_, err = hub.Register("bob", nil)
	assert.ErrorIs(t, err, ErrTooManyConnections)
}

func TestClient_TrySendDropsWhenFull(t *testing.T) {
	hub := NewHub(nil)
	c, err := hub.Register("alice", nil)
	require.NoError(t, err)

	for range sendBuffer + 5 {
		c.TrySend([]byte(`{}`))
	}
	assert.Len(t, c.Send, sendBuffer)
}

func TestHub_PublishThroughRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Two hubs stand in for two API instances sharing one Redis.
	sender := NewHub(NewNotifier(rdb))
	receiver := NewHub(NewNotifier(rdb))
	require.NoError(t, receiver.Run(ctx))

	c, err := receiver.Register("bob", nil)
	require.NoError(t, err)

	sender.Publish(ctx, Event{Type: EventPostReactionUpdated, PostID: "p9", Recipient: "bob"})

	ev := receive(t, c)
	assert.Equal(t, EventPostReactionUpdated, ev.Type)
	assert.Equal(t, "p9", ev.PostID)
}

func TestHub_RedisDownFallsBackToLocal(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	hub := NewHub(NewNotifier(rdb))
	c, err := hub.Register("alice", nil)
	require.NoError(t, err)

	hub.Publish(context.Background(), Event{Type: EventCommentDeleted, CommentID: "c1"})
	assert.Equal(t, "c1", receive(t, c).CommentID)
}

func TestNewNotifier_NilClient(t *testing.T) {
	assert.Nil(t, NewNotifier(nil))
	hub := NewHub(NewNotifier(nil))
	assert.NoError(t, hub.Run(context.Background()))
}

func TestDiscard(t *testing.T) {
	assert.NotPanics(t, func() {
		Discard.Publish(context.Background(), Event{Type: EventPostCreated})
	})
}
