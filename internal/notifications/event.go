// Package notifications fans feed events out to websocket clients, locally
// through the Hub and across instances through Redis pub/sub.
package notifications

import (
	"context"
	"encoding/json"
	"time"
)

// Event types delivered to websocket clients.
const (
	EventPostCreated         = "post_created"
	EventPostReactionUpdated = "post_reaction_updated"
	EventCommentCreated      = "comment_created"
	EventCommentDeleted      = "comment_deleted"
	EventMessagesDropped     = "messages_dropped"
)

// Event is one realtime message. Recipient, when set, limits delivery to that
// user's connections; otherwise every client receives it.
type Event struct {
	Type      string    `json:"type"`
	Recipient string    `json:"-"`
	ActorID   string    `json:"actorId,omitempty"`
	PostID    string    `json:"postId,omitempty"`
	CommentID string    `json:"commentId,omitempty"`
	Payload   any       `json:"payload,omitempty"`
	At        time.Time `json:"at"`
}

// Publisher accepts events after the write they describe has committed.
// Delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// Discard is a Publisher that drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(context.Context, Event) {}

// envelope is the pub/sub wire form: the recipient travels beside the
// client-facing JSON.
type envelope struct {
	Recipient string          `json:"recipient,omitempty"`
	Event     json.RawMessage `json:"event"`
}
