package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Reaction is one of the fixed emoji reactions.
type Reaction string

const (
	ReactionLike  Reaction = "like"
	ReactionLove  Reaction = "love"
	ReactionHaha  Reaction = "haha"
	ReactionWow   Reaction = "wow"
	ReactionSad   Reaction = "sad"
	ReactionAngry Reaction = "angry"
	ReactionCare  Reaction = "care"
)

// Reactions lists every reaction in display order.
var Reactions = []Reaction{ReactionLike, ReactionLove, ReactionHaha, ReactionWow, ReactionSad, ReactionAngry, ReactionCare}

// ParseReaction validates s; the empty string means like.
func ParseReaction(s string) (Reaction, error) {
	r := Reaction(strings.ToLower(strings.TrimSpace(s)))
	if r == "" {
		return ReactionLike, nil
	}
	for _, known := range Reactions {
		if r == known {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidReaction, s)
}

// TargetType is the kind of entity a like points at.
type TargetType string

const (
	TargetPost    TargetType = "post"
	TargetComment TargetType = "comment"
)

// ParseTargetType validates s.
func ParseTargetType(s string) (TargetType, error) {
	t := TargetType(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case TargetPost, TargetComment:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTargetType, s)
}

// LikeParams carries every field of a Like.
type LikeParams struct {
	ID         string
	UserID     string
	TargetID   string
	TargetType TargetType
	Reaction   Reaction
	CreatedAt  time.Time
}

// Like is one user's reaction to a post or comment. There is at most one per
// (user, target, target type).
type Like struct {
	p LikeParams
}

func NewLike(p LikeParams) *Like {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = nowFunc()
	}
	if p.Reaction == "" {
		p.Reaction = ReactionLike
	}
	return &Like{p: p}
}

func (l *Like) Params() LikeParams     { return l.p }
func (l *Like) ID() string             { return l.p.ID }
func (l *Like) UserID() string         { return l.p.UserID }
func (l *Like) TargetID() string       { return l.p.TargetID }
func (l *Like) TargetType() TargetType { return l.p.TargetType }
func (l *Like) Reaction() Reaction     { return l.p.Reaction }
func (l *Like) CreatedAt() time.Time   { return l.p.CreatedAt }

// UpdateReaction returns a copy carrying r. Identity fields never change.
func (l *Like) UpdateReaction(r Reaction) *Like {
	p := l.p
	p.Reaction = r
	return NewLike(p)
}

type likeJSON struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId"`
	TargetID   string     `json:"targetId"`
	TargetType TargetType `json:"targetType"`
	Reaction   Reaction   `json:"reaction"`
	CreatedAt  time.Time  `json:"createdAt"`
}

func (l *Like) MarshalJSON() ([]byte, error) {
	return json.Marshal(likeJSON(l.p))
}
