package domain

import (
	"encoding/json"
	"time"
)

// CommentStatus is the visibility state of a comment. Deletion is a status
// transition, never a row removal.
type CommentStatus string

const (
	CommentActive    CommentStatus = "active"
	CommentDeleted   CommentStatus = "deleted"
	CommentHidden    CommentStatus = "hidden"
	CommentModerated CommentStatus = "moderated"
)

// CommentStats are the denormalized counters of a comment.
type CommentStats struct {
	Likes   int64 `json:"likesCount"`
	Replies int64 `json:"repliesCount"`
	Reports int64 `json:"reportsCount"`
}

// CommentMetadata holds editorial and moderation flags.
type CommentMetadata struct {
	IsEdited         bool             `json:"isEdited"`
	EditHistory      []Edit           `json:"editHistory,omitempty"`
	IsPinned         bool             `json:"isPinned"`
	IsHighlighted    bool             `json:"isHighlighted"`
	ModerationStatus ModerationStatus `json:"moderationStatus"`
}

// Clone returns a deep copy.
func (m CommentMetadata) Clone() CommentMetadata {
	m.EditHistory = cloneEdits(m.EditHistory)
	return m
}

// CommentParams carries every field of a Comment.
type CommentParams struct {
	ID        string
	PostID    string
	AuthorID  string
	ParentID  string
	Content   CommentContent
	Status    CommentStatus
	Stats     CommentStats
	Metadata  CommentMetadata
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Comment is an immutable comment on a post. ParentID, when set, points at
// another comment of the same post.
type Comment struct {
	p CommentParams
}

// NewComment builds a Comment from p, defaulting status to active and
// moderation status to approved.
func NewComment(p CommentParams) *Comment {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = nowFunc()
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	if p.Status == "" {
		p.Status = CommentActive
	}
	if p.Metadata.ModerationStatus == "" {
		p.Metadata.ModerationStatus = ModerationApproved
	}
	p.Content = p.Content.Clone()
	p.Metadata = p.Metadata.Clone()
	p.Stats = floorCommentStats(p.Stats)
	return &Comment{p: p}
}

// Params returns a detached copy of the comment's fields.
func (c *Comment) Params() CommentParams {
	p := c.p
	p.Content = p.Content.Clone()
	p.Metadata = p.Metadata.Clone()
	return p
}

func (c *Comment) ID() string                { return c.p.ID }
func (c *Comment) PostID() string            { return c.p.PostID }
func (c *Comment) AuthorID() string          { return c.p.AuthorID }
func (c *Comment) ParentID() string          { return c.p.ParentID }
func (c *Comment) IsReply() bool             { return c.p.ParentID != "" }
func (c *Comment) Content() CommentContent   { return c.p.Content.Clone() }
func (c *Comment) Status() CommentStatus     { return c.p.Status }
func (c *Comment) IsActive() bool            { return c.p.Status == CommentActive }
func (c *Comment) Stats() CommentStats       { return c.p.Stats }
func (c *Comment) Metadata() CommentMetadata { return c.p.Metadata.Clone() }
func (c *Comment) CreatedAt() time.Time      { return c.p.CreatedAt }
func (c *Comment) UpdatedAt() time.Time      { return c.p.UpdatedAt }

// IsOwnedBy reports whether userID wrote the comment.
func (c *Comment) IsOwnedBy(userID string) bool {
	return userID != "" && c.p.AuthorID == userID
}

// BelongsTo reports whether the comment lives under postID.
func (c *Comment) BelongsTo(postID string) bool {
	return c.p.PostID == postID
}

func (c *Comment) with(mutate func(*CommentParams)) *Comment {
	params := c.Params()
	mutate(&params)
	params.UpdatedAt = nowFunc()
	return NewComment(params)
}

// UpdateContent replaces the content and records the previous text.
func (c *Comment) UpdateContent(content CommentContent) *Comment {
	return c.with(func(p *CommentParams) {
		p.Metadata.EditHistory = append(p.Metadata.EditHistory, Edit{
			PreviousText: c.p.Content.Text,
			EditedAt:     nowFunc(),
		})
		p.Metadata.IsEdited = true
		p.Content = content
	})
}

func (c *Comment) MarkAsDeleted() *Comment {
	return c.with(func(p *CommentParams) { p.Status = CommentDeleted })
}

func (c *Comment) Hide() *Comment {
	return c.with(func(p *CommentParams) { p.Status = CommentHidden })
}

// Moderate marks the comment as handled by a moderator with the given outcome.
func (c *Comment) Moderate(outcome ModerationStatus) *Comment {
	return c.with(func(p *CommentParams) {
		p.Status = CommentModerated
		p.Metadata.ModerationStatus = outcome
	})
}

func (c *Comment) WithPinned(pinned bool) *Comment {
	return c.with(func(p *CommentParams) { p.Metadata.IsPinned = pinned })
}

func (c *Comment) WithHighlighted(highlighted bool) *Comment {
	return c.with(func(p *CommentParams) { p.Metadata.IsHighlighted = highlighted })
}

func (c *Comment) IncrementLikes() *Comment   { return c.adjust(func(s *CommentStats) { s.Likes++ }) }
func (c *Comment) DecrementLikes() *Comment   { return c.adjust(func(s *CommentStats) { s.Likes-- }) }
func (c *Comment) IncrementReplies() *Comment { return c.adjust(func(s *CommentStats) { s.Replies++ }) }
func (c *Comment) DecrementReplies() *Comment { return c.adjust(func(s *CommentStats) { s.Replies-- }) }
func (c *Comment) IncrementReports() *Comment { return c.adjust(func(s *CommentStats) { s.Reports++ }) }

func (c *Comment) adjust(change func(*CommentStats)) *Comment {
	return c.with(func(p *CommentParams) { change(&p.Stats) })
}

func floorCommentStats(s CommentStats) CommentStats {
	s.Likes = max(s.Likes, 0)
	s.Replies = max(s.Replies, 0)
	s.Reports = max(s.Reports, 0)
	return s
}

type commentJSON struct {
	ID        string          `json:"id"`
	PostID    string          `json:"postId"`
	AuthorID  string          `json:"authorId"`
	ParentID  string          `json:"parentId,omitempty"`
	Content   CommentContent  `json:"content"`
	Status    CommentStatus   `json:"status"`
	Stats     CommentStats    `json:"stats"`
	Metadata  CommentMetadata `json:"metadata"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// MarshalJSON renders the comment. Deleted comments keep their place in a
// thread but lose their text.
func (c *Comment) MarshalJSON() ([]byte, error) {
	content := c.p.Content
	if c.p.Status == CommentDeleted {
		content = CommentContent{}
	}
	return json.Marshal(commentJSON{
		ID:        c.p.ID,
		PostID:    c.p.PostID,
		AuthorID:  c.p.AuthorID,
		ParentID:  c.p.ParentID,
		Content:   content,
		Status:    c.p.Status,
		Stats:     c.p.Stats,
		Metadata:  c.p.Metadata,
		CreatedAt: c.p.CreatedAt,
		UpdatedAt: c.p.UpdatedAt,
	})
}
