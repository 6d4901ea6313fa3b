package domain

import (
	"encoding/json"
	"time"
)

// nowFunc is the clock used for UpdatedAt stamps; tests may replace it.
var nowFunc = func() time.Time { return time.Now().UTC() }

// PostStats are the denormalized counters of a post.
type PostStats struct {
	Likes    int64 `json:"likesCount"`
	Comments int64 `json:"commentsCount"`
	Shares   int64 `json:"sharesCount"`
	Views    int64 `json:"viewsCount"`
}

// EngagementRate is (likes + comments + shares) / views, or 0 without views.
func (s PostStats) EngagementRate() float64 {
	if s.Views <= 0 {
		return 0
	}
	return float64(s.Likes+s.Comments+s.Shares) / float64(s.Views)
}

// PostMetadata holds editorial and moderation flags.
type PostMetadata struct {
	IsEdited         bool             `json:"isEdited"`
	EditHistory      []Edit           `json:"editHistory,omitempty"`
	IsPinned         bool             `json:"isPinned"`
	IsPromoted       bool             `json:"isPromoted"`
	IsSponsored      bool             `json:"isSponsored"`
	ModerationStatus ModerationStatus `json:"moderationStatus"`
}

// Clone returns a deep copy.
func (m PostMetadata) Clone() PostMetadata {
	m.EditHistory = cloneEdits(m.EditHistory)
	return m
}

// PostParams carries every field of a Post. Zero timestamps are filled with
// the current time, an empty privacy becomes public and an empty moderation
// status becomes approved.
type PostParams struct {
	ID          string
	AuthorID    string
	Content     PostContent
	Privacy     Privacy
	Stats       PostStats
	Metadata    PostMetadata
	CreatedAt   time.Time
	UpdatedAt   time.Time
	PublishedAt *time.Time
	ScheduledAt *time.Time
}

// Post is an immutable post. Its type is always derived from its content.
type Post struct {
	id          string
	authorID    string
	content     PostContent
	postType    PostType
	privacy     Privacy
	stats       PostStats
	metadata    PostMetadata
	createdAt   time.Time
	updatedAt   time.Time
	publishedAt *time.Time
	scheduledAt *time.Time
}

// NewPost builds a Post from p. It trusts p: validation belongs to the use-cases.
func NewPost(p PostParams) *Post {
	now := nowFunc()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	if p.Privacy == "" {
		p.Privacy = PrivacyPublic
	}
	if p.Metadata.ModerationStatus == "" {
		p.Metadata.ModerationStatus = ModerationApproved
	}
	content := p.Content.Clone()
	return &Post{
		id:          p.ID,
		authorID:    p.AuthorID,
		content:     content,
		postType:    DerivePostType(content),
		privacy:     p.Privacy,
		stats:       floorStats(p.Stats),
		metadata:    p.Metadata.Clone(),
		createdAt:   p.CreatedAt,
		updatedAt:   p.UpdatedAt,
		publishedAt: cloneTime(p.PublishedAt),
		scheduledAt: cloneTime(p.ScheduledAt),
	}
}

// Params returns the fields of the post, suitable for persisting or for
// building a modified copy with NewPost.
func (p *Post) Params() PostParams {
	return PostParams{
		ID:          p.id,
		AuthorID:    p.authorID,
		Content:     p.content.Clone(),
		Privacy:     p.privacy,
		Stats:       p.stats,
		Metadata:    p.metadata.Clone(),
		CreatedAt:   p.createdAt,
		UpdatedAt:   p.updatedAt,
		PublishedAt: cloneTime(p.publishedAt),
		ScheduledAt: cloneTime(p.scheduledAt),
	}
}

func (p *Post) ID() string                   { return p.id }
func (p *Post) AuthorID() string             { return p.authorID }
func (p *Post) Content() PostContent         { return p.content.Clone() }
func (p *Post) Type() PostType               { return p.postType }
func (p *Post) Privacy() Privacy             { return p.privacy }
func (p *Post) Stats() PostStats             { return p.stats }
func (p *Post) Metadata() PostMetadata       { return p.metadata.Clone() }
func (p *Post) CreatedAt() time.Time         { return p.createdAt }
func (p *Post) UpdatedAt() time.Time         { return p.updatedAt }
func (p *Post) PublishedAt() *time.Time      { return cloneTime(p.publishedAt) }
func (p *Post) ScheduledAt() *time.Time      { return cloneTime(p.scheduledAt) }
func (p *Post) IsOwnedBy(userID string) bool { return userID != "" && p.authorID == userID }

// IsPublished reports whether the post is visible at t.
func (p *Post) IsPublished(t time.Time) bool {
	return p.publishedAt != nil && !p.publishedAt.After(t)
}

// VisibleTo reports whether viewerID (empty for anonymous) may read the post.
func (p *Post) VisibleTo(viewerID string) bool {
	if p.IsOwnedBy(viewerID) {
		return true
	}
	if p.metadata.ModerationStatus == ModerationRejected {
		return false
	}
	return p.privacy == PrivacyPublic && p.IsPublished(nowFunc())
}

// with applies mutate to a copy of the post's params and stamps UpdatedAt.
func (p *Post) with(mutate func(*PostParams)) *Post {
	params := p.Params()
	mutate(&params)
	params.UpdatedAt = nowFunc()
	return NewPost(params)
}

// UpdateContent replaces the content, re-derives the type and appends the
// previous text to the edit history.
func (p *Post) UpdateContent(content PostContent) *Post {
	return p.with(func(params *PostParams) {
		params.Metadata.EditHistory = append(params.Metadata.EditHistory, Edit{
			PreviousText: p.content.Text,
			EditedAt:     nowFunc(),
		})
		params.Metadata.IsEdited = true
		params.Content = content
	})
}

func (p *Post) WithPrivacy(privacy Privacy) *Post {
	return p.with(func(params *PostParams) { params.Privacy = privacy })
}

func (p *Post) WithPinned(pinned bool) *Post {
	return p.with(func(params *PostParams) { params.Metadata.IsPinned = pinned })
}

func (p *Post) WithModerationStatus(status ModerationStatus) *Post {
	return p.with(func(params *PostParams) { params.Metadata.ModerationStatus = status })
}

func (p *Post) IncrementLikes() *Post    { return p.adjust(func(s *PostStats) { s.Likes++ }) }
func (p *Post) DecrementLikes() *Post    { return p.adjust(func(s *PostStats) { s.Likes-- }) }
func (p *Post) IncrementComments() *Post { return p.adjust(func(s *PostStats) { s.Comments++ }) }
func (p *Post) DecrementComments() *Post { return p.adjust(func(s *PostStats) { s.Comments-- }) }
func (p *Post) IncrementShares() *Post   { return p.adjust(func(s *PostStats) { s.Shares++ }) }
func (p *Post) IncrementViews() *Post    { return p.adjust(func(s *PostStats) { s.Views++ }) }

func (p *Post) adjust(change func(*PostStats)) *Post {
	return p.with(func(params *PostParams) {
		change(&params.Stats)
		params.Stats = floorStats(params.Stats)
	})
}

func floorStats(s PostStats) PostStats {
	s.Likes = max(s.Likes, 0)
	s.Comments = max(s.Comments, 0)
	s.Shares = max(s.Shares, 0)
	s.Views = max(s.Views, 0)
	return s
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

type postStatsJSON struct {
	PostStats
	EngagementRate float64 `json:"engagementRate"`
}

type postJSON struct {
	ID          string        `json:"id"`
	AuthorID    string        `json:"authorId"`
	Content     PostContent   `json:"content"`
	Type        PostType      `json:"type"`
	Privacy     Privacy       `json:"privacy"`
	Stats       postStatsJSON `json:"stats"`
	Metadata    PostMetadata  `json:"metadata"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
	PublishedAt *time.Time    `json:"publishedAt,omitempty"`
	ScheduledAt *time.Time    `json:"scheduledAt,omitempty"`
}

// MarshalJSON renders the post for API responses and cache entries.
func (p *Post) MarshalJSON() ([]byte, error) {
	return json.Marshal(postJSON{
		ID:          p.id,
		AuthorID:    p.authorID,
		Content:     p.content,
		Type:        p.postType,
		Privacy:     p.privacy,
		Stats:       postStatsJSON{PostStats: p.stats, EngagementRate: p.stats.EngagementRate()},
		Metadata:    p.metadata,
		CreatedAt:   p.createdAt,
		UpdatedAt:   p.updatedAt,
		PublishedAt: p.publishedAt,
		ScheduledAt: p.scheduledAt,
	})
}

// UnmarshalJSON restores a post rendered by MarshalJSON.
func (p *Post) UnmarshalJSON(data []byte) error {
	var raw postJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = *NewPost(PostParams{
		ID:          raw.ID,
		AuthorID:    raw.AuthorID,
		Content:     raw.Content,
		Privacy:     raw.Privacy,
		Stats:       raw.Stats.PostStats,
		Metadata:    raw.Metadata,
		CreatedAt:   raw.CreatedAt,
		UpdatedAt:   raw.UpdatedAt,
		PublishedAt: raw.PublishedAt,
		ScheduledAt: raw.ScheduledAt,
	})
	return nil
}
