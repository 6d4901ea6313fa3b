package repository

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"facefeed/internal/domain"
	"facefeed/internal/models"
)

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeJSON(s string, dest any) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), dest)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func postToRow(p *domain.Post) (*models.Post, error) {
	params := p.Params()
	content, err := encodeJSON(params.Content)
	if err != nil {
		return nil, fmt.Errorf("encode post content: %w", err)
	}
	metadata, err := encodeJSON(params.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode post metadata: %w", err)
	}
	return &models.Post{
		ID:            params.ID,
		AuthorID:      params.AuthorID,
		Content:       content,
		Type:          string(p.Type()),
		Privacy:       string(params.Privacy),
		Moderation:    string(params.Metadata.ModerationStatus),
		Metadata:      metadata,
		SearchText:    strings.ToLower(params.Content.Text),
		LikesCount:    params.Stats.Likes,
		CommentsCount: params.Stats.Comments,
		SharesCount:   params.Stats.Shares,
		ViewsCount:    params.Stats.Views,
		CreatedAt:     params.CreatedAt.UTC(),
		UpdatedAt:     params.UpdatedAt.UTC(),
		PublishedAt:   utcPtr(params.PublishedAt),
		ScheduledAt:   utcPtr(params.ScheduledAt),
	}, nil
}

func rowToPost(row *models.Post) (*domain.Post, error) {
	var content domain.PostContent
	if err := decodeJSON(row.Content, &content); err != nil {
		return nil, fmt.Errorf("decode post %s content: %w", row.ID, err)
	}
	var metadata domain.PostMetadata
	if err := decodeJSON(row.Metadata, &metadata); err != nil {
		return nil, fmt.Errorf("decode post %s metadata: %w", row.ID, err)
	}
	if row.Moderation != "" {
		metadata.ModerationStatus = domain.ModerationStatus(row.Moderation)
	}
	return domain.NewPost(domain.PostParams{
		ID:       row.ID,
		AuthorID: row.AuthorID,
		Content:  content,
		Privacy:  domain.Privacy(row.Privacy),
		Stats: domain.PostStats{
			Likes:    row.LikesCount,
			Comments: row.CommentsCount,
			Shares:   row.SharesCount,
			Views:    row.ViewsCount,
		},
		Metadata:    metadata,
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
		PublishedAt: utcPtr(row.PublishedAt),
		ScheduledAt: utcPtr(row.ScheduledAt),
	}), nil
}

func rowsToPosts(rows []models.Post) ([]*domain.Post, error) {
	out := make([]*domain.Post, 0, len(rows))
	for i := range rows {
		p, err := rowToPost(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func commentToRow(c *domain.Comment) (*models.Comment, error) {
	params := c.Params()
	content, err := encodeJSON(params.Content)
	if err != nil {
		return nil, fmt.Errorf("encode comment content: %w", err)
	}
	metadata, err := encodeJSON(params.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode comment metadata: %w", err)
	}
	return &models.Comment{
		ID:           params.ID,
		PostID:       params.PostID,
		AuthorID:     params.AuthorID,
		ParentID:     nullable(params.ParentID),
		Content:      content,
		Status:       string(params.Status),
		Metadata:     metadata,
		SearchText:   strings.ToLower(params.Content.Text),
		LikesCount:   params.Stats.Likes,
		RepliesCount: params.Stats.Replies,
		ReportsCount: params.Stats.Reports,
		CreatedAt:    params.CreatedAt.UTC(),
		UpdatedAt:    params.UpdatedAt.UTC(),
	}, nil
}

func rowToComment(row *models.Comment) (*domain.Comment, error) {
	var content domain.CommentContent
	if err := decodeJSON(row.Content, &content); err != nil {
		return nil, fmt.Errorf("decode comment %s content: %w", row.ID, err)
	}
	var metadata domain.CommentMetadata
	if err := decodeJSON(row.Metadata, &metadata); err != nil {
		return nil, fmt.Errorf("decode comment %s metadata: %w", row.ID, err)
	}
	return domain.NewComment(domain.CommentParams{
		ID:       row.ID,
		PostID:   row.PostID,
		AuthorID: row.AuthorID,
		ParentID: deref(row.ParentID),
		Content:  content,
		Status:   domain.CommentStatus(row.Status),
		Stats: domain.CommentStats{
			Likes:   row.LikesCount,
			Replies: row.RepliesCount,
			Reports: row.ReportsCount,
		},
		Metadata:  metadata,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}), nil
}

func rowsToComments(rows []models.Comment) ([]*domain.Comment, error) {
	out := make([]*domain.Comment, 0, len(rows))
	for i := range rows {
		c, err := rowToComment(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func likeToRow(l *domain.Like) *models.Like {
	p := l.Params()
	return &models.Like{
		ID:         p.ID,
		UserID:     p.UserID,
		TargetID:   p.TargetID,
		TargetType: string(p.TargetType),
		Reaction:   string(p.Reaction),
		CreatedAt:  p.CreatedAt.UTC(),
	}
}

func rowToLike(row *models.Like) *domain.Like {
	return domain.NewLike(domain.LikeParams{
		ID:         row.ID,
		UserID:     row.UserID,
		TargetID:   row.TargetID,
		TargetType: domain.TargetType(row.TargetType),
		Reaction:   domain.Reaction(row.Reaction),
		CreatedAt:  row.CreatedAt.UTC(),
	})
}

func userToRow(u *domain.User) (*models.User, error) {
	p := u.Params()
	profile, err := encodeJSON(p.Profile)
	if err != nil {
		return nil, fmt.Errorf("encode user profile: %w", err)
	}
	verification, err := encodeJSON(p.Verification)
	if err != nil {
		return nil, fmt.Errorf("encode user verification: %w", err)
	}
	return &models.User{
		ID:             p.ID,
		Email:          nullable(strings.ToLower(p.Email)),
		Username:       nullable(p.Username),
		Role:           string(p.Role),
		Status:         string(p.Status),
		Profile:        profile,
		Verification:   verification,
		SearchText:     strings.ToLower(strings.Join([]string{p.Username, p.Profile.DisplayName, p.Email}, " ")),
		PostsCount:     p.Stats.Posts,
		FollowersCount: p.Stats.Followers,
		FollowingCount: p.Stats.Following,
		LikesCount:     p.Stats.Likes,
		CommentsCount:  p.Stats.Comments,
		TotalEarnings:  p.Stats.TotalEarnings,
		CreatedAt:      p.CreatedAt.UTC(),
		UpdatedAt:      p.UpdatedAt.UTC(),
		LastLoginAt:    utcPtr(p.LastLoginAt),
	}, nil
}

// rowToUser validates role and status; a row carrying unknown values is
// reported as corrupt rather than silently coerced.
func rowToUser(row *models.User) (*domain.User, error) {
	role, err := domain.ParseUserRole(row.Role)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", row.ID, err)
	}
	status, err := domain.ParseUserStatus(row.Status)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", row.ID, err)
	}
	var profile domain.Profile
	if err := decodeJSON(row.Profile, &profile); err != nil {
		return nil, fmt.Errorf("decode user %s profile: %w", row.ID, err)
	}
	var verification domain.Verification
	if err := decodeJSON(row.Verification, &verification); err != nil {
		return nil, fmt.Errorf("decode user %s verification: %w", row.ID, err)
	}
	return domain.NewUser(domain.UserParams{
		ID:       row.ID,
		Email:    deref(row.Email),
		Username: deref(row.Username),
		Role:     role,
		Status:   status,
		Profile:  profile,
		Stats: domain.UserStats{
			Posts:         row.PostsCount,
			Followers:     row.FollowersCount,
			Following:     row.FollowingCount,
			Likes:         row.LikesCount,
			Comments:      row.CommentsCount,
			TotalEarnings: row.TotalEarnings,
		},
		Verification: verification,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
		LastLoginAt:  utcPtr(row.LastLoginAt),
	}), nil
}

func rowsToUsers(rows []models.User) ([]*domain.User, error) {
	out := make([]*domain.User, 0, len(rows))
	for i := range rows {
		u, err := rowToUser(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}
