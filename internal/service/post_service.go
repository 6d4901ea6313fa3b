package service

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"facefeed/internal/domain"
	"facefeed/internal/middleware"
	"facefeed/internal/models"
	"facefeed/internal/notifications"
	"facefeed/internal/observability"
	"facefeed/internal/repository"
	"facefeed/internal/validation"

	"go.opentelemetry.io/otel/attribute"
)

type PostService struct {
	tx         Transactor
	posts      repository.PostRepository
	comments   repository.CommentRepository
	likes      repository.LikeRepository
	users      repository.UserRepository
	engagement repository.EngagementRepository
	authz      *Authorizer
	activity   *ActivityLog
	media      MediaRemover
	events     notifications.Publisher
	videoHosts []string
}

type CreatePostInput struct {
	AuthorID    string
	Text        string
	VideoURL    string
	ImageURLs   []string
	Hashtags    []string
	Mentions    []string
	Privacy     string
	ScheduledAt *time.Time
}

// UpdatePostInput changes only the fields that are set. When Text changes and
// Hashtags/Mentions are nil, they are re-extracted from the new text.
type UpdatePostInput struct {
	ActorID   string
	PostID    string
	Text      *string
	VideoURL  *string
	ImageURLs []string
	Hashtags  []string
	Mentions  []string
	Privacy   *string
	IsPinned  *bool
}

type FeedInput struct {
	ViewerID string
	AuthorID string
	Limit    int
	Offset   int
}

// PageResult is one page of a listing plus the caller's own reactions to
// the items on it.
type PageResult[T any] struct {
	Items           []T                        `json:"items"`
	Total           int64                      `json:"total"`
	Limit           int                        `json:"limit"`
	Offset          int                        `json:"offset"`
	ViewerReactions map[string]domain.Reaction `json:"viewerReactions,omitempty"`
}

// PostDetail is a single post with its reaction breakdown.
type PostDetail struct {
	Post           *domain.Post              `json:"post"`
	Reactions      map[domain.Reaction]int64 `json:"reactions"`
	ViewerReaction domain.Reaction           `json:"viewerReaction,omitempty"`
}

type ShareResult struct {
	ShareID string       `json:"shareId"`
	Post    *domain.Post `json:"post"`
}

func NewPostService(d Deps) *PostService {
	hosts := d.VideoHosts
	if len(hosts) == 0 {
		hosts = validation.DefaultVideoHosts
	}
	return &PostService{
		tx:         d.Tx,
		posts:      d.Posts,
		comments:   d.Comments,
		likes:      d.Likes,
		users:      d.Users,
		engagement: d.Engagement,
		authz:      d.Authz,
		activity:   d.Activity,
		media:      d.Media,
		events:     publisherOrDiscard(d.Events),
		videoHosts: hosts,
	}
}

func (s *PostService) CreatePost(ctx context.Context, in CreatePostInput) (post *domain.Post, err error) {
	span, ctx := observability.StartSpan(ctx, "PostService.CreatePost", attribute.String("author_id", in.AuthorID))
	defer func() { span.End(err) }()

	if err := requireActor(in.AuthorID); err != nil {
		return nil, err
	}
	privacy, err := domain.ParsePrivacy(in.Privacy)
	if err != nil {
		return nil, models.NewValidationError("Invalid privacy setting")
	}
	content := domain.BuildPostContent(in.Text, in.VideoURL, trimAll(in.ImageURLs), in.Hashtags, in.Mentions)
	if err := validatePostContent(content, s.videoHosts); err != nil {
		return nil, err
	}
	if _, err := loadPublisher(ctx, s.users, s.authz, in.AuthorID, domain.PermPostCreate); err != nil {
		return nil, err
	}

	now := nowFunc()
	published := now
	var scheduled *time.Time
	if in.ScheduledAt != nil {
		at := in.ScheduledAt.UTC()
		if !at.After(now) {
			return nil, models.NewValidationError("Scheduled time must be in the future")
		}
		published, scheduled = at, &at
	}

	post = domain.NewPost(domain.PostParams{
		ID:          newID(),
		AuthorID:    in.AuthorID,
		Content:     content,
		Privacy:     privacy,
		CreatedAt:   now,
		UpdatedAt:   now,
		PublishedAt: &published,
		ScheduledAt: scheduled,
	})

	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.posts.Create(ctx, post); err != nil {
			return err
		}
		return s.users.AdjustStats(ctx, in.AuthorID, repository.UserStatsDelta{Posts: 1})
	})
	if err != nil {
		return nil, err
	}

	s.activity.Record(ctx, in.AuthorID, repository.ActionPostCreated, string(domain.TargetPost), post.ID(), map[string]any{
		"type": string(post.Type()),
	})
	if post.VisibleTo("") {
		s.events.Publish(ctx, notifications.Event{
			Type:    notifications.EventPostCreated,
			ActorID: in.AuthorID,
			PostID:  post.ID(),
			Payload: post,
		})
	}
	return post, nil
}

// GetPost returns a post the viewer may see. Authenticated viewers are
// counted once per post.
func (s *PostService) GetPost(ctx context.Context, postID, viewerID string) (*PostDetail, error) {
	post, err := s.visiblePost(ctx, postID, viewerID)
	if err != nil {
		return nil, err
	}

	if viewerID != "" && s.engagement != nil {
		counted := false
		err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
			isNew, err := s.engagement.RecordView(ctx, postID, viewerID)
			if err != nil || !isNew {
				return err
			}
			counted = true
			return s.posts.AdjustStats(ctx, postID, repository.PostStatsDelta{Views: 1})
		})
		if err != nil {
			return nil, err
		}
		if counted {
			if post, err = s.posts.FindByID(ctx, postID); err != nil {
				return nil, err
			}
		}
	}

	detail := &PostDetail{Post: post}
	if detail.Reactions, err = s.likes.CountByReaction(ctx, postID, domain.TargetPost); err != nil {
		return nil, err
	}
	if viewerID != "" {
		mine, err := s.likes.FindByUser(ctx, viewerID, domain.TargetPost, []string{postID})
		if err != nil {
			return nil, err
		}
		detail.ViewerReaction = mine[postID]
	}
	return detail, nil
}

// GetPostFeed returns published public posts newest first, optionally for
// one author. Authors see all of their own posts.
func (s *PostService) GetPostFeed(ctx context.Context, in FeedInput) (*PageResult[*domain.Post], error) {
	limit, offset := repository.NormalizePage(in.Limit, in.Offset)
	page, err := s.posts.FindWithPagination(ctx, repository.PostFilter{
		AuthorID: in.AuthorID,
		ViewerID: in.ViewerID,
		Limit:    limit,
		Offset:   offset,
		Now:      nowFunc(),
	})
	if err != nil {
		return nil, err
	}
	return s.postPage(ctx, page, in.ViewerID, limit, offset)
}

// GetUserPosts is the author-scoped feed; the author must exist.
func (s *PostService) GetUserPosts(ctx context.Context, authorID, viewerID string, limit, offset int) (*PageResult[*domain.Post], error) {
	if _, err := s.users.FindByID(ctx, authorID); err != nil {
		return nil, err
	}
	return s.GetPostFeed(ctx, FeedInput{ViewerID: viewerID, AuthorID: authorID, Limit: limit, Offset: offset})
}

func (s *PostService) SearchPosts(ctx context.Context, query, viewerID string, limit, offset int) (*PageResult[*domain.Post], error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, models.NewValidationError("Search query is required")
	}
	limit, offset = repository.NormalizePage(limit, offset)
	page, err := s.posts.Search(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	return s.postPage(ctx, page, viewerID, limit, offset)
}

func (s *PostService) UpdatePost(ctx context.Context, in UpdatePostInput) (*domain.Post, error) {
	if err := requireActor(in.ActorID); err != nil {
		return nil, err
	}
	post, err := s.posts.FindByID(ctx, in.PostID)
	if err != nil {
		return nil, err
	}
	if !post.IsOwnedBy(in.ActorID) {
		return nil, models.NewForbiddenError("Only the author can edit this post")
	}

	updated := post
	if in.Text != nil || in.VideoURL != nil || in.ImageURLs != nil || in.Hashtags != nil || in.Mentions != nil {
		cur := post.Content()
		text, video, images := cur.Text, cur.VideoURL, cur.ImageURLs
		hashtags, mentions := in.Hashtags, in.Mentions
		if in.Text != nil {
			text = *in.Text
		} else {
			if hashtags == nil {
				hashtags = cur.Hashtags
			}
			if mentions == nil {
				mentions = cur.Mentions
			}
		}
		if in.VideoURL != nil {
			video = *in.VideoURL
		}
		if in.ImageURLs != nil {
			images = trimAll(in.ImageURLs)
		}
		content := domain.BuildPostContent(text, video, images, hashtags, mentions)
		if err := validatePostContent(content, s.videoHosts); err != nil {
			return nil, err
		}
		updated = updated.UpdateContent(content)
	}
	if in.Privacy != nil {
		privacy, err := domain.ParsePrivacy(*in.Privacy)
		if err != nil {
			return nil, models.NewValidationError("Invalid privacy setting")
		}
		updated = updated.WithPrivacy(privacy)
	}
	if in.IsPinned != nil {
		updated = updated.WithPinned(*in.IsPinned)
	}
	if updated == post {
		return post, nil
	}

	if err := s.posts.Update(ctx, updated); err != nil {
		return nil, err
	}
	s.activity.Record(ctx, in.ActorID, repository.ActionPostUpdated, string(domain.TargetPost), post.ID(), nil)
	return updated, nil
}

// DeletePost removes the post with its likes, views and shares, and marks its
// comments deleted, in one transaction. The likes on those comments go too,
// and every affected user's counters are released. Media is removed after
// commit on a best-effort basis.
func (s *PostService) DeletePost(ctx context.Context, actorID, postID string) (err error) {
	span, ctx := observability.StartSpan(ctx, "PostService.DeletePost", attribute.String("post_id", postID))
	defer func() { span.End(err) }()

	if err := requireActor(actorID); err != nil {
		return err
	}
	post, err := s.posts.FindByID(ctx, postID)
	if err != nil {
		return err
	}
	if !post.IsOwnedBy(actorID) {
		ok, err := s.authz.Can(ctx, actorID, domain.PermPostDeleteAny)
		if err != nil {
			return err
		}
		if !ok {
			return models.NewForbiddenError("Only the author or a moderator can delete this post")
		}
	}

	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		postLikes, err := s.likes.DeleteByTarget(ctx, postID, domain.TargetPost)
		if err != nil {
			return err
		}
		deltas, err := s.releaseComments(ctx, postID)
		if err != nil {
			return err
		}
		if _, err := s.comments.MarkDeletedByPost(ctx, postID); err != nil {
			return err
		}
		if s.engagement != nil {
			if err := s.engagement.DeleteByPost(ctx, postID); err != nil {
				return err
			}
		}
		if err := s.posts.Delete(ctx, postID); err != nil {
			return err
		}
		author := deltas[post.AuthorID()]
		author.Posts--
		author.Likes -= postLikes
		deltas[post.AuthorID()] = author
		for _, id := range slices.Sorted(maps.Keys(deltas)) {
			if deltas[id] == (repository.UserStatsDelta{}) {
				continue
			}
			if err := s.users.AdjustStats(ctx, id, deltas[id]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.removeMedia(ctx, post)
	s.activity.Record(ctx, actorID, repository.ActionPostDeleted, string(domain.TargetPost), postID, map[string]any{
		"authorId": post.AuthorID(),
	})
	return nil
}

func (s *PostService) SharePost(ctx context.Context, actorID, postID, comment string) (*ShareResult, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	if s.engagement == nil {
		return nil, models.NewUnavailableError("Sharing is unavailable", nil)
	}
	comment = strings.TrimSpace(comment)
	if err := validation.ValidateTextLength("Share comment", comment, validation.MaxCommentTextLength); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if _, err := s.visiblePost(ctx, postID, actorID); err != nil {
		return nil, err
	}

	var shareID string
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		id, err := s.engagement.RecordShare(ctx, postID, actorID, comment)
		if err != nil {
			return err
		}
		shareID = id
		return s.posts.AdjustStats(ctx, postID, repository.PostStatsDelta{Shares: 1})
	})
	if err != nil {
		return nil, err
	}

	post, err := s.posts.FindByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	s.activity.Record(ctx, actorID, repository.ActionPostShared, string(domain.TargetPost), postID, map[string]any{
		"shareId": shareID,
	})
	return &ShareResult{ShareID: shareID, Post: post}, nil
}

// visiblePost loads a post and hides it as NOT_FOUND from viewers who may not see it.
func (s *PostService) visiblePost(ctx context.Context, postID, viewerID string) (*domain.Post, error) {
	return findVisiblePost(ctx, s.posts, postID, viewerID)
}

func (s *PostService) postPage(ctx context.Context, page repository.Page[*domain.Post], viewerID string, limit, offset int) (*PageResult[*domain.Post], error) {
	out := &PageResult[*domain.Post]{Items: page.Items, Total: page.Total, Limit: limit, Offset: offset}
	if out.Items == nil {
		out.Items = []*domain.Post{}
	}
	if viewerID == "" || len(page.Items) == 0 {
		return out, nil
	}
	ids := make([]string, 0, len(page.Items))
	for _, p := range page.Items {
		ids = append(ids, p.ID())
	}
	mine, err := s.likes.FindByUser(ctx, viewerID, domain.TargetPost, ids)
	if err != nil {
		return nil, err
	}
	out.ViewerReactions = mine
	return out, nil
}

// releaseComments deletes the likes on every comment of a post and returns
// the counter changes owed to the comment authors. Call it before the
// comments are marked deleted.
func (s *PostService) releaseComments(ctx context.Context, postID string) (map[string]repository.UserStatsDelta, error) {
	deltas := map[string]repository.UserStatsDelta{}
	for offset := 0; ; offset += repository.MaxLimit {
		page, err := s.comments.FindWithPagination(ctx, repository.CommentFilter{
			PostID:        postID,
			IncludeHidden: true,
			Limit:         repository.MaxLimit,
			Offset:        offset,
		})
		if err != nil {
			return nil, err
		}
		for _, c := range page.Items {
			n, err := s.likes.DeleteByTarget(ctx, c.ID(), domain.TargetComment)
			if err != nil {
				return nil, err
			}
			d := deltas[c.AuthorID()]
			d.Likes -= n
			if c.IsActive() {
				d.Comments--
			}
			deltas[c.AuthorID()] = d
		}
		if len(page.Items) < repository.MaxLimit {
			return deltas, nil
		}
	}
}

// removeMedia deletes the author's uploads attached to a deleted post,
// keeping any that another post still shows.
func (s *PostService) removeMedia(ctx context.Context, post *domain.Post) {
	if s.media == nil {
		return
	}
	content := post.Content()
	urls := append([]string{}, content.ImageURLs...)
	if content.VideoURL != "" {
		urls = append(urls, content.VideoURL)
	}
	for _, u := range urls {
		refs, err := s.posts.CountMediaReferences(ctx, u, post.ID())
		if err == nil && refs > 0 {
			continue
		}
		if err == nil {
			err = s.media.DeleteURL(ctx, post.AuthorID(), u)
		}
		if err != nil {
			middleware.Logger.WarnContext(ctx, "failed to delete post media",
				slog.String("url", u),
				slog.String("error", err.Error()),
			)
		}
	}
}

func findVisiblePost(ctx context.Context, posts repository.PostRepository, postID, viewerID string) (*domain.Post, error) {
	post, err := posts.FindByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if !post.VisibleTo(viewerID) {
		return nil, models.NewNotFoundError("Post", postID)
	}
	return post, nil
}

// loadPublisher returns the acting user when their account may create content
// and holds perm.
func loadPublisher(ctx context.Context, users repository.UserRepository, authz *Authorizer, userID string, perm domain.Permission) (*domain.User, error) {
	user, err := users.FindByID(ctx, userID)
	if err != nil {
		if models.HasCode(err, models.CodeNotFound) {
			return nil, models.NewUnauthorizedError("User account not found")
		}
		return nil, err
	}
	if !user.Status().CanPublish() {
		return nil, models.NewForbiddenError(fmt.Sprintf("Account is %s", user.Status()))
	}
	ok, err := authz.userCan(ctx, user, perm)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.NewForbiddenError("Insufficient permissions")
	}
	return user, nil
}

func validatePostContent(c domain.PostContent, videoHosts []string) error {
	if err := validation.ValidateTextLength("Post text", c.Text, validation.MaxPostTextLength); err != nil {
		return models.NewValidationError(err.Error())
	}
	if !c.HasText() && !c.HasVideo() {
		return models.NewValidationError("Post must have text or a video")
	}
	if c.HasVideo() {
		if err := validation.ValidateVideoURL(c.VideoURL, videoHosts); err != nil {
			return models.NewValidationError(err.Error())
		}
	}
	if len(c.ImageURLs) > validation.MaxImageURLs {
		return models.NewValidationError(fmt.Sprintf("Too many images (max %d)", validation.MaxImageURLs))
	}
	for _, u := range c.ImageURLs {
		if _, err := validation.ValidateHTTPURL(u); err != nil {
			return models.NewValidationError(err.Error())
		}
	}
	if len(c.Hashtags) > validation.MaxHashtags {
		return models.NewValidationError(fmt.Sprintf("Too many hashtags (max %d)", validation.MaxHashtags))
	}
	if len(c.Mentions) > validation.MaxMentions {
		return models.NewValidationError(fmt.Sprintf("Too many mentions (max %d)", validation.MaxMentions))
	}
	return nil
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
