package service

import (
	"context"
	"strings"

	"facefeed/internal/domain"
	"facefeed/internal/models"
	"facefeed/internal/notifications"
	"facefeed/internal/observability"
	"facefeed/internal/repository"
	"facefeed/internal/validation"

	"go.opentelemetry.io/otel/attribute"
)

type CommentService struct {
	tx       Transactor
	posts    repository.PostRepository
	comments repository.CommentRepository
	users    repository.UserRepository
	authz    *Authorizer
	activity *ActivityLog
	events   notifications.Publisher
}

type CreateCommentInput struct {
	AuthorID string
	PostID   string
	ParentID string
	Text     string
}

type UpdateCommentInput struct {
	ActorID   string
	PostID    string
	CommentID string
	Text      string
}

// ListCommentsInput pages a post's comments. With ParentID set only its
// replies are listed; otherwise only top-level comments.
type ListCommentsInput struct {
	ViewerID string
	PostID   string
	ParentID string
	Limit    int
	Offset   int
}

func NewCommentService(d Deps) *CommentService {
	return &CommentService{
		tx:       d.Tx,
		posts:    d.Posts,
		comments: d.Comments,
		users:    d.Users,
		authz:    d.Authz,
		activity: d.Activity,
		events:   publisherOrDiscard(d.Events),
	}
}

func (s *CommentService) CreateComment(ctx context.Context, in CreateCommentInput) (comment *domain.Comment, err error) {
	span, ctx := observability.StartSpan(ctx, "CommentService.CreateComment", attribute.String("post_id", in.PostID))
	defer func() { span.End(err) }()

	if err := requireActor(in.AuthorID); err != nil {
		return nil, err
	}
	text := strings.TrimSpace(in.Text)
	if err := validateCommentText(text); err != nil {
		return nil, err
	}
	if _, err := loadPublisher(ctx, s.users, s.authz, in.AuthorID, domain.PermCommentCreate); err != nil {
		return nil, err
	}
	post, err := findVisiblePost(ctx, s.posts, in.PostID, in.AuthorID)
	if err != nil {
		return nil, err
	}

	if in.ParentID != "" {
		parent, err := s.comments.FindByID(ctx, in.ParentID)
		if err != nil {
			return nil, err
		}
		if !parent.BelongsTo(post.ID()) {
			return nil, models.NewValidationError("Parent comment does not belong to this post")
		}
		if !parent.IsActive() {
			return nil, models.NewValidationError("Cannot reply to a removed comment")
		}
	}

	now := nowFunc()
	comment = domain.NewComment(domain.CommentParams{
		ID:        newID(),
		PostID:    post.ID(),
		AuthorID:  in.AuthorID,
		ParentID:  in.ParentID,
		Content:   domain.BuildCommentContent(text),
		CreatedAt: now,
		UpdatedAt: now,
	})

	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.comments.Create(ctx, comment); err != nil {
			return err
		}
		if err := s.posts.AdjustStats(ctx, post.ID(), repository.PostStatsDelta{Comments: 1}); err != nil {
			return err
		}
		if in.ParentID != "" {
			if err := s.comments.AdjustStats(ctx, in.ParentID, repository.CommentStatsDelta{Replies: 1}); err != nil {
				return err
			}
		}
		return s.users.AdjustStats(ctx, in.AuthorID, repository.UserStatsDelta{Comments: 1})
	})
	if err != nil {
		return nil, err
	}

	s.activity.Record(ctx, in.AuthorID, repository.ActionCommentCreated, string(domain.TargetComment), comment.ID(), map[string]any{
		"postId": post.ID(),
	})
	event := notifications.Event{
		Type:      notifications.EventCommentCreated,
		ActorID:   in.AuthorID,
		PostID:    post.ID(),
		CommentID: comment.ID(),
		Payload:   comment,
	}
	if !post.VisibleTo("") {
		event.Recipient = post.AuthorID()
		s.events.Publish(ctx, event)
		return comment, nil
	}
	s.events.Publish(ctx, event)
	if !post.IsOwnedBy(in.AuthorID) {
		s.events.Publish(ctx, notifications.Event{
			Type:      notifications.EventCommentCreated,
			Recipient: post.AuthorID(),
			ActorID:   in.AuthorID,
			PostID:    post.ID(),
			CommentID: comment.ID(),
		})
	}
	return comment, nil
}

func (s *CommentService) GetComments(ctx context.Context, in ListCommentsInput) (*PageResult[*domain.Comment], error) {
	if _, err := findVisiblePost(ctx, s.posts, in.PostID, in.ViewerID); err != nil {
		return nil, err
	}
	limit, offset := repository.NormalizePage(in.Limit, in.Offset)
	page, err := s.comments.FindWithPagination(ctx, repository.CommentFilter{
		PostID:       in.PostID,
		ParentID:     in.ParentID,
		TopLevelOnly: in.ParentID == "",
		Limit:        limit,
		Offset:       offset,
	})
	if err != nil {
		return nil, err
	}
	out := &PageResult[*domain.Comment]{Items: page.Items, Total: page.Total, Limit: limit, Offset: offset}
	if out.Items == nil {
		out.Items = []*domain.Comment{}
	}
	return out, nil
}

func (s *CommentService) UpdateComment(ctx context.Context, in UpdateCommentInput) (*domain.Comment, error) {
	if err := requireActor(in.ActorID); err != nil {
		return nil, err
	}
	text := strings.TrimSpace(in.Text)
	if err := validateCommentText(text); err != nil {
		return nil, err
	}
	comment, err := s.findInPost(ctx, in.PostID, in.CommentID)
	if err != nil {
		return nil, err
	}
	if !comment.IsOwnedBy(in.ActorID) {
		return nil, models.NewForbiddenError("Only the author can edit this comment")
	}
	if !comment.IsActive() {
		return nil, models.NewValidationError("Comment can no longer be edited")
	}

	updated := comment.UpdateContent(domain.BuildCommentContent(text))
	if err := s.comments.Update(ctx, updated); err != nil {
		return nil, err
	}
	s.activity.Record(ctx, in.ActorID, repository.ActionCommentUpdated, string(domain.TargetComment), comment.ID(), nil)
	return updated, nil
}

// DeleteComment marks the comment deleted and releases its counters. Deleting
// an already deleted comment succeeds without changes.
func (s *CommentService) DeleteComment(ctx context.Context, actorID, postID, commentID string) error {
	if err := requireActor(actorID); err != nil {
		return err
	}
	comment, err := s.findInPost(ctx, postID, commentID)
	if err != nil {
		return err
	}
	if !comment.IsOwnedBy(actorID) {
		ok, err := s.authz.Can(ctx, actorID, domain.PermCommentModerate)
		if err != nil {
			return err
		}
		if !ok {
			return models.NewForbiddenError("Only the author or a moderator can delete this comment")
		}
	}
	if comment.Status() == domain.CommentDeleted {
		return nil
	}
	wasCounted := comment.IsActive()

	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.comments.Update(ctx, comment.MarkAsDeleted()); err != nil {
			return err
		}
		if !wasCounted {
			return nil
		}
		if err := s.posts.AdjustStats(ctx, postID, repository.PostStatsDelta{Comments: -1}); err != nil {
			return err
		}
		if comment.IsReply() {
			if err := s.comments.AdjustStats(ctx, comment.ParentID(), repository.CommentStatsDelta{Replies: -1}); err != nil {
				return err
			}
		}
		return s.users.AdjustStats(ctx, comment.AuthorID(), repository.UserStatsDelta{Comments: -1})
	})
	if err != nil {
		return err
	}

	s.activity.Record(ctx, actorID, repository.ActionCommentDeleted, string(domain.TargetComment), commentID, map[string]any{
		"postId": postID,
	})
	event := notifications.Event{
		Type:      notifications.EventCommentDeleted,
		ActorID:   actorID,
		PostID:    postID,
		CommentID: commentID,
	}
	post, err := s.posts.FindByID(ctx, postID)
	if err != nil {
		return nil
	}
	if !post.VisibleTo("") {
		event.Recipient = post.AuthorID()
	}
	s.events.Publish(ctx, event)
	return nil
}

// findInPost loads a comment and hides it as NOT_FOUND when it lives under
// another post.
func (s *CommentService) findInPost(ctx context.Context, postID, commentID string) (*domain.Comment, error) {
	comment, err := s.comments.FindByID(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if !comment.BelongsTo(postID) {
		return nil, models.NewNotFoundError("Comment", commentID)
	}
	return comment, nil
}

func validateCommentText(text string) error {
	if text == "" {
		return models.NewValidationError("Comment text is required")
	}
	if err := validation.ValidateTextLength("Comment text", text, validation.MaxCommentTextLength); err != nil {
		return models.NewValidationError(err.Error())
	}
	return nil
}
