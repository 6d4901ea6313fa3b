package service

import (
	"context"

	"facefeed/internal/domain"
	"facefeed/internal/models"
	"facefeed/internal/notifications"
	"facefeed/internal/observability"
	"facefeed/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

// ReactionAction says what a toggle did.
type ReactionAction string

const (
	ReactionAdded   ReactionAction = "added"
	ReactionRemoved ReactionAction = "removed"
	ReactionChanged ReactionAction = "changed"
)

// ReactionResult is the state of the target after a toggle. Reaction is
// empty when the caller's reaction was removed.
type ReactionResult struct {
	Action     ReactionAction            `json:"action"`
	Reaction   domain.Reaction           `json:"reaction,omitempty"`
	LikesCount int64                     `json:"likesCount"`
	Reactions  map[domain.Reaction]int64 `json:"reactions"`
}

type ReactionService struct {
	tx       Transactor
	posts    repository.PostRepository
	comments repository.CommentRepository
	likes    repository.LikeRepository
	users    repository.UserRepository
	authz    *Authorizer
	activity *ActivityLog
	events   notifications.Publisher
}

func NewReactionService(d Deps) *ReactionService {
	return &ReactionService{
		tx:       d.Tx,
		posts:    d.Posts,
		comments: d.Comments,
		likes:    d.Likes,
		users:    d.Users,
		authz:    d.Authz,
		activity: d.Activity,
		events:   publisherOrDiscard(d.Events),
	}
}

// LikePost toggles the caller's reaction on a post: no reaction adds one,
// the same reaction removes it and a different reaction replaces it.
func (s *ReactionService) LikePost(ctx context.Context, userID, postID, reaction string) (res *ReactionResult, err error) {
	span, ctx := observability.StartSpan(ctx, "ReactionService.LikePost", attribute.String("post_id", postID))
	defer func() { span.End(err) }()

	r, err := s.prepare(ctx, userID, reaction)
	if err != nil {
		return nil, err
	}
	post, err := findVisiblePost(ctx, s.posts, postID, userID)
	if err != nil {
		return nil, err
	}

	action, err := s.toggle(ctx, userID, postID, domain.TargetPost, r, post.AuthorID(), func(ctx context.Context, delta int64) error {
		return s.posts.AdjustStats(ctx, postID, repository.PostStatsDelta{Likes: delta})
	})
	if err != nil {
		return nil, err
	}

	updated, err := s.posts.FindByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	res, err = s.result(ctx, postID, domain.TargetPost, action, r, updated.Stats().Likes)
	if err != nil {
		return nil, err
	}
	event := notifications.Event{
		Type:    notifications.EventPostReactionUpdated,
		ActorID: userID,
		PostID:  postID,
		Payload: map[string]any{
			"likesCount": res.LikesCount,
			"reactions":  res.Reactions,
		},
	}
	if !updated.VisibleTo("") {
		event.Recipient = updated.AuthorID()
	}
	s.events.Publish(ctx, event)
	return res, nil
}

// LikeComment toggles the caller's reaction on an active comment of postID.
func (s *ReactionService) LikeComment(ctx context.Context, userID, postID, commentID, reaction string) (*ReactionResult, error) {
	r, err := s.prepare(ctx, userID, reaction)
	if err != nil {
		return nil, err
	}
	if _, err := findVisiblePost(ctx, s.posts, postID, userID); err != nil {
		return nil, err
	}
	comment, err := s.comments.FindByID(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if !comment.BelongsTo(postID) || !comment.IsActive() {
		return nil, models.NewNotFoundError("Comment", commentID)
	}

	action, err := s.toggle(ctx, userID, commentID, domain.TargetComment, r, comment.AuthorID(), func(ctx context.Context, delta int64) error {
		return s.comments.AdjustStats(ctx, commentID, repository.CommentStatsDelta{Likes: delta})
	})
	if err != nil {
		return nil, err
	}

	updated, err := s.comments.FindByID(ctx, commentID)
	if err != nil {
		return nil, err
	}
	return s.result(ctx, commentID, domain.TargetComment, action, r, updated.Stats().Likes)
}

func (s *ReactionService) prepare(ctx context.Context, userID, reaction string) (domain.Reaction, error) {
	if err := requireActor(userID); err != nil {
		return "", err
	}
	r, err := domain.ParseReaction(reaction)
	if err != nil {
		return "", models.NewValidationError("Invalid reaction")
	}
	if _, err := loadPublisher(ctx, s.users, s.authz, userID, domain.PermReact); err != nil {
		return "", err
	}
	return r, nil
}

// toggle applies the reaction and the matching counter changes in one
// transaction. adjust moves the target's like counter.
func (s *ReactionService) toggle(
	ctx context.Context,
	userID, targetID string,
	targetType domain.TargetType,
	r domain.Reaction,
	ownerID string,
	adjust func(ctx context.Context, delta int64) error,
) (ReactionAction, error) {
	var action ReactionAction
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		existing, err := s.likes.Find(ctx, userID, targetID, targetType)
		if err != nil && !models.HasCode(err, models.CodeNotFound) {
			return err
		}

		var delta int64
		switch {
		case existing == nil:
			like := domain.NewLike(domain.LikeParams{
				ID:         newID(),
				UserID:     userID,
				TargetID:   targetID,
				TargetType: targetType,
				Reaction:   r,
				CreatedAt:  nowFunc(),
			})
			if err := s.likes.Create(ctx, like); err != nil {
				return err
			}
			action, delta = ReactionAdded, 1
		case existing.Reaction() == r:
			if err := s.likes.Delete(ctx, existing.ID()); err != nil {
				return err
			}
			action, delta = ReactionRemoved, -1
		default:
			action = ReactionChanged
			return s.likes.Update(ctx, existing.UpdateReaction(r))
		}

		if err := adjust(ctx, delta); err != nil {
			return err
		}
		return s.users.AdjustStats(ctx, ownerID, repository.UserStatsDelta{Likes: delta})
	})
	if err != nil {
		return "", err
	}

	activity := repository.ActionReactionSet
	if action == ReactionRemoved {
		activity = repository.ActionReactionRemoved
	}
	s.activity.Record(ctx, userID, activity, string(targetType), targetID, map[string]any{
		"reaction": string(r),
	})
	return action, nil
}

func (s *ReactionService) result(ctx context.Context, targetID string, targetType domain.TargetType, action ReactionAction, r domain.Reaction, likes int64) (*ReactionResult, error) {
	counts, err := s.likes.CountByReaction(ctx, targetID, targetType)
	if err != nil {
		return nil, err
	}
	res := &ReactionResult{Action: action, Reaction: r, LikesCount: likes, Reactions: counts}
	if action == ReactionRemoved {
		res.Reaction = ""
	}
	return res, nil
}
