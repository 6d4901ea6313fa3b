package service

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"facefeed/internal/biometric"
	"facefeed/internal/domain"
	"facefeed/internal/identity"
	"facefeed/internal/middleware"
	"facefeed/internal/models"
	"facefeed/internal/observability"
	"facefeed/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

const maxFaceIDLength = 128

const (
	FaceActionEnroll  = "enroll"
	FaceActionVerify  = "verify"
	FaceActionEnable  = "enable"
	FaceActionDisable = "disable"
	FaceActionDelete  = "delete"
)

var faceActions = []string{FaceActionEnroll, FaceActionVerify, FaceActionEnable, FaceActionDisable, FaceActionDelete}

// ReadinessSource reports whether the biometric provider is usable.
// *biometric.Loader implements it.
type ReadinessSource interface {
	Status() biometric.Readiness
}

// FaceStatus is a user's face-verification state as returned to clients.
type FaceStatus struct {
	Enrolled       bool           `json:"enrolled"`
	Enabled        bool           `json:"enabled"`
	Verified       bool           `json:"verified"`
	FaceID         string         `json:"faceId,omitempty"`
	EnrolledAt     *time.Time     `json:"enrolledAt,omitempty"`
	LastVerifiedAt *time.Time     `json:"lastVerifiedAt,omitempty"`
	Step           biometric.Step `json:"step"`
}

type FaceActionInput struct {
	UserID string
	Action string
	FaceID string
}

// FaceVerificationService keeps the enrollment in the identity provider's
// private metadata and mirrors it onto the local account.
type FaceVerificationService struct {
	users     repository.UserRepository
	directory identity.Directory
	readiness ReadinessSource
	client    biometric.Client
	activity  *ActivityLog
}

func NewFaceVerificationService(d Deps, directory identity.Directory, readiness ReadinessSource, client biometric.Client) *FaceVerificationService {
	return &FaceVerificationService{
		users:     d.Users,
		directory: directory,
		readiness: readiness,
		client:    client,
		activity:  d.Activity,
	}
}

// Status returns the caller's enrollment and onboarding step. It answers
// while the provider is still loading, with the step at checking.
func (s *FaceVerificationService) Status(ctx context.Context, userID string) (*FaceStatus, error) {
	if err := requireActor(userID); err != nil {
		return nil, err
	}
	r := s.readiness.Status()
	if r.State == biometric.StateFailed {
		return nil, models.NewUnavailableError("Face verification is unavailable", r.Err)
	}
	e, err := s.enrollment(ctx, userID)
	if err != nil {
		return nil, err
	}
	return faceStatus(r, e), nil
}

// Apply runs one face-verification action for the caller.
func (s *FaceVerificationService) Apply(ctx context.Context, in FaceActionInput) (status *FaceStatus, err error) {
	action := strings.ToLower(strings.TrimSpace(in.Action))
	span, ctx := observability.StartSpan(ctx, "FaceVerificationService.Apply", attribute.String("face.action", action))
	defer func() { span.End(err) }()
	defer func() { observeFaceAction(action, err) }()

	if err := requireActor(in.UserID); err != nil {
		return nil, err
	}
	if !slices.Contains(faceActions, action) {
		return nil, models.NewValidationError("Invalid action")
	}
	faceID := strings.TrimSpace(in.FaceID)
	if len(faceID) > maxFaceIDLength {
		return nil, models.NewValidationError("faceId is too long")
	}
	r := s.readiness.Status()
	if !r.Ready() {
		return nil, models.NewUnavailableError("Face verification is unavailable", r.Err)
	}

	e, err := s.enrollment(ctx, in.UserID)
	if err != nil {
		return nil, err
	}

	now := nowFunc()
	var (
		patch    map[string]any
		mirror   func(*domain.User) *domain.User
		activity string
	)
	switch action {
	case FaceActionEnroll:
		if faceID == "" {
			return nil, models.NewValidationError("faceId is required")
		}
		if e.FaceID != "" && e.FaceID != faceID {
			s.deleteFace(ctx, e.FaceID)
		}
		e = biometric.Enrollment{FaceID: faceID, Enrolled: true, Enabled: true, EnrolledAt: &now}
		patch = e.Metadata()
		mirror = func(u *domain.User) *domain.User { return u.EnrollBiometric(faceID) }
		activity = repository.ActionFaceEnrolled
	case FaceActionVerify:
		if !e.Enrolled {
			return nil, models.NewValidationError("Face verification is not enrolled")
		}
		if faceID == "" {
			return nil, models.NewValidationError("faceId is required")
		}
		if faceID != e.FaceID {
			return nil, models.NewForbiddenError("Face does not match the enrolled face")
		}
		e.Verified = true
		e.LastVerifiedAt = &now
		patch = e.Metadata()
		mirror = func(u *domain.User) *domain.User { return u.VerifyBiometric(now) }
		activity = repository.ActionFaceVerified
	case FaceActionEnable:
		if !e.Enrolled {
			return nil, models.NewValidationError("Face verification is not enrolled")
		}
		e.Enabled = true
		patch = e.Metadata()
	case FaceActionDisable:
		e.Enabled = false
		patch = e.Metadata()
	case FaceActionDelete:
		if e.FaceID == "" {
			return faceStatus(r, biometric.Enrollment{}), nil
		}
		if s.client != nil {
			if err := s.client.DeleteFace(ctx, e.FaceID); err != nil {
				return nil, models.NewUnavailableError("Face verification is unavailable", err)
			}
		}
		e = biometric.Enrollment{}
		patch = biometric.ClearedMetadata()
		mirror = (*domain.User).ClearBiometric
		activity = repository.ActionFaceDeleted
	}

	if err := s.directory.UpdatePrivateMetadata(ctx, in.UserID, patch); err != nil {
		return nil, err
	}
	if mirror != nil {
		if err := s.mirror(ctx, in.UserID, mirror); err != nil {
			return nil, err
		}
	}
	if activity != "" {
		s.activity.Record(ctx, in.UserID, activity, "user", in.UserID, nil)
	}
	return faceStatus(r, e), nil
}

func (s *FaceVerificationService) enrollment(ctx context.Context, userID string) (biometric.Enrollment, error) {
	du, err := s.directory.GetUser(ctx, userID)
	if err != nil {
		return biometric.Enrollment{}, err
	}
	return biometric.EnrollmentFromMetadata(du.PrivateMetadata), nil
}

// mirror copies the enrollment onto the local account, which may not have
// been provisioned yet.
func (s *FaceVerificationService) mirror(ctx context.Context, userID string, apply func(*domain.User) *domain.User) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if models.HasCode(err, models.CodeNotFound) {
			return nil
		}
		return err
	}
	return s.users.Update(ctx, apply(user))
}

// deleteFace drops a replaced facial id. Failures only leave an orphan at
// the provider.
func (s *FaceVerificationService) deleteFace(ctx context.Context, faceID string) {
	if s.client == nil {
		return
	}
	if err := s.client.DeleteFace(ctx, faceID); err != nil {
		middleware.Logger.WarnContext(ctx, "failed to delete replaced face",
			slog.String("error", err.Error()),
		)
	}
}

func faceStatus(r biometric.Readiness, e biometric.Enrollment) *FaceStatus {
	return &FaceStatus{
		Enrolled:       e.Enrolled,
		Enabled:        e.Enabled,
		Verified:       e.Verified,
		FaceID:         e.FaceID,
		EnrolledAt:     e.EnrolledAt,
		LastVerifiedAt: e.LastVerifiedAt,
		Step:           biometric.NextStep(r, e),
	}
}

func observeFaceAction(action string, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case models.HasCode(err, models.CodeForbidden):
		outcome = "rejected"
	case models.HasCode(err, models.CodeValidation):
		outcome = "invalid"
	default:
		outcome = "error"
	}
	if !slices.Contains(faceActions, action) {
		action = "unknown"
	}
	observability.FaceVerificationActions.WithLabelValues(action, outcome).Inc()
}
