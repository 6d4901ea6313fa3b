package biometric

import "time"

// Metadata keys stored in the identity provider's private metadata.
const (
	KeyFaceID         = "faceId"
	KeyEnrolled       = "faceEnrolled"
	KeyEnabled        = "faceEnabled"
	KeyVerified       = "faceVerified"
	KeyEnrolledAt     = "faceEnrolledAt"
	KeyLastVerifiedAt = "faceLastVerifiedAt"
)

// Enrollment is the face-verification state of one user.
type Enrollment struct {
	FaceID         string
	Enrolled       bool
	Enabled        bool
	Verified       bool
	EnrolledAt     *time.Time
	LastVerifiedAt *time.Time
}

// EnrollmentFromMetadata reads the enrollment out of provider metadata.
// Unknown or mistyped values read as their zero value.
func EnrollmentFromMetadata(md map[string]any) Enrollment {
	e := Enrollment{
		FaceID:         stringValue(md[KeyFaceID]),
		Enrolled:       boolValue(md[KeyEnrolled]),
		Enabled:        boolValue(md[KeyEnabled]),
		Verified:       boolValue(md[KeyVerified]),
		EnrolledAt:     timeValue(md[KeyEnrolledAt]),
		LastVerifiedAt: timeValue(md[KeyLastVerifiedAt]),
	}
	if e.FaceID == "" {
		e.Enrolled = false
	}
	return e
}

// Metadata renders the enrollment as a metadata patch. Cleared fields are
// nil so the provider drops them.
func (e Enrollment) Metadata() map[string]any {
	md := map[string]any{
		KeyFaceID:         nil,
		KeyEnrolled:       e.Enrolled,
		KeyEnabled:        e.Enabled,
		KeyVerified:       e.Verified,
		KeyEnrolledAt:     nil,
		KeyLastVerifiedAt: nil,
	}
	if e.FaceID != "" {
		md[KeyFaceID] = e.FaceID
	}
	if e.EnrolledAt != nil {
		md[KeyEnrolledAt] = e.EnrolledAt.UTC().Format(time.RFC3339)
	}
	if e.LastVerifiedAt != nil {
		md[KeyLastVerifiedAt] = e.LastVerifiedAt.UTC().Format(time.RFC3339)
	}
	return md
}

// ClearedMetadata removes every face-verification key.
func ClearedMetadata() map[string]any {
	return map[string]any{
		KeyFaceID:         nil,
		KeyEnrolled:       nil,
		KeyEnabled:        nil,
		KeyVerified:       nil,
		KeyEnrolledAt:     nil,
		KeyLastVerifiedAt: nil,
	}
}

// Step is where a user stands in face-verification onboarding.
type Step string

const (
	StepChecking          Step = "checking"
	StepNeedsEnrollment   Step = "needs_enrollment"
	StepNeedsVerification Step = "needs_verification"
	StepComplete          Step = "complete"
)

// NextStep derives the onboarding step. While the provider is still loading
// the step stays at checking. A user who turned verification off is complete.
func NextStep(r Readiness, e Enrollment) Step {
	switch {
	case r.State == StatePending:
		return StepChecking
	case !e.Enrolled:
		return StepNeedsEnrollment
	case e.Enabled && !e.Verified:
		return StepNeedsVerification
	default:
		return StepComplete
	}
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func boolValue(v any) bool {
	b, _ := v.(bool)
	return b
}

func timeValue(v any) *time.Time {
	switch t := v.(type) {
	case time.Time:
		return &t
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return nil
		}
		return &parsed
	}
	return nil
}
