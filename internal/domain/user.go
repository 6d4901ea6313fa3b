package domain

import (
	"encoding/json"
	"maps"
	"time"
)

// Preferences are the user's UI and notification choices.
type Preferences struct {
	Theme              string `json:"theme"`
	Language           string `json:"language"`
	EmailNotifications bool   `json:"emailNotifications"`
	PushNotifications  bool   `json:"pushNotifications"`
	ProfileVisibility  string `json:"profileVisibility"`
}

// DefaultPreferences are applied to newly provisioned users.
func DefaultPreferences() Preferences {
	return Preferences{
		Theme:              "system",
		Language:           "en",
		EmailNotifications: true,
		PushNotifications:  true,
		ProfileVisibility:  "public",
	}
}

type Profile struct {
	DisplayName string            `json:"displayName"`
	Bio         string            `json:"bio,omitempty"`
	AvatarURL   string            `json:"avatarUrl,omitempty"`
	SocialLinks map[string]string `json:"socialLinks,omitempty"`
	Preferences Preferences       `json:"preferences"`
}

// Clone returns a deep copy.
func (p Profile) Clone() Profile {
	if len(p.SocialLinks) == 0 {
		p.SocialLinks = nil
	} else {
		p.SocialLinks = maps.Clone(p.SocialLinks)
	}
	return p
}

type UserStats struct {
	Posts         int64   `json:"postsCount"`
	Followers     int64   `json:"followersCount"`
	Following     int64   `json:"followingCount"`
	Likes         int64   `json:"likesCount"`
	Comments      int64   `json:"commentsCount"`
	TotalEarnings float64 `json:"totalEarnings"`
}

// Verification holds identity checks. BiometricID is the opaque face id
// issued by the biometric provider; no biometric data is stored.
type Verification struct {
	EmailVerified       bool       `json:"emailVerified"`
	PhoneVerified       bool       `json:"phoneVerified"`
	IdentityVerified    bool       `json:"identityVerified"`
	BiometricEnrolled   bool       `json:"biometricEnrolled"`
	BiometricID         string     `json:"biometricId,omitempty"`
	BiometricVerifiedAt *time.Time `json:"biometricVerifiedAt,omitempty"`
}

func (v Verification) Clone() Verification {
	v.BiometricVerifiedAt = cloneTime(v.BiometricVerifiedAt)
	return v
}

type UserParams struct {
	ID           string
	Email        string
	Username     string
	Role         UserRole
	Status       UserStatus
	Profile      Profile
	Stats        UserStats
	Verification Verification
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastLoginAt  *time.Time
}

// User is an immutable account. Role and status are validated by
// ParseUserRole and ParseUserStatus before they reach NewUser.
type User struct {
	p UserParams
}

func NewUser(p UserParams) *User {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = nowFunc()
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	if p.Role == "" {
		p.Role = RoleUser
	}
	if p.Status == "" {
		p.Status = StatusActive
	}
	p.Profile = p.Profile.Clone()
	p.Verification = p.Verification.Clone()
	p.LastLoginAt = cloneTime(p.LastLoginAt)
	p.Stats = floorUserStats(p.Stats)
	return &User{p: p}
}

func (u *User) Params() UserParams {
	p := u.p
	p.Profile = p.Profile.Clone()
	p.Verification = p.Verification.Clone()
	p.LastLoginAt = cloneTime(p.LastLoginAt)
	return p
}

func (u *User) ID() string                 { return u.p.ID }
func (u *User) Email() string              { return u.p.Email }
func (u *User) Username() string           { return u.p.Username }
func (u *User) Role() UserRole             { return u.p.Role }
func (u *User) Status() UserStatus         { return u.p.Status }
func (u *User) Profile() Profile           { return u.p.Profile.Clone() }
func (u *User) Stats() UserStats           { return u.p.Stats }
func (u *User) Verification() Verification { return u.p.Verification.Clone() }
func (u *User) CreatedAt() time.Time       { return u.p.CreatedAt }
func (u *User) UpdatedAt() time.Time       { return u.p.UpdatedAt }
func (u *User) LastLoginAt() *time.Time    { return cloneTime(u.p.LastLoginAt) }

// HasPermission reports whether the user's role grants perm. Per-user grants
// are layered on top by the service layer.
func (u *User) HasPermission(perm Permission) bool {
	return u.p.Role.Can(perm)
}

func (u *User) with(mutate func(*UserParams)) *User {
	params := u.Params()
	mutate(&params)
	params.UpdatedAt = nowFunc()
	return NewUser(params)
}

func (u *User) WithEmail(email string) *User {
	return u.with(func(p *UserParams) { p.Email = email })
}

func (u *User) WithUsername(username string) *User {
	return u.with(func(p *UserParams) { p.Username = username })
}

func (u *User) WithRole(role UserRole) *User {
	return u.with(func(p *UserParams) { p.Role = role })
}

func (u *User) WithStatus(status UserStatus) *User {
	return u.with(func(p *UserParams) { p.Status = status })
}

func (u *User) WithProfile(profile Profile) *User {
	return u.with(func(p *UserParams) { p.Profile = profile })
}

func (u *User) WithPreferences(prefs Preferences) *User {
	return u.with(func(p *UserParams) { p.Profile.Preferences = prefs })
}

func (u *User) WithStats(stats UserStats) *User {
	return u.with(func(p *UserParams) { p.Stats = stats })
}

func (u *User) RecordLogin(at time.Time) *User {
	return u.with(func(p *UserParams) { p.LastLoginAt = &at })
}

// EnrollBiometric stores the provider-issued face id.
func (u *User) EnrollBiometric(faceID string) *User {
	return u.with(func(p *UserParams) {
		p.Verification.BiometricEnrolled = true
		p.Verification.BiometricID = faceID
		p.Verification.BiometricVerifiedAt = nil
	})
}

func (u *User) VerifyBiometric(at time.Time) *User {
	return u.with(func(p *UserParams) { p.Verification.BiometricVerifiedAt = &at })
}

func (u *User) ClearBiometric() *User {
	return u.with(func(p *UserParams) {
		p.Verification.BiometricEnrolled = false
		p.Verification.BiometricID = ""
		p.Verification.BiometricVerifiedAt = nil
	})
}

func floorUserStats(s UserStats) UserStats {
	s.Posts = max(s.Posts, 0)
	s.Followers = max(s.Followers, 0)
	s.Following = max(s.Following, 0)
	s.Likes = max(s.Likes, 0)
	s.Comments = max(s.Comments, 0)
	s.TotalEarnings = max(s.TotalEarnings, 0)
	return s
}

type userJSON struct {
	ID           string       `json:"id"`
	Email        string       `json:"email"`
	Username     string       `json:"username"`
	Role         UserRole     `json:"role"`
	Status       UserStatus   `json:"status"`
	Profile      Profile      `json:"profile"`
	Stats        UserStats    `json:"stats"`
	Verification Verification `json:"verification"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
	LastLoginAt  *time.Time   `json:"lastLoginAt,omitempty"`
}

// MarshalJSON renders the user. The biometric id stays server side.
func (u *User) MarshalJSON() ([]byte, error) {
	v := u.p.Verification
	v.BiometricID = ""
	return json.Marshal(userJSON{
		ID:           u.p.ID,
		Email:        u.p.Email,
		Username:     u.p.Username,
		Role:         u.p.Role,
		Status:       u.p.Status,
		Profile:      u.p.Profile,
		Stats:        u.p.Stats,
		Verification: v,
		CreatedAt:    u.p.CreatedAt,
		UpdatedAt:    u.p.UpdatedAt,
		LastLoginAt:  u.p.LastLoginAt,
	})
}

// PublicView hides contact details from other users.
func (u *User) PublicView() *User {
	p := u.Params()
	p.Email = ""
	return &User{p: p}
}
