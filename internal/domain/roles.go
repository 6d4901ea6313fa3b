// Package domain holds the content and user entities. Entities are immutable:
// every update method returns a new instance and leaves the receiver untouched.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidRole       = errors.New("invalid user role")
	ErrInvalidStatus     = errors.New("invalid user status")
	ErrInvalidPermission = errors.New("invalid permission")
)

// UserRole is one of the fixed account roles.
type UserRole string

const (
	RoleUser      UserRole = "user"
	RoleModerator UserRole = "moderator"
	RoleAdmin     UserRole = "admin"
	RoleCreator   UserRole = "creator"
	RoleSeller    UserRole = "seller"
	RoleBuyer     UserRole = "buyer"
)

// Permission names an action checked by the use-cases.
type Permission string

const (
	PermPostCreate       Permission = "post:create"
	PermPostDeleteAny    Permission = "post:delete:any"
	PermCommentCreate    Permission = "comment:create"
	PermCommentModerate  Permission = "comment:moderate"
	PermReact            Permission = "reaction:create"
	PermUserManage       Permission = "user:manage"
	PermContentMonetize  Permission = "content:monetize"
	PermAnalyticsView    Permission = "analytics:view"
	PermStoreSell        Permission = "store:sell"
	PermStoreBuy         Permission = "store:buy"
	PermModerationQueue  Permission = "moderation:queue"
	PermFeatureFlagsView Permission = "feature_flags:view"
)

// AllPermissions lists every permission name.
var AllPermissions = []Permission{
	PermPostCreate, PermPostDeleteAny, PermCommentCreate, PermCommentModerate,
	PermReact, PermUserManage, PermContentMonetize, PermAnalyticsView,
	PermStoreSell, PermStoreBuy, PermModerationQueue, PermFeatureFlagsView,
}

// ParsePermission validates s against the permission names.
func ParsePermission(s string) (Permission, error) {
	p := Permission(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllPermissions {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPermission, s)
}

var basePermissions = []Permission{PermPostCreate, PermCommentCreate, PermReact}

var rolePermissions = map[UserRole][]Permission{
	RoleUser: basePermissions,
	RoleModerator: append(append([]Permission{}, basePermissions...),
		PermPostDeleteAny, PermCommentModerate, PermModerationQueue),
	RoleAdmin: append(append([]Permission{}, basePermissions...),
		PermPostDeleteAny, PermCommentModerate, PermModerationQueue,
		PermUserManage, PermAnalyticsView, PermFeatureFlagsView),
	RoleCreator: append(append([]Permission{}, basePermissions...),
		PermContentMonetize, PermAnalyticsView),
	RoleSeller: append(append([]Permission{}, basePermissions...),
		PermStoreSell, PermAnalyticsView),
	RoleBuyer: append(append([]Permission{}, basePermissions...),
		PermStoreBuy),
}

// ParseUserRole validates s against the role enumeration.
func ParseUserRole(s string) (UserRole, error) {
	r := UserRole(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := rolePermissions[r]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
	return r, nil
}

// Permissions returns a copy of the role's permission list.
func (r UserRole) Permissions() []Permission {
	perms := rolePermissions[r]
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}

// Can reports whether the role grants p.
func (r UserRole) Can(p Permission) bool {
	for _, have := range rolePermissions[r] {
		if have == p {
			return true
		}
	}
	return false
}

func (r UserRole) String() string { return string(r) }

// UserStatus is the account lifecycle state.
type UserStatus string

const (
	StatusActive              UserStatus = "active"
	StatusInactive            UserStatus = "inactive"
	StatusSuspended           UserStatus = "suspended"
	StatusBanned              UserStatus = "banned"
	StatusPendingVerification UserStatus = "pending_verification"
)

// ParseUserStatus validates s against the status enumeration.
func ParseUserStatus(s string) (UserStatus, error) {
	st := UserStatus(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StatusActive, StatusInactive, StatusSuspended, StatusBanned, StatusPendingVerification:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// CanAuthenticate reports whether an account in this state may sign in.
func (s UserStatus) CanAuthenticate() bool {
	return s == StatusActive || s == StatusPendingVerification
}

// CanPublish reports whether an account in this state may create content.
func (s UserStatus) CanPublish() bool {
	return s == StatusActive
}

func (s UserStatus) String() string { return string(s) }
