// Package models contains the persistence rows and the application error type.
package models

import (
	"time"

	"gorm.io/gorm"
)

// User is the users table. Profile, preferences and verification are JSON
// text columns; counters are typed so they can be adjusted in place.
type User struct {
	ID             string    `gorm:"primaryKey;size:191"`
	Email          *string   `gorm:"size:320;uniqueIndex"`
	Username       *string   `gorm:"size:30;uniqueIndex"`
	Role           string    `gorm:"size:20;not null;default:user;index"`
	Status         string    `gorm:"size:32;not null;default:active"`
	Profile        string    `gorm:"type:text;not null"`
	Verification   string    `gorm:"type:text;not null"`
	SearchText     string    `gorm:"type:text;not null"`
	PostsCount     int64     `gorm:"not null;default:0"`
	FollowersCount int64     `gorm:"not null;default:0"`
	FollowingCount int64     `gorm:"not null;default:0"`
	LikesCount     int64     `gorm:"not null;default:0"`
	CommentsCount  int64     `gorm:"not null;default:0"`
	TotalEarnings  float64   `gorm:"not null;default:0"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
	LastLoginAt    *time.Time
	DeletedAt      gorm.DeletedAt `gorm:"index"`
}

// Post is the posts table. SearchText holds the lowercased text for
// case-insensitive substring search.
type Post struct {
	ID            string     `gorm:"primaryKey;size:36"`
	AuthorID      string     `gorm:"size:191;not null;index"`
	Content       string     `gorm:"type:text;not null"`
	Type          string     `gorm:"size:10;not null"`
	Privacy       string     `gorm:"size:10;not null;default:public"`
	Moderation    string     `gorm:"column:moderation_status;size:16;not null;default:approved"`
	Metadata      string     `gorm:"type:text;not null"`
	SearchText    string     `gorm:"type:text;not null"`
	LikesCount    int64      `gorm:"not null;default:0"`
	CommentsCount int64      `gorm:"not null;default:0"`
	SharesCount   int64      `gorm:"not null;default:0"`
	ViewsCount    int64      `gorm:"not null;default:0"`
	CreatedAt     time.Time  `gorm:"not null"`
	UpdatedAt     time.Time  `gorm:"not null"`
	PublishedAt   *time.Time `gorm:"index"`
	ScheduledAt   *time.Time
}

// Comment is the comments table. Deletion is a status change.
type Comment struct {
	ID           string    `gorm:"primaryKey;size:36"`
	PostID       string    `gorm:"size:36;not null;index"`
	AuthorID     string    `gorm:"size:191;not null;index"`
	ParentID     *string   `gorm:"size:36;index"`
	Content      string    `gorm:"type:text;not null"`
	Status       string    `gorm:"size:16;not null;default:active"`
	Metadata     string    `gorm:"type:text;not null"`
	SearchText   string    `gorm:"type:text;not null"`
	LikesCount   int64     `gorm:"not null;default:0"`
	RepliesCount int64     `gorm:"not null;default:0"`
	ReportsCount int64     `gorm:"not null;default:0"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

// Like is the likes table; (user_id, target_id, target_type) is unique.
type Like struct {
	ID         string    `gorm:"primaryKey;size:36"`
	UserID     string    `gorm:"size:191;not null;uniqueIndex:idx_likes_user_target"`
	TargetID   string    `gorm:"size:36;not null;uniqueIndex:idx_likes_user_target;index:idx_likes_target"`
	TargetType string    `gorm:"size:10;not null;uniqueIndex:idx_likes_user_target;index:idx_likes_target"`
	Reaction   string    `gorm:"size:10;not null;default:like"`
	CreatedAt  time.Time `gorm:"not null"`
}

type UserSession struct {
	ID         string    `gorm:"primaryKey;size:191"`
	UserID     string    `gorm:"size:191;not null;index"`
	UserAgent  string    `gorm:"size:512"`
	IPAddress  string    `gorm:"size:64"`
	CreatedAt  time.Time `gorm:"not null"`
	LastSeenAt time.Time `gorm:"not null"`
}

type UserActivity struct {
	ID         string    `gorm:"primaryKey;size:36"`
	UserID     string    `gorm:"size:191;not null;index"`
	Action     string    `gorm:"size:64;not null"`
	TargetType string    `gorm:"size:16"`
	TargetID   string    `gorm:"size:36"`
	Metadata   string    `gorm:"type:text"`
	CreatedAt  time.Time `gorm:"not null;index"`
}

func (UserActivity) TableName() string { return "user_activity_log" }

type UserPermission struct {
	UserID     string    `gorm:"primaryKey;size:191"`
	Permission string    `gorm:"primaryKey;size:64"`
	GrantedBy  string    `gorm:"size:191"`
	CreatedAt  time.Time `gorm:"not null"`
}

type UserSetting struct {
	UserID    string    `gorm:"primaryKey;size:191"`
	Key       string    `gorm:"primaryKey;size:64"`
	Value     string    `gorm:"type:text;not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

type PostView struct {
	PostID    string    `gorm:"primaryKey;size:36"`
	UserID    string    `gorm:"primaryKey;size:191"`
	CreatedAt time.Time `gorm:"not null"`
}

type PostShare struct {
	ID        string    `gorm:"primaryKey;size:36"`
	PostID    string    `gorm:"size:36;not null;index"`
	UserID    string    `gorm:"size:191;not null;index"`
	Comment   string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"not null"`
}
