// Package models contains data structures for the application's domain models.
package models

import (
	"time"
)

// Credential is the authentication record behind an account. Its ID is the
// caller identity (uid) every other component keys on.
type Credential struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM
func (Credential) TableName() string {
	return "credentials"
}

// Account is the public profile created on onboarding. It shares its ID with
// the Credential that owns it.
type Account struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	Username       string    `gorm:"uniqueIndex;not null;size:30" json:"username"`
	FullName       string    `gorm:"not null" json:"full_name"`
	Email          string    `gorm:"not null" json:"email"`
	AvatarURL      string    `json:"avatar_url"`
	FollowersCount int       `gorm:"not null;default:0" json:"followers_count"`
	FollowingCount int       `gorm:"not null;default:0" json:"following_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Account) TableName() string {
	return "accounts"
}

// Viewer is the resolved identity of the caller.
type Viewer struct {
	UID       string   `json:"uid"`
	Email     string   `json:"email"`
	Account   *Account `json:"account,omitempty"`
	Onboarded bool     `json:"onboarded"`
}

// Username returns the viewer's username, or "" before onboarding.
func (v *Viewer) Username() string {
	if v == nil || v.Account == nil {
		return ""
	}
	return v.Account.Username
}

// Profile is an account page as seen by a viewer.
type Profile struct {
	Account     *Account `json:"account"`
	Posts       []Post   `json:"posts"`
	PostCount   int64    `json:"post_count"`
	IsFollowing bool     `json:"is_following"`
	IsSelf      bool     `json:"is_self"`
}
