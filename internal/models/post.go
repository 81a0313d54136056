package models

import (
	"time"
)

// Post is an image post. Author fields are denormalized from the Account at
// publish time; AuthorAvatarURL is rewritten when the author changes avatar.
type Post struct {
	ID              string    `gorm:"primaryKey;size:36" json:"id"`
	AuthorID        string    `gorm:"not null;index;size:36" json:"author_id"`
	AuthorUsername  string    `gorm:"not null;index" json:"author_username"`
	AuthorAvatarURL string    `json:"author_avatar_url"`
	ImageURL        string    `json:"image_url"`
	ImageKey        string    `json:"-"`
	Caption         string    `gorm:"type:text" json:"caption"`
	LikesCount      int       `gorm:"not null;default:0" json:"likes_count"`
	CreatedAt       time.Time `gorm:"index" json:"created_at"`
}

// TableName specifies the table name for GORM
func (Post) TableName() string {
	return "posts"
}
