package models

import "time"

// Like records that a user liked a post. At most one per (post, user).
type Like struct {
	PostID    string    `gorm:"primaryKey;size:36" json:"post_id"`
	UserID    string    `gorm:"primaryKey;size:36;index" json:"user_id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM
func (Like) TableName() string {
	return "likes"
}

// Key returns the edge identifier in "<postId>_<userId>" form.
func (l Like) Key() string {
	return l.PostID + "_" + l.UserID
}

// Save records that a user bookmarked a post. It carries no counter.
type Save struct {
	PostID    string    `gorm:"primaryKey;size:36" json:"post_id"`
	UserID    string    `gorm:"primaryKey;size:36;index" json:"user_id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM
func (Save) TableName() string {
	return "saves"
}

// Key returns the edge identifier in "<postId>_<userId>" form.
func (s Save) Key() string {
	return s.PostID + "_" + s.UserID
}

// PostEngagement is the per-post state a viewer observes.
type PostEngagement struct {
	PostID     string `json:"post_id"`
	Liked      bool   `json:"liked"`
	Saved      bool   `json:"saved"`
	LikesCount int    `json:"likes_count"`
}
