package models

import (
	"time"
)

// Comment belongs to a post and owns an ordered list of replies.
type Comment struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	PostID    string    `gorm:"not null;index;size:36" json:"post_id"`
	Username  string    `gorm:"not null" json:"username"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	Replies   []Reply   `gorm:"foreignKey:CommentID" json:"replies"`
}

// TableName specifies the table name for GORM
func (Comment) TableName() string {
	return "comments"
}

// Reply is one entry in a comment's append-only reply log. Seq is assigned by
// the database and fixes the order replies are shown in.
type Reply struct {
	Seq       uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	ID        string    `gorm:"uniqueIndex;not null;size:36" json:"id"`
	CommentID string    `gorm:"not null;index;size:36" json:"-"`
	Username  string    `gorm:"not null" json:"username"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM
func (Reply) TableName() string {
	return "replies"
}
