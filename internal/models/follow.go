package models

import "time"

// Follow is a directed "follower follows followed" edge. The composite primary
// key allows at most one edge per ordered pair.
type Follow struct {
	FollowedID string    `gorm:"primaryKey;size:36" json:"followed_id"`
	FollowerID string    `gorm:"primaryKey;size:36;index" json:"follower_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM
func (Follow) TableName() string {
	return "follows"
}

// Key returns the edge identifier in "<followedId>_<followerId>" form.
func (f Follow) Key() string {
	return f.FollowedID + "_" + f.FollowerID
}
