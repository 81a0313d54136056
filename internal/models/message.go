package models

import (
	"sort"
	"strings"
	"time"
)

// Message is an append-only direct message.
type Message struct {
	ID             string    `gorm:"primaryKey;size:20" json:"id"`
	ConversationID string    `gorm:"not null;index:idx_messages_conversation_ts" json:"conversation_id"`
	SenderID       string    `gorm:"not null;size:36" json:"sender_id"`
	RecipientID    string    `gorm:"not null;size:36" json:"recipient_id"`
	Text           string    `gorm:"type:text;not null" json:"text"`
	Timestamp      time.Time `gorm:"not null;index:idx_messages_conversation_ts" json:"timestamp"`
}

// TableName specifies the table name for GORM
func (Message) TableName() string {
	return "messages"
}

// ConversationKey derives the conversation id shared by two participants.
// It does not depend on argument order.
func ConversationKey(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, "_")
}
