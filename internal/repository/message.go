package repository

import (
	"context"
	"slices"

	"instafeed/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MessageRepository stores direct messages. Messages are append-only.
type MessageRepository interface {
	Create(ctx context.Context, msg *models.Message) error
	ListConversation(ctx context.Context, conversationID string, limit int) ([]models.Message, error)
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new MessageRepository
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(ctx context.Context, msg *models.Message) error {
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// ListConversation returns the most recent limit messages (all when limit is
// not positive) oldest first. Ties on timestamp fall back to the xid, which
// sorts by creation time.
func (r *messageRepository) ListConversation(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	msgs := []models.Message{}
	q := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order(clause.OrderBy{Columns: []clause.OrderByColumn{
			{Column: clause.Column{Name: "timestamp"}, Desc: true},
			{Column: clause.Column{Name: "id"}, Desc: true},
		}})
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&msgs).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	slices.Reverse(msgs)
	return msgs, nil
}
