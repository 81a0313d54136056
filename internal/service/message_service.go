package service

import (
	"context"
	"strings"
	"time"

	"instafeed/internal/live"
	"instafeed/internal/models"
	"instafeed/internal/observability"
	"instafeed/internal/repository"
	"instafeed/internal/validation"

	"github.com/rs/xid"
	"go.opentelemetry.io/otel/attribute"
)

const defaultConversationLimit = 200

// MessageService provides direct messaging between two accounts.
type MessageService struct {
	messages repository.MessageRepository
	accounts repository.AccountRepository
	broker   *live.Broker
	now      func() time.Time
}

// NewMessageService returns a new MessageService.
func NewMessageService(messages repository.MessageRepository, accounts repository.AccountRepository, broker *live.Broker) *MessageService {
	return &MessageService{messages: messages, accounts: accounts, broker: broker, now: time.Now}
}

// SendMessage appends a message to the conversation between the viewer and
// recipientID.
func (s *MessageService) SendMessage(ctx context.Context, viewer *models.Viewer, recipientID, text string) (msg *models.Message, err error) {
	ctx, span := observability.StartSpan(ctx, "MessageService", "SendMessage",
		attribute.String("sender_id", viewer.UID), attribute.String("recipient_id", recipientID))
	defer func() { observability.EndSpan(span, err) }()

	if !viewer.Onboarded {
		return nil, models.NewOnboardingRequiredError()
	}
	if recipientID == viewer.UID {
		return nil, models.NewValidationError("Cannot message yourself")
	}
	if err := validation.ValidateText("message", text, false); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if _, err := s.accounts.GetByID(ctx, recipientID); err != nil {
		return nil, err
	}

	conversationID := models.ConversationKey(viewer.UID, recipientID)
	msg = &models.Message{
		ID:             xid.New().String(),
		ConversationID: conversationID,
		SenderID:       viewer.UID,
		RecipientID:    recipientID,
		Text:           strings.TrimSpace(text),
		Timestamp:      s.now().UTC(),
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}

	s.broker.Publish(ctx, live.Event{Topic: live.TopicMessages, Keys: []string{conversationID}})
	return msg, nil
}

// Conversation returns the latest messages between the viewer and otherID,
// oldest first.
func (s *MessageService) Conversation(ctx context.Context, viewer *models.Viewer, otherID string) ([]models.Message, error) {
	return s.messages.ListConversation(ctx, models.ConversationKey(viewer.UID, otherID), defaultConversationLimit)
}

// WatchConversation streams the conversation between the viewer and otherID.
func (s *MessageService) WatchConversation(ctx context.Context, viewer *models.Viewer, otherID string) (*live.Subscription[[]models.Message], error) {
	if otherID == viewer.UID {
		return nil, models.NewValidationError("Cannot message yourself")
	}
	key := models.ConversationKey(viewer.UID, otherID)
	return live.Watch(ctx, s.broker, live.Query[[]models.Message]{
		Kind:  "conversation",
		Match: live.OnKey(live.TopicMessages, key),
		Fetch: func(ctx context.Context) ([]models.Message, error) {
			return s.messages.ListConversation(ctx, key, defaultConversationLimit)
		},
	})
}
