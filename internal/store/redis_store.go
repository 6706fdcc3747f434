package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SwastikKasera/askleaf-livechat-server/internal/config"
	"github.com/SwastikKasera/askleaf-livechat-server/internal/domain"
)

// conversationDocument is the full document persisted per conversation id.
type conversationDocument struct {
	ConversationID     string           `json:"conversation_id"`
	ChatbotID          string           `json:"chatbot_id"`
	CustomerIdentifier string           `json:"customer_identifier"`
	MessageLog         []domain.Message `json:"message_log"`
	CreatedAt          time.Time        `json:"created_at"`
}

// RedisConversationStore keeps one JSON document per conversation under a
// configurable key prefix.
type RedisConversationStore struct {
	client *redis.Client
	prefix string
}

func NewRedisConversationStore(cfg config.RedisConfig) (*RedisConversationStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisConversationStore{
		client: client,
		prefix: cfg.ConversationPrefix,
	}, nil
}

func (s *RedisConversationStore) keyFor(conversationID string) string {
	return fmt.Sprintf("%s:%s", s.prefix, conversationID)
}

func (s *RedisConversationStore) ReadLog(ctx context.Context, conversationID string) ([]domain.Message, error) {
	doc, err := s.getDocument(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil
	}
	return doc.MessageLog, nil
}

func (s *RedisConversationStore) AppendMessage(ctx context.Context, conversationID string, msg domain.Message, meta ConversationMeta) error {
	doc, err := s.getDocument(ctx, conversationID)
	if err != nil {
		return err
	}
	if doc == nil {
		doc = &conversationDocument{
			ConversationID: conversationID,
			CreatedAt:      time.Now().UTC(),
		}
	}

	doc.ChatbotID = meta.ChatbotID
	doc.CustomerIdentifier = meta.CustomerIdentifier
	doc.MessageLog = append(doc.MessageLog, msg)

	if err := s.putDocument(ctx, doc); err != nil {
		return fmt.Errorf("%w: append for conversation %s: %v", domain.ErrStoreWriteFailed, conversationID, err)
	}
	return nil
}

func (s *RedisConversationStore) CreateConversation(ctx context.Context, conversationID, chatbotID, customerIdentifier string) error {
	doc := &conversationDocument{
		ConversationID:     conversationID,
		ChatbotID:          chatbotID,
		CustomerIdentifier: customerIdentifier,
		MessageLog:         []domain.Message{},
		CreatedAt:          time.Now().UTC(),
	}

	if err := s.putDocument(ctx, doc); err != nil {
		return fmt.Errorf("%w: create conversation %s: %v", domain.ErrStoreWriteFailed, conversationID, err)
	}
	return nil
}

func (s *RedisConversationStore) getDocument(ctx context.Context, conversationID string) (*conversationDocument, error) {
	data, err := s.client.Get(ctx, s.keyFor(conversationID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: get conversation %s: %v", domain.ErrStoreUnavailable, conversationID, err)
	}

	var doc conversationDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: malformed document for conversation %s: %v", domain.ErrStoreUnavailable, conversationID, err)
	}
	return &doc, nil
}

func (s *RedisConversationStore) putDocument(ctx context.Context, doc *conversationDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.keyFor(doc.ConversationID), data, 0).Err()
}

func (s *RedisConversationStore) Close() error {
	return s.client.Close()
}
