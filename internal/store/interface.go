package store

import (
	"context"

	"github.com/SwastikKasera/askleaf-livechat-server/internal/domain"
)

// ConversationMeta is the conversation metadata written alongside every
// message append.
type ConversationMeta struct {
	ChatbotID          string
	CustomerIdentifier string
}

// ConversationStore abstracts the durable store. The append path is
// read-modify-write with full-document replace semantics; it makes no
// ordering promise across concurrent calls for the same id, so callers that
// need one must serialize per conversation id themselves.
type ConversationStore interface {
	// ReadLog returns the ordered message log for a conversation. A
	// conversation with no record yet yields an empty log, not an error.
	// Connectivity failures and malformed documents wrap ErrStoreUnavailable.
	ReadLog(ctx context.Context, conversationID string) ([]domain.Message, error)

	// AppendMessage reads the current log, appends msg, and writes the full
	// updated document back together with conversation metadata. Write
	// failures wrap ErrStoreWriteFailed; there are no automatic retries.
	AppendMessage(ctx context.Context, conversationID string, msg domain.Message, meta ConversationMeta) error

	// CreateConversation upserts conversation metadata with an empty message
	// log. Idempotent; used only when a join finds no existing record.
	CreateConversation(ctx context.Context, conversationID, chatbotID, customerIdentifier string) error

	Close() error
}
