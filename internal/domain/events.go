package domain

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Event names from client.
const (
	EventCustomerJoin = "customer:join"
	EventAgentJoin    = "agent:join"
	EventMessageSend  = "message:send"
)

// Event names to client.
const (
	EventChatJoined      = "chat:joined"
	EventChatUpdated     = "chat:updated"
	EventMessageReceived = "message:received"
	EventError           = "error"
)

// Envelope wraps every message on the wire: an event name plus its payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// EncodeEnvelope marshals an outbound event for the wire.
func EncodeEnvelope(event string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// Client -> Server payloads

type CustomerJoinPayload struct {
	ConversationID string `json:"conversation_id" validate:"required"`
	ChatbotID      string `json:"chatbot_id" validate:"required"`
	UserID         string `json:"user_id" validate:"required"`
	CustomerEmail  string `json:"customer_email" validate:"omitempty,email"`
}

type AgentJoinPayload struct {
	ConversationID string `json:"conversation_id" validate:"required"`
}

type SendMessagePayload struct {
	ConversationID string `json:"conversation_id" validate:"required"`
	ChatbotID      string `json:"chatbot_id" validate:"required"`
	UserID         string `json:"user_id" validate:"required"`
	Text           string `json:"text" validate:"required"`
	Sender         string `json:"sender" validate:"required,oneof=customer agent"`
}

// Server -> Client payloads

type ChatJoinedPayload struct {
	ConversationID string `json:"conversation_id"`
	CustomerEmail  string `json:"customer_email,omitempty"`
}

type ChatUpdatedPayload struct {
	Summaries []ConversationSummary `json:"summaries"`
}

type ErrorPayload struct {
	Reason string `json:"reason"`
}

var validate = validator.New()

// ValidatePayload checks a decoded payload at the boundary, before any
// registry or store access. Failures wrap ErrInvalidPayload.
func ValidatePayload(v interface{}) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}
