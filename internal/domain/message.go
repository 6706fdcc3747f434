package domain

import "time"

// Sender roles for chat messages.
const (
	SenderCustomer = "customer"
	SenderAgent    = "agent"
)

// Message is a single chat message. Immutable once created; the server
// assigns the timestamp, client clocks are never trusted for ordering.
type Message struct {
	Text           string    `json:"text"`
	Sender         string    `json:"sender"`
	Timestamp      time.Time `json:"timestamp"`
	ConversationID string    `json:"conversation_id"`
}

// ConversationSummary is the dashboard view of one conversation. It lives in
// the in-memory index only; the durable store holds the full message log.
type ConversationSummary struct {
	ConversationID     string    `json:"conversation_id"`
	ChatbotID          string    `json:"chatbot_id"`
	CustomerIdentifier string    `json:"customer_identifier"`
	LastActivity       time.Time `json:"last_activity"`
	LastMessage        *Message  `json:"last_message,omitempty"`
}
