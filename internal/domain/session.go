package domain

// CustomerSession ties a live connection to the conversation it opened.
// Exactly one per connection; overwritten if the connection joins again.
type CustomerSession struct {
	ConnectionID   string
	ConversationID string
	ChatbotID      string
	UserID         string
	CustomerEmail  string
}

// AgentSession ties a live agent connection to the conversation it watches.
type AgentSession struct {
	ConnectionID   string
	ConversationID string
}
