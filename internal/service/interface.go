package service

import (
	"context"

	"github.com/SwastikKasera/askleaf-livechat-server/internal/domain"
)

// Broadcaster is the transport surface the relay publishes through. The hub
// implements it; tests inject a recording fake.
type Broadcaster interface {
	// Subscribe adds the connection to a conversation topic.
	Subscribe(connectionID, topic string)
	// Publish fans an event out to every subscriber of the topic.
	Publish(topic, event string, payload interface{}) error
	// PublishToAll fans an event out to every connected client.
	PublishToAll(event string, payload interface{}) error
	// SendTo delivers an event to a single connection only.
	SendTo(connectionID, event string, payload interface{}) error
}

// RelayService routes connection events between the session registry, the
// durable store, the conversation index, and the transport.
type RelayService interface {
	HandleCustomerJoin(ctx context.Context, connectionID string, p domain.CustomerJoinPayload) error
	HandleAgentJoin(ctx context.Context, connectionID string, p domain.AgentJoinPayload) error
	HandleMessage(ctx context.Context, connectionID string, p domain.SendMessagePayload) error
	HandleDisconnect(ctx context.Context, connectionID string) error
}
