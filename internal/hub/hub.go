package hub

import (
	"sync"

	"github.com/SwastikKasera/askleaf-livechat-server/internal/config"
	"github.com/SwastikKasera/askleaf-livechat-server/internal/domain"
	"github.com/SwastikKasera/askleaf-livechat-server/pkg/log"
)

// Hub owns every live websocket connection and the topic membership used for
// conversation fanout. A topic is one conversation id; a publish with an
// empty topic reaches every connected client (dashboard broadcast).
type Hub struct {
	clients    map[string]*Client            // connectionID -> client
	topics     map[string]map[string]*Client // topic -> connectionID -> client
	register   chan *Client
	unregister chan *Client
	broadcast  chan *topicMessage
	mu         sync.RWMutex
	config     config.WebSocketConfig
}

// topicMessage is the run loop's delivery request. Target addresses a single
// connection; otherwise Topic selects the subscribers, and an empty Topic
// fans out to all clients.
type topicMessage struct {
	Target  string
	Topic   string
	Message []byte
}

func NewHub(cfg config.WebSocketConfig) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		topics:     make(map[string]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *topicMessage, 256),
		config:     cfg,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			l := log.L()
			l.Debug().Str(log.FieldConnectionID, client.ID).Msg("client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				for topic, members := range h.topics {
					delete(members, client.ID)
					if len(members) == 0 {
						delete(h.topics, topic)
					}
				}
				delete(h.clients, client.ID)
				close(client.Send)
			}
			h.mu.Unlock()
			l := log.L()
			l.Debug().Str(log.FieldConnectionID, client.ID).Msg("client unregistered")

		case msg := <-h.broadcast:
			h.mu.RLock()
			if msg.Target != "" {
				if client, ok := h.clients[msg.Target]; ok {
					h.deliver(client, msg.Message)
				}
			} else if msg.Topic == "" {
				for _, client := range h.clients {
					h.deliver(client, msg.Message)
				}
			} else if members, ok := h.topics[msg.Topic]; ok {
				for _, client := range members {
					h.deliver(client, msg.Message)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// deliver pushes to the client's send buffer; a full buffer marks the client
// as slow and disconnects it.
func (h *Hub) deliver(client *Client, message []byte) {
	select {
	case client.Send <- message:
	default:
		go h.removeClient(client)
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Subscribe adds the connection to a topic's subscriber set. Membership is
// cleaned up implicitly when the connection unregisters.
func (h *Hub) Subscribe(connectionID, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[connectionID]
	if !ok {
		return
	}
	if _, ok := h.topics[topic]; !ok {
		h.topics[topic] = make(map[string]*Client)
	}
	h.topics[topic][connectionID] = client
	l := log.L()
	l.Info().Str(log.FieldConnectionID, connectionID).Str("topic", topic).Msg("client subscribed to topic")
}

// Publish fans an event out to every subscriber of the topic.
func (h *Hub) Publish(topic, event string, payload interface{}) error {
	data, err := domain.EncodeEnvelope(event, payload)
	if err != nil {
		return err
	}
	h.broadcast <- &topicMessage{Topic: topic, Message: data}
	return nil
}

// PublishToAll fans an event out to every connected client.
func (h *Hub) PublishToAll(event string, payload interface{}) error {
	data, err := domain.EncodeEnvelope(event, payload)
	if err != nil {
		return err
	}
	h.broadcast <- &topicMessage{Topic: "", Message: data}
	return nil
}

// SendTo delivers an event to a single connection only. Delivery goes through
// the run loop, which alone writes to and closes client send channels; a send
// racing an unregister is simply dropped.
func (h *Hub) SendTo(connectionID, event string, payload interface{}) error {
	data, err := domain.EncodeEnvelope(event, payload)
	if err != nil {
		return err
	}
	h.broadcast <- &topicMessage{Target: connectionID, Message: data}
	return nil
}

// Connected reports whether a connection is currently registered.
func (h *Hub) Connected(connectionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[connectionID]
	return ok
}

// TopicSubscriberCount reports how many connections follow a topic.
func (h *Hub) TopicSubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if members, ok := h.topics[topic]; ok {
		return len(members)
	}
	return 0
}

func (h *Hub) removeClient(client *Client) {
	h.unregister <- client
}
