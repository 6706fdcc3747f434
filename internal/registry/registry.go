package registry

import (
	"sync"

	"github.com/SwastikKasera/askleaf-livechat-server/internal/domain"
)

// SessionRegistry maps live connections to their session records. At most
// one customer and one agent session per connection id; a connection may
// hold both. Purely in-memory, lost on restart by design.
type SessionRegistry struct {
	mu        sync.RWMutex
	customers map[string]domain.CustomerSession
	agents    map[string]domain.AgentSession
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		customers: make(map[string]domain.CustomerSession),
		agents:    make(map[string]domain.AgentSession),
	}
}

// RegisterCustomer overwrites any prior customer session for the connection.
func (r *SessionRegistry) RegisterCustomer(s domain.CustomerSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.customers[s.ConnectionID] = s
}

// RegisterAgent overwrites any prior agent session for the connection.
func (r *SessionRegistry) RegisterAgent(s domain.AgentSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[s.ConnectionID] = s
}

// Lookup returns whichever session records exist for the connection; either
// or both may be nil.
func (r *SessionRegistry) Lookup(connectionID string) (*domain.CustomerSession, *domain.AgentSession) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var customer *domain.CustomerSession
	var agent *domain.AgentSession
	if c, ok := r.customers[connectionID]; ok {
		customer = &c
	}
	if a, ok := r.agents[connectionID]; ok {
		agent = &a
	}
	return customer, agent
}

// Remove deletes both session records for the connection. No-op if absent.
func (r *SessionRegistry) Remove(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.customers, connectionID)
	delete(r.agents, connectionID)
}
