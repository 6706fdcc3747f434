package index

import (
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/SwastikKasera/askleaf-livechat-server/internal/domain"
)

// ConversationIndex is the in-memory cache of recently active conversation
// summaries backing the dashboard broadcast. It is a cache, not the source
// of truth: eviction and restart never touch the durable store.
type ConversationIndex struct {
	mu        sync.RWMutex
	summaries map[string]domain.ConversationSummary
	now       func() time.Time
}

func NewConversationIndex() *ConversationIndex {
	return &ConversationIndex{
		summaries: make(map[string]domain.ConversationSummary),
		now:       time.Now,
	}
}

// Upsert replaces the summary for its conversation id.
func (i *ConversationIndex) Upsert(summary domain.ConversationSummary) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.summaries[summary.ConversationID] = summary
}

// Touch records msg as the conversation's last message and stamps activity
// with the current time. Returns false when the conversation is not in the
// index; the message was still durably stored regardless.
func (i *ConversationIndex) Touch(conversationID string, msg domain.Message) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	summary, ok := i.summaries[conversationID]
	if !ok {
		return false
	}
	summary.LastMessage = &msg
	summary.LastActivity = i.now()
	i.summaries[conversationID] = summary
	return true
}

// Has reports whether the conversation is currently in the index.
func (i *ConversationIndex) Has(conversationID string) bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	_, ok := i.summaries[conversationID]
	return ok
}

// Snapshot returns all currently-known summaries. No ordering guarantee.
func (i *ConversationIndex) Snapshot() []domain.ConversationSummary {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return lo.Values(i.summaries)
}

// EvictOlderThan removes every summary whose last activity predates the
// threshold and reports how many were removed.
func (i *ConversationIndex) EvictOlderThan(threshold time.Time) int {
	i.mu.Lock()
	defer i.mu.Unlock()

	evicted := 0
	for id, summary := range i.summaries {
		if summary.LastActivity.Before(threshold) {
			delete(i.summaries, id)
			evicted++
		}
	}
	return evicted
}

// Len reports the number of summaries currently held.
func (i *ConversationIndex) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.summaries)
}
