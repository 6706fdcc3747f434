package service

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/SwastikKasera/askleaf-livechat-server/internal/audit"
	"github.com/SwastikKasera/askleaf-livechat-server/internal/domain"
	"github.com/SwastikKasera/askleaf-livechat-server/internal/index"
	"github.com/SwastikKasera/askleaf-livechat-server/internal/registry"
	"github.com/SwastikKasera/askleaf-livechat-server/internal/store"
	"github.com/SwastikKasera/askleaf-livechat-server/pkg/log"
)

type relayService struct {
	store       store.ConversationStore
	sessions    *registry.SessionRegistry
	index       *index.ConversationIndex
	broadcaster Broadcaster

	// joinReads dedupes concurrent log reads for the same conversation.
	joinReads singleflight.Group
	// convLocks serializes the read-modify-write append per conversation id,
	// so concurrent sends to the same conversation cannot lose messages.
	convLocks sync.Map // conversationID -> *sync.Mutex

	now func() time.Time
}

func NewRelayService(
	st store.ConversationStore,
	sessions *registry.SessionRegistry,
	idx *index.ConversationIndex,
	broadcaster Broadcaster,
) RelayService {
	return &relayService{
		store:       st,
		sessions:    sessions,
		index:       idx,
		broadcaster: broadcaster,
		now:         time.Now,
	}
}

func (s *relayService) HandleCustomerJoin(ctx context.Context, connectionID string, p domain.CustomerJoinPayload) error {
	if err := domain.ValidatePayload(p); err != nil {
		s.sendError(ctx, connectionID, err)
		return err
	}

	// The read/create/upsert sequence shares the keyed mutex with message
	// appends: a create is a full-document replace, so it must never
	// interleave with another join's create or a concurrent append.
	lock := s.lockFor(p.ConversationID)
	lock.Lock()
	msgLog, err := s.readLogShared(ctx, p.ConversationID)
	if err != nil {
		lock.Unlock()
		s.sendError(ctx, connectionID, err)
		return err
	}

	if len(msgLog) == 0 {
		// First contact: create the store record before exposing the
		// conversation anywhere. A conversation already in the index was
		// created by an earlier join, so create never runs twice for it.
		if !s.index.Has(p.ConversationID) {
			if err := s.store.CreateConversation(ctx, p.ConversationID, p.ChatbotID, p.UserID); err != nil {
				lock.Unlock()
				s.sendError(ctx, connectionID, err)
				return err
			}
		}
		s.index.Upsert(domain.ConversationSummary{
			ConversationID:     p.ConversationID,
			ChatbotID:          p.ChatbotID,
			CustomerIdentifier: p.UserID,
			LastActivity:       s.now(),
		})
	} else {
		last := msgLog[len(msgLog)-1]
		s.index.Upsert(domain.ConversationSummary{
			ConversationID:     p.ConversationID,
			ChatbotID:          p.ChatbotID,
			CustomerIdentifier: p.UserID,
			LastActivity:       s.now(),
			LastMessage:        &last,
		})
	}
	lock.Unlock()

	s.sessions.RegisterCustomer(domain.CustomerSession{
		ConnectionID:   connectionID,
		ConversationID: p.ConversationID,
		ChatbotID:      p.ChatbotID,
		UserID:         p.UserID,
		CustomerEmail:  p.CustomerEmail,
	})
	s.broadcaster.Subscribe(connectionID, p.ConversationID)

	s.broadcaster.PublishToAll(domain.EventChatUpdated, domain.ChatUpdatedPayload{Summaries: s.index.Snapshot()})
	s.broadcaster.SendTo(connectionID, domain.EventChatJoined, domain.ChatJoinedPayload{
		ConversationID: p.ConversationID,
		CustomerEmail:  p.CustomerEmail,
	})

	audit.Log(ctx, audit.ActionCustomerJoin, connectionID, p.ConversationID, "customer joined conversation")
	return nil
}

func (s *relayService) HandleAgentJoin(ctx context.Context, connectionID string, p domain.AgentJoinPayload) error {
	if err := domain.ValidatePayload(p); err != nil {
		s.sendError(ctx, connectionID, err)
		return err
	}

	// Reachability check only; agents never create conversations and an
	// empty log is acceptable.
	if _, err := s.readLogShared(ctx, p.ConversationID); err != nil {
		s.sendError(ctx, connectionID, err)
		return err
	}

	s.sessions.RegisterAgent(domain.AgentSession{
		ConnectionID:   connectionID,
		ConversationID: p.ConversationID,
	})
	s.broadcaster.Subscribe(connectionID, p.ConversationID)

	audit.Log(ctx, audit.ActionAgentJoin, connectionID, p.ConversationID, "agent joined conversation")
	return nil
}

func (s *relayService) HandleMessage(ctx context.Context, connectionID string, p domain.SendMessagePayload) error {
	if err := domain.ValidatePayload(p); err != nil {
		s.sendError(ctx, connectionID, err)
		return err
	}

	msg := domain.Message{
		Text:           p.Text,
		Sender:         p.Sender,
		Timestamp:      s.now().UTC(),
		ConversationID: p.ConversationID,
	}

	lock := s.lockFor(p.ConversationID)
	lock.Lock()
	err := s.store.AppendMessage(ctx, p.ConversationID, msg, store.ConversationMeta{
		ChatbotID:          p.ChatbotID,
		CustomerIdentifier: p.UserID,
	})
	lock.Unlock()
	if err != nil {
		// Not persisted: no broadcast and no index touch.
		s.sendError(ctx, connectionID, err)
		return err
	}

	s.broadcaster.Publish(p.ConversationID, domain.EventMessageReceived, msg)
	s.index.Touch(p.ConversationID, msg)
	s.broadcaster.PublishToAll(domain.EventChatUpdated, domain.ChatUpdatedPayload{Summaries: s.index.Snapshot()})

	audit.Log(ctx, audit.ActionSendMessage, connectionID, p.ConversationID, "message relayed")
	return nil
}

func (s *relayService) HandleDisconnect(ctx context.Context, connectionID string) error {
	s.sessions.Remove(connectionID)
	audit.Log(ctx, audit.ActionDisconnect, connectionID, "", "connection closed")
	return nil
}

// readLogShared reads a conversation log through singleflight so concurrent
// joins to the same conversation issue one store read.
func (s *relayService) readLogShared(ctx context.Context, conversationID string) ([]domain.Message, error) {
	result, err, _ := s.joinReads.Do(conversationID, func() (interface{}, error) {
		return s.store.ReadLog(ctx, conversationID)
	})
	if err != nil {
		return nil, err
	}
	msgLog, _ := result.([]domain.Message)
	return msgLog, nil
}

func (s *relayService) lockFor(conversationID string) *sync.Mutex {
	lock, _ := s.convLocks.LoadOrStore(conversationID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// sendError surfaces a handler failure to the originating connection only.
func (s *relayService) sendError(ctx context.Context, connectionID string, err error) {
	l := log.Ctx(ctx)
	l.Warn().Err(err).Str(log.FieldConnectionID, connectionID).Msg("event handling failed")
	s.broadcaster.SendTo(connectionID, domain.EventError, domain.ErrorPayload{Reason: domain.ReasonFor(err)})
}
