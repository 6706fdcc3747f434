package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/SwastikKasera/askleaf-livechat-server/internal/domain"
	"github.com/SwastikKasera/askleaf-livechat-server/internal/index"
	"github.com/SwastikKasera/askleaf-livechat-server/internal/registry"
	"github.com/SwastikKasera/askleaf-livechat-server/internal/store"
)

// fakeStore is an in-memory ConversationStore with failure toggles. Its
// append is deliberately read-modify-write with a gap between the read and
// the write, so lost updates surface if the caller does not serialize.
type fakeStore struct {
	mu          sync.Mutex
	logs        map[string][]domain.Message
	meta        map[string]store.ConversationMeta
	createCalls map[string]int
	readCalls   int
	appendCalls int

	readErr     error
	writeErr    error
	appendDelay time.Duration
	createGate  chan struct{} // when set, CreateConversation blocks until closed
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		logs:        make(map[string][]domain.Message),
		meta:        make(map[string]store.ConversationMeta),
		createCalls: make(map[string]int),
	}
}

func (f *fakeStore) ReadLog(_ context.Context, conversationID string) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readCalls++
	if f.readErr != nil {
		return nil, f.readErr
	}
	return append([]domain.Message(nil), f.logs[conversationID]...), nil
}

func (f *fakeStore) AppendMessage(_ context.Context, conversationID string, msg domain.Message, meta store.ConversationMeta) error {
	f.mu.Lock()
	f.appendCalls++
	if f.writeErr != nil {
		f.mu.Unlock()
		return f.writeErr
	}
	current := append([]domain.Message(nil), f.logs[conversationID]...)
	f.mu.Unlock()

	time.Sleep(f.appendDelay)

	f.mu.Lock()
	f.logs[conversationID] = append(current, msg)
	f.meta[conversationID] = meta
	f.mu.Unlock()
	return nil
}

func (f *fakeStore) CreateConversation(_ context.Context, conversationID, chatbotID, customerIdentifier string) error {
	f.mu.Lock()
	if f.writeErr != nil {
		f.mu.Unlock()
		return f.writeErr
	}
	gate := f.createGate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls[conversationID]++
	f.logs[conversationID] = []domain.Message{}
	f.meta[conversationID] = store.ConversationMeta{ChatbotID: chatbotID, CustomerIdentifier: customerIdentifier}
	return nil
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) log(conversationID string) []domain.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Message(nil), f.logs[conversationID]...)
}

type publishedEvent struct {
	Topic   string // empty for publish-to-all
	Event   string
	Payload interface{}
}

type sentEvent struct {
	ConnectionID string
	Event        string
	Payload      interface{}
}

// recordingBroadcaster captures everything the coordinator publishes.
type recordingBroadcaster struct {
	mu            sync.Mutex
	subscriptions map[string][]string
	published     []publishedEvent
	sent          []sentEvent
}

func newRecordingBroadcaster() *recordingBroadcaster {
	return &recordingBroadcaster{subscriptions: make(map[string][]string)}
}

func (b *recordingBroadcaster) Subscribe(connectionID, topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscriptions[topic] = append(b.subscriptions[topic], connectionID)
}

func (b *recordingBroadcaster) Publish(topic, event string, payload interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, publishedEvent{Topic: topic, Event: event, Payload: payload})
	return nil
}

func (b *recordingBroadcaster) PublishToAll(event string, payload interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, publishedEvent{Event: event, Payload: payload})
	return nil
}

func (b *recordingBroadcaster) SendTo(connectionID, event string, payload interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, sentEvent{ConnectionID: connectionID, Event: event, Payload: payload})
	return nil
}

func (b *recordingBroadcaster) topicEvents(topic, event string) []publishedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []publishedEvent
	for _, p := range b.published {
		if p.Topic == topic && p.Event == event {
			out = append(out, p)
		}
	}
	return out
}

func (b *recordingBroadcaster) sentTo(connectionID, event string) []sentEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []sentEvent
	for _, s := range b.sent {
		if s.ConnectionID == connectionID && s.Event == event {
			out = append(out, s)
		}
	}
	return out
}

func (b *recordingBroadcaster) subscribers(topic string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.subscriptions[topic]...)
}

func newTestService(t *testing.T) (*relayService, *fakeStore, *recordingBroadcaster, *registry.SessionRegistry, *index.ConversationIndex) {
	t.Helper()
	st := newFakeStore()
	sessions := registry.NewSessionRegistry()
	idx := index.NewConversationIndex()
	broadcaster := newRecordingBroadcaster()
	svc := NewRelayService(st, sessions, idx, broadcaster).(*relayService)
	return svc, st, broadcaster, sessions, idx
}

func joinPayload(conversationID string) domain.CustomerJoinPayload {
	return domain.CustomerJoinPayload{
		ConversationID: conversationID,
		ChatbotID:      "bot-1",
		UserID:         "user-1",
		CustomerEmail:  "user@example.com",
	}
}

func sendPayload(conversationID, text string) domain.SendMessagePayload {
	return domain.SendMessagePayload{
		ConversationID: conversationID,
		ChatbotID:      "bot-1",
		UserID:         "user-1",
		Text:           text,
		Sender:         domain.SenderCustomer,
	}
}

func TestCustomerJoinThenSendScenario(t *testing.T) {
	svc, st, broadcaster, _, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.HandleCustomerJoin(ctx, "conn-1", joinPayload("c1")))

	// Store received exactly one create with an empty log.
	require.Equal(t, 1, st.createCalls["c1"])
	require.Empty(t, st.log("c1"))

	// Sender received the join acknowledgement.
	acks := broadcaster.sentTo("conn-1", domain.EventChatJoined)
	require.Len(t, acks, 1)
	joined := acks[0].Payload.(domain.ChatJoinedPayload)
	require.Equal(t, "c1", joined.ConversationID)

	// Dashboard received one summary with no last message yet.
	updates := broadcaster.topicEvents("", domain.EventChatUpdated)
	require.Len(t, updates, 1)
	summaries := updates[0].Payload.(domain.ChatUpdatedPayload).Summaries
	require.Len(t, summaries, 1)
	require.Equal(t, "c1", summaries[0].ConversationID)
	require.Nil(t, summaries[0].LastMessage)

	require.NoError(t, svc.HandleMessage(ctx, "conn-1", sendPayload("c1", "hello")))

	msgLog := st.log("c1")
	require.Len(t, msgLog, 1)
	require.Equal(t, "hello", msgLog[0].Text)
	require.Equal(t, domain.SenderCustomer, msgLog[0].Sender)

	received := broadcaster.topicEvents("c1", domain.EventMessageReceived)
	require.Len(t, received, 1)
	require.Equal(t, "hello", received[0].Payload.(domain.Message).Text)

	updates = broadcaster.topicEvents("", domain.EventChatUpdated)
	require.Len(t, updates, 2)
	summaries = updates[1].Payload.(domain.ChatUpdatedPayload).Summaries
	require.Len(t, summaries, 1)
	require.NotNil(t, summaries[0].LastMessage)
	require.Equal(t, "hello", summaries[0].LastMessage.Text)
}

func TestJoinIdempotence(t *testing.T) {
	svc, st, _, _, idx := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.HandleCustomerJoin(ctx, "conn-1", joinPayload("c1")))
	require.NoError(t, svc.HandleCustomerJoin(ctx, "conn-2", joinPayload("c1")))

	require.Equal(t, 1, st.createCalls["c1"])
	require.Equal(t, 1, idx.Len())
}

func TestConcurrentJoinsCreateConversationOnce(t *testing.T) {
	svc, st, _, _, idx := newTestService(t)
	ctx := context.Background()

	release := make(chan struct{})
	st.mu.Lock()
	st.createGate = release
	st.mu.Unlock()

	joinErrs := make(chan error, 2)
	go func() { joinErrs <- svc.HandleCustomerJoin(ctx, "conn-1", joinPayload("c1")) }()
	go func() { joinErrs <- svc.HandleCustomerJoin(ctx, "conn-2", joinPayload("c1")) }()

	// let one join park inside the slow create and the other behind the
	// conversation lock before the create is allowed to finish
	time.Sleep(20 * time.Millisecond)
	close(release)

	require.NoError(t, <-joinErrs)
	require.NoError(t, <-joinErrs)

	require.Equal(t, 1, st.createCalls["c1"])
	require.Equal(t, 1, idx.Len())

	// a message appended after the races settle must survive a later join
	// of the still-fresh conversation
	require.NoError(t, svc.HandleMessage(ctx, "conn-1", sendPayload("c1", "hello")))
	require.NoError(t, svc.HandleCustomerJoin(ctx, "conn-3", joinPayload("c1")))

	msgLog := st.log("c1")
	require.Len(t, msgLog, 1)
	require.Equal(t, "hello", msgLog[0].Text)
	require.Equal(t, 1, st.createCalls["c1"])
}

func TestJoinExistingConversationLoadsLastMessage(t *testing.T) {
	svc, st, broadcaster, _, _ := newTestService(t)
	ctx := context.Background()

	st.logs["c1"] = []domain.Message{{Text: "earlier", Sender: domain.SenderCustomer, ConversationID: "c1"}}

	require.NoError(t, svc.HandleCustomerJoin(ctx, "conn-1", joinPayload("c1")))

	require.Zero(t, st.createCalls["c1"])
	updates := broadcaster.topicEvents("", domain.EventChatUpdated)
	require.Len(t, updates, 1)
	summaries := updates[0].Payload.(domain.ChatUpdatedPayload).Summaries
	require.Len(t, summaries, 1)
	require.NotNil(t, summaries[0].LastMessage)
	require.Equal(t, "earlier", summaries[0].LastMessage.Text)
}

func TestNoBroadcastWithoutPersistence(t *testing.T) {
	svc, st, broadcaster, _, idx := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.HandleCustomerJoin(ctx, "conn-1", joinPayload("c1")))
	updatesBefore := len(broadcaster.topicEvents("", domain.EventChatUpdated))

	st.mu.Lock()
	st.writeErr = domain.ErrStoreWriteFailed
	st.mu.Unlock()

	err := svc.HandleMessage(ctx, "conn-1", sendPayload("c1", "lost"))
	require.Error(t, err)

	require.Empty(t, broadcaster.topicEvents("c1", domain.EventMessageReceived))
	require.Len(t, broadcaster.topicEvents("", domain.EventChatUpdated), updatesBefore)

	snapshot := idx.Snapshot()
	require.Len(t, snapshot, 1)
	require.Nil(t, snapshot[0].LastMessage)

	errs := broadcaster.sentTo("conn-1", domain.EventError)
	require.Len(t, errs, 1)
	require.Equal(t, domain.ReasonStoreWriteFailed, errs[0].Payload.(domain.ErrorPayload).Reason)
}

func TestSequentialSendsPreserveOrder(t *testing.T) {
	svc, st, _, _, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.HandleCustomerJoin(ctx, "conn-1", joinPayload("c1")))

	for i := 0; i < 5; i++ {
		require.NoError(t, svc.HandleMessage(ctx, "conn-1", sendPayload("c1", fmt.Sprintf("msg-%d", i))))
	}

	msgLog := st.log("c1")
	require.Len(t, msgLog, 5)
	for i, msg := range msgLog {
		require.Equal(t, fmt.Sprintf("msg-%d", i), msg.Text)
	}
}

func TestConcurrentSendsToSameConversationAreNotLost(t *testing.T) {
	svc, st, _, _, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.HandleCustomerJoin(ctx, "conn-1", joinPayload("c1")))
	st.mu.Lock()
	st.appendDelay = time.Millisecond
	st.mu.Unlock()

	const senders = 10
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			svc.HandleMessage(ctx, "conn-1", sendPayload("c1", fmt.Sprintf("msg-%d", i)))
		}(i)
	}
	wg.Wait()

	require.Len(t, st.log("c1"), senders)
}

func TestRegistryCleanupOnDisconnect(t *testing.T) {
	svc, _, _, sessions, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.HandleCustomerJoin(ctx, "conn-1", joinPayload("c1")))
	require.NoError(t, svc.HandleAgentJoin(ctx, "conn-1", domain.AgentJoinPayload{ConversationID: "c1"}))

	customer, agent := sessions.Lookup("conn-1")
	require.NotNil(t, customer)
	require.NotNil(t, agent)

	require.NoError(t, svc.HandleDisconnect(ctx, "conn-1"))

	customer, agent = sessions.Lookup("conn-1")
	require.Nil(t, customer)
	require.Nil(t, agent)
}

func TestCustomerJoinStoreFailure(t *testing.T) {
	svc, st, broadcaster, sessions, idx := newTestService(t)
	ctx := context.Background()

	st.readErr = domain.ErrStoreUnavailable

	err := svc.HandleCustomerJoin(ctx, "conn-1", joinPayload("c1"))
	require.Error(t, err)

	// Not subscribed, not registered, index untouched.
	require.Empty(t, broadcaster.subscribers("c1"))
	customer, _ := sessions.Lookup("conn-1")
	require.Nil(t, customer)
	require.Zero(t, idx.Len())

	errs := broadcaster.sentTo("conn-1", domain.EventError)
	require.Len(t, errs, 1)
	require.Equal(t, domain.ReasonStoreUnavailable, errs[0].Payload.(domain.ErrorPayload).Reason)
}

func TestAgentJoinStoreFailure(t *testing.T) {
	svc, st, broadcaster, sessions, _ := newTestService(t)
	ctx := context.Background()

	st.readErr = domain.ErrStoreUnavailable

	err := svc.HandleAgentJoin(ctx, "conn-9", domain.AgentJoinPayload{ConversationID: "c1"})
	require.Error(t, err)

	require.Empty(t, broadcaster.subscribers("c1"))
	_, agent := sessions.Lookup("conn-9")
	require.Nil(t, agent)
}

func TestAgentJoinSubscribesWithoutIndexMutation(t *testing.T) {
	svc, _, broadcaster, sessions, idx := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.HandleAgentJoin(ctx, "conn-2", domain.AgentJoinPayload{ConversationID: "c1"}))

	require.Equal(t, []string{"conn-2"}, broadcaster.subscribers("c1"))
	_, agent := sessions.Lookup("conn-2")
	require.NotNil(t, agent)
	require.Zero(t, idx.Len())
}

func TestInvalidPayloadRejectedBeforeStore(t *testing.T) {
	svc, st, broadcaster, _, _ := newTestService(t)
	ctx := context.Background()

	err := svc.HandleMessage(ctx, "conn-1", domain.SendMessagePayload{Text: "no conversation"})
	require.Error(t, err)

	require.Zero(t, st.readCalls)
	require.Zero(t, st.appendCalls)

	errs := broadcaster.sentTo("conn-1", domain.EventError)
	require.Len(t, errs, 1)
	require.Equal(t, domain.ReasonInvalidPayload, errs[0].Payload.(domain.ErrorPayload).Reason)
}

func TestServerAssignsTimestamps(t *testing.T) {
	svc, st, _, _, _ := newTestService(t)
	ctx := context.Background()

	at := time.Date(2026, 8, 28, 9, 30, 0, 0, time.UTC)
	svc.now = func() time.Time { return at }

	require.NoError(t, svc.HandleCustomerJoin(ctx, "conn-1", joinPayload("c1")))
	require.NoError(t, svc.HandleMessage(ctx, "conn-1", sendPayload("c1", "hello")))

	msgLog := st.log("c1")
	require.Len(t, msgLog, 1)
	require.Equal(t, at, msgLog[0].Timestamp)
}
