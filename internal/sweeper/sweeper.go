package sweeper

import (
	"context"
	"time"

	"github.com/SwastikKasera/askleaf-livechat-server/internal/domain"
	"github.com/SwastikKasera/askleaf-livechat-server/internal/index"
	"github.com/SwastikKasera/askleaf-livechat-server/internal/service"
	"github.com/SwastikKasera/askleaf-livechat-server/pkg/log"
)

// Sweeper periodically evicts conversations inactive beyond the threshold
// from the index and rebroadcasts the dashboard snapshot. The durable store
// is never touched.
type Sweeper struct {
	index       *index.ConversationIndex
	broadcaster service.Broadcaster
	interval    time.Duration
	threshold   time.Duration
	now         func() time.Time
	cancel      context.CancelFunc
}

func NewSweeper(idx *index.ConversationIndex, broadcaster service.Broadcaster, interval, threshold time.Duration) *Sweeper {
	return &Sweeper{
		index:       idx,
		broadcaster: broadcaster,
		interval:    interval,
		threshold:   threshold,
		now:         time.Now,
	}
}

func (s *Sweeper) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	go s.run(ctx)
	l := log.L()
	l.Info().Dur("interval", s.interval).Dur("threshold", s.threshold).Msg("eviction sweeper started")
}

func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Sweeper) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one eviction pass and rebroadcasts the snapshot, even when
// nothing was evicted, so dashboard state tracks wall-clock staleness.
func (s *Sweeper) Sweep(ctx context.Context) {
	evicted := s.index.EvictOlderThan(s.now().Add(-s.threshold))
	if evicted > 0 {
		l := log.Ctx(ctx)
		l.Info().Int("evicted", evicted).Msg("evicted stale conversations")
	}
	s.broadcaster.PublishToAll(domain.EventChatUpdated, domain.ChatUpdatedPayload{Summaries: s.index.Snapshot()})
}
