package relay

import (
	"context"
	"sync"
	"time"

	"github.com/tinyland-inc/relayclaw/pkg/logger"
)

// Sweeper evicts idle sessions, expires per-message TTLs and prunes stale
// ack records on a fixed interval. It takes per-session locks one at a time
// and never holds two, so it cannot deadlock against request handlers.
type Sweeper struct {
	broker         *Broker
	interval       time.Duration
	sessionTimeout time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
	now     func() time.Time
}

func NewSweeper(broker *Broker, interval, sessionTimeout time.Duration) *Sweeper {
	return &Sweeper{
		broker:         broker,
		interval:       interval,
		sessionTimeout: sessionTimeout,
		now:            time.Now,
	}
}

// Start launches the sweep loop. Starting an already-running sweeper is a
// no-op.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.running = true

	go s.run(ctx)
}

// Stop cancels the loop and waits for the in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.running = false
	s.mu.Unlock()

	cancel()
	<-done
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(s.now())
		}
	}
}

// Sweep performs one pass: idle sessions are removed together with their
// queues and channel bindings, live queues have expired messages dropped,
// and old ack records are pruned. Exported so tests and the console can
// trigger a pass directly.
func (s *Sweeper) Sweep(now time.Time) {
	expired := 0
	expiredMsgs := 0

	for _, id := range s.broker.Registry().IDs() {
		session, ok := s.broker.Registry().Get(id)
		if !ok {
			continue
		}

		if now.Sub(session.LastActivity) > s.sessionTimeout {
			channels := s.broker.Bindings().UnbindSession(id)
			s.broker.Registry().Remove(id)
			s.broker.Stats().Forget(id)
			s.broker.Feed().Publish(TelemetryEvent{Kind: "session_expired", SessionID: id})
			logger.InfoCF("sweeper", "Cleaned up expired session", map[string]any{
				"session_id": id,
				"idle":       now.Sub(session.LastActivity).String(),
				"unbound":    len(channels),
			})
			expired++
			continue
		}

		if queue, ok := s.broker.Registry().Queue(id); ok {
			if n := queue.Expire(now); n > 0 {
				s.broker.Stats().RecordExpired(id, n)
				s.broker.Feed().Publish(TelemetryEvent{Kind: "expiry", SessionID: id, Count: n})
				logger.DebugCF("sweeper", "Expired messages", map[string]any{
					"session_id": id,
					"count":      n,
				})
				expiredMsgs += n
			}
		}
	}

	pruned := s.broker.Acks().Prune(now)

	if expired > 0 || expiredMsgs > 0 || pruned > 0 {
		logger.DebugCF("sweeper", "Sweep complete", map[string]any{
			"sessions_expired": expired,
			"messages_expired": expiredMsgs,
			"acks_pruned":      pruned,
		})
	}
}
