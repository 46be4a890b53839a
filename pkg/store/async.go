package store

import (
	"context"
	"sync"
	"time"

	"github.com/tinyland-inc/relayclaw/pkg/logger"
	"github.com/tinyland-inc/relayclaw/pkg/relay"
)

const (
	asyncQueueSize = 256
	writeTimeout   = 10 * time.Second
)

type archiveJob struct {
	msgs []relay.Message
	ack  *relay.AckRecord
}

// Async decouples archiving from request handling: writes are queued onto
// a bounded channel and performed by a single worker. When the queue is
// full the job is dropped and counted, never blocking the caller.
type Async struct {
	backend Archiver
	jobs    chan archiveJob
	dropped int64

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

func NewAsync(backend Archiver) *Async {
	return &Async{
		backend: backend,
		jobs:    make(chan archiveJob, asyncQueueSize),
	}
}

func (a *Async) Start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return
	}
	workerCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})
	a.running = true
	go a.run(workerCtx, a.done)
}

func (a *Async) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	a.cancel()
	done := a.done
	a.mu.Unlock()
	<-done
}

func (a *Async) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-a.jobs:
			writeCtx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			var err error
			if job.ack != nil {
				err = a.backend.ArchiveAck(writeCtx, *job.ack)
			} else {
				err = a.backend.ArchiveMessages(writeCtx, job.msgs)
			}
			cancel()
			if err != nil {
				logger.WarnCF("store", "Archive write failed", map[string]any{
					"error": err.Error(),
				})
			}
		}
	}
}

func (a *Async) enqueue(job archiveJob) {
	select {
	case a.jobs <- job:
	default:
		a.mu.Lock()
		a.dropped++
		n := a.dropped
		a.mu.Unlock()
		logger.WarnCF("store", "Archive queue full, job dropped", map[string]any{
			"dropped_total": n,
		})
	}
}

func (a *Async) ArchiveMessages(ctx context.Context, msgs []relay.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	copied := make([]relay.Message, len(msgs))
	copy(copied, msgs)
	a.enqueue(archiveJob{msgs: copied})
	return nil
}

func (a *Async) ArchiveAck(ctx context.Context, rec relay.AckRecord) error {
	a.enqueue(archiveJob{ack: &rec})
	return nil
}

// Dropped returns how many jobs were discarded due to backpressure.
func (a *Async) Dropped() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dropped
}
