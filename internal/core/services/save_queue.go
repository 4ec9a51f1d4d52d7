package services

import (
	"context"
	"time"

	"github.com/taskpulse/backend/internal/core/ports"
	"github.com/taskpulse/backend/internal/domain"
	"github.com/taskpulse/backend/internal/infrastructure/logger"
)

// SaveQueue decouples the request path from persistence. Enqueue never
// blocks: a pending snapshot that has not been written yet is simply replaced
// by the newer one, so a crash loses at most the events since the last
// completed save. Save failures are logged and serving continues in-memory.
type SaveQueue struct {
	store   ports.SnapshotStore
	pending chan domain.Snapshot
	timeout time.Duration
	logger  *logger.Logger
}

type SaveQueueConfig struct {
	Store       ports.SnapshotStore
	SaveTimeout time.Duration
	Logger      *logger.Logger
}

func NewSaveQueue(cfg SaveQueueConfig) *SaveQueue {
	timeout := cfg.SaveTimeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &SaveQueue{
		store:   cfg.Store,
		pending: make(chan domain.Snapshot, 1),
		timeout: timeout,
		logger:  cfg.Logger,
	}
}

// Enqueue hands a snapshot to the writer loop and returns immediately. With
// no snapshot store configured it is a no-op.
func (q *SaveQueue) Enqueue(snapshot domain.Snapshot) {
	if q.store == nil {
		return
	}
	for {
		select {
		case q.pending <- snapshot:
			return
		default:
			// Discard the stale pending snapshot and retry with the new one.
			select {
			case <-q.pending:
			default:
			}
		}
	}
}

// Run writes queued snapshots until the context is cancelled, then flushes
// any still-pending snapshot before returning.
func (q *SaveQueue) Run(ctx context.Context) {
	if q.store == nil {
		<-ctx.Done()
		return
	}

	for {
		select {
		case snapshot := <-q.pending:
			q.save(ctx, snapshot)
		case <-ctx.Done():
			select {
			case snapshot := <-q.pending:
				q.save(context.Background(), snapshot)
			default:
			}
			return
		}
	}
}

func (q *SaveQueue) save(ctx context.Context, snapshot domain.Snapshot) {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), q.timeout)
	defer cancel()

	if err := q.store.Save(saveCtx, snapshot); err != nil {
		q.logger.Errorw("snapshot_save_failed", "tasks", len(snapshot), "error", err)
		return
	}
	q.logger.Debugw("snapshot_save_ok", "tasks", len(snapshot))
}
