package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/taskpulse/backend/internal/domain"
)

// memorySnapshotStore records saves for assertions.
type memorySnapshotStore struct {
	mu    sync.Mutex
	saved []domain.Snapshot
	err   error
}

func (m *memorySnapshotStore) Load(ctx context.Context) (domain.Snapshot, error) {
	return domain.Snapshot{}, nil
}

func (m *memorySnapshotStore) Save(ctx context.Context, snap domain.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, snap)
	return nil
}

func (m *memorySnapshotStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

func TestTickPublishesOnceWhenSweepChanges(t *testing.T) {
	log := newTestLogger(t)
	store := NewTaskStore()
	broadcaster := NewBroadcastService(log)
	defer broadcaster.Close()

	mustApply(t, store, &domain.ProgressEvent{TaskID: "idle", Status: statusPtr(domain.StatusUpdate), Timestamp: fptr(1000)})
	mustApply(t, store, &domain.ProgressEvent{TaskID: "gone", Status: statusPtr(domain.StatusClose), Timestamp: fptr(500)})

	now := 1200.0
	lifecycle := NewLifecycleService(LifecycleServiceConfig{
		Store:       store,
		Broadcaster: broadcaster,
		Policy:      SweepPolicy{StaleSeconds: 100, RetentionSeconds: 120},
		NowFn:       func() float64 { return now },
		Logger:      log,
	})

	obs := broadcaster.Subscribe(store.Snapshot())
	recvSnapshot(t, obs) // catch-up

	lifecycle.Tick()

	snap := recvSnapshot(t, obs)
	if _, ok := snap["gone"]; ok {
		t.Error("closed record survived retention in the published snapshot")
	}
	if snap["idle"].Status != domain.StatusStale {
		t.Errorf("idle task status = %q in published snapshot, want stale", snap["idle"].Status)
	}

	// One sweep produces exactly one broadcast even though two records changed.
	select {
	case extra := <-obs.C:
		t.Errorf("unexpected second broadcast from one sweep: %v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTickIsQuietWhenNothingChanges(t *testing.T) {
	log := newTestLogger(t)
	store := NewTaskStore()
	broadcaster := NewBroadcastService(log)
	defer broadcaster.Close()

	mustApply(t, store, &domain.ProgressEvent{TaskID: "fresh", Timestamp: fptr(1000)})

	lifecycle := NewLifecycleService(LifecycleServiceConfig{
		Store:       store,
		Broadcaster: broadcaster,
		Policy:      SweepPolicy{RetentionSeconds: 120},
		NowFn:       func() float64 { return 1001 },
		Logger:      log,
	})

	obs := broadcaster.Subscribe(store.Snapshot())
	recvSnapshot(t, obs)

	lifecycle.Tick()

	select {
	case snap := <-obs.C:
		t.Errorf("no-op sweep still broadcast a snapshot: %v", snap)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	log := newTestLogger(t)
	store := NewTaskStore()
	broadcaster := NewBroadcastService(log)
	defer broadcaster.Close()

	lifecycle := NewLifecycleService(LifecycleServiceConfig{
		Store:       store,
		Broadcaster: broadcaster,
		Interval:    time.Millisecond,
		Policy:      SweepPolicy{RetentionSeconds: 120},
		Logger:      log,
	})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		lifecycle.Run(ctx)
		close(stopped)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancellation")
	}
}

func TestTickHandsSnapshotToSaver(t *testing.T) {
	log := newTestLogger(t)
	store := NewTaskStore()
	broadcaster := NewBroadcastService(log)
	defer broadcaster.Close()

	target := &memorySnapshotStore{}
	saver := NewSaveQueue(SaveQueueConfig{Store: target, Logger: log})
	ctx, cancel := context.WithCancel(context.Background())
	saverDone := make(chan struct{})
	go func() {
		saver.Run(ctx)
		close(saverDone)
	}()

	mustApply(t, store, &domain.ProgressEvent{TaskID: "gone", Status: statusPtr(domain.StatusClose), Timestamp: fptr(500)})

	lifecycle := NewLifecycleService(LifecycleServiceConfig{
		Store:       store,
		Broadcaster: broadcaster,
		Saver:       saver,
		Policy:      SweepPolicy{RetentionSeconds: 120},
		NowFn:       func() float64 { return 1200 },
		Logger:      log,
	})
	lifecycle.Tick()

	cancel()
	<-saverDone

	if target.saveCount() == 0 {
		t.Fatal("sweep did not hand the changed snapshot to the saver")
	}
	last := target.saved[len(target.saved)-1]
	if len(last) != 0 {
		t.Errorf("persisted snapshot still contains %d tasks, want 0", len(last))
	}
}
