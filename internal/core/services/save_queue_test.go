package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/taskpulse/backend/internal/domain"
)

func TestSaveQueueWritesEnqueuedSnapshot(t *testing.T) {
	target := &memorySnapshotStore{}
	saver := NewSaveQueue(SaveQueueConfig{Store: target, Logger: newTestLogger(t)})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		saver.Run(ctx)
		close(done)
	}()

	saver.Enqueue(domain.Snapshot{"a": {TaskID: "a"}})

	deadline := time.After(time.Second)
	for target.saveCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("snapshot never saved")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-done
}

func TestSaveQueueCoalescesToLatest(t *testing.T) {
	target := &memorySnapshotStore{}
	saver := NewSaveQueue(SaveQueueConfig{Store: target, Logger: newTestLogger(t)})

	// Queue several snapshots before the writer loop starts; only the newest
	// may survive.
	for i := 0; i < 5; i++ {
		saver.Enqueue(domain.Snapshot{
			"a": {TaskID: "a", N: float64(i)},
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		saver.Run(ctx)
		close(done)
	}()

	deadline := time.After(time.Second)
	for target.saveCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("snapshot never saved")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	if got := target.saved[0]["a"].N; got != 4 {
		t.Errorf("first saved snapshot has n = %v, want the latest (4)", got)
	}
}

func TestSaveQueueFlushesPendingOnShutdown(t *testing.T) {
	target := &memorySnapshotStore{}
	saver := NewSaveQueue(SaveQueueConfig{Store: target, Logger: newTestLogger(t)})

	saver.Enqueue(domain.Snapshot{"a": {TaskID: "a"}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	saver.Run(ctx)

	if target.saveCount() != 1 {
		t.Errorf("save count = %d after shutdown flush, want 1", target.saveCount())
	}
}

func TestSaveQueueSurvivesSaveErrors(t *testing.T) {
	target := &memorySnapshotStore{err: errors.New("disk full")}
	saver := NewSaveQueue(SaveQueueConfig{Store: target, Logger: newTestLogger(t)})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		saver.Run(ctx)
		close(done)
	}()

	saver.Enqueue(domain.Snapshot{"a": {TaskID: "a"}})
	time.Sleep(20 * time.Millisecond)

	// The loop is still alive after the failure.
	target.mu.Lock()
	target.err = nil
	target.mu.Unlock()
	saver.Enqueue(domain.Snapshot{"b": {TaskID: "b"}})

	deadline := time.After(time.Second)
	for target.saveCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("saver never recovered after an error")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-done
}

func TestSaveQueueNoopWithoutStore(t *testing.T) {
	saver := NewSaveQueue(SaveQueueConfig{Logger: newTestLogger(t)})

	// Must not block or panic.
	saver.Enqueue(domain.Snapshot{"a": {TaskID: "a"}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		saver.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
