package services

import (
	"sync"

	"github.com/google/uuid"
	"github.com/taskpulse/backend/internal/domain"
	"github.com/taskpulse/backend/internal/infrastructure/logger"
)

// observerBuffer is how many snapshots may queue up per observer before it is
// considered a slow consumer and dropped. Snapshots supersede each other, so a
// small buffer only has to absorb short write stalls.
const observerBuffer = 16

// Observer is one connected consumer of snapshot pushes. Read from C until it
// is closed, then stop; the channel closes when the observer is unsubscribed
// or dropped for falling behind.
type Observer struct {
	ID uuid.UUID
	C  <-chan domain.Snapshot
}

// BroadcastService fans full snapshots out to every registered observer.
// Delivery is best-effort latest-state: a slow or broken observer is dropped,
// never allowed to block the publisher or its peers.
type BroadcastService struct {
	observers map[uuid.UUID]chan domain.Snapshot
	mu        sync.Mutex
	closed    bool
	logger    *logger.Logger
}

func NewBroadcastService(log *logger.Logger) *BroadcastService {
	return &BroadcastService{
		observers: make(map[uuid.UUID]chan domain.Snapshot),
		logger:    log,
	}
}

// Subscribe registers a new observer. The catch-up snapshot is queued before
// registration completes, so the observer always sees current state before
// any later mutation-triggered snapshot.
func (s *BroadcastService) Subscribe(catchup domain.Snapshot) *Observer {
	ch := make(chan domain.Snapshot, observerBuffer)
	ch <- catchup

	id := uuid.New()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return &Observer{ID: id, C: ch}
	}
	s.observers[id] = ch
	s.logger.Infow("observer_subscribed", "observer_id", id, "observers", len(s.observers))
	return &Observer{ID: id, C: ch}
}

// Unsubscribe removes an observer and closes its channel. Safe to call more
// than once.
func (s *BroadcastService) Unsubscribe(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, exists := s.observers[id]
	if !exists {
		return
	}
	delete(s.observers, id)
	close(ch)
	s.logger.Infow("observer_unsubscribed", "observer_id", id, "observers", len(s.observers))
}

// Publish queues the snapshot for every observer without blocking. An
// observer whose buffer is full is dropped; the failure never propagates to
// the caller.
func (s *BroadcastService) Publish(snapshot domain.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	for id, ch := range s.observers {
		select {
		case ch <- snapshot:
		default:
			delete(s.observers, id)
			close(ch)
			s.logger.Warnw("observer_dropped_slow", "observer_id", id, "observers", len(s.observers))
		}
	}
}

// Count returns the number of registered observers.
func (s *BroadcastService) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.observers)
}

// Close drops every observer. Publish and Subscribe after Close are no-ops.
func (s *BroadcastService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.observers {
		delete(s.observers, id)
		close(ch)
	}
}
