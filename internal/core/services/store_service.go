package services

import (
	"sync"

	"github.com/taskpulse/backend/internal/domain"
)

// TaskStore is the single source of truth for task state. All mutation goes
// through Apply, Delete, DeleteWhere and Sweep, which are mutually exclusive;
// Snapshot and Len run concurrently under a read lock. No I/O happens inside
// the lock.
type TaskStore struct {
	tasks map[string]*domain.TaskRecord
	mu    sync.RWMutex
}

func NewTaskStore() *TaskStore {
	return &TaskStore{
		tasks: make(map[string]*domain.TaskRecord),
	}
}

// Apply validates and merges one event into the store, creating the record on
// the first event for its task_id. Fields absent from the event keep their
// stored values; meta is merged key by key. Returns a copy of the resulting
// record.
func (s *TaskStore) Apply(event *domain.ProgressEvent) (*domain.TaskRecord, error) {
	if event.TaskID == "" {
		return nil, ErrEventMissingTaskID
	}
	if event.Status != nil && !event.Status.Valid() {
		return nil, ErrEventInvalidStatus
	}

	now := domain.NowSeconds()
	eventTime := now
	if event.Timestamp != nil {
		eventTime = *event.Timestamp
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	task, exists := s.tasks[event.TaskID]
	if !exists {
		task = &domain.TaskRecord{
			TaskID:    event.TaskID,
			Status:    domain.StatusStart,
			CreatedAt: eventTime,
		}
		s.tasks[event.TaskID] = task
	}

	if event.Desc != nil {
		task.Desc = *event.Desc
	}
	if event.Total != nil {
		total := *event.Total
		task.Total = &total
	}
	if event.N != nil {
		task.N = *event.N
	}
	if event.Unit != nil {
		task.Unit = *event.Unit
	}
	if event.Meta != nil {
		if task.Meta == nil {
			task.Meta = make(map[string]interface{}, len(event.Meta))
		}
		for k, v := range event.Meta {
			task.Meta[k] = v
		}
	}

	// Status always reflects the latest event; an omitted status means the
	// task is being updated.
	if event.Status != nil {
		task.Status = *event.Status
	} else {
		task.Status = domain.StatusUpdate
	}
	task.UpdatedAt = eventTime

	if task.Status == domain.StatusClose && task.DoneAt == 0 {
		task.DoneAt = now
	}
	if task.Status != domain.StatusStale {
		task.StaleAt = 0
	}
	task.Recovered = false
	task.RecoveredAt = 0

	result := task.Clone()
	return &result, nil
}

// Seed installs records restored from a persisted snapshot. Intended for
// startup, before any traffic; existing entries with the same id are replaced.
func (s *TaskStore) Seed(snap domain.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, rec := range snap {
		restored := rec.Clone()
		s.tasks[id] = &restored
	}
}

// Snapshot returns a point-in-time deep copy of every record.
func (s *TaskStore) Snapshot() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := make(domain.Snapshot, len(s.tasks))
	for id, task := range s.tasks {
		snap[id] = task.Clone()
	}
	return snap
}

func (s *TaskStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// Delete removes one record and reports whether it existed.
func (s *TaskStore) Delete(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.tasks[taskID]
	delete(s.tasks, taskID)
	return exists
}

// DeleteWhere removes every record matching all provided filters: status (if
// non-empty) and idle time strictly greater than olderThan seconds (if > 0).
// Returns the removed ids.
func (s *TaskStore) DeleteWhere(status domain.TaskStatus, olderThan float64, now float64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []string
	for id, task := range s.tasks {
		if status != "" && task.Status != status {
			continue
		}
		if olderThan > 0 && now-task.UpdatedAt <= olderThan {
			continue
		}
		removed = append(removed, id)
	}
	for _, id := range removed {
		delete(s.tasks, id)
	}
	return removed
}

// SweepPolicy carries the lifecycle thresholds in seconds. A zero threshold
// disables that rule, except retention which is expected to be positive.
type SweepPolicy struct {
	StaleSeconds     float64
	RetentionSeconds float64
	MaxTaskAge       float64
}

// SweepResult reports what one sweep pass changed.
type SweepResult struct {
	Removed []string
	Staled  []string
}

func (r SweepResult) Changed() bool {
	return len(r.Removed) > 0 || len(r.Staled) > 0
}

// Sweep runs one lifecycle pass: max-age eviction first (it takes precedence
// over every other rule), then stale-marking of remaining active records,
// then retention eviction of remaining closed records.
func (s *TaskStore) Sweep(now float64, policy SweepPolicy) SweepResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result SweepResult

	if policy.MaxTaskAge > 0 {
		for id, task := range s.tasks {
			if now-task.UpdatedAt > policy.MaxTaskAge {
				result.Removed = append(result.Removed, id)
				delete(s.tasks, id)
			}
		}
	}

	if policy.StaleSeconds > 0 {
		for id, task := range s.tasks {
			if task.Status == domain.StatusClose || task.Status == domain.StatusStale {
				continue
			}
			if now-task.UpdatedAt > policy.StaleSeconds {
				task.Status = domain.StatusStale
				task.StaleAt = now
				result.Staled = append(result.Staled, id)
			}
		}
	}

	if policy.RetentionSeconds > 0 {
		for id, task := range s.tasks {
			if task.Status != domain.StatusClose {
				continue
			}
			if now-task.UpdatedAt > policy.RetentionSeconds {
				result.Removed = append(result.Removed, id)
				delete(s.tasks, id)
			}
		}
	}

	return result
}
