package domain

import "time"

// NowSeconds returns the current time as float seconds since epoch, the
// timestamp representation used on the wire and in snapshots.
func NowSeconds() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

// TaskStatus is the lifecycle state reported by clients or derived by the
// background sweep.
type TaskStatus string

const (
	StatusStart  TaskStatus = "start"
	StatusUpdate TaskStatus = "update"
	StatusStale  TaskStatus = "stale"
	StatusClose  TaskStatus = "close"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case StatusStart, StatusUpdate, StatusStale, StatusClose:
		return true
	}
	return false
}

// ProgressEvent is one reported state change for a task. All fields except
// TaskID are optional; absent fields must not overwrite stored values.
// Timestamps are float seconds since epoch to match the wire format.
type ProgressEvent struct {
	TaskID    string                 `json:"task_id"`
	Desc      *string                `json:"desc,omitempty"`
	Total     *float64               `json:"total,omitempty"`
	N         *float64               `json:"n,omitempty"`
	Unit      *string                `json:"unit,omitempty"`
	Status    *TaskStatus            `json:"status,omitempty"`
	Timestamp *float64               `json:"timestamp,omitempty"`
	Meta      map[string]interface{} `json:"meta,omitempty"`
}

// TaskRecord is the latest known state of one task. The store owns all
// records; everything handed out is a copy.
type TaskRecord struct {
	TaskID    string                 `json:"task_id"`
	Desc      string                 `json:"desc,omitempty"`
	Total     *float64               `json:"total"`
	N         float64                `json:"n"`
	Unit      string                 `json:"unit,omitempty"`
	Status    TaskStatus             `json:"status"`
	CreatedAt float64                `json:"created_at"`
	UpdatedAt float64                `json:"updated_at"`
	DoneAt    float64                `json:"done_at,omitempty"`
	StaleAt   float64                `json:"stale_at,omitempty"`
	Meta      map[string]interface{} `json:"meta,omitempty"`

	// Recovered marks a record restored from a persisted snapshot. It is
	// transient: the next real event clears it.
	Recovered   bool    `json:"recovered,omitempty"`
	RecoveredAt float64 `json:"recovered_at,omitempty"`
}

// Clone returns a deep copy, including the meta map.
func (t TaskRecord) Clone() TaskRecord {
	out := t
	if t.Total != nil {
		total := *t.Total
		out.Total = &total
	}
	if t.Meta != nil {
		meta := make(map[string]interface{}, len(t.Meta))
		for k, v := range t.Meta {
			meta[k] = v
		}
		out.Meta = meta
	}
	return out
}

// MarkRecovered tags a record loaded from a persisted snapshot and backfills
// timestamps a partial snapshot may be missing. Close and stale records keep
// their status; anything else is normalized to update so the sweep treats the
// record as active again.
func (t *TaskRecord) MarkRecovered(now float64) {
	t.Recovered = true
	t.RecoveredAt = now
	if t.CreatedAt == 0 {
		t.CreatedAt = now
	}
	if t.UpdatedAt == 0 {
		t.UpdatedAt = t.CreatedAt
	}
	if t.Status != StatusClose && t.Status != StatusStale {
		t.Status = StatusUpdate
	}
}

// Snapshot is the full current mapping of all tasks' latest state. Once built
// it is treated as immutable value data.
type Snapshot map[string]TaskRecord

// Clone deep-copies every record.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for id, rec := range s {
		out[id] = rec.Clone()
	}
	return out
}
