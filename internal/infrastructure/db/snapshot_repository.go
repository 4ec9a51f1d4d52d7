package db

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"

	"gorm.io/gorm"

	"github.com/taskpulse/backend/internal/core/ports"
	"github.com/taskpulse/backend/internal/domain"
	"github.com/taskpulse/backend/internal/infrastructure/logger"
)

type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("failed to scan JSONB: invalid type")
	}
	return json.Unmarshal(bytes, j)
}

// TaskSnapshot is one persisted task record. The full record travels as a
// JSONB payload so the table never lags behind the wire shape.
type TaskSnapshot struct {
	TaskID  string  `gorm:"primaryKey;size:255"`
	Payload JSONB   `gorm:"type:jsonb;not null"`
	SavedAt float64 `gorm:"not null"`
}

type snapshotRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewSnapshotRepository returns a SnapshotStore backed by the task_snapshots
// table. Save replaces the stored set in one transaction, so Load never
// observes a partial snapshot.
func NewSnapshotRepository(database *gorm.DB, log *logger.Logger) ports.SnapshotStore {
	return &snapshotRepository{
		db:  database,
		log: log,
	}
}

func (r *snapshotRepository) Load(ctx context.Context) (domain.Snapshot, error) {
	var rows []TaskSnapshot
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		r.log.Errorw("snapshot_repo_load_failed", "error", err)
		return domain.Snapshot{}, err
	}

	now := domain.NowSeconds()
	restored := make(domain.Snapshot, len(rows))
	for _, row := range rows {
		raw, err := json.Marshal(row.Payload)
		if err != nil {
			continue
		}
		var rec domain.TaskRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			r.log.Warnw("snapshot_repo_bad_row", "task_id", row.TaskID, "error", err)
			continue
		}
		if rec.TaskID == "" {
			rec.TaskID = row.TaskID
		}
		rec.MarkRecovered(now)
		restored[rec.TaskID] = rec
	}

	r.log.Infow("snapshot_repo_load_ok", "tasks", len(restored))
	return restored, nil
}

func (r *snapshotRepository) Save(ctx context.Context, snap domain.Snapshot) error {
	savedAt := domain.NowSeconds()

	rows := make([]TaskSnapshot, 0, len(snap))
	for id, rec := range snap {
		raw, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		var payload JSONB
		if err := json.Unmarshal(raw, &payload); err != nil {
			return err
		}
		rows = append(rows, TaskSnapshot{
			TaskID:  id,
			Payload: payload,
			SavedAt: savedAt,
		})
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&TaskSnapshot{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, 200).Error
	})
	if err != nil {
		r.log.Errorw("snapshot_repo_save_failed", "tasks", len(rows), "error", err)
		return err
	}
	return nil
}
