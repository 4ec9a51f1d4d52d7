package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/taskpulse/backend/internal/core/ports"
	"github.com/taskpulse/backend/internal/domain"
	"github.com/taskpulse/backend/internal/infrastructure/logger"
)

const formatVersion = 1

// snapshotFile is the on-disk envelope: {"tasks": {...}} plus bookkeeping,
// float timestamps in seconds throughout.
type snapshotFile struct {
	Tasks   domain.Snapshot `json:"tasks"`
	Version int             `json:"version"`
	SavedAt float64         `json:"saved_at"`
}

type fileStore struct {
	path string
	log  *logger.Logger
}

// NewFileStore returns a SnapshotStore backed by a single JSON file. Saves
// are write-temp-then-rename so a reader never sees a half-written file.
func NewFileStore(path string, log *logger.Logger) (ports.SnapshotStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to prepare snapshot directory: %w", err)
	}
	return &fileStore{path: path, log: log}, nil
}

func (f *fileStore) Load(ctx context.Context) (domain.Snapshot, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.Snapshot{}, nil
		}
		return domain.Snapshot{}, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	var payload snapshotFile
	if err := json.Unmarshal(data, &payload); err != nil {
		return domain.Snapshot{}, fmt.Errorf("failed to parse snapshot file: %w", err)
	}

	now := domain.NowSeconds()
	restored := make(domain.Snapshot, len(payload.Tasks))
	for id, rec := range payload.Tasks {
		if id == "" {
			continue
		}
		if rec.TaskID == "" {
			rec.TaskID = id
		}
		rec.MarkRecovered(now)
		restored[id] = rec
	}

	f.log.Infow("snapshot_loaded", "path", f.path, "tasks", len(restored))
	return restored, nil
}

func (f *fileStore) Save(ctx context.Context, snap domain.Snapshot) error {
	payload := snapshotFile{
		Tasks:   snap,
		Version: formatVersion,
		SavedAt: domain.NowSeconds(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot temp file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace snapshot file: %w", err)
	}
	return nil
}
