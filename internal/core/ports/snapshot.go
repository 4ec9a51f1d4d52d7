package ports

import (
	"context"

	"github.com/taskpulse/backend/internal/domain"
)

// SnapshotStore is the durable boundary for task snapshots. Implementations
// must make Save atomic from a reader's perspective: Load never observes a
// half-written snapshot.
type SnapshotStore interface {
	// Load reads the last saved snapshot. A missing target yields an empty
	// snapshot and no error; a corrupt one yields an empty snapshot plus a
	// recoverable error the caller logs and continues past.
	Load(ctx context.Context) (domain.Snapshot, error)

	// Save replaces the stored snapshot wholesale.
	Save(ctx context.Context, snap domain.Snapshot) error
}
