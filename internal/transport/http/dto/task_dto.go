package dto

import "github.com/taskpulse/backend/internal/domain"

type ErrorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

// SnapshotResponse is the wire shape shared by the snapshot query and every
// websocket push.
type SnapshotResponse struct {
	Tasks domain.Snapshot `json:"tasks"`
}

func NewSnapshotResponse(snap domain.Snapshot) SnapshotResponse {
	if snap == nil {
		snap = domain.Snapshot{}
	}
	return SnapshotResponse{Tasks: snap}
}

type DeleteResponse struct {
	Removed bool `json:"removed"`
}

type BulkDeleteResponse struct {
	Removed    int      `json:"removed"`
	RemovedIDs []string `json:"removed_ids"`
}

type HealthResponse struct {
	Status string `json:"status"`
	Tasks  int    `json:"tasks"`
}
