package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/taskpulse/backend/internal/core/services"
	"github.com/taskpulse/backend/internal/domain"
	"github.com/taskpulse/backend/internal/infrastructure/logger"
	"github.com/taskpulse/backend/internal/transport/http/dto"
)

type TaskHandler struct {
	store       *services.TaskStore
	broadcaster *services.BroadcastService
	saver       *services.SaveQueue
	logger      *logger.Logger
}

func NewTaskHandler(store *services.TaskStore, broadcaster *services.BroadcastService, saver *services.SaveQueue, logger *logger.Logger) *TaskHandler {
	return &TaskHandler{store: store, broadcaster: broadcaster, saver: saver, logger: logger}
}

// List returns the full current snapshot.
func (h *TaskHandler) List(c *fiber.Ctx) error {
	return c.JSON(dto.NewSnapshotResponse(h.store.Snapshot()))
}

// Delete removes a single task. A missing id is a no-op, not an error.
func (h *TaskHandler) Delete(c *fiber.Ctx) error {
	taskID := c.Params("id")

	removed := h.store.Delete(taskID)
	if removed {
		h.logger.Infow("task_deleted", "task_id", taskID)
		h.afterMutation()
	}
	return c.JSON(dto.DeleteResponse{Removed: removed})
}

// BulkDelete removes every task matching the status and older_than filters
// (AND semantics) and returns what was removed.
func (h *TaskHandler) BulkDelete(c *fiber.Ctx) error {
	status := domain.TaskStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		h.logger.Warnw("tasks_bulk_delete_bad_status", "status", status)
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: "invalid status filter",
		})
	}
	olderThan := c.QueryFloat("older_than", 0)

	removedIDs := h.store.DeleteWhere(status, olderThan, domain.NowSeconds())
	if len(removedIDs) > 0 {
		h.logger.Infow("tasks_bulk_deleted", "count", len(removedIDs), "status", status, "older_than", olderThan)
		h.afterMutation()
	}
	if removedIDs == nil {
		removedIDs = []string{}
	}
	return c.JSON(dto.BulkDeleteResponse{
		Removed:    len(removedIDs),
		RemovedIDs: removedIDs,
	})
}

// Health reports liveness and the current task count. Unauthenticated.
func (h *TaskHandler) Health(c *fiber.Ctx) error {
	return c.JSON(dto.HealthResponse{Status: "ok", Tasks: h.store.Len()})
}

func (h *TaskHandler) afterMutation() {
	snapshot := h.store.Snapshot()
	h.saver.Enqueue(snapshot)
	h.broadcaster.Publish(snapshot)
}
