package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/taskpulse/backend/internal/core/services"
	"github.com/taskpulse/backend/internal/domain"
	"github.com/taskpulse/backend/internal/infrastructure/logger"
	"github.com/taskpulse/backend/internal/transport/http/dto"
)

type ProgressHandler struct {
	store       *services.TaskStore
	broadcaster *services.BroadcastService
	saver       *services.SaveQueue
	logger      *logger.Logger
}

func NewProgressHandler(store *services.TaskStore, broadcaster *services.BroadcastService, saver *services.SaveQueue, logger *logger.Logger) *ProgressHandler {
	return &ProgressHandler{store: store, broadcaster: broadcaster, saver: saver, logger: logger}
}

// Ingest applies one progress event and echoes the normalized record. The
// snapshot fan-out and persistence hand-off happen after the store call, off
// the critical section.
func (h *ProgressHandler) Ingest(c *fiber.Ctx) error {
	var event domain.ProgressEvent
	if err := c.BodyParser(&event); err != nil {
		h.logger.Warnw("progress_body_parse_failed", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: "invalid request body",
		})
	}

	// Credentials smuggled through meta must never reach the store.
	delete(event.Meta, "_token")

	record, err := h.store.Apply(&event)
	if err != nil {
		if errors.Is(err, services.ErrEventMissingTaskID) || errors.Is(err, services.ErrEventInvalidStatus) {
			h.logger.Warnw("progress_event_rejected", "task_id", event.TaskID, "error", err)
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Error: err.Error(),
			})
		}
		h.logger.Errorw("progress_apply_failed", "task_id", event.TaskID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: err.Error(),
		})
	}

	snapshot := h.store.Snapshot()
	h.saver.Enqueue(snapshot)
	h.broadcaster.Publish(snapshot)

	h.logger.Debugw("progress_event_applied", "task_id", record.TaskID, "status", record.Status)
	return c.JSON(record)
}
