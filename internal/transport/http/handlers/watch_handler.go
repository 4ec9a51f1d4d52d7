package handlers

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/taskpulse/backend/internal/core/services"
	"github.com/taskpulse/backend/internal/infrastructure/logger"
	"github.com/taskpulse/backend/internal/transport/http/dto"
)

// writeTimeout bounds every push to an observer so one stuck socket never
// stalls its delivery loop indefinitely.
const writeTimeout = 5 * time.Second

type WatchHandler struct {
	store       *services.TaskStore
	broadcaster *services.BroadcastService
	logger      *logger.Logger
}

func NewWatchHandler(store *services.TaskStore, broadcaster *services.BroadcastService, logger *logger.Logger) *WatchHandler {
	return &WatchHandler{store: store, broadcaster: broadcaster, logger: logger}
}

// Handle runs one observer connection: subscribe with a catch-up snapshot,
// then forward every published snapshot until the peer disconnects or falls
// behind. Each observer has its own delivery loop; none serializes behind
// another.
func (h *WatchHandler) Handle(c *websocket.Conn) {
	observer := h.broadcaster.Subscribe(h.store.Snapshot())
	defer h.broadcaster.Unsubscribe(observer.ID)
	defer c.Close()

	// Reads are only used to notice the peer going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case snapshot, ok := <-observer.C:
			if !ok {
				// Dropped by the broadcaster for falling behind.
				return
			}
			c.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.WriteJSON(dto.NewSnapshotResponse(snapshot)); err != nil {
				h.logger.Debugw("observer_write_failed", "observer_id", observer.ID, "error", err)
				return
			}
		case <-gone:
			return
		}
	}
}
