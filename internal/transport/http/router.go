package http

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/taskpulse/backend/internal/config"
	"github.com/taskpulse/backend/internal/core/services"
	"github.com/taskpulse/backend/internal/infrastructure/logger"
	"github.com/taskpulse/backend/internal/transport/http/handlers"
	httpmw "github.com/taskpulse/backend/internal/transport/http/middleware"
)

type RouterConfig struct {
	Store       *services.TaskStore
	Broadcaster *services.BroadcastService
	Saver       *services.SaveQueue
	Logger      *logger.Logger
	Config      *config.Config
}

func SetupRoutes(app *fiber.App, cfg RouterConfig) {
	progressHandler := handlers.NewProgressHandler(cfg.Store, cfg.Broadcaster, cfg.Saver, cfg.Logger)
	taskHandler := handlers.NewTaskHandler(cfg.Store, cfg.Broadcaster, cfg.Saver, cfg.Logger)
	watchHandler := handlers.NewWatchHandler(cfg.Store, cfg.Broadcaster, cfg.Logger)

	app.Get("/health", taskHandler.Health)

	// Observer push channel. The token is checked before the upgrade; the
	// websocket handler itself never sees unauthorized connections.
	app.Use("/ws", httpmw.TokenAuth(cfg.Config), func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return c.SendStatus(fiber.StatusUpgradeRequired)
	})
	app.Get("/ws/watch", websocket.New(watchHandler.Handle))

	api := app.Group("/api/v1", httpmw.TokenAuth(cfg.Config))
	api.Post("/progress", progressHandler.Ingest)
	api.Get("/tasks", taskHandler.List)
	api.Delete("/tasks", taskHandler.BulkDelete)
	api.Delete("/tasks/:id", taskHandler.Delete)
}
