package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/taskpulse/backend/internal/config"
	"github.com/taskpulse/backend/internal/core/ports"
	"github.com/taskpulse/backend/internal/core/services"
	"github.com/taskpulse/backend/internal/infrastructure/db"
	"github.com/taskpulse/backend/internal/infrastructure/logger"
	"github.com/taskpulse/backend/internal/infrastructure/persist"
	transporthttp "github.com/taskpulse/backend/internal/transport/http"
)

func main() {
	configPath := "config/config.yaml"
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		configPath = "../config/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log, err := logger.New(cfg.Logger)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	snapshotStore := newSnapshotStore(cfg, log)

	store := services.NewTaskStore()
	if snapshotStore != nil {
		loadCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		restored, err := snapshotStore.Load(loadCtx)
		cancel()
		if err != nil {
			log.Warnw("snapshot_load_degraded", "error", err)
		}
		if len(restored) > 0 {
			store.Seed(restored)
			log.Infow("tasks_recovered", "count", len(restored))
		}
	}

	broadcaster := services.NewBroadcastService(log)
	saver := services.NewSaveQueue(services.SaveQueueConfig{
		Store:       snapshotStore,
		SaveTimeout: cfg.Persistence.SaveTimeout,
		Logger:      log,
	})
	lifecycle := services.NewLifecycleService(services.LifecycleServiceConfig{
		Store:       store,
		Broadcaster: broadcaster,
		Saver:       saver,
		Interval:    cfg.Lifecycle.CleanupInterval,
		Policy: services.SweepPolicy{
			StaleSeconds:     cfg.Lifecycle.StaleSeconds,
			RetentionSeconds: cfg.Lifecycle.RetentionSeconds,
			MaxTaskAge:       cfg.Lifecycle.MaxTaskAge,
		},
		Logger: log,
	})

	bgCtx, stopBackground := context.WithCancel(context.Background())
	go saver.Run(bgCtx)
	go lifecycle.Run(bgCtx)

	app := fiber.New(fiber.Config{
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		ErrorHandler:          globalErrorHandler(log),
		DisableStartupMessage: true,
	})

	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	if len(cfg.Auth.AllowedOrigins) > 0 {
		app.Use(cors.New(cors.Config{
			AllowOrigins: strings.Join(cfg.Auth.AllowedOrigins, ","),
			AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Api-Token",
			AllowMethods: "GET, POST, HEAD, DELETE",
		}))
	}

	app.Use(func(c *fiber.Ctx) error {
		hdr := cfg.Features.RequestIDHeader
		var reqID string
		if hdr != "" {
			reqID = c.Get(hdr)
		}
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Locals("request_id", reqID)
		return c.Next()
	})

	if cfg.Features.EnableRequestLogging {
		app.Use(func(c *fiber.Ctx) error {
			start := time.Now()
			err := c.Next()
			log.Infow("http_access",
				"method", c.Method(),
				"path", c.Path(),
				"status", c.Response().StatusCode(),
				"latency_ms", time.Since(start).Milliseconds(),
				"client_ip", c.IP(),
				"request_id", c.Locals("request_id"),
			)
			return err
		})
	}

	transporthttp.SetupRoutes(app, transporthttp.RouterConfig{
		Store:       store,
		Broadcaster: broadcaster,
		Saver:       saver,
		Logger:      log,
		Config:      cfg,
	})

	addr := cfg.Server.Address()
	go func() {
		if err := app.Listen(addr); err != nil {
			log.Fatalf("server failed to start: %v", err)
		}
	}()
	log.Infof("server started on %s", addr)

	gracefulShutdown(app, store, broadcaster, snapshotStore, stopBackground, log)
}

func newSnapshotStore(cfg *config.Config, log *logger.Logger) ports.SnapshotStore {
	switch cfg.Persistence.Driver {
	case "postgres":
		database, err := db.NewPostgresConnection(cfg.Database)
		if err != nil {
			log.Warnw("persistence_unavailable", "driver", "postgres", "error", err)
			return nil
		}
		if err := db.RunMigrations(database); err != nil {
			log.Warnw("persistence_migration_failed", "error", err)
			return nil
		}
		log.Info("database persistence enabled")
		return db.NewSnapshotRepository(database, log)
	case "file":
		if cfg.Persistence.Path == "" {
			log.Warnw("persistence_unavailable", "driver", "file", "error", "no path configured")
			return nil
		}
		fileStore, err := persist.NewFileStore(cfg.Persistence.Path, log)
		if err != nil {
			log.Warnw("persistence_unavailable", "driver", "file", "error", err)
			return nil
		}
		log.Infof("file persistence enabled at %s", cfg.Persistence.Path)
		return fileStore
	case "":
		return nil
	default:
		log.Warnw("persistence_unavailable", "driver", cfg.Persistence.Driver, "error", "unknown driver")
		return nil
	}
}

func globalErrorHandler(log *logger.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
		}

		if code == fiber.StatusRequestTimeout || code == fiber.StatusNotFound {
			log.Warnw("request failed",
				"method", c.Method(),
				"path", c.Path(),
				"status", code,
				"error", err.Error(),
				"request_id", c.Locals("request_id"),
			)
		} else {
			log.Errorw("request error",
				"method", c.Method(),
				"path", c.Path(),
				"status", code,
				"error", err.Error(),
				"request_id", c.Locals("request_id"),
			)
		}

		return c.Status(code).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
}

func gracefulShutdown(
	app *fiber.App,
	store *services.TaskStore,
	broadcaster *services.BroadcastService,
	snapshotStore ports.SnapshotStore,
	stopBackground context.CancelFunc,
	log *logger.Logger,
) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	log.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Errorf("server forced to shutdown: %v", err)
	}

	broadcaster.Close()
	stopBackground()

	if snapshotStore != nil {
		if err := snapshotStore.Save(ctx, store.Snapshot()); err != nil {
			log.Errorf("final snapshot save failed: %v", err)
		}
	}

	log.Info("server exited gracefully")
}
