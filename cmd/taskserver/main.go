package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/relaycode/taskserver/internal/agent"
	"github.com/relaycode/taskserver/internal/agent/docker"
	"github.com/relaycode/taskserver/internal/api"
	"github.com/relaycode/taskserver/internal/common/config"
	"github.com/relaycode/taskserver/internal/common/logger"
	"github.com/relaycode/taskserver/internal/events/bus"
	"github.com/relaycode/taskserver/internal/session"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	log, err := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("starting task execution server", zap.String("version", version))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Connect the lifecycle telemetry bus: NATS if configured, an
	// in-process bus otherwise.
	telemetry, err := bus.New(cfg.Events, log)
	if err != nil {
		log.Fatal("failed to initialize event bus", zap.Error(err))
	}
	defer telemetry.Close()

	// 4. Initialize the Docker client backing the Agent Adapter, if enabled.
	var newAdapter session.Factory
	if cfg.Docker.Enabled {
		dockerClient, err := docker.NewClient(cfg.Docker, log)
		if err != nil {
			log.Fatal("failed to initialize docker client", zap.Error(err))
		}
		if err := dockerClient.Ping(ctx); err != nil {
			log.Fatal("failed to connect to docker daemon", zap.Error(err))
		}
		log.Info("connected to docker daemon")

		newAdapter = func() agent.Adapter {
			return docker.NewAdapter(dockerClient, cfg.Docker, cfg.Agent, log)
		}
	} else {
		log.Fatal("agent.docker.enabled=false: no alternative agent transport is configured")
	}

	// 5. Initialize the Session Manager and start its idle reaper.
	manager := session.NewManager(session.Config{
		MaxConcurrent:      cfg.Session.MaxConcurrent,
		IdleTimeout:        cfg.Session.IdleTimeout(),
		CleanupInterval:    cfg.Session.CleanupInterval(),
		EventQueueCapacity: cfg.Task.MaxQueueSize,
	}, newAdapter, log, telemetry)
	manager.Start()

	// 6. Initialize the HTTP/Stream Façade: task registry, handlers, router.
	registry := api.NewRegistry()
	handlers := api.NewHandlers(manager, registry, telemetry, log, api.Config{
		DefaultTaskTimeout: cfg.Task.DefaultTimeout(),
		RunDirectory:       cfg.Task.RunDirectory,
		StreamPathPrefix:   "/ws",
	}, version)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(handlers, cfg.Auth, cfg.Metrics, "/ws", log)

	// 7. Start the HTTP server.
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	go func() {
		log.Info("http server listening", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start http server", zap.Error(err))
		}
	}()

	// 8. Wait for shutdown signal.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down task execution server")

	// 9. Graceful shutdown: stop accepting new work, then disconnect every
	// live session. In-flight executors observe stream termination as each
	// session's agent connection is disconnected and emit their own
	// terminal COMPLETE events.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown error", zap.Error(err))
	}

	manager.Shutdown(shutdownCtx)

	log.Info("task execution server stopped")
}
