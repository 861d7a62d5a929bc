package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/codebuildervaibhav/video-transcription/internal/cleanup"
	"github.com/codebuildervaibhav/video-transcription/internal/config"
	"github.com/codebuildervaibhav/video-transcription/internal/events"
	"github.com/codebuildervaibhav/video-transcription/internal/handlers"
	"github.com/codebuildervaibhav/video-transcription/internal/queue"
	"github.com/codebuildervaibhav/video-transcription/internal/storage"
	"github.com/codebuildervaibhav/video-transcription/internal/telemetry"
	"github.com/codebuildervaibhav/video-transcription/internal/transcription"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "video-transcription: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logBuffer := NewLogBuffer(1000)
	log := slog.New(slog.NewTextHandler(io.MultiWriter(os.Stdout, logBuffer), &slog.HandlerOptions{
		Level: telemetry.ParseLevel(cfg.Telemetry.LogLevel),
	}))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, metricsHandler, err := telemetry.Setup(ctx, cfg.Telemetry, log)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	for _, dir := range []string{cfg.Storage.TempDir, cfg.Storage.OutputDir} {
		if err := cleanup.EnsureDir(dir, log); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	client, err := newTranscriber(cfg, log)
	if err != nil {
		return err
	}
	pipeline := transcription.NewPipeline(
		transcription.NewExtractor(cfg.Storage.TempDir, log),
		transcription.NewTranscoder("ffmpeg", log),
		client,
		cfg.Storage.TempDir,
		log,
	)

	localStorage := storage.NewLocalStorage(cfg.Storage.OutputDir)

	db, err := storage.NewMetadataDB(cfg.Storage.Database)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer db.Close()

	// Drive is optional; transcripts are always saved locally.
	var uploader queue.Uploader
	if _, err := os.Stat(cfg.GoogleDrive.CredentialsFile); err == nil {
		driveClient, err := storage.NewDriveClient(ctx, cfg.GoogleDrive.CredentialsFile, cfg.GoogleDrive.TokenFile, cfg.GoogleDrive.FolderName)
		if err != nil {
			log.Warn("google drive not available, saving locally only", slog.String("error", err.Error()))
		} else {
			uploader = driveClient
			log.Info("google drive integration enabled", slog.String("folder", cfg.GoogleDrive.FolderName))
		}
	} else {
		log.Info("google drive credentials not found, saving locally only")
	}

	publisher, err := events.Connect(ctx, cfg.Events, log)
	if err != nil {
		log.Warn("job events disabled", slog.String("error", err.Error()))
	}
	defer publisher.Close()

	timeout := time.Duration(cfg.Transcription.TimeoutSeconds) * time.Second
	workerPool := queue.NewWorkerPool(queue.Options{
		Workers:     cfg.Workers.Count,
		QueueSize:   cfg.Workers.QueueSize,
		Target:      cfg.Compression,
		Language:    cfg.Transcription.Language,
		Timeout:     timeout,
		MaxAttempts: cfg.Transcription.MaxAttempts,
		KeepAudio:   cfg.Storage.KeepAudio,
	}, pipeline, localStorage, uploader, db, publisher, log)
	workerPool.Start()
	defer workerPool.Stop()

	cleanupScheduler := cleanup.NewScheduler(cfg.Storage.TempDir, cfg.Cleanup.IntervalMinutes, cfg.Cleanup.MaxAgeHours, log)
	cleanupScheduler.Start()
	defer cleanupScheduler.Stop()

	app := fiber.New(fiber.Config{
		BodyLimit:             cfg.Limits.MaxFileSizeMB * 1024 * 1024,
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{Output: io.MultiWriter(os.Stdout, logBuffer)}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))

	transcribeHandler := handlers.NewTranscribeHandler(pipeline, localStorage, handlers.TranscribeOptions{
		Target:    cfg.Compression,
		Language:  cfg.Transcription.Language,
		Timeout:   timeout,
		MaxSizeMB: cfg.Limits.MaxFileSizeMB,
	}, log)
	uploadHandler := handlers.NewUploadHandler(workerPool, cfg.Storage.TempDir, cfg.Limits.MaxFileSizeMB, log)
	gdriveHandler := handlers.NewGDriveHandler(workerPool, cfg.Storage.TempDir, cfg.Limits.MaxFileSizeMB, log)
	youtubeHandler := handlers.NewYouTubeHandler(workerPool, cfg.Storage.TempDir, log)
	streamHandler := handlers.NewStreamHandler(workerPool, cfg.Limits.MaxFileSizeMB, log)
	jobsHandler := handlers.NewJobsHandler(workerPool.Registry())
	transcriptsHandler := handlers.NewTranscriptsHandler(db)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"version": "1.0.0",
			"backend": cfg.Transcription.Backend,
		})
	})

	app.Post("/video_transcribe", transcribeHandler.Handle)
	app.Post("/upload", uploadHandler.Handle)
	app.Post("/gdrive", gdriveHandler.Handle)
	app.Post("/youtube", youtubeHandler.Handle)
	app.Get("/ws/stream", websocket.New(streamHandler.Handle))
	app.Get("/jobs/:id", jobsHandler.Handle)

	app.Get("/transcripts", transcriptsHandler.List)
	app.Get("/transcripts/:id/text", transcriptsHandler.Text)
	app.Get("/transcripts/:id/segments", transcriptsHandler.Segments)

	app.Get("/logs", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"logs": logBuffer.Lines()})
	})
	if metricsHandler != nil {
		app.Get("/metrics", adaptor.HTTPHandler(metricsHandler))
	}

	go func() {
		<-ctx.Done()
		log.Info("shutting down gracefully")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Warn("server shutdown failed", slog.String("error", err.Error()))
		}
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Info("server starting",
		slog.String("addr", addr),
		slog.String("backend", cfg.Transcription.Backend),
		slog.Int("target_size_kb", cfg.Compression.TargetSizeKB),
	)
	if err := app.Listen(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

func newTranscriber(cfg config.Config, log *slog.Logger) (transcription.Transcriber, error) {
	switch cfg.Transcription.Backend {
	case "whisper":
		w, err := transcription.NewWhisperCLI(cfg.Transcription.WhisperCommand, cfg.Storage.TempDir, log)
		if err != nil {
			return nil, fmt.Errorf("init whisper backend: %w", err)
		}
		log.Info("using local whisper backend", slog.String("command", cfg.Transcription.WhisperCommand))
		return w, nil
	default:
		if cfg.Transcription.APIKey == "" {
			log.Warn("no transcription API key configured, requests will be sent unauthenticated")
		}
		log.Info("using HTTP transcription backend",
			slog.String("endpoint", cfg.Transcription.Endpoint),
			slog.String("model", cfg.Transcription.Model),
		)
		return transcription.NewHTTPClient(cfg.Transcription.Endpoint, cfg.Transcription.APIKey, cfg.Transcription.Model, nil), nil
	}
}
