package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/codebuildervaibhav/video-transcription/internal/queue"
	"github.com/codebuildervaibhav/video-transcription/internal/transcription"
	"github.com/codebuildervaibhav/video-transcription/internal/types"
)

// TranscribeHandler runs the pipeline inside the request and returns the
// transcript directly.
type TranscribeHandler struct {
	pipeline  queue.VideoTranscriber
	store     queue.ResultStore
	target    types.CompressionTarget
	language  string
	timeout   time.Duration
	maxSizeMB int
	logger    *slog.Logger
}

// TranscribeOptions configures a TranscribeHandler.
type TranscribeOptions struct {
	Target    types.CompressionTarget
	Language  string
	Timeout   time.Duration
	MaxSizeMB int
}

func NewTranscribeHandler(pipeline queue.VideoTranscriber, store queue.ResultStore, opts TranscribeOptions, logger *slog.Logger) *TranscribeHandler {
	return &TranscribeHandler{
		pipeline:  pipeline,
		store:     store,
		target:    opts.Target,
		language:  opts.Language,
		timeout:   opts.Timeout,
		maxSizeMB: opts.MaxSizeMB,
		logger:    logger,
	}
}

// Handle processes POST /video_transcribe.
func (h *TranscribeHandler) Handle(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "No file uploaded", "ERR_NO_FILE")
	}
	if h.maxSizeMB > 0 && file.Size > int64(h.maxSizeMB)*1024*1024 {
		return errorJSON(c, fiber.StatusBadRequest, fmt.Sprintf("File too large (max %dMB)", h.maxSizeMB), "ERR_FILE_TOO_LARGE")
	}
	if !transcription.ValidateVideoFormat(file.Filename) {
		return errorJSON(c, fiber.StatusBadRequest, "Unsupported video format", "ERR_INVALID_FORMAT")
	}

	name := c.FormValue("name")
	if name == "" {
		name = strings.TrimSuffix(file.Filename, filepath.Ext(file.Filename))
	}
	language := c.FormValue("language", h.language)

	src, err := file.Open()
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to read upload", "ERR_READ_FAILED")
	}
	defer src.Close()

	ctx := c.UserContext()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	jobID := uuid.New().String()
	logger := h.logger.With(slog.String("job_id", jobID), slog.String("file", file.Filename))
	logger.Info("synchronous transcription started", slog.Int64("size_bytes", file.Size))

	result, err := h.pipeline.TranscribeVideo(ctx, transcription.Request{
		Video:    transcription.VideoFromReader(src, filepath.Ext(file.Filename)),
		Target:   h.target,
		Language: language,
	})
	if err != nil {
		status, code := pipelineError(err)
		logger.Error("synchronous transcription failed", slog.Int("status", status), slog.String("error", err.Error()))
		return errorJSON(c, status, err.Error(), code)
	}
	result.JobID = jobID

	paths, err := h.store.SaveTranscript(name, result)
	if err != nil {
		logger.Warn("failed to persist transcript", slog.String("error", err.Error()))
	} else {
		result.LocalPath = paths.Text
		result.JSONPath = paths.Segments
	}

	return c.JSON(fiber.Map{
		"job_id":             jobID,
		"transcription_text": result.Text,
		"segments":           result.Segments,
		"bitrate_kbps":       result.BitrateKbps,
		"duration_seconds":   result.Duration,
		"segments_path":      result.JSONPath,
	})
}
