package handlers

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/codebuildervaibhav/video-transcription/internal/queue"
	"github.com/codebuildervaibhav/video-transcription/internal/transcription"
	"github.com/codebuildervaibhav/video-transcription/internal/types"
)

// UploadHandler handles file uploads
type UploadHandler struct {
	jobs      Enqueuer
	tempDir   string
	maxSizeMB int
	logger    *slog.Logger
}

// NewUploadHandler creates a new upload handler
func NewUploadHandler(jobs Enqueuer, tempDir string, maxSizeMB int, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{
		jobs:      jobs,
		tempDir:   tempDir,
		maxSizeMB: maxSizeMB,
		logger:    logger,
	}
}

// Handle processes the upload request
func (h *UploadHandler) Handle(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "No file uploaded", "ERR_NO_FILE")
	}

	requestName := c.FormValue("name")
	if requestName == "" {
		requestName = "untitled"
	}

	maxSize := int64(h.maxSizeMB) * 1024 * 1024
	if h.maxSizeMB > 0 && file.Size > maxSize {
		return errorJSON(c, fiber.StatusBadRequest, fmt.Sprintf("File too large (max %dMB)", h.maxSizeMB), "ERR_FILE_TOO_LARGE")
	}

	if !transcription.ValidateVideoFormat(file.Filename) {
		return errorJSON(c, fiber.StatusBadRequest, "Unsupported video format", "ERR_INVALID_FORMAT")
	}

	jobID := uuid.New().String()
	tempPath := filepath.Join(h.tempDir, "upload_"+jobID+filepath.Ext(file.Filename))

	if err := c.SaveFile(file, tempPath); err != nil {
		h.logger.Error("failed to save uploaded file", slog.String("error", err.Error()))
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to save file", "ERR_SAVE_FAILED")
	}

	if err := h.jobs.EnqueueJob(queue.NewJob(jobID, requestName, types.SourceUpload, tempPath)); err != nil {
		_ = os.Remove(tempPath)
		return enqueueError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"job_id":  jobID,
		"status":  types.StatusQueued,
		"message": "File uploaded successfully, processing started",
	})
}
