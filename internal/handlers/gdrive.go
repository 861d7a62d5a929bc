package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"regexp"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/codebuildervaibhav/video-transcription/internal/queue"
	"github.com/codebuildervaibhav/video-transcription/internal/transcription"
	"github.com/codebuildervaibhav/video-transcription/internal/types"
)

const driveDownloadURL = "https://drive.google.com/uc?export=download&id=%s"

var (
	driveFilePattern  = regexp.MustCompile(`/file/d/([a-zA-Z0-9_-]+)`)
	driveQueryPattern = regexp.MustCompile(`[?&]id=([a-zA-Z0-9_-]+)`)
	driveIDPattern    = regexp.MustCompile(`^([a-zA-Z0-9_-]{25,40})$`)
)

var errTooLarge = errors.New("file too large")

// GDriveHandler downloads a shared Drive video and enqueues it.
type GDriveHandler struct {
	jobs        Enqueuer
	tempDir     string
	maxSizeMB   int
	client      *http.Client
	downloadURL string
	logger      *slog.Logger
}

// NewGDriveHandler creates a new Google Drive handler
func NewGDriveHandler(jobs Enqueuer, tempDir string, maxSizeMB int, logger *slog.Logger) *GDriveHandler {
	return &GDriveHandler{
		jobs:        jobs,
		tempDir:     tempDir,
		maxSizeMB:   maxSizeMB,
		client:      http.DefaultClient,
		downloadURL: driveDownloadURL,
		logger:      logger,
	}
}

// GDriveRequest represents the request body
type GDriveRequest struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

// Handle processes Google Drive link requests
func (h *GDriveHandler) Handle(c *fiber.Ctx) error {
	var req GDriveRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body", "ERR_INVALID_BODY")
	}
	if req.URL == "" {
		return errorJSON(c, fiber.StatusBadRequest, "URL is required", "ERR_NO_URL")
	}

	fileID := extractGDriveFileID(req.URL)
	if fileID == "" {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid Google Drive URL", "ERR_INVALID_URL")
	}
	if req.Name == "" {
		req.Name = "gdrive_file"
	}

	jobID := uuid.New().String()
	h.logger.Info("downloading from google drive", slog.String("file_id", fileID), slog.String("job_id", jobID))

	httpReq, err := http.NewRequestWithContext(c.UserContext(), http.MethodGet, fmt.Sprintf(h.downloadURL, fileID), nil)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid Google Drive URL", "ERR_INVALID_URL")
	}
	resp, err := h.client.Do(httpReq)
	if err != nil {
		h.logger.Error("google drive download failed", slog.String("error", err.Error()))
		return errorJSON(c, fiber.StatusBadGateway, "Failed to download file from Google Drive", "ERR_DOWNLOAD_FAILED")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errorJSON(c, fiber.StatusBadRequest, "File not accessible (may be private or doesn't exist)", "ERR_FILE_NOT_ACCESSIBLE")
	}

	tempPath := filepath.Join(h.tempDir, "gdrive_"+jobID+downloadExt(resp))
	if err := h.save(tempPath, resp.Body); err != nil {
		_ = os.Remove(tempPath)
		if errors.Is(err, errTooLarge) {
			return errorJSON(c, fiber.StatusBadRequest, fmt.Sprintf("File too large (max %dMB)", h.maxSizeMB), "ERR_FILE_TOO_LARGE")
		}
		h.logger.Error("failed to save drive download", slog.String("error", err.Error()))
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to write downloaded file", "ERR_WRITE_FAILED")
	}

	if err := h.jobs.EnqueueJob(queue.NewJob(jobID, req.Name, types.SourceGDrive, tempPath)); err != nil {
		_ = os.Remove(tempPath)
		return enqueueError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"job_id":  jobID,
		"status":  types.StatusQueued,
		"message": "Google Drive file downloaded, processing started",
	})
}

func (h *GDriveHandler) save(path string, body io.Reader) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()

	if h.maxSizeMB <= 0 {
		_, err = io.Copy(out, body)
		return err
	}
	limit := int64(h.maxSizeMB) * 1024 * 1024
	n, err := io.Copy(out, io.LimitReader(body, limit+1))
	if err != nil {
		return err
	}
	if n > limit {
		return errTooLarge
	}
	return nil
}

// downloadExt takes the extension from the served filename when it names a
// video container, defaulting to .mp4.
func downloadExt(resp *http.Response) string {
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		if name := params["filename"]; transcription.ValidateVideoFormat(name) {
			return filepath.Ext(name)
		}
	}
	return ".mp4"
}

// extractGDriveFileID extracts the file ID from various Google Drive URL formats
func extractGDriveFileID(url string) string {
	// https://drive.google.com/file/d/{ID}/view
	if m := driveFilePattern.FindStringSubmatch(url); len(m) > 1 {
		return m[1]
	}
	// https://drive.google.com/open?id={ID}
	if m := driveQueryPattern.FindStringSubmatch(url); len(m) > 1 {
		return m[1]
	}
	if m := driveIDPattern.FindStringSubmatch(url); len(m) > 1 {
		return m[1]
	}
	return ""
}
