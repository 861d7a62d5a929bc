package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/codebuildervaibhav/video-transcription/internal/queue"
	"github.com/codebuildervaibhav/video-transcription/internal/types"
)

const youtubeCaptureTimeout = 30 * time.Minute

// YouTubeHandler downloads a video with yt-dlp and enqueues it.
type YouTubeHandler struct {
	jobs    CaptureQueue
	tempDir string
	logger  *slog.Logger

	fetch func(ctx context.Context, url, outputPath string) error
	title func(ctx context.Context, url string) (string, error)
	async bool
}

// NewYouTubeHandler creates a new YouTube handler
func NewYouTubeHandler(jobs CaptureQueue, tempDir string, logger *slog.Logger) *YouTubeHandler {
	return &YouTubeHandler{
		jobs:    jobs,
		tempDir: tempDir,
		logger:  logger,
		fetch:   downloadWithYtDlp,
		title:   pageTitle,
		async:   true,
	}
}

// YouTubeRequest represents the request body
type YouTubeRequest struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

// Handle processes YouTube video requests
func (h *YouTubeHandler) Handle(c *fiber.Ctx) error {
	var req YouTubeRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body", "ERR_INVALID_BODY")
	}
	if req.URL == "" {
		return errorJSON(c, fiber.StatusBadRequest, "URL is required", "ERR_NO_URL")
	}
	if !strings.HasPrefix(req.URL, "http://") && !strings.HasPrefix(req.URL, "https://") {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid YouTube URL", "ERR_INVALID_URL")
	}

	jobID := uuid.New().String()
	h.jobs.Capturing(queue.NewJob(jobID, req.Name, types.SourceYouTube, ""))
	if h.async {
		// Downloads can take minutes for long videos.
		go h.capture(jobID, req)
	} else {
		h.capture(jobID, req)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"job_id":  jobID,
		"status":  "capturing",
		"message": "YouTube download started (this may take a few minutes for long videos)",
	})
}

func (h *YouTubeHandler) capture(jobID string, req YouTubeRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), youtubeCaptureTimeout)
	defer cancel()
	logger := h.logger.With(slog.String("job_id", jobID), slog.String("url", req.URL))

	name := req.Name
	if name == "" {
		title, err := h.title(ctx, req.URL)
		if err != nil {
			logger.Warn("page title lookup failed", slog.String("error", err.Error()))
		}
		name = title
	}
	if name == "" {
		name = "youtube_video"
	}

	tempPath := filepath.Join(h.tempDir, "youtube_"+jobID+".mp4")
	logger.Info("downloading youtube video")
	job := queue.NewJob(jobID, name, types.SourceYouTube, tempPath)
	if err := h.fetch(ctx, req.URL, tempPath); err != nil {
		logger.Error("youtube download failed", slog.String("error", err.Error()))
		_ = os.Remove(tempPath)
		h.jobs.CaptureFailed(job, err)
		return
	}

	if err := h.jobs.EnqueueJob(job); err != nil {
		logger.Error("failed to enqueue youtube job", slog.String("error", err.Error()))
		_ = os.Remove(tempPath)
		h.jobs.CaptureFailed(job, fmt.Errorf("enqueue: %w", err))
	}
}

// pageTitle loads the page in headless Chrome and returns its title
// without the site suffix.
func pageTitle(ctx context.Context, url string) (string, error) {
	ctx, cancel := chromedp.NewContext(ctx)
	defer cancel()
	ctx, cancel = context.WithTimeout(ctx, time.Minute)
	defer cancel()

	var title string
	if err := chromedp.Run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.Title(&title),
	); err != nil {
		return "", fmt.Errorf("load page: %w", err)
	}
	return strings.TrimSpace(strings.TrimSuffix(title, " - YouTube")), nil
}

// downloadWithYtDlp requires yt-dlp on PATH.
func downloadWithYtDlp(ctx context.Context, url, outputPath string) error {
	cmd := exec.CommandContext(ctx, "yt-dlp",
		"-f", "bv*+ba/b",
		"--merge-output-format", "mp4",
		"--no-playlist",
		"-o", outputPath,
		url,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("yt-dlp failed: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}
