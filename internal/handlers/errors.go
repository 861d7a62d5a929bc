package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/video-transcription/internal/queue"
	"github.com/codebuildervaibhav/video-transcription/internal/transcription"
)

func errorJSON(c *fiber.Ctx, status int, message, code string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": message,
		"code":  code,
	})
}

// pipelineError maps a pipeline failure to an HTTP status and error code.
func pipelineError(err error) (int, string) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout, "ERR_TIMEOUT"
	case errors.Is(err, transcription.ErrNoAudioTrack):
		return fiber.StatusUnprocessableEntity, "ERR_NO_AUDIO"
	case errors.Is(err, transcription.ErrInvalidDuration):
		return fiber.StatusUnprocessableEntity, "ERR_INVALID_DURATION"
	case errors.Is(err, transcription.ErrTranscode):
		return fiber.StatusInternalServerError, "ERR_TRANSCODE"
	case errors.Is(err, transcription.ErrTranscriptionService):
		return fiber.StatusBadGateway, "ERR_TRANSCRIPTION_SERVICE"
	default:
		return fiber.StatusInternalServerError, "ERR_INTERNAL"
	}
}

func enqueueError(c *fiber.Ctx, err error) error {
	if errors.Is(err, queue.ErrQueueFull) || errors.Is(err, queue.ErrPoolStopped) {
		return errorJSON(c, fiber.StatusServiceUnavailable, err.Error(), "ERR_QUEUE_UNAVAILABLE")
	}
	return errorJSON(c, fiber.StatusInternalServerError, err.Error(), "ERR_ENQUEUE_FAILED")
}

// Enqueuer accepts asynchronous transcription jobs.
type Enqueuer interface {
	EnqueueJob(job *queue.Job) error
}

// CaptureQueue is an Enqueuer that also tracks jobs while their video is
// being fetched.
type CaptureQueue interface {
	Enqueuer
	Capturing(job *queue.Job)
	CaptureFailed(job *queue.Job, err error)
}
