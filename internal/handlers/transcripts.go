package handlers

import (
	"errors"
	"os"

	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/video-transcription/internal/storage"
)

// TranscriptIndex is the read side of the metadata store.
type TranscriptIndex interface {
	ListTranscripts(limit int) ([]storage.TranscriptRecord, error)
	GetTranscript(jobID string) (storage.TranscriptRecord, error)
}

// TranscriptsHandler serves stored transcripts.
type TranscriptsHandler struct {
	index TranscriptIndex
}

func NewTranscriptsHandler(index TranscriptIndex) *TranscriptsHandler {
	return &TranscriptsHandler{index: index}
}

// List handles GET /transcripts?limit=N.
func (h *TranscriptsHandler) List(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	transcripts, err := h.index.ListTranscripts(limit)
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, err.Error(), "ERR_DB")
	}
	return c.JSON(transcripts)
}

// Text handles GET /transcripts/:id/text.
func (h *TranscriptsHandler) Text(c *fiber.Ctx) error {
	return h.sendFile(c, func(rec storage.TranscriptRecord) string { return rec.LocalPath }, fiber.MIMETextPlainCharsetUTF8)
}

// Segments handles GET /transcripts/:id/segments.
func (h *TranscriptsHandler) Segments(c *fiber.Ctx) error {
	return h.sendFile(c, func(rec storage.TranscriptRecord) string { return rec.SegmentsPath }, fiber.MIMEApplicationJSONCharsetUTF8)
}

func (h *TranscriptsHandler) sendFile(c *fiber.Ctx, pick func(storage.TranscriptRecord) string, contentType string) error {
	rec, err := h.index.GetTranscript(c.Params("id"))
	if errors.Is(err, storage.ErrNotFound) {
		return errorJSON(c, fiber.StatusNotFound, "Transcript not found", "ERR_NOT_FOUND")
	}
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, err.Error(), "ERR_DB")
	}

	path := pick(rec)
	if path == "" {
		return errorJSON(c, fiber.StatusNotFound, "Transcript file path not found", "ERR_NOT_FOUND")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to read transcript file", "ERR_READ_FAILED")
	}
	c.Set(fiber.HeaderContentType, contentType)
	return c.Send(content)
}
