package handlers

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/codebuildervaibhav/video-transcription/internal/queue"
	"github.com/codebuildervaibhav/video-transcription/internal/types"
)

// StreamHandler receives a video over a WebSocket. Binary frames carry
// video bytes; text frames set the request name, "ext:<container>" sets
// the container extension, and "END" finishes the upload.
type StreamHandler struct {
	jobs      Enqueuer
	maxSizeMB int
	logger    *slog.Logger
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(jobs Enqueuer, maxSizeMB int, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{
		jobs:      jobs,
		maxSizeMB: maxSizeMB,
		logger:    logger,
	}
}

// Handle processes WebSocket connections
func (h *StreamHandler) Handle(c *websocket.Conn) {
	defer c.Close()

	var (
		buffer      bytes.Buffer
		requestName = "stream_recording"
		ext         = ".webm"
		jobID       = uuid.New().String()
		limit       = int64(h.maxSizeMB) * 1024 * 1024
		logger      = h.logger.With(slog.String("job_id", jobID))
	)
	logger.Info("websocket stream opened")

	for {
		messageType, message, err := c.ReadMessage()
		if err != nil {
			logger.Warn("websocket read error", slog.String("error", err.Error()))
			return
		}

		if messageType == websocket.TextMessage {
			msg := strings.TrimSpace(string(message))
			if msg == "END" {
				break
			}
			if rest, ok := strings.CutPrefix(msg, "ext:"); ok && rest != "" {
				ext = "." + strings.TrimPrefix(rest, ".")
				continue
			}
			if msg != "" && len(msg) < 200 {
				requestName = msg
			}
			continue
		}

		if messageType == websocket.BinaryMessage {
			if limit > 0 && int64(buffer.Len()+len(message)) > limit {
				h.reply(c, map[string]string{"error": "stream too large", "code": "ERR_FILE_TOO_LARGE"})
				return
			}
			buffer.Write(message)
		}
	}

	if buffer.Len() == 0 {
		logger.Warn("no video data received")
		h.reply(c, map[string]string{"error": "no video data received", "code": "ERR_NO_FILE"})
		return
	}

	job := &queue.Job{
		ID:          jobID,
		RequestName: requestName,
		SourceType:  types.SourceStream,
		Data:        buffer.Bytes(),
		Ext:         ext,
	}
	if err := h.jobs.EnqueueJob(job); err != nil {
		h.reply(c, map[string]string{"error": err.Error(), "code": "ERR_QUEUE_UNAVAILABLE"})
		return
	}

	logger.Info("stream received", slog.Int("bytes", buffer.Len()), slog.String("ext", ext))
	h.reply(c, map[string]string{"job_id": jobID, "status": types.StatusQueued})
}

func (h *StreamHandler) reply(c *websocket.Conn, body map[string]string) {
	b, _ := json.Marshal(body)
	if err := c.WriteMessage(websocket.TextMessage, b); err != nil {
		h.logger.Warn("websocket write failed", slog.String("error", err.Error()))
	}
}
