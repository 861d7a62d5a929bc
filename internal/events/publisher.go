package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/codebuildervaibhav/video-transcription/internal/config"
)

// JobEvent is published on every job status transition.
type JobEvent struct {
	JobID       string    `json:"job_id"`
	RequestName string    `json:"request_name"`
	Source      string    `json:"source"`
	Status      string    `json:"status"`
	Attempt     int       `json:"attempt,omitempty"`
	Error       string    `json:"error,omitempty"`
	BitrateKbps int       `json:"bitrate_kbps,omitempty"`
	Duration    float64   `json:"duration_seconds,omitempty"`
	LocalPath   string    `json:"local_path,omitempty"`
	GDriveURL   string    `json:"gdrive_url,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
	Close()
}

// Publisher sends job events to NATS. A nil Publisher drops events.
type Publisher struct {
	conn   conn
	prefix string
	log    *slog.Logger
}

func Connect(ctx context.Context, cfg config.EventsConfig, log *slog.Logger) (*Publisher, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if len(cfg.Servers) == 0 {
		return nil, errors.New("no NATS servers configured")
	}

	options := []nats.Option{
		nats.Name("video-transcription"),
		nats.Timeout(time.Duration(cfg.ConnectTimeout) * time.Millisecond),
	}
	if cfg.Token != "" {
		options = append(options, nats.Token(cfg.Token))
	}

	url := strings.Join(cfg.Servers, ",")
	nc, err := nats.Connect(url, options...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	if err := ctx.Err(); err != nil {
		nc.Close()
		return nil, err
	}

	log.Info("connected to NATS", slog.String("servers", url))
	return newPublisher(nc, cfg.SubjectPrefix, log), nil
}

func newPublisher(c conn, prefix string, log *slog.Logger) *Publisher {
	return &Publisher{conn: c, prefix: strings.TrimSuffix(prefix, "."), log: log}
}

// Subject returns the subject an event with the given status is published on.
func (p *Publisher) Subject(status string) string {
	return p.prefix + "." + strings.ToLower(status)
}

// Publish is best effort: failures are logged, never returned.
func (p *Publisher) Publish(evt JobEvent) {
	if p == nil || p.conn == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		p.log.Warn("failed to encode job event", slog.String("error", err.Error()))
		return
	}
	subject := p.Subject(evt.Status)
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Warn("failed to publish job event",
			slog.String("subject", subject),
			slog.String("job_id", evt.JobID),
			slog.String("error", err.Error()),
		)
	}
}

func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	p.log.Info("closing NATS connection")
	_ = p.conn.Drain()
	p.conn.Close()
}
