package transcription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/codebuildervaibhav/video-transcription/internal/types"
)

const instrumentationName = "github.com/codebuildervaibhav/video-transcription/transcription"

// Request is one invocation of the pipeline.
type Request struct {
	Video    VideoSource
	Target   types.CompressionTarget
	Language string

	// AudioOutputPath, when set, receives the compressed audio and is left in
	// place. Otherwise the compressed audio is a temp file removed on return.
	AudioOutputPath string
}

// Pipeline runs extract → bitrate → encode → transcribe → normalize. It holds
// no per-run state, so one Pipeline serves concurrent callers.
type Pipeline struct {
	extractor  AudioExtractor
	encoder    Encoder
	client     Transcriber
	tempDir    string
	logger     *slog.Logger
	tracer     trace.Tracer
	runs       metric.Int64Counter
	stageTimes metric.Float64Histogram
}

func NewPipeline(extractor AudioExtractor, encoder Encoder, client Transcriber, tempDir string, logger *slog.Logger) *Pipeline {
	p := &Pipeline{
		extractor: extractor,
		encoder:   encoder,
		client:    client,
		tempDir:   tempDir,
		logger:    logger.With(slog.String("component", "pipeline")),
		tracer:    otel.Tracer(instrumentationName),
	}

	meter := otel.Meter(instrumentationName)
	var err error
	if p.runs, err = meter.Int64Counter("transcription_pipeline_runs_total",
		metric.WithDescription("Pipeline invocations by outcome")); err != nil {
		p.logger.Warn("failed to create runs counter", slog.String("error", err.Error()))
	}
	if p.stageTimes, err = meter.Float64Histogram("transcription_pipeline_stage_seconds",
		metric.WithDescription("Time spent in each pipeline stage"),
		metric.WithUnit("s")); err != nil {
		p.logger.Warn("failed to create stage histogram", slog.String("error", err.Error()))
	}
	return p
}

// TranscribeVideo runs the whole pipeline for req. Every temp artifact it
// creates is gone by the time it returns, whether it succeeds or not.
func (p *Pipeline) TranscribeVideo(ctx context.Context, req Request) (*types.TranscriptionResult, error) {
	ctx, span := p.tracer.Start(ctx, "transcription.TranscribeVideo",
		trace.WithAttributes(
			attribute.String("video.source", req.Video.String()),
			attribute.String("language", req.Language),
			attribute.Int("target.size_kb", req.Target.TargetSizeKB),
		))
	defer span.End()

	result, err := p.run(ctx, req)
	outcome := "success"
	if err != nil {
		outcome = outcomeOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.Error("pipeline failed",
			slog.String("video", req.Video.String()),
			slog.String("outcome", outcome),
			slog.String("error", err.Error()))
	}
	if p.runs != nil {
		p.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
	return result, err
}

func (p *Pipeline) run(ctx context.Context, req Request) (*types.TranscriptionResult, error) {
	var raw AudioArtifact
	err := p.stage(ctx, "extract", func(ctx context.Context) error {
		var err error
		raw, err = p.extractor.Extract(ctx, req.Video)
		return err
	})
	if err != nil {
		return nil, err
	}

	bitrate, err := ComputeBitrate(raw.Duration, req.Target)
	if err != nil {
		raw.Release(p.logger)
		return nil, err
	}
	p.logger.Info("computed bitrate",
		slog.Float64("duration_seconds", raw.Duration),
		slog.Int("target_size_kb", req.Target.TargetSizeKB),
		slog.Int("bitrate_kbps", bitrate))

	output := scopedFile{path: req.AudioOutputPath}
	if output.path == "" {
		output = scopedFile{path: filepath.Join(p.tempDir, fmt.Sprintf("compressed_%s.mp3", uuid.New().String())), owns: true}
	}

	var compressed AudioArtifact
	err = p.stage(ctx, "encode", func(ctx context.Context) error {
		var err error
		compressed, err = p.encoder.Encode(ctx, raw, bitrate, output.path)
		return err
	})
	// The raw artifact is consumed by the encode whatever its outcome.
	raw.Release(p.logger)
	if err != nil {
		output.release(p.logger, "compressed audio")
		return nil, err
	}
	compressed.ownsFile = output.owns
	defer compressed.Release(p.logger)

	var segments []RawSegment
	err = p.stage(ctx, "transcribe", func(ctx context.Context) error {
		var err error
		segments, err = p.client.Transcribe(ctx, compressed, req.Language)
		return err
	})
	if err != nil {
		return nil, err
	}

	result := Normalize(segments)
	if err := ValidateOrder(result.Segments); err != nil {
		p.logger.Warn("service returned out-of-order segments", slog.String("error", err.Error()))
	}
	result.Language = req.Language
	result.Duration = raw.Duration
	result.BitrateKbps = bitrate
	result.ProcessedAt = time.Now()
	if !output.owns {
		result.AudioPath = output.path
	}

	p.logger.Info("transcription completed",
		slog.Int("segments", len(result.Segments)),
		slog.Float64("duration_seconds", result.Duration))
	return &result, nil
}

func (p *Pipeline) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := p.tracer.Start(ctx, "transcription."+name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	if p.stageTimes != nil {
		p.stageTimes.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attribute.String("stage", name)))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ErrNoAudioTrack):
		return "no_audio"
	case errors.Is(err, ErrInvalidDuration):
		return "invalid_duration"
	case errors.Is(err, ErrTranscode):
		return "transcode_error"
	case errors.Is(err, ErrTranscriptionService):
		return "service_error"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
