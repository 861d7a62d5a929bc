package transcription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// AudioExtractor demultiplexes the audio track of a video into a raw artifact.
type AudioExtractor interface {
	Extract(ctx context.Context, video VideoSource) (AudioArtifact, error)
}

// Extractor pulls the first audio stream out of a video container as 16-bit PCM WAV.
type Extractor struct {
	ffmpegPath  string
	ffprobePath string
	tempDir     string
	probe       DurationProbe
	runner      commandRunner
	logger      *slog.Logger
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithDurationProbe replaces the default WAV/ffprobe duration probe.
func WithDurationProbe(p DurationProbe) ExtractorOption {
	return func(e *Extractor) {
		e.probe = p
	}
}

// WithBinaries overrides the ffmpeg and ffprobe executables.
func WithBinaries(ffmpegPath, ffprobePath string) ExtractorOption {
	return func(e *Extractor) {
		e.ffmpegPath = ffmpegPath
		e.ffprobePath = ffprobePath
	}
}

func withExtractorRunner(r commandRunner) ExtractorOption {
	return func(e *Extractor) {
		e.runner = r
	}
}

// NewExtractor creates an extractor writing its artifacts under tempDir.
func NewExtractor(tempDir string, logger *slog.Logger, opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		ffmpegPath:  "ffmpeg",
		ffprobePath: "ffprobe",
		tempDir:     tempDir,
		runner:      execRunner{},
		logger:      logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.probe == nil {
		e.probe = NewProbe(e.ffprobePath, withProbeRunner(e.runner))
	}
	return e
}

// Extract writes the audio track of video to a new owned WAV artifact.
// A stream source is copied to a temp file first and that copy is removed
// before Extract returns.
func (e *Extractor) Extract(ctx context.Context, video VideoSource) (AudioArtifact, error) {
	input, err := video.materialize(e.tempDir)
	if err != nil {
		return AudioArtifact{}, err
	}
	defer input.release(e.logger, "video copy")

	hasAudio, err := e.hasAudioStream(ctx, input.path)
	if err != nil {
		return AudioArtifact{}, err
	}
	if !hasAudio {
		return AudioArtifact{}, fmt.Errorf("%w: %s", ErrNoAudioTrack, video)
	}

	outputPath := filepath.Join(e.tempDir, fmt.Sprintf("raw_%s.wav", uuid.New().String()))
	raw := AudioArtifact{Path: outputPath, ownsFile: true}

	e.logger.Debug("extracting audio", slog.String("input", input.path), slog.String("output", outputPath))
	_, stderr, err := e.runner.Run(ctx, e.ffmpegPath,
		"-y",
		"-v", "error",
		"-i", input.path,
		"-vn",
		"-map", "0:a:0", // first audio stream only
		"-c:a", "pcm_s16le",
		"-f", "wav",
		outputPath,
	)
	if err != nil {
		raw.Release(e.logger)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return AudioArtifact{}, ctxErr
		}
		return AudioArtifact{}, &TranscodeError{Diagnostic: diagnostic(stderr), Err: fmt.Errorf("extract audio: %w", err)}
	}

	duration, err := e.probe.Duration(ctx, outputPath)
	if err != nil {
		raw.Release(e.logger)
		return AudioArtifact{}, fmt.Errorf("%w: %v", ErrInvalidDuration, err)
	}
	raw.Duration = duration

	info, err := os.Stat(outputPath)
	if err != nil {
		raw.Release(e.logger)
		return AudioArtifact{}, fmt.Errorf("stat extracted audio: %w", err)
	}
	raw.Size = info.Size()

	e.logger.Info("extracted audio",
		slog.String("path", outputPath),
		slog.Float64("duration_seconds", duration),
		slog.Int64("size_bytes", raw.Size))
	return raw, nil
}

// hasAudioStream asks ffprobe for the audio stream indexes of the container.
func (e *Extractor) hasAudioStream(ctx context.Context, path string) (bool, error) {
	stdout, stderr, err := e.runner.Run(ctx, e.ffprobePath,
		"-v", "error",
		"-select_streams", "a",
		"-show_entries", "stream=index",
		"-of", "csv=p=0",
		path,
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		return false, &TranscodeError{Diagnostic: diagnostic(stderr), Err: errors.New("probe video streams")}
	}
	return strings.TrimSpace(string(stdout)) != "", nil
}

// ValidateVideoFormat checks if the file format is supported
func ValidateVideoFormat(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	supportedFormats := []string{".mp4", ".mov", ".mkv", ".webm", ".avi", ".m4v", ".flv", ".wmv", ".mpeg", ".mpg", ".3gp"}

	for _, format := range supportedFormats {
		if ext == format {
			return true
		}
	}
	return false
}
