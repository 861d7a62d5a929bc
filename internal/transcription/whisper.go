package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mattn/go-shellwords"
)

// WhisperCLI transcribes with a local whisper command line that writes a
// JSON result file, e.g. "python -m whisper --model small".
type WhisperCLI struct {
	cmd     []string
	tempDir string
	runner  commandRunner
	logger  *slog.Logger
	mu      sync.Mutex // whisper loads the model per run; one at a time
}

// NewWhisperCLI parses command into argv. The audio path, output flags and
// language are appended per call.
func NewWhisperCLI(command, tempDir string, logger *slog.Logger) (*WhisperCLI, error) {
	args, err := shellwords.NewParser().Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse whisper command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("whisper command is empty")
	}
	logger.Info("whisper backend configured", slog.String("command", command))
	return &WhisperCLI{
		cmd:     args,
		tempDir: tempDir,
		runner:  execRunner{},
		logger:  logger,
	}, nil
}

// whisperOutput matches Python Whisper's JSON output format
type whisperOutput struct {
	Text     string            `json:"text"`
	Language string            `json:"language"`
	Segments *[]verboseSegment `json:"segments"`
}

func (w *WhisperCLI) Transcribe(ctx context.Context, audio AudioArtifact, language string) ([]RawSegment, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	outDir, err := os.MkdirTemp(w.tempDir, "whisper_output_*")
	if err != nil {
		return nil, serviceErr(0, "create output dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(outDir); err != nil {
			w.logger.Warn("failed to delete whisper output", slog.String("path", outDir), slog.String("error", err.Error()))
		}
	}()

	absAudioPath, err := filepath.Abs(audio.Path)
	if err != nil {
		return nil, serviceErr(0, "failed to get absolute path: %w", err)
	}

	args := append([]string{}, w.cmd[1:]...)
	args = append(args, absAudioPath, "--output_dir", outDir, "--output_format", "json")
	if language != "" {
		args = append(args, "--language", language)
	}

	w.logger.Info("transcribing with whisper", slog.String("audio", absAudioPath))
	_, stderr, err := w.runner.Run(ctx, w.cmd[0], args...)
	if err != nil {
		return nil, serviceErr(0, "whisper transcription failed: %w: %s", err, diagnostic(stderr))
	}

	baseName := strings.TrimSuffix(filepath.Base(audio.Path), filepath.Ext(audio.Path))
	jsonData, err := os.ReadFile(filepath.Join(outDir, baseName+".json"))
	if err != nil {
		return nil, serviceErr(0, "failed to read whisper output: %w", err)
	}

	var out whisperOutput
	if err := json.Unmarshal(jsonData, &out); err != nil {
		return nil, serviceErr(0, "failed to parse whisper JSON: %w", err)
	}
	return verboseResponse{Segments: out.Segments}.rawSegments(0)
}
