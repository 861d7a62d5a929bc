package transcription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
)

// maxMP3BitrateKbps is the highest bitrate MPEG-1 Layer III defines.
const maxMP3BitrateKbps = 320

// Encoder re-encodes a raw artifact at a constant bitrate.
type Encoder interface {
	Encode(ctx context.Context, raw AudioArtifact, bitrateKbps int, outputPath string) (AudioArtifact, error)
}

// Transcoder encodes to constant-bitrate MP3 with libmp3lame.
type Transcoder struct {
	ffmpegPath string
	runner     commandRunner
	logger     *slog.Logger
}

func NewTranscoder(ffmpegPath string, logger *slog.Logger) *Transcoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Transcoder{ffmpegPath: ffmpegPath, runner: execRunner{}, logger: logger}
}

// Encode writes raw to outputPath as CBR MP3, overwriting any existing file.
// The returned artifact owns outputPath.
func (t *Transcoder) Encode(ctx context.Context, raw AudioArtifact, bitrateKbps int, outputPath string) (AudioArtifact, error) {
	if bitrateKbps <= 0 {
		return AudioArtifact{}, &TranscodeError{Err: fmt.Errorf("invalid bitrate %d kbps", bitrateKbps)}
	}
	if bitrateKbps > maxMP3BitrateKbps {
		t.logger.Debug("bitrate above mp3 ceiling, clamping",
			slog.Int("requested_kbps", bitrateKbps),
			slog.Int("used_kbps", maxMP3BitrateKbps))
		bitrateKbps = maxMP3BitrateKbps
	}

	rate := strconv.Itoa(bitrateKbps) + "k"
	t.logger.Debug("encoding audio", slog.String("input", raw.Path), slog.String("output", outputPath), slog.String("bitrate", rate))
	_, stderr, err := t.runner.Run(ctx, t.ffmpegPath,
		"-y",
		"-v", "error",
		"-i", raw.Path,
		"-vn",
		"-codec:a", "libmp3lame",
		"-b:a", rate,
		"-f", "mp3",
		outputPath,
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return AudioArtifact{}, ctxErr
		}
		return AudioArtifact{}, &TranscodeError{Diagnostic: diagnostic(stderr), Err: fmt.Errorf("ffmpeg: %w", err)}
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return AudioArtifact{}, &TranscodeError{Err: fmt.Errorf("stat encoded audio: %w", err)}
	}
	if info.Size() == 0 {
		return AudioArtifact{}, &TranscodeError{Err: errors.New("encoder produced an empty file")}
	}

	t.logger.Info("compressed audio",
		slog.String("path", outputPath),
		slog.Int("bitrate_kbps", bitrateKbps),
		slog.Float64("size_kb", float64(info.Size())/1024))
	return AudioArtifact{
		Path:     outputPath,
		Duration: raw.Duration,
		Size:     info.Size(),
		ownsFile: true,
	}, nil
}
