package transcription

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// ffmpegFake answers ffprobe stream queries with streams and has ffmpeg
// write a WAV of seconds to its output argument.
func ffmpegFake(t *testing.T, streams string, seconds float64) *fakeRunner {
	return &fakeRunner{handle: func(name string, args []string) ([]byte, []byte, error) {
		switch name {
		case "ffprobe":
			return []byte(streams), nil, nil
		case "ffmpeg":
			writeWAV(t, lastArg(args), seconds)
			return nil, nil, nil
		}
		return nil, nil, errors.New("unexpected command " + name)
	}}
}

func TestExtractFromStreamRemovesVideoCopy(t *testing.T) {
	tmp := t.TempDir()
	runner := ffmpegFake(t, "1\n", 2)
	ex := NewExtractor(tmp, newLogger(), withExtractorRunner(runner))

	raw, err := ex.Extract(context.Background(), VideoFromReader(bytes.NewReader([]byte("not really mp4")), "mp4"))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !raw.OwnsFile() {
		t.Fatal("expected raw artifact to own its file")
	}
	if math.Abs(raw.Duration-2) > 0.01 {
		t.Fatalf("expected duration ~2s, got %v", raw.Duration)
	}
	if raw.Size == 0 {
		t.Fatal("expected non-zero size")
	}

	files := listDir(t, tmp)
	if len(files) != 1 || files[0] != filepath.Base(raw.Path) {
		t.Fatalf("expected only the raw artifact to remain, got %v", files)
	}

	raw.Release(newLogger())
	if files := listDir(t, tmp); len(files) != 0 {
		t.Fatalf("expected empty temp dir after release, got %v", files)
	}
}

func TestExtractNeverDeletesCallerPath(t *testing.T) {
	tmp := t.TempDir()
	video := filepath.Join(t.TempDir(), "talk.mp4")
	if err := os.WriteFile(video, []byte("video"), 0o644); err != nil {
		t.Fatalf("write video: %v", err)
	}

	ex := NewExtractor(tmp, newLogger(), withExtractorRunner(ffmpegFake(t, "1\n", 1)))
	raw, err := ex.Extract(context.Background(), VideoFromPath(video))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	raw.Release(newLogger())

	if _, err := os.Stat(video); err != nil {
		t.Fatalf("caller video should still exist: %v", err)
	}
}

func TestExtractNoAudioTrack(t *testing.T) {
	tmp := t.TempDir()
	runner := ffmpegFake(t, "", 1)
	ex := NewExtractor(tmp, newLogger(), withExtractorRunner(runner))

	_, err := ex.Extract(context.Background(), VideoFromReader(strings.NewReader("silent film"), ".mp4"))
	if !errors.Is(err, ErrNoAudioTrack) {
		t.Fatalf("expected ErrNoAudioTrack, got %v", err)
	}
	if n := runner.called("ffmpeg"); n != 0 {
		t.Fatalf("expected ffmpeg not to run, ran %d times", n)
	}
	if files := listDir(t, tmp); len(files) != 0 {
		t.Fatalf("expected no files left behind, got %v", files)
	}
}

func TestExtractFfmpegFailure(t *testing.T) {
	tmp := t.TempDir()
	runner := &fakeRunner{handle: func(name string, args []string) ([]byte, []byte, error) {
		if name == "ffprobe" {
			return []byte("1\n"), nil, nil
		}
		// partial output before the failure
		if err := os.WriteFile(lastArg(args), []byte("RIFF"), 0o644); err != nil {
			t.Fatalf("write partial: %v", err)
		}
		return nil, []byte("Stream map '0:a:0' matches no streams.\nConversion failed!\n"), errors.New("exit status 1")
	}}
	ex := NewExtractor(tmp, newLogger(), withExtractorRunner(runner))

	_, err := ex.Extract(context.Background(), VideoFromReader(strings.NewReader("x"), ".mkv"))
	if !errors.Is(err, ErrTranscode) {
		t.Fatalf("expected ErrTranscode, got %v", err)
	}
	var te *TranscodeError
	if !errors.As(err, &te) || !strings.Contains(te.Diagnostic, "Conversion failed!") {
		t.Fatalf("expected ffmpeg diagnostic in error, got %v", err)
	}
	if files := listDir(t, tmp); len(files) != 0 {
		t.Fatalf("expected no files left behind, got %v", files)
	}
}

func TestExtractEmptySource(t *testing.T) {
	ex := NewExtractor(t.TempDir(), newLogger(), withExtractorRunner(ffmpegFake(t, "1\n", 1)))
	if _, err := ex.Extract(context.Background(), VideoSource{}); err == nil {
		t.Fatal("expected error for empty source")
	}
}

func TestValidateVideoFormat(t *testing.T) {
	for name, want := range map[string]bool{
		"talk.mp4":     true,
		"TALK.MOV":     true,
		"clip.webm":    true,
		"song.mp3":     false,
		"notes.txt":    false,
		"no-extension": false,
	} {
		if got := ValidateVideoFormat(name); got != want {
			t.Errorf("ValidateVideoFormat(%q) = %v, want %v", name, got, want)
		}
	}
}
