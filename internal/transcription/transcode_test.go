package transcription

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func newTestTranscoder(runner commandRunner) *Transcoder {
	tc := NewTranscoder("", newLogger())
	tc.runner = runner
	return tc
}

func encodeFake(t *testing.T) *fakeRunner {
	return &fakeRunner{handle: func(_ string, args []string) ([]byte, []byte, error) {
		if err := os.WriteFile(lastArg(args), make([]byte, 4096), 0o644); err != nil {
			t.Fatalf("write output: %v", err)
		}
		return nil, nil, nil
	}}
}

func argAfter(args []string, flag string) string {
	i := slices.Index(args, flag)
	if i < 0 || i+1 >= len(args) {
		return ""
	}
	return args[i+1]
}

func TestEncodeConstantBitrate(t *testing.T) {
	dir := t.TempDir()
	runner := encodeFake(t)
	raw := AudioArtifact{Path: filepath.Join(dir, "raw.wav"), Duration: 100}
	out := filepath.Join(dir, "out.mp3")

	got, err := newTestTranscoder(runner).Encode(context.Background(), raw, 40, out)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if got.Path != out || got.Size != 4096 || got.Duration != 100 || !got.OwnsFile() {
		t.Fatalf("unexpected artifact %+v", got)
	}

	args := runner.calls[0][1:]
	if argAfter(args, "-b:a") != "40k" {
		t.Fatalf("expected -b:a 40k, got %v", args)
	}
	if argAfter(args, "-codec:a") != "libmp3lame" {
		t.Fatalf("expected libmp3lame, got %v", args)
	}
	if !slices.Contains(args, "-y") {
		t.Fatalf("expected overwrite flag, got %v", args)
	}
}

func TestEncodeClampsToMP3Ceiling(t *testing.T) {
	dir := t.TempDir()
	runner := encodeFake(t)
	raw := AudioArtifact{Path: filepath.Join(dir, "raw.wav"), Duration: 2}

	if _, err := newTestTranscoder(runner).Encode(context.Background(), raw, 80000, filepath.Join(dir, "out.mp3")); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if got := argAfter(runner.calls[0][1:], "-b:a"); got != "320k" {
		t.Fatalf("expected 320k, got %s", got)
	}
}

func TestEncodeFailureCarriesDiagnostic(t *testing.T) {
	runner := &fakeRunner{handle: func(string, []string) ([]byte, []byte, error) {
		return nil, []byte("raw.wav: Invalid data found when processing input\n"), errors.New("exit status 1")
	}}
	dir := t.TempDir()
	raw := AudioArtifact{Path: filepath.Join(dir, "raw.wav"), Duration: 10}

	_, err := newTestTranscoder(runner).Encode(context.Background(), raw, 64, filepath.Join(dir, "out.mp3"))
	if !errors.Is(err, ErrTranscode) {
		t.Fatalf("expected ErrTranscode, got %v", err)
	}
	if !strings.Contains(err.Error(), "Invalid data found") {
		t.Fatalf("expected diagnostic in message, got %v", err)
	}
	if Retriable(err) {
		t.Fatal("transcode errors are not retriable")
	}
}

func TestEncodeRejectsNonPositiveBitrate(t *testing.T) {
	runner := encodeFake(t)
	_, err := newTestTranscoder(runner).Encode(context.Background(), AudioArtifact{Path: "raw.wav"}, 0, "out.mp3")
	if !errors.Is(err, ErrTranscode) {
		t.Fatalf("expected ErrTranscode, got %v", err)
	}
	if len(runner.calls) != 0 {
		t.Fatal("expected ffmpeg not to run")
	}
}
