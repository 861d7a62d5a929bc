package transcription

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-audio/wav"
)

// DurationProbe reports the playable length of an audio file in seconds.
type DurationProbe interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// Probe reads the duration from the WAV header and falls back to ffprobe for
// anything the WAV decoder cannot parse.
type Probe struct {
	ffprobePath string
	runner      commandRunner
}

type ProbeOption func(*Probe)

func withProbeRunner(r commandRunner) ProbeOption {
	return func(p *Probe) {
		p.runner = r
	}
}

func NewProbe(ffprobePath string, opts ...ProbeOption) *Probe {
	p := &Probe{ffprobePath: ffprobePath, runner: execRunner{}}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Probe) Duration(ctx context.Context, path string) (float64, error) {
	if d, err := wavDuration(path); err == nil {
		return d, nil
	}
	return p.ffprobeDuration(ctx, path)
}

func wavDuration(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if err := dec.FwdToPCM(); err != nil {
		return 0, fmt.Errorf("read wav header: %w", err)
	}
	if dec.AvgBytesPerSec == 0 {
		return 0, errors.New("wav header has zero byte rate")
	}
	pcmLen := dec.PCMLen()
	if pcmLen <= 0 {
		return 0, errors.New("wav has no pcm data")
	}
	return float64(pcmLen) / float64(dec.AvgBytesPerSec), nil
}

func (p *Probe) ffprobeDuration(ctx context.Context, path string) (float64, error) {
	stdout, stderr, err := p.runner.Run(ctx, p.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("ffprobe error: %w: %s", err, diagnostic(stderr))
	}
	val := strings.TrimSpace(string(stdout))
	if val == "" || val == "N/A" {
		return 0, errors.New("empty duration response")
	}
	dur, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration from ffprobe: %w", err)
	}
	return dur, nil
}
