package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/codebuildervaibhav/video-transcription/internal/types"
)

// LocalStorage handles saving transcripts to the local filesystem
type LocalStorage struct {
	outputDir string
	now       func() time.Time
}

// NewLocalStorage creates a new local storage handler
func NewLocalStorage(outputDir string) *LocalStorage {
	return &LocalStorage{
		outputDir: outputDir,
		now:       time.Now,
	}
}

// SavedPaths lists the files written for one transcript.
type SavedPaths struct {
	Text     string
	Segments string
	Meta     string
}

// AudioPath returns where a kept compressed MP3 for the request should live.
// The directory is created so the encoder can write into it.
func (ls *LocalStorage) AudioPath(jobID, requestName string) (string, error) {
	dir, err := ls.dateDir(ls.now())
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fmt.Sprintf("%s_%s.mp3", sanitizeFilename(requestName), shortID(jobID))), nil
}

// SaveTranscript writes the concatenated text, the segment array and the job
// metadata under outputs/YYYY/MM/DD/.
func (ls *LocalStorage) SaveTranscript(requestName string, result *types.TranscriptionResult) (SavedPaths, error) {
	now := ls.now()
	dateDir, err := ls.dateDir(now)
	if err != nil {
		return SavedPaths{}, err
	}

	// 20250123_143022_podcast_episode_1a2b3c4d
	name := now.Format("20060102_150405") + "_" + sanitizeFilename(requestName)
	if result.JobID != "" {
		name += "_" + shortID(result.JobID)
	}
	base := filepath.Join(dateDir, name)
	paths := SavedPaths{
		Text:     base + ".txt",
		Segments: base + ".json",
		Meta:     base + "_meta.json",
	}

	if err := os.WriteFile(paths.Text, []byte(result.Text), 0o644); err != nil {
		return SavedPaths{}, fmt.Errorf("save transcript: %w", err)
	}

	segments, err := SegmentsJSON(result.Segments)
	if err != nil {
		return SavedPaths{}, err
	}
	if err := os.WriteFile(paths.Segments, segments, 0o644); err != nil {
		return SavedPaths{}, fmt.Errorf("save segments: %w", err)
	}

	meta, err := json.MarshalIndent(transcriptMeta{
		JobID:        result.JobID,
		RequestName:  requestName,
		Duration:     result.Duration,
		BitrateKbps:  result.BitrateKbps,
		WordCount:    result.WordCount,
		Language:     result.Language,
		CreatedAt:    result.ProcessedAt,
		TextPath:     paths.Text,
		SegmentsPath: paths.Segments,
		AudioPath:    result.AudioPath,
		GDriveURL:    result.GDriveURL,
	}, "", "  ")
	if err != nil {
		return SavedPaths{}, fmt.Errorf("marshal metadata: %w", err)
	}
	if err := os.WriteFile(paths.Meta, meta, 0o644); err != nil {
		return SavedPaths{}, fmt.Errorf("save metadata: %w", err)
	}

	return paths, nil
}

type transcriptMeta struct {
	JobID        string    `json:"job_id"`
	RequestName  string    `json:"request_name"`
	Duration     float64   `json:"duration_seconds"`
	BitrateKbps  int       `json:"bitrate_kbps"`
	WordCount    int       `json:"word_count"`
	Language     string    `json:"language,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	TextPath     string    `json:"text_path"`
	SegmentsPath string    `json:"segments_path"`
	AudioPath    string    `json:"audio_path,omitempty"`
	GDriveURL    string    `json:"gdrive_url,omitempty"`
}

// SegmentsJSON renders segments as a 4-space indented array with non-ASCII
// and HTML characters left as-is.
func SegmentsJSON(segments []types.Segment) ([]byte, error) {
	if segments == nil {
		segments = []types.Segment{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(segments); err != nil {
		return nil, fmt.Errorf("marshal segments: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func (ls *LocalStorage) dateDir(t time.Time) (string, error) {
	dir := filepath.Join(ls.outputDir,
		fmt.Sprintf("%d", t.Year()),
		fmt.Sprintf("%02d", t.Month()),
		fmt.Sprintf("%02d", t.Day()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create date directory: %w", err)
	}
	return dir, nil
}

// sanitizeFilename replaces characters that are invalid in file names.
func sanitizeFilename(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', 0:
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	name = strings.Trim(name, ". ")
	if name == "" {
		name = "untitled"
	}
	if r := []rune(name); len(r) > 100 {
		name = string(r[:100])
	}
	return name
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
