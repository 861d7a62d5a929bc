package types

import "time"

// Job status constants
const (
	StatusCapturing  = "CAPTURING"
	StatusQueued     = "QUEUED"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// Source type constants
const (
	SourceUpload  = "upload"
	SourceGDrive  = "gdrive"
	SourceYouTube = "youtube"
	SourceStream  = "stream"
)

// CompressionTarget bounds the size of the compressed audio sent for transcription.
type CompressionTarget struct {
	TargetSizeKB   int `yaml:"target_size_kb" json:"target_size_kb"`
	MinBitrateKbps int `yaml:"min_bitrate_kbps" json:"min_bitrate_kbps"`
}

// TranscriptionResult is the output of one pipeline run plus the metadata
// the service attaches once the job is persisted.
type TranscriptionResult struct {
	JobID       string    `json:"job_id,omitempty"`
	Text        string    `json:"transcription_text"`
	Language    string    `json:"language,omitempty"`
	Duration    float64   `json:"duration_seconds"`
	BitrateKbps int       `json:"bitrate_kbps"`
	Segments    []Segment `json:"segments"`
	WordCount   int       `json:"word_count,omitempty"`
	ProcessedAt time.Time `json:"processed_at"`
	LocalPath   string    `json:"local_path,omitempty"`
	JSONPath    string    `json:"segments_path,omitempty"`
	AudioPath   string    `json:"audio_path,omitempty"`
	GDriveURL   string    `json:"gdrive_url,omitempty"`
}

// Segment represents a timestamped segment of transcription
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}
