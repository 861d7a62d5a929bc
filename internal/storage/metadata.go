package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no transcript matches a job ID.
var ErrNotFound = errors.New("transcript not found")

// TranscriptRecord is one row of the transcripts table.
type TranscriptRecord struct {
	JobID        string    `json:"job_id"`
	RequestName  string    `json:"request_name"`
	SourceType   string    `json:"source_type"`
	GDriveURL    string    `json:"gdrive_url"`
	LocalPath    string    `json:"local_path"`
	SegmentsPath string    `json:"segments_path"`
	AudioPath    string    `json:"audio_path,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	Duration     float64   `json:"duration"`
	BitrateKbps  int       `json:"bitrate_kbps"`
	WordCount    int       `json:"word_count"`
}

// MetadataDB handles SQLite database operations
type MetadataDB struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS transcripts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id TEXT NOT NULL UNIQUE,
	request_name TEXT NOT NULL,
	source_type TEXT NOT NULL,
	gdrive_url TEXT NOT NULL DEFAULT '',
	local_path TEXT NOT NULL,
	segments_path TEXT NOT NULL DEFAULT '',
	audio_path TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	duration REAL,
	bitrate_kbps INTEGER,
	word_count INTEGER
);

CREATE INDEX IF NOT EXISTS idx_created_at ON transcripts(created_at);
CREATE INDEX IF NOT EXISTS idx_request_name ON transcripts(request_name);
`

const selectColumns = `job_id, request_name, source_type, gdrive_url, local_path, segments_path, audio_path,
	created_at, duration, bitrate_kbps, word_count`

// NewMetadataDB opens (and creates if needed) the SQLite database at dbPath.
func NewMetadataDB(dbPath string) (*MetadataDB, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Workers write concurrently; a single connection serializes them.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}
	return &MetadataDB{db: db}, nil
}

// SaveTranscript stores one completed job.
func (mdb *MetadataDB) SaveTranscript(rec TranscriptRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := mdb.db.Exec(`
	INSERT INTO transcripts (job_id, request_name, source_type, gdrive_url, local_path, segments_path, audio_path,
		created_at, duration, bitrate_kbps, word_count)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.JobID, rec.RequestName, rec.SourceType, rec.GDriveURL, rec.LocalPath, rec.SegmentsPath, rec.AudioPath,
		rec.CreatedAt.UTC(), rec.Duration, rec.BitrateKbps, rec.WordCount)
	if err != nil {
		return fmt.Errorf("save transcript metadata: %w", err)
	}
	return nil
}

// GetTranscript retrieves transcript metadata by job ID
func (mdb *MetadataDB) GetTranscript(jobID string) (TranscriptRecord, error) {
	row := mdb.db.QueryRow(`SELECT `+selectColumns+` FROM transcripts WHERE job_id = ?`, jobID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return TranscriptRecord{}, ErrNotFound
	}
	if err != nil {
		return TranscriptRecord{}, fmt.Errorf("get transcript: %w", err)
	}
	return rec, nil
}

// ListTranscripts returns the newest transcripts first.
func (mdb *MetadataDB) ListTranscripts(limit int) ([]TranscriptRecord, error) {
	rows, err := mdb.db.Query(`SELECT `+selectColumns+` FROM transcripts ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list transcripts: %w", err)
	}
	defer rows.Close()

	transcripts := []TranscriptRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transcript: %w", err)
		}
		transcripts = append(transcripts, rec)
	}
	return transcripts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (TranscriptRecord, error) {
	var (
		rec      TranscriptRecord
		duration sql.NullFloat64
		bitrate  sql.NullInt64
		words    sql.NullInt64
	)
	err := s.Scan(&rec.JobID, &rec.RequestName, &rec.SourceType, &rec.GDriveURL, &rec.LocalPath,
		&rec.SegmentsPath, &rec.AudioPath, &rec.CreatedAt, &duration, &bitrate, &words)
	if err != nil {
		return TranscriptRecord{}, err
	}
	rec.Duration = duration.Float64
	rec.BitrateKbps = int(bitrate.Int64)
	rec.WordCount = int(words.Int64)
	return rec, nil
}

// Close closes the database connection
func (mdb *MetadataDB) Close() error {
	return mdb.db.Close()
}
