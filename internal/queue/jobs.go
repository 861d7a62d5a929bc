package queue

import (
	"bytes"
	"sync"
	"time"

	"github.com/codebuildervaibhav/video-transcription/internal/transcription"
	"github.com/codebuildervaibhav/video-transcription/internal/types"
)

// Job represents a transcription job. Exactly one of FilePath or Data is set.
type Job struct {
	ID          string
	RequestName string
	SourceType  string
	// FilePath is a temp copy of the video owned by the job; it is removed
	// once the job finishes.
	FilePath string
	// Data holds videos received in memory (WebSocket streams).
	Data []byte
	Ext  string
}

// NewJob creates a job backed by a file on disk.
func NewJob(id, requestName, sourceType, filePath string) *Job {
	return &Job{
		ID:          id,
		RequestName: requestName,
		SourceType:  sourceType,
		FilePath:    filePath,
	}
}

// video returns a fresh source for each attempt.
func (j *Job) video() transcription.VideoSource {
	if j.Data != nil {
		return transcription.VideoFromReader(bytes.NewReader(j.Data), j.Ext)
	}
	return transcription.VideoFromPath(j.FilePath)
}

// JobStatus is the externally visible state of a job.
type JobStatus struct {
	ID          string                     `json:"job_id"`
	RequestName string                     `json:"request_name"`
	SourceType  string                     `json:"source_type"`
	Status      string                     `json:"status"`
	Attempts    int                        `json:"attempts"`
	Error       string                     `json:"error,omitempty"`
	Result      *types.TranscriptionResult `json:"result,omitempty"`
	CreatedAt   time.Time                  `json:"created_at"`
	UpdatedAt   time.Time                  `json:"updated_at"`
}

// Registry tracks job statuses in memory.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]JobStatus
}

func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]JobStatus)}
}

func (r *Registry) Get(id string) (JobStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.jobs[id]
	return st, ok
}

func (r *Registry) update(id string, fn func(*JobStatus)) JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.jobs[id]
	fn(&st)
	st.UpdatedAt = time.Now()
	r.jobs[id] = st
	return st
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, id)
}
