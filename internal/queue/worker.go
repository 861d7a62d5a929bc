package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/codebuildervaibhav/video-transcription/internal/events"
	"github.com/codebuildervaibhav/video-transcription/internal/storage"
	"github.com/codebuildervaibhav/video-transcription/internal/transcription"
	"github.com/codebuildervaibhav/video-transcription/internal/types"
)

var (
	ErrQueueFull   = errors.New("job queue is full")
	ErrPoolStopped = errors.New("worker pool stopped")
)

// VideoTranscriber runs the extraction, compression and transcription pipeline.
type VideoTranscriber interface {
	TranscribeVideo(ctx context.Context, req transcription.Request) (*types.TranscriptionResult, error)
}

// ResultStore persists finished transcripts locally.
type ResultStore interface {
	SaveTranscript(requestName string, result *types.TranscriptionResult) (storage.SavedPaths, error)
	AudioPath(jobID, requestName string) (string, error)
}

// Uploader mirrors finished transcripts to remote storage.
type Uploader interface {
	Upload(ctx context.Context, requestName string, result *types.TranscriptionResult) (string, error)
}

// MetadataStore indexes finished transcripts.
type MetadataStore interface {
	SaveTranscript(rec storage.TranscriptRecord) error
}

// Options configures a WorkerPool.
type Options struct {
	Workers     int
	QueueSize   int
	Target      types.CompressionTarget
	Language    string
	Timeout     time.Duration
	MaxAttempts int
	KeepAudio   bool
	// Backoff returns the delay before retry number attempt (1-based).
	Backoff func(attempt int) time.Duration
}

// QuadraticBackoff waits attempt² seconds.
func QuadraticBackoff(attempt int) time.Duration {
	return time.Duration(attempt*attempt) * time.Second
}

// WorkerPool manages a pool of workers processing transcription jobs
type WorkerPool struct {
	opts      Options
	jobQueue  chan *Job
	registry  *Registry
	pipeline  VideoTranscriber
	store     ResultStore
	uploader  Uploader
	db        MetadataStore
	publisher *events.Publisher
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// NewWorkerPool creates a new worker pool. uploader, db and publisher may be nil.
func NewWorkerPool(
	opts Options,
	pipeline VideoTranscriber,
	store ResultStore,
	uploader Uploader,
	db MetadataStore,
	publisher *events.Publisher,
	logger *slog.Logger,
) *WorkerPool {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 100
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.Backoff == nil {
		opts.Backoff = QuadraticBackoff
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		opts:      opts,
		jobQueue:  make(chan *Job, opts.QueueSize),
		registry:  NewRegistry(),
		pipeline:  pipeline,
		store:     store,
		uploader:  uploader,
		db:        db,
		publisher: publisher,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Registry exposes job statuses.
func (wp *WorkerPool) Registry() *Registry {
	return wp.registry
}

// Start initializes all workers
func (wp *WorkerPool) Start() {
	wp.logger.Info("starting worker pool", slog.Int("workers", wp.opts.Workers))
	for i := 0; i < wp.opts.Workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop cancels in-flight jobs and waits for workers to exit.
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	if wp.closed {
		wp.mu.Unlock()
		return
	}
	wp.closed = true
	close(wp.jobQueue)
	wp.mu.Unlock()

	wp.cancel()
	wp.wg.Wait()
	wp.logger.Info("worker pool stopped")
}

// EnqueueJob registers the job as QUEUED and hands it to the workers. It
// does not block: a full queue is reported as ErrQueueFull.
func (wp *WorkerPool) EnqueueJob(job *Job) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.closed {
		return ErrPoolStopped
	}

	wp.registry.update(job.ID, func(st *JobStatus) {
		created := st.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		*st = JobStatus{
			ID:          job.ID,
			RequestName: job.RequestName,
			SourceType:  job.SourceType,
			Status:      types.StatusQueued,
			CreatedAt:   created,
		}
	})

	select {
	case wp.jobQueue <- job:
	default:
		wp.registry.remove(job.ID)
		return ErrQueueFull
	}

	wp.logger.Info("job enqueued",
		slog.String("job_id", job.ID),
		slog.String("source", job.SourceType),
		slog.String("name", job.RequestName),
	)
	wp.publish(job, types.StatusQueued, 0, nil, nil)
	return nil
}

// Capturing registers a job whose video is still being fetched, so its
// status is visible before it reaches the queue.
func (wp *WorkerPool) Capturing(job *Job) {
	now := time.Now()
	wp.registry.update(job.ID, func(st *JobStatus) {
		*st = JobStatus{
			ID:          job.ID,
			RequestName: job.RequestName,
			SourceType:  job.SourceType,
			Status:      types.StatusCapturing,
			CreatedAt:   now,
		}
	})
	wp.publish(job, types.StatusCapturing, 0, nil, nil)
}

// CaptureFailed marks a job that never reached the queue as FAILED.
func (wp *WorkerPool) CaptureFailed(job *Job, err error) {
	wp.registry.update(job.ID, func(st *JobStatus) {
		if st.CreatedAt.IsZero() {
			st.CreatedAt = time.Now()
		}
		st.ID = job.ID
		st.RequestName = job.RequestName
		st.SourceType = job.SourceType
		st.Status = types.StatusFailed
		st.Error = err.Error()
	})
	wp.logger.Warn("job failed before queueing",
		slog.String("job_id", job.ID),
		slog.String("source", job.SourceType),
		slog.String("error", err.Error()),
	)
	wp.publish(job, types.StatusFailed, 0, nil, err)
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()
	logger := wp.logger.With(slog.Int("worker", id))
	logger.Debug("worker started")

	for job := range wp.jobQueue {
		wp.runJob(logger, job)
	}
}

func (wp *WorkerPool) runJob(logger *slog.Logger, job *Job) {
	defer wp.removeInput(logger, job)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic processing job",
				slog.String("job_id", job.ID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			wp.fail(job, 0, fmt.Errorf("worker panic: %v", r))
		}
	}()
	wp.processJob(logger, job)
}

func (wp *WorkerPool) processJob(logger *slog.Logger, job *Job) {
	logger = logger.With(slog.String("job_id", job.ID))

	var audioPath string
	if wp.opts.KeepAudio {
		path, err := wp.store.AudioPath(job.ID, job.RequestName)
		if err != nil {
			logger.Warn("cannot keep compressed audio", slog.String("error", err.Error()))
		} else {
			audioPath = path
		}
	}

	result, attempts, err := wp.transcribeWithRetry(logger, job, audioPath)
	if err != nil {
		logger.Error("transcription failed", slog.Int("attempts", attempts), slog.String("error", err.Error()))
		if audioPath != "" {
			if rmErr := os.Remove(audioPath); rmErr != nil && !os.IsNotExist(rmErr) {
				logger.Warn("failed to remove kept audio", slog.String("path", audioPath), slog.String("error", rmErr.Error()))
			}
		}
		wp.fail(job, attempts, err)
		return
	}

	result.JobID = job.ID
	result.WordCount = wordCount(result.Segments)

	paths, err := wp.store.SaveTranscript(job.RequestName, result)
	if err != nil {
		logger.Error("local save failed", slog.String("error", err.Error()))
		wp.fail(job, attempts, fmt.Errorf("local save failed: %w", err))
		return
	}
	result.LocalPath = paths.Text
	result.JSONPath = paths.Segments

	if wp.uploader != nil {
		result.GDriveURL = wp.uploadWithRetry(logger, job, result)
	}

	if wp.db != nil {
		err := wp.db.SaveTranscript(storage.TranscriptRecord{
			JobID:        job.ID,
			RequestName:  job.RequestName,
			SourceType:   job.SourceType,
			GDriveURL:    result.GDriveURL,
			LocalPath:    result.LocalPath,
			SegmentsPath: result.JSONPath,
			AudioPath:    result.AudioPath,
			CreatedAt:    result.ProcessedAt,
			Duration:     result.Duration,
			BitrateKbps:  result.BitrateKbps,
			WordCount:    result.WordCount,
		})
		if err != nil {
			logger.Warn("database save failed", slog.String("error", err.Error()))
		}
	}

	wp.registry.update(job.ID, func(st *JobStatus) {
		st.Status = types.StatusCompleted
		st.Attempts = attempts
		st.Error = ""
		st.Result = result
	})
	wp.publish(job, types.StatusCompleted, attempts, result, nil)
	logger.Info("job completed",
		slog.String("local", result.LocalPath),
		slog.String("gdrive", result.GDriveURL),
		slog.Int("bitrate_kbps", result.BitrateKbps),
	)
}

// transcribeWithRetry reruns the whole pipeline while the failure is
// retriable and attempts remain. Each attempt gets its own timeout.
func (wp *WorkerPool) transcribeWithRetry(logger *slog.Logger, job *Job, audioPath string) (*types.TranscriptionResult, int, error) {
	var lastErr error
	for attempt := 1; attempt <= wp.opts.MaxAttempts; attempt++ {
		wp.registry.update(job.ID, func(st *JobStatus) {
			st.Status = types.StatusProcessing
			st.Attempts = attempt
		})
		wp.publish(job, types.StatusProcessing, attempt, nil, nil)

		result, err := wp.attempt(job, audioPath)
		if err == nil {
			return result, attempt, nil
		}
		lastErr = err
		if !transcription.Retriable(err) || attempt == wp.opts.MaxAttempts {
			return nil, attempt, err
		}

		delay := wp.opts.Backoff(attempt)
		logger.Warn("transcription attempt failed, retrying",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", wp.opts.MaxAttempts),
			slog.Duration("backoff", delay),
			slog.String("error", err.Error()),
		)
		if err := wp.sleep(delay); err != nil {
			return nil, attempt, errors.Join(lastErr, err)
		}
	}
	return nil, wp.opts.MaxAttempts, lastErr
}

func (wp *WorkerPool) attempt(job *Job, audioPath string) (*types.TranscriptionResult, error) {
	ctx := wp.ctx
	if wp.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, wp.opts.Timeout)
		defer cancel()
	}
	return wp.pipeline.TranscribeVideo(ctx, transcription.Request{
		Video:           job.video(),
		Target:          wp.opts.Target,
		Language:        wp.opts.Language,
		AudioOutputPath: audioPath,
	})
}

func (wp *WorkerPool) uploadWithRetry(logger *slog.Logger, job *Job, result *types.TranscriptionResult) string {
	const maxUploads = 3
	for attempt := 1; attempt <= maxUploads; attempt++ {
		url, err := wp.uploader.Upload(wp.ctx, job.RequestName, result)
		if err == nil {
			return url
		}
		logger.Warn("google drive upload failed",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", maxUploads),
			slog.String("error", err.Error()),
		)
		if attempt < maxUploads && wp.sleep(wp.opts.Backoff(attempt)) != nil {
			break
		}
	}
	logger.Warn("google drive upload abandoned, transcript saved locally only")
	return ""
}

func (wp *WorkerPool) sleep(d time.Duration) error {
	if d <= 0 {
		return wp.ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-wp.ctx.Done():
		return wp.ctx.Err()
	}
}

func (wp *WorkerPool) fail(job *Job, attempts int, err error) {
	wp.registry.update(job.ID, func(st *JobStatus) {
		st.Status = types.StatusFailed
		if attempts > 0 {
			st.Attempts = attempts
		}
		st.Error = err.Error()
	})
	wp.publish(job, types.StatusFailed, attempts, nil, err)
}

func (wp *WorkerPool) publish(job *Job, status string, attempt int, result *types.TranscriptionResult, err error) {
	evt := events.JobEvent{
		JobID:       job.ID,
		RequestName: job.RequestName,
		Source:      job.SourceType,
		Status:      status,
		Attempt:     attempt,
	}
	if err != nil {
		evt.Error = err.Error()
	}
	if result != nil {
		evt.BitrateKbps = result.BitrateKbps
		evt.Duration = result.Duration
		evt.LocalPath = result.LocalPath
		evt.GDriveURL = result.GDriveURL
	}
	wp.publisher.Publish(evt)
}

func (wp *WorkerPool) removeInput(logger *slog.Logger, job *Job) {
	if job.FilePath == "" {
		return
	}
	if err := os.Remove(job.FilePath); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to remove job input", slog.String("path", job.FilePath), slog.String("error", err.Error()))
	}
}

func wordCount(segments []types.Segment) int {
	n := 0
	for _, s := range segments {
		n += len(strings.Fields(s.Text))
	}
	return n
}
