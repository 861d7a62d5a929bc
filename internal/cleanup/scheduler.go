package cleanup

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Scheduler removes temp artifacts left behind by crashed or killed runs.
type Scheduler struct {
	tempDir  string
	interval time.Duration
	maxAge   time.Duration
	logger   *slog.Logger
	now      func() time.Time
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewScheduler creates a new cleanup scheduler
func NewScheduler(tempDir string, intervalMinutes, maxAgeHours int, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		tempDir:  tempDir,
		interval: time.Duration(intervalMinutes) * time.Minute,
		maxAge:   time.Duration(maxAgeHours) * time.Hour,
		logger:   logger,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
}

// Start runs one sweep immediately, then every interval until Stop.
func (s *Scheduler) Start() {
	s.logger.Info("running initial temp file cleanup", slog.String("dir", s.tempDir))
	s.Sweep()

	ticker := time.NewTicker(s.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sweep()
			case <-s.stopChan:
				return
			}
		}
	}()

	s.logger.Info("cleanup scheduler started",
		slog.Duration("interval", s.interval),
		slog.Duration("max_age", s.maxAge),
	)
}

// Stop stops the cleanup scheduler
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.logger.Info("cleanup scheduler stopped")
	})
}

// Sweep deletes files older than the max age and returns how many were removed.
func (s *Scheduler) Sweep() int {
	now := s.now()
	var (
		deletedCount int
		deletedSize  int64
	)

	err := filepath.WalkDir(s.tempDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		age := now.Sub(info.ModTime())
		if age <= s.maxAge {
			return nil
		}
		if err := os.Remove(path); err != nil {
			s.logger.Warn("failed to delete old temp file", slog.String("path", path), slog.String("error", err.Error()))
			return nil
		}
		deletedCount++
		deletedSize += info.Size()
		s.logger.Debug("deleted old temp file",
			slog.String("file", filepath.Base(path)),
			slog.Duration("age", age.Round(time.Minute)),
			slog.Int64("size_bytes", info.Size()),
		)
		return nil
	})
	if err != nil {
		s.logger.Warn("temp cleanup walk failed", slog.String("error", err.Error()))
	}

	if deletedCount > 0 {
		s.logger.Info("cleanup complete",
			slog.Int("files_deleted", deletedCount),
			slog.String("freed", formatMB(deletedSize)),
		)
	}
	return deletedCount
}

// EnsureDir creates a working directory if it doesn't exist.
func EnsureDir(dir string, logger *slog.Logger) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	logger.Debug("directory ready", slog.String("dir", dir))
	return nil
}

func formatMB(n int64) string {
	return fmt.Sprintf("%.2fMB", float64(n)/(1024*1024))
}
