package transcription

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// VideoSource is either a caller-owned path or an in-memory stream that the
// pipeline materializes to a temp file of its own.
type VideoSource struct {
	path   string
	reader io.Reader
	ext    string
}

// VideoFromPath references a video the caller owns. The pipeline never deletes it.
func VideoFromPath(path string) VideoSource {
	return VideoSource{path: path, ext: filepath.Ext(path)}
}

// VideoFromReader wraps an in-memory video stream. ext is the container
// extension (".mp4", ".webm") used for the temp copy and may be empty.
func VideoFromReader(r io.Reader, ext string) VideoSource {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return VideoSource{reader: r, ext: ext}
}

// String names the source for logging.
func (v VideoSource) String() string {
	if v.reader != nil {
		return "stream" + v.ext
	}
	return v.path
}

// scopedFile is a path plus the owns-file flag that decides whether release deletes it.
type scopedFile struct {
	path string
	owns bool
}

func (s scopedFile) release(logger *slog.Logger, what string) {
	if s.owns {
		removeFile(logger, s.path, what)
	}
}

// materialize returns a path ffmpeg can open. Streams are copied into tempDir
// and the returned handle owns the copy.
func (v VideoSource) materialize(tempDir string) (scopedFile, error) {
	if v.reader == nil {
		if v.path == "" {
			return scopedFile{}, errors.New("empty video source")
		}
		return scopedFile{path: v.path}, nil
	}

	f, err := os.CreateTemp(tempDir, "video_*"+v.ext)
	if err != nil {
		return scopedFile{}, fmt.Errorf("create temp video: %w", err)
	}
	if _, err := io.Copy(f, v.reader); err != nil {
		f.Close()
		os.Remove(f.Name())
		return scopedFile{}, fmt.Errorf("write temp video: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return scopedFile{}, fmt.Errorf("flush temp video: %w", err)
	}
	return scopedFile{path: f.Name(), owns: true}, nil
}

// AudioArtifact is an on-disk audio file produced by one stage and consumed by the next.
type AudioArtifact struct {
	Path     string
	Duration float64 // seconds
	Size     int64   // bytes
	ownsFile bool
}

// OwnsFile reports whether Release deletes the file.
func (a AudioArtifact) OwnsFile() bool {
	return a.ownsFile
}

// Release deletes the file when the artifact owns it. Failures are logged, never returned.
func (a AudioArtifact) Release(logger *slog.Logger) {
	if a.ownsFile {
		removeFile(logger, a.Path, "audio artifact")
	}
}

func removeFile(logger *slog.Logger, path, what string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("failed to delete temp file",
				slog.String("kind", what),
				slog.String("path", path),
				slog.String("error", err.Error()))
		}
		return
	}
	logger.Debug("deleted temp file", slog.String("kind", what), slog.String("path", path))
}
