package transcription

import (
	"errors"
	"fmt"
)

// Failure kinds surfaced by the pipeline. Match them with errors.Is.
var (
	ErrNoAudioTrack         = errors.New("no audio track")
	ErrInvalidDuration      = errors.New("invalid duration")
	ErrTranscode            = errors.New("transcode failed")
	ErrTranscriptionService = errors.New("transcription service failed")
)

// TranscodeError carries the encoder diagnostic for a failed encode.
type TranscodeError struct {
	Diagnostic string
	Err        error
}

func (e *TranscodeError) Error() string {
	if e.Diagnostic == "" {
		return fmt.Sprintf("%v: %v", ErrTranscode, e.Err)
	}
	return fmt.Sprintf("%v: %v: %s", ErrTranscode, e.Err, e.Diagnostic)
}

func (e *TranscodeError) Unwrap() []error {
	return []error{ErrTranscode, e.Err}
}

// ServiceError is a failed call to the recognition service. StatusCode is
// zero when the request never produced a response.
type ServiceError struct {
	StatusCode int
	Err        error
}

func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%v: http %d: %v", ErrTranscriptionService, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%v: %v", ErrTranscriptionService, e.Err)
}

func (e *ServiceError) Unwrap() []error {
	return []error{ErrTranscriptionService, e.Err}
}

func serviceErr(status int, format string, args ...any) error {
	return &ServiceError{StatusCode: status, Err: fmt.Errorf(format, args...)}
}

// Retriable reports whether re-running the pipeline may succeed.
func Retriable(err error) bool {
	return errors.Is(err, ErrTranscriptionService)
}
