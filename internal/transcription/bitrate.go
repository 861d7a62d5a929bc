package transcription

import (
	"fmt"
	"math"

	"github.com/codebuildervaibhav/video-transcription/internal/types"
)

// ComputeBitrate returns the constant bitrate in kbps that makes durationSeconds
// of audio roughly target.TargetSizeKB on disk, never below target.MinBitrateKbps.
func ComputeBitrate(durationSeconds float64, target types.CompressionTarget) (int, error) {
	if durationSeconds <= 0 || math.IsNaN(durationSeconds) || math.IsInf(durationSeconds, 0) {
		return 0, fmt.Errorf("%w: %v seconds", ErrInvalidDuration, durationSeconds)
	}
	raw := math.Floor(float64(target.TargetSizeKB) * 8 / durationSeconds)
	if raw < float64(target.MinBitrateKbps) {
		return target.MinBitrateKbps, nil
	}
	// The transcoder clamps to its own ceiling; this only keeps the int conversion in range.
	if raw > math.MaxInt32 {
		return math.MaxInt32, nil
	}
	return int(raw), nil
}
