package transcription

import (
	"errors"
	"fmt"
	"strings"

	"github.com/codebuildervaibhav/video-transcription/internal/types"
)

// Normalize converts service segments into transcript segments in the order
// the service reported them and builds the display text by concatenating
// "[start - end] text" fragments with nothing in between.
func Normalize(raw []RawSegment) types.TranscriptionResult {
	segments := make([]types.Segment, len(raw))
	var text strings.Builder
	for i, r := range raw {
		segments[i] = types.Segment{Start: r.Start, End: r.End, Text: r.Text}
		text.WriteString(FormatSegment(segments[i]))
	}
	return types.TranscriptionResult{
		Text:     text.String(),
		Segments: segments,
	}
}

// FormatSegment renders one segment as it appears in the concatenated text.
func FormatSegment(s types.Segment) string {
	return fmt.Sprintf("[%.2fs - %.2fs] %s", s.Start, s.End, s.Text)
}

// RawSegments turns normalized segments back into service-shaped records.
func RawSegments(segments []types.Segment) []RawSegment {
	out := make([]RawSegment, len(segments))
	for i, s := range segments {
		out[i] = RawSegment{Start: s.Start, End: s.End, Text: s.Text}
	}
	return out
}

// ValidateOrder reports segments that end before they start or start before
// their predecessor. It never reorders anything.
func ValidateOrder(segments []types.Segment) error {
	var errs []error
	for i, s := range segments {
		if s.End < s.Start {
			errs = append(errs, fmt.Errorf("segment %d ends at %.2fs before it starts at %.2fs", i, s.End, s.Start))
		}
		if i > 0 && s.Start < segments[i-1].Start {
			errs = append(errs, fmt.Errorf("segment %d starts at %.2fs, before segment %d at %.2fs", i, s.Start, i-1, segments[i-1].Start))
		}
	}
	return errors.Join(errs...)
}
