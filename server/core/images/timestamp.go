package images

import (
	"strings"
	"time"
)

// TimestampLayout names every stored frame. Names in this layout sort in capture order.
const TimestampLayout = "2006-01-02_15-04-05"

// OverlayLayout is how a capture time is printed onto a frame.
const OverlayLayout = "2006-01-02 15:04:05"

// captureLayouts are the capture time formats cameras are known to send.
var captureLayouts = []string{
	TimestampLayout,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02_15:04:05",
	"2006:01:02 15:04:05",
}

// NormalizeCaptureTime turns a caller supplied capture time into the filename
// stem for a frame. Recognised formats are rewritten to TimestampLayout, keeping
// the wall clock time as sent. Anything else is rejected.
func NormalizeCaptureTime(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", NewInvalidCaptureTimeError(value)
	}

	for _, layout := range captureLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format(TimestampLayout), nil
		}
	}
	return "", NewInvalidCaptureTimeError(value)
}

// FormatTimestamp returns the stem for t.
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// OverlayText renders a filename stem for the on-image timestamp. Stems that are
// not in TimestampLayout are shown with underscores turned into spaces.
func OverlayText(stem string) string {
	if t, err := time.Parse(TimestampLayout, stem); err == nil {
		return t.Format(OverlayLayout)
	}
	return strings.ReplaceAll(stem, "_", " ")
}
