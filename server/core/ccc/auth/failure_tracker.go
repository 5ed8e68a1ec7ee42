package auth

import (
	"sync"
	"time"
)

// FailureRecord is one rejected upload.
type FailureRecord struct {
	DeviceID  string
	SourceIP  string
	Timestamp time.Time
}

// FailureTracker counts rejected uploads per source address. It only feeds
// warnings; nothing is ever locked out.
type FailureTracker interface {
	// RecordFailure records a rejection and returns how many the source has within the window.
	RecordFailure(deviceID string, sourceIP string, timestamp time.Time) int
	// ShouldWarn reports whether failureCount has just reached the warning threshold.
	ShouldWarn(failureCount int) bool
}

// WarnSettings configures when repeated failures are reported.
type WarnSettings struct {
	Threshold  int           // failures within TimeWindow that trigger a warning (0 disables)
	TimeWindow time.Duration // how far back failures are counted
}

type nopFailureTracker struct{}

var NopFailureTracker FailureTracker = &nopFailureTracker{}

func (n *nopFailureTracker) RecordFailure(deviceID string, sourceIP string, timestamp time.Time) int {
	return 0
}

func (n *nopFailureTracker) ShouldWarn(failureCount int) bool {
	return false
}

type memoryFailureTracker struct {
	settings WarnSettings
	failures []FailureRecord
	mu       sync.Mutex
}

func NewMemoryFailureTracker(settings WarnSettings) FailureTracker {
	return &memoryFailureTracker{
		settings: settings,
		failures: make([]FailureRecord, 0),
	}
}

func (t *memoryFailureTracker) ShouldWarn(failureCount int) bool {
	return t.settings.Threshold > 0 && failureCount == t.settings.Threshold
}

func (t *memoryFailureTracker) RecordFailure(deviceID string, sourceIP string, timestamp time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.failures = append(t.failures, FailureRecord{
		DeviceID:  deviceID,
		SourceIP:  sourceIP,
		Timestamp: timestamp,
	})

	cutoff := timestamp.Add(-t.settings.TimeWindow)
	kept := t.failures[:0]
	count := 0
	for _, f := range t.failures {
		if f.Timestamp.Before(cutoff) {
			continue
		}
		kept = append(kept, f)
		if f.SourceIP == sourceIP {
			count++
		}
	}
	t.failures = kept

	return count
}
