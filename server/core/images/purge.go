package images

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rickb777/date/period"
	"github.com/webcampics/webcampics/server/core/ccc/logging"
)

// PurgeRecorder receives the outcome of every purge pass.
type PurgeRecorder interface {
	RecordPurge(removed int, retentionDays int, err error)
}

type nopPurgeRecorder struct{}

var NopPurgeRecorder PurgeRecorder = &nopPurgeRecorder{}

func (n *nopPurgeRecorder) RecordPurge(removed int, retentionDays int, err error) {}

type purgeRecorders []PurgeRecorder

func (rs purgeRecorders) RecordPurge(removed int, retentionDays int, err error) {
	for _, r := range rs {
		r.RecordPurge(removed, retentionDays, err)
	}
}

// MultiPurgeRecorder reports every pass to each non-nil recorder.
func MultiPurgeRecorder(recorders ...PurgeRecorder) PurgeRecorder {
	out := make(purgeRecorders, 0, len(recorders))
	for _, r := range recorders {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

// ParseInterval reads an ISO-8601 period such as "P1D" or "PT6H".
// An empty value yields zero, meaning no scheduled purge.
func ParseInterval(value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	p, err := period.Parse(value)
	if err != nil {
		return 0, fmt.Errorf("invalid purge interval %q: %w", value, err)
	}
	d := p.DurationApprox()
	if d <= 0 {
		return 0, fmt.Errorf("purge interval %q must be positive", value)
	}
	return d, nil
}

// Purger runs retention passes over an ImageStore, on demand or on a fixed interval.
type Purger struct {
	logger        logging.Logger
	store         ImageStore
	recorder      PurgeRecorder
	retentionDays int

	// one pass at a time
	mu sync.Mutex
}

func NewPurger(logger logging.Logger, store ImageStore, retentionDays int, recorder PurgeRecorder) *Purger {
	if logger == nil {
		logger = logging.NopLogger
	}
	if recorder == nil {
		recorder = NopPurgeRecorder
	}
	return &Purger{
		logger:        logger,
		store:         store,
		recorder:      recorder,
		retentionDays: retentionDays,
	}
}

// RetentionDays is the age, in days, beyond which files are purged.
func (p *Purger) RetentionDays() int {
	return p.retentionDays
}

// RunOnce purges every file older than the retention window.
func (p *Purger) RunOnce() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	removed, err := p.store.PurgeOlderThan(p.retentionDays)
	if err != nil {
		p.logger.Error("Purge pass failed", "error", err, "removed", removed, "retention_days", p.retentionDays)
	} else {
		p.logger.Info("Purge pass finished", "removed", removed, "retention_days", p.retentionDays)
	}
	p.recorder.RecordPurge(removed, p.retentionDays, err)
	return removed, err
}

// Run purges every interval until ctx is done. A zero interval returns immediately.
func (p *Purger) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.logger.Info("Purge schedule started", "interval", interval.String(), "retention_days", p.retentionDays)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Purge schedule stopped")
			return
		case <-ticker.C:
			p.RunOnce()
		}
	}
}
