// Package audit keeps the human-readable upload and cleanup logs next to the image archive.
package audit

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

const (
	UploadLogName  = "upload.log"
	CleanupLogName = "cleanup.log"

	lineTimeLayout = "2006-01-02 15:04:05"
)

// Format selects how audit lines are written.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// lineFormatter writes "[YYYY-MM-DD HH:MM:SS] message" lines.
type lineFormatter struct{}

func (lineFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	return []byte(fmt.Sprintf("[%s] %s\n", entry.Time.Format(lineTimeLayout), entry.Message)), nil
}

// UploadRecord describes one accepted upload.
type UploadRecord struct {
	DeviceID  string
	Protocol  string
	Size      int
	Filename  string
	Discarded bool
}

// Trail appends one line per accepted upload and per purge pass.
type Trail struct {
	uploads *logrus.Logger
	cleanup *logrus.Logger
	closers []io.Closer
}

func newLogger(out io.Writer, format Format) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(logrus.InfoLevel)
	if format == FormatJSON {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: lineTimeLayout})
	} else {
		l.SetFormatter(lineFormatter{})
	}
	return l
}

// NewTrail writes upload lines to uploads and purge lines to cleanup.
func NewTrail(uploads, cleanup io.Writer, format Format) *Trail {
	return &Trail{
		uploads: newLogger(uploads, format),
		cleanup: newLogger(cleanup, format),
	}
}

// OpenTrail appends to upload.log and cleanup.log in dir, creating them if needed.
func OpenTrail(dir string, format Format) (*Trail, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}

	uploads, err := os.OpenFile(filepath.Join(dir, UploadLogName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open upload log: %w", err)
	}
	cleanup, err := os.OpenFile(filepath.Join(dir, CleanupLogName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		uploads.Close()
		return nil, fmt.Errorf("failed to open cleanup log: %w", err)
	}

	trail := NewTrail(uploads, cleanup, format)
	trail.closers = []io.Closer{uploads, cleanup}
	return trail, nil
}

func (t *Trail) RecordUpload(rec UploadRecord) {
	entry := t.uploads.WithFields(logrus.Fields{
		"device_id": rec.DeviceID,
		"protocol":  rec.Protocol,
		"size":      rec.Size,
		"filename":  rec.Filename,
		"discarded": rec.Discarded,
	})

	switch {
	case rec.Discarded:
		entry.Infof("Image from %s discarded (%d bytes) - camera disabled", rec.DeviceID, rec.Size)
	case rec.Protocol == "legacy":
		entry.Infof("Legacy upload from %s (%d bytes) - Saved as %s", rec.DeviceID, rec.Size, rec.Filename)
	default:
		entry.Infof("Image received from %s (%d bytes) - Saved as %s", rec.DeviceID, rec.Size, rec.Filename)
	}
}

// RecordPurge writes the one-line summary of a purge pass.
func (t *Trail) RecordPurge(removed int, retentionDays int, err error) {
	entry := t.cleanup.WithFields(logrus.Fields{
		"removed":        removed,
		"retention_days": retentionDays,
	})
	if err != nil {
		entry.WithError(err).Infof("Cleanup: %d files deleted (retention: %d days) - errors: %v", removed, retentionDays, err)
		return
	}
	entry.Infof("Cleanup: %d files deleted (retention: %d days)", removed, retentionDays)
}

func (t *Trail) Close() error {
	var errs []error
	for _, c := range t.closers {
		errs = append(errs, c.Close())
	}
	t.closers = nil
	return errors.Join(errs...)
}
