// Package ingest turns one authenticated camera upload into a stored frame.
package ingest

import (
	"context"
	"fmt"

	"github.com/h2non/filetype"

	"github.com/webcampics/webcampics/server/core/audit"
	"github.com/webcampics/webcampics/server/core/ccc/auth"
	"github.com/webcampics/webcampics/server/core/ccc/logging"
	"github.com/webcampics/webcampics/server/core/devices"
	"github.com/webcampics/webcampics/server/core/identity"
	"github.com/webcampics/webcampics/server/core/images"
)

// Request is one upload as received from a camera.
type Request struct {
	Credentials auth.Credentials
	Payload     []byte
	// CaptureTime is the camera supplied capture time, if any.
	CaptureTime string
}

// Result describes an accepted upload.
type Result struct {
	DeviceID  string `json:"device_id"`
	Timestamp string `json:"timestamp"`
	Size      int    `json:"size"`
	Filename  string `json:"filename"`
	Discarded bool   `json:"discarded"`
}

// UploadEvent is published for every finalized frame of an enabled camera.
type UploadEvent struct {
	DeviceID  string `json:"device_id"`
	Title     string `json:"title"`
	Location  string `json:"location"`
	Dir       string `json:"dir"`
	Filename  string `json:"filename"`
	Timestamp string `json:"timestamp"`
	Size      int    `json:"size"`
}

type Processor interface {
	Process(raw []byte, cfg *devices.CameraConfig, stem string) ([]byte, error)
}

type AuditTrail interface {
	RecordUpload(rec audit.UploadRecord)
}

type Notifier interface {
	Publish(event UploadEvent)
}

type nopAuditTrail struct{}

func (nopAuditTrail) RecordUpload(audit.UploadRecord) {}

type nopNotifier struct{}

func (nopNotifier) Publish(UploadEvent) {}

type Options struct {
	MaxUploadBytes   int64
	UseExifTimestamp bool
}

type Pipeline struct {
	logger      logging.Logger
	gateway     auth.Gateway
	registry    devices.Registry
	store       images.ImageStore
	transformer Processor
	trail       AuditTrail
	notifier    Notifier
	opts        Options
}

// NewPipeline wires the ingestion steps together. trail and notifier may be nil.
func NewPipeline(logger logging.Logger, gateway auth.Gateway, registry devices.Registry, store images.ImageStore,
	transformer Processor, trail AuditTrail, notifier Notifier, opts Options) *Pipeline {
	if logger == nil {
		logger = logging.NopLogger
	}
	if trail == nil {
		trail = nopAuditTrail{}
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Pipeline{
		logger:      logger,
		gateway:     gateway,
		registry:    registry,
		store:       store,
		transformer: transformer,
		trail:       trail,
		notifier:    notifier,
		opts:        opts,
	}
}

func (p *Pipeline) checkPayload(payload []byte) error {
	if len(payload) == 0 {
		return newError(KindBadPayload, "No image data received", nil)
	}
	if p.opts.MaxUploadBytes > 0 && int64(len(payload)) > p.opts.MaxUploadBytes {
		return newError(KindPayloadTooLarge,
			fmt.Sprintf("Image too large (max %d bytes)", p.opts.MaxUploadBytes), nil)
	}
	if !filetype.Is(payload, "jpg") {
		return newError(KindBadPayload, "Payload is not a JPEG image", nil)
	}
	return nil
}

// captureStem picks the filename stem: the camera's capture time, then EXIF when
// enabled, then the store's clock (empty stem).
func (p *Pipeline) captureStem(req Request) (string, error) {
	if req.CaptureTime != "" {
		stem, err := images.NormalizeCaptureTime(req.CaptureTime)
		if err != nil {
			return "", newError(KindBadPayload, "Invalid capture timestamp", err)
		}
		return stem, nil
	}
	if p.opts.UseExifTimestamp {
		if t, ok := images.CaptureTimeFromExif(req.Payload); ok {
			return images.FormatTimestamp(t), nil
		}
	}
	return "", nil
}

// Ingest runs one upload to completion. Every failure is an *Error.
func (p *Pipeline) Ingest(ctx context.Context, req Request) (*Result, error) {
	creds := req.Credentials

	if err := p.gateway.Authenticate(creds); err != nil {
		return nil, newError(KindUnauthorized, "Unauthorized", err)
	}

	if creds.DeviceID == "" {
		return nil, newError(KindMissingIdentity, "Missing device ID", nil)
	}
	if _, err := identity.SanitizeForStorage(creds.DeviceID); err != nil {
		return nil, newError(KindInvalidIdentifier, "Invalid device ID", err)
	}

	if err := p.checkPayload(req.Payload); err != nil {
		return nil, err
	}
	stem, err := p.captureStem(req)
	if err != nil {
		return nil, err
	}

	cam, created, err := p.registry.EnsureProvisioned(ctx, creds.DeviceID)
	if err != nil {
		if identity.IsInvalidIdentifierError(err) {
			return nil, newError(KindInvalidIdentifier, "Invalid device ID", err)
		}
		return nil, newError(KindStorage, "Failed to load camera configuration", err)
	}
	if created {
		p.logger.Info("New camera registered", "device_id", creds.DeviceID, "key", cam.Key)
	}

	// frames of equivalent spellings share the directory of the stored identifier
	staged, err := p.store.StageRaw(cam.Identifier, req.Payload, stem)
	if err != nil {
		return nil, newError(KindStorage, "Failed to save image", err)
	}

	result := &Result{
		DeviceID:  creds.DeviceID,
		Timestamp: images.OverlayText(staged.Timestamp),
		Size:      staged.Size,
	}

	switch cam.Status {
	case devices.StatusDisabled:
		if err := p.store.Discard(staged); err != nil {
			p.logger.Warn("Failed to discard raw image", "error", err, "path", staged.RawPath)
		}
		result.Discarded = true
		p.logger.Debug("Discarded upload from disabled camera", "device_id", creds.DeviceID)

	case devices.StatusHidden, devices.StatusEnabled:
		processed, err := p.transformer.Process(req.Payload, cam, staged.Timestamp)
		if err != nil {
			if derr := p.store.Discard(staged); derr != nil {
				p.logger.Warn("Failed to discard raw image", "error", derr, "path", staged.RawPath)
			}
			p.logger.Error("Failed to process image", "error", err, "device_id", creds.DeviceID)
			return nil, newError(KindTransform, "Failed to process image", err)
		}
		if _, err := p.store.Promote(staged, processed); err != nil {
			p.logger.Error("Failed to store image", "error", err, "device_id", creds.DeviceID)
			return nil, newError(KindStorage, "Failed to save image", err)
		}
		result.Filename = staged.Filename()

	default:
		if err := p.store.Discard(staged); err != nil {
			p.logger.Warn("Failed to discard raw image", "error", err, "path", staged.RawPath)
		}
		return nil, newError(KindStorage, "Camera has an unknown status", fmt.Errorf("status %d", cam.Status))
	}

	p.trail.RecordUpload(audit.UploadRecord{
		DeviceID:  creds.DeviceID,
		Protocol:  creds.Protocol.String(),
		Size:      result.Size,
		Filename:  result.Filename,
		Discarded: result.Discarded,
	})

	if cam.Status == devices.StatusEnabled {
		p.notifier.Publish(UploadEvent{
			DeviceID:  cam.Identifier,
			Title:     cam.Title,
			Location:  cam.Location,
			Dir:       staged.Dir,
			Filename:  result.Filename,
			Timestamp: staged.Timestamp,
			Size:      result.Size,
		})
	}

	p.logger.Info("Image received", "device_id", creds.DeviceID, "size", result.Size,
		"filename", result.Filename, "discarded", result.Discarded, "protocol", creds.Protocol.String())
	return result, nil
}
