package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/webcampics/webcampics/server/core/ccc/auth"
	"github.com/webcampics/webcampics/server/core/ccc/logging"
	"github.com/webcampics/webcampics/server/core/ingest"
)

const (
	// TimestampHeader carries the camera's capture time on modern uploads
	TimestampHeader = "X-Timestamp"

	// room for the legacy form fields and multipart framing around the picture
	multipartOverhead = 64 << 10
)

// UploadHandler accepts camera snapshots over the modern and legacy protocols
type UploadHandler struct {
	logger   logging.Logger
	pipeline *ingest.Pipeline
	maxBytes int64
}

// NewUploadHandler creates a new upload handler
func NewUploadHandler(logger logging.Logger, pipeline *ingest.Pipeline, maxBytes int64) *UploadHandler {
	if logger == nil {
		logger = logging.NopLogger
	}

	return &UploadHandler{
		logger:   logger,
		pipeline: pipeline,
		maxBytes: maxBytes,
	}
}

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(strings.ToLower(c.ContentType()), "multipart/form-data")
}

// readLimited reads at most maxBytes+1 bytes so an oversized payload is still recognised as such
func (h *UploadHandler) readLimited(r io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, h.maxBytes+1))
}

// requestError is a rejection decided before the pipeline runs
type requestError struct {
	status  int
	message string
}

func (h *UploadHandler) legacyRequest(c *gin.Context) (ingest.Request, *requestError) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+multipartOverhead)
	if err := c.Request.ParseMultipartForm(h.maxBytes + multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return ingest.Request{}, &requestError{http.StatusRequestEntityTooLarge, "Image too large"}
		}
		return ingest.Request{}, &requestError{http.StatusBadRequest, "Invalid form data"}
	}

	req := ingest.Request{
		Credentials: auth.LegacyCredentials(
			c.PostForm(auth.LegacyTokenField), c.PostForm(auth.LegacyDeviceField), c.ClientIP()),
	}

	fileHeader, err := c.FormFile(auth.LegacyFileField)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			// the pipeline reports the empty payload after checking the token
			return req, nil
		}
		return req, &requestError{http.StatusBadRequest, "Invalid form data"}
	}
	file, err := fileHeader.Open()
	if err != nil {
		return req, &requestError{http.StatusInternalServerError, "Failed to read uploaded file"}
	}
	defer file.Close()

	if req.Payload, err = h.readLimited(file); err != nil {
		return req, &requestError{http.StatusInternalServerError, "Failed to read uploaded file"}
	}
	return req, nil
}

func (h *UploadHandler) modernRequest(c *gin.Context) (ingest.Request, *requestError) {
	req := ingest.Request{
		Credentials: auth.ModernCredentials(c.Request.Header, c.ClientIP()),
		CaptureTime: strings.TrimSpace(c.GetHeader(TimestampHeader)),
	}

	payload, err := h.readLimited(c.Request.Body)
	if err != nil {
		return req, &requestError{http.StatusBadRequest, "Failed to read request body"}
	}
	req.Payload = payload
	return req, nil
}

func statusFor(kind ingest.Kind) int {
	switch kind {
	case ingest.KindUnauthorized:
		return http.StatusUnauthorized
	case ingest.KindMissingIdentity, ingest.KindInvalidIdentifier, ingest.KindBadPayload:
		return http.StatusBadRequest
	case ingest.KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// Upload handles POST /upload and POST /upload.php
func (h *UploadHandler) Upload(c *gin.Context) {
	var (
		req    ingest.Request
		reject *requestError
	)
	if isMultipart(c) {
		req, reject = h.legacyRequest(c)
	} else {
		req, reject = h.modernRequest(c)
	}
	if reject != nil {
		h.logger.Warn("Rejected upload", "reason", reject.message, "client_ip", c.ClientIP())
		c.JSON(reject.status, gin.H{"error": reject.message})
		return
	}

	result, err := h.pipeline.Ingest(c.Request.Context(), req)
	if err != nil {
		var ingestErr *ingest.Error
		if !errors.As(err, &ingestErr) {
			h.logger.Error("Upload failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		c.JSON(statusFor(ingestErr.Kind), gin.H{"error": ingestErr.Message})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"device_id": result.DeviceID,
		"timestamp": result.Timestamp,
		"size":      result.Size,
		"filename":  result.Filename,
		"discarded": result.Discarded,
	})
}

// MethodNotAllowed answers requests with an unsupported method on a known path
func MethodNotAllowed(c *gin.Context) {
	c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
}
