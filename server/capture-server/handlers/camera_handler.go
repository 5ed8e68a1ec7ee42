package handlers

import (
	"context"
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/webcampics/webcampics/server/core/ccc/logging"
	"github.com/webcampics/webcampics/server/core/config"
	"github.com/webcampics/webcampics/server/core/devices"
	"github.com/webcampics/webcampics/server/core/images"
)

const (
	PublicImagePrefix = "/images"
	AdminImagePrefix  = "/api/admin/images"
)

// CameraHandler serves the public read API: cameras, locations and their frames
type CameraHandler struct {
	logger        logging.Logger
	registry      devices.Registry
	store         images.ImageStore
	thumbnails    images.ThumbnailGenerator
	locations     map[string]config.Location
	retentionDays int
}

// NewCameraHandler creates a new camera handler
func NewCameraHandler(logger logging.Logger, registry devices.Registry, store images.ImageStore,
	thumbnails images.ThumbnailGenerator, locations map[string]config.Location, retentionDays int) *CameraHandler {
	if logger == nil {
		logger = logging.NopLogger
	}

	return &CameraHandler{
		logger:        logger,
		registry:      registry,
		store:         store,
		thumbnails:    thumbnails,
		locations:     locations,
		retentionDays: retentionDays,
	}
}

// withLatest pairs cameras with the newest frame in their directory
func withLatest(store images.ImageStore, cams []*devices.CameraConfig, prefix string) ([]*CameraResponse, error) {
	latest, err := store.ListAllLatest()
	if err != nil {
		return nil, err
	}

	out := make([]*CameraResponse, 0, len(cams))
	for _, cam := range cams {
		resp := &CameraResponse{CameraConfig: cam}
		if dir, err := store.DirFor(cam.Identifier); err == nil {
			resp.Latest = newImageResponse(prefix, latest[dir])
		}
		out = append(out, resp)
	}
	return out, nil
}

func (h *CameraHandler) enabledCameras(ctx context.Context) ([]*devices.CameraConfig, error) {
	cams, err := h.registry.List(ctx)
	if err != nil {
		return nil, err
	}
	enabled := cams[:0]
	for _, cam := range cams {
		if cam.Status == devices.StatusEnabled {
			enabled = append(enabled, cam)
		}
	}
	return enabled, nil
}

// enabledCamera returns the camera for id, or nil when it is unknown or not public
func (h *CameraHandler) enabledCamera(c *gin.Context) *devices.CameraConfig {
	cam, err := h.registry.FindByIdentifier(c.Request.Context(), c.Param("id"))
	if err != nil {
		if !devices.IsCameraNotFoundError(err) {
			h.logger.Error("Failed to look up camera", "error", err, "device_id", c.Param("id"))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load cameras"})
			return nil
		}
	} else if cam.Status == devices.StatusEnabled {
		return cam
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "Camera not found"})
	return nil
}

// GetCameras handles GET /api/cameras
func (h *CameraHandler) GetCameras(c *gin.Context) {
	cams, err := h.enabledCameras(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list cameras", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load cameras"})
		return
	}

	resp, err := withLatest(h.store, cams, PublicImagePrefix)
	if err != nil {
		h.logger.Error("Failed to list latest images", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load images"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetLocations handles GET /api/locations
func (h *CameraHandler) GetLocations(c *gin.Context) {
	cams, err := h.enabledCameras(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list cameras", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load cameras"})
		return
	}
	withImages, err := withLatest(h.store, cams, PublicImagePrefix)
	if err != nil {
		h.logger.Error("Failed to list latest images", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load images"})
		return
	}

	byID := make(map[string]*LocationResponse)
	for _, cam := range withImages {
		loc, ok := byID[cam.Location]
		if !ok {
			loc = &LocationResponse{ID: cam.Location, Title: cam.Location}
			if meta, known := h.locations[cam.Location]; known {
				loc.Title = meta.Title
				loc.Description = meta.Description
			}
			byID[cam.Location] = loc
		}
		loc.Cameras = append(loc.Cameras, cam)
	}

	out := make([]*LocationResponse, 0, len(byID))
	for _, loc := range byID {
		out = append(out, loc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	c.JSON(http.StatusOK, out)
}

// GetCamera handles GET /api/cameras/:id
func (h *CameraHandler) GetCamera(c *gin.Context) {
	cam := h.enabledCamera(c)
	if cam == nil {
		return
	}

	resp := &CameraResponse{CameraConfig: cam}
	if latest, err := h.store.Latest(cam.Identifier); err == nil {
		resp.Latest = newImageResponse(PublicImagePrefix, latest)
	} else if !images.IsImageNotFoundError(err) {
		h.logger.Warn("Failed to read latest image", "error", err, "device_id", cam.Identifier)
	}
	c.JSON(http.StatusOK, resp)
}

// GetCameraImages handles GET /api/cameras/:id/images?days=N
func (h *CameraHandler) GetCameraImages(c *gin.Context) {
	days := h.retentionDays
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be a positive integer"})
			return
		}
		days = n
	}

	cam := h.enabledCamera(c)
	if cam == nil {
		return
	}

	frames, err := h.store.ListWithinWindow(cam.Identifier, days)
	if err != nil {
		h.logger.Error("Failed to list images", "error", err, "device_id", cam.Identifier)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load images"})
		return
	}

	out := make([]*ImageResponse, 0, len(frames))
	for _, f := range frames {
		out = append(out, newImageResponse(PublicImagePrefix, f))
	}
	c.JSON(http.StatusOK, gin.H{
		"device_id": cam.Identifier,
		"days":      days,
		"images":    out,
	})
}

// publicDir reports whether dir belongs to an enabled camera
func (h *CameraHandler) publicDir(ctx context.Context, dir string) (bool, error) {
	cams, err := h.enabledCameras(ctx)
	if err != nil {
		return false, err
	}
	for _, cam := range cams {
		if d, err := h.store.DirFor(cam.Identifier); err == nil && d == dir {
			return true, nil
		}
	}
	return false, nil
}

func (h *CameraHandler) resolveFrame(c *gin.Context, publicOnly bool) (string, bool) {
	dir, name := c.Param("dir"), c.Param("file")

	if publicOnly {
		ok, err := h.publicDir(c.Request.Context(), dir)
		if err != nil {
			h.logger.Error("Failed to list cameras", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load cameras"})
			return "", false
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Image not found"})
			return "", false
		}
	}

	path, err := h.store.Resolve(dir, name)
	switch {
	case err == nil:
		return path, true
	case images.IsInvalidNameError(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid image name"})
	default:
		c.JSON(http.StatusNotFound, gin.H{"error": "Image not found"})
	}
	return "", false
}

func (h *CameraHandler) serveImage(c *gin.Context, publicOnly bool) {
	path, ok := h.resolveFrame(c, publicOnly)
	if !ok {
		return
	}
	c.Header("Content-Type", "image/jpeg")
	c.Header("Cache-Control", "public, max-age=86400")
	c.File(path)
}

func (h *CameraHandler) serveThumbnail(c *gin.Context, publicOnly bool) {
	// thumbnails only exist for frames
	if !images.IsFrameName(c.Param("file")) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid image name"})
		return
	}
	path, ok := h.resolveFrame(c, publicOnly)
	if !ok {
		return
	}
	data, err := h.thumbnails.Thumbnail(path)
	if err != nil {
		h.logger.Error("Failed to generate thumbnail", "error", err, "path", path)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate thumbnail"})
		return
	}
	c.Header("Cache-Control", "public, max-age=86400")
	c.Data(http.StatusOK, "image/jpeg", data)
}

// ServeImage handles GET /images/:dir/:file
func (h *CameraHandler) ServeImage(c *gin.Context) {
	h.serveImage(c, true)
}

// ServeThumbnail handles GET /images/:dir/:file/thumb
func (h *CameraHandler) ServeThumbnail(c *gin.Context) {
	h.serveThumbnail(c, true)
}

// ServeAnyImage handles GET /api/admin/images/:dir/:file, including hidden cameras
func (h *CameraHandler) ServeAnyImage(c *gin.Context) {
	h.serveImage(c, false)
}

// ServeAnyThumbnail handles GET /api/admin/images/:dir/:file/thumb
func (h *CameraHandler) ServeAnyThumbnail(c *gin.Context) {
	h.serveThumbnail(c, false)
}
