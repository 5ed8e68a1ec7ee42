package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/webcampics/webcampics/server/core/ccc/logging"
	"github.com/webcampics/webcampics/server/core/devices"
	"github.com/webcampics/webcampics/server/core/identity"
	"github.com/webcampics/webcampics/server/core/images"
)

// AdminHandler handles camera administration and on-demand purges
type AdminHandler struct {
	logger   logging.Logger
	registry devices.Registry
	store    images.ImageStore
	purger   *images.Purger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(logger logging.Logger, registry devices.Registry, store images.ImageStore, purger *images.Purger) *AdminHandler {
	if logger == nil {
		logger = logging.NopLogger
	}

	return &AdminHandler{
		logger:   logger,
		registry: registry,
		store:    store,
		purger:   purger,
	}
}

// ListCameras handles GET /api/admin/cameras
func (h *AdminHandler) ListCameras(c *gin.Context) {
	cams, err := h.registry.List(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list cameras", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load cameras"})
		return
	}

	resp, err := withLatest(h.store, cams, AdminImagePrefix)
	if err != nil {
		h.logger.Error("Failed to list latest images", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load images"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// UpsertCamera handles PUT /api/admin/cameras/:id
func (h *AdminHandler) UpsertCamera(c *gin.Context) {
	id := c.Param("id")

	var update devices.CameraUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	cam, err := h.registry.Upsert(c.Request.Context(), id, update)
	if err != nil {
		var validation *devices.ValidationError
		switch {
		case errors.As(err, &validation):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Validation failed", "problems": validation.Problems})
		case identity.IsInvalidIdentifierError(err):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.logger.Error("Failed to update camera", "error", err, "device_id", id)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update camera"})
		}
		return
	}

	h.logger.Info("Camera updated", "device_id", cam.Identifier, "status", cam.Status.String())
	c.JSON(http.StatusOK, cam)
}

// RemoveCamera handles DELETE /api/admin/cameras/:id
func (h *AdminHandler) RemoveCamera(c *gin.Context) {
	id := c.Param("id")

	removed, err := h.registry.Remove(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("Failed to remove camera", "error", err, "device_id", id)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove camera"})
		return
	}

	if removed {
		h.logger.Info("Camera removed", "device_id", id)
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// Purge handles POST /api/admin/purge
func (h *AdminHandler) Purge(c *gin.Context) {
	removed, err := h.purger.RunOnce()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Purge finished with errors", "removed": removed})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed, "retention_days": h.purger.RetentionDays()})
}
