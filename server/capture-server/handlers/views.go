package handlers

import (
	"net/url"
	"time"

	"github.com/webcampics/webcampics/server/core/devices"
	"github.com/webcampics/webcampics/server/core/images"
)

// ImageResponse is a stored frame as returned by the read API
type ImageResponse struct {
	URL       string    `json:"url"`
	ThumbURL  string    `json:"thumb_url"`
	Filename  string    `json:"filename"`
	Timestamp string    `json:"timestamp"`
	Size      int64     `json:"size"`
	Modified  time.Time `json:"modified"`
}

// CameraResponse is a camera together with its newest frame, if any
type CameraResponse struct {
	*devices.CameraConfig
	Latest *ImageResponse `json:"latest,omitempty"`
}

// LocationResponse groups the cameras shown at one location
type LocationResponse struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Cameras     []*CameraResponse `json:"cameras"`
}

func newImageResponse(prefix string, img *images.StoredImage) *ImageResponse {
	if img == nil {
		return nil
	}
	base := prefix + "/" + url.PathEscape(img.Dir) + "/" + url.PathEscape(img.Filename)
	return &ImageResponse{
		URL:       base,
		ThumbURL:  base + "/thumb",
		Filename:  img.Filename,
		Timestamp: img.Timestamp,
		Size:      img.Size,
		Modified:  img.ModTime,
	}
}
