package images

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"

	lru "github.com/hashicorp/golang-lru"
	"github.com/webcampics/webcampics/server/core/ccc/logging"
	"golang.org/x/image/draw"
)

const (
	// ThumbnailQuality is the JPEG quality of generated thumbnails.
	ThumbnailQuality = 80

	DefaultThumbnailWidth  = 400
	DefaultThumbnailHeight = 300
)

// ThumbnailGenerator produces the bounded-size preview of a stored frame.
type ThumbnailGenerator interface {
	// Thumbnail returns the JPEG thumbnail for the frame at framePath,
	// creating <stem>_thumb.jpg next to it when it does not exist yet.
	Thumbnail(framePath string) ([]byte, error)
}

type jpegThumbnailGenerator struct {
	logger    logging.Logger
	maxWidth  int
	maxHeight int
	cache     *lru.Cache
}

// NewThumbnailGenerator keeps up to cacheSize thumbnails in memory.
func NewThumbnailGenerator(logger logging.Logger, maxWidth, maxHeight, cacheSize int) (ThumbnailGenerator, error) {
	if logger == nil {
		logger = logging.NopLogger
	}
	if maxWidth <= 0 {
		maxWidth = DefaultThumbnailWidth
	}
	if maxHeight <= 0 {
		maxHeight = DefaultThumbnailHeight
	}
	if cacheSize <= 0 {
		cacheSize = 1
	}

	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create thumbnail cache: %w", err)
	}

	return &jpegThumbnailGenerator{
		logger:    logger,
		maxWidth:  maxWidth,
		maxHeight: maxHeight,
		cache:     cache,
	}, nil
}

// calculateThumbnailDimensions fits width x height into the bounding box, keeping the aspect ratio.
// Images already inside the box keep their size.
func (g *jpegThumbnailGenerator) calculateThumbnailDimensions(width, height int) (int, int) {
	if width <= g.maxWidth && height <= g.maxHeight {
		return width, height
	}

	aspectRatio := float64(width) / float64(height)

	var thumbWidth, thumbHeight int
	if float64(g.maxWidth)/aspectRatio <= float64(g.maxHeight) {
		thumbWidth = g.maxWidth
		thumbHeight = int(math.Round(float64(g.maxWidth) / aspectRatio))
	} else {
		thumbHeight = g.maxHeight
		thumbWidth = int(math.Round(float64(g.maxHeight) * aspectRatio))
	}

	if thumbWidth < 1 {
		thumbWidth = 1
	}
	if thumbHeight < 1 {
		thumbHeight = 1
	}
	return thumbWidth, thumbHeight
}

func (g *jpegThumbnailGenerator) Thumbnail(framePath string) ([]byte, error) {
	info, err := os.Stat(framePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, NewImageNotFoundError(filepath.Base(filepath.Dir(framePath)), filepath.Base(framePath))
		}
		return nil, err
	}

	thumbPath := filepath.Join(filepath.Dir(framePath), ThumbnailName(filepath.Base(framePath)))
	cacheKey := thumbPath + "@" + strconv.FormatInt(info.ModTime().UnixNano(), 10)

	if cached, ok := g.cache.Get(cacheKey); ok {
		if _, err := os.Stat(thumbPath); err == nil {
			return cached.([]byte), nil
		}
		g.cache.Remove(cacheKey)
	}

	if data, err := os.ReadFile(thumbPath); err == nil {
		g.cache.Add(cacheKey, data)
		return data, nil
	}

	data, err := g.generate(framePath)
	if err != nil {
		return nil, err
	}
	if err := writeFileAtomic(thumbPath, data); err != nil {
		g.logger.Warn("Failed to store thumbnail", "error", err, "path", thumbPath)
	}
	g.cache.Add(cacheKey, data)
	return data, nil
}

func (g *jpegThumbnailGenerator) generate(framePath string) ([]byte, error) {
	raw, err := os.ReadFile(framePath)
	if err != nil {
		return nil, err
	}
	src, err := jpeg.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}

	b := src.Bounds()
	width, height := g.calculateThumbnailDimensions(b.Dx(), b.Dy())
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: ThumbnailQuality}); err != nil {
		return nil, &EncodeError{Err: err}
	}

	g.logger.Debug("Generated thumbnail", "path", framePath, "width", width, "height", height, "bytes", buf.Len())
	return buf.Bytes(), nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*"+tempSuffix)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	_, err = tmp.Write(data)
	if err == nil {
		err = tmp.Chmod(fileMode)
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmpName, path)
	}
	if err != nil {
		os.Remove(tmpName)
	}
	return err
}
