package images

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"

	"github.com/webcampics/webcampics/server/core/ccc/logging"
	"github.com/webcampics/webcampics/server/core/devices"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const (
	// FrameQuality is the JPEG quality of stored frames.
	FrameQuality = 90

	overlayLeft   = 10
	overlayTop    = 20
	overlayGap    = 10
	timestampStep = 2
	fontDPI       = 72
)

// outlineOffsets are the eight neighbours text is stamped at to draw a 1px outline.
var outlineOffsets = [8][2]int{
	{-1, -1}, {0, -1}, {1, -1},
	{-1, 0}, {1, 0},
	{-1, 1}, {0, 1}, {1, 1},
}

// Transformer applies a camera's rotation and text overlay to an uploaded frame.
type Transformer struct {
	logger logging.Logger
	font   *opentype.Font
}

func NewTransformer(logger logging.Logger) (*Transformer, error) {
	if logger == nil {
		logger = logging.NopLogger
	}

	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to load overlay font: %w", err)
	}
	return &Transformer{logger: logger, font: f}, nil
}

// Process decodes raw, rotates it by cfg.Rotation degrees clockwise, draws the
// title and the capture time (from the frame's filename stem) in the top left
// corner and re-encodes the result.
func (t *Transformer) Process(raw []byte, cfg *devices.CameraConfig, stem string) ([]byte, error) {
	src, err := jpeg.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}

	frame := rotateClockwise(toRGBA(src), cfg.Rotation)

	if cfg.AddTitle || cfg.AddTimestamp {
		if err := t.drawOverlay(frame, cfg, stem); err != nil {
			return nil, &EncodeError{Err: err}
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: FrameQuality}); err != nil {
		return nil, &EncodeError{Err: err}
	}

	t.logger.Debug("Processed frame",
		"width", frame.Rect.Dx(), "height", frame.Rect.Dy(), "rotation", int(cfg.Rotation), "bytes", buf.Len())
	return buf.Bytes(), nil
}

func (t *Transformer) drawOverlay(dst *image.RGBA, cfg *devices.CameraConfig, stem string) error {
	size := cfg.FontSize
	if size < 1 {
		size = devices.DefaultFontSize
	}

	baseline := overlayTop + size
	if cfg.AddTitle {
		if cfg.Title != "" {
			if err := t.drawText(dst, cfg.Title, baseline, size, cfg.FontColor, cfg.FontOutline); err != nil {
				return err
			}
		}
		baseline += size + overlayGap
	}

	if cfg.AddTimestamp {
		stampSize := size - timestampStep
		if stampSize < 1 {
			stampSize = 1
		}
		if err := t.drawText(dst, OverlayText(stem), baseline, stampSize, cfg.FontColor, cfg.FontOutline); err != nil {
			return err
		}
	}
	return nil
}

func (t *Transformer) drawText(dst *image.RGBA, text string, baseline, size int, col color.Color, outline bool) error {
	face, err := opentype.NewFace(t.font, &opentype.FaceOptions{
		Size:    float64(size),
		DPI:     fontDPI,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return fmt.Errorf("failed to create font face: %w", err)
	}
	defer face.Close()

	drawer := &font.Drawer{Dst: dst, Face: face}

	if outline {
		drawer.Src = image.NewUniform(color.Black)
		for _, off := range outlineOffsets {
			drawer.Dot = fixed.P(overlayLeft+off[0], baseline+off[1])
			drawer.DrawString(text)
		}
	}

	drawer.Src = image.NewUniform(col)
	drawer.Dot = fixed.P(overlayLeft, baseline)
	drawer.DrawString(text)
	return nil
}

func toRGBA(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

// rotateClockwise turns src by deg degrees clockwise. Width and height swap for 90 and 270.
func rotateClockwise(src *image.RGBA, deg devices.Rotation) *image.RGBA {
	w, h := src.Rect.Dx(), src.Rect.Dy()

	var dst *image.RGBA
	switch deg {
	case 90, 270:
		dst = image.NewRGBA(image.Rect(0, 0, h, w))
	case 180:
		dst = image.NewRGBA(image.Rect(0, 0, w, h))
	default:
		return src
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var dx, dy int
			switch deg {
			case 90:
				dx, dy = h-1-y, x
			case 180:
				dx, dy = w-1-x, h-1-y
			case 270:
				dx, dy = y, w-1-x
			}
			si := src.PixOffset(x, y)
			di := dst.PixOffset(dx, dy)
			copy(dst.Pix[di:di+4], src.Pix[si:si+4])
		}
	}
	return dst
}
