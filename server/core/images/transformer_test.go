package images

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webcampics/webcampics/server/core/devices"
)

var gray = color.RGBA{R: 128, G: 128, B: 128, A: 255}

func setupTestTransformer(t *testing.T) *Transformer {
	tr, err := NewTransformer(nil)
	require.NoError(t, err)
	return tr
}

func plainConfig() *devices.CameraConfig {
	cfg := devices.NewDefaultCameraConfig("porch")
	cfg.AddTitle = false
	cfg.AddTimestamp = false
	return cfg
}

func decode(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func lumaAt(img image.Image, x, y int) int {
	r, g, b, _ := img.At(x, y).RGBA()
	return int((r>>8)+(g>>8)+(b>>8)) / 3
}

// deviatingPixels counts pixels in rect whose brightness is far from the gray background.
func deviatingPixels(img image.Image, rect image.Rectangle) int {
	n := 0
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			if d := lumaAt(img, x, y) - 128; d > 60 || d < -60 {
				n++
			}
		}
	}
	return n
}

func TestTransformer_RejectsNonJPEG(t *testing.T) {
	tr := setupTestTransformer(t)

	_, err := tr.Process([]byte("definitely not a jpeg"), plainConfig(), "2024-01-02_03-04-05")
	assert.True(t, IsDecodeError(err))
}

func TestTransformer_KeepsSizeWithoutRotation(t *testing.T) {
	tr := setupTestTransformer(t)

	out, err := tr.Process(testJPEG(t, 320, 240, gray), plainConfig(), "2024-01-02_03-04-05")
	require.NoError(t, err)

	img := decode(t, out)
	assert.Equal(t, image.Rect(0, 0, 320, 240), img.Bounds())
	assert.Zero(t, deviatingPixels(img, image.Rect(0, 0, 120, 60)))
}

func TestTransformer_RotationSwapsDimensions(t *testing.T) {
	tr := setupTestTransformer(t)

	for _, tc := range []struct {
		rotation devices.Rotation
		w, h     int
	}{{0, 320, 240}, {90, 240, 320}, {180, 320, 240}, {270, 240, 320}} {
		cfg := plainConfig()
		cfg.Rotation = tc.rotation
		out, err := tr.Process(testJPEG(t, 320, 240, gray), cfg, "2024-01-02_03-04-05")
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, tc.w, tc.h), decode(t, out).Bounds(), "rotation %d", tc.rotation)
	}
}

func TestTransformer_RotatedTitleOverlay(t *testing.T) {
	tr := setupTestTransformer(t)

	cfg := plainConfig()
	cfg.Rotation = 90
	cfg.AddTitle = true
	cfg.Title = "Front door"

	out, err := tr.Process(testJPEG(t, 320, 240, gray), cfg, "2024-01-02_03-04-05")
	require.NoError(t, err)

	img := decode(t, out)
	assert.Equal(t, image.Rect(0, 0, 240, 320), img.Bounds())

	// title baseline sits at 20+16 px, starting 10 px from the left edge
	assert.Greater(t, deviatingPixels(img, image.Rect(8, 18, 120, 40)), 20)
	// nothing is drawn further down the frame
	assert.Zero(t, deviatingPixels(img, image.Rect(0, 80, 240, 320)))
}

func TestTransformer_TimestampBelowTitle(t *testing.T) {
	tr := setupTestTransformer(t)

	cfg := plainConfig()
	cfg.AddTitle = true
	cfg.AddTimestamp = true
	cfg.Title = "Porch"

	out, err := tr.Process(testJPEG(t, 320, 240, gray), cfg, "2024-01-02_03-04-05")
	require.NoError(t, err)
	img := decode(t, out)

	// the timestamp baseline is 16+10 px below the title baseline
	assert.Greater(t, deviatingPixels(img, image.Rect(8, 48, 200, 64)), 20)
}

func TestTransformer_OutlineDrawsBlack(t *testing.T) {
	tr := setupTestTransformer(t)

	cfg := plainConfig()
	cfg.AddTitle = true
	cfg.Title = "WWWW"
	cfg.FontColor = devices.White

	countDark := func(outline bool) int {
		cfg.FontOutline = outline
		out, err := tr.Process(testJPEG(t, 320, 240, gray), cfg, "2024-01-02_03-04-05")
		require.NoError(t, err)
		img := decode(t, out)
		n := 0
		for y := 15; y < 42; y++ {
			for x := 5; x < 100; x++ {
				if lumaAt(img, x, y) < 50 {
					n++
				}
			}
		}
		return n
	}

	assert.Zero(t, countDark(false))
	assert.Greater(t, countDark(true), 10)
}

func TestRotateClockwise(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 3, 2))
	mark := color.RGBA{R: 255, A: 255}
	src.Set(0, 0, mark)

	// the top-left pixel ends up top-right after a quarter turn clockwise
	r90 := rotateClockwise(src, 90)
	assert.Equal(t, image.Rect(0, 0, 2, 3), r90.Rect)
	assert.Equal(t, mark, r90.RGBAAt(1, 0))

	r180 := rotateClockwise(src, 180)
	assert.Equal(t, mark, r180.RGBAAt(2, 1))

	r270 := rotateClockwise(src, 270)
	assert.Equal(t, image.Rect(0, 0, 2, 3), r270.Rect)
	assert.Equal(t, mark, r270.RGBAAt(0, 2))

	assert.Same(t, src, rotateClockwise(src, 0))
}
