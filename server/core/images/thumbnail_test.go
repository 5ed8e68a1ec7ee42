package images

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestThumbnails(t *testing.T) *jpegThumbnailGenerator {
	gen, err := NewThumbnailGenerator(nil, 0, 0, 8)
	require.NoError(t, err)
	return gen.(*jpegThumbnailGenerator)
}

func TestThumbnail_Dimensions(t *testing.T) {
	gen := setupTestThumbnails(t)

	cases := []struct{ w, h, tw, th int }{
		{1600, 1200, 400, 300},
		{1920, 1080, 400, 225},
		{600, 1200, 150, 300},
		{320, 240, 320, 240},
	}
	for _, tc := range cases {
		w, h := gen.calculateThumbnailDimensions(tc.w, tc.h)
		assert.Equal(t, tc.tw, w, "%dx%d", tc.w, tc.h)
		assert.Equal(t, tc.th, h, "%dx%d", tc.w, tc.h)
	}
}

func TestThumbnail_GeneratesOnceAndCaches(t *testing.T) {
	gen := setupTestThumbnails(t)
	dir := t.TempDir()
	frame := filepath.Join(dir, "2024-01-02_03-04-05.jpg")
	require.NoError(t, os.WriteFile(frame, testJPEG(t, 800, 600, gray), 0644))

	data, err := gen.Thumbnail(frame)
	require.NoError(t, err)
	img := decode(t, data)
	assert.Equal(t, 400, img.Bounds().Dx())
	assert.Equal(t, 300, img.Bounds().Dy())

	thumbPath := filepath.Join(dir, "2024-01-02_03-04-05_thumb.jpg")
	onDisk, err := os.ReadFile(thumbPath)
	require.NoError(t, err)
	assert.Equal(t, data, onDisk)

	// an existing thumbnail is reused rather than regenerated
	require.NoError(t, os.WriteFile(thumbPath, []byte("cached"), 0644))
	gen.cache.Purge()
	again, err := gen.Thumbnail(frame)
	require.NoError(t, err)
	assert.Equal(t, "cached", string(again))
}

func TestThumbnail_RegeneratedWhenRemoved(t *testing.T) {
	gen := setupTestThumbnails(t)
	dir := t.TempDir()
	frame := filepath.Join(dir, "2024-01-02_03-04-05.jpg")
	require.NoError(t, os.WriteFile(frame, testJPEG(t, 800, 600, gray), 0644))

	_, err := gen.Thumbnail(frame)
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(dir, "2024-01-02_03-04-05_thumb.jpg")))

	_, err = gen.Thumbnail(frame)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "2024-01-02_03-04-05_thumb.jpg"))
}

func TestThumbnail_MissingFrame(t *testing.T) {
	gen := setupTestThumbnails(t)

	_, err := gen.Thumbnail(filepath.Join(t.TempDir(), "porch", "nope.jpg"))
	assert.True(t, IsImageNotFoundError(err))
}

func TestThumbnail_NotListedAsFrame(t *testing.T) {
	store, root := setupTestStore(t)
	gen := setupTestThumbnails(t)

	staged, err := store.StageRaw("porch", []byte("raw"), "2024-05-01_10-00-00")
	require.NoError(t, err)
	path, err := store.Promote(staged, testJPEG(t, 640, 480, gray))
	require.NoError(t, err)

	_, err = gen.Thumbnail(path)
	require.NoError(t, err)

	latest, err := store.Latest("porch")
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01_10-00-00.jpg", latest.Filename)

	resolved, err := store.Resolve("porch", ThumbnailName(latest.Filename))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "porch", "2024-05-01_10-00-00_thumb.jpg"), resolved)
}
