package imageseq

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/epicenter-detector/internal/synth"
)

func TestOpen_ReadsSyntheticClip(t *testing.T) {
	scene := synth.DefaultScene()
	scene.Frames = 4
	dir := t.TempDir()
	_, err := synth.WriteFrames(dir, scene)
	require.NoError(t, err)
	// Files that are not frames are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.png"), 0o755))

	src, err := Open(context.Background(), dir, 12)
	require.NoError(t, err)
	props := src.Properties()
	assert.Equal(t, 320, props.Width)
	assert.Equal(t, 240, props.Height)
	assert.Equal(t, 4, props.FrameCount)
	assert.InDelta(t, 12, props.FPS, 0)

	for i := 0; i < 4; i++ {
		img, err := src.Next(context.Background())
		require.NoError(t, err)
		assert.Equal(t, scene.Frame(i).Pix, img.Pix, "frame %d", i)
	}
	_, err = src.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
	assert.NoError(t, src.Close())
}

func TestOpen_EmptyDirectory(t *testing.T) {
	src, err := Open(context.Background(), t.TempDir(), 30)
	require.NoError(t, err)
	assert.Zero(t, src.Properties().FrameCount)
	_, err = src.Next(context.Background())
	assert.True(t, errors.Is(err, io.EOF))
}

func TestOpen_MissingDirectory(t *testing.T) {
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "nope"), 30)
	assert.Error(t, err)
}

func TestOpen_CorruptFirstFrame(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "frame_0000.png"), []byte("garbage"), 0o644))
	_, err := Open(context.Background(), dir, 30)
	assert.ErrorContains(t, err, "unsupported image format")
}

func TestOpener_ColorJPEG(t *testing.T) {
	dir := t.TempDir()
	rgba := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			rgba.Set(x, y, color.RGBA{R: 200, G: 200, B: 200, A: 255})
		}
	}
	f, err := os.Create(filepath.Join(dir, "a.JPG"))
	require.NoError(t, err)
	require.NoError(t, jpeg.Encode(f, rgba, &jpeg.Options{Quality: 100}))
	require.NoError(t, f.Close())

	src, err := NewOpener(25).Open(context.Background(), dir)
	require.NoError(t, err)
	img, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 200, float64(img.GrayAt(4, 4).Y), 3)
}

func TestToGray(t *testing.T) {
	rgba := image.NewRGBA(image.Rect(2, 3, 4, 5))
	rgba.Set(2, 3, color.RGBA{R: 255, A: 255})
	rgba.Set(3, 4, color.RGBA{G: 255, A: 255})

	g := ToGray(rgba)
	assert.Equal(t, image.Rect(0, 0, 2, 2), g.Bounds())
	assert.InDelta(t, 76, float64(g.GrayAt(0, 0).Y), 1)
	assert.InDelta(t, 150, float64(g.GrayAt(1, 1).Y), 1)

	gray := image.NewGray(image.Rect(0, 0, 2, 2))
	assert.Same(t, gray, ToGray(gray))
}

func TestIsFrameDir(t *testing.T) {
	dir := t.TempDir()
	assert.True(t, IsFrameDir(dir))
	file := filepath.Join(dir, "clip.mp4")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	assert.False(t, IsFrameDir(file))
}
