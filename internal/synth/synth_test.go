package synth

import (
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/epicenter-detector/internal/flow"
)

func TestDefaultScene(t *testing.T) {
	s := DefaultScene()
	assert.Equal(t, 10, s.Radius(0))
	assert.Equal(t, 105, s.Radius(19))

	props := s.Properties()
	assert.Equal(t, 320, props.Width)
	assert.Equal(t, 240, props.Height)
	assert.Equal(t, 20, props.FrameCount)
	assert.Equal(t, 10.0, props.FPS)
}

func TestFrame_DrawsCenteredOutline(t *testing.T) {
	s := DefaultScene()
	img := s.Frame(2)

	assert.Equal(t, uint8(255), img.GrayAt(160+20, 120).Y)
	assert.Equal(t, uint8(255), img.GrayAt(160, 120-20).Y)
	assert.Equal(t, uint8(0), img.GrayAt(160, 120).Y)
	assert.Equal(t, uint8(0), img.GrayAt(160+25, 120).Y)

	cx, cy, n := centroid(img)
	require.Positive(t, n)
	assert.InDelta(t, 160, cx, 1e-9)
	assert.InDelta(t, 120, cy, 1e-9)
}

func TestSource_YieldsAllFrames(t *testing.T) {
	src := DefaultScene().Source()
	ctx := context.Background()

	count := 0
	for {
		_, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		count++
	}
	assert.Equal(t, 20, count)
	assert.NoError(t, src.Close())
}

func TestSource_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := DefaultScene().Source().Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExpansionEstimator_RecoversExpansion(t *testing.T) {
	s := DefaultScene()
	field, err := ExpansionEstimator{}.Estimate(context.Background(), s.Frame(0), s.Frame(1))
	require.NoError(t, err)
	require.NoError(t, field.CheckShape(240, 320))

	// Outward on both axes, zero at the center.
	assert.Positive(t, field.U.At(120, 170))
	assert.Negative(t, field.U.At(120, 150))
	assert.Positive(t, field.V.At(130, 160))
	assert.InDelta(t, 0, field.U.At(120, 160), 1e-9)

	div := flow.Divergence(field)
	assert.Positive(t, div.At(120, 160))
	assert.InDelta(t, 0, flow.Curl(field).At(120, 160), 1e-9)
}

func TestExpansionEstimator_BlankFrames(t *testing.T) {
	blank := image.NewGray(image.Rect(0, 0, 8, 6))
	field, err := ExpansionEstimator{}.Estimate(context.Background(), blank, blank)
	require.NoError(t, err)
	rows, cols := field.Dims()
	assert.Equal(t, 6, rows)
	assert.Equal(t, 8, cols)
	assert.Zero(t, field.U.At(3, 3))
}

func TestExpansionEstimator_SizeMismatch(t *testing.T) {
	_, err := ExpansionEstimator{}.Estimate(context.Background(),
		image.NewGray(image.Rect(0, 0, 4, 4)), image.NewGray(image.Rect(0, 0, 5, 4)))
	assert.Error(t, err)
}

func TestWriteFrames(t *testing.T) {
	s := DefaultScene()
	s.Frames = 3
	dir := filepath.Join(t.TempDir(), "clip")

	paths, err := WriteFrames(dir, s)
	require.NoError(t, err)
	require.Len(t, paths, 3)
	assert.Equal(t, "frame_0002.png", filepath.Base(paths[2]))

	f, err := os.Open(paths[1])
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 320, 240), img.Bounds())
}
