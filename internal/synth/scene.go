// Package synth renders the expanding-circle test clip and provides a motion
// estimator that recovers its expansion analytically.
package synth

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/couchcryptid/epicenter-detector/internal/domain"
)

// Scene describes a circle outline centered at (CenterX, CenterY) whose radius
// grows by Growth pixels per frame.
type Scene struct {
	Width, Height    int
	Frames           int
	FPS              float64
	CenterX, CenterY int
	BaseRadius       int
	Growth           int
	Thickness        int
}

// DefaultScene is a 320×240, 20-frame clip at 10 fps with a circle centered
// at (160, 120) of radius 10+5i and thickness 2.
func DefaultScene() Scene {
	return Scene{
		Width:      320,
		Height:     240,
		Frames:     20,
		FPS:        10,
		CenterX:    160,
		CenterY:    120,
		BaseRadius: 10,
		Growth:     5,
		Thickness:  2,
	}
}

// Radius returns the circle radius in frame i.
func (s Scene) Radius(i int) int {
	return s.BaseRadius + s.Growth*i
}

// Properties returns the clip's video properties.
func (s Scene) Properties() domain.VideoProperties {
	return domain.VideoProperties{Width: s.Width, Height: s.Height, FPS: s.FPS, FrameCount: s.Frames}
}

// Frame renders frame i: a white outline on black.
func (s Scene) Frame(i int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, s.Width, s.Height))
	r := float64(s.Radius(i))
	half := float64(s.Thickness) / 2
	for y := 0; y < s.Height; y++ {
		for x := 0; x < s.Width; x++ {
			d := math.Hypot(float64(x-s.CenterX), float64(y-s.CenterY))
			if math.Abs(d-r) <= half {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return img
}

// Source returns a frame source over the clip.
func (s Scene) Source() *Source {
	return &Source{scene: s}
}

// Source yields a Scene's frames in order.
type Source struct {
	scene Scene
	next  int
}

// Properties implements the frame source contract.
func (src *Source) Properties() domain.VideoProperties {
	return src.scene.Properties()
}

// Next renders the next frame or returns io.EOF.
func (src *Source) Next(ctx context.Context) (*image.Gray, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if src.next >= src.scene.Frames {
		return nil, io.EOF
	}
	img := src.scene.Frame(src.next)
	src.next++
	return img, nil
}

// Close is a no-op.
func (src *Source) Close() error { return nil }

// WriteFrames renders every frame as frame_NNNN.png under dir and returns the
// written paths.
func WriteFrames(dir string, s Scene) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create frame dir: %w", err)
	}
	paths := make([]string, 0, s.Frames)
	for i := 0; i < s.Frames; i++ {
		path := filepath.Join(dir, fmt.Sprintf("frame_%04d.png", i))
		if err := writePNG(path, s.Frame(i)); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}
