// Package imageseq reads a directory of still images as a video, one image
// per frame in lexical file name order.
package imageseq

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	_ "golang.org/x/image/bmp"  // register decoder
	_ "golang.org/x/image/tiff" // register decoder
	_ "golang.org/x/image/webp" // register decoder

	"github.com/couchcryptid/epicenter-detector/internal/domain"
	"github.com/couchcryptid/epicenter-detector/internal/pipeline"
)

// extensions lists the frame file types that are picked up.
var extensions = []string{".png", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff", ".webp"}

// Opener opens frame directories. It implements pipeline.Opener.
type Opener struct {
	fps float64
}

// NewOpener creates an Opener reporting fps as the frame rate.
func NewOpener(fps float64) *Opener {
	return &Opener{fps: fps}
}

// Open lists the frames under dir.
func (o *Opener) Open(ctx context.Context, dir string) (pipeline.VideoSource, error) {
	return Open(ctx, dir, o.fps)
}

// IsFrameDir reports whether path is a directory.
func IsFrameDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// Open lists the frames under dir and reads the frame size from the first
// one. An empty directory opens as a zero-frame video.
func Open(_ context.Context, dir string, fps float64) (*Source, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frame dir: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !slices.Contains(extensions, strings.ToLower(filepath.Ext(e.Name()))) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	slices.Sort(paths)

	props := domain.VideoProperties{FPS: fps, FrameCount: len(paths)}
	if len(paths) > 0 {
		cfg, err := decodeConfig(paths[0])
		if err != nil {
			return nil, err
		}
		props.Width, props.Height = cfg.Width, cfg.Height
	}
	return &Source{paths: paths, props: props}, nil
}

// Source yields the frames of one directory.
type Source struct {
	paths []string
	props domain.VideoProperties
	next  int
}

// Properties implements pipeline.FrameSource.
func (s *Source) Properties() domain.VideoProperties { return s.props }

// Next decodes the next frame as grayscale or returns io.EOF.
func (s *Source) Next(ctx context.Context) (*image.Gray, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.next >= len(s.paths) {
		return nil, io.EOF
	}
	path := s.paths[s.next]
	s.next++
	img, err := decode(path)
	if err != nil {
		return nil, err
	}
	return ToGray(img), nil
}

// Close is a no-op; frames are opened one at a time.
func (s *Source) Close() error { return nil }

// ToGray converts img to 8-bit grayscale with ITU-R 601 luma weights. The
// result always starts at the origin.
func ToGray(img image.Image) *image.Gray {
	b := img.Bounds()
	if g, ok := img.(*image.Gray); ok && b.Min == (image.Point{}) {
		return g
	}
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

func decode(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open frame: %w", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return img, nil
}

func decodeConfig(path string) (image.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return image.Config{}, fmt.Errorf("open frame: %w", err)
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return image.Config{}, fmt.Errorf("%s: unsupported image format", filepath.Base(path))
		}
		return image.Config{}, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return cfg, nil
}
