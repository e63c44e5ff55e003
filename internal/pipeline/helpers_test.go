package pipeline_test

import (
	"context"
	"image"
	"image/color"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/epicenter-detector/internal/domain"
	"github.com/couchcryptid/epicenter-detector/internal/observability"
	"github.com/couchcryptid/epicenter-detector/internal/pipeline"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// taggedFrame is a w×h frame whose pixels all equal tag, so estimators can
// tell which frame they were handed.
func taggedFrame(w, h int, tag uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: tag})
		}
	}
	return img
}

// fakeSource serves a fixed list of frames.
type fakeSource struct {
	props  domain.VideoProperties
	frames []*image.Gray
	next   int
	closed bool
}

func newFakeSource(w, h, n int) *fakeSource {
	frames := make([]*image.Gray, n)
	for i := range frames {
		frames[i] = taggedFrame(w, h, uint8(i))
	}
	return &fakeSource{
		props:  domain.VideoProperties{Width: w, Height: h, FPS: 25, FrameCount: n},
		frames: frames,
	}
}

func (s *fakeSource) Properties() domain.VideoProperties { return s.props }

func (s *fakeSource) Next(_ context.Context) (*image.Gray, error) {
	if s.next >= len(s.frames) {
		return nil, io.EOF
	}
	f := s.frames[s.next]
	s.next++
	return f, nil
}

func (s *fakeSource) Close() error {
	s.closed = true
	return nil
}

// estimatorFunc adapts a function to pipeline.MotionEstimator.
type estimatorFunc func(ctx context.Context, prev, curr *image.Gray) (domain.MotionField, error)

func (f estimatorFunc) Estimate(ctx context.Context, prev, curr *image.Gray) (domain.MotionField, error) {
	return f(ctx, prev, curr)
}

// recordingEstimator returns zero fields and records the tags of each pair.
type recordingEstimator struct {
	mu    sync.Mutex
	pairs [][2]uint8
}

func (r *recordingEstimator) Estimate(_ context.Context, prev, curr *image.Gray) (domain.MotionField, error) {
	r.mu.Lock()
	r.pairs = append(r.pairs, [2]uint8{prev.Pix[0], curr.Pix[0]})
	r.mu.Unlock()
	b := curr.Bounds()
	return domain.NewMotionField(b.Dy(), b.Dx()), nil
}

func (r *recordingEstimator) Name() string { return "recording" }

func newAnalyzer(t *testing.T, est pipeline.MotionEstimator, mutate func(*pipeline.Settings)) (*pipeline.Analyzer, *observability.Metrics) {
	t.Helper()
	settings := pipeline.DefaultSettings()
	if mutate != nil {
		mutate(&settings)
	}
	metrics := observability.NewMetricsForTesting()
	a, err := pipeline.NewAnalyzer(est, settings, discardLogger(), metrics, clockwork.NewFakeClock())
	require.NoError(t, err)
	return a, metrics
}
