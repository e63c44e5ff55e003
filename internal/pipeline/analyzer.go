package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/epicenter-detector/internal/accumulate"
	"github.com/couchcryptid/epicenter-detector/internal/domain"
	"github.com/couchcryptid/epicenter-detector/internal/extract"
	"github.com/couchcryptid/epicenter-detector/internal/flow"
	"github.com/couchcryptid/epicenter-detector/internal/observability"
)

// FrameSource yields the grayscale frames of one video in order. Next returns
// io.EOF once the video is exhausted.
type FrameSource interface {
	Properties() domain.VideoProperties
	Next(ctx context.Context) (*image.Gray, error)
}

// MotionEstimator computes the dense displacement field from prev to curr.
// The field must have the frames' rows×cols shape.
type MotionEstimator interface {
	Estimate(ctx context.Context, prev, curr *image.Gray) (domain.MotionField, error)
}

// progressEvery is the number of processed frames between progress logs.
const progressEvery = 10

// Settings are the analyzer defaults. Request fields override Stride,
// Percentile and TopK when positive.
type Settings struct {
	// Stride processes every Stride-th frame after the first; 1 processes all.
	Stride      int
	DecayFrames float64
	TopK        int
	Extract     extract.Options
}

// DefaultSettings returns the reference analysis settings.
func DefaultSettings() Settings {
	return Settings{
		Stride:      1,
		DecayFrames: accumulate.DefaultDecayFrames,
		TopK:        domain.DefaultTopK,
		Extract:     extract.DefaultOptions(),
	}
}

// Validate reports invalid settings.
func (s Settings) Validate() error {
	var errs []error
	if s.Stride < 1 {
		errs = append(errs, fmt.Errorf("stride must be >= 1, got %d", s.Stride))
	}
	if !(s.DecayFrames > 0) {
		errs = append(errs, fmt.Errorf("decay frames must be > 0, got %g", s.DecayFrames))
	}
	if s.TopK < 1 {
		errs = append(errs, fmt.Errorf("top-k must be >= 1, got %d", s.TopK))
	}
	if err := s.Extract.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Analysis is the outcome of one successful run.
type Analysis struct {
	Result    domain.AnalysisResult
	Fields    domain.AccumulatedFields
	Detection extract.Detection
}

// Analyzer runs the frame loop for one video at a time. An Analyzer may serve
// concurrent Analyze calls; each call owns its own accumulation state.
type Analyzer struct {
	estimator MotionEstimator
	settings  Settings
	extractor *extract.Extractor
	logger    *slog.Logger
	metrics   *observability.Metrics
	clock     clockwork.Clock
}

// NewAnalyzer creates an Analyzer. A nil clock uses real time.
func NewAnalyzer(estimator MotionEstimator, settings Settings, logger *slog.Logger, metrics *observability.Metrics, clock clockwork.Clock) (*Analyzer, error) {
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("analyzer settings: %w", err)
	}
	extractor, err := extract.New(settings.Extract)
	if err != nil {
		return nil, err
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Analyzer{
		estimator: estimator,
		settings:  settings,
		extractor: extractor,
		logger:    logger,
		metrics:   metrics,
		clock:     clock,
	}, nil
}

// Settings returns the analyzer defaults.
func (a *Analyzer) Settings() Settings { return a.settings }

// Analyze consumes src and returns the ranked epicenter candidates.
//
// The first frame seeds the loop. Every later frame at index i is processed
// only when i is a multiple of the stride; its motion field is estimated
// against the previously processed frame. Cancellation is checked between
// frames and discards all partial state.
func (a *Analyzer) Analyze(ctx context.Context, req domain.AnalysisRequest, src FrameSource) (Analysis, error) {
	a.metrics.ActiveAnalyses.Inc()
	defer a.metrics.ActiveAnalyses.Dec()

	analysis, err := a.analyze(ctx, req, src)
	if err != nil {
		a.metrics.Analyses.WithLabelValues(domain.StatusFailed).Inc()
		return Analysis{}, err
	}
	a.metrics.Analyses.WithLabelValues(domain.StatusCompleted).Inc()
	a.metrics.AnalysisDuration.Observe(analysis.Result.DurationSeconds)
	a.metrics.CandidatesPerRun.Observe(float64(analysis.Result.CandidateCount))
	return analysis, nil
}

func (a *Analyzer) analyze(ctx context.Context, req domain.AnalysisRequest, src FrameSource) (Analysis, error) {
	start := a.clock.Now()
	stride, topK, extractor, err := a.resolve(req)
	if err != nil {
		return Analysis{}, err
	}

	props := src.Properties()
	rows, cols := props.Height, props.Width
	logger := a.logger.With("video_path", req.VideoPath, "request_id", req.ID)
	logger.Debug("analysis started",
		"width", cols, "height", rows, "fps", props.FPS, "frame_count", props.FrameCount, "stride", stride)

	prev, err := src.Next(ctx)
	if errors.Is(err, io.EOF) {
		return Analysis{}, domain.ErrEmptyVideo
	}
	if err != nil {
		return Analysis{}, fmt.Errorf("read frame 0: %w", err)
	}
	if err := checkFrame(prev, rows, cols); err != nil {
		return Analysis{}, err
	}

	state := accumulate.New(rows, cols, accumulate.WithDecayFrames(a.settings.DecayFrames))
	estimator := estimatorName(a.estimator)
	frames := 1
	for index := 1; ; index++ {
		if err := ctx.Err(); err != nil {
			return Analysis{}, err
		}
		curr, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Analysis{}, fmt.Errorf("read frame %d: %w", index, err)
		}
		frames++

		if index%stride != 0 {
			a.metrics.FramesSkipped.Inc()
			continue
		}
		if err := checkFrame(curr, rows, cols); err != nil {
			return Analysis{}, fmt.Errorf("frame %d: %w", index, err)
		}

		field, err := a.estimator.Estimate(ctx, prev, curr)
		if err != nil {
			return Analysis{}, fmt.Errorf("estimate motion at frame %d: %w", index, err)
		}
		a.metrics.MotionEstimations.WithLabelValues(estimator).Inc()
		if err := field.CheckShape(rows, cols); err != nil {
			return Analysis{}, fmt.Errorf("frame %d: %w", index, err)
		}
		metrics, err := flow.Compute(field)
		if err != nil {
			return Analysis{}, fmt.Errorf("frame %d: %w", index, err)
		}
		if err := state.Accumulate(metrics); err != nil {
			return Analysis{}, fmt.Errorf("frame %d: %w", index, err)
		}
		a.metrics.FramesProcessed.Inc()

		prev = curr
		if n := state.ProcessedFrames(); n%progressEvery == 0 {
			logger.Debug("analysis progress", "processed_frames", n, "frame_index", index)
		}
	}

	if frames < 2 {
		return Analysis{}, domain.ErrEmptyVideo
	}
	fields, err := state.Finalize()
	if err != nil {
		return Analysis{}, err
	}
	detection, err := extractor.DetectDetailed(fields.Energy, fields.Divergence)
	if err != nil {
		return Analysis{}, fmt.Errorf("detect epicenters: %w", err)
	}

	if props.FrameCount <= 0 {
		props.FrameCount = frames
	}
	props.ProcessedFrames = fields.ProcessedFrames
	result := domain.NewResult(req, props, detection.Candidates, topK, a.clock.Since(start), a.clock.Now())

	logger.Info("analysis complete",
		"processed_frames", fields.ProcessedFrames,
		"candidates", len(detection.Candidates),
		"threshold", detection.Threshold,
		"duration", a.clock.Since(start),
	)
	return Analysis{Result: result, Fields: fields, Detection: detection}, nil
}

// resolve applies request overrides to the analyzer defaults.
func (a *Analyzer) resolve(req domain.AnalysisRequest) (int, int, *extract.Extractor, error) {
	if err := domain.ValidateRequest(req); err != nil {
		return 0, 0, nil, err
	}
	stride, topK := a.settings.Stride, a.settings.TopK
	if req.Stride > 0 {
		stride = req.Stride
	}
	if req.TopK > 0 {
		topK = req.TopK
	}
	extractor := a.extractor
	if req.Percentile > 0 && req.Percentile != a.settings.Extract.Percentile {
		opts := a.settings.Extract
		opts.Percentile = req.Percentile
		e, err := extract.New(opts)
		if err != nil {
			return 0, 0, nil, err
		}
		extractor = e
	}
	return stride, topK, extractor, nil
}

func checkFrame(img *image.Gray, rows, cols int) error {
	var r, c int
	if img != nil {
		b := img.Bounds()
		r, c = b.Dy(), b.Dx()
	}
	if r != rows || c != cols {
		return &domain.InvalidFieldShapeError{Field: "frame", WantRows: rows, WantCols: cols, GotRows: r, GotCols: c}
	}
	return nil
}

func estimatorName(e MotionEstimator) string {
	if named, ok := e.(interface{ Name() string }); ok {
		return named.Name()
	}
	return fmt.Sprintf("%T", e)
}
