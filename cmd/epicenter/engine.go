package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/epicenter-detector/internal/adapter/ffmpeg"
	"github.com/couchcryptid/epicenter-detector/internal/adapter/imageseq"
	"github.com/couchcryptid/epicenter-detector/internal/adapter/opencv"
	"github.com/couchcryptid/epicenter-detector/internal/config"
	"github.com/couchcryptid/epicenter-detector/internal/extract"
	"github.com/couchcryptid/epicenter-detector/internal/motion"
	"github.com/couchcryptid/epicenter-detector/internal/observability"
	"github.com/couchcryptid/epicenter-detector/internal/pipeline"
)

// Estimator names accepted by --estimator.
const (
	estimatorAuto        = "auto"
	estimatorFarneback   = "farneback"
	estimatorHornSchunck = "horn-schunck"
)

// backendOptions selects how videos are decoded.
type backendOptions struct {
	backend   string
	ffmpeg    string
	ffprobe   string
	framesFPS float64
}

// settingsFromTuning maps the [detection] section onto analyzer settings.
func settingsFromTuning(t *config.Tuning) (pipeline.Settings, error) {
	d := t.Detection
	scorer, err := extract.ParseScorer(d.Scorer)
	if err != nil {
		return pipeline.Settings{}, err
	}
	conn, err := extract.ParseConnectivity(strconv.Itoa(d.Connectivity))
	if err != nil {
		return pipeline.Settings{}, err
	}

	s := pipeline.DefaultSettings()
	s.Stride = d.Stride
	s.DecayFrames = d.DecayFrames
	s.TopK = d.TopK
	s.Extract.Percentile = d.Percentile
	s.Extract.Sigma = d.Sigma
	s.Extract.Connectivity = conn
	s.Extract.Scorer = scorer
	return s, nil
}

// newEstimator builds the motion estimator. Auto prefers Farneback when the
// binary has OpenCV and falls back to Horn-Schunck.
func newEstimator(name string, t *config.Tuning) (pipeline.MotionEstimator, error) {
	if name == estimatorAuto || name == "" {
		name = estimatorHornSchunck
		if opencv.Available() {
			name = estimatorFarneback
		}
	}

	switch name {
	case estimatorFarneback:
		f := t.Farneback
		return opencv.NewFarneback(opencv.FarnebackParams{
			PyrScale:   f.PyrScale,
			Levels:     f.Levels,
			WinSize:    f.WinSize,
			Iterations: f.Iterations,
			PolyN:      f.PolyN,
			PolySigma:  f.PolySigma,
		})
	case estimatorHornSchunck:
		h := t.HornSchunck
		return motion.NewHornSchunck(h.Alpha, h.Iterations, h.Levels)
	default:
		return nil, fmt.Errorf("unknown estimator %q (want auto, farneback or horn-schunck)", name)
	}
}

// newOpener routes each path to a decoder. Under auto, directories are read
// as frame sequences and files go to OpenCV when compiled in, else ffmpeg.
func newOpener(opts backendOptions) (pipeline.Opener, error) {
	if err := config.ValidateBackend(opts.backend); err != nil {
		return nil, err
	}
	frames := imageseq.NewOpener(opts.framesFPS)
	decoder := ffmpeg.NewDecoder(opts.ffmpeg, opts.ffprobe)
	cv := opencv.NewOpener()

	return pipeline.OpenerFunc(func(ctx context.Context, path string) (pipeline.VideoSource, error) {
		switch opts.backend {
		case config.BackendFrames:
			return frames.Open(ctx, path)
		case config.BackendFFmpeg:
			return decoder.Open(ctx, path)
		case config.BackendOpenCV:
			return cv.Open(ctx, path)
		}
		if imageseq.IsFrameDir(path) {
			return frames.Open(ctx, path)
		}
		if opencv.Available() {
			return cv.Open(ctx, path)
		}
		return decoder.Open(ctx, path)
	}), nil
}

// engine bundles what a run needs to analyze videos.
type engine struct {
	analyzer *pipeline.Analyzer
	opener   pipeline.Opener
	metrics  *observability.Metrics
}

func newEngine(settings pipeline.Settings, tuning *config.Tuning, estimatorName string, backend backendOptions, metrics *observability.Metrics, logger *slog.Logger) (*engine, error) {
	est, err := newEstimator(estimatorName, tuning)
	if err != nil {
		return nil, err
	}
	analyzer, err := pipeline.NewAnalyzer(est, settings, logger, metrics, clockwork.NewRealClock())
	if err != nil {
		return nil, err
	}
	opener, err := newOpener(backend)
	if err != nil {
		return nil, err
	}
	return &engine{analyzer: analyzer, opener: opener, metrics: metrics}, nil
}
