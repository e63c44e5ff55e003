package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/epicenter-detector/internal/domain"
)

// VideoSource is a FrameSource backed by an open video that must be closed.
type VideoSource interface {
	FrameSource
	Close() error
}

// Opener opens a video for analysis.
type Opener interface {
	Open(ctx context.Context, path string) (VideoSource, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, path string) (VideoSource, error)

// Open calls f.
func (f OpenerFunc) Open(ctx context.Context, path string) (VideoSource, error) {
	return f(ctx, path)
}

// AnalyzeVideo opens req.VideoPath and analyzes it, closing the video
// afterwards. A decoder failure reported by Close is attached to a failed
// analysis, where it usually explains the failure.
func AnalyzeVideo(ctx context.Context, analyzer *Analyzer, opener Opener, req domain.AnalysisRequest) (Analysis, error) {
	src, err := opener.Open(ctx, req.VideoPath)
	if err != nil {
		return Analysis{}, fmt.Errorf("open video: %w", err)
	}

	analysis, err := analyzer.Analyze(ctx, req, src)
	if closeErr := src.Close(); closeErr != nil && err != nil {
		err = errors.Join(err, closeErr)
	}
	return analysis, err
}

// BatchAnalyze analyzes each request independently with at most workers runs
// in flight and returns one result per request, in request order. A failing
// video produces a failed result and does not stop the batch.
func BatchAnalyze(ctx context.Context, analyzer *Analyzer, opener Opener, reqs []domain.AnalysisRequest, workers int, logger *slog.Logger) []domain.AnalysisResult {
	results := make([]domain.AnalysisResult, len(reqs))
	if workers < 1 {
		workers = 1
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for i, req := range reqs {
		g.Go(func() error {
			analysis, err := AnalyzeVideo(ctx, analyzer, opener, req)
			if err != nil {
				logger.Warn("batch analysis failed", "video_path", req.VideoPath, "error", err)
				results[i] = domain.NewFailedResult(req, err)
				return nil
			}
			results[i] = analysis.Result
			return nil
		})
	}
	// The group only bounds concurrency: failures become failed results, so
	// no goroutine returns an error.
	g.Wait() //nolint:errcheck

	return results
}
