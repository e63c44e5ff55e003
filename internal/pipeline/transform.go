package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/epicenter-detector/internal/domain"
)

// AnalysisTransformer implements Transformer by opening the requested video
// and running the Analyzer on it.
type AnalysisTransformer struct {
	analyzer *Analyzer
	opener   Opener
	logger   *slog.Logger
}

// NewTransformer creates an AnalysisTransformer.
func NewTransformer(analyzer *Analyzer, opener Opener, logger *slog.Logger) *AnalysisTransformer {
	return &AnalysisTransformer{
		analyzer: analyzer,
		opener:   opener,
		logger:   logger,
	}
}

// Transform parses the request and analyzes its video. Analysis failures are
// returned as failed results so the requester always gets an answer; only an
// unparseable request or cancellation yields an error.
func (t *AnalysisTransformer) Transform(ctx context.Context, raw domain.RawEvent) (domain.AnalysisResult, error) {
	req, err := domain.ParseAnalysisRequest(raw)
	if err != nil {
		return domain.AnalysisResult{}, err
	}

	analysis, err := AnalyzeVideo(ctx, t.analyzer, t.opener, req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return domain.AnalysisResult{}, fmt.Errorf("analysis %s interrupted: %w", req.ID, err)
		}
		t.logger.Warn("analysis failed", "request_id", req.ID, "video_path", req.VideoPath, "error", err)
		return domain.NewFailedResult(req, err), nil
	}
	return analysis.Result, nil
}

// FanoutLoader writes every batch to each loader in order and stops at the
// first failure.
type FanoutLoader []BatchLoader

// LoadBatch implements BatchLoader.
func (f FanoutLoader) LoadBatch(ctx context.Context, results []domain.AnalysisResult) error {
	for _, l := range f {
		if err := l.LoadBatch(ctx, results); err != nil {
			return err
		}
	}
	return nil
}
