package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ParseAnalysisRequest deserializes a RawEvent's value into an AnalysisRequest.
// Requests without an ID get a deterministic one derived from the message key
// and the request fields, so a redelivered message maps to the same result.
func ParseAnalysisRequest(raw RawEvent) (AnalysisRequest, error) {
	var req AnalysisRequest
	if err := json.Unmarshal(raw.Value, &req); err != nil {
		return AnalysisRequest{}, fmt.Errorf("parse analysis request: %w", err)
	}

	req.VideoPath = strings.TrimSpace(req.VideoPath)
	req.ID = strings.TrimSpace(req.ID)
	if err := ValidateRequest(req); err != nil {
		return AnalysisRequest{}, fmt.Errorf("parse analysis request: %w", err)
	}
	if req.ID == "" {
		req.ID = generateID(string(raw.Key), req)
	}
	return req, nil
}

// ValidateRequest rejects requests the analyzer cannot run.
func ValidateRequest(req AnalysisRequest) error {
	if req.VideoPath == "" {
		return errors.New("video_path is required")
	}
	if req.Stride < 0 {
		return fmt.Errorf("stride must be >= 0, got %d", req.Stride)
	}
	if req.Percentile < 0 || req.Percentile > 100 {
		return fmt.Errorf("percentile must be within [0, 100], got %g", req.Percentile)
	}
	if req.TopK < 0 {
		return fmt.Errorf("top_k must be >= 0, got %d", req.TopK)
	}
	return nil
}

// generateID produces a deterministic ID from the message key and request fields.
func generateID(key string, req AnalysisRequest) string {
	input := fmt.Sprintf("%s|%s|%d|%g|%d", key, req.VideoPath, req.Stride, req.Percentile, req.TopK)
	hash := sha256.Sum256([]byte(input))
	return "req-" + hex.EncodeToString(hash[:8])
}

// NewResultID returns the request's ID, or a random UUID for ad-hoc runs.
func NewResultID(req AnalysisRequest) string {
	if req.ID != "" {
		return req.ID
	}
	return uuid.NewString()
}

// NewResult builds a completed result record stamped with analyzedAt. topK
// limits the stored candidates; the full count is kept in CandidateCount.
func NewResult(req AnalysisRequest, props VideoProperties, candidates []EpicenterCandidate, topK int, elapsed time.Duration, analyzedAt time.Time) AnalysisResult {
	total := len(candidates)
	if topK > 0 && len(candidates) > topK {
		candidates = candidates[:topK]
	}
	kept := make([]EpicenterCandidate, len(candidates))
	copy(kept, candidates)

	return AnalysisResult{
		ID:              NewResultID(req),
		VideoPath:       req.VideoPath,
		Status:          StatusCompleted,
		VideoProperties: props,
		Epicenters:      kept,
		CandidateCount:  total,
		DurationSeconds: elapsed.Seconds(),
		AnalyzedAt:      analyzedAt.UTC(),
	}
}

// NewFailedResult records an analysis that could not complete. No candidates
// from a failed run are ever reported.
func NewFailedResult(req AnalysisRequest, err error) AnalysisResult {
	return AnalysisResult{
		ID:         NewResultID(req),
		VideoPath:  req.VideoPath,
		Status:     StatusFailed,
		Error:      err.Error(),
		Epicenters: []EpicenterCandidate{},
		AnalyzedAt: clock.Now().UTC(),
	}
}

// SerializedResult is the wire form of a result destined for the result topic.
type SerializedResult struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// SerializeResult marshals a result and derives its routing headers.
func SerializeResult(result AnalysisResult) (SerializedResult, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return SerializedResult{}, fmt.Errorf("serialize analysis result: %w", err)
	}
	return SerializedResult{
		Key:   []byte(result.ID),
		Value: data,
		Headers: map[string]string{
			"status":      result.Status,
			"analyzed_at": result.AnalyzedAt.Format(time.RFC3339),
		},
	}, nil
}
