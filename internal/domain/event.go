package domain

import (
	"context"
	"time"
)

// Result status values.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// DefaultTopK is the number of candidates kept in a result record.
const DefaultTopK = 5

// RawEvent represents an unprocessed message from the request topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// AnalysisRequest asks for one video to be analyzed. Zero-valued tuning
// fields fall back to the analyzer defaults.
type AnalysisRequest struct {
	ID         string  `json:"id,omitempty"`
	VideoPath  string  `json:"video_path"`
	Stride     int     `json:"stride,omitempty"`
	Percentile float64 `json:"percentile,omitempty"`
	TopK       int     `json:"top_k,omitempty"`
}

// VideoProperties describes the analyzed video.
type VideoProperties struct {
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	FPS             float64 `json:"fps"`
	FrameCount      int     `json:"frame_count"`
	ProcessedFrames int     `json:"processed_frames"`
}

// EpicenterCandidate is a scored pixel location.
type EpicenterCandidate struct {
	X     int     `json:"x"`
	Y     int     `json:"y"`
	Score float64 `json:"score"`
}

// AnalysisResult is the record produced for every analysis request.
type AnalysisResult struct {
	ID              string               `json:"id"`
	VideoPath       string               `json:"video_path"`
	Status          string               `json:"status"`
	Error           string               `json:"error,omitempty"`
	VideoProperties VideoProperties      `json:"video_properties"`
	Epicenters      []EpicenterCandidate `json:"epicenters"`
	CandidateCount  int                  `json:"candidate_count"`
	DurationSeconds float64              `json:"duration_seconds"`
	AnalyzedAt      time.Time            `json:"analyzed_at"`
}

// Failed reports whether the result records an analysis error.
func (r AnalysisResult) Failed() bool {
	return r.Status == StatusFailed
}
