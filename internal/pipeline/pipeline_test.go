package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/epicenter-detector/internal/domain"
	"github.com/couchcryptid/epicenter-detector/internal/observability"
	"github.com/couchcryptid/epicenter-detector/internal/pipeline"
)

// --- mocks ---

type mockExtractor struct {
	batches [][]domain.RawEvent
	index   atomic.Int64
}

func (m *mockExtractor) ExtractBatch(ctx context.Context, _ int) ([]domain.RawEvent, error) {
	i := int(m.index.Add(1) - 1)
	if i >= len(m.batches) {
		// block until context cancelled to simulate waiting for messages
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return m.batches[i], nil
}

type mockTransformer struct {
	err error
}

func (m *mockTransformer) Transform(_ context.Context, raw domain.RawEvent) (domain.AnalysisResult, error) {
	if m.err != nil {
		return domain.AnalysisResult{}, m.err
	}
	req, err := domain.ParseAnalysisRequest(raw)
	if err != nil {
		return domain.AnalysisResult{}, err
	}
	return domain.AnalysisResult{ID: req.ID, VideoPath: req.VideoPath, Status: domain.StatusCompleted}, nil
}

type mockLoader struct {
	mu     sync.Mutex
	loaded []domain.AnalysisResult
	fails  int
	calls  int
}

func (m *mockLoader) LoadBatch(_ context.Context, results []domain.AnalysisResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.fails > 0 {
		m.fails--
		return errors.New("broker unavailable")
	}
	m.loaded = append(m.loaded, results...)
	return nil
}

func (m *mockLoader) snapshot() []domain.AnalysisResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.AnalysisResult(nil), m.loaded...)
}

type commitLog struct {
	mu      sync.Mutex
	offsets []int64
}

func (c *commitLog) hook(offset int64) func(context.Context) error {
	return func(context.Context) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.offsets = append(c.offsets, offset)
		return nil
	}
}

func (c *commitLog) committed() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int64(nil), c.offsets...)
}

func newTestMetrics() *observability.Metrics {
	// Use a fresh registry to avoid "already registered" panics in tests.
	return observability.NewMetricsForTesting()
}

// --- tests ---

func TestPipeline_Run_HappyPath(t *testing.T) {
	commits := &commitLog{}
	batch := []domain.RawEvent{
		makeRequest(t, "req-1", "/videos/a.mp4", 1, commits),
		makeRequest(t, "req-2", "/videos/b.mp4", 2, commits),
	}

	ext := &mockExtractor{batches: [][]domain.RawEvent{batch}}
	ldr := &mockLoader{}
	metrics := newTestMetrics()
	p := pipeline.New(ext, &mockTransformer{}, ldr, discardLogger(), metrics, 10)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))

	got := ldr.snapshot()
	require.Len(t, got, 2)
	assert.Equal(t, "req-1", got[0].ID)
	assert.Equal(t, "/videos/b.mp4", got[1].VideoPath)
	assert.True(t, p.Ready())
	require.NoError(t, p.CheckReadiness(context.Background()))
	if diff := cmp.Diff([]int64{1, 2}, commits.committed()); diff != "" {
		t.Fatalf("committed offsets mismatch (-want +got):\n%s", diff)
	}
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.RequestsConsumed), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.ResultsProduced), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.PipelineRunning), 0)
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	ext := &mockExtractor{} // no batches; blocks
	ldr := &mockLoader{}
	p := pipeline.New(ext, &mockTransformer{}, ldr, discardLogger(), newTestMetrics(), 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, p.Run(ctx))
	assert.Empty(t, ldr.snapshot())
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_InvalidRequestCommittedAndSkipped(t *testing.T) {
	commits := &commitLog{}
	bad := domain.RawEvent{Value: []byte("not json"), Offset: 7, Commit: commits.hook(7)}
	good := makeRequest(t, "req-ok", "/videos/ok.mp4", 8, commits)

	ext := &mockExtractor{batches: [][]domain.RawEvent{{bad, good}}}
	ldr := &mockLoader{}
	metrics := newTestMetrics()
	p := pipeline.New(ext, &mockTransformer{}, ldr, discardLogger(), metrics, 10)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	require.NoError(t, p.Run(ctx))

	got := ldr.snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, "req-ok", got[0].ID)
	assert.Equal(t, []int64{7, 8}, commits.committed())
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.RequestErrors), 0)
}

func TestPipeline_Run_TransformErrorNeverReady(t *testing.T) {
	commits := &commitLog{}
	ext := &mockExtractor{batches: [][]domain.RawEvent{{makeRequest(t, "req-x", "/v.mp4", 3, commits)}}}
	ldr := &mockLoader{}
	p := pipeline.New(ext, &mockTransformer{err: errors.New("bad data")}, ldr, discardLogger(), newTestMetrics(), 10)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	require.NoError(t, p.Run(ctx))

	assert.Empty(t, ldr.snapshot())
	assert.False(t, p.Ready())
	assert.Equal(t, []int64{3}, commits.committed())
}

func TestPipeline_Run_LoadFailureDoesNotCommit(t *testing.T) {
	commits := &commitLog{}
	first := []domain.RawEvent{makeRequest(t, "req-1", "/a.mp4", 1, commits)}
	second := []domain.RawEvent{makeRequest(t, "req-1", "/a.mp4", 1, commits)}

	ext := &mockExtractor{batches: [][]domain.RawEvent{first, second}}
	ldr := &mockLoader{fails: 1}
	p := pipeline.New(ext, &mockTransformer{}, ldr, discardLogger(), newTestMetrics(), 10)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.Run(ctx))

	assert.Equal(t, 2, ldr.calls)
	assert.Len(t, ldr.snapshot(), 1)
	// Only the redelivered copy is committed.
	assert.Equal(t, []int64{1}, commits.committed())
}

func TestPipeline_Run_ShutdownMidBatchCommitsNothing(t *testing.T) {
	commits := &commitLog{}
	batch := []domain.RawEvent{
		makeRequest(t, "req-1", "/a.mp4", 1, commits),
		makeRequest(t, "req-2", "/b.mp4", 2, commits),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tfm := transformerFunc(func(context.Context, domain.RawEvent) (domain.AnalysisResult, error) {
		cancel()
		return domain.AnalysisResult{}, context.Canceled
	})
	ldr := &mockLoader{}
	p := pipeline.New(&mockExtractor{batches: [][]domain.RawEvent{batch}}, tfm, ldr, discardLogger(), newTestMetrics(), 10)

	require.NoError(t, p.Run(ctx))
	assert.Zero(t, ldr.calls)
	assert.Empty(t, commits.committed())
}

type transformerFunc func(ctx context.Context, raw domain.RawEvent) (domain.AnalysisResult, error)

func (f transformerFunc) Transform(ctx context.Context, raw domain.RawEvent) (domain.AnalysisResult, error) {
	return f(ctx, raw)
}

// --- helpers ---

func makeRequest(t *testing.T, id, path string, offset int64, commits *commitLog) domain.RawEvent {
	t.Helper()
	data, err := json.Marshal(domain.AnalysisRequest{ID: id, VideoPath: path})
	require.NoError(t, err)
	raw := domain.RawEvent{
		Key:    []byte(id),
		Value:  data,
		Topic:  "epicenter-analysis-requests",
		Offset: offset,
	}
	if commits != nil {
		raw.Commit = commits.hook(offset)
	}
	return raw
}
