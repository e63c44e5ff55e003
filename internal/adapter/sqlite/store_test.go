package sqlite

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/epicenter-detector/internal/domain"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "results.db")
	s, err := Open(context.Background(), path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func sampleResult(id string, at time.Time) domain.AnalysisResult {
	return domain.AnalysisResult{
		ID:        id,
		VideoPath: "/videos/" + id + ".mp4",
		Status:    domain.StatusCompleted,
		VideoProperties: domain.VideoProperties{
			Width: 320, Height: 240, FPS: 10, FrameCount: 20, ProcessedFrames: 19,
		},
		Epicenters:      []domain.EpicenterCandidate{{X: 160, Y: 120, Score: 2.5}, {X: 10, Y: 12, Score: 0.25}},
		CandidateCount:  2,
		DurationSeconds: 1.5,
		AnalyzedAt:      at,
	}
}

func TestStore_SaveAndGet(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	want := sampleResult("req-1", time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC))

	require.NoError(t, s.Save(ctx, want))

	got, err := s.Get(ctx, "req-1")
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("stored result mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_GetUnknown(t *testing.T) {
	s, _ := openTestStore(t)
	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrResultNotFound)
}

func TestStore_SaveOverwrites(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	require.NoError(t, s.Save(ctx, sampleResult("req-1", at)))
	failed := domain.AnalysisResult{ID: "req-1", VideoPath: "/videos/req-1.mp4", Status: domain.StatusFailed,
		Error: "video has fewer than two frames", Epicenters: []domain.EpicenterCandidate{}, AnalyzedAt: at.Add(time.Minute)}
	require.NoError(t, s.Save(ctx, failed))

	got, err := s.Get(ctx, "req-1")
	require.NoError(t, err)
	assert.True(t, got.Failed())
	assert.Empty(t, got.Epicenters)

	all, err := s.List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestStore_ListNewestFirst(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	require.NoError(t, s.LoadBatch(ctx, []domain.AnalysisResult{
		sampleResult("old", base),
		sampleResult("newest", base.Add(2*time.Second)),
		sampleResult("middle", base.Add(500*time.Millisecond)),
	}))

	got, err := s.List(ctx, 10)
	require.NoError(t, err)
	ids := make([]string, len(got))
	for i, r := range got {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"newest", "middle", "old"}, ids)

	got, err = s.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = s.List(ctx, 0)
	assert.Error(t, err)
}

func TestStore_EmptyList(t *testing.T) {
	s, _ := openTestStore(t)
	got, err := s.List(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, got)
	require.NoError(t, s.LoadBatch(context.Background(), nil))
}

func TestStore_RejectsMissingID(t *testing.T) {
	s, _ := openTestStore(t)
	err := s.LoadBatch(context.Background(), []domain.AnalysisResult{
		sampleResult("ok", time.Now()),
		{VideoPath: "/x.mp4"},
	})
	require.Error(t, err)

	// The whole batch is rolled back.
	_, err = s.Get(context.Background(), "ok")
	assert.ErrorIs(t, err, domain.ErrResultNotFound)
}

func TestStore_ReopenKeepsDataAndSchema(t *testing.T) {
	s, path := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, sampleResult("req-9", time.Now().UTC())))

	version, dirty, err := s.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
	require.NoError(t, s.Close())

	reopened, err := Open(ctx, path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer reopened.Close()
	require.NoError(t, reopened.Ping(ctx))

	got, err := reopened.Get(ctx, "req-9")
	require.NoError(t, err)
	assert.Equal(t, "/videos/req-9.mp4", got.VideoPath)
}
