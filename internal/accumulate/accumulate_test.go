package accumulate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/couchcryptid/epicenter-detector/internal/domain"
)

func constMetrics(rows, cols int, div, curl, energy float64) domain.FrameMetrics {
	fill := func(v float64) *mat.Dense {
		m := mat.NewDense(rows, cols, nil)
		for y := 0; y < rows; y++ {
			for x := 0; x < cols; x++ {
				m.Set(y, x, v)
			}
		}
		return m
	}
	return domain.FrameMetrics{Divergence: fill(div), Curl: fill(curl), StrainEnergy: fill(energy)}
}

func TestFinalize_EmptyStateIsInsufficient(t *testing.T) {
	s := New(3, 3)
	_, err := s.Finalize()
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
}

func TestFinalize_ScaleInvariantWithoutDecay(t *testing.T) {
	frame := constMetrics(4, 5, 1.5, -0.5, 2)

	for _, n := range []int{1, 2, 7, 30} {
		s := New(4, 5, WithDecayFrames(math.Inf(1)))
		for i := 0; i < n; i++ {
			require.NoError(t, s.Accumulate(frame))
		}
		fields, err := s.Finalize()
		require.NoError(t, err)

		assert.Equal(t, n, fields.ProcessedFrames)
		assert.InDelta(t, 2.0, fields.Energy.At(2, 3), 1e-12, "n=%d", n)
		assert.InDelta(t, 1.5, fields.Divergence.At(0, 0), 1e-12, "n=%d", n)
		assert.InDelta(t, -0.5, fields.Curl.At(3, 4), 1e-12, "n=%d", n)
	}
}

func TestAccumulate_LaterFramesWeighLess(t *testing.T) {
	frame := constMetrics(2, 2, 1, 1, 1)
	s := New(2, 2)

	var contributions []float64
	prev := 0.0
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Accumulate(frame))
		fields, err := s.Finalize()
		require.NoError(t, err)
		total := fields.Energy.At(0, 0) * float64(fields.ProcessedFrames)
		contributions = append(contributions, total-prev)
		prev = total
	}

	assert.InDelta(t, 1.0, contributions[0], 1e-12)
	for i := 1; i < len(contributions); i++ {
		assert.Less(t, contributions[i], contributions[i-1])
		assert.InDelta(t, math.Exp(-float64(i)/DefaultDecayFrames), contributions[i], 1e-12)
	}
}

func TestWeight(t *testing.T) {
	assert.Equal(t, 1.0, Weight(0, DefaultDecayFrames))
	assert.InDelta(t, math.Exp(-1), Weight(10, 10), 1e-15)
	assert.Equal(t, 1.0, Weight(1000, math.Inf(1)))

	s := New(1, 1, WithDecayFrames(4))
	assert.Equal(t, 4.0, s.DecayFrames())
	require.NoError(t, s.Accumulate(constMetrics(1, 1, 0, 0, 0)))
	assert.InDelta(t, math.Exp(-0.25), s.NextWeight(), 1e-15)
}

func TestWithDecayFrames_IgnoresInvalid(t *testing.T) {
	for _, tau := range []float64{0, -3, math.NaN()} {
		assert.Equal(t, DefaultDecayFrames, New(1, 1, WithDecayFrames(tau)).DecayFrames())
	}
}

func TestAccumulate_RejectsShapeMismatch(t *testing.T) {
	s := New(3, 4)
	err := s.Accumulate(constMetrics(4, 3, 1, 1, 1))

	var shapeErr *domain.InvalidFieldShapeError
	require.ErrorAs(t, err, &shapeErr)
	assert.Equal(t, 3, shapeErr.WantRows)
	assert.Zero(t, s.ProcessedFrames())

	err = s.Accumulate(domain.FrameMetrics{})
	assert.ErrorAs(t, err, &shapeErr)
}

func TestFinalize_Idempotent(t *testing.T) {
	s := New(3, 3)
	require.NoError(t, s.Accumulate(constMetrics(3, 3, 2, 1, 4)))
	require.NoError(t, s.Accumulate(constMetrics(3, 3, -1, 0, 1)))

	first, err := s.Finalize()
	require.NoError(t, err)
	first.Energy.Set(0, 0, 999)

	second, err := s.Finalize()
	require.NoError(t, err)
	third, err := s.Finalize()
	require.NoError(t, err)

	assert.NotEqual(t, 999.0, second.Energy.At(0, 0))
	assert.True(t, mat.Equal(second.Energy, third.Energy))
	assert.True(t, mat.Equal(second.Divergence, third.Divergence))
	assert.Equal(t, 2, s.ProcessedFrames())
}

func TestStepAndFoldMatchAccumulate(t *testing.T) {
	frames := []domain.FrameMetrics{
		constMetrics(2, 3, 1, 2, 3),
		constMetrics(2, 3, -4, 0.5, 1),
		constMetrics(2, 3, 0.25, -1, 7),
	}

	direct := New(2, 3)
	for _, f := range frames {
		require.NoError(t, direct.Accumulate(f))
	}
	want, err := direct.Finalize()
	require.NoError(t, err)

	state := New(2, 3)
	for _, f := range frames {
		next, err := Step(state, f)
		require.NoError(t, err)
		assert.Equal(t, state.ProcessedFrames()+1, next.ProcessedFrames())
		state = next
	}
	stepped, err := state.Finalize()
	require.NoError(t, err)

	folded, err := Fold(2, 3, frames)
	require.NoError(t, err)

	for _, got := range []domain.AccumulatedFields{stepped, folded} {
		assert.True(t, mat.Equal(want.Energy, got.Energy))
		assert.True(t, mat.Equal(want.Divergence, got.Divergence))
		assert.True(t, mat.Equal(want.Curl, got.Curl))
	}
}

func TestStep_LeavesInputUntouched(t *testing.T) {
	s := New(1, 1)
	_, err := Step(s, constMetrics(1, 1, 1, 1, 1))
	require.NoError(t, err)
	assert.Zero(t, s.ProcessedFrames())
}

func TestFold_ReportsFrameIndex(t *testing.T) {
	_, err := Fold(2, 2, []domain.FrameMetrics{constMetrics(2, 2, 0, 0, 0), constMetrics(3, 3, 0, 0, 0)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frame 1")

	_, err = Fold(2, 2, nil)
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
}

func TestAccumulateAt_UsesKnownIndex(t *testing.T) {
	frame := constMetrics(1, 1, 0, 0, 1)
	s := New(1, 1)
	require.NoError(t, s.AccumulateAt(3, frame))
	fields, err := s.Finalize()
	require.NoError(t, err)
	assert.InDelta(t, Weight(3, DefaultDecayFrames), fields.Energy.At(0, 0), 1e-15)

	assert.Error(t, s.AccumulateAt(-1, frame))
}
