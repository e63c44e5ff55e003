// Package accumulate folds per-frame metrics into decay-weighted running sums.
//
// Frame n (zero-based, counted over processed frames only) contributes with
// weight exp(−n/τ), so earlier frames dominate. The order of contributions is
// therefore significant: a State must be fed frames strictly in temporal order
// and must not be shared between analyses.
package accumulate

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/couchcryptid/epicenter-detector/internal/domain"
)

// DefaultDecayFrames is the decay constant τ, in processed frames.
const DefaultDecayFrames = 10.0

// Option configures a State.
type Option func(*State)

// WithDecayFrames sets the decay constant τ. math.Inf(1) disables decay so
// every frame has weight 1. Non-positive or NaN values are ignored.
func WithDecayFrames(tau float64) Option {
	return func(s *State) {
		if tau > 0 {
			s.tau = tau
		}
	}
}

// State holds the running energy, divergence and curl sums for one analysis.
type State struct {
	rows, cols int
	tau        float64

	energy     []float64
	divergence []float64
	curl       []float64

	processed int
}

// New returns an all-zero State for rows×cols fields.
func New(rows, cols int, opts ...Option) *State {
	n := rows * cols
	s := &State{
		rows:       rows,
		cols:       cols,
		tau:        DefaultDecayFrames,
		energy:     make([]float64, n),
		divergence: make([]float64, n),
		curl:       make([]float64, n),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProcessedFrames returns how many frames have been accumulated.
func (s *State) ProcessedFrames() int { return s.processed }

// DecayFrames returns τ.
func (s *State) DecayFrames() float64 { return s.tau }

// Dims returns the field shape the state accepts.
func (s *State) Dims() (rows, cols int) { return s.rows, s.cols }

// Weight returns the weight given to the frame at zero-based processed index
// index under decay constant tau.
func Weight(index int, tau float64) float64 {
	if math.IsInf(tau, 1) {
		return 1
	}
	return math.Exp(-float64(index) / tau)
}

// NextWeight returns the weight the next accumulated frame will receive.
func (s *State) NextWeight() float64 {
	return Weight(s.processed, s.tau)
}

// Accumulate adds one frame's metrics with the next weight in sequence.
// Metrics whose shape differs from the state are rejected and leave the state
// untouched.
func (s *State) Accumulate(m domain.FrameMetrics) error {
	return s.AccumulateAt(s.processed, m)
}

// AccumulateAt adds one frame's metrics weighted as the frame at index, then
// counts it. Callers that compute metrics out of order may use it to apply
// the weight of a frame's known position; the sums are still built in
// whatever order the calls arrive, so results match Accumulate only up to
// floating-point reassociation.
func (s *State) AccumulateAt(index int, m domain.FrameMetrics) error {
	if index < 0 {
		return fmt.Errorf("accumulate: negative frame index %d", index)
	}
	if err := m.CheckShape(s.rows, s.cols); err != nil {
		return fmt.Errorf("accumulate: %w", err)
	}

	w := Weight(index, s.tau)
	floats.AddScaled(s.energy, w, domain.RawValues(m.StrainEnergy))
	floats.AddScaled(s.divergence, w, domain.RawValues(m.Divergence))
	floats.AddScaled(s.curl, w, domain.RawValues(m.Curl))
	s.processed++
	return nil
}

// Finalize returns the sums divided by the number of processed frames. It does
// not mutate the state, so repeated calls return equal fields. A state with no
// frames yields ErrInsufficientData.
func (s *State) Finalize() (domain.AccumulatedFields, error) {
	if s.processed == 0 {
		return domain.AccumulatedFields{}, domain.ErrInsufficientData
	}
	scale := 1 / float64(s.processed)
	return domain.AccumulatedFields{
		Energy:          s.average(s.energy, scale),
		Divergence:      s.average(s.divergence, scale),
		Curl:            s.average(s.curl, scale),
		ProcessedFrames: s.processed,
	}, nil
}

func (s *State) average(sum []float64, scale float64) *mat.Dense {
	out := make([]float64, len(sum))
	copy(out, sum)
	floats.Scale(scale, out)
	return mat.NewDense(s.rows, s.cols, out)
}

// Clone returns an independent copy of the state.
func (s *State) Clone() *State {
	c := *s
	c.energy = append([]float64(nil), s.energy...)
	c.divergence = append([]float64(nil), s.divergence...)
	c.curl = append([]float64(nil), s.curl...)
	return &c
}

// Step is the functional form of Accumulate: it returns a new state with m
// folded in and leaves s unchanged.
func Step(s *State, m domain.FrameMetrics) (*State, error) {
	next := s.Clone()
	if err := next.Accumulate(m); err != nil {
		return nil, err
	}
	return next, nil
}

// Fold accumulates an ordered sequence of metrics into a fresh state and
// finalizes it.
func Fold(rows, cols int, frames []domain.FrameMetrics, opts ...Option) (domain.AccumulatedFields, error) {
	s := New(rows, cols, opts...)
	for i, m := range frames {
		if err := s.Accumulate(m); err != nil {
			return domain.AccumulatedFields{}, fmt.Errorf("frame %d: %w", i, err)
		}
	}
	return s.Finalize()
}
