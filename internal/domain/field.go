package domain

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// MotionField is a dense per-pixel displacement field estimated between two
// frames. U and V share the frame's rows×cols shape.
type MotionField struct {
	U *mat.Dense
	V *mat.Dense
}

// NewMotionField allocates a zero field. rows and cols must be positive.
func NewMotionField(rows, cols int) MotionField {
	return MotionField{
		U: mat.NewDense(rows, cols, nil),
		V: mat.NewDense(rows, cols, nil),
	}
}

// Dims returns the field's rows and cols, or zeros for an unset field.
func (f MotionField) Dims() (rows, cols int) {
	if f.U == nil {
		return 0, 0
	}
	return f.U.Dims()
}

// CheckShape verifies both components are rows×cols.
func (f MotionField) CheckShape(rows, cols int) error {
	if err := CheckShape("motion field u", f.U, rows, cols); err != nil {
		return err
	}
	return CheckShape("motion field v", f.V, rows, cols)
}

// CheckFinite verifies neither component carries NaN or ±Inf.
func (f MotionField) CheckFinite() error {
	if err := CheckFinite(f.U); err != nil {
		return fmt.Errorf("motion field u: %w", err)
	}
	if err := CheckFinite(f.V); err != nil {
		return fmt.Errorf("motion field v: %w", err)
	}
	return nil
}

// FrameMetrics holds the scalar fields derived from one motion field.
type FrameMetrics struct {
	Divergence   *mat.Dense
	Curl         *mat.Dense
	StrainEnergy *mat.Dense
}

// CheckShape verifies all three fields are rows×cols.
func (m FrameMetrics) CheckShape(rows, cols int) error {
	if err := CheckShape("divergence", m.Divergence, rows, cols); err != nil {
		return err
	}
	if err := CheckShape("curl", m.Curl, rows, cols); err != nil {
		return err
	}
	return CheckShape("strain energy", m.StrainEnergy, rows, cols)
}

// AccumulatedFields are the decay-weighted per-frame averages produced when
// accumulation is finalized. They are read-only once returned.
type AccumulatedFields struct {
	Energy          *mat.Dense
	Divergence      *mat.Dense
	Curl            *mat.Dense
	ProcessedFrames int
}

// CheckShape returns an InvalidFieldShapeError when m is not rows×cols.
// A nil matrix is reported as 0x0.
func CheckShape(name string, m *mat.Dense, rows, cols int) error {
	var r, c int
	if m != nil && !m.IsEmpty() {
		r, c = m.Dims()
	}
	if r != rows || c != cols {
		return &InvalidFieldShapeError{
			Field:    name,
			WantRows: rows,
			WantCols: cols,
			GotRows:  r,
			GotCols:  c,
		}
	}
	return nil
}

// CheckFinite returns ErrNonFiniteValue if any element is NaN or ±Inf.
func CheckFinite(m *mat.Dense) error {
	for _, v := range RawValues(m) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrNonFiniteValue
		}
	}
	return nil
}

// RawValues returns the row-major elements of m. Matrices whose stride
// exceeds their width (views) are compacted into a copy first.
func RawValues(m *mat.Dense) []float64 {
	if m == nil || m.IsEmpty() {
		return nil
	}
	raw := m.RawMatrix()
	if raw.Stride == raw.Cols {
		return raw.Data[:raw.Rows*raw.Cols]
	}
	return mat.DenseCopyOf(m).RawMatrix().Data
}
