// Package flow derives scalar fields from a dense motion field by treating it
// as a 2-D fluid velocity field.
//
// Partial derivatives use unit spacing: central differences in the interior
// and one-sided first differences on the boundary samples of each axis. An
// axis with a single sample has zero derivative, so 1×1 and 1×N fields are
// valid input.
//
// Divergence, Curl and StrainEnergy panic if U and V differ in shape, as gonum
// does for dimension mismatches. Compute validates the field and returns an
// error instead.
package flow

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/couchcryptid/epicenter-detector/internal/domain"
)

// partials holds the four first derivatives of a motion field. Unneeded
// entries stay nil.
type partials struct {
	rows, cols int
	dudx       []float64
	dudy       []float64
	dvdx       []float64
	dvdy       []float64
}

type want uint8

const (
	wantDUDX want = 1 << iota
	wantDUDY
	wantDVDX
	wantDVDY
	wantAll = wantDUDX | wantDUDY | wantDVDX | wantDVDY
)

func derive(f domain.MotionField, w want) partials {
	rows, cols := f.Dims()
	if err := f.CheckShape(rows, cols); err != nil {
		panic(err)
	}
	u, v := domain.RawValues(f.U), domain.RawValues(f.V)
	p := partials{rows: rows, cols: cols}
	n := rows * cols
	if w&wantDUDX != 0 {
		p.dudx = make([]float64, n)
		gradientX(p.dudx, u, rows, cols)
	}
	if w&wantDUDY != 0 {
		p.dudy = make([]float64, n)
		gradientY(p.dudy, u, rows, cols)
	}
	if w&wantDVDX != 0 {
		p.dvdx = make([]float64, n)
		gradientX(p.dvdx, v, rows, cols)
	}
	if w&wantDVDY != 0 {
		p.dvdy = make([]float64, n)
		gradientY(p.dvdy, v, rows, cols)
	}
	return p
}

// Divergence returns ∂u/∂x + ∂v/∂y.
func Divergence(f domain.MotionField) *mat.Dense {
	p := derive(f, wantDUDX|wantDVDY)
	return p.divergence()
}

// Curl returns ∂v/∂x − ∂u/∂y in image coordinates. Positive values are
// counter-clockwise on screen.
func Curl(f domain.MotionField) *mat.Dense {
	p := derive(f, wantDUDY|wantDVDX)
	return p.curl()
}

// StrainEnergy returns the Frobenius norm of the strain-rate tensor,
// sqrt(exx² + eyy² + 2·exy²) with exy = ½(∂u/∂y + ∂v/∂x). It is non-negative
// for any finite input.
func StrainEnergy(f domain.MotionField) *mat.Dense {
	p := derive(f, wantAll)
	return p.strainEnergy()
}

// Compute derives divergence, curl and strain energy from one set of partial
// derivatives. It rejects fields whose components differ in shape or that
// contain non-finite values.
func Compute(f domain.MotionField) (domain.FrameMetrics, error) {
	rows, cols := f.Dims()
	if rows == 0 || cols == 0 {
		return domain.FrameMetrics{}, &domain.InvalidFieldShapeError{Field: "motion field u"}
	}
	if err := f.CheckShape(rows, cols); err != nil {
		return domain.FrameMetrics{}, err
	}
	if err := f.CheckFinite(); err != nil {
		return domain.FrameMetrics{}, fmt.Errorf("compute frame metrics: %w", err)
	}

	p := derive(f, wantAll)
	return domain.FrameMetrics{
		Divergence:   p.divergence(),
		Curl:         p.curl(),
		StrainEnergy: p.strainEnergy(),
	}, nil
}

func (p partials) divergence() *mat.Dense {
	out := make([]float64, len(p.dudx))
	floats.AddTo(out, p.dudx, p.dvdy)
	return mat.NewDense(p.rows, p.cols, out)
}

func (p partials) curl() *mat.Dense {
	out := make([]float64, len(p.dvdx))
	floats.SubTo(out, p.dvdx, p.dudy)
	return mat.NewDense(p.rows, p.cols, out)
}

func (p partials) strainEnergy() *mat.Dense {
	out := make([]float64, len(p.dudx))
	for i := range out {
		exx := p.dudx[i]
		eyy := p.dvdy[i]
		exy := 0.5 * (p.dudy[i] + p.dvdx[i])
		out[i] = math.Sqrt(exx*exx + eyy*eyy + 2*exy*exy)
	}
	return mat.NewDense(p.rows, p.cols, out)
}
