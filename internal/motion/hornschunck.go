// Package motion implements a dense optical flow estimator in pure Go.
//
// HornSchunck solves the Horn–Schunck variational problem on an image
// pyramid: the flow found at a coarse level is upsampled, the current frame
// is warped back by it, and the next level only solves for the residual
// motion. This keeps displacements of several pixels within reach of the
// linearized brightness constancy constraint.
package motion

import (
	"context"
	"errors"
	"fmt"
	"image"

	"gonum.org/v1/gonum/floats"

	"github.com/couchcryptid/epicenter-detector/internal/domain"
)

// minPyramidSide stops the pyramid before a level gets too small to carry
// gradients.
const minPyramidSide = 8

// cancelCheckEvery is the number of relaxation sweeps between context checks.
const cancelCheckEvery = 16

// HornSchunck estimates dense flow with a coarse-to-fine Horn–Schunck solver.
type HornSchunck struct {
	alpha      float64
	iterations int
	levels     int
}

// NewHornSchunck creates an estimator. alpha weighs flow smoothness against
// brightness constancy in intensity units, iterations is the number of
// relaxation sweeps per level and levels caps the pyramid depth.
func NewHornSchunck(alpha float64, iterations, levels int) (*HornSchunck, error) {
	var errs []error
	if !(alpha > 0) {
		errs = append(errs, fmt.Errorf("alpha must be > 0, got %g", alpha))
	}
	if iterations < 1 {
		errs = append(errs, fmt.Errorf("iterations must be >= 1, got %d", iterations))
	}
	if levels < 1 {
		errs = append(errs, fmt.Errorf("levels must be >= 1, got %d", levels))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("horn-schunck: %w", err)
	}
	return &HornSchunck{alpha: alpha, iterations: iterations, levels: levels}, nil
}

// Name identifies the estimator in metrics.
func (h *HornSchunck) Name() string { return "horn-schunck" }

// Estimate returns the displacement field carrying prev onto curr.
func (h *HornSchunck) Estimate(ctx context.Context, prev, curr *image.Gray) (domain.MotionField, error) {
	pb, cb := prev.Bounds(), curr.Bounds()
	if pb.Dx() != cb.Dx() || pb.Dy() != cb.Dy() {
		return domain.MotionField{}, fmt.Errorf("frame size mismatch: %dx%d vs %dx%d", pb.Dx(), pb.Dy(), cb.Dx(), cb.Dy())
	}
	if cb.Empty() {
		return domain.MotionField{}, &domain.InvalidFieldShapeError{Field: "frame"}
	}

	prevPyr := h.pyramid(fromGray(prev))
	currPyr := h.pyramid(fromGray(curr))

	coarsest := prevPyr[len(prevPyr)-1]
	u, v := newPlane(coarsest.w, coarsest.h), newPlane(coarsest.w, coarsest.h)
	for level := len(prevPyr) - 1; level >= 0; level-- {
		p0, p1 := prevPyr[level], currPyr[level]
		if u.w != p0.w || u.h != p0.h {
			u = u.upsample(p0.w, p0.h, float64(p0.w)/float64(u.w))
			v = v.upsample(p0.w, p0.h, float64(p0.h)/float64(v.h))
		}
		du, dv, err := h.solve(ctx, p0, p1.warp(u, v))
		if err != nil {
			return domain.MotionField{}, err
		}
		floats.Add(u.pix, du.pix)
		floats.Add(v.pix, dv.pix)
	}

	field := domain.NewMotionField(u.h, u.w)
	copy(domain.RawValues(field.U), u.pix)
	copy(domain.RawValues(field.V), v.pix)
	return field, nil
}

// pyramid returns base followed by successively halved levels.
func (h *HornSchunck) pyramid(base *plane) []*plane {
	levels := []*plane{base}
	for len(levels) < h.levels {
		top := levels[len(levels)-1]
		if top.w/2 < minPyramidSide || top.h/2 < minPyramidSide {
			break
		}
		levels = append(levels, top.downsample())
	}
	return levels
}

// solve runs the Horn–Schunck relaxation between p0 and the warped p1 and
// returns the residual flow.
func (h *HornSchunck) solve(ctx context.Context, p0, p1 *plane) (*plane, *plane, error) {
	w, ht := p0.w, p0.h
	n := w * ht
	ix, iy, it := make([]float64, n), make([]float64, n), make([]float64, n)
	for y := 0; y < ht; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			ix[i] = (p0.at(x+1, y) - p0.at(x-1, y) + p1.at(x+1, y) - p1.at(x-1, y)) / 4
			iy[i] = (p0.at(x, y+1) - p0.at(x, y-1) + p1.at(x, y+1) - p1.at(x, y-1)) / 4
			it[i] = p1.pix[i] - p0.pix[i]
		}
	}

	alpha2 := h.alpha * h.alpha
	u, v := newPlane(w, ht), newPlane(w, ht)
	nu, nv := newPlane(w, ht), newPlane(w, ht)
	for iter := 0; iter < h.iterations; iter++ {
		if iter%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
		}
		for y := 0; y < ht; y++ {
			for x := 0; x < w; x++ {
				i := y*w + x
				ub, vb := u.neighborMean(x, y), v.neighborMean(x, y)
				t := (ix[i]*ub + iy[i]*vb + it[i]) / (alpha2 + ix[i]*ix[i] + iy[i]*iy[i])
				nu.pix[i] = ub - ix[i]*t
				nv.pix[i] = vb - iy[i]*t
			}
		}
		u, nu = nu, u
		v, nv = nv, v
	}
	return u, v, nil
}
