package synth

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/couchcryptid/epicenter-detector/internal/domain"
)

// litThreshold is the minimum intensity counted as part of the outline.
const litThreshold = 128

// ExpansionEstimator recovers the motion of a single bright outline growing
// about a fixed center. It locates the outline's centroid and mean radius in
// both frames and returns a homologous expansion about that centroid,
//
//	u = k·(x − cx)·g,  v = k·(y − cy)·g,  g = exp(−d² / 2r²)
//
// where k = r₁/r₀ − 1 and r is the current radius. The Gaussian envelope keeps
// the field smooth so its derivatives peak at the center. Frames without a lit
// outline yield a zero field.
type ExpansionEstimator struct{}

// Name identifies the estimator in metrics.
func (ExpansionEstimator) Name() string { return "synthetic-expansion" }

// Estimate implements the motion estimator contract.
func (ExpansionEstimator) Estimate(ctx context.Context, prev, curr *image.Gray) (domain.MotionField, error) {
	if err := ctx.Err(); err != nil {
		return domain.MotionField{}, err
	}
	pb, cb := prev.Bounds(), curr.Bounds()
	if pb.Dx() != cb.Dx() || pb.Dy() != cb.Dy() {
		return domain.MotionField{}, fmt.Errorf("frame size mismatch: %dx%d vs %dx%d", pb.Dx(), pb.Dy(), cb.Dx(), cb.Dy())
	}
	rows, cols := cb.Dy(), cb.Dx()
	field := domain.NewMotionField(rows, cols)

	cx, cy, n := centroid(curr)
	if n == 0 {
		return field, nil
	}
	r0, n0 := meanRadius(prev, cx, cy)
	r1, _ := meanRadius(curr, cx, cy)
	if n0 == 0 || r0 == 0 || r1 == 0 {
		return field, nil
	}

	k := r1/r0 - 1
	twoR2 := 2 * r1 * r1
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			dx, dy := float64(x)-cx, float64(y)-cy
			g := math.Exp(-(dx*dx + dy*dy) / twoR2)
			field.U.Set(y, x, k*dx*g)
			field.V.Set(y, x, k*dy*g)
		}
	}
	return field, nil
}

func centroid(img *image.Gray) (cx, cy float64, n int) {
	b := img.Bounds()
	var sx, sy float64
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			if img.GrayAt(b.Min.X+x, b.Min.Y+y).Y >= litThreshold {
				sx += float64(x)
				sy += float64(y)
				n++
			}
		}
	}
	if n == 0 {
		return 0, 0, 0
	}
	return sx / float64(n), sy / float64(n), n
}

func meanRadius(img *image.Gray, cx, cy float64) (float64, int) {
	b := img.Bounds()
	var sum float64
	n := 0
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			if img.GrayAt(b.Min.X+x, b.Min.Y+y).Y >= litThreshold {
				sum += math.Hypot(float64(x)-cx, float64(y)-cy)
				n++
			}
		}
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}
