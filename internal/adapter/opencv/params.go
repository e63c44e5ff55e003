// Package opencv reads videos and estimates dense optical flow with OpenCV
// through gocv. The real implementation needs the opencv build tag and a
// local OpenCV install; without it every constructor reports ErrUnavailable.
package opencv

import (
	"errors"
	"fmt"
)

// ErrUnavailable means the binary was built without OpenCV support.
var ErrUnavailable = errors.New("opencv support not compiled in (build with -tags opencv)")

// FarnebackParams are the parameters of cv::calcOpticalFlowFarneback.
type FarnebackParams struct {
	PyrScale   float64
	Levels     int
	WinSize    int
	Iterations int
	PolyN      int
	PolySigma  float64
}

// DefaultFarnebackParams returns the reference estimator settings.
func DefaultFarnebackParams() FarnebackParams {
	return FarnebackParams{
		PyrScale:   0.5,
		Levels:     3,
		WinSize:    15,
		Iterations: 3,
		PolyN:      5,
		PolySigma:  1.2,
	}
}

// Validate reports parameters OpenCV would reject.
func (p FarnebackParams) Validate() error {
	var errs []error
	if !(p.PyrScale > 0 && p.PyrScale < 1) {
		errs = append(errs, fmt.Errorf("pyr_scale must be within (0, 1), got %g", p.PyrScale))
	}
	if p.Levels < 1 {
		errs = append(errs, fmt.Errorf("levels must be >= 1, got %d", p.Levels))
	}
	if p.WinSize < 1 {
		errs = append(errs, fmt.Errorf("win_size must be >= 1, got %d", p.WinSize))
	}
	if p.Iterations < 1 {
		errs = append(errs, fmt.Errorf("iterations must be >= 1, got %d", p.Iterations))
	}
	if p.PolyN != 5 && p.PolyN != 7 {
		errs = append(errs, fmt.Errorf("poly_n must be 5 or 7, got %d", p.PolyN))
	}
	if !(p.PolySigma > 0) {
		errs = append(errs, fmt.Errorf("poly_sigma must be > 0, got %g", p.PolySigma))
	}
	return errors.Join(errs...)
}
