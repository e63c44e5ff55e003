//go:build !opencv

package opencv

import (
	"context"
	"image"

	"github.com/couchcryptid/epicenter-detector/internal/domain"
	"github.com/couchcryptid/epicenter-detector/internal/pipeline"
)

// Available reports whether OpenCV support is compiled in.
func Available() bool { return false }

// Opener is unavailable without OpenCV.
type Opener struct{}

// NewOpener creates an Opener whose Open always fails.
func NewOpener() *Opener { return &Opener{} }

// Open reports ErrUnavailable.
func (o *Opener) Open(context.Context, string) (pipeline.VideoSource, error) {
	return nil, ErrUnavailable
}

// Farneback is unavailable without OpenCV.
type Farneback struct{}

// NewFarneback reports ErrUnavailable.
func NewFarneback(FarnebackParams) (*Farneback, error) {
	return nil, ErrUnavailable
}

// Name identifies the estimator in metrics.
func (f *Farneback) Name() string { return "farneback" }

// Estimate reports ErrUnavailable.
func (f *Farneback) Estimate(context.Context, *image.Gray, *image.Gray) (domain.MotionField, error) {
	return domain.MotionField{}, ErrUnavailable
}
