//go:build opencv

package opencv

import (
	"context"
	"fmt"
	"image"
	"io"

	"gocv.io/x/gocv"

	"github.com/couchcryptid/epicenter-detector/internal/domain"
	"github.com/couchcryptid/epicenter-detector/internal/pipeline"
)

// Available reports whether OpenCV support is compiled in.
func Available() bool { return true }

// Opener opens video files with cv::VideoCapture. It implements
// pipeline.Opener.
type Opener struct{}

// NewOpener creates an Opener.
func NewOpener() *Opener { return &Opener{} }

// Open opens path for frame-by-frame decoding.
func (o *Opener) Open(_ context.Context, path string) (pipeline.VideoSource, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("open %s: video capture not opened", path)
	}
	frames := int(vc.Get(gocv.VideoCaptureFrameCount))
	if frames < 0 {
		frames = 0
	}
	props := domain.VideoProperties{
		Width:      int(vc.Get(gocv.VideoCaptureFrameWidth)),
		Height:     int(vc.Get(gocv.VideoCaptureFrameHeight)),
		FPS:        vc.Get(gocv.VideoCaptureFPS),
		FrameCount: frames,
	}
	return &Source{vc: vc, props: props, frame: gocv.NewMat(), gray: gocv.NewMat()}, nil
}

// Source yields grayscale frames from a VideoCapture.
type Source struct {
	vc    *gocv.VideoCapture
	props domain.VideoProperties
	frame gocv.Mat
	gray  gocv.Mat
}

// Properties implements pipeline.FrameSource.
func (s *Source) Properties() domain.VideoProperties { return s.props }

// Next implements pipeline.FrameSource.
func (s *Source) Next(ctx context.Context) (*image.Gray, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.vc.Read(&s.frame) || s.frame.Empty() {
		return nil, io.EOF
	}
	src := s.frame
	if s.frame.Channels() != 1 {
		gocv.CvtColor(s.frame, &s.gray, gocv.ColorBGRToGray)
		src = s.gray
	}
	img, err := src.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	gray, ok := img.(*image.Gray)
	if !ok {
		return nil, fmt.Errorf("convert frame: unexpected image type %T", img)
	}
	return gray, nil
}

// Close releases the capture and its buffers.
func (s *Source) Close() error {
	s.frame.Close()
	s.gray.Close()
	return s.vc.Close()
}

// Farneback estimates dense flow with cv::calcOpticalFlowFarneback.
type Farneback struct {
	params FarnebackParams
}

// NewFarneback creates a Farneback estimator.
func NewFarneback(params FarnebackParams) (*Farneback, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("farneback: %w", err)
	}
	return &Farneback{params: params}, nil
}

// Name identifies the estimator in metrics.
func (f *Farneback) Name() string { return "farneback" }

// Estimate returns the H×W displacement field from prev to curr.
func (f *Farneback) Estimate(ctx context.Context, prev, curr *image.Gray) (domain.MotionField, error) {
	if err := ctx.Err(); err != nil {
		return domain.MotionField{}, err
	}
	prevMat, err := gocv.ImageGrayToMatGray(prev)
	if err != nil {
		return domain.MotionField{}, fmt.Errorf("convert previous frame: %w", err)
	}
	defer prevMat.Close()
	currMat, err := gocv.ImageGrayToMatGray(curr)
	if err != nil {
		return domain.MotionField{}, fmt.Errorf("convert current frame: %w", err)
	}
	defer currMat.Close()

	flow := gocv.NewMat()
	defer flow.Close()
	p := f.params
	gocv.CalcOpticalFlowFarneback(prevMat, currMat, &flow,
		p.PyrScale, p.Levels, p.WinSize, p.Iterations, p.PolyN, p.PolySigma, 0)

	rows, cols := flow.Rows(), flow.Cols()
	field := domain.NewMotionField(rows, cols)
	u, v := domain.RawValues(field.U), domain.RawValues(field.V)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			vec := flow.GetVecfAt(r, c)
			u[r*cols+c] = float64(vec[0])
			v[r*cols+c] = float64(vec[1])
		}
	}
	return field, nil
}
