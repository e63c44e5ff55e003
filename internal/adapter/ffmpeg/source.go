package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strings"

	"github.com/couchcryptid/epicenter-detector/internal/domain"
	"github.com/couchcryptid/epicenter-detector/internal/pipeline"
)

// Decoder opens videos through ffprobe and ffmpeg.
// It implements pipeline.Opener.
type Decoder struct {
	ffmpeg  string
	ffprobe string
}

// NewDecoder creates a Decoder using the given binaries; empty names fall
// back to ffmpeg and ffprobe on PATH.
func NewDecoder(ffmpegBin, ffprobeBin string) *Decoder {
	if strings.TrimSpace(ffmpegBin) == "" {
		ffmpegBin = "ffmpeg"
	}
	if strings.TrimSpace(ffprobeBin) == "" {
		ffprobeBin = "ffprobe"
	}
	return &Decoder{ffmpeg: ffmpegBin, ffprobe: ffprobeBin}
}

// Available reports whether both binaries can be found.
func (d *Decoder) Available() bool {
	_, errMpeg := exec.LookPath(d.ffmpeg)
	_, errProbe := exec.LookPath(d.ffprobe)
	return errMpeg == nil && errProbe == nil
}

// Open probes path and starts decoding it to 8-bit grayscale.
func (d *Decoder) Open(ctx context.Context, path string) (pipeline.VideoSource, error) {
	probe, err := Probe(ctx, d.ffprobe, path)
	if err != nil {
		return nil, err
	}
	props, err := probe.Properties()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	// The decoder outlives ctx: it is bound to the source and stopped by Close.
	// Autorotation is disabled so frames keep the coded size ffprobe reports.
	procCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	cmd := commandContext(procCtx, d.ffmpeg, "-v", "error", "-nostdin", "-noautorotate",
		"-i", path, "-map", "0:v:0", "-f", "rawvideo", "-pix_fmt", "gray", "-") //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpeg pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	return &Source{
		frames: newRawReader(stdout, props),
		cmd:    cmd,
		cancel: cancel,
		stderr: &stderr,
	}, nil
}

// Source streams the frames of one ffmpeg process.
type Source struct {
	frames *rawReader
	cmd    *exec.Cmd
	cancel context.CancelFunc
	stderr *bytes.Buffer
	closed bool
}

// Properties implements pipeline.FrameSource.
func (s *Source) Properties() domain.VideoProperties { return s.frames.props }

// Next implements pipeline.FrameSource.
func (s *Source) Next(ctx context.Context) (*image.Gray, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := s.frames.next()
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("ffmpeg decode: %w", err)
	}
	return img, err
}

// Close stops the decoder. A decoder that exited with an error before
// delivering every frame is reported here.
func (s *Source) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	exhausted := s.frames.exhausted
	if !exhausted {
		s.cancel()
	}
	err := s.cmd.Wait()
	s.cancel()
	if exhausted && err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(s.stderr.String()))
	}
	return nil
}

// rawReader splits a rawvideo gray stream into frames.
type rawReader struct {
	r         *bufio.Reader
	props     domain.VideoProperties
	exhausted bool
}

func newRawReader(r io.Reader, props domain.VideoProperties) *rawReader {
	return &rawReader{r: bufio.NewReaderSize(r, props.Width*props.Height), props: props}
}

// next reads one frame. A trailing partial frame is dropped.
func (rr *rawReader) next() (*image.Gray, error) {
	if rr.exhausted {
		return nil, io.EOF
	}
	img := image.NewGray(image.Rect(0, 0, rr.props.Width, rr.props.Height))
	if _, err := io.ReadFull(rr.r, img.Pix); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			rr.exhausted = true
			return nil, io.EOF
		}
		return nil, err
	}
	return img, nil
}
