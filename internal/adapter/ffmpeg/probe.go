// Package ffmpeg decodes videos into grayscale frames by piping raw video out
// of the ffmpeg binary, with ffprobe supplying the stream properties.
package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"github.com/couchcryptid/epicenter-detector/internal/domain"
)

var commandContext = exec.CommandContext

// ProbeResult is the subset of ffprobe JSON output the decoder needs.
type ProbeResult struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes one stream of the container.
type Stream struct {
	Index        int    `json:"index"`
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
	NBFrames     string `json:"nb_frames"`
	Duration     string `json:"duration"`
}

// Format carries container-level metadata.
type Format struct {
	Duration string `json:"duration"`
}

// Probe runs ffprobe on path and decodes its JSON report.
func Probe(ctx context.Context, binary, path string) (ProbeResult, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	if strings.TrimSpace(path) == "" {
		return ProbeResult{}, errors.New("ffprobe: empty path")
	}

	cmd := commandContext(ctx, binary, "-v", "error", "-hide_banner",
		"-select_streams", "v:0", "-show_format", "-show_streams", "-of", "json", "--", path) //nolint:gosec
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return ProbeResult{}, fmt.Errorf("ffprobe %s: %w: %s", path, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return ProbeResult{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	return parseProbe(output)
}

func parseProbe(data []byte) (ProbeResult, error) {
	var result ProbeResult
	if err := json.Unmarshal(data, &result); err != nil {
		return ProbeResult{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return result, nil
}

// VideoStream returns the first video stream.
func (r ProbeResult) VideoStream() (Stream, bool) {
	for _, s := range r.Streams {
		if strings.EqualFold(s.CodecType, "video") {
			return s, true
		}
	}
	return Stream{}, false
}

// Properties derives the video properties of the first video stream. A
// missing frame count is estimated from the duration; 0 means unknown.
func (r ProbeResult) Properties() (domain.VideoProperties, error) {
	s, ok := r.VideoStream()
	if !ok {
		return domain.VideoProperties{}, errors.New("ffprobe: no video stream")
	}
	if s.Width <= 0 || s.Height <= 0 {
		return domain.VideoProperties{}, fmt.Errorf("ffprobe: invalid frame size %dx%d", s.Width, s.Height)
	}

	fps := parseRate(s.AvgFrameRate)
	if fps <= 0 {
		fps = parseRate(s.RFrameRate)
	}

	frames, err := strconv.Atoi(strings.TrimSpace(s.NBFrames))
	if err != nil || frames < 0 {
		frames = 0
		duration := parseFloat(s.Duration)
		if duration <= 0 {
			duration = parseFloat(r.Format.Duration)
		}
		if duration > 0 && fps > 0 {
			frames = int(math.Round(duration * fps))
		}
	}

	return domain.VideoProperties{
		Width:      s.Width,
		Height:     s.Height,
		FPS:        fps,
		FrameCount: frames,
	}, nil
}

// parseRate reads ffprobe rationals such as "30000/1001" or plain numbers.
func parseRate(value string) float64 {
	value = strings.TrimSpace(value)
	num, den, found := strings.Cut(value, "/")
	if !found {
		return parseFloat(value)
	}
	n, d := parseFloat(num), parseFloat(den)
	if d == 0 || math.IsNaN(n) || math.IsNaN(d) {
		return 0
	}
	return n / d
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return parsed
	}
	return math.NaN()
}
