package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Tuning holds the algorithm parameters that may be overridden from a TOML
// file. Keys missing from the file keep their defaults.
//
//	[detection]
//	percentile   = 95.0
//	sigma        = 5.0
//	connectivity = 4
//	scorer       = "centroid"
//	decay_frames = 10.0      # inf disables decay
//	top_k        = 5
//	stride       = 1
//
//	[farneback]
//	pyr_scale  = 0.5
//	levels     = 3
//	win_size   = 15
//	iterations = 3
//	poly_n     = 5
//	poly_sigma = 1.2
//
//	[horn_schunck]
//	alpha      = 15.0
//	iterations = 64
//	levels     = 4
type Tuning struct {
	Detection   DetectionTuning   `toml:"detection"`
	Farneback   FarnebackTuning   `toml:"farneback"`
	HornSchunck HornSchunckTuning `toml:"horn_schunck"`
}

// DetectionTuning configures accumulation and extraction.
type DetectionTuning struct {
	Percentile   float64 `toml:"percentile"`
	Sigma        float64 `toml:"sigma"`
	Connectivity int     `toml:"connectivity"`
	Scorer       string  `toml:"scorer"`
	DecayFrames  float64 `toml:"decay_frames"`
	TopK         int     `toml:"top_k"`
	Stride       int     `toml:"stride"`
}

// FarnebackTuning configures the OpenCV dense flow estimator.
type FarnebackTuning struct {
	PyrScale   float64 `toml:"pyr_scale"`
	Levels     int     `toml:"levels"`
	WinSize    int     `toml:"win_size"`
	Iterations int     `toml:"iterations"`
	PolyN      int     `toml:"poly_n"`
	PolySigma  float64 `toml:"poly_sigma"`
}

// HornSchunckTuning configures the pure-Go flow estimator.
type HornSchunckTuning struct {
	Alpha      float64 `toml:"alpha"`
	Iterations int     `toml:"iterations"`
	Levels     int     `toml:"levels"`
}

// DefaultTuning returns the reference parameters.
func DefaultTuning() *Tuning {
	return &Tuning{
		Detection: DetectionTuning{
			Percentile:   95,
			Sigma:        5,
			Connectivity: 4,
			Scorer:       "centroid",
			DecayFrames:  10,
			TopK:         5,
			Stride:       1,
		},
		Farneback: FarnebackTuning{
			PyrScale:   0.5,
			Levels:     3,
			WinSize:    15,
			Iterations: 3,
			PolyN:      5,
			PolySigma:  1.2,
		},
		HornSchunck: HornSchunckTuning{
			Alpha:      15,
			Iterations: 64,
			Levels:     4,
		},
	}
}

// maxTuningFileSize bounds the tuning file read.
const maxTuningFileSize = 1 << 20

// LoadTuning reads a TOML tuning file over the defaults and validates it.
func LoadTuning(path string) (*Tuning, error) {
	cleanPath := filepath.Clean(path)
	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("stat tuning file: %w", err)
	}
	if info.Size() > maxTuningFileSize {
		return nil, fmt.Errorf("tuning file too large: %d bytes (max %d)", info.Size(), maxTuningFileSize)
	}

	file, err := os.Open(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("open tuning file: %w", err)
	}
	defer file.Close()

	t := DefaultTuning()
	decoder := toml.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(t); err != nil {
		return nil, fmt.Errorf("parse tuning file: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tuning: %w", err)
	}
	return t, nil
}

// Validate checks every section and reports all problems found.
func (t *Tuning) Validate() error {
	var errs []error
	d := t.Detection
	if math.IsNaN(d.Percentile) || d.Percentile < 0 || d.Percentile > 100 {
		errs = append(errs, fmt.Errorf("detection.percentile must be within [0, 100], got %g", d.Percentile))
	}
	if math.IsNaN(d.Sigma) || math.IsInf(d.Sigma, 0) || d.Sigma < 0 {
		errs = append(errs, fmt.Errorf("detection.sigma must be finite and >= 0, got %g", d.Sigma))
	}
	if d.Connectivity != 4 && d.Connectivity != 8 {
		errs = append(errs, fmt.Errorf("detection.connectivity must be 4 or 8, got %d", d.Connectivity))
	}
	if d.Scorer != "centroid" && d.Scorer != "peak" {
		errs = append(errs, fmt.Errorf("detection.scorer must be centroid or peak, got %q", d.Scorer))
	}
	if math.IsNaN(d.DecayFrames) || d.DecayFrames <= 0 {
		errs = append(errs, fmt.Errorf("detection.decay_frames must be > 0, got %g", d.DecayFrames))
	}
	if d.TopK < 1 {
		errs = append(errs, fmt.Errorf("detection.top_k must be >= 1, got %d", d.TopK))
	}
	if d.Stride < 1 {
		errs = append(errs, fmt.Errorf("detection.stride must be >= 1, got %d", d.Stride))
	}

	f := t.Farneback
	if f.PyrScale <= 0 || f.PyrScale >= 1 {
		errs = append(errs, fmt.Errorf("farneback.pyr_scale must be within (0, 1), got %g", f.PyrScale))
	}
	if f.Levels < 1 || f.WinSize < 1 || f.Iterations < 1 {
		errs = append(errs, errors.New("farneback.levels, win_size and iterations must be >= 1"))
	}
	if f.PolyN != 5 && f.PolyN != 7 {
		errs = append(errs, fmt.Errorf("farneback.poly_n must be 5 or 7, got %d", f.PolyN))
	}
	if f.PolySigma <= 0 {
		errs = append(errs, fmt.Errorf("farneback.poly_sigma must be > 0, got %g", f.PolySigma))
	}

	h := t.HornSchunck
	if h.Alpha <= 0 || math.IsInf(h.Alpha, 0) {
		errs = append(errs, fmt.Errorf("horn_schunck.alpha must be finite and > 0, got %g", h.Alpha))
	}
	if h.Iterations < 1 || h.Levels < 1 {
		errs = append(errs, errors.New("horn_schunck.iterations and levels must be >= 1"))
	}
	return errors.Join(errs...)
}
