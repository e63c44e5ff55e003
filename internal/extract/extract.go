// Package extract locates epicenter candidates in accumulated energy and
// divergence maps.
//
// Detection runs five stages over a combined significance map
// energy·|divergence|: Gaussian smoothing, a data-adaptive percentile
// threshold, connected-region labeling, a weighted-centroid reduction per
// region and a stable rank by score.
package extract

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/couchcryptid/epicenter-detector/internal/domain"
)

// Scorer selects how a region is scored.
type Scorer int

const (
	// ScoreAtCentroid samples the smoothed map at the truncated weighted
	// centroid. The sample can sit below the region's peak, or outside the
	// region entirely for non-convex shapes.
	ScoreAtCentroid Scorer = iota
	// ScoreRegionPeak uses the maximum smoothed value inside the region.
	ScoreRegionPeak
)

func (s Scorer) String() string {
	switch s {
	case ScoreAtCentroid:
		return "centroid"
	case ScoreRegionPeak:
		return "peak"
	default:
		return fmt.Sprintf("Scorer(%d)", int(s))
	}
}

// ParseScorer accepts "centroid" or "peak".
func ParseScorer(s string) (Scorer, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "centroid", "":
		return ScoreAtCentroid, nil
	case "peak":
		return ScoreRegionPeak, nil
	default:
		return 0, fmt.Errorf("invalid scorer %q (want centroid or peak)", s)
	}
}

// Options tunes detection.
type Options struct {
	Percentile   float64
	Sigma        float64
	Truncate     float64
	Connectivity Connectivity
	Scorer       Scorer
}

// Defaults.
const (
	DefaultPercentile = 95.0
	DefaultSigma      = 5.0
)

// DefaultOptions returns the reference detection settings.
func DefaultOptions() Options {
	return Options{
		Percentile:   DefaultPercentile,
		Sigma:        DefaultSigma,
		Truncate:     DefaultTruncate,
		Connectivity: Connectivity4,
		Scorer:       ScoreAtCentroid,
	}
}

// Validate reports every invalid option.
func (o Options) Validate() error {
	var errs []error
	if math.IsNaN(o.Percentile) || o.Percentile < 0 || o.Percentile > 100 {
		errs = append(errs, fmt.Errorf("percentile must be within [0, 100], got %g", o.Percentile))
	}
	if math.IsNaN(o.Sigma) || math.IsInf(o.Sigma, 0) || o.Sigma < 0 {
		errs = append(errs, fmt.Errorf("sigma must be finite and >= 0, got %g", o.Sigma))
	}
	if math.IsNaN(o.Truncate) || math.IsInf(o.Truncate, 0) || o.Truncate <= 0 {
		errs = append(errs, fmt.Errorf("truncate must be finite and > 0, got %g", o.Truncate))
	}
	if o.Connectivity != Connectivity4 && o.Connectivity != Connectivity8 {
		errs = append(errs, fmt.Errorf("connectivity must be 4 or 8, got %d", int(o.Connectivity)))
	}
	if o.Scorer != ScoreAtCentroid && o.Scorer != ScoreRegionPeak {
		errs = append(errs, fmt.Errorf("unknown scorer %d", int(o.Scorer)))
	}
	return errors.Join(errs...)
}

// Extractor finds candidates with fixed options. It holds no per-call state
// and is safe for concurrent use.
type Extractor struct {
	opts Options
}

// New validates opts and returns an Extractor.
func New(opts Options) (*Extractor, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("extract options: %w", err)
	}
	return &Extractor{opts: opts}, nil
}

// Options returns the extractor's settings.
func (e *Extractor) Options() Options { return e.opts }

// Detection carries the intermediate maps of one detection alongside the
// ranked candidates.
type Detection struct {
	Candidates []domain.EpicenterCandidate
	Combined   *mat.Dense
	Smoothed   *mat.Dense
	Threshold  float64
	Regions    int
}

// Detect returns candidates ranked by descending score. No region above the
// threshold yields an empty slice and a nil error.
func (e *Extractor) Detect(energy, divergence *mat.Dense) ([]domain.EpicenterCandidate, error) {
	d, err := e.DetectDetailed(energy, divergence)
	if err != nil {
		return nil, err
	}
	return d.Candidates, nil
}

// DetectDetailed is Detect plus the combined map, smoothed map, threshold and
// region count.
func (e *Extractor) DetectDetailed(energy, divergence *mat.Dense) (Detection, error) {
	combined, err := Combine(energy, divergence)
	if err != nil {
		return Detection{}, err
	}
	rows, cols := combined.Dims()

	smoothed := GaussianSmooth(combined, e.opts.Sigma, e.opts.Truncate)
	values := domain.RawValues(smoothed)
	threshold := Percentile(values, e.opts.Percentile)

	mask := make([]bool, len(values))
	for i, v := range values {
		mask[i] = v > threshold
	}
	labels, n := Label(mask, rows, cols, e.opts.Connectivity)

	return Detection{
		Candidates: rank(reduce(labels, n, values, rows, cols, e.opts.Scorer)),
		Combined:   combined,
		Smoothed:   smoothed,
		Threshold:  threshold,
		Regions:    n,
	}, nil
}

// Combine returns energy ⊙ |divergence|. Both maps must share a non-empty
// shape and hold only finite values, and energy must be non-negative.
func Combine(energy, divergence *mat.Dense) (*mat.Dense, error) {
	var rows, cols int
	if energy != nil && !energy.IsEmpty() {
		rows, cols = energy.Dims()
	}
	if rows == 0 || cols == 0 {
		return nil, &domain.InvalidFieldShapeError{Field: "energy"}
	}
	if err := domain.CheckShape("divergence", divergence, rows, cols); err != nil {
		return nil, err
	}

	en, dv := domain.RawValues(energy), domain.RawValues(divergence)
	out := make([]float64, len(en))
	for i := range out {
		if en[i] < 0 {
			return nil, fmt.Errorf("combine: %w: %g at (%d,%d)", domain.ErrNegativeEnergy, en[i], i%cols, i/cols)
		}
		out[i] = en[i] * math.Abs(dv[i])
	}
	m := mat.NewDense(rows, cols, out)
	if err := domain.CheckFinite(m); err != nil {
		return nil, fmt.Errorf("combine: %w", err)
	}
	return m, nil
}

// region holds running sums for one label.
type region struct {
	sx, sy, sw float64
	count      int
	first      int
	peak       float64
}

// reduce collapses each labeled region to a candidate in label order, in one
// pass over the label image.
func reduce(labels []int, n int, smoothed []float64, rows, cols int, scorer Scorer) []domain.EpicenterCandidate {
	if n == 0 {
		return []domain.EpicenterCandidate{}
	}
	regions := make([]region, n+1)
	for idx, l := range labels {
		if l == 0 {
			continue
		}
		w := smoothed[idx]
		x, y := float64(idx%cols), float64(idx/cols)
		r := &regions[l]
		if r.count == 0 {
			r.first = idx
			r.peak = w
		}
		r.sx += x * w
		r.sy += y * w
		r.sw += w
		r.count++
		r.peak = max(r.peak, w)
	}

	out := make([]domain.EpicenterCandidate, 0, n)
	for l := 1; l <= n; l++ {
		r := regions[l]
		cx, cy := r.first%cols, r.first/cols
		if r.sw != 0 {
			// Truncation toward zero, not rounding.
			cx = clamp(int(r.sx/r.sw), cols)
			cy = clamp(int(r.sy/r.sw), rows)
		}
		score := smoothed[cy*cols+cx]
		if scorer == ScoreRegionPeak {
			score = r.peak
		}
		out = append(out, domain.EpicenterCandidate{X: cx, Y: cy, Score: score})
	}
	return out
}

func clamp(v, n int) int {
	return min(max(v, 0), n-1)
}

// rank sorts by descending score, keeping label order between equal scores.
func rank(c []domain.EpicenterCandidate) []domain.EpicenterCandidate {
	sort.SliceStable(c, func(i, j int) bool { return c[i].Score > c[j].Score })
	return c
}
