package report

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"os"
	"strconv"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/couchcryptid/epicenter-detector/internal/domain"
)

const paletteSize = 255

// maxMarkedCandidates is the number of candidates drawn on the combined map.
const maxMarkedCandidates = 5

// WriteHeatmap saves a 2×2 PNG panel of the accumulated maps: strain
// energy, divergence and curl, and the combined map with the top candidates
// marked. Signed maps use a diverging palette centered on zero.
func WriteHeatmap(path string, fields domain.AccumulatedFields, combined *mat.Dense, candidates []domain.EpicenterCandidate) error {
	if fields.Energy == nil || fields.Divergence == nil || fields.Curl == nil || combined == nil {
		return errors.New("write heatmap: missing field")
	}

	heat := palette.Heat(paletteSize, 1)
	diverging := moreland.SmoothBlueRed().Palette(paletteSize)

	energy, err := heatPlot("Strain energy", fields.Energy, heat, false)
	if err != nil {
		return err
	}
	divergence, err := heatPlot("Divergence (expansion/compression)", fields.Divergence, diverging, true)
	if err != nil {
		return err
	}
	curl, err := heatPlot("Curl (rotation)", fields.Curl, diverging, true)
	if err != nil {
		return err
	}
	comb, err := heatPlot("Combined energy × |divergence|", combined, heat, false)
	if err != nil {
		return err
	}
	if err := markCandidates(comb, candidates); err != nil {
		return err
	}

	const width, height = 14 * vg.Inch, 12 * vg.Inch
	img := vgimg.New(width, height)
	dc := draw.New(img)
	tiles := draw.Tiles{Rows: 2, Cols: 2, PadX: vg.Millimeter * 4, PadY: vg.Millimeter * 4,
		PadTop: vg.Millimeter * 2, PadBottom: vg.Millimeter * 2, PadLeft: vg.Millimeter * 2, PadRight: vg.Millimeter * 2}
	plots := [][]*plot.Plot{{energy, divergence}, {curl, comb}}
	canvases := plot.Align(plots, tiles, dc)
	for i := range plots {
		for j := range plots[i] {
			plots[i][j].Draw(canvases[i][j])
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write heatmap: %w", err)
	}
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("write heatmap: %w", err)
	}
	return f.Close()
}

func heatPlot(title string, m *mat.Dense, pal palette.Palette, symmetric bool) (*plot.Plot, error) {
	if m.IsEmpty() {
		return nil, fmt.Errorf("write heatmap: %s map is empty", title)
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "x"
	p.Y.Label.Text = "y"
	// Image rows grow downwards.
	p.Y.Scale = plot.InvertedScale{Normalizer: plot.LinearScale{}}

	hm := plotter.NewHeatMap(grid{m}, pal)
	lo, hi := mat.Min(m), mat.Max(m)
	if symmetric {
		bound := math.Max(math.Abs(lo), math.Abs(hi))
		lo, hi = -bound, bound
	}
	if lo == hi {
		// A flat map still needs a non-degenerate color range.
		lo, hi = lo-1, hi+1
	}
	hm.Min, hm.Max = lo, hi
	p.Add(hm)
	return p, nil
}

func markCandidates(p *plot.Plot, candidates []domain.EpicenterCandidate) error {
	n := min(len(candidates), maxMarkedCandidates)
	if n == 0 {
		return nil
	}
	pts := make(plotter.XYs, n)
	labels := make([]string, n)
	for i := 0; i < n; i++ {
		pts[i] = plotter.XY{X: float64(candidates[i].X), Y: float64(candidates[i].Y)}
		labels[i] = "#" + strconv.Itoa(i+1)
	}

	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return fmt.Errorf("write heatmap: %w", err)
	}
	scatter.GlyphStyle.Shape = draw.CrossGlyph{}
	scatter.GlyphStyle.Radius = vg.Points(6)
	scatter.GlyphStyle.Color = color.RGBA{G: 255, B: 255, A: 255}

	lbls, err := plotter.NewLabels(plotter.XYLabels{XYs: pts, Labels: labels})
	if err != nil {
		return fmt.Errorf("write heatmap: %w", err)
	}
	for i := range lbls.TextStyle {
		lbls.TextStyle[i].Color = color.RGBA{G: 255, B: 255, A: 255}
	}
	lbls.Offset = vg.Point{X: vg.Points(4), Y: vg.Points(4)}

	p.Add(scatter, lbls)
	return nil
}

// grid exposes a row-major matrix as a plotter.GridXYZ with one cell per
// pixel.
type grid struct {
	m *mat.Dense
}

func (g grid) Dims() (c, r int) {
	r, c = g.m.Dims()
	return c, r
}

func (g grid) Z(c, r int) float64 { return g.m.At(r, c) }
func (g grid) X(c int) float64    { return float64(c) }
func (g grid) Y(r int) float64    { return float64(r) }
