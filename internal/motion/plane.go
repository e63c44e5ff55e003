package motion

import (
	"image"
	"math"
)

// plane is a row-major float image.
type plane struct {
	w, h int
	pix  []float64
}

func newPlane(w, h int) *plane {
	return &plane{w: w, h: h, pix: make([]float64, w*h)}
}

func fromGray(img *image.Gray) *plane {
	b := img.Bounds()
	p := newPlane(b.Dx(), b.Dy())
	for y := 0; y < p.h; y++ {
		off := img.PixOffset(b.Min.X, b.Min.Y+y)
		row := img.Pix[off : off+p.w]
		out := p.pix[y*p.w : (y+1)*p.w]
		for x, v := range row {
			out[x] = float64(v)
		}
	}
	return p
}

func (p *plane) at(x, y int) float64 {
	x = min(max(x, 0), p.w-1)
	y = min(max(y, 0), p.h-1)
	return p.pix[y*p.w+x]
}

// sample reads p at a fractional position with bilinear interpolation,
// clamping to the border.
func (p *plane) sample(x, y float64) float64 {
	x = math.Min(math.Max(x, 0), float64(p.w-1))
	y = math.Min(math.Max(y, 0), float64(p.h-1))
	x0, y0 := int(x), int(y)
	fx, fy := x-float64(x0), y-float64(y0)
	top := p.at(x0, y0)*(1-fx) + p.at(x0+1, y0)*fx
	bottom := p.at(x0, y0+1)*(1-fx) + p.at(x0+1, y0+1)*fx
	return top*(1-fy) + bottom*fy
}

// downsample halves p by averaging 2×2 blocks. Odd trailing rows and columns
// are folded into the last block.
func (p *plane) downsample() *plane {
	w, h := max(p.w/2, 1), max(p.h/2, 1)
	out := newPlane(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sx, sy := 2*x, 2*y
			out.pix[y*w+x] = (p.at(sx, sy) + p.at(sx+1, sy) + p.at(sx, sy+1) + p.at(sx+1, sy+1)) / 4
		}
	}
	return out
}

// upsample resizes p to w×h with bilinear interpolation and multiplies every
// value by scale.
func (p *plane) upsample(w, h int, scale float64) *plane {
	out := newPlane(w, h)
	sx := float64(p.w) / float64(w)
	sy := float64(p.h) / float64(h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := p.sample((float64(x)+0.5)*sx-0.5, (float64(y)+0.5)*sy-0.5)
			out.pix[y*w+x] = v * scale
		}
	}
	return out
}

// warp resamples p at (x+u, y+v) for every pixel.
func (p *plane) warp(u, v *plane) *plane {
	out := newPlane(p.w, p.h)
	for y := 0; y < p.h; y++ {
		for x := 0; x < p.w; x++ {
			i := y*p.w + x
			out.pix[i] = p.sample(float64(x)+u.pix[i], float64(y)+v.pix[i])
		}
	}
	return out
}

// neighborMean is the 4-neighbor average with clamped borders.
func (p *plane) neighborMean(x, y int) float64 {
	return (p.at(x-1, y) + p.at(x+1, y) + p.at(x, y-1) + p.at(x, y+1)) / 4
}
