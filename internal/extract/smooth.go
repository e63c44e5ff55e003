package extract

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/couchcryptid/epicenter-detector/internal/domain"
)

// DefaultTruncate is the kernel half-width in standard deviations.
const DefaultTruncate = 4.0

// gaussianKernel returns the normalized half kernel w[0..r] for sigma, where
// r = int(truncate·sigma + 0.5) and the full kernel is w[r]..w[1] w[0] w[1]..w[r].
func gaussianKernel(sigma, truncate float64) []float64 {
	radius := int(truncate*sigma + 0.5)
	half := make([]float64, radius+1)
	sum := 0.0
	for i := range half {
		x := float64(i)
		half[i] = math.Exp(-0.5 * x * x / (sigma * sigma))
		if i == 0 {
			sum += half[i]
		} else {
			sum += 2 * half[i]
		}
	}
	for i := range half {
		half[i] /= sum
	}
	return half
}

// reflectIndex maps i onto [0, n) by mirroring about the array edges with the
// edge sample repeated (d c b a | a b c d | d c b a).
func reflectIndex(i, n int) int {
	period := 2 * n
	m := i % period
	if m < 0 {
		m += period
	}
	if m >= n {
		m = period - 1 - m
	}
	return m
}

// convolve1D filters n samples read through at(i) with the symmetric kernel
// and writes them through set(i, v). buf must hold n+2·radius values.
func convolve1D(half, buf []float64, n int, at func(int) float64, set func(int, float64)) {
	r := len(half) - 1
	for i := -r; i < n+r; i++ {
		buf[i+r] = at(reflectIndex(i, n))
	}
	for i := 0; i < n; i++ {
		c := i + r
		acc := buf[c] * half[0]
		for j := 1; j <= r; j++ {
			acc += (buf[c-j] + buf[c+j]) * half[j]
		}
		set(i, acc)
	}
}

// GaussianSmooth applies an isotropic Gaussian blur with standard deviation
// sigma, as two separable passes (down the rows, then along them) over a
// reflected border. The kernel is cut off at truncate standard deviations. A
// sigma of zero returns a copy. m is not modified.
func GaussianSmooth(m *mat.Dense, sigma, truncate float64) *mat.Dense {
	rows, cols := m.Dims()
	out := mat.NewDense(rows, cols, append([]float64(nil), domain.RawValues(m)...))
	if sigma <= 1e-15 {
		return out
	}

	half := gaussianKernel(sigma, truncate)
	r := len(half) - 1
	data := out.RawMatrix().Data
	col := make([]float64, rows)
	buf := make([]float64, max(rows, cols)+2*r)

	for x := 0; x < cols; x++ {
		convolve1D(half, buf[:rows+2*r], rows,
			func(y int) float64 { return data[y*cols+x] },
			func(y int, v float64) { col[y] = v })
		for y := 0; y < rows; y++ {
			data[y*cols+x] = col[y]
		}
	}

	row := make([]float64, cols)
	for y := 0; y < rows; y++ {
		line := data[y*cols : (y+1)*cols]
		convolve1D(half, buf[:cols+2*r], cols,
			func(x int) float64 { return line[x] },
			func(x int, v float64) { row[x] = v })
		copy(line, row)
	}
	return out
}
