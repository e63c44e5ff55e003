package flow

// gradientX writes ∂src/∂x (along columns) of a row-major rows×cols grid into
// dst. Interior samples use the central difference (f[c+1]-f[c-1])/2 and the
// first and last column use one-sided first differences. A single column has
// zero derivative.
func gradientX(dst, src []float64, rows, cols int) {
	if cols < 2 {
		clear(dst[:rows*cols])
		return
	}
	for r := 0; r < rows; r++ {
		in := src[r*cols : (r+1)*cols]
		out := dst[r*cols : (r+1)*cols]
		out[0] = in[1] - in[0]
		for c := 1; c < cols-1; c++ {
			out[c] = (in[c+1] - in[c-1]) / 2.0
		}
		out[cols-1] = in[cols-1] - in[cols-2]
	}
}

// gradientY writes ∂src/∂y (along rows) of a row-major rows×cols grid into
// dst, with the same scheme as gradientX applied down each column.
func gradientY(dst, src []float64, rows, cols int) {
	if rows < 2 {
		clear(dst[:rows*cols])
		return
	}
	first, second := src[:cols], src[cols:2*cols]
	for c := 0; c < cols; c++ {
		dst[c] = second[c] - first[c]
	}
	for r := 1; r < rows-1; r++ {
		above := src[(r-1)*cols : r*cols]
		below := src[(r+1)*cols : (r+2)*cols]
		out := dst[r*cols : (r+1)*cols]
		for c := 0; c < cols; c++ {
			out[c] = (below[c] - above[c]) / 2.0
		}
	}
	last := src[(rows-1)*cols : rows*cols]
	prev := src[(rows-2)*cols : (rows-1)*cols]
	out := dst[(rows-1)*cols : rows*cols]
	for c := 0; c < cols; c++ {
		out[c] = last[c] - prev[c]
	}
}
