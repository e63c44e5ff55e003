package extract

import (
	"fmt"
	"strings"
)

// Connectivity selects which neighbours join a region.
type Connectivity int

const (
	// Connectivity4 joins pixels sharing an edge.
	Connectivity4 Connectivity = 4
	// Connectivity8 also joins diagonal neighbours.
	Connectivity8 Connectivity = 8
)

func (c Connectivity) String() string {
	return fmt.Sprintf("%d-connected", int(c))
}

// ParseConnectivity accepts "4" or "8", optionally suffixed with
// "-connected".
func ParseConnectivity(s string) (Connectivity, error) {
	switch strings.TrimSuffix(strings.TrimSpace(s), "-connected") {
	case "4":
		return Connectivity4, nil
	case "8":
		return Connectivity8, nil
	default:
		return 0, fmt.Errorf("invalid connectivity %q (want 4 or 8)", s)
	}
}

var (
	offsets4 = [][2]int{{0, -1}, {-1, 0}, {1, 0}, {0, 1}}
	offsets8 = [][2]int{{-1, -1}, {0, -1}, {1, -1}, {-1, 0}, {1, 0}, {-1, 1}, {0, 1}, {1, 1}}
)

// Label assigns a region number to every set pixel of a row-major rows×cols
// mask. Background pixels are 0 and regions are numbered from 1 in raster
// order of their first pixel. It returns the label image and region count.
func Label(mask []bool, rows, cols int, conn Connectivity) ([]int, int) {
	offsets := offsets4
	if conn == Connectivity8 {
		offsets = offsets8
	}

	labels := make([]int, rows*cols)
	queue := make([]int, 0, 64)
	next := 0

	for start, set := range mask[:rows*cols] {
		if !set || labels[start] != 0 {
			continue
		}
		next++
		labels[start] = next
		queue = append(queue[:0], start)
		for len(queue) > 0 {
			idx := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			y, x := idx/cols, idx%cols
			for _, off := range offsets {
				nx, ny := x+off[0], y+off[1]
				if nx < 0 || ny < 0 || nx >= cols || ny >= rows {
					continue
				}
				n := ny*cols + nx
				if mask[n] && labels[n] == 0 {
					labels[n] = next
					queue = append(queue, n)
				}
			}
		}
	}
	return labels, next
}
