// Package spatial builds the device-resident uniform grid used for neighbour
// search: one (cell key, particle index) pair per particle, sorted by key, and
// a cell start index into the sorted table.
package spatial

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/pthm-cable/sphfluid/gpu"
)

// Grid is a uniform 3D grid over the box [0, Bounds] with cubic cells of
// CellSize. Positions outside the box fall into the nearest border cell.
type Grid struct {
	CellSize float32
	Bounds   mgl32.Vec3
	Counts   [3]uint32
}

// NewGrid sizes a grid so that Counts[a]*cellSize covers bounds on each axis.
func NewGrid(bounds mgl32.Vec3, cellSize float32) (Grid, error) {
	if !(cellSize > 0) {
		return Grid{}, fmt.Errorf("spatial: cell size must be positive, got %v", cellSize)
	}
	g := Grid{CellSize: cellSize, Bounds: bounds}
	total := uint64(1)
	for a := 0; a < 3; a++ {
		if !(bounds[a] > 0) {
			return Grid{}, fmt.Errorf("spatial: bounds must be positive, got %v", bounds)
		}
		g.Counts[a] = CellCountFor(bounds[a], cellSize)
		total *= uint64(g.Counts[a])
	}
	if total > math.MaxUint32 {
		return Grid{}, fmt.Errorf("spatial: %d cells do not fit 32-bit keys", total)
	}
	return g, nil
}

// CellCountFor returns the number of cells of size needed to cover extent.
func CellCountFor(extent, size float32) uint32 {
	n := uint32(math.Ceil(float64(extent / size)))
	return max(n, 1)
}

// CellOf returns the clamped integer cell coordinates of p.
func (g Grid) CellOf(p mgl32.Vec3) [3]uint32 {
	var c [3]uint32
	for a := 0; a < 3; a++ {
		f := p[a] / g.CellSize
		switch {
		case !(f >= 0):
			c[a] = 0
		case f >= float32(g.Counts[a]):
			c[a] = g.Counts[a] - 1
		default:
			c[a] = uint32(f)
		}
	}
	return c
}

// Flatten maps cell coordinates to a key.
func (g Grid) Flatten(c [3]uint32) uint32 {
	return (c[0]*g.Counts[1]+c[1])*g.Counts[2] + c[2]
}

// Key returns the cell key of p.
func (g Grid) Key(p mgl32.Vec3) uint32 {
	return g.Flatten(g.CellOf(p))
}

// CellTotal returns the number of cells.
func (g Grid) CellTotal() uint32 {
	return g.Counts[0] * g.Counts[1] * g.Counts[2]
}

// CellRange returns the sorted range [start, end) of cell c given the cell
// start index and the pair count n.
func (g Grid) CellRange(index gpu.ReadView, c, n uint32) (start, end uint32) {
	start = index.U32(c)
	end = n
	if c+1 < g.CellTotal() {
		end = index.U32(c + 1)
	}
	return start, end
}

// ForEachNeighbor calls fn with the index of every particle in the 3x3x3 block
// of cells around pos, pos's own cell included. Candidates are not distance
// filtered. index and vals are the cell start index and sorted values of a
// Lookup built over this grid.
func (g Grid) ForEachNeighbor(index, vals gpu.ReadView, pos mgl32.Vec3, fn func(j uint32)) {
	n := uint32(vals.Len())
	c := g.CellOf(pos)

	var lo, hi [3]uint32
	for a := 0; a < 3; a++ {
		lo[a] = c[a]
		if lo[a] > 0 {
			lo[a]--
		}
		hi[a] = min(c[a]+1, g.Counts[a]-1)
	}

	for x := lo[0]; x <= hi[0]; x++ {
		for y := lo[1]; y <= hi[1]; y++ {
			// Cells along z are adjacent keys, so the z run is one range.
			first := g.Flatten([3]uint32{x, y, lo[2]})
			last := g.Flatten([3]uint32{x, y, hi[2]})
			start, _ := g.CellRange(index, first, n)
			_, end := g.CellRange(index, last, n)
			for s := start; s < end; s++ {
				fn(vals.U32(s))
			}
		}
	}
}
