package zonal

import (
	"sort"

	"github.com/paulmach/orb"

	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/domain"
)

// cell addresses one grid cell by latitude and longitude index.
type cell struct {
	y, x int
}

// cellIndex maps coordinates to cells of a rectilinear grid. Cell footprints are bounded by the
// midpoints between neighbouring centers; the outer edges sit half a step beyond the outer centers.
type cellIndex struct {
	lons, lats []float64
	xEdges     []float64
	yEdges     []float64
}

func newCellIndex(g domain.Grid, cellSize float64) *cellIndex {
	return &cellIndex{
		lons:   g.Lons,
		lats:   g.Lats,
		xEdges: axisEdges(g.Lons, cellSize),
		yEdges: axisEdges(g.Lats, cellSize),
	}
}

func axisEdges(centers []float64, cellSize float64) []float64 {
	n := len(centers)
	if n == 0 {
		return nil
	}
	edges := make([]float64, n+1)
	if n == 1 {
		edges[0] = centers[0] - cellSize/2
		edges[1] = centers[0] + cellSize/2
		return edges
	}
	for i := 1; i < n; i++ {
		edges[i] = (centers[i-1] + centers[i]) / 2
	}
	edges[0] = centers[0] - (centers[1]-centers[0])/2
	edges[n] = centers[n-1] + (centers[n-1]-centers[n-2])/2
	return edges
}

// locate returns the half-open cell [edges[i], edges[i+1]) containing v, or -1.
func locate(edges []float64, v float64) int {
	n := len(edges) - 1
	if n < 1 || v < edges[0] || v >= edges[n] {
		return -1
	}
	i := sort.SearchFloat64s(edges, v)
	if i < len(edges) && edges[i] == v {
		return i
	}
	return i - 1
}

// span returns the inclusive index range of cells overlapping [lo, hi], ok is false when the
// interval misses the axis entirely.
func span(edges []float64, lo, hi float64) (first, last int, ok bool) {
	n := len(edges) - 1
	if n < 1 || hi < edges[0] || lo > edges[n] {
		return 0, 0, false
	}
	return clampedLocate(edges, lo), clampedLocate(edges, hi), true
}

func clampedLocate(edges []float64, v float64) int {
	n := len(edges) - 1
	switch {
	case v < edges[0]:
		return 0
	case v >= edges[n]:
		return n - 1
	default:
		return locate(edges, v)
	}
}

// bound returns the footprint of a cell.
func (ci *cellIndex) bound(c cell) orb.Bound {
	return orb.Bound{
		Min: orb.Point{ci.xEdges[c.x], ci.yEdges[c.y]},
		Max: orb.Point{ci.xEdges[c.x+1], ci.yEdges[c.y+1]},
	}
}

// center returns the cell center.
func (ci *cellIndex) center(c cell) orb.Point {
	return orb.Point{ci.lons[c.x], ci.lats[c.y]}
}

// candidates visits every cell whose footprint overlaps b.
func (ci *cellIndex) candidates(b orb.Bound, visit func(cell)) {
	x0, x1, ok := span(ci.xEdges, b.Min.X(), b.Max.X())
	if !ok {
		return
	}
	y0, y1, ok := span(ci.yEdges, b.Min.Y(), b.Max.Y())
	if !ok {
		return
	}
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			visit(cell{y: y, x: x})
		}
	}
}
