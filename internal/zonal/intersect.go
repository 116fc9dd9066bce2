package zonal

import (
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// cellsOf returns the cells intersecting g, sorted by (y, x) and without duplicates.
func (ci *cellIndex) cellsOf(g orb.Geometry) []cell {
	set := make(map[cell]struct{})
	ci.collect(g, set)

	cells := make([]cell, 0, len(set))
	for c := range set {
		cells = append(cells, c)
	}
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].y != cells[j].y {
			return cells[i].y < cells[j].y
		}
		return cells[i].x < cells[j].x
	})
	return cells
}

func (ci *cellIndex) collect(g orb.Geometry, set map[cell]struct{}) {
	switch geom := g.(type) {
	case orb.Point:
		ci.collectPoint(geom, set)
	case orb.MultiPoint:
		for _, p := range geom {
			ci.collectPoint(p, set)
		}
	case orb.LineString:
		ci.collectLine(geom, set)
	case orb.MultiLineString:
		for _, ls := range geom {
			ci.collectLine(ls, set)
		}
	case orb.Ring:
		ci.collectPolygon(orb.Polygon{geom}, set)
	case orb.Polygon:
		ci.collectPolygon(geom, set)
	case orb.MultiPolygon:
		for _, p := range geom {
			ci.collectPolygon(p, set)
		}
	case orb.Bound:
		ci.collectPolygon(geom.ToPolygon(), set)
	case orb.Collection:
		for _, member := range geom {
			ci.collect(member, set)
		}
	}
}

// Points sample the cell that contains them.
func (ci *cellIndex) collectPoint(p orb.Point, set map[cell]struct{}) {
	x := locate(ci.xEdges, p.X())
	y := locate(ci.yEdges, p.Y())
	if x < 0 || y < 0 {
		return
	}
	set[cell{y: y, x: x}] = struct{}{}
}

func (ci *cellIndex) collectLine(ls orb.LineString, set map[cell]struct{}) {
	if len(ls) == 1 {
		ci.collectPoint(ls[0], set)
		return
	}
	for i := 1; i < len(ls); i++ {
		ci.collectSegment(ls[i-1], ls[i], set)
	}
}

func (ci *cellIndex) collectSegment(a, b orb.Point, set map[cell]struct{}) {
	segBound := orb.Bound{Min: a, Max: a}.Extend(b)
	ci.candidates(segBound, func(c cell) {
		if _, seen := set[c]; seen {
			return
		}
		if segmentIntersectsBound(a, b, ci.bound(c)) {
			set[c] = struct{}{}
		}
	})
}

// A polygon covers a cell when one of its ring edges crosses the cell or, for cells wholly
// inside the polygon, when the cell center lies inside it.
func (ci *cellIndex) collectPolygon(poly orb.Polygon, set map[cell]struct{}) {
	if len(poly) == 0 || len(poly[0]) == 0 {
		return
	}
	for _, ring := range poly {
		ci.collectLine(orb.LineString(ring), set)
	}
	ci.candidates(poly.Bound(), func(c cell) {
		if _, seen := set[c]; seen {
			return
		}
		if planar.PolygonContains(poly, ci.center(c)) {
			set[c] = struct{}{}
		}
	})
}

// segmentIntersectsBound clips segment ab against the closed rectangle b (Liang-Barsky).
func segmentIntersectsBound(a, b orb.Point, r orb.Bound) bool {
	dx := b.X() - a.X()
	dy := b.Y() - a.Y()
	t0, t1 := 0.0, 1.0

	clip := func(p, q float64) bool {
		if p == 0 {
			return q >= 0
		}
		t := q / p
		if p < 0 {
			if t > t1 {
				return false
			}
			if t > t0 {
				t0 = t
			}
		} else {
			if t < t0 {
				return false
			}
			if t < t1 {
				t1 = t
			}
		}
		return true
	}

	return clip(-dx, a.X()-r.Min.X()) &&
		clip(dx, r.Max.X()-a.X()) &&
		clip(-dy, a.Y()-r.Min.Y()) &&
		clip(dy, r.Max.Y()-a.Y())
}
