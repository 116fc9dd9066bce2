package climatology

import (
	"fmt"
	"math"
	"sort"

	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/domain"
)

// WrapLongitude maps any longitude into [-180, 180).
func WrapLongitude(x float64) float64 {
	return math.Mod(math.Mod(x+180, 360)+360, 360) - 180
}

// NormalizeLongitudes returns a copy of s whose longitude axis is converted from the 0..360
// convention to -180..180 and re-sorted. Values move with their column.
func NormalizeLongitudes(s *domain.Series) *domain.Series {
	nx := len(s.Lons)
	order := make([]int, nx)
	wrapped := make([]float64, nx)
	for i, x := range s.Lons {
		order[i] = i
		wrapped[i] = WrapLongitude(x)
	}
	sort.SliceStable(order, func(a, b int) bool { return wrapped[order[a]] < wrapped[order[b]] })

	lons := make([]float64, nx)
	for i, src := range order {
		lons[i] = wrapped[src]
	}

	out := *s
	out.Grid = domain.Grid{Lons: lons, Lats: s.Lats}
	out.Values = make([]float64, len(s.Values))
	rows := len(s.Values) / nx
	for r := 0; r < rows; r++ {
		base := r * nx
		for i, src := range order {
			out.Values[base+i] = s.Values[base+src]
		}
	}
	return &out
}

// Subset returns a copy of s restricted to the cells whose centers fall inside bbox.
func Subset(s *domain.Series, bbox domain.BoundingBox) (*domain.Series, error) {
	xs := indexRange(s.Lons, bbox.XMin, bbox.XMax)
	ys := indexRange(s.Lats, bbox.YMin, bbox.YMax)
	if len(xs) == 0 || len(ys) == 0 {
		return nil, fmt.Errorf("%w: bounding box %s excludes every cell", ErrEmptySeries, bbox.WKT())
	}

	out := *s
	out.Grid = domain.Grid{Lons: pick(s.Lons, xs), Lats: pick(s.Lats, ys)}
	out.Values = make([]float64, 0, len(s.Times)*len(xs)*len(ys))
	for t := range s.Times {
		for _, y := range ys {
			for _, x := range xs {
				out.Values = append(out.Values, s.At(t, y, x))
			}
		}
	}
	return &out, nil
}

func indexRange(axis []float64, lo, hi float64) []int {
	var idx []int
	for i, v := range axis {
		if v >= lo && v <= hi {
			idx = append(idx, i)
		}
	}
	return idx
}

func pick(axis []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = axis[j]
	}
	return out
}
