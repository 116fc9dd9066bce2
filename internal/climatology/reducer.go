// Package climatology reduces gridded climate time series into per-cell bucket means.
package climatology

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/domain"
	"go.uber.org/zap"
)

// Reduction methods
const (
	MethodDecadeMonth = "decade_month"
	MethodYearMonth   = "year_month"
)

var (
	ErrEmptySeries   = errors.New("climatology: series has no data")
	ErrEmptyBucket   = errors.New("climatology: requested bucket has no timestamps")
	ErrUnknownMethod = errors.New("climatology: unknown reduction method")
)

// EmptyBucketError is returned when a requested bucket has no timestamp at all.
type EmptyBucketError struct {
	Bucket domain.TimeBucket
}

func (e *EmptyBucketError) Error() string {
	return fmt.Sprintf("climatology: no timestamps for requested bucket %s", e.Bucket)
}

func (e *EmptyBucketError) Is(target error) bool {
	return target == ErrEmptyBucket
}

// Options control one reduction.
type Options struct {
	Method string

	// Buckets, when set, are the buckets the caller needs. Each must contain at least one timestamp.
	Buckets []domain.TimeBucket

	// Periods and Months restrict which timestamps are reduced. Periods are decades or years
	// depending on Method.
	Periods []int
	Months  []int

	// ConvertLon360 maps a 0..360 longitude axis to -180..180 before reducing.
	ConvertLon360 bool

	// BBox crops the grid after longitude normalization.
	BBox *domain.BoundingBox
}

// KindOf returns the bucket kind produced by a reduction method.
func KindOf(method string) (domain.BucketKind, error) {
	switch method {
	case MethodDecadeMonth:
		return domain.BucketDecade, nil
	case MethodYearMonth:
		return domain.BucketYear, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
}

// Reducer computes bucket means per grid cell.
type Reducer struct {
	logger *zap.Logger
}

func NewReducer(logger *zap.Logger) *Reducer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reducer{logger: logger}
}

// Reduce partitions the series timestamps into buckets and averages each cell over the
// timestamps of its bucket. NaN values are skipped; a cell without any finite value stays NaN.
func (r *Reducer) Reduce(series *domain.Series, opts Options) (*domain.Climatology, error) {
	kind, err := KindOf(opts.Method)
	if err != nil {
		return nil, err
	}
	if err := validateSeries(series); err != nil {
		return nil, err
	}

	s := series
	if opts.ConvertLon360 {
		s = NormalizeLongitudes(s)
	}
	if opts.BBox != nil {
		if s, err = Subset(s, *opts.BBox); err != nil {
			return nil, err
		}
	}

	groups := make(map[domain.TimeBucket][]int)
	periods := intSet(opts.Periods)
	months := intSet(opts.Months)
	for i, t := range s.Times {
		b := domain.BucketFor(kind, t)
		if periods != nil && !periods[b.Period] {
			continue
		}
		if months != nil && !months[b.Month] {
			continue
		}
		groups[b] = append(groups[b], i)
	}

	buckets, err := selectBuckets(kind, groups, opts.Buckets)
	if err != nil {
		return nil, err
	}

	cells := s.Cells()
	values := make([]float64, len(buckets)*cells)
	sums := make([]float64, cells)
	counts := make([]int, cells)

	for bi, b := range buckets {
		for c := range sums {
			sums[c], counts[c] = 0, 0
		}
		for _, ti := range groups[b] {
			slice := s.Values[ti*cells : (ti+1)*cells]
			for c, v := range slice {
				if math.IsNaN(v) {
					continue
				}
				sums[c] += v
				counts[c]++
			}
		}
		out := values[bi*cells : (bi+1)*cells]
		for c := range out {
			if counts[c] == 0 {
				out[c] = math.NaN()
				continue
			}
			out[c] = sums[c] / float64(counts[c])
		}
	}

	r.logger.Debug("Climatology reduced",
		zap.String("variable", s.Variable),
		zap.Stringer("ssp", s.SSP),
		zap.String("method", opts.Method),
		zap.Int("timestamps", len(s.Times)),
		zap.Int("buckets", len(buckets)),
		zap.Int("cells", cells))

	return &domain.Climatology{
		Variable: s.Variable,
		Units:    s.Units,
		SSP:      s.SSP,
		Model:    s.Model,
		Member:   s.Member,
		Kind:     kind,
		Method:   opts.Method,
		Grid:     s.Grid,
		Buckets:  buckets,
		Values:   values,
		Attrs:    s.Attrs,
	}, nil
}

func selectBuckets(kind domain.BucketKind, groups map[domain.TimeBucket][]int, requested []domain.TimeBucket) ([]domain.TimeBucket, error) {
	var buckets []domain.TimeBucket

	if len(requested) > 0 {
		seen := make(map[domain.TimeBucket]bool, len(requested))
		for _, b := range requested {
			b.Kind = kind
			if seen[b] {
				continue
			}
			seen[b] = true
			if len(groups[b]) == 0 {
				return nil, &EmptyBucketError{Bucket: b}
			}
			buckets = append(buckets, b)
		}
	} else {
		for b := range groups {
			buckets = append(buckets, b)
		}
	}

	if len(buckets) == 0 {
		return nil, fmt.Errorf("%w: no timestamps match the period and month filters", ErrEmptySeries)
	}

	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Less(buckets[j]) })
	return buckets, nil
}

func validateSeries(s *domain.Series) error {
	if s == nil || len(s.Times) == 0 || s.Cells() == 0 {
		return ErrEmptySeries
	}
	if want := len(s.Times) * s.Cells(); len(s.Values) != want {
		return fmt.Errorf("climatology: series has %d values, want %d", len(s.Values), want)
	}
	if !ascending(s.Lats) {
		return fmt.Errorf("climatology: latitudes must be strictly ascending")
	}
	if !ascending(s.Lons) {
		return fmt.Errorf("climatology: longitudes must be strictly ascending")
	}
	return nil
}

func ascending(xs []float64) bool {
	for i := 1; i < len(xs); i++ {
		if !(xs[i] > xs[i-1]) {
			return false
		}
	}
	return true
}

func intSet(xs []int) map[int]bool {
	if len(xs) == 0 {
		return nil
	}
	set := make(map[int]bool, len(xs))
	for _, x := range xs {
		set[x] = true
	}
	return set
}
