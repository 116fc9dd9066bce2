package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// SSP - Shared Socioeconomic Pathway code (126, 245, 370, 585). Historical runs use 0.
type SSP int

const SSPHistorical SSP = 0

// ParseSSP accepts "585", "ssp585" and "historical".
func ParseSSP(s string) (SSP, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "historical" {
		return SSPHistorical, nil
	}
	v = strings.TrimPrefix(v, "ssp")
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid ssp %q", s)
	}
	return SSP(n), nil
}

// PathSegment is the directory name used by the climate object store.
func (s SSP) PathSegment() string {
	if s == SSPHistorical {
		return "historical"
	}
	return fmt.Sprintf("ssp%d", int(s))
}

func (s SSP) String() string {
	return s.PathSegment()
}

// BucketKind distinguishes the two fact variants. They never share a batch.
type BucketKind string

const (
	// BucketDecade - climatological (month, decade) aggregates
	BucketDecade BucketKind = "decade"
	// BucketYear - per-realization (month, year) values
	BucketYear BucketKind = "year"
)

func (k BucketKind) Valid() bool {
	return k == BucketDecade || k == BucketYear
}

// TimeBucket - a (period, month) key. Period is a decade for BucketDecade and a year for BucketYear.
type TimeBucket struct {
	Kind   BucketKind `json:"kind"`
	Period int        `json:"period"`
	Month  int        `json:"month"`
}

// BucketFor returns the bucket a timestamp falls into.
func BucketFor(kind BucketKind, t time.Time) TimeBucket {
	year := t.Year()
	period := year
	if kind == BucketDecade {
		period = DecadeOf(year)
	}
	return TimeBucket{Kind: kind, Period: period, Month: int(t.Month())}
}

// DecadeOf floors a year to its decade, also for negative years.
func DecadeOf(year int) int {
	return int(math.Floor(float64(year)/10)) * 10
}

// Less orders buckets by period then month.
func (b TimeBucket) Less(o TimeBucket) bool {
	if b.Period != o.Period {
		return b.Period < o.Period
	}
	return b.Month < o.Month
}

func (b TimeBucket) String() string {
	return fmt.Sprintf("%s=%d month=%d", b.Kind, b.Period, b.Month)
}

// Grid - ascending cell center coordinates in EPSG:4326.
type Grid struct {
	Lons []float64
	Lats []float64
}

// Cells returns the number of cells of one time slice.
func (g Grid) Cells() int {
	return len(g.Lons) * len(g.Lats)
}

// SeriesRequest identifies the grid files of one scenario. Model and Member are set for the
// per-model variant only.
type SeriesRequest struct {
	Variable string
	SSP      SSP
	Model    string
	Member   string
}

// Series - a gridded climate variable over time for one scenario.
// Values are time-major: Values[(t*len(Lats)+y)*len(Lons)+x]. NaN marks a missing value.
type Series struct {
	Variable string
	Units    string
	SSP      SSP
	Model    string
	Member   string
	Grid
	Times  []time.Time
	Values []float64
	Attrs  map[string]string
}

// At returns the value at time index t, latitude index y and longitude index x.
func (s *Series) At(t, y, x int) float64 {
	return s.Values[(t*len(s.Lats)+y)*len(s.Lons)+x]
}

// Climatology - the reduced grid, one slice per bucket.
// Values are bucket-major: Values[(b*len(Lats)+y)*len(Lons)+x].
type Climatology struct {
	Variable string
	Units    string
	SSP      SSP
	Model    string
	Member   string
	Kind     BucketKind
	Method   string
	Grid
	Buckets []TimeBucket
	Values  []float64
	Attrs   map[string]string
}

// At returns the reduced value of bucket b at cell (y, x).
func (c *Climatology) At(b, y, x int) float64 {
	return c.Values[(b*len(c.Lats)+y)*len(c.Lons)+x]
}

// ValueRange returns the min and max finite values. ok is false when every value is NaN.
func (c *Climatology) ValueRange() (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range c.Values {
		if math.IsNaN(v) {
			continue
		}
		ok = true
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi, ok
}

// Statistics - zonal summary over the cells intersecting one feature.
type Statistics struct {
	Mean   float64 `json:"value_mean"`
	Median float64 `json:"value_median"`
	StdDev float64 `json:"value_stddev"`
	Min    float64 `json:"value_min"`
	Max    float64 `json:"value_max"`
	Q1     float64 `json:"value_q1"`
	Q3     float64 `json:"value_q3"`
}

// ZonalRow - one aggregated (feature, bucket) result.
type ZonalRow struct {
	OSMID     int64
	Bucket    TimeBucket
	Value     float64
	Stats     Statistics
	CellCount int
}

// ScenarioVariable - dimension row identifying a (variable, ssp) pair.
type ScenarioVariable struct {
	ID       int64                  `json:"id" db:"id"`
	Variable string                 `json:"variable" db:"variable"`
	SSP      SSP                    `json:"ssp" db:"ssp"`
	Metadata map[string]interface{} `json:"metadata"`
}

// FactBatch - everything one ETL run writes in one transaction.
type FactBatch struct {
	Kind     BucketKind
	Variable string
	SSP      SSP
	Model    string
	Member   string
	Metadata map[string]interface{}
	Rows     []ZonalRow
}

// Identity is the advisory lock key of the batch's scenario identity.
func (b *FactBatch) Identity() string {
	id := fmt.Sprintf("%s:%s:%d", b.Kind, b.Variable, int(b.SSP))
	if b.Kind == BucketYear {
		id += ":" + b.Model + ":" + b.Member
	}
	return id
}

// Validate checks the batch is internally consistent before anything is written.
func (b *FactBatch) Validate() error {
	if !b.Kind.Valid() {
		return fmt.Errorf("unknown bucket kind %q", b.Kind)
	}
	if b.Variable == "" {
		return fmt.Errorf("variable is required")
	}
	if b.Kind == BucketYear && (b.Model == "" || b.Member == "") {
		return fmt.Errorf("model and ensemble member are required for %s buckets", BucketYear)
	}
	if b.Kind == BucketDecade && (b.Model != "" || b.Member != "") {
		return fmt.Errorf("%s buckets do not carry a model or ensemble member", BucketDecade)
	}
	for i, r := range b.Rows {
		if r.Bucket.Kind != b.Kind {
			return fmt.Errorf("row %d has bucket kind %q, batch is %q", i, r.Bucket.Kind, b.Kind)
		}
		if r.Bucket.Month < 1 || r.Bucket.Month > 12 {
			return fmt.Errorf("row %d has invalid month %d", i, r.Bucket.Month)
		}
		if b.Kind == BucketDecade && r.Bucket.Period%10 != 0 {
			return fmt.Errorf("row %d has invalid decade %d", i, r.Bucket.Period)
		}
	}
	return nil
}

// LoadResult - outcome of a committed batch.
type LoadResult struct {
	VariableID   int64
	RowsUpserted int64
}
