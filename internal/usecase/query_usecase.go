package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/config"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/domain"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/domain/repository"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/observability"
	pkgerrors "github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/pkg/errors"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/pkg/validator"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/usecase/dto"
)

// Cache key prefixes shared by the API and the invalidating writers
const (
	QueryCachePrefix    = "query:"
	MetadataCachePrefix = "metadata:"
)

const (
	contentTypeGeoJSON = "application/geo+json"
	contentTypeJSON    = "application/json"
	bytesPerMB         = 1024 * 1024
)

// QueryConfig - response caching and offload settings
type QueryConfig struct {
	CacheTTL         time.Duration
	MetadataCacheTTL time.Duration
	SizeLimitMB      float64
	DownloadPrefix   string
	PresignTTL       time.Duration
}

type QueryUseCase struct {
	queries    repository.QueryRepository
	metadata   repository.MetadataRepository
	store      repository.ObjectStore
	cache      repository.CacheRepository
	categories config.CategoryRegistry
	metrics    *observability.Metrics
	clock      clockwork.Clock
	cfg        QueryConfig
	logger     *zap.Logger
}

// NewQueryUseCase wires the data and metadata queries. store and cache may be nil.
func NewQueryUseCase(
	queries repository.QueryRepository,
	metadata repository.MetadataRepository,
	store repository.ObjectStore,
	cache repository.CacheRepository,
	categories config.CategoryRegistry,
	metrics *observability.Metrics,
	clock clockwork.Clock,
	cfg QueryConfig,
	logger *zap.Logger,
) *QueryUseCase {
	return &QueryUseCase{
		queries:    queries,
		metadata:   metadata,
		store:      store,
		cache:      cache,
		categories: categories,
		metrics:    metrics,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}
}

// Query validates the request, runs it against the consolidated view and serializes the result.
// Bodies above the size limit are uploaded and answered with a presigned URL.
func (uc *QueryUseCase) Query(ctx context.Context, req *dto.DataRequest) (*dto.DataResponse, error) {
	start := uc.clock.Now()

	q, err := uc.buildQuery(req)
	if err != nil {
		return nil, err
	}

	key := queryCacheKey(req)
	if body := uc.cached(ctx, key); body != nil {
		uc.metrics.QueryCache.WithLabelValues("hit").Inc()
		uc.metrics.QueryRequests.WithLabelValues(req.Category, req.Format, "ok").Inc()
		return &dto.DataResponse{Body: body, ContentType: contentType(req.Format), Cached: true}, nil
	}
	if uc.cache != nil {
		uc.metrics.QueryCache.WithLabelValues("miss").Inc()
	}

	records, err := uc.queries.QueryFeatures(ctx, q)
	if err != nil {
		uc.metrics.QueryRequests.WithLabelValues(req.Category, req.Format, "error").Inc()
		return nil, err
	}
	uc.metrics.QueryRows.Observe(float64(len(records)))

	resp := &dto.DataResponse{ContentType: contentType(req.Format), Rows: len(records)}
	switch req.Format {
	case dto.FormatGeoJSON:
		fc := CondenseFeatures(records, q)
		resp.Features = len(fc.Features)
		resp.Body, err = json.Marshal(fc)
	default:
		rows := FlattenRecords(records)
		resp.Features = countFeatures(records)
		resp.Body, err = json.Marshal(dto.DataRowsResponse{Rows: rows, Total: len(rows)})
	}
	if err != nil {
		uc.logger.Error("Failed to serialize query result", zap.Error(err))
		return nil, pkgerrors.ErrInternalServer
	}

	if uc.oversized(resp.Body) {
		url, err := uc.offload(ctx, req.Format, resp.Body)
		if err != nil {
			uc.metrics.QueryRequests.WithLabelValues(req.Category, req.Format, "error").Inc()
			return nil, err
		}
		uc.metrics.QueryRequests.WithLabelValues(req.Category, req.Format, "offloaded").Inc()
		return &dto.DataResponse{PresignedURL: url, Rows: resp.Rows, Features: resp.Features}, nil
	}

	if uc.cache != nil {
		if err := uc.cache.Set(ctx, key, resp.Body, uc.cfg.CacheTTL); err != nil {
			uc.logger.Warn("Failed to cache query result", zap.Error(err))
		}
	}

	uc.metrics.QueryRequests.WithLabelValues(req.Category, req.Format, "ok").Inc()
	uc.metrics.QueryDuration.WithLabelValues(req.Category).Observe(uc.clock.Since(start).Seconds())
	return resp, nil
}

func (uc *QueryUseCase) buildQuery(req *dto.DataRequest) (*domain.DataQuery, error) {
	if req.Format != dto.FormatGeoJSON && req.Format != dto.FormatJSON {
		return nil, pkgerrors.ErrUnsupportedFormat.WithDetails(map[string]interface{}{"format": req.Format})
	}

	category, ok := uc.categories.Get(req.Category)
	if !ok {
		return nil, pkgerrors.ErrCategoryNotFound.WithDetails(map[string]interface{}{
			"category":  req.Category,
			"available": uc.categories.Names(),
		})
	}

	for _, b := range req.BBoxes {
		if err := b.Validate(); err != nil {
			return nil, pkgerrors.ErrInvalidBoundingBox.WithDetails(map[string]interface{}{"reason": err.Error()})
		}
	}

	if req.HasClimate() && !req.ClimateComplete() {
		return nil, pkgerrors.ErrIncompleteClimateFilter
	}
	for _, d := range req.ClimateDecades {
		if d%10 != 0 {
			return nil, pkgerrors.ErrInvalidRequest.WithMessage("climate_decade values must be decades such as 2030")
		}
	}

	if err := validator.Validate(req); err != nil {
		return nil, pkgerrors.ErrInvalidRequest.WithDetails(validator.Details(err))
	}

	q := &domain.DataQuery{
		Category:    category.Name,
		HasSubtypes: category.HasSubtypes,
		OSMTypes:    req.OSMTypes,
		BBoxes:      req.BBoxes,
		EPSG:        req.EPSG,
		GeomType:    req.GeomType,
		County:      req.County,
		City:        req.City,
		Limit:       req.Limit,
	}
	if category.HasSubtypes {
		q.OSMSubtypes = req.OSMSubtypes
	}
	if req.ClimateComplete() {
		q.Climate = &domain.ClimateFilter{
			Variable: req.ClimateVariable,
			SSP:      domain.SSP(*req.ClimateSSP),
			Months:   req.ClimateMonths,
			Decades:  req.ClimateDecades,
		}
	}
	return q, nil
}

func (uc *QueryUseCase) cached(ctx context.Context, key string) []byte {
	if uc.cache == nil {
		return nil
	}
	body, err := uc.cache.Get(ctx, key)
	if err != nil {
		uc.logger.Warn("Query cache unavailable", zap.Error(err))
		return nil
	}
	return body
}

func (uc *QueryUseCase) oversized(body []byte) bool {
	if uc.cfg.SizeLimitMB <= 0 {
		return false
	}
	return float64(len(body))/bytesPerMB > uc.cfg.SizeLimitMB
}

func (uc *QueryUseCase) offload(ctx context.Context, format string, body []byte) (string, error) {
	if uc.store == nil {
		uc.logger.Error("Response exceeds the size limit and no object store is configured",
			zap.Int("bytes", len(body)))
		return "", pkgerrors.ErrStorageError
	}

	key := uc.cfg.DownloadPrefix + uuid.New().String() + "." + format
	if err := uc.store.Put(ctx, key, body, contentType(format)); err != nil {
		uc.logger.Error("Failed to upload oversized response", zap.String("key", key), zap.Error(err))
		return "", pkgerrors.ErrStorageError
	}
	url, err := uc.store.PresignGet(ctx, key, uc.cfg.PresignTTL)
	if err != nil {
		uc.logger.Error("Failed to presign download", zap.String("key", key), zap.Error(err))
		return "", pkgerrors.ErrStorageError
	}

	uc.logger.Info("Oversized response offloaded", zap.String("key", key), zap.Int("bytes", len(body)))
	return url, nil
}

// GetClimateMetadata returns the dimension row of (variable, ssp). kind defaults to decade.
func (uc *QueryUseCase) GetClimateMetadata(ctx context.Context, req dto.ClimateMetadataRequest) (*dto.ClimateMetadataResponse, error) {
	if err := validator.Validate(req); err != nil {
		return nil, pkgerrors.ErrInvalidRequest.WithDetails(validator.Details(err))
	}
	ssp, err := domain.ParseSSP(req.SSP)
	if err != nil {
		return nil, pkgerrors.ErrInvalidRequest.WithMessage(err.Error())
	}
	kind := domain.BucketDecade
	if req.Kind != "" {
		kind = domain.BucketKind(req.Kind)
	}

	key := MetadataCachePrefix + req.Variable + ":" + ssp.PathSegment() + ":" + string(kind)
	if body := uc.cached(ctx, key); body != nil {
		var resp dto.ClimateMetadataResponse
		if err := json.Unmarshal(body, &resp); err == nil {
			return &resp, nil
		}
	}

	sv, err := uc.metadata.GetScenarioVariable(ctx, kind, req.Variable, ssp)
	if err != nil {
		return nil, err
	}
	if sv == nil {
		return nil, pkgerrors.ErrMetadataNotFound.WithDetails(map[string]interface{}{
			"variable": req.Variable,
			"ssp":      ssp.PathSegment(),
		})
	}

	resp := &dto.ClimateMetadataResponse{
		ID:       sv.ID,
		Variable: sv.Variable,
		SSP:      int(sv.SSP),
		Metadata: sv.Metadata,
	}
	if uc.cache != nil {
		if body, err := json.Marshal(resp); err == nil {
			if err := uc.cache.Set(ctx, key, body, uc.cfg.MetadataCacheTTL); err != nil {
				uc.logger.Warn("Failed to cache metadata", zap.Error(err))
			}
		}
	}
	return resp, nil
}

// CondenseFeatures folds the rows of each osm_id into one GeoJSON feature. Climate buckets are
// listed in row order; county and city names are de-duplicated.
func CondenseFeatures(records []domain.FeatureRecord, q *domain.DataQuery) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	byID := make(map[int64]*geojson.Feature, len(records))
	exposures := make(map[int64]*dto.ClimateExposures)

	for _, rec := range records {
		f, seen := byID[rec.OSMID]
		if !seen {
			f = geojson.NewFeature(rec.Geometry)
			f.ID = rec.OSMID
			f.Properties["osm_id"] = rec.OSMID
			f.Properties["osm_type"] = rec.OSMType
			f.Properties["osm_subtype"] = rec.OSMSubtype
			f.Properties["tags"] = rec.Tags
			f.Properties["longitude"] = rec.Longitude
			f.Properties["latitude"] = rec.Latitude
			if q.County {
				f.Properties["county"] = []string{}
			}
			if q.City {
				f.Properties["city"] = []string{}
			}
			if q.Climate != nil {
				ce := &dto.ClimateExposures{
					Variable:  q.Climate.Variable,
					SSP:       int(q.Climate.SSP),
					Months:    []int{},
					Decades:   []int{},
					Exposures: []*float64{},
				}
				exposures[rec.OSMID] = ce
				f.Properties["climate"] = ce
			}
			byID[rec.OSMID] = f
			fc.Append(f)
		}

		if ce := exposures[rec.OSMID]; ce != nil && rec.Climate != nil {
			ce.Months = append(ce.Months, rec.Climate.Month)
			ce.Decades = append(ce.Decades, rec.Climate.Decade)
			ce.Exposures = append(ce.Exposures, rec.Climate.Value)
		}
		if q.County && rec.County != nil {
			f.Properties["county"] = appendUnique(f.Properties["county"].([]string), *rec.County)
		}
		if q.City && rec.City != nil {
			f.Properties["city"] = appendUnique(f.Properties["city"].([]string), *rec.City)
		}
	}
	return fc
}

// FlattenRecords renders one row per record, as returned by the database.
func FlattenRecords(records []domain.FeatureRecord) []dto.DataRow {
	rows := make([]dto.DataRow, 0, len(records))
	for _, rec := range records {
		row := dto.DataRow{
			OSMID:       rec.OSMID,
			OSMType:     rec.OSMType,
			OSMSubtype:  rec.OSMSubtype,
			Tags:        rec.Tags,
			GeometryWKT: rec.GeometryWKT,
			Longitude:   rec.Longitude,
			Latitude:    rec.Latitude,
			County:      rec.County,
			City:        rec.City,
		}
		if c := rec.Climate; c != nil {
			variable, ssp, month, decade := c.Variable, c.SSP, c.Month, c.Decade
			row.ClimateVariable = &variable
			row.ClimateSSP = &ssp
			row.ClimateMonth = &month
			row.ClimateDecade = &decade
			row.ClimateExposure = c.Value
		}
		rows = append(rows, row)
	}
	return rows
}

func countFeatures(records []domain.FeatureRecord) int {
	seen := make(map[int64]struct{}, len(records))
	for _, r := range records {
		seen[r.OSMID] = struct{}{}
	}
	return len(seen)
}

func appendUnique(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}

func contentType(format string) string {
	if format == dto.FormatGeoJSON {
		return contentTypeGeoJSON
	}
	return contentTypeJSON
}

// queryCacheKey hashes the normalized request; the category stays readable for debugging.
func queryCacheKey(req *dto.DataRequest) string {
	data, err := json.Marshal(req)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return QueryCachePrefix + strings.ToLower(req.Category) + ":" + hex.EncodeToString(sum[:])
}

// IsClientError reports whether err should be answered with a 4xx status.
func IsClientError(err error) bool {
	var appErr *pkgerrors.AppError
	return errors.As(err, &appErr) && appErr.StatusCode >= 400 && appErr.StatusCode < 500
}
