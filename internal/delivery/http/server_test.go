package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/config"
	httpdelivery "github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/delivery/http"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/delivery/http/handler"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/domain"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/observability"
	pkgerrors "github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/pkg/errors"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/usecase/dto"
)

type MockDataService struct {
	mock.Mock
}

func (m *MockDataService) Query(ctx context.Context, req *dto.DataRequest) (*dto.DataResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.DataResponse), args.Error(1)
}

func (m *MockDataService) GetClimateMetadata(ctx context.Context, req dto.ClimateMetadataRequest) (*dto.ClimateMetadataResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.ClimateMetadataResponse), args.Error(1)
}

type MockJobService struct {
	mock.Mock
}

func (m *MockJobService) EnqueueETL(ctx context.Context, req dto.ETLJobRequest) (*dto.JobAcceptedResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.JobAcceptedResponse), args.Error(1)
}

func (m *MockJobService) EnqueueRefresh(ctx context.Context, req dto.RefreshJobRequest) (*dto.JobAcceptedResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.JobAcceptedResponse), args.Error(1)
}

type testServer struct {
	server *httpdelivery.Server
	data   *MockDataService
	jobs   *MockJobService
}

func newTestServer(t *testing.T, checks map[string]handler.HealthCheck) *testServer {
	t.Helper()
	logger := zap.NewNop()
	cfg := &config.Config{Categories: config.DefaultCategories()}

	data := new(MockDataService)
	jobs := new(MockJobService)

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetricsForTesting()
	require.NoError(t, metrics.Register(reg))

	s := httpdelivery.NewServer(cfg, logger,
		handler.NewDataHandler(data, logger),
		handler.NewJobHandler(jobs, logger),
		handler.NewHealthHandler(checks, logger),
		reg)
	return &testServer{server: s, data: data, jobs: jobs}
}

func (ts *testServer) do(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := ts.server.App().Test(req, -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(body, &env))
	return env.Error.Code
}

func TestGetData_ParsesQueryParameters(t *testing.T) {
	ts := newTestServer(t, nil)

	var got *dto.DataRequest
	ts.data.On("Query", mock.Anything, mock.AnythingOfType("*dto.DataRequest")).
		Run(func(args mock.Arguments) { got = args.Get(1).(*dto.DataRequest) }).
		Return(&dto.DataResponse{
			Body:        []byte(`{"type":"FeatureCollection","features":[]}`),
			ContentType: "application/geo+json",
			Features:    0,
		}, nil)

	q := url.Values{}
	q.Set("osm_types", "power")
	q.Set("osm_subtypes", "plant,line")
	q.Add("bbox", `{"xmin":-126,"xmax":-119,"ymin":46.1,"ymax":47.2}`)
	q.Add("bbox", `{"xmin":-118,"xmax":-117,"ymin":47,"ymax":48}`)
	q.Set("climate_variable", "tas")
	q.Set("climate_ssp", "ssp585")
	q.Set("climate_month", "6,7")
	q.Set("climate_decade", "2030,2040")
	q.Set("county", "true")
	q.Set("limit", "50")

	resp, body := ts.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/data/geojson/infrastructure?"+q.Encode(), nil))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, "application/geo+json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "MISS", resp.Header.Get("X-Cache"))
	assert.JSONEq(t, `{"type":"FeatureCollection","features":[]}`, string(body))

	require.NotNil(t, got)
	assert.Equal(t, "geojson", got.Format)
	assert.Equal(t, "infrastructure", got.Category)
	assert.Equal(t, []string{"power"}, got.OSMTypes)
	assert.Equal(t, []string{"plant", "line"}, got.OSMSubtypes)
	require.Len(t, got.BBoxes, 2)
	assert.Equal(t, domain.BoundingBox{XMin: -126, XMax: -119, YMin: 46.1, YMax: 47.2}, got.BBoxes[0])
	require.NotNil(t, got.ClimateSSP)
	assert.Equal(t, 585, *got.ClimateSSP)
	assert.Equal(t, []int{6, 7}, got.ClimateMonths)
	assert.Equal(t, []int{2030, 2040}, got.ClimateDecades)
	assert.True(t, got.County)
	assert.False(t, got.City)
	assert.Equal(t, 50, got.Limit)
}

func TestGetData_MalformedParameters(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name   string
		query  string
		status int
		code   string
	}{
		{"bbox is not json", "osm_types=power&bbox=" + url.QueryEscape("-126,46,-119,47"), http.StatusUnprocessableEntity, "INVALID_BOUNDING_BOX"},
		{"limit is not a number", "osm_types=power&limit=ten", http.StatusBadRequest, "INVALID_REQUEST"},
		{"month is not a number", "osm_types=power&climate_month=june", http.StatusBadRequest, "INVALID_REQUEST"},
		{"ssp is unknown", "osm_types=power&climate_ssp=ssp999x", http.StatusBadRequest, "INVALID_REQUEST"},
		{"county is not a bool", "osm_types=power&county=maybe", http.StatusBadRequest, "INVALID_REQUEST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := ts.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/data/json/infrastructure?"+tt.query, nil))
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.code, errorCode(t, body))
		})
	}
	ts.data.AssertNotCalled(t, "Query", mock.Anything, mock.Anything)
}

func TestGetData_UseCaseErrors(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.data.On("Query", mock.Anything, mock.Anything).
		Return(nil, pkgerrors.ErrCategoryNotFound.WithMessage("railways is not available")).Once()

	resp, body := ts.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/data/json/railways?osm_types=rail", nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "CATEGORY_NOT_FOUND", errorCode(t, body))

	ts.data.On("Query", mock.Anything, mock.Anything).Return(nil, errors.New("boom")).Once()
	resp, body = ts.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/data/json/infrastructure?osm_types=power", nil))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "INTERNAL_SERVER_ERROR", errorCode(t, body))
}

func TestGetData_PresignedURL(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.data.On("Query", mock.Anything, mock.Anything).
		Return(&dto.DataResponse{PresignedURL: "https://bucket.s3.amazonaws.com/user-downloads/x.geojson?sig=1"}, nil)

	resp, body := ts.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/data/geojson/infrastructure?osm_types=power", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"presigned_url":"https://bucket.s3.amazonaws.com/user-downloads/x.geojson?sig=1"}`, string(body))
}

func TestGetClimateMetadata(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.data.On("GetClimateMetadata", mock.Anything, dto.ClimateMetadataRequest{Variable: "tas", SSP: "585"}).
		Return(&dto.ClimateMetadataResponse{ID: 7, Variable: "tas", SSP: 585, Metadata: map[string]interface{}{"units": "K"}}, nil)
	ts.data.On("GetClimateMetadata", mock.Anything, dto.ClimateMetadataRequest{Variable: "pr", SSP: "126"}).
		Return(nil, pkgerrors.ErrMetadataNotFound)

	resp, body := ts.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/climate-metadata/tas/585", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"id":7,"variable":"tas","ssp":585,"metadata":{"units":"K"}}`, string(body))

	resp, body = ts.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/climate-metadata/pr/126", nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "METADATA_NOT_FOUND", errorCode(t, body))
}

func TestEnqueueETL(t *testing.T) {
	ts := newTestServer(t, nil)
	jobID := uuid.New()
	ts.jobs.On("EnqueueETL", mock.Anything, mock.MatchedBy(func(r dto.ETLJobRequest) bool {
		return r.Variable == "tas" && len(r.SSPs) == 2 && r.Category == "infrastructure"
	})).Return(&dto.JobAcceptedResponse{JobID: jobID, Stream: domain.StreamETLJobs, MessageID: "1-0"}, nil)

	body := `{"climate_variable":"tas","ssps":["126","585"],"osm_category":"infrastructure","osm_type":"power"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs/etl", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, respBody := ts.do(t, req)
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(respBody))

	var env struct {
		Data dto.JobAcceptedResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(respBody, &env))
	assert.Equal(t, jobID, env.Data.JobID)
	assert.Equal(t, domain.StreamETLJobs, env.Data.Stream)
}

func TestEnqueueETL_BadBody(t *testing.T) {
	ts := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs/etl", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")

	resp, body := ts.do(t, req)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_REQUEST", errorCode(t, body))
}

func TestEnqueueRefresh_EmptyBody(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.jobs.On("EnqueueRefresh", mock.Anything, dto.RefreshJobRequest{}).
		Return(&dto.JobAcceptedResponse{JobID: uuid.New(), Stream: domain.StreamViewRefresh}, nil)

	resp, _ := ts.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/jobs/refresh", nil))
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, map[string]handler.HealthCheck{
		"database": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return nil },
	})
	resp, body := ts.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"healthy","services":{"database":"healthy","redis":"healthy"}}`, string(body))

	ts = newTestServer(t, map[string]handler.HealthCheck{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	})
	resp, body = ts.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(body), `"unhealthy"`)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	resp, body := ts.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "climate_risk_")
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t, nil)
	resp, body := ts.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", errorCode(t, body))
}
