package postgresosm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/domain"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/repository/postgres/testhelpers"
)

// setupTestDB prepares migrated tables, OSM fixtures and a consolidated infrastructure view.
// The test is skipped when the PostGIS test database is unreachable.
func setupTestDB(t *testing.T) (*DB, *testhelpers.TestDB) {
	t.Helper()

	tdb := testhelpers.SetupTestDB(t)
	t.Cleanup(tdb.Close)

	ctx := context.Background()
	require.NoError(t, tdb.ApplyMigrations())
	require.NoError(t, tdb.Cleanup(ctx))
	require.NoError(t, tdb.LoadFixtures(ctx, "osm.sql"))

	_, err := tdb.NewViewRepositoryForTest().Rebuild(ctx, domain.Category{Name: "infrastructure", HasSubtypes: true})
	require.NoError(t, err)

	return NewDBForTest(tdb.DB, tdb.Logger), tdb
}

// assertValidCoordinates checks if coordinates are valid
func assertValidCoordinates(t *testing.T, lat, lon float64) {
	t.Helper()
	if lat < -90 || lat > 90 {
		t.Errorf("Invalid latitude: %f (must be between -90 and 90)", lat)
	}
	if lon < -180 || lon > 180 {
		t.Errorf("Invalid longitude: %f (must be between -180 and 180)", lon)
	}
}
