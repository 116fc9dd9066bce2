package testhelpers

import (
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/migrations"
)

// ApplyMigrations brings the test database to the latest schema version.
func (tdb *TestDB) ApplyMigrations() error {
	return migrations.Up(tdb.Config.MigrationURL(), tdb.Logger)
}
