package testhelpers

import (
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/domain/repository"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/repository/postgres"
)

// NewDBForTest creates a postgres.DB over the test pool
func (tdb *TestDB) NewDBForTest() *postgres.DB {
	return postgres.NewDBForTest(tdb.Pool, tdb.Logger)
}

// NewFactRepositoryForTest creates a fact repository with the test database and logger
func (tdb *TestDB) NewFactRepositoryForTest() repository.FactRepository {
	return postgres.NewFactRepository(tdb.NewDBForTest())
}

// NewViewRepositoryForTest creates a view repository with the test database and logger
func (tdb *TestDB) NewViewRepositoryForTest() repository.ViewRepository {
	return postgres.NewViewRepository(tdb.NewDBForTest())
}
