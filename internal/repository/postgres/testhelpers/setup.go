package testhelpers

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/config"
)

// TestDB represents a test database connection. DB is a database/sql handle for fixtures and
// assertions, Pool is the pgx pool used by the writer repositories.
type TestDB struct {
	DB     *sqlx.DB
	Pool   *pgxpool.Pool
	Config config.DatabaseConfig
	Logger *zap.Logger
}

// SetupTestDB connects to the PostGIS test database and skips the test when it is unreachable.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	port, _ := strconv.Atoi(getEnv("TEST_DB_PORT", "5433"))
	cfg := config.DatabaseConfig{
		Host:     getEnv("TEST_DB_HOST", "localhost"),
		Port:     port,
		User:     getEnv("TEST_DB_USER", "postgres"),
		Password: getEnv("TEST_DB_PASSWORD", "postgres"),
		DBName:   getEnv("TEST_DB_NAME", "climate_test"),
		SSLMode:  getEnv("TEST_DB_SSLMODE", "disable"),
		MaxConns: 10,
	}

	// Retry connection with exponential backoff to wait for DB recovery
	var db *sqlx.DB
	var err error
	maxRetries := 3
	retryDelay := 250 * time.Millisecond

	for i := 0; i < maxRetries; i++ {
		db, err = sqlx.Connect("postgres", cfg.DSN())
		if err == nil {
			break
		}

		if i < maxRetries-1 {
			t.Logf("Database not ready (attempt %d/%d), waiting %v...", i+1, maxRetries, retryDelay)
			time.Sleep(retryDelay)
			retryDelay *= 2
		}
	}

	if err != nil {
		t.Skipf("Test database not available after %d attempts: %v", maxRetries, err)
	}

	if _, err := db.Exec("CREATE EXTENSION IF NOT EXISTS postgis"); err != nil {
		db.Close()
		t.Skipf("PostGIS not available: %v", err)
	}

	var version string
	if err := db.Get(&version, "SELECT PostGIS_Version()"); err != nil {
		db.Close()
		t.Skipf("PostGIS not available: %v", err)
	}
	t.Logf("PostGIS version: %s", version)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		db.Close()
		t.Fatalf("Failed to open pgx pool: %v", err)
	}

	logger, _ := zap.NewDevelopment()
	if logger == nil {
		logger = zap.NewNop()
	}

	return &TestDB{
		DB:     db,
		Pool:   pool,
		Config: cfg,
		Logger: logger,
	}
}

// Close closes the database connections
func (tdb *TestDB) Close() {
	if tdb.Pool != nil {
		tdb.Pool.Close()
	}
	if tdb.DB != nil {
		tdb.DB.Close()
	}
}

// Cleanup removes fact rows, dimension rows and consolidated views left by earlier tests.
func (tdb *TestDB) Cleanup(ctx context.Context) error {
	tables := []string{
		"climate.scenariomip",
		"climate.scenariomip_variables",
		"climate.nasa_nex",
		"climate.nasa_nex_variables",
	}

	for _, table := range tables {
		_, err := tdb.DB.ExecContext(ctx, fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", table))
		if err != nil {
			// Ignore errors if table doesn't exist
			continue
		}
	}

	for _, view := range []string{"infrastructure", "infrastructure__next", "place", "place__next"} {
		if _, err := tdb.DB.ExecContext(ctx, fmt.Sprintf("DROP MATERIALIZED VIEW IF EXISTS osm.%s", view)); err != nil {
			return fmt.Errorf("drop view %s: %w", view, err)
		}
	}

	return nil
}

// getEnv gets environment variable or returns default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
