package postgres

import (
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/domain"
)

func TestUpsertSQL_DecadeTable(t *testing.T) {
	sql := upsertSQL(factTables[domain.BucketDecade])

	assert.Contains(t, sql, "INSERT INTO climate.scenariomip (osm_id, month, decade, variable_id, value,")
	assert.Contains(t, sql, "SELECT osm_id, month, period, $1::integer, value,")
	assert.Contains(t, sql, "ON CONFLICT (osm_id, month, decade, variable_id) DO UPDATE SET value = EXCLUDED.value")
	assert.Contains(t, sql, "updated_at = now()")
	assert.NotContains(t, sql, "$2")
}

func TestUpsertSQL_YearTable(t *testing.T) {
	table := factTables[domain.BucketYear]
	sql := upsertSQL(table)

	assert.Contains(t, sql, "INSERT INTO climate.nasa_nex (osm_id, month, year, variable_id, model, ensemble_member, value,")
	assert.Contains(t, sql, "$1::integer, $2::text, $3::text")
	assert.Contains(t, sql, "ON CONFLICT (osm_id, month, year, variable_id, model, ensemble_member)")

	args := upsertArgs(table, 7, &domain.FactBatch{Model: "ACCESS-CM2", Member: "r1i1p1f1"})
	assert.Equal(t, []any{int64(7), "ACCESS-CM2", "r1i1p1f1"}, args)
}

func TestSplitMetadata(t *testing.T) {
	batch := &domain.FactBatch{
		Kind:   domain.BucketYear,
		Model:  "ACCESS-CM2",
		Member: "r1i1p1f1",
		Metadata: map[string]interface{}{
			"units":           "K",
			"model":           "ACCESS-CM2",
			"ensemble_member": "r1i1p1f1",
			"run_id":          "run-1",
			"value_min":       1.5,
		},
	}

	base, key, run := splitMetadata(factTables[domain.BucketYear], batch)
	assert.Equal(t, "ACCESS-CM2/r1i1p1f1", key)
	assert.Equal(t, map[string]interface{}{"units": "K", "runs": map[string]interface{}{}}, base)
	assert.Equal(t, "run-1", run["run_id"])
	assert.Equal(t, 1.5, run["value_min"])
	assert.Contains(t, batch.Metadata, "run_id", "batch metadata is left untouched")

	batch.Kind = domain.BucketDecade
	base, key, run = splitMetadata(factTables[domain.BucketDecade], batch)
	assert.Empty(t, key)
	assert.Nil(t, run)
	assert.Equal(t, "run-1", base["run_id"])

	base, _, _ = splitMetadata(factTables[domain.BucketDecade], &domain.FactBatch{})
	assert.Empty(t, base)
}

func TestRecordRunSQL(t *testing.T) {
	sql := recordRunSQL(factTables[domain.BucketYear])
	assert.Contains(t, sql, "UPDATE climate.nasa_nex_variables")
	assert.Contains(t, sql, "jsonb_set(metadata, '{runs}'")
	assert.NotContains(t, sql, "SET metadata = $")
}

func TestRebuildStatements(t *testing.T) {
	category := domain.Category{Name: "infrastructure", HasSubtypes: true}
	stmts := rebuildStatements(category, []string{"infrastructure_point", "infrastructure_line"})

	joined := strings.Join(stmts, ";\n")
	assert.True(t, strings.HasPrefix(stmts[0], `DROP MATERIALIZED VIEW IF EXISTS "osm"."infrastructure__next"`))
	assert.Contains(t, stmts[1], `CREATE MATERIALIZED VIEW "osm"."infrastructure__next" AS`)
	assert.Equal(t, 1, strings.Count(stmts[1], "UNION ALL"))
	assert.Contains(t, stmts[1], `FROM "osm"."infrastructure_point" s`)
	assert.Contains(t, stmts[1], "s.osm_subtype,")
	assert.Contains(t, stmts[1], "ST_GeometryType(s.geom) AS geom_type")
	assert.Contains(t, joined, `USING GIST (geom)`)
	assert.Contains(t, joined, `(osm_type, osm_subtype)`)

	// the live view is dropped only after the next generation is complete
	dropLive := indexOf(stmts, `DROP MATERIALIZED VIEW IF EXISTS "osm"."infrastructure"`)
	createIdx := indexOf(stmts, `CREATE INDEX "infrastructure__next_type_idx"`)
	assert.Greater(t, dropLive, createIdx)
	assert.Contains(t, joined, `ALTER MATERIALIZED VIEW "osm"."infrastructure__next" RENAME TO "infrastructure"`)
	assert.Contains(t, joined, `ALTER INDEX "osm"."infrastructure__next_geom_idx" RENAME TO "infrastructure_geom_idx"`)
}

func TestRebuildStatements_NoSubtypes(t *testing.T) {
	stmts := rebuildStatements(domain.Category{Name: "place"}, []string{"place_polygon"})

	assert.NotContains(t, stmts[1], "osm_subtype")
	assert.NotContains(t, stmts[1], "UNION ALL")
	assert.Contains(t, strings.Join(stmts, "\n"), `"place__next_type_idx" ON "osm"."place__next" (osm_type)`)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, isRetryable(&pgconn.PgError{Code: "40P01"}))
	assert.True(t, isRetryable(&pgconn.PgError{Code: "08006"}))
	assert.False(t, isRetryable(&pgconn.PgError{Code: "23514"}))
	assert.False(t, isRetryable(&pgconn.PgError{Code: "42P01"}))
	assert.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
}

func indexOf(stmts []string, prefix string) int {
	for i, s := range stmts {
		if strings.HasPrefix(s, prefix) {
			return i
		}
	}
	return -1
}
