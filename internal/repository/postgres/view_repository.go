package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/domain"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/domain/repository"
	pkgerrors "github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/pkg/errors"
)

const (
	osmSchema     = "osm"
	nextSuffix    = "__next"
	refreshLockNS = "osm.refresh."
)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type viewRepository struct {
	db     *DB
	logger *zap.Logger
}

func NewViewRepository(db *DB) repository.ViewRepository {
	return &viewRepository{
		db:     db,
		logger: db.logger,
	}
}

// SourceTables returns the existing <category>_<kind> tables in geometry kind order.
func (r *viewRepository) SourceTables(ctx context.Context, category domain.Category) ([]string, error) {
	return sourceTables(ctx, r.db, category)
}

func sourceTables(ctx context.Context, q querier, category domain.Category) ([]string, error) {
	var candidates []string
	for _, kind := range category.GeometryKinds() {
		candidates = append(candidates, category.Name+"_"+kind)
	}

	rows, err := q.Query(ctx,
		`SELECT tablename FROM pg_catalog.pg_tables WHERE schemaname = $1 AND tablename = ANY($2)`,
		osmSchema, candidates)
	if err != nil {
		return nil, fmt.Errorf("list source tables: %w", err)
	}
	existing, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list source tables: %w", err)
	}

	found := make(map[string]bool, len(existing))
	for _, name := range existing {
		found[name] = true
	}
	tables := make([]string, 0, len(existing))
	for _, name := range candidates {
		if found[name] {
			tables = append(tables, name)
		}
	}
	return tables, nil
}

// Rebuild creates the next generation of the view next to the live one and swaps them at the
// end of a single transaction. Readers keep the old view until commit.
func (r *viewRepository) Rebuild(ctx context.Context, category domain.Category) (*domain.RefreshResult, error) {
	start := time.Now()

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return nil, fmt.Errorf("begin refresh of %s: %w", category.Name, err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var locked bool
	if err := tx.QueryRow(ctx, `SELECT pg_try_advisory_xact_lock(hashtext($1))`, refreshLockNS+category.Name).Scan(&locked); err != nil {
		return nil, fmt.Errorf("acquire refresh lock of %s: %w", category.Name, err)
	}
	if !locked {
		return nil, fmt.Errorf("%s: %w", category.Name, pkgerrors.ErrRefreshInProgress)
	}

	sources, err := sourceTables(ctx, tx, category)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no source tables for category %s", category.Name)
	}

	result := &domain.RefreshResult{
		Category:     category.Name,
		SourceCounts: make(map[string]int64, len(sources)),
	}
	for _, src := range sources {
		var n int64
		query := fmt.Sprintf(`SELECT count(*) FROM %s`, pgx.Identifier{osmSchema, src}.Sanitize())
		if err := tx.QueryRow(ctx, query).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", src, err)
		}
		result.SourceCounts[src] = n
	}

	for _, stmt := range rebuildStatements(category, sources) {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("rebuild %s: %w", category.Name, err)
		}
	}

	view := pgx.Identifier{osmSchema, category.Name}.Sanitize()
	if err := tx.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, view)).Scan(&result.Rows); err != nil {
		return nil, fmt.Errorf("count %s: %w", category.Name, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit refresh of %s: %w", category.Name, err)
	}

	r.logger.Info("Materialized view refreshed",
		zap.String("category", category.Name),
		zap.Strings("sources", sources),
		zap.Int64("rows", result.Rows),
		zap.Duration("duration", time.Since(start)),
	)

	return result, nil
}

// rebuildStatements returns the DDL that builds <category>__next, indexes it and swaps it in.
func rebuildStatements(category domain.Category, sources []string) []string {
	name := category.Name
	next := name + nextSuffix
	nextView := pgx.Identifier{osmSchema, next}.Sanitize()
	liveView := pgx.Identifier{osmSchema, name}.Sanitize()

	typeColumns := "osm_type"
	if category.HasSubtypes {
		typeColumns = "osm_type, osm_subtype"
	}

	selects := make([]string, 0, len(sources))
	for _, src := range sources {
		subtype := ""
		if category.HasSubtypes {
			subtype = " s.osm_subtype,"
		}
		selects = append(selects, fmt.Sprintf(
			`SELECT s.osm_id, s.osm_type,%s s.geom::geometry AS geom, ST_GeometryType(s.geom) AS geom_type, t.tags
			FROM %s s
			LEFT JOIN LATERAL (SELECT tags FROM osm.tags WHERE tags.osm_id = s.osm_id LIMIT 1) t ON true`,
			subtype, pgx.Identifier{osmSchema, src}.Sanitize()))
	}

	indexes := []struct{ suffix, def string }{
		{"_geom_idx", "USING GIST (geom)"},
		{"_osm_id_idx", "(osm_id)"},
		{"_type_idx", "(" + typeColumns + ")"},
	}

	stmts := []string{
		fmt.Sprintf(`DROP MATERIALIZED VIEW IF EXISTS %s`, nextView),
		fmt.Sprintf("CREATE MATERIALIZED VIEW %s AS\n%s", nextView, strings.Join(selects, "\nUNION ALL\n")),
	}
	for _, idx := range indexes {
		stmts = append(stmts, fmt.Sprintf(`CREATE INDEX %s ON %s %s`,
			pgx.Identifier{next + idx.suffix}.Sanitize(), nextView, idx.def))
	}

	stmts = append(stmts,
		fmt.Sprintf(`DROP MATERIALIZED VIEW IF EXISTS %s`, liveView),
		fmt.Sprintf(`ALTER MATERIALIZED VIEW %s RENAME TO %s`, nextView, pgx.Identifier{name}.Sanitize()),
	)
	for _, idx := range indexes {
		stmts = append(stmts, fmt.Sprintf(`ALTER INDEX %s RENAME TO %s`,
			pgx.Identifier{osmSchema, next + idx.suffix}.Sanitize(),
			pgx.Identifier{name + idx.suffix}.Sanitize()))
	}
	return stmts
}
