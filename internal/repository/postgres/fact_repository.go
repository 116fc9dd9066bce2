package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/domain"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/domain/repository"
	pkgerrors "github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/pkg/errors"
)

const stageTable = "fact_stage"

// factTable describes where one bucket kind is stored.
type factTable struct {
	dimension    string
	fact         string
	periodColumn string
	perModel     bool
}

var factTables = map[domain.BucketKind]factTable{
	domain.BucketDecade: {
		dimension:    "climate.scenariomip_variables",
		fact:         "climate.scenariomip",
		periodColumn: "decade",
	},
	domain.BucketYear: {
		dimension:    "climate.nasa_nex_variables",
		fact:         "climate.nasa_nex",
		periodColumn: "year",
		perModel:     true,
	},
}

func (t factTable) keyColumns() []string {
	cols := []string{"osm_id", "month", t.periodColumn, "variable_id"}
	if t.perModel {
		cols = append(cols, "model", "ensemble_member")
	}
	return cols
}

var statColumns = []string{
	"value", "value_mean", "value_median", "value_stddev",
	"value_min", "value_max", "value_q1", "value_q3", "cell_count",
}

var stageColumns = append([]string{"osm_id", "month", "period"}, statColumns...)

type factRepository struct {
	db     *DB
	logger *zap.Logger
}

func NewFactRepository(db *DB) repository.FactRepository {
	return &factRepository{
		db:     db,
		logger: db.logger,
	}
}

func (r *factRepository) Load(ctx context.Context, batch *domain.FactBatch) (*domain.LoadResult, error) {
	if err := batch.Validate(); err != nil {
		return nil, r.batchError(batch, err, false)
	}
	table := factTables[batch.Kind]

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, r.batchError(batch, fmt.Errorf("begin transaction: %w", err), true)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	// Serializes writers of the same scenario identity until commit.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, batch.Identity()); err != nil {
		return nil, r.loadError(batch, fmt.Errorf("acquire identity lock: %w", err))
	}

	variableID, err := r.resolveVariable(ctx, tx, table, batch)
	if err != nil {
		return nil, r.loadError(batch, err)
	}

	if err := r.stageRows(ctx, tx, batch.Rows); err != nil {
		return nil, r.loadError(batch, err)
	}

	tag, err := tx.Exec(ctx, upsertSQL(table), upsertArgs(table, variableID, batch)...)
	if err != nil {
		return nil, r.loadError(batch, fmt.Errorf("upsert facts: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, r.loadError(batch, fmt.Errorf("commit: %w", err))
	}

	r.logger.Info("Fact batch loaded",
		zap.String("identity", batch.Identity()),
		zap.Int64("variable_id", variableID),
		zap.Int("rows", len(batch.Rows)),
		zap.Int64("upserted", tag.RowsAffected()),
	)

	return &domain.LoadResult{
		VariableID:   variableID,
		RowsUpserted: tag.RowsAffected(),
	}, nil
}

// runKeys are metadata entries that describe one realization rather than the (variable, ssp)
// pair. Per-model dimension rows keep them under runs.<model>/<member>.
var runKeys = []string{"model", "ensemble_member", "run_id", "processed_at", "value_min", "value_max"}

// splitMetadata separates the insert-time document from the per-run provenance entry.
// runKey is empty for tables that hold a single realization.
func splitMetadata(table factTable, batch *domain.FactBatch) (base map[string]interface{}, runKey string, run map[string]interface{}) {
	base = make(map[string]interface{}, len(batch.Metadata)+1)
	for k, v := range batch.Metadata {
		base[k] = v
	}
	if !table.perModel {
		return base, "", nil
	}

	run = map[string]interface{}{}
	for _, k := range runKeys {
		if v, ok := base[k]; ok {
			run[k] = v
			delete(base, k)
		}
	}
	base["runs"] = map[string]interface{}{}
	return base, batch.Model + "/" + batch.Member, run
}

// resolveVariable returns the dimension id of (variable, ssp), creating the row when absent.
// A concurrent writer may insert the same row first; the lookup then wins. The document written
// at insert is never replaced; per-model tables only gain a runs entry.
func (r *factRepository) resolveVariable(ctx context.Context, tx pgx.Tx, table factTable, batch *domain.FactBatch) (int64, error) {
	base, runKey, run := splitMetadata(table, batch)
	metadata, err := json.Marshal(base)
	if err != nil {
		return 0, fmt.Errorf("encode metadata: %w", err)
	}

	id, found, err := lookupVariable(ctx, tx, table, batch)
	if err != nil {
		return 0, err
	}

	if !found {
		id, found, err = insertVariable(ctx, tx, table, batch, metadata)
		if err != nil {
			return 0, err
		}
		if !found {
			id, found, err = lookupVariable(ctx, tx, table, batch)
			if err != nil {
				return 0, err
			}
			if !found {
				return 0, fmt.Errorf("dimension row for %s ssp=%d vanished", batch.Variable, int(batch.SSP))
			}
		}
	}

	if runKey == "" {
		return id, nil
	}
	runJSON, err := json.Marshal(run)
	if err != nil {
		return 0, fmt.Errorf("encode run metadata: %w", err)
	}
	if _, err := tx.Exec(ctx, recordRunSQL(table), id, runKey, runJSON); err != nil {
		return 0, fmt.Errorf("record run metadata: %w", err)
	}
	return id, nil
}

func recordRunSQL(table factTable) string {
	return fmt.Sprintf(`
		UPDATE %s
		SET metadata = jsonb_set(metadata, '{runs}',
			COALESCE(metadata->'runs', '{}'::jsonb) || jsonb_build_object($2::text, $3::jsonb)),
			updated_at = now()
		WHERE id = $1`, table.dimension)
}

func lookupVariable(ctx context.Context, tx pgx.Tx, table factTable, batch *domain.FactBatch) (int64, bool, error) {
	var id int64
	query := fmt.Sprintf(`SELECT id FROM %s WHERE variable = $1 AND ssp = $2`, table.dimension)
	err := tx.QueryRow(ctx, query, batch.Variable, int(batch.SSP)).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lookup dimension: %w", err)
	}
	return id, true, nil
}

// insertVariable runs inside a savepoint so a unique violation does not abort the batch.
func insertVariable(ctx context.Context, tx pgx.Tx, table factTable, batch *domain.FactBatch, metadata []byte) (int64, bool, error) {
	sp, err := tx.Begin(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("savepoint: %w", err)
	}

	var id int64
	query := fmt.Sprintf(`
		INSERT INTO %s (variable, ssp, metadata)
		VALUES ($1, $2, $3)
		ON CONFLICT (variable, ssp) DO NOTHING
		RETURNING id`, table.dimension)
	err = sp.QueryRow(ctx, query, batch.Variable, int(batch.SSP), metadata).Scan(&id)

	switch {
	case err == nil:
		if err := sp.Commit(ctx); err != nil {
			return 0, false, fmt.Errorf("release savepoint: %w", err)
		}
		return id, true, nil
	case errors.Is(err, pgx.ErrNoRows) || isUniqueViolation(err):
		if rbErr := sp.Rollback(ctx); rbErr != nil {
			return 0, false, fmt.Errorf("rollback savepoint: %w", rbErr)
		}
		return 0, false, nil
	default:
		_ = sp.Rollback(ctx)
		return 0, false, fmt.Errorf("insert dimension: %w", err)
	}
}

func (r *factRepository) stageRows(ctx context.Context, tx pgx.Tx, rows []domain.ZonalRow) error {
	create := fmt.Sprintf(`
		CREATE TEMP TABLE %s (
			osm_id       BIGINT,
			month        INTEGER,
			period       INTEGER,
			value        DOUBLE PRECISION,
			value_mean   DOUBLE PRECISION,
			value_median DOUBLE PRECISION,
			value_stddev DOUBLE PRECISION,
			value_min    DOUBLE PRECISION,
			value_max    DOUBLE PRECISION,
			value_q1     DOUBLE PRECISION,
			value_q3     DOUBLE PRECISION,
			cell_count   INTEGER
		) ON COMMIT DROP`, stageTable)
	if _, err := tx.Exec(ctx, create); err != nil {
		return fmt.Errorf("create stage table: %w", err)
	}

	copied, err := tx.CopyFrom(ctx, pgx.Identifier{stageTable}, stageColumns, pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
		row := rows[i]
		return []any{
			row.OSMID,
			int32(row.Bucket.Month),
			int32(row.Bucket.Period),
			row.Value,
			row.Stats.Mean,
			row.Stats.Median,
			row.Stats.StdDev,
			row.Stats.Min,
			row.Stats.Max,
			row.Stats.Q1,
			row.Stats.Q3,
			int32(row.CellCount),
		}, nil
	}))
	if err != nil {
		return fmt.Errorf("copy rows: %w", err)
	}
	if copied != int64(len(rows)) {
		return fmt.Errorf("copied %d of %d rows", copied, len(rows))
	}
	return nil
}

// upsertSQL moves staged rows into the fact table. Duplicate keys inside one batch collapse to
// the row covering the most cells.
func upsertSQL(t factTable) string {
	keys := t.keyColumns()

	insertCols := append([]string{}, keys...)
	insertCols = append(insertCols, statColumns...)
	insertCols = append(insertCols, "updated_at")

	selectCols := []string{"osm_id", "month", "period", "$1::integer"}
	if t.perModel {
		selectCols = append(selectCols, "$2::text", "$3::text")
	}
	selectCols = append(selectCols, statColumns...)
	selectCols = append(selectCols, "now()")

	updates := make([]string, 0, len(statColumns)+1)
	for _, c := range statColumns {
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
	}
	updates = append(updates, "updated_at = now()")

	return fmt.Sprintf(`
		INSERT INTO %s (%s)
		SELECT %s FROM (
			SELECT DISTINCT ON (osm_id, month, period) *
			FROM %s
			ORDER BY osm_id, month, period, cell_count DESC
		) staged
		ON CONFLICT (%s) DO UPDATE SET %s`,
		t.fact, strings.Join(insertCols, ", "),
		strings.Join(selectCols, ", "),
		stageTable,
		strings.Join(keys, ", "), strings.Join(updates, ", "),
	)
}

func upsertArgs(t factTable, variableID int64, batch *domain.FactBatch) []any {
	if t.perModel {
		return []any{variableID, batch.Model, batch.Member}
	}
	return []any{variableID}
}

func (r *factRepository) batchError(batch *domain.FactBatch, err error, retryable bool) error {
	return &pkgerrors.BatchError{
		Stage:     pkgerrors.StageLoad,
		Variable:  batch.Variable,
		SSP:       int(batch.SSP),
		Retryable: retryable,
		Err:       err,
	}
}

// loadError classifies a failure inside the load transaction.
func (r *factRepository) loadError(batch *domain.FactBatch, err error) error {
	be := &pkgerrors.BatchError{
		Stage:     pkgerrors.StageLoad,
		Variable:  batch.Variable,
		SSP:       int(batch.SSP),
		Retryable: isRetryable(err),
		Err:       err,
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Detail != "" {
		be.Bucket = pgErr.Detail
	}
	r.logger.Error("Fact batch rolled back",
		zap.String("identity", batch.Identity()),
		zap.Bool("retryable", be.Retryable),
		zap.Error(err),
	)
	return be
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// isRetryable reports transient failures: lost connections, serialization conflicts and
// resource exhaustion. Constraint and syntax errors are not retried.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return true
	}
	switch pgErr.Code[:2] {
	case "08", "40", "53", "57":
		return true
	default:
		return false
	}
}
