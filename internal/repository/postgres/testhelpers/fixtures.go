package testhelpers

import (
	"context"
	"embed"
	"fmt"
)

//go:embed testdata/*.sql
var fixtures embed.FS

// LoadFixtures executes the named SQL fixture files from testdata.
func (tdb *TestDB) LoadFixtures(ctx context.Context, files ...string) error {
	for _, file := range files {
		content, err := fixtures.ReadFile("testdata/" + file)
		if err != nil {
			return fmt.Errorf("read fixture %s: %w", file, err)
		}

		if _, err := tdb.DB.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("load fixture %s: %w", file, err)
		}
		tdb.Logger.Debug("Loaded fixture: " + file)
	}

	return nil
}

// CountRows returns the number of rows of a table or view.
func (tdb *TestDB) CountRows(ctx context.Context, table string) (int64, error) {
	var n int64
	if err := tdb.DB.GetContext(ctx, &n, fmt.Sprintf("SELECT count(*) FROM %s", table)); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}
