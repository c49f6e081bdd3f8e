// internal/tenant/meta/repository.go
//
// Site-table query helpers.
//
// Context
// -------
// These functions provide read-only access to the **site** table:
//
//   - `AllActive`: console tooling and the warm-up path.
//   - `ByHost`: tenant loader on first request or first queue batch.
//
// Both exclude suspended or deleted rows at SQL level to keep callers
// simple.  Queries are written with `?` and rebound for the control
// database's driver.
package meta

import (
	"context"

	"github.com/jmoiron/sqlx"
)

const siteColumns = `id, host, bindings, suspended_at, deleted_at, created_at, updated_at`

// AllActive returns every site that is neither suspended nor deleted.
func AllActive(ctx context.Context, db *sqlx.DB) ([]Record, error) {
	q := `
        SELECT ` + siteColumns + `
        FROM   site
        WHERE  suspended_at IS NULL
          AND  deleted_at   IS NULL
        ORDER  BY host`
	var rows []Record
	if err := db.SelectContext(ctx, &rows, db.Rebind(q)); err != nil {
		return nil, err
	}
	return rows, nil
}

// ByHost fetches a single active site row.  A miss returns sql.ErrNoRows.
func ByHost(ctx context.Context, db *sqlx.DB, host string) (*Record, error) {
	q := `
        SELECT ` + siteColumns + `
        FROM   site
        WHERE  host = ?
          AND  suspended_at IS NULL
          AND  deleted_at   IS NULL
        LIMIT  1`
	var rec Record
	if err := db.GetContext(ctx, &rec, db.Rebind(q), host); err != nil {
		return nil, err
	}
	return &rec, nil
}
