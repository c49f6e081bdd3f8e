// internal/tenant/meta/config.go
//
// Per-site configuration fetcher.
//
// Context
// -------
// Every site can define string settings in the `site_config` table.  They
// override or extend the JSON bindings on the site row: `app_key`, and
// `channel.<name>` entries that bind a channel.  A single query pulls all
// pairs when the tenant is cold-loaded; the map is immutable for the
// lifetime of the cache entry.
package meta

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// ConfigBySite loads all `site_config` rows for one site_id.
func ConfigBySite(ctx context.Context, db *sqlx.DB, siteID uint64) (map[string]string, error) {
	const q = `
	    SELECT  name, value
	    FROM    site_config
	    WHERE   site_id = ?`

	rows := make([]struct {
		Name  string `db:"name"`
		Value string `db:"value"`
	}, 0, 8)

	if err := db.SelectContext(ctx, &rows, db.Rebind(q), siteID); err != nil {
		return nil, err
	}

	cfg := make(map[string]string, len(rows))
	for _, r := range rows {
		cfg[r.Name] = r.Value
	}
	return cfg, nil
}
