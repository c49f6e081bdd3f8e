// internal/tenant/meta/model.go
//
// `site` table row model.
//
// Context
// -------
// The `Record` struct mirrors one row in the control-plane **site** table.
// Each row maps one host to the resource bindings its requests and queue
// batches run with.  The tenant loader reads it on first use and builds
// the tenant's context from `Bindings`.
//
// Schema reference
//
//	CREATE TABLE site (
//	    id            INTEGER PRIMARY KEY,
//	    host          VARCHAR(256) NOT NULL UNIQUE,
//	    bindings      TEXT         NOT NULL,      -- JSON, platform.Bindings
//	    suspended_at  TIMESTAMP NULL,
//	    deleted_at    TIMESTAMP NULL,
//	    created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
//	    updated_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
//	);
//
//	CREATE TABLE site_config (
//	    site_id  INTEGER      NOT NULL,
//	    name     VARCHAR(128) NOT NULL,
//	    value    TEXT         NOT NULL,
//	    PRIMARY KEY (site_id, name)
//	);
//
// Notes
// -----
//   - Nullable timestamps are `*time.Time`; callers must nil-check.
//   - This struct contains no behaviour, it is a pure sqlx scan target.
package meta

import "time"

// Record mirrors one row in the `site` table.
type Record struct {
	ID          uint64     `db:"id"`
	Host        string     `db:"host"`
	Bindings    string     `db:"bindings"`
	SuspendedAt *time.Time `db:"suspended_at"`
	DeletedAt   *time.Time `db:"deleted_at"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
}
