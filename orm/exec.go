package orm

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/yanizio/keel/appctx"
	"github.com/yanizio/keel/internal/logger"
	"github.com/yanizio/keel/internal/metrics"
)

// conn resolves the model's connection on the context bound to ctx.
func (q *query) conn(ctx context.Context) (appctx.DB, error) {
	name := q.def.connection
	if name == "" {
		name = appctx.DefaultName
	}
	c, err := appctx.From(ctx)
	if err != nil {
		return nil, fmt.Errorf("orm: %s needs connection %q: %w", q.def.name, name, err)
	}
	return c.DB(name)
}

func observe(ctx context.Context, op, stmt string, args []any, start time.Time, err error) {
	elapsed := time.Since(start)
	metrics.QueriesTotal.WithLabelValues(op).Inc()
	metrics.QueryDuration.WithLabelValues(op).Observe(elapsed.Seconds())
	if err != nil {
		metrics.QueryErrorsTotal.WithLabelValues(op).Inc()
		logger.From(ctx).Warnw("query failed", "op", op, "sql", stmt, "err", err)
		return
	}
	logger.From(ctx).Debugw("query", "op", op, "sql", stmt, "args", args, "elapsed", elapsed)
}

// fetch runs the compiled select and returns raw rows.
func (q *query) fetch(ctx context.Context) ([]string, [][]any, error) {
	db, err := q.conn(ctx)
	if err != nil {
		return nil, nil, err
	}
	stmt, args := q.compileSelect()
	stmt = db.Rebind(stmt)

	start := time.Now()
	cols, out, err := scanAll(ctx, db, stmt, args)
	observe(ctx, "select", stmt, args, start, err)
	if err != nil {
		return nil, nil, &DatabaseError{Op: "select", SQL: stmt, Err: err}
	}
	return cols, out, nil
}

func scanAll(ctx context.Context, db appctx.DB, stmt string, args []any) ([]string, [][]any, error) {
	rows, err := db.QueryxContext(ctx, stmt, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}
	var out [][]any
	for rows.Next() {
		vals, err := rows.SliceScan()
		if err != nil {
			return nil, nil, err
		}
		for i := range vals {
			vals[i] = normalize(vals[i])
		}
		out = append(out, vals)
	}
	return cols, out, rows.Err()
}

func (q *query) get(ctx context.Context) ([]Record, error) {
	if err := q.begin(); err != nil {
		return nil, err
	}
	for _, name := range q.eager {
		if !q.def.HasRelation(name) {
			return nil, &RelationError{Model: q.def.name, Relation: name}
		}
	}

	cols, rows, err := q.fetch(ctx)
	if err != nil {
		return nil, err
	}
	recs := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec := q.def.newRecord()
		rec.base().hydrate(cols, row)
		recs = append(recs, rec)
	}
	if len(recs) > 0 && len(q.eager) > 0 {
		if err := eagerLoad(ctx, q.def, q.eager, recs); err != nil {
			return nil, err
		}
	}
	for _, fn := range q.after {
		fn(recs)
	}
	return recs, nil
}

func (q *query) count(ctx context.Context) (int64, error) {
	db, err := q.conn(ctx)
	if err != nil {
		return 0, err
	}
	stmt, args := q.compileCount()
	stmt = db.Rebind(stmt)

	var n int64
	start := time.Now()
	err = db.QueryRowxContext(ctx, stmt, args...).Scan(&n)
	observe(ctx, "count", stmt, args, start, err)
	if err != nil {
		return 0, &DatabaseError{Op: "count", SQL: stmt, Err: err}
	}
	return n, nil
}

// insert returns the new key.  Dollar-placeholder drivers (Postgres) use
// "returning"; the rest report LastInsertId.
func (q *query) insert(ctx context.Context, attrs Attrs) (int64, error) {
	if q.err != nil {
		return 0, q.err
	}
	db, err := q.conn(ctx)
	if err != nil {
		return 0, err
	}
	stmt, args, err := q.compileInsert(attrs, db.DriverName())
	if err != nil {
		return 0, err
	}
	returning := sqlx.BindType(db.DriverName()) == sqlx.DOLLAR
	if returning {
		stmt += " returning " + q.def.primaryKey
	}
	stmt = db.Rebind(stmt)

	var id int64
	start := time.Now()
	if returning {
		err = db.QueryRowxContext(ctx, stmt, args...).Scan(&id)
	} else {
		res, execErr := db.ExecContext(ctx, stmt, args...)
		err = execErr
		if err == nil {
			id, err = res.LastInsertId()
		}
	}
	observe(ctx, "insert", stmt, args, start, err)
	if err != nil {
		return 0, &DatabaseError{Op: "insert", SQL: stmt, Err: err}
	}
	return id, nil
}

func (q *query) update(ctx context.Context, attrs Attrs) (int64, error) {
	if q.err != nil {
		return 0, q.err
	}
	if len(attrs) == 0 {
		return 0, nil
	}
	db, err := q.conn(ctx)
	if err != nil {
		return 0, err
	}
	stmt, args, err := q.compileUpdate(attrs)
	if err != nil {
		return 0, err
	}
	return q.exec(ctx, db, "update", db.Rebind(stmt), args)
}

func (q *query) delete(ctx context.Context) (int64, error) {
	if q.err != nil {
		return 0, q.err
	}
	db, err := q.conn(ctx)
	if err != nil {
		return 0, err
	}
	stmt, args := q.compileDelete()
	return q.exec(ctx, db, "delete", db.Rebind(stmt), args)
}

func (q *query) exec(ctx context.Context, db appctx.DB, op, stmt string, args []any) (int64, error) {
	start := time.Now()
	res, err := db.ExecContext(ctx, stmt, args...)
	var n int64
	if err == nil {
		n, err = res.RowsAffected()
	}
	observe(ctx, op, stmt, args, start, err)
	if err != nil {
		return 0, &DatabaseError{Op: op, SQL: stmt, Err: err}
	}
	return n, nil
}
