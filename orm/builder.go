// orm/builder.go
//
// Query builder.
//
// Context
// -------
// Builder[T] is the typed face of an untyped query accumulator.  Chaining
// methods record columns, conjunctive where fragments (one positional
// binding each; WhereIn one per value), ordering, limit, and the eager
// list.  Terminal methods compile the statement, run it on the bound
// context's connection, and map rows to T.
//
// Chaining never returns an error.  The first invalid input is stored and
// surfaced by the terminal call, so a chain reads straight through.
//
// Notes
// -----
//   - A builder executes exactly once.  A second terminal call returns
//     ErrBuilderReused.
//   - Not safe for concurrent use.
package orm

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"strings"
)

var allowedOps = map[string]bool{
	"=": true, "!=": true, "<>": true,
	"<": true, "<=": true, ">": true, ">=": true,
	"like": true, "not like": true,
}

// query is the untyped accumulator shared by builders and relations.
type query struct {
	def      *Definition
	table    string
	columns  []string
	wheres   []string
	bindings []any
	orders   []string
	limit    int
	single   bool
	eager    []string
	after    []func([]Record)
	err      error
	used     bool
}

func newQuery(d *Definition) *query {
	if d == nil {
		return &query{err: ErrDetached}
	}
	return &query{
		def:   d,
		table: d.table,
		eager: slices.Clone(d.eager),
	}
}

func (q *query) fail(err error) *query {
	if q.err == nil {
		q.err = err
	}
	return q
}

func (q *query) begin() error {
	if q.err != nil {
		return q.err
	}
	if q.used {
		return ErrBuilderReused
	}
	q.used = true
	return nil
}

// skip marks the query executed without touching the store.
func (q *query) skip() {
	q.used = true
	for _, fn := range q.after {
		fn(nil)
	}
}

func (q *query) where(field, op string, v any) *query {
	if q.err != nil {
		return q
	}
	if !validIdent(field) {
		return q.fail(fmt.Errorf("%w: %q", ErrInvalidIdentifier, field))
	}
	op = strings.ToLower(strings.TrimSpace(op))
	if !allowedOps[op] {
		return q.fail(fmt.Errorf("%w: %q", ErrInvalidOperator, op))
	}
	if v == nil {
		switch op {
		case "=":
			q.wheres = append(q.wheres, field+" is null")
		case "!=", "<>":
			q.wheres = append(q.wheres, field+" is not null")
		default:
			return q.fail(fmt.Errorf("%w: %q with nil value", ErrInvalidOperator, op))
		}
		return q
	}
	q.wheres = append(q.wheres, field+" "+op+" ?")
	q.bindings = append(q.bindings, v)
	return q
}

func (q *query) whereIn(field string, values []any) *query {
	if q.err != nil {
		return q
	}
	if !validIdent(field) {
		return q.fail(fmt.Errorf("%w: %q", ErrInvalidIdentifier, field))
	}
	if len(values) == 0 {
		q.wheres = append(q.wheres, "1 = 0")
		return q
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
	q.wheres = append(q.wheres, field+" in ("+marks+")")
	q.bindings = append(q.bindings, values...)
	return q
}

// Builder builds and runs queries for model type T.
type Builder[T Record] struct {
	q *query
}

func newBuilder[T Record]() *Builder[T] {
	d, err := definitionFor[T]()
	if err != nil {
		return &Builder[T]{q: &query{err: err}}
	}
	return &Builder[T]{q: newQuery(d)}
}

// Err returns the first chaining error, if any.
func (b *Builder[T]) Err() error { return b.q.err }

// Select restricts the selected columns.  No columns means "*".
func (b *Builder[T]) Select(cols ...string) *Builder[T] {
	for _, c := range cols {
		if c != "*" && !validIdent(c) {
			b.q.fail(fmt.Errorf("%w: %q", ErrInvalidIdentifier, c))
			return b
		}
	}
	b.q.columns = append(b.q.columns, cols...)
	return b
}

// Where adds "field = value" or, with three arguments, "field op value".
// A nil value compiles to "is null" / "is not null".
func (b *Builder[T]) Where(field string, args ...any) *Builder[T] {
	switch len(args) {
	case 1:
		b.q.where(field, "=", args[0])
	case 2:
		op, ok := args[0].(string)
		if !ok {
			b.q.fail(fmt.Errorf("%w: %v", ErrInvalidOperator, args[0]))
			return b
		}
		b.q.where(field, op, args[1])
	default:
		b.q.fail(fmt.Errorf("orm: Where(%q) takes a value, or an operator and a value", field))
	}
	return b
}

// WhereIn adds "field in (...)".  values must be a slice; an empty slice
// matches nothing.
func (b *Builder[T]) WhereIn(field string, values any) *Builder[T] {
	vals, err := toAnySlice(values)
	if err != nil {
		b.q.fail(err)
		return b
	}
	b.q.whereIn(field, vals)
	return b
}

// OrderBy appends an ordering; dir is "asc" (default) or "desc".
func (b *Builder[T]) OrderBy(field, dir string) *Builder[T] {
	if !validIdent(field) {
		b.q.fail(fmt.Errorf("%w: %q", ErrInvalidIdentifier, field))
		return b
	}
	dir = strings.ToLower(dir)
	if dir == "" {
		dir = "asc"
	}
	if dir != "asc" && dir != "desc" {
		b.q.fail(fmt.Errorf("orm: order direction %q", dir))
		return b
	}
	b.q.orders = append(b.q.orders, field+" "+dir)
	return b
}

// Limit caps the row count.  Zero removes the limit.
func (b *Builder[T]) Limit(n int) *Builder[T] {
	if n < 0 {
		b.q.fail(fmt.Errorf("orm: negative limit %d", n))
		return b
	}
	b.q.limit = n
	return b
}

// Table overrides the model's table for this query.
func (b *Builder[T]) Table(name string) *Builder[T] {
	if !validIdent(name) {
		b.q.fail(fmt.Errorf("%w: %q", ErrInvalidIdentifier, name))
		return b
	}
	b.q.table = name
	return b
}

// With adds relations to the eager list.
func (b *Builder[T]) With(names ...string) *Builder[T] {
	for _, n := range names {
		if !slices.Contains(b.q.eager, n) {
			b.q.eager = append(b.q.eager, n)
		}
	}
	return b
}

// WithOnly replaces the eager list.
func (b *Builder[T]) WithOnly(names ...string) *Builder[T] {
	b.q.eager = nil
	return b.With(names...)
}

// Without removes relations from the eager list.
func (b *Builder[T]) Without(names ...string) *Builder[T] {
	b.q.eager = slices.DeleteFunc(b.q.eager, func(n string) bool { return slices.Contains(names, n) })
	return b
}

// After registers a callback run with the mapped results of Get/First.
func (b *Builder[T]) After(fn func([]T)) *Builder[T] {
	b.q.after = append(b.q.after, func(rs []Record) { fn(typed[T](rs)) })
	return b
}

// ToSQL returns the select statement and bindings without executing.
func (b *Builder[T]) ToSQL() (string, []any, error) {
	if b.q.err != nil {
		return "", nil, b.q.err
	}
	s, args := b.q.compileSelect()
	return s, args, nil
}

// Get runs the query.  Zero rows is an empty slice.
func (b *Builder[T]) Get(ctx context.Context) ([]T, error) {
	rs, err := b.q.get(ctx)
	if err != nil {
		return nil, err
	}
	return typed[T](rs), nil
}

// First forces limit 1 and returns the row, or nil T when none matched.
func (b *Builder[T]) First(ctx context.Context) (T, error) {
	var zero T
	b.q.limit, b.q.single = 1, true
	rs, err := b.q.get(ctx)
	if err != nil || len(rs) == 0 {
		return zero, err
	}
	return rs[0].(T), nil
}

// Count returns count(*) over the where clauses.
func (b *Builder[T]) Count(ctx context.Context) (int64, error) {
	if err := b.q.begin(); err != nil {
		return 0, err
	}
	return b.q.count(ctx)
}

// Insert writes one row and returns its key.
func (b *Builder[T]) Insert(ctx context.Context, attrs Attrs) (int64, error) {
	if err := b.q.begin(); err != nil {
		return 0, err
	}
	return b.q.insert(ctx, attrs)
}

// Update writes attrs to every matching row and returns rows affected.
func (b *Builder[T]) Update(ctx context.Context, attrs Attrs) (int64, error) {
	if err := b.q.begin(); err != nil {
		return 0, err
	}
	return b.q.update(ctx, attrs)
}

// Delete removes every matching row and returns rows affected.
func (b *Builder[T]) Delete(ctx context.Context) (int64, error) {
	if err := b.q.begin(); err != nil {
		return 0, err
	}
	return b.q.delete(ctx)
}

func typed[T Record](rs []Record) []T {
	out := make([]T, len(rs))
	for i, r := range rs {
		out[i] = r.(T)
	}
	return out
}

func toAnySlice(values any) ([]any, error) {
	if vs, ok := values.([]any); ok {
		return vs, nil
	}
	rv := reflect.ValueOf(values)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("orm: WhereIn wants a slice, got %T", values)
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}
