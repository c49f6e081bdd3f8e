package orm

import (
	"context"
	"reflect"
)

// New returns an unsaved T filled with attrs.  An unregistered T comes
// back detached; Save on it fails with ErrDetached.
func New[T Record](attrs Attrs) T {
	var rec T
	if d, err := definitionFor[T](); err == nil {
		rec = d.newRecord().(T)
	} else {
		rec = reflect.New(reflect.TypeFor[T]().Elem()).Interface().(T)
		rec.base().attrs.reset()
	}
	rec.base().Fill(attrs)
	return rec
}

// Query starts a builder for T.
func Query[T Record]() *Builder[T] { return newBuilder[T]() }

// Create inserts a new T and returns it with its key set.
func Create[T Record](ctx context.Context, attrs Attrs) (T, error) {
	rec := New[T](attrs)
	if err := rec.base().create(ctx); err != nil {
		var zero T
		return zero, err
	}
	return rec, nil
}

// Find returns the T with primary key id, or nil T when absent.
func Find[T Record](ctx context.Context, id any) (T, error) {
	b := newBuilder[T]()
	return b.Where(defaultKey(b.q.def), id).First(ctx)
}

// All returns every row of T.
func All[T Record](ctx context.Context) ([]T, error) { return newBuilder[T]().Get(ctx) }

// FirstOf returns the first row of T in store order, or nil T.
func FirstOf[T Record](ctx context.Context) (T, error) { return newBuilder[T]().First(ctx) }

// Where starts a builder with one where clause.
func Where[T Record](field string, args ...any) *Builder[T] {
	return newBuilder[T]().Where(field, args...)
}

// OrderBy starts a builder with one ordering.
func OrderBy[T Record](field, dir string) *Builder[T] {
	return newBuilder[T]().OrderBy(field, dir)
}

// Count returns the number of rows of T.
func Count[T Record](ctx context.Context) (int64, error) { return newBuilder[T]().Count(ctx) }

// FindByName loads a model by registered name and key.  A missing row is
// (nil, nil), as with Find.
func FindByName(ctx context.Context, name string, id any) (Record, error) {
	d, err := DefinitionByName(name)
	if err != nil {
		return nil, err
	}
	q := newQuery(d).where(d.primaryKey, "=", id)
	q.limit, q.single = 1, true
	rs, err := q.get(ctx)
	if err != nil || len(rs) == 0 {
		return nil, err
	}
	return rs[0], nil
}

// NewByName allocates an unsaved model by registered name.
func NewByName(name string, attrs Attrs) (Record, error) {
	d, err := DefinitionByName(name)
	if err != nil {
		return nil, err
	}
	rec := d.newRecord()
	rec.base().Fill(attrs)
	return rec, nil
}
