package orm

import "context"

// HasOne resolves a single R whose foreign key points at the parent.
type HasOne[R Record] struct {
	parent     Record
	name       string
	foreignKey string
	localKey   string
	query      *Builder[R]
}

// NewHasOne builds the relation.  Empty keys default to "<parent>_id" on
// the related model and the parent's primary key.
func NewHasOne[R Record](parent Record, name, foreignKey, localKey string) *HasOne[R] {
	pdef := parent.base().def
	if foreignKey == "" {
		foreignKey = foreignKeyFor(pdef)
	}
	if localKey == "" {
		localKey = defaultKey(pdef)
	}
	return &HasOne[R]{parent: parent, name: name, foreignKey: foreignKey, localKey: localKey, query: newBuilder[R]()}
}

func (r *HasOne[R]) ForeignKey() string { return r.foreignKey }
func (r *HasOne[R]) LocalKey() string   { return r.localKey }

func (r *HasOne[R]) relationName() string  { return r.name }
func (r *HasOne[R]) relationQuery() *query { return r.query.q }

func (r *HasOne[R]) AddEagerConstraints(parents []Record) {
	r.query.q.whereIn(r.foreignKey, distinctKeys(parents, r.localKey))
}

func (r *HasOne[R]) GetResults(ctx context.Context, withConstraints bool) ([]Record, error) {
	if withConstraints {
		v := r.parent.Get(r.localKey)
		if v == nil {
			r.query.q.skip()
			return nil, nil
		}
		r.query.q.where(r.foreignKey, "=", v)
		r.query.q.limit, r.query.q.single = 1, true
	}
	return r.query.q.get(ctx)
}

func (r *HasOne[R]) Match(parents, results []Record, name string) {
	byKey := make(map[string]R, len(results))
	for _, res := range results {
		k, ok := keyOf(res.Get(r.foreignKey))
		if !ok {
			continue
		}
		if _, dup := byKey[k]; !dup {
			byKey[k] = res.(R)
		}
	}
	for _, p := range parents {
		var child R
		if k, ok := keyOf(p.Get(r.localKey)); ok {
			child = byKey[k]
		}
		p.base().setRelation(name, child)
	}
}

// Get returns the related model, nil R when none exists.
func (r *HasOne[R]) Get(ctx context.Context) (R, error) {
	if v, ok := cached[R](r.parent, r.name); ok {
		return v, nil
	}
	r.query.After(func(rs []R) {
		var child R
		if len(rs) > 0 {
			child = rs[0]
		}
		r.parent.base().setRelation(r.name, child)
	})
	if _, err := r.GetResults(ctx, true); err != nil {
		var zero R
		return zero, err
	}
	v, _ := cached[R](r.parent, r.name)
	return v, nil
}

// Save sets the foreign key on child to the parent's key and persists it.
func (r *HasOne[R]) Save(ctx context.Context, child R) error {
	key := r.parent.Get(r.localKey)
	if key == nil {
		return ErrUnsavedParent
	}
	child.Set(r.foreignKey, key)
	if err := child.base().Save(ctx); err != nil {
		return err
	}
	r.parent.base().setRelation(r.name, child)
	return nil
}

// Create builds R from attrs, links it to the parent, and persists it.
func (r *HasOne[R]) Create(ctx context.Context, attrs Attrs) (R, error) {
	child := New[R](attrs)
	if err := r.Save(ctx, child); err != nil {
		var zero R
		return zero, err
	}
	return child, nil
}
