package orm

import "context"

// HasMany resolves every R whose foreign key points at the parent.
type HasMany[R Record] struct {
	parent     Record
	name       string
	foreignKey string
	localKey   string
	query      *Builder[R]
}

// NewHasMany builds the relation.  Empty keys default to "<parent>_id" on
// the related model and the parent's primary key.
func NewHasMany[R Record](parent Record, name, foreignKey, localKey string) *HasMany[R] {
	pdef := parent.base().def
	if foreignKey == "" {
		foreignKey = foreignKeyFor(pdef)
	}
	if localKey == "" {
		localKey = defaultKey(pdef)
	}
	return &HasMany[R]{parent: parent, name: name, foreignKey: foreignKey, localKey: localKey, query: newBuilder[R]()}
}

func (r *HasMany[R]) ForeignKey() string { return r.foreignKey }
func (r *HasMany[R]) LocalKey() string   { return r.localKey }

func (r *HasMany[R]) relationName() string  { return r.name }
func (r *HasMany[R]) relationQuery() *query { return r.query.q }

func (r *HasMany[R]) AddEagerConstraints(parents []Record) {
	r.query.q.whereIn(r.foreignKey, distinctKeys(parents, r.localKey))
}

func (r *HasMany[R]) GetResults(ctx context.Context, withConstraints bool) ([]Record, error) {
	if withConstraints {
		v := r.parent.Get(r.localKey)
		if v == nil {
			r.query.q.skip()
			return nil, nil
		}
		r.query.q.where(r.foreignKey, "=", v)
	}
	return r.query.q.get(ctx)
}

func (r *HasMany[R]) Match(parents, results []Record, name string) {
	groups := make(map[string][]R)
	for _, res := range results {
		if k, ok := keyOf(res.Get(r.foreignKey)); ok {
			groups[k] = append(groups[k], res.(R))
		}
	}
	for _, p := range parents {
		children := []R{}
		if k, ok := keyOf(p.Get(r.localKey)); ok && groups[k] != nil {
			children = groups[k]
		}
		p.base().setRelation(name, children)
	}
}

// Get returns the related models, an empty slice when none exist.
func (r *HasMany[R]) Get(ctx context.Context) ([]R, error) {
	if v, ok := cachedMany[R](r.parent, r.name); ok {
		return v, nil
	}
	r.query.After(func(rs []R) {
		if rs == nil {
			rs = []R{}
		}
		r.parent.base().setRelation(r.name, rs)
	})
	if _, err := r.GetResults(ctx, true); err != nil {
		return nil, err
	}
	v, _ := cachedMany[R](r.parent, r.name)
	return v, nil
}

// Save links child to the parent and persists it.  A loaded cache gains
// the child.
func (r *HasMany[R]) Save(ctx context.Context, child R) error {
	key := r.parent.Get(r.localKey)
	if key == nil {
		return ErrUnsavedParent
	}
	child.Set(r.foreignKey, key)
	if err := child.base().Save(ctx); err != nil {
		return err
	}
	if loaded, ok := cachedMany[R](r.parent, r.name); ok {
		r.parent.base().setRelation(r.name, append(loaded, child))
	}
	return nil
}

// SaveMany saves each child in order, stopping at the first error.
func (r *HasMany[R]) SaveMany(ctx context.Context, children []R) error {
	for _, c := range children {
		if err := r.Save(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

// Create builds one R from attrs, links it, and persists it.
func (r *HasMany[R]) Create(ctx context.Context, attrs Attrs) (R, error) {
	child := New[R](attrs)
	if err := r.Save(ctx, child); err != nil {
		var zero R
		return zero, err
	}
	return child, nil
}

// CreateMany creates one R per attribute set.
func (r *HasMany[R]) CreateMany(ctx context.Context, sets []Attrs) ([]R, error) {
	out := make([]R, 0, len(sets))
	for _, a := range sets {
		c, err := r.Create(ctx, a)
		if err != nil {
			return out, err
		}
		out = append(out, c)
	}
	return out, nil
}
