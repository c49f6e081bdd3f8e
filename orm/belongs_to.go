package orm

import "context"

// BelongsTo resolves the owner R referenced by a foreign key on the child.
type BelongsTo[R Record] struct {
	child      Record
	name       string
	foreignKey string
	ownerKey   string
	query      *Builder[R]
}

// NewBelongsTo builds the relation.  Empty keys default to
// "<related>_id" on the child and the related primary key.
func NewBelongsTo[R Record](child Record, name, foreignKey, ownerKey string) *BelongsTo[R] {
	b := newBuilder[R]()
	if foreignKey == "" {
		foreignKey = foreignKeyFor(b.q.def)
	}
	if ownerKey == "" {
		ownerKey = defaultKey(b.q.def)
	}
	return &BelongsTo[R]{child: child, name: name, foreignKey: foreignKey, ownerKey: ownerKey, query: b}
}

func (r *BelongsTo[R]) ForeignKey() string { return r.foreignKey }
func (r *BelongsTo[R]) OwnerKey() string   { return r.ownerKey }

func (r *BelongsTo[R]) relationName() string  { return r.name }
func (r *BelongsTo[R]) relationQuery() *query { return r.query.q }

func (r *BelongsTo[R]) AddEagerConstraints(parents []Record) {
	r.query.q.whereIn(r.ownerKey, distinctKeys(parents, r.foreignKey))
}

func (r *BelongsTo[R]) GetResults(ctx context.Context, withConstraints bool) ([]Record, error) {
	if withConstraints {
		v := r.child.Get(r.foreignKey)
		if v == nil {
			r.query.q.skip()
			return nil, nil
		}
		r.query.q.where(r.ownerKey, "=", v)
		r.query.q.limit, r.query.q.single = 1, true
	}
	return r.query.q.get(ctx)
}

func (r *BelongsTo[R]) Match(parents, results []Record, name string) {
	owners := make(map[string]R, len(results))
	for _, res := range results {
		if k, ok := keyOf(res.Get(r.ownerKey)); ok {
			owners[k] = res.(R)
		}
	}
	for _, p := range parents {
		var owner R
		if k, ok := keyOf(p.Get(r.foreignKey)); ok {
			owner = owners[k]
		}
		p.base().setRelation(name, owner)
	}
}

// Get returns the owner, nil R when the key is unset or dangling.
func (r *BelongsTo[R]) Get(ctx context.Context) (R, error) {
	if v, ok := cached[R](r.child, r.name); ok {
		return v, nil
	}
	r.query.After(func(rs []R) {
		var owner R
		if len(rs) > 0 {
			owner = rs[0]
		}
		r.child.base().setRelation(r.name, owner)
	})
	if _, err := r.GetResults(ctx, true); err != nil {
		var zero R
		return zero, err
	}
	v, _ := cached[R](r.child, r.name)
	return v, nil
}

// Associate points the child at owner and caches it.  Nothing is written
// until the child is saved.
func (r *BelongsTo[R]) Associate(owner R) {
	r.child.Set(r.foreignKey, owner.Get(r.ownerKey))
	r.child.base().setRelation(r.name, owner)
}

// Dissociate clears the foreign key and caches a nil owner.
func (r *BelongsTo[R]) Dissociate() {
	r.child.Set(r.foreignKey, nil)
	var none R
	r.child.base().setRelation(r.name, none)
}
