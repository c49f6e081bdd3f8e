// orm/relation.go
//
// Relation contract shared by BelongsTo, HasOne, and HasMany.
//
// Context
// -------
// A relation value is a throwaway query helper built by a model method:
//
//	func (p *Post) User() *orm.BelongsTo[*User] {
//		return orm.NewBelongsTo[*User](p, "user", "", "")
//	}
//
// Lazy access (p.User().Get(ctx)) constrains the query to the owner and
// caches the result on the owner under the relation name, so a second
// call issues no query.  Eager loading instead builds the relation on a
// blank instance, injects one "where key in (...)" across every parent,
// and hands the rows back through Match.
package orm

import "context"

// Relation is what eager loading needs from a relation.
type Relation interface {
	// AddEagerConstraints restricts the query to keys found on parents.
	AddEagerConstraints(parents []Record)
	// GetResults runs the query, applying the owner constraint when
	// withConstraints is set.
	GetResults(ctx context.Context, withConstraints bool) ([]Record, error)
	// Match caches each parent's share of results under name.
	Match(parents, results []Record, name string)
}

// namedRelation is implemented by the built-in relations.
type namedRelation interface {
	relationName() string
	relationQuery() *query
}

func defaultKey(def *Definition) string {
	if def == nil {
		return "id"
	}
	return def.primaryKey
}

func foreignKeyFor(def *Definition) string {
	if def == nil {
		return ""
	}
	return snake(def.name) + "_id"
}
