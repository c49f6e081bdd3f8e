package orm

import (
	"context"
	"fmt"
)

// eagerLoad resolves each named relation for all parents with one batched
// query per relation, in list order.  Names were validated by the caller.
func eagerLoad(ctx context.Context, def *Definition, names []string, parents []Record) error {
	for _, name := range names {
		rel := def.relations[name](def.newRecord())
		if n, ok := rel.(namedRelation); ok {
			// Nested defaults would let two models eager load each other forever.
			n.relationQuery().eager = nil
		}
		rel.AddEagerConstraints(parents)
		results, err := rel.GetResults(ctx, false)
		if err != nil {
			return fmt.Errorf("orm: eager load %s.%s: %w", def.name, name, err)
		}
		rel.Match(parents, results, name)
	}
	return nil
}

// distinctKeys collects the non-nil values of col across models, first
// occurrence order.
func distinctKeys(models []Record, col string) []any {
	seen := make(map[string]struct{}, len(models))
	out := make([]any, 0, len(models))
	for _, m := range models {
		v := m.Get(col)
		k, ok := keyOf(v)
		if !ok {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	return out
}

func cached[R Record](owner Record, name string) (R, bool) {
	v, ok := owner.base().relation(name)
	if !ok {
		var zero R
		return zero, false
	}
	r, ok := v.(R)
	return r, ok
}

func cachedMany[R Record](owner Record, name string) ([]R, bool) {
	v, ok := owner.base().relation(name)
	if !ok {
		return nil, false
	}
	rs, ok := v.([]R)
	return rs, ok
}
