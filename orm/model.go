// orm/model.go
//
// Model: the embeddable entity base.
//
// Context
// -------
// Application structs embed Model and add typed accessors that read and
// write the attribute bag:
//
//	func (p *Post) Title() string     { return p.GetString("title") }
//	func (p *Post) SetTitle(s string) { p.Set("title", s) }
//
// Because typed access goes through the bag, JSON output, dirty tracking,
// and queue serialisation always see what callers see.
//
// Notes
// -----
//   - id is cached from the primary-key attribute; Set on the key column
//     updates it.
//   - Loaded relations are cached by name and emitted after attributes in
//     MarshalJSON.
package orm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Record is implemented by pointers to structs embedding Model.
type Record interface {
	ModelName() string
	ID() int64
	Exists() bool
	Get(key string) any
	Set(key string, v any)
	base() *Model
}

// Model holds attributes, the cached id, and the relation cache.
type Model struct {
	def      *Definition
	attrs    attributes
	original map[string]any
	id       int64
	exists   bool
	rels     map[string]any
	relOrder []string
}

func (m *Model) base() *Model { return m }

// ModelName is the registered name, or "" for a detached model.
func (m *Model) ModelName() string {
	if m.def == nil {
		return ""
	}
	return m.def.name
}

// Definition returns the model's Definition (nil when detached).
func (m *Model) Definition() *Definition { return m.def }

// ID is the integer primary key: zero until persisted, and always zero
// for models keyed by a non-integer column.
func (m *Model) ID() int64 { return m.id }

// Exists reports whether the model has a primary key.
func (m *Model) Exists() bool { return m.exists }

func (m *Model) key() string {
	if m.def == nil {
		return "id"
	}
	return m.def.primaryKey
}

// Get returns the raw attribute value, nil when absent.
func (m *Model) Get(key string) any {
	v, _ := m.attrs.get(key)
	return v
}

// Has reports whether the attribute is present (even if nil).
func (m *Model) Has(key string) bool {
	_, ok := m.attrs.get(key)
	return ok
}

// Set writes an attribute.  Setting the primary key updates ID.
func (m *Model) Set(key string, v any) {
	v = normalize(v)
	m.attrs.set(key, v)
	if key == m.key() {
		m.id, _ = toInt64(v)
		m.exists = v != nil
	}
}

// Fill sets every attribute in attrs, in key order.
func (m *Model) Fill(attrs Attrs) {
	for _, k := range attrs.sortedKeys() {
		m.Set(k, attrs[k])
	}
}

func (m *Model) GetString(key string) string {
	switch v := m.Get(key).(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

func (m *Model) GetInt(key string) int64 {
	n, _ := toInt64(m.Get(key))
	return n
}

func (m *Model) GetFloat(key string) float64 {
	f, _ := toFloat64(m.Get(key))
	return f
}

func (m *Model) GetBool(key string) bool { return toBool(m.Get(key)) }

func (m *Model) GetTime(key string) time.Time {
	t, _ := toTime(m.Get(key))
	return t
}

// Attributes returns a copy of the attribute bag.
func (m *Model) Attributes() Attrs { return Attrs(m.attrs.clone()) }

// AttributeKeys returns attribute names in insertion order.
func (m *Model) AttributeKeys() []string { return append([]string(nil), m.attrs.keys...) }

// Dirty returns attributes changed since the model was loaded or saved.
func (m *Model) Dirty() Attrs {
	out := Attrs{}
	for _, k := range m.attrs.keys {
		v := m.attrs.vals[k]
		if old, ok := m.original[k]; !ok || !sameValue(old, v) {
			out[k] = v
		}
	}
	return out
}

func (m *Model) syncOriginal() { m.original = m.attrs.clone() }

// hydrate replaces the bag with a fetched row and marks the model stored.
func (m *Model) hydrate(cols []string, vals []any) {
	m.attrs.reset()
	m.id, m.exists = 0, false
	m.rels, m.relOrder = nil, nil
	for i, c := range cols {
		m.Set(c, vals[i])
	}
	m.syncOriginal()
}

// RelationLoaded reports whether name is cached on the model.
func (m *Model) RelationLoaded(name string) bool {
	_, ok := m.rels[name]
	return ok
}

func (m *Model) relation(name string) (any, bool) {
	v, ok := m.rels[name]
	return v, ok
}

func (m *Model) setRelation(name string, v any) {
	if m.rels == nil {
		m.rels = make(map[string]any)
	}
	if _, ok := m.rels[name]; !ok {
		m.relOrder = append(m.relOrder, name)
	}
	m.rels[name] = v
}

// Unload drops a cached relation so the next access re-queries.
func (m *Model) Unload(name string) {
	if _, ok := m.rels[name]; !ok {
		return
	}
	delete(m.rels, name)
	for i, n := range m.relOrder {
		if n == name {
			m.relOrder = append(m.relOrder[:i], m.relOrder[i+1:]...)
			break
		}
	}
}

// Save inserts the model when it has no key, otherwise updates its dirty
// attributes by key.  A stored model without changes issues no query.
func (m *Model) Save(ctx context.Context) error {
	if m.def == nil {
		return ErrDetached
	}
	if !m.exists {
		return m.create(ctx)
	}

	if len(m.Dirty()) == 0 {
		return nil
	}
	if m.def.timestamps {
		m.Set("updated_at", time.Now().UTC())
	}
	dirty := m.Dirty()
	delete(dirty, m.def.primaryKey)

	q := newQuery(m.def).where(m.def.primaryKey, "=", m.Get(m.def.primaryKey))
	if _, err := q.update(ctx, dirty); err != nil {
		return err
	}
	m.syncOriginal()
	return nil
}

// create always inserts, even when the caller supplied a key.
func (m *Model) create(ctx context.Context) error {
	if m.def == nil {
		return ErrDetached
	}
	if m.def.timestamps {
		now := time.Now().UTC()
		if m.Get("created_at") == nil {
			m.Set("created_at", now)
		}
		m.Set("updated_at", now)
	}

	values := Attrs{}
	for _, k := range m.attrs.keys {
		v := m.attrs.vals[k]
		if k == m.def.primaryKey && v == nil {
			continue
		}
		values[k] = v
	}
	id, err := newQuery(m.def).insert(ctx, values)
	if err != nil {
		return err
	}
	if !m.exists {
		m.Set(m.def.primaryKey, id)
	}
	m.syncOriginal()
	return nil
}

// Delete removes the row.  Unsaved models are a no-op.
func (m *Model) Delete(ctx context.Context) error {
	if m.def == nil {
		return ErrDetached
	}
	if !m.exists {
		return nil
	}
	if _, err := newQuery(m.def).where(m.def.primaryKey, "=", m.Get(m.def.primaryKey)).delete(ctx); err != nil {
		return err
	}
	m.exists = false
	m.id = 0
	m.original = nil
	return nil
}

// Refresh reloads attributes from the store and clears cached relations.
func (m *Model) Refresh(ctx context.Context) error {
	if m.def == nil {
		return ErrDetached
	}
	if !m.exists {
		return ErrModelNotFound
	}
	q := newQuery(m.def).where(m.def.primaryKey, "=", m.Get(m.def.primaryKey))
	q.eager = nil
	q.limit, q.single = 1, true
	cols, rows, err := q.fetch(ctx)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return ErrModelNotFound
	}
	m.hydrate(cols, rows[0])
	return nil
}

// MarshalJSON emits attributes then loaded relations, in order.
func (m *Model) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	write := func(k string, v any) error {
		kb, _ := json.Marshal(k)
		vb, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("orm: marshal %q: %w", k, err)
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
		return nil
	}
	for _, k := range m.attrs.keys {
		if _, shadow := m.rels[k]; shadow {
			continue
		}
		if err := write(k, m.attrs.vals[k]); err != nil {
			return nil, err
		}
	}
	for _, name := range m.relOrder {
		if err := write(name, m.rels[name]); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
