// orm/definition.go
//
// Model registration.
//
// Context
// -------
// Every model type registers once, at package initialisation, under a
// stable caller-chosen name.  The resulting *Definition carries the table,
// primary key, connection name, timestamp policy, default eager list, and
// relation builders.  It is stored as the registry.Model entry for the Go
// type, so both generic helpers (Find[T]) and name-based lookup
// (FindByName, used by queue hydration) reach the same record.
//
// Usage
// -----
//
//	type Post struct{ orm.Model }
//
//	var _ = orm.Register[*Post]("Post",
//		orm.Timestamps(),
//		orm.WithRelation("user", func(p *Post) orm.Relation { return p.User() }),
//	)
//
// Notes
// -----
//   - Register panics on conflicts; it runs at init and a bad table is a
//     programming error.
//   - Relation builders are invoked on a fresh, attribute-less instance when
//     eager loading.
package orm

import (
	"fmt"
	"reflect"

	"github.com/yanizio/keel/registry"
)

// Definition is the static description of one model type.
type Definition struct {
	name       string
	table      string
	primaryKey string
	connection string
	timestamps bool
	eager      []string
	relations  map[string]func(Record) Relation
	relOrder   []string
	typ        reflect.Type
}

// Option configures a Definition at registration.
type Option func(*Definition)

// Table overrides the pluralised snake_case default.
func Table(name string) Option { return func(d *Definition) { d.table = name } }

// PrimaryKey overrides the default "id" column.  Any non-nil value in the
// key column marks a model as stored, so string keys save, delete, and
// refresh by value; ID reports integer keys only.
func PrimaryKey(col string) Option { return func(d *Definition) { d.primaryKey = col } }

// Connection selects a named connection instead of "default".
func Connection(name string) Option { return func(d *Definition) { d.connection = name } }

// Timestamps stamps created_at and updated_at on save.
func Timestamps() Option { return func(d *Definition) { d.timestamps = true } }

// EagerLoad sets relations loaded on every query unless removed with
// Without or WithOnly.  The list applies to queries started on the model
// (including lazy relation reads), not to the relation queries eager
// loading issues, so two models may eager load each other.
func EagerLoad(names ...string) Option {
	return func(d *Definition) { d.eager = append(d.eager, names...) }
}

// WithRelation declares a relation so it can be eager loaded by name.
func WithRelation[T Record](name string, build func(T) Relation) Option {
	return func(d *Definition) {
		if _, dup := d.relations[name]; !dup {
			d.relOrder = append(d.relOrder, name)
		}
		d.relations[name] = func(r Record) Relation { return build(r.(T)) }
	}
}

// Register records T under name and returns its Definition.  T must be a
// pointer to a struct embedding Model.
func Register[T Record](name string, opts ...Option) *Definition {
	typ := reflect.TypeFor[T]()
	if typ.Kind() != reflect.Pointer || typ.Elem().Kind() != reflect.Struct {
		panic(fmt.Sprintf("orm: Register[%s]: type must be a pointer to a struct embedding orm.Model", typ))
	}

	d := &Definition{
		name:       name,
		table:      tableName(name),
		primaryKey: "id",
		relations:  make(map[string]func(Record) Relation),
		typ:        typ,
	}
	for _, o := range opts {
		o(d)
	}
	if !validIdent(d.table) || !validIdent(d.primaryKey) {
		panic(fmt.Sprintf("orm: Register %q: %v: table %q / key %q", name, ErrInvalidIdentifier, d.table, d.primaryKey))
	}
	for _, e := range d.eager {
		if _, ok := d.relations[e]; !ok {
			panic(fmt.Sprintf("orm: Register %q: default eager relation %q is not declared", name, e))
		}
	}
	// Eager results are cached under the declared name and lazy reads look
	// under the relation's own name; they must agree.
	for _, rn := range d.relOrder {
		if n, ok := d.relations[rn](d.newRecord()).(namedRelation); ok && n.relationName() != rn {
			panic(fmt.Sprintf("orm: Register %q: relation %q is built with name %q", name, rn, n.relationName()))
		}
	}

	if err := registry.Register(registry.Model, name, typ, d); err != nil {
		panic(err)
	}
	e, err := registry.Lookup(registry.Model, name)
	if err != nil {
		panic(err)
	}
	return e.Value.(*Definition)
}

// Name is the registered model name.
func (d *Definition) Name() string { return d.name }

// TableName is the backing table.
func (d *Definition) TableName() string { return d.table }

// Key is the primary key column.
func (d *Definition) Key() string { return d.primaryKey }

// ConnectionName is the context connection the model queries.
func (d *Definition) ConnectionName() string { return d.connection }

// Relations lists declared relation names in declaration order.
func (d *Definition) Relations() []string { return append([]string(nil), d.relOrder...) }

// HasRelation reports whether name is declared.
func (d *Definition) HasRelation(name string) bool {
	_, ok := d.relations[name]
	return ok
}

// newRecord allocates a fresh, unsaved instance bound to d.
func (d *Definition) newRecord() Record {
	rec := reflect.New(d.typ.Elem()).Interface().(Record)
	m := rec.base()
	m.def = d
	m.attrs.reset()
	return rec
}

// definitionFor resolves the Definition registered for T.
func definitionFor[T Record]() (*Definition, error) {
	return definitionOf(reflect.TypeFor[T]())
}

func definitionOf(typ reflect.Type) (*Definition, error) {
	name, err := registry.NameOf(registry.Model, typ)
	if err != nil {
		return nil, &NotRegisteredError{Type: typ.String()}
	}
	e, err := registry.Lookup(registry.Model, name)
	if err != nil {
		return nil, err
	}
	return e.Value.(*Definition), nil
}

// DefinitionByName returns the Definition registered under name.
func DefinitionByName(name string) (*Definition, error) {
	e, err := registry.Lookup(registry.Model, name)
	if err != nil {
		return nil, err
	}
	d, ok := e.Value.(*Definition)
	if !ok {
		return nil, fmt.Errorf("orm: registry entry %q is not a model definition", name)
	}
	return d, nil
}
