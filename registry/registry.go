// registry/registry.go
//
// Process-wide constructor registry for models, jobs, and events.
//
// Context
// -------
// Serialised jobs and events cross a queue hop and are rebuilt in a later
// invocation, possibly in another process.  The receiving side only has
// the names written into the payload, so every model, job, and event type
// registers a stable, caller-chosen name plus its constructor here.  The
// table is written once at startup (package init or variable
// initialisation) and read by every concurrent unit of work afterwards.
//
// Workflow
// --------
//  1. orm.Register and queue.RegisterJob/RegisterEvent call Register.
//  2. The serialisation bridge calls NameOf when dispatching.
//  3. Delivery calls Lookup to turn a payload name back into a
//     constructor.
//
// Notes
// -----
//   - Names are explicit strings, never derived from Go type names, so
//     build tooling and refactors cannot change the wire identity.
//   - There is no unregistration.  New() exists so tests can use a
//     private table instead of Default.
package registry

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// Kind partitions the table so a model and a job may share a name.
type Kind string

const (
	Model Kind = "model"
	Job   Kind = "job"
	Event Kind = "event"
)

var (
	// ErrEmptyName is returned when Register receives an empty name.
	ErrEmptyName = errors.New("registry: empty name")
	// ErrNilType is returned when Register receives a nil reflect.Type.
	ErrNilType = errors.New("registry: nil type")
	// ErrConflict is returned when a name is re-registered for a
	// different type, or a type under a different name.
	ErrConflict = errors.New("registry: conflicting registration")
)

// NotFoundError reports a Lookup or NameOf miss.
type NotFoundError struct {
	Kind Kind
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("registry: %s %q is not registered", e.Kind, e.Name)
}

// Entry is one registration.  Value holds the kind-specific constructor
// (an *orm.Definition for models, a factory func for jobs and events).
type Entry struct {
	Kind  Kind
	Name  string
	Type  reflect.Type
	Value any
}

type key struct {
	kind Kind
	name string
}

type typeKey struct {
	kind Kind
	typ  reflect.Type
}

// Registry is safe for concurrent use.  The zero value is not usable;
// construct with New.
type Registry struct {
	mu     sync.RWMutex
	byName map[key]Entry
	byType map[typeKey]string
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		byName: make(map[key]Entry),
		byType: make(map[typeKey]string),
	}
}

// Default is the process-wide table used by orm and queue.
var Default = New()

// Register stores value under (kind, name).  Registering the same
// (kind, name, type) twice is a no-op that keeps the first value.
func (r *Registry) Register(kind Kind, name string, typ reflect.Type, value any) error {
	if name == "" {
		return ErrEmptyName
	}
	if typ == nil {
		return ErrNilType
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{kind, name}
	if old, ok := r.byName[k]; ok {
		if old.Type == typ {
			return nil
		}
		return fmt.Errorf("%w: %s %q already bound to %s", ErrConflict, kind, name, old.Type)
	}
	tk := typeKey{kind, typ}
	if oldName, ok := r.byType[tk]; ok {
		return fmt.Errorf("%w: %s already registered as %s %q", ErrConflict, typ, kind, oldName)
	}

	r.byName[k] = Entry{Kind: kind, Name: name, Type: typ, Value: value}
	r.byType[tk] = name
	return nil
}

// Lookup returns the entry for (kind, name) or a *NotFoundError.
func (r *Registry) Lookup(kind Kind, name string) (Entry, error) {
	r.mu.RLock()
	e, ok := r.byName[key{kind, name}]
	r.mu.RUnlock()
	if !ok {
		return Entry{}, &NotFoundError{Kind: kind, Name: name}
	}
	return e, nil
}

// NameOf returns the registered name for typ.
func (r *Registry) NameOf(kind Kind, typ reflect.Type) (string, error) {
	r.mu.RLock()
	name, ok := r.byType[typeKey{kind, typ}]
	r.mu.RUnlock()
	if !ok {
		n := "<nil>"
		if typ != nil {
			n = typ.String()
		}
		return "", &NotFoundError{Kind: kind, Name: n}
	}
	return name, nil
}

// Names returns every registered name of kind, sorted.
func (r *Registry) Names(kind Kind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byName))
	for k := range r.byName {
		if k.kind == kind {
			out = append(out, k.name)
		}
	}
	sort.Strings(out)
	return out
}

// Package-level helpers bound to Default.

func Register(kind Kind, name string, typ reflect.Type, value any) error {
	return Default.Register(kind, name, typ, value)
}

func Lookup(kind Kind, name string) (Entry, error) { return Default.Lookup(kind, name) }

func NameOf(kind Kind, typ reflect.Type) (string, error) { return Default.NameOf(kind, typ) }

func Names(kind Kind) []string { return Default.Names(kind) }
