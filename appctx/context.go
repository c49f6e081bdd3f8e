// appctx/context.go
//
// Per-unit-of-work configuration snapshot.
//
// Context
// -------
// One keel process interleaves many requests and queue batches, each
// belonging to a different tenant.  Every unit of work gets its own
// *Context holding the database handles, storage disks, queue senders,
// channel bindings, and event listeners it may touch.  A Context is built
// once with Builder and never mutated afterwards, so any number of
// goroutines in the same unit of work may read it without locking.
//
// Notes
// -----
//   - The empty name resolves to "default" for connections, disks, and
//     queues.
//   - Accessor misses return *ConfigurationError naming the binding, never
//     a nil handle.
package appctx

import (
	"context"
	"database/sql"
	"sort"

	"github.com/jmoiron/sqlx"

	"github.com/yanizio/keel/blob"
)

// DefaultName is used when a caller asks for the unnamed binding.
const DefaultName = "default"

// DB is the subset of *sqlx.DB the query engine uses.
type DB interface {
	QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error)
	QueryRowxContext(ctx context.Context, query string, args ...any) *sqlx.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Rebind(query string) string
	DriverName() string
}

var _ DB = (*sqlx.DB)(nil)

// Queue is a send-only queue handle.  Payloads are opaque JSON documents.
type Queue interface {
	Send(ctx context.Context, payload []byte) error
}

// Disk is a storage handle passed through to application code untouched.
type Disk = blob.Store

// Channel is an opaque broadcast binding.
type Channel struct {
	Name    string
	Binding any
}

// Listener receives emitted events.
type Listener interface {
	Handle(ctx context.Context, event any) error
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, event any) error

func (f ListenerFunc) Handle(ctx context.Context, event any) error { return f(ctx, event) }

// ListenerFactory builds a fresh Listener for each delivery.
type ListenerFactory func() Listener

// Context is the immutable configuration of one unit of work.
type Context struct {
	name        string
	connections map[string]DB
	disks       map[string]Disk
	queues      map[string]Queue
	channels    map[string]Channel
	listeners   map[string][]ListenerFactory
	appKey      string
}

// Name identifies the context in logs (usually the tenant host).
func (c *Context) Name() string { return c.name }

func orDefault(name string) string {
	if name == "" {
		return DefaultName
	}
	return name
}

// DB returns the named connection.
func (c *Context) DB(name string) (DB, error) {
	name = orDefault(name)
	if db, ok := c.connections[name]; ok {
		return db, nil
	}
	return nil, &ConfigurationError{Resource: ResourceConnection, Name: name}
}

// Disk returns the named storage disk.
func (c *Context) Disk(name string) (Disk, error) {
	name = orDefault(name)
	if d, ok := c.disks[name]; ok {
		return d, nil
	}
	return nil, &ConfigurationError{Resource: ResourceDisk, Name: name}
}

// Queue returns the named queue handle.
func (c *Context) Queue(name string) (Queue, error) {
	name = orDefault(name)
	if q, ok := c.queues[name]; ok {
		return q, nil
	}
	return nil, &ConfigurationError{Resource: ResourceQueue, Name: name}
}

// Channel returns the named channel binding.
func (c *Context) Channel(name string) (Channel, error) {
	if ch, ok := c.channels[name]; ok {
		return ch, nil
	}
	return Channel{}, &ConfigurationError{Resource: ResourceChannel, Name: name}
}

// Listeners instantiates every listener registered for event, in
// registration order.  An event with no listeners yields nil.
func (c *Context) Listeners(event string) []Listener {
	facs := c.listeners[event]
	if len(facs) == 0 {
		return nil
	}
	out := make([]Listener, 0, len(facs))
	for _, f := range facs {
		out = append(out, f())
	}
	return out
}

// AppKey returns the application secret and whether one was configured.
func (c *Context) AppKey() (string, bool) { return c.appKey, c.appKey != "" }

// ConnectionNames lists configured connections, sorted.
func (c *Context) ConnectionNames() []string { return sortedKeys(c.connections) }

// QueueNames lists configured queues, sorted.
func (c *Context) QueueNames() []string { return sortedKeys(c.queues) }

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
