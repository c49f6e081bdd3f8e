package appctx

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

// Builder accumulates bindings and produces an immutable *Context.  It is
// not safe for concurrent use.
type Builder struct {
	c   Context
	err error
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{c: Context{
		connections: map[string]DB{},
		disks:       map[string]Disk{},
		queues:      map[string]Queue{},
		channels:    map[string]Channel{},
		listeners:   map[string][]ListenerFactory{},
	}}
}

func (b *Builder) fail(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

// Name sets the diagnostic name.
func (b *Builder) Name(name string) *Builder {
	b.c.name = name
	return b
}

// Connection binds db under name ("" means default).
func (b *Builder) Connection(name string, db DB) *Builder {
	if db == nil {
		return b.fail(fmt.Errorf("appctx: nil connection %q", orDefault(name)))
	}
	b.c.connections[orDefault(name)] = db
	return b
}

// Disk binds d under name ("" means default).
func (b *Builder) Disk(name string, d Disk) *Builder {
	if d == nil {
		return b.fail(fmt.Errorf("appctx: nil disk %q", orDefault(name)))
	}
	b.c.disks[orDefault(name)] = d
	return b
}

// Queue binds q under name ("" means default).
func (b *Builder) Queue(name string, q Queue) *Builder {
	if q == nil {
		return b.fail(fmt.Errorf("appctx: nil queue %q", orDefault(name)))
	}
	b.c.queues[orDefault(name)] = q
	return b
}

// Channel binds an opaque channel value under name.
func (b *Builder) Channel(name string, binding any) *Builder {
	if name == "" {
		return b.fail(errors.New("appctx: channel name required"))
	}
	b.c.channels[name] = Channel{Name: name, Binding: binding}
	return b
}

// Listen appends listener factories for event.
func (b *Builder) Listen(event string, factories ...ListenerFactory) *Builder {
	if event == "" {
		return b.fail(errors.New("appctx: event name required"))
	}
	for _, f := range factories {
		if f == nil {
			return b.fail(fmt.Errorf("appctx: nil listener for %q", event))
		}
	}
	b.c.listeners[event] = append(b.c.listeners[event], factories...)
	return b
}

// AppKey sets the application secret.
func (b *Builder) AppKey(key string) *Builder {
	b.c.appKey = key
	return b
}

// Build returns the finished Context, or the first error recorded while
// chaining.  The Builder may keep being used; the returned Context does
// not share maps with it.
func (b *Builder) Build() (*Context, error) {
	if b.err != nil {
		return nil, b.err
	}
	c := &Context{
		name:        b.c.name,
		connections: maps.Clone(b.c.connections),
		disks:       maps.Clone(b.c.disks),
		queues:      maps.Clone(b.c.queues),
		channels:    maps.Clone(b.c.channels),
		listeners:   make(map[string][]ListenerFactory, len(b.c.listeners)),
		appKey:      b.c.appKey,
	}
	for ev, l := range b.c.listeners {
		c.listeners[ev] = slices.Clone(l)
	}
	return c, nil
}

// ToBuilder returns a Builder prefilled with c's bindings.
func (c *Context) ToBuilder() *Builder {
	b := NewBuilder()
	b.c.name = c.name
	b.c.appKey = c.appKey
	maps.Copy(b.c.connections, c.connections)
	maps.Copy(b.c.disks, c.disks)
	maps.Copy(b.c.queues, c.queues)
	maps.Copy(b.c.channels, c.channels)
	for ev, l := range c.listeners {
		b.c.listeners[ev] = slices.Clone(l)
	}
	return b
}
