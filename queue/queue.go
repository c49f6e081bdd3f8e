// Package queue carries jobs and events across a queue hop.
//
// A Job or Event is registered once under a stable name together with a
// factory that rebuilds it from hydrated arguments:
//
//	type SendWelcome struct{ user *User }
//
//	func (j *SendWelcome) Arguments() []any { return []any{j.user} }
//	func (j *SendWelcome) Handle(ctx context.Context) error { ... }
//
//	func init() {
//		queue.RegisterJob("SendWelcome", func(ctx context.Context, a queue.Args) (*SendWelcome, error) {
//			u, err := queue.ModelArg[*User](a, 0)
//			return &SendWelcome{user: u}, err
//		})
//	}
//
// Dispatch serialises Arguments into a Payload and hands it to the
// context's queue.  On delivery HandleMessage hydrates the arguments,
// refetching every model reference by id, and runs the job or fans the
// event out to the context's listeners.
package queue

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/yanizio/keel/registry"
)

// Job is a unit of background work.
type Job interface {
	// Arguments are the values the factory needs to rebuild the job.
	Arguments() []any
	Handle(ctx context.Context) error
}

// Event is broadcast to every listener registered for its name.
type Event interface {
	Arguments() []any
}

// JobFactory rebuilds a registered job from hydrated arguments.
type JobFactory func(ctx context.Context, args Args) (Job, error)

// EventFactory rebuilds a registered event from hydrated arguments.
type EventFactory func(ctx context.Context, args Args) (Event, error)

var (
	// ErrQueueNotFound is returned by Dispatch when the named queue is not
	// bound in the current context.
	ErrQueueNotFound = errors.New("queue: queue not found")

	// ErrInvalidPayload marks a message whose body is not a valid Payload.
	ErrInvalidPayload = errors.New("queue: invalid payload")
)

// RegisterJob binds name to T.  It panics on an empty name or when the
// name or type is already bound to something else.
func RegisterJob[T Job](name string, factory func(ctx context.Context, args Args) (T, error)) {
	if factory == nil {
		panic(fmt.Sprintf("queue: nil factory for job %q", name))
	}
	wrapped := JobFactory(func(ctx context.Context, args Args) (Job, error) {
		j, err := factory(ctx, args)
		if err != nil {
			return nil, err
		}
		return j, nil
	})
	if err := registry.Register(registry.Job, name, reflect.TypeFor[T](), wrapped); err != nil {
		panic(err)
	}
}

// RegisterEvent binds name to T.  It panics like RegisterJob.
func RegisterEvent[T Event](name string, factory func(ctx context.Context, args Args) (T, error)) {
	if factory == nil {
		panic(fmt.Sprintf("queue: nil factory for event %q", name))
	}
	wrapped := EventFactory(func(ctx context.Context, args Args) (Event, error) {
		e, err := factory(ctx, args)
		if err != nil {
			return nil, err
		}
		return e, nil
	})
	if err := registry.Register(registry.Event, name, reflect.TypeFor[T](), wrapped); err != nil {
		panic(err)
	}
}

func jobFactory(name string) (JobFactory, error) {
	e, err := registry.Lookup(registry.Job, name)
	if err != nil {
		return nil, err
	}
	return e.Value.(JobFactory), nil
}

func eventFactory(name string) (EventFactory, error) {
	e, err := registry.Lookup(registry.Event, name)
	if err != nil {
		return nil, err
	}
	return e.Value.(EventFactory), nil
}
