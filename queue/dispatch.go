package queue

import (
	"context"
	"fmt"
	"reflect"

	"go.uber.org/multierr"

	"github.com/yanizio/keel/appctx"
	"github.com/yanizio/keel/internal/logger"
	"github.com/yanizio/keel/internal/metrics"
	"github.com/yanizio/keel/registry"
)

type dispatchOptions struct {
	queue string
}

// Option adjusts a single Dispatch or Emit call.
type Option func(*dispatchOptions)

// OnQueue sends to the named queue instead of "default".
func OnQueue(name string) Option {
	return func(o *dispatchOptions) { o.queue = name }
}

// Dispatch serialises job and sends it on the context's queue.
func Dispatch(ctx context.Context, job Job, opts ...Option) error {
	name, err := registry.NameOf(registry.Job, reflect.TypeOf(job))
	if err != nil {
		return err
	}
	p, err := buildPayload(job.Arguments())
	if err != nil {
		return fmt.Errorf("queue: job %s: %w", name, err)
	}
	p.Job = name
	return send(ctx, "job", p, opts)
}

// Emit serialises event and sends it on the context's queue.
func Emit(ctx context.Context, event Event, opts ...Option) error {
	name, err := registry.NameOf(registry.Event, reflect.TypeOf(event))
	if err != nil {
		return err
	}
	p, err := buildPayload(event.Arguments())
	if err != nil {
		return fmt.Errorf("queue: event %s: %w", name, err)
	}
	p.Event = name
	return send(ctx, "event", p, opts)
}

func buildPayload(args []any) (Payload, error) {
	raw, err := SerializeArguments(args)
	if err != nil {
		return Payload{}, err
	}
	return Payload{Payload: raw}, nil
}

func send(ctx context.Context, kind string, p Payload, opts []Option) error {
	o := dispatchOptions{queue: appctx.DefaultName}
	for _, fn := range opts {
		fn(&o)
	}

	c, err := appctx.From(ctx)
	if err != nil {
		return err
	}
	q, err := c.Queue(o.queue)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrQueueNotFound, err)
	}
	body, err := p.Encode()
	if err != nil {
		return err
	}
	if err := q.Send(ctx, body); err != nil {
		return fmt.Errorf("queue: send to %q: %w", o.queue, err)
	}
	metrics.QueueDispatchTotal.WithLabelValues(kind).Inc()
	logger.From(ctx).Debugw("dispatched", "kind", kind, "name", p.Job+p.Event, "queue", o.queue)
	return nil
}

// DispatchSync round-trips job through its wire form and handles it in
// process, against the current context.
func DispatchSync(ctx context.Context, job Job) error {
	name, err := registry.NameOf(registry.Job, reflect.TypeOf(job))
	if err != nil {
		return err
	}
	p, err := buildPayload(job.Arguments())
	if err != nil {
		return fmt.Errorf("queue: job %s: %w", name, err)
	}
	p.Job = name
	body, err := p.Encode()
	if err != nil {
		return err
	}
	return HandleMessage(ctx, body)
}

// HandleMessage rebuilds the job or event in body and runs it.
func HandleMessage(ctx context.Context, body []byte) error {
	p, err := DecodePayload(body)
	if err != nil {
		return err
	}
	if p.Job != "" {
		return handleJob(ctx, p)
	}
	return handleEvent(ctx, p)
}

func handleJob(ctx context.Context, p Payload) error {
	factory, err := jobFactory(p.Job)
	if err != nil {
		return err
	}
	args, err := HydrateArguments(ctx, p.Payload)
	if err != nil {
		return fmt.Errorf("queue: job %s: %w", p.Job, err)
	}
	job, err := factory(ctx, args)
	if err != nil {
		return fmt.Errorf("queue: build job %s: %w", p.Job, err)
	}
	return job.Handle(ctx)
}

func handleEvent(ctx context.Context, p Payload) error {
	factory, err := eventFactory(p.Event)
	if err != nil {
		return err
	}
	c, err := appctx.From(ctx)
	if err != nil {
		return err
	}
	args, err := HydrateArguments(ctx, p.Payload)
	if err != nil {
		return fmt.Errorf("queue: event %s: %w", p.Event, err)
	}
	ev, err := factory(ctx, args)
	if err != nil {
		return fmt.Errorf("queue: build event %s: %w", p.Event, err)
	}

	var errs error
	for _, l := range c.Listeners(p.Event) {
		if err := l.Handle(ctx, ev); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("queue: listener for %s: %w", p.Event, err))
		}
	}
	return errs
}

// On adapts a typed listener func to a listener factory.  Events of other
// types are ignored.
func On[E Event](fn func(ctx context.Context, event E) error) appctx.ListenerFactory {
	return func() appctx.Listener {
		return appctx.ListenerFunc(func(ctx context.Context, event any) error {
			e, ok := event.(E)
			if !ok {
				return nil
			}
			return fn(ctx, e)
		})
	}
}
