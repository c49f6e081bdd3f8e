package queue

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/yanizio/keel/appctx"
	"github.com/yanizio/keel/internal/logger"
	"github.com/yanizio/keel/internal/metrics"
)

// Message is one delivered queue entry.  Ack and Retry are settled by
// HandleBatch; the transport decides what a retry means.
type Message interface {
	ID() string
	Body() []byte
	Ack()
	Retry()
}

// Batch is a group of messages from one queue, handled under one context.
type Batch struct {
	Queue    string
	Messages []Message
}

// MessageError is the failure of a single message in a batch.
type MessageError struct {
	ID  string
	Err error
}

func (e *MessageError) Error() string { return fmt.Sprintf("queue: message %s: %v", e.ID, e.Err) }
func (e *MessageError) Unwrap() error { return e.Err }

type batchOptions struct {
	concurrency int
}

// BatchOption tunes HandleBatch.
type BatchOption func(*batchOptions)

// WithConcurrency caps how many messages run at once.  n <= 0 means no cap.
func WithConcurrency(n int) BatchOption {
	return func(o *batchOptions) { o.concurrency = n }
}

// HandleBatch runs every message in b under c.  Successful messages are
// acked and failed ones marked for retry.  The returned error combines
// every failure; use multierr.Errors to split it.
func HandleBatch(ctx context.Context, c *appctx.Context, b Batch, opts ...BatchOption) error {
	var o batchOptions
	for _, fn := range opts {
		fn(&o)
	}

	return appctx.Run(ctx, c, func(ctx context.Context) error {
		ctx = logger.With(ctx, "queue", b.Queue, "tenant", c.Name())

		var (
			mu   sync.Mutex
			errs error
			g    errgroup.Group
		)
		if o.concurrency > 0 {
			g.SetLimit(o.concurrency)
		}
		for _, m := range b.Messages {
			g.Go(func() error {
				if err := handleOne(ctx, m); err != nil {
					m.Retry()
					metrics.QueueMessagesTotal.WithLabelValues("retry").Inc()
					logger.From(ctx).Warnw("message failed", "id", m.ID(), "err", err)
					mu.Lock()
					errs = multierr.Append(errs, &MessageError{ID: m.ID(), Err: err})
					mu.Unlock()
					return nil
				}
				m.Ack()
				metrics.QueueMessagesTotal.WithLabelValues("ack").Inc()
				return nil
			})
		}
		_ = g.Wait()
		return errs
	})
}

func handleOne(ctx context.Context, m Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.From(ctx).Errorw("message panic", "id", m.ID(), "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("queue: panic: %v", r)
		}
	}()
	return HandleMessage(ctx, m.Body())
}
