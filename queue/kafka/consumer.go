package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync/atomic"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/multierr"

	"github.com/yanizio/keel/appctx"
	"github.com/yanizio/keel/internal/logger"
	"github.com/yanizio/keel/queue"
)

// Resolver returns the context for the tenant named in a message key.
type Resolver interface {
	ResolveName(ctx context.Context, name string) (*appctx.Context, error)
}

// ResolverFunc adapts a func to Resolver.
type ResolverFunc func(ctx context.Context, name string) (*appctx.Context, error)

func (f ResolverFunc) ResolveName(ctx context.Context, name string) (*appctx.Context, error) {
	return f(ctx, name)
}

// Options tune a Consumer.  Zero values pick the defaults.
type Options struct {
	Queue       string        // batch label, default "default"
	BatchSize   int           // max messages per fetch round, default 50
	MaxWait     time.Duration // wait for more messages once one arrived, default 250ms
	Concurrency int           // passed to queue.WithConcurrency
	MaxAttempts int           // redeliveries before a message is dropped, default 3
}

// Consumer reads payloads, groups them by tenant, and hands each group to
// queue.HandleBatch.  Failed messages are written back with an attempt
// header; the whole fetch round is committed once handled and every
// redelivery is written.  A failed redelivery leaves the round
// uncommitted and stops Run, so the round is read again after restart.
type Consumer struct {
	r       Reader
	retry   Writer
	resolve Resolver
	opts    Options
}

// NewConsumer wires r for reading and retry for redelivery.
func NewConsumer(r Reader, retry Writer, resolve Resolver, opts Options) *Consumer {
	if opts.Queue == "" {
		opts.Queue = appctx.DefaultName
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = 250 * time.Millisecond
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	return &Consumer{r: r, retry: retry, resolve: resolve, opts: opts}
}

// Run consumes until ctx is done or the reader is closed.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msgs, err := c.fetch(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("kafka: fetch: %w", err)
		}
		if err := c.process(ctx, msgs); err != nil {
			return err
		}
	}
}

// fetch blocks for one message then collects more until the batch is
// full or MaxWait passes.
func (c *Consumer) fetch(ctx context.Context) ([]kafkago.Message, error) {
	first, err := c.r.FetchMessage(ctx)
	if err != nil {
		return nil, err
	}
	msgs := []kafkago.Message{first}

	wctx, cancel := context.WithTimeout(ctx, c.opts.MaxWait)
	defer cancel()
	for len(msgs) < c.opts.BatchSize {
		m, err := c.r.FetchMessage(wctx)
		if err != nil {
			break
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// process handles one fetch round and commits it.  Tenant groups run in
// arrival order of their first message.
func (c *Consumer) process(ctx context.Context, msgs []kafkago.Message) error {
	order, groups := groupByKey(msgs)
	var errs error
	for _, key := range order {
		errs = multierr.Append(errs, c.handleGroup(ctx, key, groups[key]))
	}
	if errs != nil {
		return fmt.Errorf("kafka: redeliver: %w", errs)
	}
	if err := c.r.CommitMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka: commit: %w", err)
	}
	return nil
}

// handleGroup runs one tenant's messages and returns the redelivery
// write failures.
func (c *Consumer) handleGroup(ctx context.Context, tenant string, msgs []kafkago.Message) error {
	log := logger.From(ctx).With("tenant", tenant, "queue", c.opts.Queue)

	tc, err := c.resolve.ResolveName(ctx, tenant)
	if err != nil {
		// An unresolvable tenant never becomes resolvable by redelivery.
		log.Errorw("dropping messages for unknown tenant", "count", len(msgs), "err", err)
		return nil
	}

	batch := queue.Batch{Queue: c.opts.Queue, Messages: make([]queue.Message, len(msgs))}
	wrapped := make([]*message, len(msgs))
	for i, m := range msgs {
		wrapped[i] = &message{m: m}
		batch.Messages[i] = wrapped[i]
	}
	if err := queue.HandleBatch(ctx, tc, batch, queue.WithConcurrency(c.opts.Concurrency)); err != nil {
		log.Warnw("batch had failures", "err", err)
	}

	var errs error
	for _, m := range wrapped {
		if !m.retry.Load() {
			continue
		}
		n := attempts(m.m) + 1
		if n >= c.opts.MaxAttempts {
			log.Errorw("dropping message after max attempts", "id", m.ID(), "attempts", n)
			continue
		}
		if err := c.retry.WriteMessages(ctx, withAttempts(m.m, n)); err != nil {
			log.Errorw("redelivery failed", "id", m.ID(), "err", err)
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", m.ID(), err))
		}
	}
	return errs
}

func groupByKey(msgs []kafkago.Message) ([]string, map[string][]kafkago.Message) {
	var order []string
	groups := make(map[string][]kafkago.Message)
	for _, m := range msgs {
		k := string(m.Key)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], m)
	}
	return order, groups
}

// message adapts a kafka message to queue.Message.
type message struct {
	m     kafkago.Message
	retry atomic.Bool
}

func (m *message) ID() string {
	return m.m.Topic + "/" + strconv.Itoa(m.m.Partition) + "/" + strconv.FormatInt(m.m.Offset, 10)
}

func (m *message) Body() []byte { return m.m.Value }
func (m *message) Ack()         {}
func (m *message) Retry()       { m.retry.Store(true) }
