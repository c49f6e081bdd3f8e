package platform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/multierr"

	"github.com/yanizio/keel/appctx"
	"github.com/yanizio/keel/blob/memory"
	"github.com/yanizio/keel/blob/s3"
	"github.com/yanizio/keel/internal/database"
	"github.com/yanizio/keel/queue"
	"github.com/yanizio/keel/queue/kafka"
)

// secretPrefix matches internal/vault.Prefix.
const secretPrefix = "vault:"

// ErrNoSecrets is returned when a binding holds a secret reference but no
// SecretResolver was supplied.
var ErrNoSecrets = errors.New("platform: secret reference without a resolver")

// SecretResolver turns `vault:` references into their values.
type SecretResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// WriterFactory returns the Kafka writer for a broker set and topic.
type WriterFactory func(brokers []string, topic string) kafka.Writer

// UserConfig is application wiring merged into every built context.
type UserConfig struct {
	// Listeners maps an event name to the listeners it fans out to.
	Listeners map[string][]appctx.ListenerFactory
}

var userConfig atomic.Pointer[UserConfig]

// SetConfig installs application wiring for later Build calls.
func SetConfig(cfg UserConfig) { userConfig.Store(&cfg) }

type options struct {
	name    string
	secrets SecretResolver
	writer  WriterFactory
	dbOpts  database.Options
}

// Option tunes Build.
type Option func(*options)

// WithName names the context; Kafka senders use it as the message key.
func WithName(name string) Option { return func(o *options) { o.name = name } }

// WithSecrets resolves `vault:` references through r.
func WithSecrets(r SecretResolver) Option { return func(o *options) { o.secrets = r } }

// WithKafkaWriters shares writers across builds.  Without it every build
// opens its own writer and closes it with the Handles.
func WithKafkaWriters(fn WriterFactory) Option { return func(o *options) { o.writer = fn } }

// WithPoolOptions overrides the per-connection pool settings.
func WithPoolOptions(opts database.Options) Option { return func(o *options) { o.dbOpts = opts } }

// tenantPool keeps per-tenant resource usage small.
var tenantPool = database.Options{
	MaxOpenConns:    5,
	MaxIdleConns:    2,
	ConnMaxLifetime: 30 * time.Minute,
	Retries:         2,
	RetryBackoff:    500 * time.Millisecond,
}

// Handles owns what Build opened.
type Handles struct {
	Context *appctx.Context

	memQueues map[string]*queue.MemoryQueue
	closers   []io.Closer
}

// MemoryQueue returns the in-process queue bound under name.
func (h *Handles) MemoryQueue(name string) (*queue.MemoryQueue, bool) {
	if name == "" {
		name = appctx.DefaultName
	}
	q, ok := h.memQueues[name]
	return q, ok
}

// Close releases every pool and writer, reporting all failures.
func (h *Handles) Close() error {
	var err error
	for i := len(h.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, h.closers[i].Close())
	}
	h.closers = nil
	return err
}

// Build opens every binding and returns the finished context.  On error
// anything already opened is closed.
func Build(ctx context.Context, b Bindings, opts ...Option) (_ *Handles, err error) {
	o := options{dbOpts: tenantPool}
	for _, fn := range opts {
		fn(&o)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}

	h := &Handles{memQueues: map[string]*queue.MemoryQueue{}}
	defer func() {
		if err != nil {
			err = multierr.Append(err, h.Close())
		}
	}()

	cb := appctx.NewBuilder().Name(o.name)

	for _, name := range sortedKeys(b.Connections) {
		db, err := o.openConnection(ctx, name, b.Connections[name])
		if err != nil {
			return nil, err
		}
		h.closers = append(h.closers, db)
		cb.Connection(name, db)
	}

	for _, name := range sortedKeys(b.Disks) {
		d, err := o.openDisk(ctx, b.Disks[name])
		if err != nil {
			return nil, fmt.Errorf("platform: disk %q: %w", name, err)
		}
		cb.Disk(name, d)
	}

	for _, name := range sortedKeys(b.Queues) {
		qb := b.Queues[name]
		switch qb.Driver {
		case "memory":
			mq := queue.NewMemoryQueue(name)
			h.memQueues[name] = mq
			cb.Queue(name, mq)
		case "kafka":
			var w kafka.Writer
			if o.writer != nil {
				w = o.writer(qb.Brokers, qb.Topic)
			} else {
				kw := kafka.NewWriter(qb.Brokers, qb.Topic)
				h.closers = append(h.closers, kw)
				w = kw
			}
			cb.Queue(name, kafka.NewSender(w, o.name))
		}
	}

	for _, name := range sortedKeys(b.Channels) {
		v, err := o.secret(ctx, b.Channels[name])
		if err != nil {
			return nil, fmt.Errorf("platform: channel %q: %w", name, err)
		}
		cb.Channel(name, v)
	}

	if b.AppKey != "" {
		key, err := o.secret(ctx, b.AppKey)
		if err != nil {
			return nil, fmt.Errorf("platform: app key: %w", err)
		}
		cb.AppKey(key)
	}

	if uc := userConfig.Load(); uc != nil {
		for _, event := range sortedKeys(uc.Listeners) {
			cb.Listen(event, uc.Listeners[event]...)
		}
	}

	c, err := cb.Build()
	if err != nil {
		return nil, err
	}
	h.Context = c
	return h, nil
}

func (o *options) secret(ctx context.Context, s string) (string, error) {
	if !strings.HasPrefix(s, secretPrefix) {
		return s, nil
	}
	if o.secrets == nil {
		return "", ErrNoSecrets
	}
	return o.secrets.Resolve(ctx, s)
}

func (o *options) openConnection(ctx context.Context, name string, c Connection) (*sqlx.DB, error) {
	dsn, err := o.secret(ctx, c.DSN)
	if err != nil {
		return nil, fmt.Errorf("platform: connection %q: %w", name, err)
	}
	pool := o.dbOpts
	if c.MaxOpen > 0 {
		pool.MaxOpenConns = c.MaxOpen
	}
	if c.MaxIdle > 0 {
		pool.MaxIdleConns = c.MaxIdle
	}
	db, err := database.OpenWithOptions(ctx, c.Driver, dsn, pool)
	if err != nil {
		return nil, fmt.Errorf("platform: connection %q: %w", name, err)
	}
	return db, nil
}

func (o *options) openDisk(ctx context.Context, d Disk) (appctx.Disk, error) {
	if d.Driver == "memory" {
		return memory.New(), nil
	}
	id, err := o.secret(ctx, d.AccessKeyID)
	if err != nil {
		return nil, err
	}
	secret, err := o.secret(ctx, d.SecretAccessKey)
	if err != nil {
		return nil, err
	}
	return s3.New(ctx, s3.Config{
		Bucket:          d.Bucket,
		Region:          d.Region,
		Endpoint:        d.Endpoint,
		AccessKeyID:     id,
		SecretAccessKey: secret,
		PathStyle:       d.PathStyle,
	})
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
