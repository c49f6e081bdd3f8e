// cmd/keel/main.go
//
// keel host process: HTTP entry point and optional queue worker.
//
// Life-cycle
// ----------
//
//  1. Load config (conf/keel.yaml + KEEL_ env), then reload it through
//     Vault when `vault.enabled` is set.
//
//  2. Start daily rotating logger (tees to console when running in a TTY).
//
//  3. Pick the context resolver:
//
//     • multi-tenant  – open the control-plane DB and build the tenant
//     cache (lazy-loads each site on first hit).
//     • single-tenant – build one context from the `bindings` section.
//
//  4. Mount /metrics, then serve every other route inside the request's
//     context through appctx.Middleware.
//
//  5. When `queue_worker.enabled` is set, consume the Kafka topic and hand
//     each tenant's messages to queue.HandleBatch.
//
// SIGINT or SIGTERM drains the server and stops the worker.
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yanizio/keel/appctx"
	"github.com/yanizio/keel/internal/config"
	"github.com/yanizio/keel/internal/database"
	"github.com/yanizio/keel/internal/logger"
	keelmw "github.com/yanizio/keel/internal/middleware"
	"github.com/yanizio/keel/internal/server"
	"github.com/yanizio/keel/internal/tenant"
	"github.com/yanizio/keel/internal/tenant/meta"
	"github.com/yanizio/keel/internal/vault"
	"github.com/yanizio/keel/platform"
	"github.com/yanizio/keel/queue/kafka"
)

const shutdownGrace = 20 * time.Second

// runningInTTY returns true when stdout is a character device.
func runningInTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		zap.S().Errorw("keel stopped", "err", err)
		_ = zap.L().Sync()
		os.Exit(1)
	}
	_ = zap.L().Sync()
}

func run(ctx context.Context) error {
	//
	// ── 1.  Config (and Vault) ──────────────────────────────────────────
	//
	cfg, err := config.Load(ctx, nil)
	if err != nil {
		log.Printf("load config: %v", err)
		return err
	}
	var secrets *vault.Client
	if cfg.Vault.Enabled {
		if secrets, err = vault.New(ctx, cfg.Vault.CacheTTL); err != nil {
			return err
		}
		if cfg, err = config.Load(ctx, secrets); err != nil {
			return err
		}
	}

	//
	// ── 2.  Logger ──────────────────────────────────────────────────────
	//
	logOut, err := logger.New(cfg.Paths.Root, cfg.Log.Tee || runningInTTY(), cfg.Log.Level)
	if err != nil {
		log.Printf("start logger: %v", err)
		return err
	}

	writers := &writerPool{m: map[string]*kafkago.Writer{}}
	defer func() {
		if err := writers.Close(); err != nil {
			logOut.Warnw("kafka writers close", "err", err)
		}
	}()

	buildOpts := []platform.Option{platform.WithKafkaWriters(writers.get)}
	if secrets != nil {
		buildOpts = append(buildOpts, platform.WithSecrets(secrets))
	}

	//
	// ── 3.  Context resolver ────────────────────────────────────────────
	//
	var (
		resolver appctx.Resolver
		names    kafka.Resolver
	)
	if cfg.MultiTenant() {
		control, err := database.Open(ctx, cfg.Control.Driver, cfg.Control.DSN)
		if err != nil {
			return err
		}
		defer control.Close()

		// Log active-site count as an early sanity check.
		if sites, err := meta.AllActive(ctx, control); err == nil {
			logOut.Infow("control plane online", "active_sites", len(sites))
		} else {
			logOut.Warnw("site count failed", "err", err)
		}

		cache := tenant.New(control, tenant.Options{
			IdleTTL:        cfg.Tenant.IdleTTL,
			MaxEntries:     cfg.Tenant.MaxEntries,
			EvictInterval:  cfg.Tenant.EvictInterval,
			LocalhostAlias: cfg.Tenant.LocalhostAlias,
			Build:          buildOpts,
		})
		defer cache.Close()
		resolver, names = cache, cache
	} else {
		h, err := platform.Build(ctx, cfg.Bindings, append(buildOpts, platform.WithName(appctx.DefaultName))...)
		if err != nil {
			return err
		}
		defer h.Close()
		resolver = appctx.Static(h.Context)
		names = kafka.ResolverFunc(func(context.Context, string) (*appctx.Context, error) {
			return h.Context, nil
		})
		logOut.Infow("single-tenant context built",
			"connections", h.Context.ConnectionNames(),
			"queues", h.Context.QueueNames())
	}

	//
	// ── 4.  HTTP ────────────────────────────────────────────────────────
	//
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, keelmw.Security)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	r.Group(func(r chi.Router) {
		r.Use(appctx.Middleware(resolver), keelmw.Access)
		r.Get("/_keel/context", describeContext)
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Serve(gctx, server.New(cfg.HTTP.ListenAddr, r), shutdownGrace)
	})

	//
	// ── 5.  Queue worker ────────────────────────────────────────────────
	//
	if cfg.Worker.Enabled {
		w := cfg.Worker
		group := w.Group
		if group == "" {
			group = "keel"
		}
		reader := kafka.NewReader(w.Brokers, w.Topic, group)
		consumer := kafka.NewConsumer(reader, writers.get(w.Brokers, w.Topic), names, kafka.Options{
			BatchSize:   w.BatchSize,
			Concurrency: w.Concurrency,
			MaxAttempts: w.MaxAttempts,
		})
		g.Go(func() error {
			defer reader.Close()
			logOut.Infow("queue worker started", "topic", w.Topic, "group", group)
			return consumer.Run(gctx)
		})
	}

	return g.Wait()
}

// describeContext reports the handles bound to the request's context.
func describeContext(w http.ResponseWriter, r *http.Request) {
	c, err := appctx.From(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_, hasKey := c.AppKey()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"name":        c.Name(),
		"connections": c.ConnectionNames(),
		"queues":      c.QueueNames(),
		"app_key":     hasKey,
	})
}

// writerPool shares one Kafka writer per broker set and topic across all
// tenant contexts.
type writerPool struct {
	mu sync.Mutex
	m  map[string]*kafkago.Writer
}

func (p *writerPool) get(brokers []string, topic string) kafka.Writer {
	key := strings.Join(brokers, ",") + "/" + topic
	p.mu.Lock()
	defer p.mu.Unlock()
	if w, ok := p.m[key]; ok {
		return w
	}
	w := kafka.NewWriter(brokers, topic)
	p.m[key] = w
	return w
}

func (p *writerPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var err error
	for k, w := range p.m {
		err = multierr.Append(err, w.Close())
		delete(p.m, k)
	}
	return err
}
