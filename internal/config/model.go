// internal/config/model.go
//
// Typed configuration model for keel.
//
// Context
// -------
// These structs define the shape of the configuration tree that
// `internal/config/loader.go` builds from three overlay layers:
//
//   - optional `.env`                        – dotenv values,
//   - `conf/keel.yaml`                       – primary static file,
//   - `KEEL_`-prefixed environment overrides – highest precedence.
//
// Any value whose string begins with the prefix `vault:` is resolved
// through the configured secret resolver *before* unmarshalling, so the
// model never stores Vault URIs, only plain strings.
//
// Notes
// -----
//   - Struct tags use `koanf:"…"`, not `yaml:"…"`.  Koanf ignores `yaml`
//     tags unless configured otherwise.
//   - Durations accept Go syntax ("30m", "5s").
//   - The `Paths` block is filled at runtime; YAML must not try to set it.
package config

import (
	"time"

	"github.com/yanizio/keel/platform"
)

// HTTP holds web-server tunables.
type HTTP struct {
	ListenAddr string `koanf:"listen_addr" validate:"required,hostname_port"`
}

// Log configures internal/logger.
type Log struct {
	Level string `koanf:"level" validate:"omitempty,oneof=debug info warn error"`
	Tee   bool   `koanf:"tee"`
}

// Control is the control-plane database holding the `site` table.  When
// DSN is empty keel runs single-tenant from the `bindings` section.
type Control struct {
	Driver string `koanf:"driver" validate:"required_with=DSN,omitempty,oneof=mysql pgx sqlite"`
	DSN    string `koanf:"dsn"`
}

// Tenant tunes the host → context cache.
type Tenant struct {
	IdleTTL        time.Duration `koanf:"idle_ttl"`
	MaxEntries     int           `koanf:"max_entries"    validate:"gte=0"`
	EvictInterval  time.Duration `koanf:"evict_interval"`
	LocalhostAlias string        `koanf:"localhost_alias"`
}

// Worker configures the optional Kafka consumer loop.
type Worker struct {
	Enabled     bool     `koanf:"enabled"`
	Brokers     []string `koanf:"brokers"      validate:"required_if=Enabled true"`
	Topic       string   `koanf:"topic"        validate:"required_if=Enabled true"`
	Group       string   `koanf:"group"`
	BatchSize   int      `koanf:"batch_size"   validate:"gte=0"`
	Concurrency int      `koanf:"concurrency"  validate:"gte=0"`
	MaxAttempts int      `koanf:"max_attempts" validate:"gte=0"`
}

// Vault toggles secret resolution.
type Vault struct {
	Enabled  bool          `koanf:"enabled"`
	CacheTTL time.Duration `koanf:"cache_ttl"`
}

// Paths is resolved at runtime, never set in YAML or env.
type Paths struct {
	Root string // KEEL_ROOT or discovered parent
}

// Config is the immutable aggregate returned by Load() and cached in an
// atomic.Pointer for lock-free reads.
type Config struct {
	HTTP     HTTP              `koanf:"http"`
	Log      Log               `koanf:"log"`
	Control  Control           `koanf:"control"`
	Tenant   Tenant            `koanf:"tenant"`
	Worker   Worker            `koanf:"queue_worker"`
	Vault    Vault             `koanf:"vault"`
	Bindings platform.Bindings `koanf:"bindings"`
	Paths    Paths             `koanf:"-"`
}

// MultiTenant reports whether contexts come from the control plane.
func (c *Config) MultiTenant() bool { return c.Control.DSN != "" }
