// platform/bindings.go
//
// Declarative resource bindings for one unit of work.
//
// Context
// -------
// A Bindings value names every handle a context exposes: SQL connections,
// blob disks, queues, channels, and the app key.  It is read from the
// `bindings` section of conf/keel.yaml (koanf tags) or from the JSON
// `bindings` column of a tenant's site row (json tags), validated with
// go-playground/validator, and turned into live handles by Build.
//
// Notes
// -----
//   - Any string field may hold a `vault:<path>#<key>` reference; Build
//     resolves it through the configured SecretResolver.
//   - Map keys are handle names; "default" is what callers get when they
//     pass "".
package platform

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Connection binds one SQL pool.
type Connection struct {
	Driver  string `koanf:"driver"   json:"driver"   validate:"required,oneof=mysql pgx sqlite"`
	DSN     string `koanf:"dsn"      json:"dsn"      validate:"required"`
	MaxOpen int    `koanf:"max_open" json:"max_open" validate:"gte=0"`
	MaxIdle int    `koanf:"max_idle" json:"max_idle" validate:"gte=0"`
}

// Disk binds one blob store.
type Disk struct {
	Driver          string `koanf:"driver"            json:"driver"            validate:"required,oneof=memory s3"`
	Bucket          string `koanf:"bucket"            json:"bucket"            validate:"required_if=Driver s3"`
	Region          string `koanf:"region"            json:"region"`
	Endpoint        string `koanf:"endpoint"          json:"endpoint"`
	AccessKeyID     string `koanf:"access_key_id"     json:"access_key_id"`
	SecretAccessKey string `koanf:"secret_access_key" json:"secret_access_key"`
	PathStyle       bool   `koanf:"path_style"        json:"path_style"`
}

// Queue binds one queue handle.
type Queue struct {
	Driver  string   `koanf:"driver"  json:"driver"  validate:"required,oneof=memory kafka"`
	Brokers []string `koanf:"brokers" json:"brokers" validate:"required_if=Driver kafka"`
	Topic   string   `koanf:"topic"   json:"topic"   validate:"required_if=Driver kafka"`
}

// Bindings is the full set of handles for one context.
type Bindings struct {
	Connections map[string]Connection `koanf:"connections" json:"connections" validate:"dive"`
	Disks       map[string]Disk       `koanf:"disks"       json:"disks"       validate:"dive"`
	Queues      map[string]Queue      `koanf:"queues"      json:"queues"      validate:"dive"`
	Channels    map[string]string     `koanf:"channels"    json:"channels"`
	AppKey      string                `koanf:"app_key"     json:"app_key"`
}

var validate = validator.New()

// Validate checks every binding.
func (b Bindings) Validate() error {
	if err := validate.Struct(b); err != nil {
		return fmt.Errorf("platform: invalid bindings: %w", err)
	}
	return nil
}

// ParseBindings decodes and validates a JSON bindings document.  Empty
// input yields empty bindings.
func ParseBindings(raw []byte) (Bindings, error) {
	var b Bindings
	if len(raw) == 0 {
		return b, nil
	}
	if err := json.Unmarshal(raw, &b); err != nil {
		return Bindings{}, fmt.Errorf("platform: decode bindings: %w", err)
	}
	if err := b.Validate(); err != nil {
		return Bindings{}, err
	}
	return b, nil
}
