package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
http:
  listen_addr: "127.0.0.1:8080"
log:
  level: info
tenant:
  idle_ttl: 10m
  max_entries: 20
queue_worker:
  enabled: false
bindings:
  connections:
    default:
      driver: sqlite
      dsn: "vault:kv/app#dsn"
  queues:
    default:
      driver: memory
  app_key: plain-key
`

func writeRoot(t *testing.T, body string) string {
	t.Helper()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "conf"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "conf", fileName), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("KEEL_ROOT", root)
	return root
}

type secrets map[string]string

func (s secrets) Resolve(_ context.Context, ref string) (string, error) {
	if v, ok := s[ref]; ok {
		return v, nil
	}
	return "", errors.New("unknown secret")
}

func TestLoadLayers(t *testing.T) {
	root := writeRoot(t, sampleYAML)
	t.Setenv("KEEL_HTTP__LISTEN_ADDR", "0.0.0.0:9090")

	cfg, err := Load(context.Background(), secrets{"vault:kv/app#dsn": ":memory:"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.ListenAddr != "0.0.0.0:9090" {
		t.Fatalf("env override ignored: %q", cfg.HTTP.ListenAddr)
	}
	if cfg.Tenant.IdleTTL != 10*time.Minute || cfg.Tenant.MaxEntries != 20 {
		t.Fatalf("tenant = %+v", cfg.Tenant)
	}
	if got := cfg.Bindings.Connections["default"].DSN; got != ":memory:" {
		t.Fatalf("secret not resolved: %q", got)
	}
	if cfg.Bindings.AppKey != "plain-key" || cfg.Paths.Root != root {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.MultiTenant() {
		t.Fatal("no control DSN means single tenant")
	}
	if Get() != cfg {
		t.Fatal("Load must cache the config")
	}
}

func TestLoadKeepsReferencesWithoutResolver(t *testing.T) {
	writeRoot(t, sampleYAML)
	cfg, err := Load(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(cfg.Bindings.Connections["default"].DSN, "vault:") {
		t.Fatal("references must survive for later resolution")
	}
}

func TestLoadValidates(t *testing.T) {
	writeRoot(t, "http:\n  listen_addr: \"not an address\"\n")
	if _, err := Load(context.Background(), nil); err == nil {
		t.Fatal("bad listen_addr must fail")
	}

	writeRoot(t, sampleYAML+"\ncontrol:\n  dsn: \"x\"\n")
	if _, err := Load(context.Background(), nil); err == nil {
		t.Fatal("control dsn without driver must fail")
	}

	writeRoot(t, strings.Replace(sampleYAML, "driver: memory", "driver: carrier-pigeon", 1))
	if _, err := Load(context.Background(), nil); err == nil {
		t.Fatal("bad queue driver must fail")
	}
}
