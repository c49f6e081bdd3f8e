package platform

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/yanizio/keel/appctx"
	"github.com/yanizio/keel/blob"
)

type fakeSecrets map[string]string

func (f fakeSecrets) Resolve(_ context.Context, ref string) (string, error) {
	v, ok := f[ref]
	if !ok {
		return "", errors.New("no such secret")
	}
	return v, nil
}

const sample = `{
	"connections": {"default": {"driver": "sqlite", "dsn": "vault:kv/acme#dsn", "max_open": 1}},
	"disks":       {"default": {"driver": "memory"}},
	"queues":      {"default": {"driver": "memory"}},
	"channels":    {"updates": "wss://push.example/acme"},
	"app_key":     "vault:kv/acme#app_key"
}`

func TestBuildFromJSON(t *testing.T) {
	b, err := ParseBindings([]byte(sample))
	if err != nil {
		t.Fatalf("ParseBindings: %v", err)
	}
	secrets := fakeSecrets{"vault:kv/acme#dsn": ":memory:", "vault:kv/acme#app_key": "k3y"}

	h, err := Build(context.Background(), b, WithName("acme"), WithSecrets(secrets))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer h.Close()

	c := h.Context
	if c.Name() != "acme" {
		t.Fatalf("name = %q", c.Name())
	}
	db, err := c.DB("")
	if err != nil || db.DriverName() != "sqlite" {
		t.Fatalf("DB = %v, %v", db, err)
	}
	if d, err := c.Disk(""); err != nil || d.Driver() != blob.DriverMemory {
		t.Fatalf("Disk = %v, %v", d, err)
	}
	q, err := c.Queue("")
	if err != nil {
		t.Fatal(err)
	}
	mq, ok := h.MemoryQueue("")
	if !ok || q != appctx.Queue(mq) {
		t.Fatal("memory queue must be reachable from the handles")
	}
	if ch, err := c.Channel("updates"); err != nil || ch.Binding != "wss://push.example/acme" {
		t.Fatalf("Channel = %+v, %v", ch, err)
	}
	if key, ok := c.AppKey(); !ok || key != "k3y" {
		t.Fatalf("AppKey = %q", key)
	}
}

func TestBuildRejectsInvalidBindings(t *testing.T) {
	_, err := ParseBindings([]byte(`{"connections": {"default": {"driver": "oracle", "dsn": "x"}}}`))
	if err == nil || !strings.Contains(err.Error(), "invalid bindings") {
		t.Fatalf("bad driver: %v", err)
	}
	_, err = ParseBindings([]byte(`{"queues": {"default": {"driver": "kafka"}}}`))
	if err == nil {
		t.Fatal("kafka queue without brokers must fail")
	}
	_, err = ParseBindings([]byte(`{"disks": {"media": {"driver": "s3"}}}`))
	if err == nil {
		t.Fatal("s3 disk without bucket must fail")
	}
}

func TestBuildNeedsResolverForSecrets(t *testing.T) {
	b := Bindings{AppKey: "vault:kv/x#y"}
	if _, err := Build(context.Background(), b); !errors.Is(err, ErrNoSecrets) {
		t.Fatalf("want ErrNoSecrets, got %v", err)
	}
}

func TestBuildMergesUserListeners(t *testing.T) {
	called := 0
	SetConfig(UserConfig{Listeners: map[string][]appctx.ListenerFactory{
		"Signup": {func() appctx.Listener {
			return appctx.ListenerFunc(func(context.Context, any) error { called++; return nil })
		}},
	}})
	defer SetConfig(UserConfig{})

	h, err := Build(context.Background(), Bindings{})
	if err != nil {
		t.Fatal(err)
	}
	ls := h.Context.Listeners("Signup")
	if len(ls) != 1 {
		t.Fatalf("listeners = %d", len(ls))
	}
	_ = ls[0].Handle(context.Background(), nil)
	if called != 1 {
		t.Fatal("listener not invoked")
	}
}

func TestEmptyBindings(t *testing.T) {
	b, err := ParseBindings(nil)
	if err != nil {
		t.Fatal(err)
	}
	h, err := Build(context.Background(), b)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.Context.DB(""); !errors.Is(err, appctx.ErrNotConfigured) {
		t.Fatalf("missing connection: %v", err)
	}
}
