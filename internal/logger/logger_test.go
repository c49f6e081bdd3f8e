package logger

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewCreatesDailyFile(t *testing.T) {
	root := t.TempDir()
	prev := zap.L()
	t.Cleanup(func() { zap.ReplaceGlobals(prev) })

	l, err := New(root, false, "debug")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_ = l.Sync()

	want := filepath.Join(root, "logs", time.Now().Format("2006-01-02")+".log")
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("log file missing: %v", err)
	}
}

func TestFromFallsBackToGlobal(t *testing.T) {
	if From(context.Background()) != zap.S() {
		t.Fatal("From without logger must return zap.S()")
	}
}

func TestWithCarriesFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	ctx := WithContext(context.Background(), zap.New(core).Sugar())
	ctx = With(ctx, "tenant", "a.example")

	From(ctx).Infow("hello")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("want 1 entry, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["tenant"]; got != "a.example" {
		t.Fatalf("tenant field = %v", got)
	}
}
