package tenant

import (
	"context"
	"errors"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/yanizio/keel/appctx"
)

var (
	siteQuery   = regexp.QuoteMeta(`FROM   site`)
	configQuery = regexp.QuoteMeta(`FROM    site_config`)
	siteCols    = []string{"id", "host", "bindings", "suspended_at", "deleted_at", "created_at", "updated_at"}
)

const memoryBindings = `{"queues": {"default": {"driver": "memory"}}, "app_key": "from-row"}`

func newMockCache(t *testing.T, opts Options) (*Cache, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { raw.Close() })
	if opts.EvictInterval == 0 {
		opts.EvictInterval = -1
	}
	c := New(sqlx.NewDb(raw, "sqlmock"), opts)
	t.Cleanup(func() { c.Close() })
	return c, mock
}

func expectSite(mock sqlmock.Sqlmock, id int, host string) {
	now := time.Now()
	mock.ExpectQuery(siteQuery).
		WithArgs(host).
		WillReturnRows(sqlmock.NewRows(siteCols).AddRow(id, host, memoryBindings, nil, nil, now, now))
	mock.ExpectQuery(configQuery).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"name", "value"}).
			AddRow("app_key", "from-config").
			AddRow("channel.updates", "wss://push/"+host))
}

func TestGetLoadsOnce(t *testing.T) {
	c, mock := newMockCache(t, Options{})
	expectSite(mock, 1, "acme.test")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Get(context.Background(), "acme.test"); err != nil {
				t.Errorf("Get: %v", err)
			}
		}()
	}
	wg.Wait()

	ten, err := c.Get(context.Background(), "ACME.test:443")
	if err != nil {
		t.Fatal(err)
	}
	ac := ten.Context()
	if ac.Name() != "acme.test" {
		t.Fatalf("context name = %q", ac.Name())
	}
	if key, _ := ac.AppKey(); key != "from-config" {
		t.Fatalf("site_config must override the row: %q", key)
	}
	if ch, err := ac.Channel("updates"); err != nil || ch.Binding != "wss://push/acme.test" {
		t.Fatalf("channel = %+v, %v", ch, err)
	}
	if _, ok := ten.Handles().MemoryQueue(""); !ok {
		t.Fatal("memory queue not bound")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("one load expected: %v", err)
	}
}

func TestResolveUnknownHost(t *testing.T) {
	c, mock := newMockCache(t, Options{})
	mock.ExpectQuery(siteQuery).WithArgs("nope.test").WillReturnRows(sqlmock.NewRows(siteCols))

	r := httptest.NewRequest("GET", "http://nope.test/", nil)
	_, err := c.Resolve(context.Background(), r)
	if !errors.Is(err, ErrNotFound) || !errors.Is(err, appctx.ErrUnresolved) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if c.Len() != 0 {
		t.Fatal("misses must not be cached")
	}
}

func TestLocalhostAlias(t *testing.T) {
	c, mock := newMockCache(t, Options{LocalhostAlias: "dev.test"})
	expectSite(mock, 3, "dev.test")

	ac, err := c.ResolveName(context.Background(), "localhost:8080")
	if err != nil || ac.Name() != "dev.test" {
		t.Fatalf("ResolveName = %v, %v", ac, err)
	}
}

func TestEvictIdleAndLRU(t *testing.T) {
	c, mock := newMockCache(t, Options{IdleTTL: time.Hour, MaxEntries: 1})
	expectSite(mock, 1, "a.test")
	expectSite(mock, 2, "b.test")

	if _, err := c.Get(context.Background(), "a.test"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(2 * time.Millisecond)
	if _, err := c.Get(context.Background(), "b.test"); err != nil {
		t.Fatal(err)
	}

	c.evictOnce(time.Now())
	if c.Len() != 1 {
		t.Fatalf("LRU left %d tenants", c.Len())
	}
	if _, ok := c.m.Load("b.test"); !ok {
		t.Fatal("most recent tenant must survive")
	}

	c.evictOnce(time.Now().Add(2 * time.Hour))
	if c.Len() != 0 {
		t.Fatal("idle tenant must be evicted")
	}
}
