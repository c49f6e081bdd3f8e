package queue_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/yanizio/keel/appctx"
	"github.com/yanizio/keel/orm"
	"github.com/yanizio/keel/queue"
)

type Post struct{ orm.Model }

func (p *Post) Title() string { return p.GetString("title") }

// Voucher is keyed by a string code.
type Voucher struct{ orm.Model }

var (
	_ = orm.Register[*Post]("Post")
	_ = orm.Register[*Voucher]("Voucher", orm.PrimaryKey("code"))
)

// PublishPost records what it saw when handled.
type PublishPost struct {
	post *Post
	note string
}

func (j *PublishPost) Arguments() []any { return []any{j.post, j.note} }

func (j *PublishPost) Handle(ctx context.Context) error {
	handled.add(fmt.Sprintf("%d:%s:%s", j.post.ID(), j.post.Title(), j.note))
	return nil
}

// Flaky fails on odd numbers and panics on negative ones.
type Flaky struct{ n int }

func (j *Flaky) Arguments() []any { return []any{j.n} }

func (j *Flaky) Handle(context.Context) error {
	switch {
	case j.n < 0:
		panic("negative")
	case j.n%2 == 1:
		return fmt.Errorf("odd %d", j.n)
	}
	handled.add(fmt.Sprint(j.n))
	return nil
}

type PostPublished struct{ post *Post }

func (e *PostPublished) Arguments() []any { return []any{e.post} }

type unregisteredJob struct{}

func (unregisteredJob) Arguments() []any             { return nil }
func (unregisteredJob) Handle(context.Context) error { return nil }

func init() {
	queue.RegisterJob("PublishPost", func(ctx context.Context, a queue.Args) (*PublishPost, error) {
		p, err := queue.ModelArg[*Post](a, 0)
		if err != nil {
			return nil, err
		}
		var note string
		if err := a.Decode(1, &note); err != nil {
			return nil, err
		}
		return &PublishPost{post: p, note: note}, nil
	})
	queue.RegisterJob("Flaky", func(ctx context.Context, a queue.Args) (*Flaky, error) {
		var n int
		err := a.Decode(0, &n)
		return &Flaky{n: n}, err
	})
	queue.RegisterEvent("PostPublished", func(ctx context.Context, a queue.Args) (*PostPublished, error) {
		p, err := queue.ModelArg[*Post](a, 0)
		return &PostPublished{post: p}, err
	})
}

// sink collects handler output across goroutines.
type sink struct {
	mu  sync.Mutex
	got []string
}

func (s *sink) add(v string) {
	s.mu.Lock()
	s.got = append(s.got, v)
	s.mu.Unlock()
}

func (s *sink) reset() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.got
	s.got = nil
	return out
}

var handled sink

var errListener = errors.New("listener down")

func sqliteDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	if _, err := db.Exec(`CREATE TABLE posts (id INTEGER PRIMARY KEY AUTOINCREMENT, title TEXT)`); err != nil {
		t.Fatalf("schema: %v", err)
	}
	return db
}

// queueContext binds a fresh database and memory queue as defaults.
func queueContext(t *testing.T, extra func(*appctx.Builder)) (context.Context, *appctx.Context, *queue.MemoryQueue) {
	t.Helper()
	handled.reset()
	q := queue.NewMemoryQueue("default")
	b := appctx.NewBuilder().Name(t.Name()).Connection("", sqliteDB(t)).Queue("", q)
	if extra != nil {
		extra(b)
	}
	c, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	return appctx.With(context.Background(), c), c, q
}
