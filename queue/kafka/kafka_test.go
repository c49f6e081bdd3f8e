package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/yanizio/keel/appctx"
	"github.com/yanizio/keel/queue"
)

var (
	seenMu sync.Mutex
	seen   []string
)

// echo records the tenant it ran under.
type echo struct{ fail bool }

func (e *echo) Arguments() []any { return []any{e.fail} }

func (e *echo) Handle(ctx context.Context) error {
	c := appctx.MustFrom(ctx)
	seenMu.Lock()
	seen = append(seen, fmt.Sprintf("%s:%v", c.Name(), e.fail))
	seenMu.Unlock()
	if e.fail {
		return errors.New("boom")
	}
	return nil
}

func init() {
	queue.RegisterJob("Echo", func(ctx context.Context, a queue.Args) (*echo, error) {
		var fail bool
		err := a.Decode(0, &fail)
		return &echo{fail: fail}, err
	})
}

func takeSeen() []string {
	seenMu.Lock()
	defer seenMu.Unlock()
	out := seen
	seen = nil
	sort.Strings(out)
	return out
}

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafkago.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

// downWriter fails every write.
type downWriter struct{ calls int }

func (w *downWriter) WriteMessages(context.Context, ...kafkago.Message) error {
	w.calls++
	return errors.New("broker down")
}

type fakeReader struct {
	mu        sync.Mutex
	pending   []kafkago.Message
	committed []kafkago.Message
}

func (r *fakeReader) FetchMessage(context.Context) (kafkago.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending) == 0 {
		return kafkago.Message{}, io.EOF
	}
	m := r.pending[0]
	r.pending = r.pending[1:]
	return m, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafkago.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func echoMessage(t *testing.T, tenant string, fail bool, offset int64) kafkago.Message {
	t.Helper()
	body, err := queue.Payload{Job: "Echo", Payload: []string{fmt.Sprint(fail)}}.Encode()
	if err != nil {
		t.Fatal(err)
	}
	return kafkago.Message{Topic: "jobs", Offset: offset, Key: []byte(tenant), Value: body}
}

func tenants(t *testing.T, names ...string) Resolver {
	t.Helper()
	byName := map[string]*appctx.Context{}
	for _, n := range names {
		c, err := appctx.NewBuilder().Name(n).Build()
		if err != nil {
			t.Fatal(err)
		}
		byName[n] = c
	}
	return ResolverFunc(func(_ context.Context, name string) (*appctx.Context, error) {
		if c, ok := byName[name]; ok {
			return c, nil
		}
		return nil, appctx.ErrUnresolved
	})
}

func TestSenderKeysByTenant(t *testing.T) {
	w := &fakeWriter{}
	if err := NewSender(w, "acme").Send(context.Background(), []byte(`{}`)); err != nil {
		t.Fatal(err)
	}
	if len(w.msgs) != 1 || string(w.msgs[0].Key) != "acme" || string(w.msgs[0].Value) != `{}` {
		t.Fatalf("written = %+v", w.msgs)
	}
}

func TestRunGroupsByTenantAndRetries(t *testing.T) {
	r := &fakeReader{pending: []kafkago.Message{
		echoMessage(t, "a", false, 1),
		echoMessage(t, "b", false, 2),
		echoMessage(t, "a", true, 3),
		echoMessage(t, "ghost", false, 4),
	}}
	w := &fakeWriter{}
	c := NewConsumer(r, w, tenants(t, "a", "b"), Options{Concurrency: 2})

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff([]string{"a:false", "a:true", "b:false"}, takeSeen()); diff != "" {
		t.Fatalf("handled (-want +got):\n%s", diff)
	}
	if len(r.committed) != 4 {
		t.Fatalf("committed = %d, want 4", len(r.committed))
	}
	if len(w.msgs) != 1 || string(w.msgs[0].Key) != "a" || attempts(w.msgs[0]) != 1 {
		t.Fatalf("redelivered = %+v", w.msgs)
	}
}

func TestMaxAttemptsDrops(t *testing.T) {
	m := withAttempts(echoMessage(t, "a", true, 1), 2)
	r := &fakeReader{}
	w := &fakeWriter{}
	c := NewConsumer(r, w, tenants(t, "a"), Options{MaxAttempts: 3})

	if err := c.process(context.Background(), []kafkago.Message{m}); err != nil {
		t.Fatal(err)
	}
	takeSeen()
	if len(w.msgs) != 0 {
		t.Fatalf("message past max attempts was redelivered: %+v", w.msgs)
	}
	if len(r.committed) != 1 {
		t.Fatal("dropped message must still be committed")
	}
}

// A round whose retry could not be written back stays uncommitted, so the
// failed message is read again instead of being lost.
func TestFailedRedeliveryLeavesRoundUncommitted(t *testing.T) {
	r := &fakeReader{pending: []kafkago.Message{
		echoMessage(t, "a", false, 1),
		echoMessage(t, "a", true, 2),
	}}
	w := &downWriter{}
	c := NewConsumer(r, w, tenants(t, "a"), Options{})

	err := c.Run(context.Background())
	takeSeen()
	if err == nil || !strings.Contains(err.Error(), "broker down") {
		t.Fatalf("Run = %v, want redelivery error", err)
	}
	if w.calls != 1 {
		t.Fatalf("redelivery writes = %d, want 1", w.calls)
	}
	if len(r.committed) != 0 {
		t.Fatalf("committed = %d, want 0", len(r.committed))
	}
}

func TestAttemptHeaderReplaced(t *testing.T) {
	m := kafkago.Message{Headers: []kafkago.Header{{Key: "trace", Value: []byte("x")}}}
	m = withAttempts(withAttempts(m, 1), 2)
	if attempts(m) != 2 || len(m.Headers) != 2 {
		t.Fatalf("headers = %+v", m.Headers)
	}
}
