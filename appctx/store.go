// appctx/store.go
//
// Binding a Context to a unit of work.
//
// Context
// -------
// The bound Context travels inside context.Context, so it follows the
// call tree of the handler (including goroutines started with that ctx)
// and nothing else.  Two overlapping Run calls never see each other's
// Context because neither writes shared state.
//
// Workflow
// --------
//  1. Framework code builds a *Context and calls Run (or Middleware /
//     queue.HandleBatch, which call it).
//  2. Library code calls From(ctx) on every query or dispatch.
//  3. Tests may call SetTestContext once instead of wrapping every call.
//
// Notes
// -----
//   - The test fallback is honoured only when testing.Testing() is true;
//     a production binary that forgets Run fails with ErrNoContext.
//   - Reenter is the console/tooling escape hatch.  It never modifies the
//     bound Context; it derives a new one.
package appctx

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

type ctxKey struct{}

var testCtx atomic.Pointer[Context]

// With returns a copy of parent with c bound.
func With(parent context.Context, c *Context) context.Context {
	return context.WithValue(parent, ctxKey{}, c)
}

// Run calls fn with c bound on a ctx derived from parent and returns fn's
// error.
func Run(parent context.Context, c *Context, fn func(ctx context.Context) error) error {
	if c == nil {
		return errors.New("appctx: Run with nil context")
	}
	return fn(With(parent, c))
}

// From returns the nearest bound Context.
func From(ctx context.Context) (*Context, error) {
	if ctx != nil {
		if c, ok := ctx.Value(ctxKey{}).(*Context); ok && c != nil {
			return c, nil
		}
	}
	if testing.Testing() {
		if c := testCtx.Load(); c != nil {
			return c, nil
		}
	}
	return nil, ErrNoContext
}

// MustFrom is From for callers that treat a missing Context as a bug.
func MustFrom(ctx context.Context) *Context {
	c, err := From(ctx)
	if err != nil {
		panic(err)
	}
	return c
}

// SetTestContext installs c as the fallback returned by From when no
// Context is bound.  It returns a func restoring the previous fallback.
// Outside a test binary the fallback is stored but never consulted.
func SetTestContext(c *Context) (restore func()) {
	prev := testCtx.Swap(c)
	return func() { testCtx.Store(prev) }
}

// Reenter derives a Context from the one bound on ctx, lets mutate adjust
// it, and returns ctx with the result bound.
func Reenter(ctx context.Context, mutate func(*Builder)) (context.Context, error) {
	cur, err := From(ctx)
	if err != nil {
		return ctx, err
	}
	b := cur.ToBuilder()
	if mutate != nil {
		mutate(b)
	}
	next, err := b.Build()
	if err != nil {
		return ctx, err
	}
	return With(ctx, next), nil
}
