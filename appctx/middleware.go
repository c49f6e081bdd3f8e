package appctx

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/yanizio/keel/internal/logger"
)

// Resolver maps an inbound request to its Context.
type Resolver interface {
	Resolve(ctx context.Context, r *http.Request) (*Context, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, r *http.Request) (*Context, error)

func (f ResolverFunc) Resolve(ctx context.Context, r *http.Request) (*Context, error) {
	return f(ctx, r)
}

// Static resolves every request to c.
func Static(c *Context) Resolver {
	return ResolverFunc(func(context.Context, *http.Request) (*Context, error) { return c, nil })
}

var errNoContext = errors.New("appctx: resolver returned no context")

// Middleware serves each request inside the Context returned by res.
// Requests that resolve to ErrUnresolved get 404; other resolve failures,
// including a nil Context without an error, get 500.
func Middleware(res Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, err := res.Resolve(r.Context(), r)
			if err == nil && c == nil {
				err = errNoContext
			}
			if err != nil {
				if errors.Is(err, ErrUnresolved) {
					http.NotFound(w, r)
					return
				}
				zap.L().Error("resolve context", zap.String("host", r.Host), zap.Error(err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}

			ctx := logger.With(r.Context(), "tenant", c.Name(), "req_id", middleware.GetReqID(r.Context()))
			_ = Run(ctx, c, func(ctx context.Context) error {
				next.ServeHTTP(w, r.WithContext(ctx))
				return nil
			})
		})
	}
}
