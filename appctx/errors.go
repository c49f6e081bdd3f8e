package appctx

import (
	"errors"
	"fmt"
)

// Resource names used in ConfigurationError.
const (
	ResourceContext    = "context"
	ResourceConnection = "connection"
	ResourceDisk       = "disk"
	ResourceQueue      = "queue"
	ResourceChannel    = "channel"
)

// ErrNotConfigured is the root of every ConfigurationError.
var ErrNotConfigured = errors.New("appctx: not configured")

// ErrUnresolved is returned by a Resolver when a request maps to no
// tenant.  Middleware answers such requests with 404.
var ErrUnresolved = errors.New("appctx: no context for request")

// ConfigurationError reports a missing context or a missing named binding.
type ConfigurationError struct {
	Resource string
	Name     string
}

func (e *ConfigurationError) Error() string {
	if e.Resource == ResourceContext {
		return "appctx: no context bound; wrap the call in appctx.Run"
	}
	return fmt.Sprintf("appctx: %s %q is not configured", e.Resource, e.Name)
}

func (e *ConfigurationError) Unwrap() error { return ErrNotConfigured }

// ErrNoContext is returned by From outside any Run.
var ErrNoContext error = &ConfigurationError{Resource: ResourceContext}
