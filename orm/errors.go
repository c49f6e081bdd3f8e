package orm

import (
	"errors"
	"fmt"
)

var (
	// ErrModelNotFound reports a missing row where one was required
	// (hydration, FindOrFail-style callers).  Find itself returns nil.
	ErrModelNotFound = errors.New("orm: model not found")
	// ErrBuilderReused is returned when a Builder executes a second time.
	ErrBuilderReused = errors.New("orm: builder already executed")
	// ErrDetached is returned by Save and Delete on a model that was not
	// constructed through orm (New, Create, or a query).
	ErrDetached = errors.New("orm: model has no definition; construct it with orm.New")
	// ErrUnsavedParent is returned by HasOne/HasMany writes when the parent
	// has no key yet.
	ErrUnsavedParent = errors.New("orm: parent model is not saved")
	// ErrInvalidIdentifier rejects table and column names outside
	// [A-Za-z_][A-Za-z0-9_]* (optionally table-qualified).
	ErrInvalidIdentifier = errors.New("orm: invalid identifier")
	// ErrInvalidOperator rejects where operators outside the allow-list.
	ErrInvalidOperator = errors.New("orm: invalid operator")
)

// DatabaseError wraps a store failure with the statement that caused it.
type DatabaseError struct {
	Op  string
	SQL string
	Err error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("orm: %s failed: %v [sql: %s]", e.Op, e.Err, e.SQL)
}

func (e *DatabaseError) Unwrap() error { return e.Err }

// RelationError reports an eager-load or lookup of an undeclared relation.
type RelationError struct {
	Model    string
	Relation string
}

func (e *RelationError) Error() string {
	return fmt.Sprintf("orm: relation %q is not defined on model %s", e.Relation, e.Model)
}

// NotRegisteredError reports a Go type used with orm before Register.
type NotRegisteredError struct {
	Type string
}

func (e *NotRegisteredError) Error() string {
	return fmt.Sprintf("orm: model type %s is not registered", e.Type)
}
