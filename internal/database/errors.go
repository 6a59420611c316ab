package database

import (
	"fmt"

	"github.com/alem-hub/schoolportal/internal/domain/shared"
)

// QueryError wraps a failure raised while executing a query. Endpoint is the
// endpoint after inline substitution and Bindings holds what was left to send.
type QueryError struct {
	Connection string
	Endpoint   string
	Bindings   []Param
	Err        error
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	return fmt.Sprintf("%v (connection: %s, endpoint: %s, bindings: %v)",
		e.Err, e.Connection, e.Endpoint, ParamsToMap(e.Bindings))
}

// Unwrap returns the original failure.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// Is reports shared.ErrQuery.
func (e *QueryError) Is(target error) bool {
	return target == shared.ErrQuery
}
