package relaypager

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPagingArguments is returned for contradictory paging inputs,
	// e.g. both "after" and "before", or "last" without "before".
	ErrInvalidPagingArguments = errors.New("invalid paging arguments")
	// ErrMalformedCursor is returned when a cursor token cannot be decoded or
	// does not match the sort order of the query.
	ErrMalformedCursor = errors.New("malformed cursor")
	// ErrMisconfiguredQuery reports a programming error in how the paginated
	// query was built: a cursor without a sort order, a terminal sort key that is
	// not the declared unique key, or a sort column without a getter.
	ErrMisconfiguredQuery = errors.New("misconfigured query")
)

// StoreError wraps a failure of one of the queries issued by the engine. The
// cause is kept unchanged and reachable through errors.Is / errors.As.
type StoreError struct {
	// Op is the failed query: "count", "page" or "probe".
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s query failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func newStoreError(op string, err error) error {
	if err == nil {
		return nil
	}

	return &StoreError{Op: op, Err: err}
}

// IsInvalidArgument reports whether err was caused by client input: bad paging
// arguments or a malformed cursor. Such errors must not be retried.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidPagingArguments) || errors.Is(err, ErrMalformedCursor)
}
