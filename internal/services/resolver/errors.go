package resolver

import (
	"errors"
	"fmt"
)

// ErrNotComputedYet is returned by Lookup when the artifact is not cached.
// A background computation has been started by the time it is returned.
var ErrNotComputedYet = errors.New("metrics not computed yet")

// ErrInvalidTicker is returned for an empty ticker
var ErrInvalidTicker = errors.New("invalid ticker")

// ComputationFailed wraps anything that stopped an artifact being produced:
// a cache read or write failure, or a panic inside the pipeline.
type ComputationFailed struct {
	Ticker string
	Err    error
}

func (e *ComputationFailed) Error() string {
	return fmt.Sprintf("computation failed for %s: %v", e.Ticker, e.Err)
}

func (e *ComputationFailed) Unwrap() error {
	return e.Err
}
