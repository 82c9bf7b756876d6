package rate

import "errors"

var (
	// ErrRateLimited is returned when the caller exhausted the route's window budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrUnavailable is returned when the backing Redis instance cannot be reached.
	ErrUnavailable = errors.New("rate limiter unavailable")
)
