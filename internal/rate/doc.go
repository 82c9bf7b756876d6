// Package rate enforces per-route request budgets with Redis-backed
// fixed-window counters.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Keys are
// rl:<route>:<ip>, so one abusive route cannot starve another route sharing
// the same caller IP.
//
// # Failure semantics
//
// A Redis error is reported as ErrUnavailable, never as an allow: callers
// treat limiter failures as request failures.
package rate
