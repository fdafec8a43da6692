// Package pool implements the resilient session pool for the trading
// gateway.
//
// The pool owns a fixed set of sessions and leases them to callers one
// at a time. Sessions are connected lazily: a never-connected or
// unhealthy session is repaired on the way out of the idle queue, using
// a bounded-backoff retry policy and a client-id allocator that learns
// which ids the gateway has rejected. A background health monitor
// probes idle sessions only; a leased session is exclusively owned by
// its holder until release.
//
// Callers never see raw transport errors. Everything crosses the pool
// boundary as ErrPoolExhausted or a *ConnectFailedError carrying a
// remediation hint.
package pool
