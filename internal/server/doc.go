// Package server implements the HTTP facade in front of the session
// pool.
//
// Endpoints:
//   - GET /health                                liveness and pool health
//   - GET /status                                pool snapshot
//   - GET /v1/market-data/{symbol}/history       historical OHLCV bars
//   - GET /v1/market-data/{symbol}/snapshot      single quote
//   - GET /v1/account/summary                    account summary rows
//   - GET /v1/market-data/stream                 websocket quote stream
//
// Every market-data and account request leases one pool session for its
// duration and releases it before responding. Pool unavailability maps
// to 503 with a machine-readable reason and remediation hint; gateway
// request failures map to 502.
package server
