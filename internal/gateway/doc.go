// Package gateway implements the TCP wire client for the external
// trading gateway.
//
// The gateway speaks a framed protocol: a 4-byte big-endian length
// prefix followed by NUL-separated string fields. Every connection is
// identified by a small integer client id chosen at handshake time;
// the gateway rejects a second connection that reuses an id already in
// session (wire error code 326). There is no way to query which ids
// are free; they can only be probed.
//
// The client correlates request and response frames through a pending
// map keyed by request id, and fans streaming quote frames out to
// per-subscription channels.
package gateway
