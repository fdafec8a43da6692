package pool

import (
	"errors"
	"fmt"
	"time"

	"github.com/quantbridge/ibgate/internal/gateway"
)

// Errors
var (
	// ErrPoolExhausted means no session became available within the
	// lease timeout. Recoverable: the caller may retry later.
	ErrPoolExhausted = errors.New("no session available within lease timeout")

	// ErrNotInitialized means the pool has not been initialized or has
	// been shut down.
	ErrNotInitialized = errors.New("pool not initialized")
)

// FailureReason classifies why a reconnect attempt gave up.
type FailureReason string

const (
	ReasonIdentifiersExhausted FailureReason = "identifier_space_exhausted"
	ReasonRefused              FailureReason = "refused"
	ReasonTimeout              FailureReason = "timeout"
	ReasonUnreachable          FailureReason = "unreachable"
	ReasonUnknown              FailureReason = "unknown"
)

// Hint returns a remediation hint for the reason, surfaced verbatim by
// the HTTP facade.
func (r FailureReason) Hint() string {
	switch r {
	case ReasonIdentifiersExhausted:
		return "all candidate client ids are in use; free a session on the gateway or widen gateway.client_id_spread"
	case ReasonRefused:
		return "gateway refused the connection; check that the gateway is running and its API port is enabled"
	case ReasonTimeout:
		return "gateway did not answer within the connect timeout; check network latency or raise gateway.connect_timeout"
	case ReasonUnreachable:
		return "gateway host unreachable; check gateway.host and network routing"
	default:
		return "unexpected gateway failure; see the session's last_error in /status"
	}
}

// reasonForKind maps a transport error classification onto a failure reason.
func reasonForKind(k gateway.ErrKind) FailureReason {
	switch k {
	case gateway.KindIdentifierInUse:
		return ReasonIdentifiersExhausted
	case gateway.KindRefused:
		return ReasonRefused
	case gateway.KindTimeout:
		return ReasonTimeout
	case gateway.KindUnreachable:
		return ReasonUnreachable
	default:
		return ReasonUnknown
	}
}

// ConnectFailedError means a reconnect attempt exhausted its retries.
// The facade maps it to 503 with the hint attached.
type ConnectFailedError struct {
	Reason FailureReason
	Hint   string
	Err    error // Last classified connect error, may be nil
}

func (e *ConnectFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway connect failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("gateway connect failed (%s)", e.Reason)
}

func (e *ConnectFailedError) Unwrap() error {
	return e.Err
}

// newConnectFailed builds a ConnectFailedError with the reason's hint.
func newConnectFailed(reason FailureReason, err error) *ConnectFailedError {
	return &ConnectFailedError{Reason: reason, Hint: reason.Hint(), Err: err}
}

// Config holds session pool configuration.
type Config struct {
	Capacity int // Fixed number of pooled sessions

	// Gateway endpoint
	Host string
	Port int

	// Client identity
	ClientIDBase   int // First client id to try
	ClientIDSpread int // Additional candidates: base+1 .. base+spread

	ConnectTimeout    time.Duration // Per-attempt connect timeout
	LeaseTimeout      time.Duration // Default Acquire wait
	HeartbeatInterval time.Duration // Idle-session probe period
	StaleAfter        time.Duration // Heartbeat age before a session counts as stale

	Retry RetryConfig
}

// RetryConfig holds reconnect backoff configuration.
type RetryConfig struct {
	MaxAttempts  int           // Total underlying connect calls per repair
	InitialDelay time.Duration // First backoff delay
	MaxDelay     time.Duration // Backoff cap
	Multiplier   float64       // Backoff growth factor
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Capacity:          5,
		Host:              "localhost",
		Port:              4002,
		ClientIDBase:      1,
		ClientIDSpread:    4,
		ConnectTimeout:    30 * time.Second,
		LeaseTimeout:      30 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		StaleAfter:        20 * time.Second,
		Retry: RetryConfig{
			MaxAttempts:  5,
			InitialDelay: 1 * time.Second,
			MaxDelay:     60 * time.Second,
			Multiplier:   2.0,
		},
	}
}

// PoolStatus is a point-in-time snapshot of the pool.
type PoolStatus struct {
	Total    int             `json:"total"`
	Idle     int             `json:"idle"`
	Leased   int             `json:"leased"`
	Healthy  int             `json:"healthy"`
	Sessions []SessionStatus `json:"sessions"`
}

// SessionStatus is a point-in-time snapshot of one session.
type SessionStatus struct {
	ClientID      int        `json:"client_id"` // 0 until first successful connect
	State         string     `json:"state"`
	Leased        bool       `json:"leased"`
	EstablishedAt *time.Time `json:"established_at,omitempty"`
	LastHeartbeat *time.Time `json:"last_heartbeat,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
}
