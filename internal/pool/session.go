package pool

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/quantbridge/ibgate/internal/gateway"
)

// State is a session's lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateUnhealthy
)

// String returns a short label for the state.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateUnhealthy:
		return "unhealthy"
	default:
		return "disconnected"
	}
}

// Session wraps one physical gateway connection. All lifecycle
// transitions are driven by the owning pool; callers only ever see a
// session through a Lease.
type Session struct {
	dialer gateway.Dialer
	logger *slog.Logger

	gen uint64 // Pool generation that created this session; set once in Initialize

	mu              sync.Mutex
	slot            int // Position in the pool, for logging only
	clientID        int // 0 until the first successful connect
	conn            gateway.Conn
	state           State
	leased          bool
	establishedAt   time.Time
	lastHeartbeatAt time.Time
	lastError       string
}

func newSession(slot int, dialer gateway.Dialer, logger *slog.Logger) *Session {
	return &Session{
		slot:   slot,
		dialer: dialer,
		logger: logger.With("slot", slot),
		state:  StateDisconnected,
	}
}

// connect establishes the underlying connection using clientID as the
// gateway-visible identity. Idempotent: a session whose connection is
// still up returns success without redialing. Only the repair path
// calls this, while the session is exclusively held.
func (s *Session) connect(ctx context.Context, clientID int, host string, port int, timeout time.Duration) error {
	s.mu.Lock()
	if s.conn != nil && s.conn.IsConnected() {
		s.lastHeartbeatAt = time.Now()
		s.state = StateConnected
		s.mu.Unlock()
		return nil
	}
	s.state = StateConnecting
	s.mu.Unlock()

	// Network dial happens outside the session lock.
	conn, err := s.dialer.Dial(ctx, host, port, clientID, timeout)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.state = StateDisconnected
		s.lastError = err.Error()
		return err
	}

	now := time.Now()
	s.conn = conn
	s.clientID = clientID
	s.state = StateConnected
	s.establishedAt = now
	s.lastHeartbeatAt = time.Time{} // Healthy by definition until the first probe
	s.lastError = ""

	s.logger.Info("session connected", "client_id", clientID)
	return nil
}

// disconnect tears down the underlying connection unconditionally.
// Close errors are logged, never propagated.
func (s *Session) disconnect() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.state = StateDisconnected
	s.establishedAt = time.Time{}
	s.lastHeartbeatAt = time.Time{}
	s.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			s.logger.Debug("session close failed", "error", err)
		}
	}
}

// probe is a cheap liveness check: local connection-state inspection
// only, no network round trip. The pool guarantees it never runs
// concurrently with active use.
func (s *Session) probe() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil || !s.conn.IsConnected() {
		s.state = StateUnhealthy
		s.lastError = "heartbeat failed: connection down"
		return false
	}

	s.lastHeartbeatAt = time.Now()
	return true
}

// isHealthy reports whether the session can be leased without repair.
// A just-connected session with no heartbeat yet counts as healthy
// until staleAfter elapses from establishment.
func (s *Session) isHealthy(staleAfter time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.healthyLocked(staleAfter)
}

func (s *Session) healthyLocked(staleAfter time.Duration) bool {
	if s.state != StateConnected {
		return false
	}

	baseline := s.lastHeartbeatAt
	if baseline.IsZero() {
		baseline = s.establishedAt
	}
	return time.Since(baseline) < staleAfter
}

// Conn returns the underlying gateway connection, nil when disconnected.
func (s *Session) Conn() gateway.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// ClientID returns the identity assigned at the last successful
// connect, 0 if the session never connected.
func (s *Session) ClientID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientID
}

// status snapshots the session for PoolStatus.
func (s *Session) status(staleAfter time.Duration) SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := SessionStatus{
		ClientID:  s.clientID,
		State:     s.state.String(),
		Leased:    s.leased,
		LastError: s.lastError,
	}
	if !s.establishedAt.IsZero() {
		t := s.establishedAt
		st.EstablishedAt = &t
	}
	if !s.lastHeartbeatAt.IsZero() {
		t := s.lastHeartbeatAt
		st.LastHeartbeat = &t
	}
	return st
}
