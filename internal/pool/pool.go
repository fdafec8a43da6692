package pool

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/quantbridge/ibgate/internal/gateway"
	"github.com/quantbridge/ibgate/internal/metrics"
)

// Pool is a fixed-capacity leasing pool of gateway sessions.
//
// The idle queue is a buffered channel sized to capacity: receiving
// grants exclusive ownership of a session, sending returns it, and the
// channel's FIFO order gives saturated callers arrival-order fairness.
type Pool struct {
	cfg     Config
	dialer  gateway.Dialer
	ids     *IdentityAllocator
	retry   *RetryPolicy
	logger  *slog.Logger
	metrics *metrics.PoolMetrics

	mu          sync.Mutex
	initialized bool
	gen         uint64 // Bumped by Initialize; stale-generation sessions are never requeued
	sessions    []*Session
	idle        chan *Session
	monitor     *healthMonitor

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a pool. Initialize must be called before Acquire.
func New(cfg Config, dialer gateway.Dialer, m *metrics.PoolMetrics, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}

	ids := NewIdentityAllocator(cfg.ClientIDBase, cfg.ClientIDSpread)
	return &Pool{
		cfg:     cfg,
		dialer:  dialer,
		ids:     ids,
		retry:   NewRetryPolicy(cfg.Retry, ids, logger),
		logger:  logger.With("component", "pool"),
		metrics: m,
	}
}

// Initialize creates the sessions, seeds the idle queue, and starts the
// health monitor. Sessions are not connected here; connection is lazy,
// on first lease. Calling Initialize on an initialized pool is a no-op.
func (p *Pool) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return nil
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.gen++

	p.sessions = make([]*Session, p.cfg.Capacity)
	p.idle = make(chan *Session, p.cfg.Capacity)
	for i := range p.sessions {
		s := newSession(i, p.dialer, p.logger)
		s.gen = p.gen
		p.sessions[i] = s
		p.idle <- s
	}

	p.monitor = newHealthMonitor(p, p.cfg.HeartbeatInterval, p.logger)
	p.monitor.start(p.ctx)

	p.initialized = true

	p.logger.Info("pool initialized",
		"capacity", p.cfg.Capacity,
		"gateway", p.cfg.Host,
		"heartbeat_interval", p.cfg.HeartbeatInterval,
	)
	return nil
}

// Acquire leases a session, waiting up to timeout for one to become
// idle (timeout <= 0 uses the configured lease timeout).
//
// An unhealthy or never-connected session is repaired on the way out.
// Repair failure requeues the session at the back of the idle queue and
// fails this call with the *ConnectFailedError, so the caller gets an
// accurate unavailability signal instead of an unbounded internal
// retry. If the timeout fires while a repair is still running, the
// caller gets ErrPoolExhausted promptly and the repair finishes in the
// background for the next consumer.
func (p *Pool) Acquire(ctx context.Context, timeout time.Duration) (*Lease, error) {
	p.mu.Lock()
	if !p.initialized {
		p.mu.Unlock()
		return nil, ErrNotInitialized
	}
	idle := p.idle
	p.mu.Unlock()

	if timeout <= 0 {
		timeout = p.cfg.LeaseTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var s *Session
	select {
	case s = <-idle:
	case <-timer.C:
		p.metrics.ObserveAcquire("exhausted")
		return nil, ErrPoolExhausted
	case <-ctx.Done():
		p.metrics.ObserveAcquire("exhausted")
		return nil, ctx.Err()
	}

	// The session is exclusively ours now. Mark it before dropping the
	// pool lock so the monitor never probes it mid-handoff.
	p.mu.Lock()
	s.mu.Lock()
	healthy := s.healthyLocked(p.cfg.StaleAfter)
	if healthy {
		s.leased = true
	} else {
		s.state = StateConnecting
	}
	s.mu.Unlock()
	p.mu.Unlock()

	if healthy {
		p.metrics.ObserveAcquire("ok")
		return p.newLease(s), nil
	}

	// Lazy repair, off the pool lock. The retry runs on the pool's own
	// context: a caller giving up must not abort a connect handshake
	// mid-flight, so the attempt completes in the background and its
	// result is kept for the next consumer.
	resCh := make(chan error, 1)
	go func() {
		resCh <- p.retry.ExecuteConnect(p.ctx, s, p.cfg.Host, p.cfg.Port, p.cfg.ConnectTimeout)
	}()

	select {
	case err := <-resCh:
		if err != nil {
			p.metrics.ObserveReconnect("failed")
			p.metrics.ObserveAcquire("connect_failed")
			// Back of the queue, so other callers are not starved
			// behind a persistently broken slot.
			p.requeue(s)
			return nil, err
		}
		p.metrics.ObserveReconnect("ok")
		p.metrics.ObserveAcquire("ok")
		p.setLeased(s, true)
		return p.newLease(s), nil

	case <-timer.C:
		p.metrics.ObserveAcquire("exhausted")
		p.abandonRepair(s, resCh)
		return nil, ErrPoolExhausted

	case <-ctx.Done():
		p.metrics.ObserveAcquire("exhausted")
		p.abandonRepair(s, resCh)
		return nil, ctx.Err()
	}
}

// abandonRepair lets an in-flight repair finish in the background and
// requeues the session with whatever state the repair left it in.
func (p *Pool) abandonRepair(s *Session, resCh <-chan error) {
	go func() {
		if err := <-resCh; err != nil {
			p.metrics.ObserveReconnect("failed")
		} else {
			p.metrics.ObserveReconnect("ok")
		}
		p.requeue(s)
	}()
}

// Release returns a leased session to the back of the idle queue.
// The session goes back regardless of how the caller's use of it went;
// connection-level health is the monitor's and the next Acquire's
// problem, not the releasing caller's.
func (p *Pool) Release(l *Lease) {
	if l == nil || !l.released.CompareAndSwap(false, true) {
		return
	}
	p.metrics.LeaseEnded()
	p.requeue(l.session)
}

// requeue clears the leased flag and appends the session to the idle
// queue tail. A session from a previous pool generation (its lease
// straddled a Shutdown/Initialize cycle) is discarded instead: the
// current idle queue is already fully seeded, so queuing it would
// block forever under the pool mutex. Within one generation the send
// cannot block, because every session is either leased or idle.
func (p *Pool) requeue(s *Session) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s.mu.Lock()
	s.leased = false
	s.mu.Unlock()

	if s.gen != p.gen {
		p.logger.Debug("discarding session from a previous pool generation",
			"client_id", s.ClientID(),
		)
		s.disconnect()
		return
	}

	p.idle <- s
}

func (p *Pool) setLeased(s *Session, v bool) {
	p.mu.Lock()
	s.mu.Lock()
	s.leased = v
	s.mu.Unlock()
	p.mu.Unlock()
}

func (p *Pool) newLease(s *Session) *Lease {
	p.metrics.LeaseStarted()
	return &Lease{
		ID:         uuid.New(),
		AcquiredAt: time.Now(),
		session:    s,
		pool:       p,
	}
}

// Shutdown stops the health monitor, disconnects every session (leased
// ones included, since shutdown implies process termination), and resets the
// pool to uninitialized. Safe to call more than once.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.initialized {
		p.mu.Unlock()
		return nil
	}
	p.initialized = false
	monitor := p.monitor
	sessions := p.sessions
	p.mu.Unlock()

	// Cancel background repairs and the monitor, then join the monitor.
	p.cancel()
	if err := monitor.stop(ctx); err != nil {
		p.logger.Warn("health monitor did not stop in time", "error", err)
	}

	for _, s := range sessions {
		s.disconnect()
	}

	p.logger.Info("pool shut down")
	return nil
}

// Status returns a point-in-time snapshot of the pool. Safe to call
// concurrently with any other operation.
func (p *Pool) Status() PoolStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := PoolStatus{
		Total: len(p.sessions),
		Idle:  len(p.idle),
	}
	st.Leased = st.Total - st.Idle

	for _, s := range p.sessions {
		st.Sessions = append(st.Sessions, s.status(p.cfg.StaleAfter))
		if s.isHealthy(p.cfg.StaleAfter) {
			st.Healthy++
		}
	}

	p.metrics.SetHealthy(st.Healthy)
	return st
}

// Lease is exclusive ownership of one pooled session until Release.
type Lease struct {
	ID         uuid.UUID
	AcquiredAt time.Time

	session  *Session
	pool     *Pool
	released atomic.Bool
}

// Conn returns the leased session's gateway connection.
func (l *Lease) Conn() gateway.Conn {
	return l.session.Conn()
}

// ClientID returns the leased session's gateway identity.
func (l *Lease) ClientID() int {
	return l.session.ClientID()
}

// Release returns the session to the pool. Idempotent.
func (l *Lease) Release() {
	l.pool.Release(l)
}
