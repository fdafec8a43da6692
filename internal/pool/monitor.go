package pool

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// healthMonitor periodically probes idle sessions. It is owned by the
// pool: started in Initialize, cancelled and joined in Shutdown.
//
// Probe failures are recorded on the session and never escalate beyond
// this goroutine; the next Acquire on an unhealthy session performs the
// actual repair.
type healthMonitor struct {
	pool     *Pool
	interval time.Duration
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newHealthMonitor(p *Pool, interval time.Duration, logger *slog.Logger) *healthMonitor {
	return &healthMonitor{
		pool:     p,
		interval: interval,
		logger:   logger.With("component", "health_monitor"),
	}
}

// start launches the monitor loop.
func (m *healthMonitor) start(ctx context.Context) {
	m.ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go m.run()

	m.logger.Debug("health monitor started", "interval", m.interval)
}

// stop cancels the loop and waits for it to exit.
func (m *healthMonitor) stop(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Debug("health monitor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *healthMonitor) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

// tick probes every session that is idle and connected. The pool mutex
// is held across the tick: probes are local state inspections (no
// network), and holding the mutex is what guarantees a session cannot
// be leased out mid-probe.
func (m *healthMonitor) tick() {
	m.pool.mu.Lock()
	defer m.pool.mu.Unlock()

	probed, failed := 0, 0
	for _, s := range m.pool.sessions {
		s.mu.Lock()
		skip := s.leased || s.state != StateConnected
		s.mu.Unlock()
		if skip {
			continue
		}

		probed++
		if !s.probe() {
			failed++
			m.logger.Warn("heartbeat failed, session marked unhealthy",
				"client_id", s.ClientID(),
			)
		}
	}

	if probed > 0 {
		m.logger.Debug("heartbeat tick", "probed", probed, "failed", failed)
	}
}
