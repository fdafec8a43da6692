package pool

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/quantbridge/ibgate/internal/gateway"
	"github.com/quantbridge/ibgate/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeConn implements gateway.Conn for pool tests.
type fakeConn struct {
	clientID int

	mu        sync.Mutex
	connected bool
	probes    int // IsConnected call count
}

func (c *fakeConn) ClientID() int { return c.clientID }

func (c *fakeConn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes++
	return c.connected
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	return nil
}

func (c *fakeConn) drop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
}

func (c *fakeConn) probeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.probes
}

func (c *fakeConn) HistoricalBars(ctx context.Context, symbol, duration, barSize string) ([]model.Bar, error) {
	return nil, nil
}

func (c *fakeConn) Snapshot(ctx context.Context, symbol string) (model.Quote, error) {
	return model.Quote{Symbol: symbol}, nil
}

func (c *fakeConn) AccountSummary(ctx context.Context) (model.AccountSummary, error) {
	return model.AccountSummary{}, nil
}

func (c *fakeConn) SubscribeQuotes(ctx context.Context, symbol string) (*gateway.QuoteStream, error) {
	return nil, gateway.ErrNotConnected
}

// fakeDialer implements gateway.Dialer with a scriptable dial hook.
type fakeDialer struct {
	mu    sync.Mutex
	calls []int // Client ids attempted, in order

	// dial decides the outcome per attempt; nil means always succeed.
	dial func(call, clientID int) error

	// delay stalls every attempt before the outcome is decided.
	delay time.Duration

	conns []*fakeConn
}

func (d *fakeDialer) Dial(ctx context.Context, host string, port, clientID int, timeout time.Duration) (gateway.Conn, error) {
	d.mu.Lock()
	call := len(d.calls)
	d.calls = append(d.calls, clientID)
	hook := d.dial
	delay := d.delay
	d.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, &gateway.ConnError{Kind: gateway.KindTimeout, Err: ctx.Err()}
		}
	}

	if hook != nil {
		if err := hook(call, clientID); err != nil {
			return nil, err
		}
	}

	conn := &fakeConn{clientID: clientID, connected: true}
	d.mu.Lock()
	d.conns = append(d.conns, conn)
	d.mu.Unlock()
	return conn, nil
}

func (d *fakeDialer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

func (d *fakeDialer) attemptedIDs() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]int, len(d.calls))
	copy(out, d.calls)
	return out
}

func (d *fakeDialer) lastConn() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

func connErr(kind gateway.ErrKind) *gateway.ConnError {
	return &gateway.ConnError{Kind: kind, Err: context.DeadlineExceeded}
}
