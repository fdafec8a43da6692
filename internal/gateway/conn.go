package gateway

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/quantbridge/ibgate/internal/model"
)

// protocolVersion is sent during the handshake.
const protocolVersion = "100"

// Wire message types.
const (
	msgHandshake   = "API"
	msgHello       = "HELLO"
	msgErr         = "ERR"
	msgReqBars     = "REQ_BARS"
	msgBar         = "BAR"
	msgBarsEnd     = "BARS_END"
	msgReqQuote    = "REQ_QUOTE"
	msgQuote       = "QUOTE"
	msgReqAcct     = "REQ_ACCT"
	msgAcctRow     = "ACCT_ROW"
	msgAcctEnd     = "ACCT_END"
	msgSubQuotes   = "SUB_QUOTES"
	msgUnsubQuotes = "UNSUB_QUOTES"
)

// Conn is a single authenticated connection to the trading gateway.
type Conn interface {
	// ClientID returns the identifier this connection authenticated with.
	ClientID() int

	// IsConnected reports whether the connection is still up. This is a
	// local state inspection; it never touches the network.
	IsConnected() bool

	// Close tears the connection down. Safe to call more than once.
	Close() error

	// HistoricalBars fetches OHLCV bars for a symbol.
	HistoricalBars(ctx context.Context, symbol, duration, barSize string) ([]model.Bar, error)

	// Snapshot fetches a single quote for a symbol.
	Snapshot(ctx context.Context, symbol string) (model.Quote, error)

	// AccountSummary fetches the account summary rows.
	AccountSummary(ctx context.Context) (model.AccountSummary, error)

	// SubscribeQuotes starts a streaming quote subscription for a symbol.
	SubscribeQuotes(ctx context.Context, symbol string) (*QuoteStream, error)
}

// Dialer establishes gateway connections.
type Dialer interface {
	Dial(ctx context.Context, host string, port, clientID int, timeout time.Duration) (Conn, error)
}

// QuoteStream is a live quote subscription. The channel is closed when
// the subscription is cancelled or the connection drops.
type QuoteStream struct {
	Symbol string

	c      chan model.Quote
	cancel func()
	once   sync.Once
}

// Quotes returns the stream channel.
func (s *QuoteStream) Quotes() <-chan model.Quote {
	return s.c
}

// Cancel stops the subscription and closes the channel.
func (s *QuoteStream) Cancel() {
	s.once.Do(s.cancel)
}

// TCPDialer implements Dialer over TCP.
type TCPDialer struct {
	cfg    DialConfig
	logger *slog.Logger
}

// NewTCPDialer creates a dialer with the given config.
func NewTCPDialer(cfg DialConfig, logger *slog.Logger) *TCPDialer {
	if logger == nil {
		logger = slog.Default()
	}
	return &TCPDialer{cfg: cfg, logger: logger}
}

// Dial connects, performs the handshake, and starts the read loop.
// Failures are returned as classified *ConnError values.
func (d *TCPDialer) Dial(ctx context.Context, host string, port, clientID int, timeout time.Duration) (Conn, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	dialer := net.Dialer{Timeout: timeout}
	raw, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, classifyDialError(err)
	}

	// The handshake shares the connect timeout budget.
	raw.SetDeadline(time.Now().Add(timeout))

	reader := bufio.NewReader(raw)
	if err := WriteFrame(raw, msgHandshake, protocolVersion, strconv.Itoa(clientID)); err != nil {
		raw.Close()
		return nil, classifyDialError(err)
	}

	fields, err := ReadFrame(reader)
	if err != nil {
		raw.Close()
		return nil, classifyDialError(err)
	}

	switch {
	case len(fields) >= 1 && fields[0] == msgHello:
		// Connected.
	case len(fields) >= 3 && fields[0] == msgErr:
		raw.Close()
		code, msg := fields[2], ""
		if len(fields) > 3 {
			msg = fields[3]
		}
		kind := KindUnknown
		if code == codeClientIDInUse {
			kind = KindIdentifierInUse
		}
		return nil, &ConnError{Kind: kind, Err: fmt.Errorf("gateway error %s: %s", code, msg)}
	default:
		raw.Close()
		return nil, &ConnError{Kind: KindUnknown, Err: fmt.Errorf("unexpected handshake frame %v", fields)}
	}

	raw.SetDeadline(time.Time{})

	c := &tcpConn{
		cfg:      d.cfg,
		logger:   d.logger.With("client_id", clientID),
		clientID: clientID,
		conn:     raw,
		reader:   reader,
		done:     make(chan struct{}),
		pending:  make(map[int64]chan []string),
		subs:     make(map[int64]*QuoteStream),
	}
	c.connected.Store(true)

	go c.readLoop()

	d.logger.Debug("gateway connected", "addr", addr, "client_id", clientID)
	return c, nil
}

// classifyDialError maps transport errors onto the ConnError taxonomy.
func classifyDialError(err error) *ConnError {
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return &ConnError{Kind: KindRefused, Err: err}
	case errors.Is(err, syscall.EHOSTUNREACH), errors.Is(err, syscall.ENETUNREACH):
		return &ConnError{Kind: KindUnreachable, Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &ConnError{Kind: KindTimeout, Err: err}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &ConnError{Kind: KindUnreachable, Err: err}
	}

	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return &ConnError{Kind: KindTimeout, Err: err}
	}

	return &ConnError{Kind: KindUnknown, Err: err}
}

// tcpConn implements Conn.
type tcpConn struct {
	cfg      DialConfig
	logger   *slog.Logger
	clientID int

	conn   net.Conn
	reader *bufio.Reader

	connected atomic.Bool
	closeOnce sync.Once
	done      chan struct{}

	// Write serialization
	writeMu sync.Mutex

	// Request/response correlation
	pendingMu sync.Mutex
	pending   map[int64]chan []string
	reqID     atomic.Int64

	// Streaming subscriptions
	subsMu sync.Mutex
	subs   map[int64]*QuoteStream
}

func (c *tcpConn) ClientID() int {
	return c.clientID
}

func (c *tcpConn) IsConnected() bool {
	return c.connected.Load()
}

func (c *tcpConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.connected.Store(false)
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

// send writes a single frame under the write lock.
func (c *tcpConn) send(fields ...string) error {
	if !c.connected.Load() {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return WriteFrame(c.conn, fields...)
}

// register creates a pending entry for a new request id.
func (c *tcpConn) register() (int64, chan []string) {
	id := c.reqID.Add(1)
	ch := make(chan []string, 64)

	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()

	return id, ch
}

func (c *tcpConn) unregister(id int64) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

// readLoop reads frames until the connection drops and dispatches them
// to pending requests and quote subscriptions.
func (c *tcpConn) readLoop() {
	defer c.teardown()

	for {
		fields, err := ReadFrame(c.reader)
		if err != nil {
			select {
			case <-c.done:
				// Closed locally; the error is expected.
			default:
				c.logger.Warn("gateway read failed", "error", err)
			}
			return
		}

		if len(fields) < 2 {
			c.logger.Warn("short frame from gateway", "fields", fields)
			continue
		}

		id, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			c.logger.Warn("frame with bad request id", "fields", fields)
			continue
		}

		// Connection-level errors carry request id 0.
		if fields[0] == msgErr && id == 0 {
			c.logger.Warn("gateway reported error",
				"code", fieldAt(fields, 2),
				"message", fieldAt(fields, 3),
			)
			continue
		}

		if fields[0] == msgQuote {
			if c.dispatchQuote(id, fields) {
				continue
			}
		}

		c.pendingMu.Lock()
		ch, ok := c.pending[id]
		c.pendingMu.Unlock()
		if !ok {
			continue
		}

		select {
		case ch <- fields:
		default:
			c.logger.Warn("response buffer full, dropping frame", "req_id", id)
		}
	}
}

// teardown marks the connection dead and releases all waiters.
func (c *tcpConn) teardown() {
	c.connected.Store(false)

	c.pendingMu.Lock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()

	c.subsMu.Lock()
	for id, stream := range c.subs {
		close(stream.c)
		delete(c.subs, id)
	}
	c.subsMu.Unlock()
}

// dispatchQuote routes a QUOTE frame to its subscription. The send
// happens under subsMu so Cancel cannot close the channel mid-send.
func (c *tcpConn) dispatchQuote(id int64, fields []string) bool {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	stream, ok := c.subs[id]
	if !ok {
		return false
	}

	q, err := parseQuote(fields)
	if err != nil {
		c.logger.Warn("bad quote frame", "error", err)
		return true
	}

	select {
	case stream.c <- q:
	default:
		// Slow consumer; dropping beats blocking the read loop.
	}
	return true
}

// HistoricalBars fetches OHLCV bars for a symbol.
func (c *tcpConn) HistoricalBars(ctx context.Context, symbol, duration, barSize string) ([]model.Bar, error) {
	id, ch := c.register()
	defer c.unregister(id)

	if err := c.send(msgReqBars, strconv.FormatInt(id, 10), symbol, duration, barSize); err != nil {
		return nil, err
	}

	var bars []model.Bar
	for {
		fields, err := c.await(ctx, ch)
		if err != nil {
			return nil, err
		}

		switch fields[0] {
		case msgBar:
			bar, err := parseBar(fields)
			if err != nil {
				return nil, err
			}
			bars = append(bars, bar)
		case msgBarsEnd:
			return bars, nil
		case msgErr:
			return nil, responseError(fields)
		default:
			return nil, fmt.Errorf("unexpected frame %q for bars request", fields[0])
		}
	}
}

// Snapshot fetches a single quote for a symbol.
func (c *tcpConn) Snapshot(ctx context.Context, symbol string) (model.Quote, error) {
	id, ch := c.register()
	defer c.unregister(id)

	if err := c.send(msgReqQuote, strconv.FormatInt(id, 10), symbol); err != nil {
		return model.Quote{}, err
	}

	fields, err := c.await(ctx, ch)
	if err != nil {
		return model.Quote{}, err
	}

	switch fields[0] {
	case msgQuote:
		return parseQuote(fields)
	case msgErr:
		return model.Quote{}, responseError(fields)
	default:
		return model.Quote{}, fmt.Errorf("unexpected frame %q for quote request", fields[0])
	}
}

// AccountSummary fetches the account summary rows.
func (c *tcpConn) AccountSummary(ctx context.Context) (model.AccountSummary, error) {
	id, ch := c.register()
	defer c.unregister(id)

	if err := c.send(msgReqAcct, strconv.FormatInt(id, 10)); err != nil {
		return model.AccountSummary{}, err
	}

	summary := model.AccountSummary{Timestamp: time.Now()}
	for {
		fields, err := c.await(ctx, ch)
		if err != nil {
			return model.AccountSummary{}, err
		}

		switch fields[0] {
		case msgAcctRow:
			if len(fields) < 6 {
				return model.AccountSummary{}, fmt.Errorf("short account row %v", fields)
			}
			summary.AccountID = fields[2]
			summary.Values = append(summary.Values, model.AccountValue{
				Tag:      fields[3],
				Value:    fields[4],
				Currency: fields[5],
			})
		case msgAcctEnd:
			return summary, nil
		case msgErr:
			return model.AccountSummary{}, responseError(fields)
		default:
			return model.AccountSummary{}, fmt.Errorf("unexpected frame %q for account request", fields[0])
		}
	}
}

// SubscribeQuotes starts a streaming quote subscription for a symbol.
func (c *tcpConn) SubscribeQuotes(ctx context.Context, symbol string) (*QuoteStream, error) {
	id := c.reqID.Add(1)

	stream := &QuoteStream{
		Symbol: symbol,
		c:      make(chan model.Quote, c.cfg.BufferSize),
	}
	stream.cancel = func() {
		c.subsMu.Lock()
		_, live := c.subs[id]
		if live {
			delete(c.subs, id)
			close(stream.c)
		}
		c.subsMu.Unlock()

		if live {
			// Best effort; the gateway drops the subscription with the
			// connection anyway.
			if err := c.send(msgUnsubQuotes, strconv.FormatInt(id, 10)); err != nil {
				c.logger.Debug("unsubscribe failed", "symbol", symbol, "error", err)
			}
		}
	}

	c.subsMu.Lock()
	c.subs[id] = stream
	c.subsMu.Unlock()

	if err := c.send(msgSubQuotes, strconv.FormatInt(id, 10), symbol); err != nil {
		c.subsMu.Lock()
		delete(c.subs, id)
		c.subsMu.Unlock()
		return nil, err
	}

	return stream, nil
}

// await waits for the next frame of a pending request.
func (c *tcpConn) await(ctx context.Context, ch chan []string) ([]string, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrNotConnected
	case fields, ok := <-ch:
		if !ok {
			return nil, ErrNotConnected
		}
		return fields, nil
	}
}

// responseError converts an ERR frame into an error.
func responseError(fields []string) error {
	return fmt.Errorf("gateway error %s: %s", fieldAt(fields, 2), fieldAt(fields, 3))
}

func fieldAt(fields []string, i int) string {
	if i < len(fields) {
		return fields[i]
	}
	return ""
}

// parseBar decodes a BAR frame:
// BAR, reqID, time, open, high, low, close, volume
func parseBar(fields []string) (model.Bar, error) {
	if len(fields) < 8 {
		return model.Bar{}, fmt.Errorf("short bar frame %v", fields)
	}

	t, err1 := strconv.ParseInt(fields[2], 10, 64)
	o, err2 := strconv.ParseFloat(fields[3], 64)
	h, err3 := strconv.ParseFloat(fields[4], 64)
	l, err4 := strconv.ParseFloat(fields[5], 64)
	cl, err5 := strconv.ParseFloat(fields[6], 64)
	v, err6 := strconv.ParseInt(fields[7], 10, 64)

	if err := errors.Join(err1, err2, err3, err4, err5, err6); err != nil {
		return model.Bar{}, fmt.Errorf("parse bar frame: %w", err)
	}

	return model.Bar{Time: t, Open: o, High: h, Low: l, Close: cl, Volume: v}, nil
}

// parseQuote decodes a QUOTE frame:
// QUOTE, reqID, symbol, bid, ask, last, bidSize, askSize, volume
func parseQuote(fields []string) (model.Quote, error) {
	if len(fields) < 9 {
		return model.Quote{}, fmt.Errorf("short quote frame %v", fields)
	}

	bid, err1 := strconv.ParseFloat(fields[3], 64)
	ask, err2 := strconv.ParseFloat(fields[4], 64)
	last, err3 := strconv.ParseFloat(fields[5], 64)
	bidSize, err4 := strconv.ParseInt(fields[6], 10, 64)
	askSize, err5 := strconv.ParseInt(fields[7], 10, 64)
	volume, err6 := strconv.ParseInt(fields[8], 10, 64)

	if err := errors.Join(err1, err2, err3, err4, err5, err6); err != nil {
		return model.Quote{}, fmt.Errorf("parse quote frame: %w", err)
	}

	return model.Quote{
		Symbol:    fields[2],
		Bid:       bid,
		Ask:       ask,
		Last:      last,
		BidSize:   bidSize,
		AskSize:   askSize,
		Volume:    volume,
		Timestamp: time.Now(),
	}, nil
}
