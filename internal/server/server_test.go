package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/quantbridge/ibgate/internal/config"
	"github.com/quantbridge/ibgate/internal/gateway"
	"github.com/quantbridge/ibgate/internal/model"
	"github.com/quantbridge/ibgate/internal/pool"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startFakeGateway runs a loopback gateway speaking the frame protocol
// and returns its port.
func startFakeGateway(t *testing.T) int {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveFakeGateway(conn)
		}
	}()

	return ln.Addr().(*net.TCPAddr).Port
}

func serveFakeGateway(conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)

	// The quote streamer writes from its own goroutine.
	var wmu sync.Mutex
	write := func(fields ...string) error {
		wmu.Lock()
		defer wmu.Unlock()
		return gateway.WriteFrame(conn, fields...)
	}

	fields, err := gateway.ReadFrame(reader)
	if err != nil || len(fields) < 3 || fields[0] != "API" {
		return
	}
	if err := write("HELLO", "0"); err != nil {
		return
	}

	for {
		fields, err := gateway.ReadFrame(reader)
		if err != nil || len(fields) < 2 {
			return
		}
		id := fields[1]

		switch fields[0] {
		case "REQ_BARS":
			write("BAR", id, "1700000000", "10", "11", "9", "10.5", "100")
			write("BAR", id, "1700000300", "10.5", "12", "10", "11.5", "250")
			write("BARS_END", id)

		case "REQ_QUOTE":
			sym := fields[2]
			write("QUOTE", id, sym, "99.5", "100.5", "100", "10", "12", "5000")

		case "REQ_ACCT":
			write("ACCT_ROW", id, "DU12345", "NetLiquidation", "100000.00", "USD")
			write("ACCT_END", id)

		case "SUB_QUOTES":
			sym := fields[2]
			go func() {
				for i := 0; i < 100; i++ {
					err := write("QUOTE", id, sym, "50.0", "50.5", "50.25", "1", "2", strconv.Itoa(100+i))
					if err != nil {
						return
					}
					time.Sleep(20 * time.Millisecond)
				}
			}()
		}
	}
}

func newTestServer(t *testing.T, gatewayPort int, mutate func(*pool.Config)) (*httptest.Server, *pool.Pool) {
	t.Helper()

	cfg := pool.Config{
		Capacity:          2,
		Host:              "127.0.0.1",
		Port:              gatewayPort,
		ClientIDBase:      1,
		ClientIDSpread:    9,
		ConnectTimeout:    2 * time.Second,
		LeaseTimeout:      time.Second,
		HeartbeatInterval: time.Hour,
		StaleAfter:        time.Minute,
		Retry: pool.RetryConfig{
			MaxAttempts:  2,
			InitialDelay: time.Millisecond,
			MaxDelay:     2 * time.Millisecond,
			Multiplier:   2.0,
		},
	}
	if mutate != nil {
		mutate(&cfg)
	}

	dialer := gateway.NewTCPDialer(gateway.DefaultDialConfig(), testLogger())
	p := pool.New(cfg, dialer, nil, testLogger())
	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		p.Shutdown(ctx)
	})

	s := New(config.ServerConfig{}, config.MetricsConfig{}, p, nil, nil, testLogger())
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts, p
}

func getJSON(t *testing.T, url string, wantStatus int, v any) {
	t.Helper()

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("GET %s: status %d, want %d (body %s)", url, resp.StatusCode, wantStatus, body)
	}
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
}

func TestServer_Health(t *testing.T) {
	port := startFakeGateway(t)
	ts, _ := newTestServer(t, port, nil)

	var body map[string]any
	getJSON(t, ts.URL+"/health", http.StatusOK, &body)

	if body["status"] == "" {
		t.Error("missing status field")
	}
	if int(body["capacity"].(float64)) != 2 {
		t.Errorf("capacity = %v, want 2", body["capacity"])
	}
}

func TestServer_Status(t *testing.T) {
	port := startFakeGateway(t)
	ts, _ := newTestServer(t, port, nil)

	var st pool.PoolStatus
	getJSON(t, ts.URL+"/status", http.StatusOK, &st)

	if st.Total != 2 || st.Idle != 2 {
		t.Errorf("total=%d idle=%d, want 2/2", st.Total, st.Idle)
	}
}

func TestServer_History(t *testing.T) {
	port := startFakeGateway(t)
	ts, _ := newTestServer(t, port, nil)

	var data model.HistoricalData
	getJSON(t, ts.URL+"/v1/market-data/AAPL/history?duration=2+D&bar_size=1+hour", http.StatusOK, &data)

	if data.Symbol != "AAPL" {
		t.Errorf("Symbol = %q, want AAPL", data.Symbol)
	}
	if data.Duration != "2 D" || data.BarSize != "1 hour" {
		t.Errorf("params not echoed: %q %q", data.Duration, data.BarSize)
	}
	if data.Count != 2 || len(data.Bars) != 2 {
		t.Fatalf("expected 2 bars, got count=%d len=%d", data.Count, len(data.Bars))
	}
	if data.Bars[1].Close != 11.5 {
		t.Errorf("unexpected bar data: %+v", data.Bars[1])
	}
}

func TestServer_Snapshot(t *testing.T) {
	port := startFakeGateway(t)
	ts, _ := newTestServer(t, port, nil)

	var q model.Quote
	getJSON(t, ts.URL+"/v1/market-data/MSFT/snapshot", http.StatusOK, &q)

	if q.Symbol != "MSFT" || q.Bid != 99.5 || q.Ask != 100.5 {
		t.Errorf("unexpected quote: %+v", q)
	}
}

func TestServer_AccountSummary(t *testing.T) {
	port := startFakeGateway(t)
	ts, _ := newTestServer(t, port, nil)

	var summary model.AccountSummary
	getJSON(t, ts.URL+"/v1/account/summary", http.StatusOK, &summary)

	if summary.AccountID != "DU12345" {
		t.Errorf("AccountID = %q, want DU12345", summary.AccountID)
	}
	if _, ok := summary.Lookup("NetLiquidation"); !ok {
		t.Error("NetLiquidation row missing")
	}
}

func TestServer_PoolExhaustedMapsTo503(t *testing.T) {
	port := startFakeGateway(t)
	ts, p := newTestServer(t, port, func(cfg *pool.Config) {
		cfg.Capacity = 1
		cfg.LeaseTimeout = 50 * time.Millisecond
	})

	lease, err := p.Acquire(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer lease.Release()

	var body errorBody
	getJSON(t, ts.URL+"/v1/market-data/AAPL/snapshot", http.StatusServiceUnavailable, &body)

	if body.Error == "" {
		t.Error("missing error message")
	}
	if body.Hint == "" {
		t.Error("missing remediation hint")
	}
}

func TestServer_ConnectFailureMapsTo503WithHint(t *testing.T) {
	// A closed port: every connect is refused.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	ts, _ := newTestServer(t, port, nil)

	var body errorBody
	getJSON(t, ts.URL+"/v1/market-data/AAPL/snapshot", http.StatusServiceUnavailable, &body)

	if body.Hint != pool.ReasonRefused.Hint() {
		t.Errorf("Hint = %q, want the pool's refusal hint", body.Hint)
	}
}

func TestServer_StreamRequiresSymbols(t *testing.T) {
	port := startFakeGateway(t)
	ts, _ := newTestServer(t, port, nil)

	var body errorBody
	getJSON(t, ts.URL+"/v1/market-data/stream", http.StatusBadRequest, &body)

	if body.Hint == "" {
		t.Error("missing usage hint")
	}
}

func TestServer_StreamDeliversQuotes(t *testing.T) {
	port := startFakeGateway(t)
	ts, p := newTestServer(t, port, nil)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/market-data/stream?symbols=SPY"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial: %v", err)
	}
	defer ws.Close()

	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	for i := 0; i < 3; i++ {
		var q model.Quote
		if err := ws.ReadJSON(&q); err != nil {
			t.Fatalf("read quote %d: %v", i, err)
		}
		if q.Symbol != "SPY" {
			t.Errorf("Symbol = %q, want SPY", q.Symbol)
		}
	}

	// The stream holds one lease for the socket's lifetime.
	st := p.Status()
	if st.Leased != 1 {
		t.Errorf("leased = %d while streaming, want 1", st.Leased)
	}

	ws.Close()

	deadline := time.Now().Add(2 * time.Second)
	for p.Status().Leased != 0 {
		if time.Now().After(deadline) {
			t.Fatal("lease not released after client hangup")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
