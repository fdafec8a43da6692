package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/quantbridge/ibgate/internal/gateway"
	"github.com/quantbridge/ibgate/internal/model"
)

const streamWriteTimeout = 10 * time.Second

// handleStream upgrades to a websocket and relays live quotes for the
// requested symbols. The session lease is held for the lifetime of the
// socket, so a streaming client occupies one pool slot.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	symbols := splitSymbols(r.URL.Query().Get("symbols"))
	if len(symbols) == 0 {
		writeError(w, http.StatusBadRequest,
			"missing symbols", "pass ?symbols=AAPL,MSFT")
		return
	}

	// Acquire before upgrading so pool unavailability is still a plain
	// HTTP 503 the client can interpret.
	lease, err := s.pool.Acquire(r.Context(), 0)
	if err != nil {
		writeAcquireError(w, err)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		lease.Release()
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	defer lease.Release()
	defer ws.Close()

	merged := make(chan model.Quote, 64)
	var streams []*gateway.QuoteStream
	defer func() {
		for _, st := range streams {
			st.Cancel()
		}
	}()

	for _, sym := range symbols {
		stream, err := lease.Conn().SubscribeQuotes(ctx, sym)
		if err != nil {
			s.logger.Warn("subscribe failed", "symbol", sym, "error", err)
			ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscribe failed"),
				time.Now().Add(streamWriteTimeout))
			return
		}
		streams = append(streams, stream)

		go func(st *gateway.QuoteStream) {
			for q := range st.Quotes() {
				select {
				case merged <- q:
				case <-ctx.Done():
					return
				}
			}
			cancel() // Connection dropped under the subscription
		}(stream)
	}

	// Reads only serve to notice the client hanging up.
	go func() {
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	s.logger.Info("quote stream opened", "symbols", symbols, "client_id", lease.ClientID())

	for {
		select {
		case <-ctx.Done():
			return
		case q := <-merged:
			ws.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := ws.WriteJSON(q); err != nil {
				return
			}
		}
	}
}

// splitSymbols parses a comma-separated symbol list, dropping empties.
func splitSymbols(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
