package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"nhooyr.io/websocket"

	"yeifinance/core/events"
	"yeifinance/services/lending/api"
	"yeifinance/services/lending/indexer"
)

const wsWriteTimeout = 10 * time.Second

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		s.writeError(w, r, "events", errEventsDisabled)
		return
	}
	query := r.URL.Query()
	filter := indexer.Filter{
		Type:   strings.TrimSpace(query.Get("type")),
		TxHash: strings.TrimSpace(query.Get("txHash")),
	}
	if raw := strings.TrimSpace(query.Get("account")); raw != "" {
		account, err := parseAddress("account", raw)
		if err != nil {
			s.writeError(w, r, "events", err)
			return
		}
		filter.Account = account
	}
	if raw := strings.TrimSpace(query.Get("after")); raw != "" {
		after, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.writeError(w, r, "events", badRequest("after: %v", err))
			return
		}
		filter.AfterSeq = after
	}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			s.writeError(w, r, "events", badRequest("limit must be a non-negative integer"))
			return
		}
		filter.Limit = limit
	}
	records, err := s.events.Query(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, "events", err)
		return
	}
	writeJSON(w, http.StatusOK, indexedResponse(records))
}

// streamFilter keeps events whose type is listed and that involve account.
// Empty fields match everything.
type streamFilter struct {
	types   map[string]struct{}
	account string
}

func newStreamFilter(r *http.Request) (streamFilter, error) {
	query := r.URL.Query()
	var f streamFilter
	if raw := strings.TrimSpace(query.Get("types")); raw != "" {
		f.types = make(map[string]struct{})
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				f.types[t] = struct{}{}
			}
		}
	}
	if raw := strings.TrimSpace(query.Get("account")); raw != "" {
		account, err := parseAddress("account", raw)
		if err != nil {
			return streamFilter{}, err
		}
		f.account = account.Hex()
	}
	return f, nil
}

func (f streamFilter) match(ev api.Event) bool {
	if len(f.types) > 0 {
		if _, ok := f.types[ev.Type]; !ok {
			return false
		}
	}
	if f.account == "" {
		return true
	}
	for _, key := range []string{"account", "from", "to", "owner", "spender"} {
		if value := ev.Attributes[key]; value != "" && common.HexToAddress(value).Hex() == f.account {
			return true
		}
	}
	return false
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.stream == nil {
		s.writeError(w, r, "events.stream", errStreamDisabled)
		return
	}
	filter, err := newStreamFilter(r)
	if err != nil {
		s.writeError(w, r, "events.stream", err)
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	// The stream is write-only; CloseRead handles control frames and cancels
	// ctx once the client goes away.
	ctx := conn.CloseRead(r.Context())
	if err := s.streamEvents(ctx, conn, filter); err != nil {
		if status := websocket.CloseStatus(err); status == -1 && ctx.Err() == nil {
			s.logger.Warn("event stream failed", "error", err)
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, filter streamFilter) error {
	updates, cancel := s.stream.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-updates:
			if !ok {
				return nil
			}
			rendered := toEvents([]events.Event{ev})
			if len(rendered) == 0 || !filter.match(rendered[0]) {
				continue
			}
			if err := writeStreamEvent(ctx, conn, rendered[0]); err != nil {
				return err
			}
		}
	}
}

func writeStreamEvent(ctx context.Context, conn *websocket.Conn, ev api.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
