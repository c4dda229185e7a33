package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"nftstake/core/events"
)

const wsWriteTimeout = 10 * time.Second

// handleEventStream upgrades to a websocket and pushes the retained backlog
// followed by live ledger events. ?type= narrows the stream by prefix.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Broadcaster == nil {
		http.Error(w, "event stream unavailable", http.StatusServiceUnavailable)
		return
	}
	prefix := strings.TrimSpace(r.URL.Query().Get("type"))
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	// Client frames are ignored; CloseRead cancels ctx once the peer goes away.
	ctx := conn.CloseRead(r.Context())
	if err := s.streamEvents(ctx, conn, prefix); err != nil {
		if status := websocket.CloseStatus(err); status == -1 && ctx.Err() == nil {
			s.logger.Debug("event stream ended", "error", err)
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, prefix string) error {
	updates, cancel, backlog := s.cfg.Broadcaster.Subscribe(ctx)
	defer cancel()

	for _, rec := range backlog {
		if !matchesPrefix(rec, prefix) {
			continue
		}
		if err := writeEvent(ctx, conn, rec); err != nil {
			return err
		}
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec, ok := <-updates:
			if !ok {
				return nil
			}
			if !matchesPrefix(rec, prefix) {
				continue
			}
			if err := writeEvent(ctx, conn, rec); err != nil {
				return err
			}
		}
	}
}

func matchesPrefix(rec *events.Record, prefix string) bool {
	return prefix == "" || strings.HasPrefix(rec.Type, prefix)
}

func writeEvent(ctx context.Context, conn *websocket.Conn, rec *events.Record) error {
	data, err := json.Marshal(eventResponse{Type: rec.Type, Time: rec.Time, Attributes: rec.Attributes})
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
