package opsserver

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/DataStream-Network/dat_ledger/internal/fact"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Mirrors connect from their own origins; the bearer token is the
	// access control, not the Origin header.
	CheckOrigin: func(*http.Request) bool { return true },
}

const (
	tailBuffer    = 256
	writeDeadline = 10 * time.Second
	pingInterval  = 30 * time.Second
)

// handleFactsTail streams the fact journal over a WebSocket. Query
// parameters: from (optional backfill start seq), types (optional
// comma-separated fact-type filter), and attr/value (optional attr-path
// filter, e.g. attr=creator&value=dat1... to follow one principal). Facts
// arrive in seq order with no duplicates across the backfill/live boundary.
func (s *Server) handleFactsTail(w http.ResponseWriter, r *http.Request) {
	var types []fact.Type
	if v := r.URL.Query().Get("types"); v != "" {
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, fact.Type(t))
			}
		}
	}
	attrPath := r.URL.Query().Get("attr")
	attrValue := r.URL.Query().Get("value")
	if attrPath == "" && attrValue != "" {
		writeError(w, http.StatusBadRequest, "value requires attr")
		return
	}
	var from uint64
	if v := r.URL.Query().Get("from"); v != "" {
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "from must be a sequence number")
			return
		}
		from = parsed
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Debug("websocket upgrade failed")
		return
	}
	defer conn.Close()

	// Subscribe before backfilling so nothing falls between the two; the
	// seq check below drops the overlap.
	live := make(chan fact.Fact, tailBuffer)
	dropped := make(chan struct{})
	var dropOnce sync.Once
	unsubscribe := s.journal.Subscribe(func(f fact.Fact) {
		select {
		case <-dropped:
			return
		default:
		}
		select {
		case live <- f:
		default:
			// Slow consumer: drop the connection rather than the fact order.
			dropOnce.Do(func() { close(dropped) })
		}
	})
	defer unsubscribe()

	wanted := func(f fact.Fact) bool {
		if attrPath != "" && f.Field(attrPath).String() != attrValue {
			return false
		}
		if len(types) == 0 {
			return true
		}
		for _, t := range types {
			if f.Type == t {
				return true
			}
		}
		return false
	}

	var lastSent uint64
	if from > 0 {
		for {
			batch, err := s.journal.ReadFrom(r.Context(), from, maxFactPage)
			if err != nil || len(batch) == 0 {
				break
			}
			for _, f := range batch {
				if !wanted(f) {
					continue
				}
				if !s.writeFact(conn, f) {
					return
				}
				lastSent = f.Seq
			}
			from = batch[len(batch)-1].Seq + 1
			if len(batch) < maxFactPage {
				break
			}
		}
	}

	// Reader goroutine: surfaces client close so the stream loop exits.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-dropped:
			s.log.Debug("dropping slow fact-tail consumer")
			return
		case f := <-live:
			if f.Seq <= lastSent || !wanted(f) {
				continue
			}
			if !s.writeFact(conn, f) {
				return
			}
			lastSent = f.Seq
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) writeFact(conn *websocket.Conn, f fact.Fact) bool {
	conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	if err := conn.WriteJSON(f); err != nil {
		s.log.WithError(err).Debug("fact tail write failed")
		return false
	}
	return true
}
