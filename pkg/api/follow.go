package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rubiojr/logsearch/pkg/core"
	"github.com/rubiojr/logsearch/pkg/realtime"
	"github.com/rubiojr/logsearch/pkg/search"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const writeWait = 10 * time.Second

// HandleFollow streams newly indexed service log records over a WebSocket.
//
// Query parameters are the usual search filters plus numberRows (size of the
// initial snapshot) and since (a sequence number; the snapshot then holds
// the records after it instead of the most recent ones).
func (s *Server) HandleFollow(w http.ResponseWriter, r *http.Request) {
	c, ok := s.criteria(w, r)
	if !ok {
		return
	}
	var since int64 = -1
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			s.writeSearchError(w, r, core.InvalidRequest("since", "not a sequence number: %q", v))
			return
		}
		since = n
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		// Reading is only needed to notice the client going away.
		for {
			if _, _, err := conn.NextReader(); err != nil {
				cancel()
				return
			}
		}
	}()

	// Register before the snapshot so no record falls between the two.
	var events <-chan realtime.Event
	mode := "poll"
	if s.opts.Hub != nil {
		id, ch := s.opts.Hub.Register()
		defer s.opts.Hub.Unregister(id)
		events = ch
		mode = "push"
	}

	snapshot, err := s.snapshot(ctx, c, since)
	if err != nil {
		s.logger.Errorf("Follow snapshot failed: %v", err)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "search backend error"),
			time.Now().Add(writeWait))
		return
	}
	lastSeq := since
	if n := len(snapshot); n > 0 {
		lastSeq = snapshot[n-1].SequenceNumber
	}
	if lastSeq < 0 {
		if lastSeq, err = s.service.Engine().LastSequence(ctx); err != nil {
			s.logger.Errorf("Follow sequence query failed: %v", err)
			return
		}
	}

	if err := s.send(conn, FollowMessage{Type: "init", Mode: mode, Records: serviceLogs(snapshot), Count: len(snapshot), LastSeq: lastSeq}); err != nil {
		return
	}

	if events != nil {
		s.push(ctx, conn, c, events, lastSeq)
	} else {
		s.poll(ctx, conn, c, lastSeq)
	}
}

// snapshot returns the records a follower starts with, oldest first.
func (s *Server) snapshot(ctx context.Context, c core.SearchCriteria, since int64) ([]core.LogRecord, error) {
	engine := s.service.Engine()
	if since >= 0 {
		return engine.Since(ctx, c, since, c.NumberRows)
	}
	return engine.Latest(ctx, c, c.NumberRows)
}

func (s *Server) push(ctx context.Context, conn *websocket.Conn, c core.SearchCriteria, events <-chan realtime.Event, lastSeq int64) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			var matched []core.LogRecord
			for _, r := range ev.Records {
				if r.SequenceNumber > lastSeq && realtime.Match(c, r) {
					matched = append(matched, r)
				}
			}
			if c.Keyword != "" && len(matched) > 0 {
				var err error
				if matched, err = s.service.Engine().Matching(ctx, c, matched); err != nil {
					if ctx.Err() == nil {
						s.logger.Warnf("Follow keyword match failed: %v", err)
					}
					continue
				}
			}
			if len(matched) == 0 {
				continue
			}
			lastSeq = matched[len(matched)-1].SequenceNumber
			if err := s.send(conn, FollowMessage{Type: "records", Records: serviceLogs(matched), Count: len(matched), LastSeq: lastSeq}); err != nil {
				return
			}
		}
	}
}

func (s *Server) poll(ctx context.Context, conn *websocket.Conn, c core.SearchCriteria, lastSeq int64) {
	ticker := time.NewTicker(s.opts.FollowInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			records, err := s.service.Engine().Since(ctx, c, lastSeq, c.NumberRows)
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Warnf("Follow poll failed: %v", err)
				}
				continue
			}
			if len(records) == 0 {
				continue
			}
			lastSeq = records[len(records)-1].SequenceNumber
			if err := s.send(conn, FollowMessage{Type: "records", Records: serviceLogs(records), Count: len(records), LastSeq: lastSeq}); err != nil {
				return
			}
		}
	}
}

func (s *Server) send(conn *websocket.Conn, msg FollowMessage) error {
	if msg.Records == nil {
		msg.Records = []search.ServiceLog{}
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		s.logger.Debugf("Follow write failed: %v", err)
		return err
	}
	return nil
}
