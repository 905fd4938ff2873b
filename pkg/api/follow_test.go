package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rubiojr/logsearch/pkg/core"
	"github.com/rubiojr/logsearch/pkg/realtime"
)

func wsDial(t *testing.T, ts *httptest.Server, rawQuery string) (*websocket.Conn, FollowMessage) {
	t.Helper()
	u, _ := url.Parse(ts.URL)
	u.Scheme = "ws"
	u.Path = "/api/v1/service/logs/follow"
	u.RawQuery = rawQuery

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	msg := readMessage(t, conn)
	if msg.Type != "init" {
		t.Fatalf("expected init message, got %v", msg.Type)
	}
	return conn, msg
}

func readMessage(t *testing.T, conn *websocket.Conn) FollowMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read message: %v", err)
	}
	var msg FollowMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal message: %v", err)
	}
	return msg
}

func msgSeqs(msg FollowMessage) []int64 {
	var out []int64
	for _, r := range msg.Records {
		out = append(out, r.SequenceNumber)
	}
	return out
}

func TestFollowPollMode(t *testing.T) {
	server, client := setupTestAPIServer(t, Options{FollowInterval: 20 * time.Millisecond})
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	t.Run("snapshot holds the most recent records oldest first", func(t *testing.T) {
		_, init := wsDial(t, ts, "numberRows=3")
		if init.Mode != "poll" {
			t.Errorf("expected poll mode, got %q", init.Mode)
		}
		if got := msgSeqs(init); len(got) != 3 || got[0] != 28 || got[2] != 30 {
			t.Errorf("unexpected snapshot %v", got)
		}
		if init.LastSeq != 30 {
			t.Errorf("expected last_seq 30, got %d", init.LastSeq)
		}
	})

	t.Run("since returns records after the sequence number", func(t *testing.T) {
		_, init := wsDial(t, ts, "since=27")
		if got := msgSeqs(init); len(got) != 3 || got[0] != 28 {
			t.Errorf("unexpected snapshot %v", got)
		}
	})

	t.Run("new records are delivered", func(t *testing.T) {
		conn, _ := wsDial(t, ts, "level=ERROR&numberRows=5")
		client.Add(core.CollectionService, record(31, ""), record(32, "ERROR disk full"))

		msg := readMessage(t, conn)
		if msg.Type != "records" {
			t.Fatalf("expected records message, got %q", msg.Type)
		}
		if got := msgSeqs(msg); len(got) != 1 || got[0] != 32 {
			t.Errorf("expected only the ERROR record, got %v", got)
		}
	})
}

func TestFollowPollModeKeyword(t *testing.T) {
	server, client := setupTestAPIServer(t, Options{FollowInterval: 20 * time.Millisecond})
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	_, init := wsDial(t, ts, "keyword=lost&numberRows=3")
	if got := msgSeqs(init); len(got) != 1 || got[0] != 7 {
		t.Errorf("expected only the record mentioning the keyword, got %v", got)
	}

	_, init = wsDial(t, ts, "keyword=lost&since=10")
	if init.Count != 0 {
		t.Errorf("no record after 10 mentions the keyword, got %v", msgSeqs(init))
	}

	conn, init := wsDial(t, ts, "keyword=disk&numberRows=3")
	if init.Count != 0 {
		t.Errorf("no stored record mentions disk, got %v", msgSeqs(init))
	}
	client.Add(core.CollectionService, record(31, "heartbeat"), record(32, "disk check ok"), record(33, ""))

	msg := readMessage(t, conn)
	if got := msgSeqs(msg); msg.Type != "records" || len(got) != 1 || got[0] != 32 {
		t.Errorf("unexpected poll message %s %v", msg.Type, got)
	}
}

func TestFollowPushModeTimeRange(t *testing.T) {
	hub := realtime.NewHub(16)
	server, client := setupTestAPIServer(t, Options{Hub: hub})
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	follower := realtime.NewFollower(server.service.Engine(), hub, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go follower.Run(ctx)

	to := t0.Add(32 * time.Second).Format(time.RFC3339)
	conn, _ := wsDial(t, ts, "numberRows=1&to="+url.QueryEscape(to))

	deadline := time.Now().Add(2 * time.Second)
	for follower.LastSequence() != 30 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	client.Add(core.CollectionService, record(31, ""), record(32, ""), record(33, ""))
	if err := follower.Poll(ctx); err != nil {
		t.Fatalf("poll: %v", err)
	}

	msg := readMessage(t, conn)
	if got := msgSeqs(msg); len(got) != 2 || got[1] != 32 {
		t.Errorf("expected records up to the end of the range, got %v", got)
	}
}

func TestFollowPushMode(t *testing.T) {
	hub := realtime.NewHub(16)
	server, client := setupTestAPIServer(t, Options{Hub: hub})
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	follower := realtime.NewFollower(server.service.Engine(), hub, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go follower.Run(ctx)

	conn, init := wsDial(t, ts, "keyword=disk&numberRows=2")
	if init.Mode != "push" {
		t.Fatalf("expected push mode, got %q", init.Mode)
	}
	if init.Count != 0 {
		t.Errorf("no stored record mentions disk, got %v", msgSeqs(init))
	}

	deadline := time.Now().Add(2 * time.Second)
	for follower.LastSequence() != 30 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	client.Add(core.CollectionService, record(31, "disk check ok"), record(32, "heartbeat"))
	if err := follower.Poll(ctx); err != nil {
		t.Fatalf("poll: %v", err)
	}

	msg := readMessage(t, conn)
	if got := msgSeqs(msg); msg.Type != "records" || len(got) != 1 || got[0] != 31 {
		t.Errorf("unexpected push message %s %v", msg.Type, got)
	}
}

func TestFollowRejectsBadSince(t *testing.T) {
	server, _ := setupTestAPIServer(t, Options{})
	w := get(t, server.Handler(), "/api/v1/service/logs/follow?since=abc")
	if w.Code != 400 {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}
