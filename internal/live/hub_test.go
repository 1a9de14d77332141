package live

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tommygebru/vitrine-highlights/internal/common"
	"github.com/tommygebru/vitrine-highlights/internal/highlights"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func newTestServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("moderator")
		if id != "" {
			r = r.WithContext(common.WithViewer(r.Context(), &common.Viewer{ID: id, Role: common.RoleAdmin}))
		}
		hub.ServeWS(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, moderator string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?moderator=" + moderator
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestPublishReachesConnectedModerators(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(nil)
	go hub.Run(ctx)
	srv := newTestServer(t, hub)

	first := dial(t, srv, "mod-1")
	second := dial(t, srv, "mod-2")
	waitFor(t, func() bool { return hub.ClientCount() == 2 })

	hub.Publish(ctx, &highlights.Event{
		Type:   highlights.EventCreated,
		ItemID: "h1",
		Actor:  "u1",
		At:     time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	})

	for _, conn := range []*websocket.Conn{first, second} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var event highlights.Event
		if err := json.Unmarshal(data, &event); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if event.Type != highlights.EventCreated || event.ItemID != "h1" {
			t.Fatalf("event = %+v", event)
		}
	}

	first.Close()
	waitFor(t, func() bool { return hub.ClientCount() == 1 })
}

func TestServeWSRequiresViewer(t *testing.T) {
	hub := NewHub(nil)
	srv := newTestServer(t, hub)

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(nil)
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	srv := newTestServer(t, hub)
	conn := dial(t, srv, "mod-1")
	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatalf("hub did not stop")
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected connection to close after hub stopped")
	}
	if hub.ClientCount() != 0 {
		t.Fatalf("clients remain after stop: %d", hub.ClientCount())
	}

	// publishing after shutdown must not block
	hub.Publish(context.Background(), &highlights.Event{Type: highlights.EventDeleted, ItemID: "x"})
}
