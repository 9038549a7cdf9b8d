package irisfast

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

func TestWebSocket_DeliversMessagesAndHeaders(t *testing.T) {
	gotHeader := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader <- r.Header.Get("X-User-Id")
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close(websocket.StatusNormalClosure, "")
		_ = wsjson.Write(r.Context(), c, Message{ID: "m1", Author: "carol", Body: "!elo game a b"})
		// hold the connection until the client leaves
		_, _, _ = c.Read(r.Context())
	}))
	defer srv.Close()

	ws := NewWebSocket("ws"+strings.TrimPrefix(srv.URL, "http"), 0, nil)
	ws.SetHeaderProvider(func() map[string]string { return map[string]string{"X-User-Id": "bot"} })
	received := make(chan Message, 1)
	ws.OnMessage(func(m *Message) { received <- *m })

	if err := ws.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if ws.State() != WSStateConnected {
		t.Fatalf("state=%v", ws.State())
	}
	select {
	case h := <-gotHeader:
		if h != "bot" {
			t.Fatalf("handshake header=%q", h)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no handshake")
	}
	select {
	case m := <-received:
		if m.ID != "m1" || m.Author != "carol" {
			t.Fatalf("message=%+v", m)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no message delivered")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := ws.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestWebSocket_WriteWithoutConnection(t *testing.T) {
	ws := NewWebSocket("ws://127.0.0.1:1/ws", 0, nil)
	if err := ws.WriteJSON(context.Background(), ReplyRequest{}); err != ErrNotConnected {
		t.Fatalf("err=%v", err)
	}
}
