package pushconn

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/websocket"
)

func TestWebSocketDialer(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.PingMessage, nil)
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"version","version":"3.1.0"}`))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	}))
	defer srv.Close()

	d, err := NewDialer(TransportWebSocket, srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	stream, err := d.Dial(context.Background())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer stream.Close()

	data, err := stream.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if string(data) != `{"type":"version","version":"3.1.0"}` {
		t.Errorf("Recv = %s", data)
	}
	if _, err := stream.Recv(); err != io.EOF {
		t.Errorf("Recv after close frame = %v, want io.EOF", err)
	}
}

func TestWebSocketDialerCancelClosesStream(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	d, _ := NewDialer(TransportWebSocket, srv.URL)
	stream, err := d.Dial(ctx)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	cancel()
	if _, err := stream.Recv(); err == nil {
		t.Error("Recv after cancel returned nil error")
	}
}
