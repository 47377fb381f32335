package websocket_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/boardsync/pkg/service/websocket"
)

// echoServer replies to every text frame with "echo:" prepended and
// reports the close code the client sent
func echoServer(t *testing.T) (string, <-chan int) {
	t.Helper()
	closed := make(chan int, 1)
	upgrader := gws.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("authorization") != "alice" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		for {
			kind, data, err := ws.ReadMessage()
			if err != nil {
				var ce *gws.CloseError
				if errors.As(err, &ce) {
					closed <- ce.Code
				}
				return
			}
			if err := ws.WriteMessage(kind, append([]byte("echo:"), data...)); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http"), closed
}

func TestDialer_RoundTrip(t *testing.T) {
	base, closed := echoServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	d := websocket.NewDialer(websocket.WithHandshakeTimeout(2*time.Second), websocket.WithWriteTimeout(time.Second))
	conn, err := d.Dial(ctx, base+"/ws/clients?authorization=alice", http.Header{})
	gt.NoError(t, err).Required()

	gt.NoError(t, conn.WriteMessage([]byte(`{"type":"ping"}`))).Required()
	data, err := conn.ReadMessage()
	gt.NoError(t, err).Required()
	gt.Value(t, string(data)).Equal(`echo:{"type":"ping"}`)

	gt.NoError(t, conn.Close(1000, "bye"))
	select {
	case code := <-closed:
		gt.Number(t, code).Equal(1000)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not see the close frame")
	}

	_, err = conn.ReadMessage()
	gt.Error(t, err)
}

func TestDialer_HandshakeRejected(t *testing.T) {
	base, _ := echoServer(t)

	_, err := websocket.NewDialer().Dial(context.Background(), base+"/ws/clients?authorization=mallory", http.Header{})
	gt.Error(t, err).Is(websocket.ErrDial)
}

func TestDialer_ReadLimit(t *testing.T) {
	base, _ := echoServer(t)
	ctx := context.Background()

	conn, err := websocket.NewDialer(websocket.WithReadLimit(16)).Dial(ctx, base+"/?authorization=alice", http.Header{})
	gt.NoError(t, err).Required()
	defer func() { _ = conn.Close(1000, "") }()

	gt.NoError(t, conn.WriteMessage([]byte(strings.Repeat("x", 32)))).Required()
	_, err = conn.ReadMessage()
	gt.Error(t, err)
}
