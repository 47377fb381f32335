package cli_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/boardsync/pkg/cli"
	"github.com/secmon-lab/boardsync/pkg/usecase"
)

// boardServer is a minimal board backend: it answers the preview,
// acknowledges updates and echoes every search term back as a match
type boardServer struct {
	*httptest.Server

	mu       sync.Mutex
	received []map[string]any
}

const previewFrame = `{"type":"preview","data":{
	"Lead":{"preview":[{"id":1,"status":"Lead","name":"Acme Realty","assignee":"alice"}],"total":1},
	"Declined":{"preview":[],"total":0}
}}`

func newBoardServer(t *testing.T) *boardServer {
	t.Helper()
	b := &boardServer{}
	upgrader := gws.Upgrader{}

	b.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws/clients" || r.URL.Query().Get("authorization") == "" {
			http.NotFound(w, r)
			return
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			var msg map[string]any
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			b.mu.Lock()
			b.received = append(b.received, msg)
			b.mu.Unlock()

			var reply string
			switch msg["type"] {
			case "fetchPreview":
				reply = previewFrame
			case "update":
				reply = `{"type":"statusUpdated","requestId":"` + msg["requestId"].(string) + `","clientId":1,"success":true}`
			case "searchInStatus":
				reply = `{"type":"searchResults","clients":[{"id":1,"status":"Lead","name":"Acme Realty"}]}`
			case "ping":
				reply = `{"type":"pong"}`
			}
			if reply != "" {
				if err := ws.WriteMessage(gws.TextMessage, []byte(reply)); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(b.Close)
	return b
}

func (b *boardServer) framesOf(kind string) []map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []map[string]any
	for _, m := range b.received {
		if m["type"] == kind {
			out = append(out, m)
		}
	}
	return out
}

func TestRun_MoveCommand(t *testing.T) {
	srv := newBoardServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	err := cli.Run(ctx, []string{
		"boardsync", "move",
		"--url", srv.URL,
		"--user", "alice",
		"--record", "1",
		"--to", "Declined",
		"--ack-timeout", "5s",
		"--wait", "10s",
		"--yes",
	}, "test")
	gt.NoError(t, err).Required()

	updates := srv.framesOf("update")
	gt.A(t, updates).Length(1)
	gt.Value(t, updates[0]["clientId"]).Equal(float64(1))
	gt.Value(t, updates[0]["newStatus"]).Equal("Declined")
	gt.Value(t, updates[0]["currentStatus"]).Equal("Lead")
	gt.Value(t, updates[0]["user"]).Equal("alice")

	gt.A(t, srv.framesOf("setAssignee")).Length(1)
}

func TestRun_MoveCommand_InvalidArguments(t *testing.T) {
	testCases := []struct {
		name string
		args []string
	}{
		{name: "non numeric id", args: []string{"--record", "one", "--to", "Declined"}},
		{name: "bad sub-status", args: []string{"--record", "1", "--to", "Active", "--sub", "1"}},
		{name: "bad field", args: []string{"--record", "1", "--to", "Active", "--field", "1=x"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			args := append([]string{"boardsync", "move", "--url", "http://127.0.0.1:1", "--user", "alice"}, tc.args...)
			err := cli.Run(context.Background(), args, "test")
			gt.Error(t, err).Is(cli.ErrInvalidArgument)
		})
	}

	t.Run("missing target", func(t *testing.T) {
		err := cli.Run(context.Background(), []string{"boardsync", "move", "--record", "1"}, "test")
		gt.Error(t, err)
	})
}

func TestRun_SearchCommand(t *testing.T) {
	srv := newBoardServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	err := cli.Run(ctx, []string{
		"boardsync", "search",
		"--url", srv.URL,
		"--user", "alice",
		"--wait", "10s",
		"acme", "realty",
	}, "test")
	gt.NoError(t, err).Required()

	searches := srv.framesOf("searchInStatus")
	gt.A(t, searches).Length(1)
	gt.Value(t, searches[0]["searchTerm"]).Equal("acme realty")
	gt.Value(t, searches[0]["searchAcrossStatuses"]).Equal(true)
}

func TestRun_SearchCommand_ShortTerm(t *testing.T) {
	err := cli.Run(context.Background(), []string{"boardsync", "search", "--user", "alice", "ab"}, "test")
	gt.Error(t, err).Is(usecase.ErrSearchTermTooShort)
}
