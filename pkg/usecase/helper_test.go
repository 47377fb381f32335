package usecase_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/boardsync/pkg/domain/interfaces"
	"github.com/secmon-lab/boardsync/pkg/domain/model"
	"github.com/secmon-lab/boardsync/pkg/domain/model/config"
	"github.com/secmon-lab/boardsync/pkg/domain/types"
)

var testStart = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func testCatalog() *config.Catalog {
	return config.NewCatalog([]config.StatusDefinition{
		{Name: "Lead"},
		{Name: "Active", SubStatuses: []types.Status{"Trade"}, Required: []config.RequiredField{
			{Key: "signed_date", Label: "Agreement signed date"},
		}},
		{Name: "Declined"},
	})
}

func record(id int, status types.Status, attrs map[string]any) model.Record {
	if attrs == nil {
		attrs = map[string]any{}
	}
	if _, ok := attrs["name"]; !ok {
		attrs["name"] = fmt.Sprintf("client %d", id)
	}
	return model.Record{ID: model.RecordID(id), Status: status, Attributes: attrs}
}

func recordRange(status types.Status, from, to int) []model.Record {
	var out []model.Record
	for i := from; i <= to; i++ {
		out = append(out, record(i, status, nil))
	}
	return out
}

// fakeSender records outbound messages. With down set every send fails.
type fakeSender struct {
	mu   sync.Mutex
	sent []any
	down bool
	ch   chan any
}

func newFakeSender() *fakeSender {
	return &fakeSender{ch: make(chan any, 64)}
}

func (s *fakeSender) Send(_ context.Context, msg any) bool {
	s.mu.Lock()
	if s.down {
		s.mu.Unlock()
		return false
	}
	s.sent = append(s.sent, msg)
	s.mu.Unlock()
	s.ch <- msg
	return true
}

func (s *fakeSender) next(t *testing.T) any {
	t.Helper()
	select {
	case msg := <-s.ch:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("no message was sent")
		return nil
	}
}

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type staticIdentity string

func (s staticIdentity) DisplayName(context.Context) (string, error) {
	return string(s), nil
}

// fakeConfirmer answers prompts from fixed values
type fakeConfirmer struct {
	approve bool
	values  map[model.RecordID]map[string]any

	mu        sync.Mutex
	confirmed []model.PendingMove
	asked     []model.MissingFieldsRequest
}

func (c *fakeConfirmer) ConfirmMove(_ context.Context, move model.PendingMove) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.confirmed = append(c.confirmed, move)
	return c.approve, nil
}

func (c *fakeConfirmer) CollectMissingFields(_ context.Context, req model.MissingFieldsRequest) (map[string]any, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.asked = append(c.asked, req)
	v, ok := c.values[req.Record.ID]
	return v, ok, nil
}

var _ interfaces.Confirmer = (*fakeConfirmer)(nil)

// serverConn is the server side of an in-memory socket
type serverConn struct {
	toClient  chan []byte
	fromCli   chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func (c *serverConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.toClient:
		return data, nil
	case <-c.closed:
		return nil, errors.New("closed")
	}
}

func (c *serverConn) WriteMessage(data []byte) error {
	select {
	case <-c.closed:
		return errors.New("closed")
	case c.fromCli <- data:
		return nil
	}
}

func (c *serverConn) Close(int, string) error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// push sends a frame from the server to the client
func (c *serverConn) push(t *testing.T, msg any) {
	t.Helper()
	data, err := json.Marshal(msg)
	gt.NoError(t, err).Required()
	c.toClient <- data
}

// expect reads client frames until one of type msgType arrives and
// decodes it into out
func (c *serverConn) expect(t *testing.T, msgType types.MessageType, out any) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case data := <-c.fromCli:
			env, err := model.DecodeEnvelope(data)
			gt.NoError(t, err).Required()
			if env.Type != msgType {
				continue
			}
			if out != nil {
				gt.NoError(t, json.Unmarshal(data, out)).Required()
			}
			return
		case <-timeout:
			t.Fatalf("no %s frame received", msgType)
			return
		}
	}
}

type memDialer struct {
	mu    sync.Mutex
	urls  []string
	conns []*serverConn
}

func (d *memDialer) Dial(_ context.Context, url string, _ http.Header) (interfaces.Conn, error) {
	c := &serverConn{
		toClient: make(chan []byte, 64),
		fromCli:  make(chan []byte, 256),
		closed:   make(chan struct{}),
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, url)
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *memDialer) last() *serverConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[len(d.conns)-1]
}

func (d *memDialer) lastURL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.urls[len(d.urls)-1]
}

// eventually polls cond until it holds
func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
