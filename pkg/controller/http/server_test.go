package http_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	httpctrl "github.com/secmon-lab/boardsync/pkg/controller/http"
	"github.com/secmon-lab/boardsync/pkg/domain/interfaces"
	"github.com/secmon-lab/boardsync/pkg/domain/model"
	"github.com/secmon-lab/boardsync/pkg/domain/types"
	"github.com/secmon-lab/boardsync/pkg/usecase"
)

type fakeBoard struct {
	buckets   []*model.Bucket
	state     types.ConnectionState
	err       error
	requested []string

	moveResult *model.MoveResult
	confirmer  interfaces.Confirmer
	moveIDs    []model.RecordID
	searchTerm string
}

func (b *fakeBoard) Snapshot() []*model.Bucket { return b.buckets }

func (b *fakeBoard) Bucket(status types.Status) (*model.Bucket, bool) {
	for _, bucket := range b.buckets {
		if bucket.Status == status {
			return bucket, true
		}
	}
	return nil, false
}

func (b *fakeBoard) LoadMore(_ context.Context, status types.Status) (bool, error) {
	b.requested = append(b.requested, "more:"+string(status))
	return b.err == nil, b.err
}

func (b *fakeBoard) LoadAll(_ context.Context, status types.Status) error {
	b.requested = append(b.requested, "all:"+string(status))
	return b.err
}

func (b *fakeBoard) Reconcile(_ context.Context, status types.Status) error {
	b.requested = append(b.requested, "reconcile:"+string(status))
	return b.err
}

func (b *fakeBoard) State() types.ConnectionState { return b.state }

func (b *fakeBoard) Filter() model.FilterContext {
	return model.FilterContext{Franchise: "North"}
}

func (b *fakeBoard) Retry(context.Context) error {
	b.state = types.ConnectionStateConnected
	return b.err
}

func (b *fakeBoard) Search(_ context.Context, term string, _ int) (*usecase.SearchResult, error) {
	b.searchTerm = term
	if len(term) < 3 {
		return nil, goerr.Wrap(usecase.ErrSearchTermTooShort, "short")
	}
	return &usecase.SearchResult{Term: term, Query: term, Attempts: 1}, nil
}

func (b *fakeBoard) Move(ctx context.Context, ids []model.RecordID, _ types.Status, _ map[model.RecordID]types.Status, confirmer interfaces.Confirmer) (*model.MoveResult, error) {
	b.moveIDs = ids
	b.confirmer = confirmer
	if b.err != nil {
		return nil, b.err
	}
	return b.moveResult, nil
}

func newFakeBoard() *fakeBoard {
	return &fakeBoard{
		state: types.ConnectionStateConnected,
		buckets: []*model.Bucket{
			{Status: "Lead", Total: 120, Page: 1, Items: []model.Record{
				{ID: 1, Status: "Lead", Attributes: map[string]any{"name": "Acme"}},
			}},
			{Status: "Active", Total: 1, Page: 1, Items: []model.Record{
				{ID: 2, Status: "Active", Attributes: map[string]any{"name": "Globex"}},
			}},
		},
	}
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestServer_GetBoard(t *testing.T) {
	srv := httpctrl.New(newFakeBoard())
	w := do(t, srv, http.MethodGet, "/api/board", "")
	gt.Number(t, w.Code).Equal(http.StatusOK)

	var resp struct {
		Connection struct {
			State  string `json:"state"`
			Filter struct {
				Franchise string `json:"franchise"`
				Mode      string `json:"mode"`
			} `json:"filter"`
		} `json:"connection"`
		Buckets []model.BucketSummary `json:"buckets"`
	}
	gt.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp)).Required()
	gt.Value(t, resp.Connection.State).Equal("connected")
	gt.Value(t, resp.Connection.Filter.Franchise).Equal("North")
	gt.Value(t, resp.Connection.Filter.Mode).Equal("assigned")
	gt.A(t, resp.Buckets).Length(2)
	gt.Bool(t, resp.Buckets[0].HasMore).True()
	gt.Bool(t, resp.Buckets[1].HasMore).False()
}

func TestServer_GetBucket(t *testing.T) {
	srv := httpctrl.New(newFakeBoard())

	w := do(t, srv, http.MethodGet, "/api/board/Lead", "")
	gt.Number(t, w.Code).Equal(http.StatusOK)
	var resp struct {
		Status string           `json:"status"`
		Total  int              `json:"total"`
		Items  []map[string]any `json:"items"`
	}
	gt.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp)).Required()
	gt.Value(t, resp.Status).Equal("Lead")
	gt.Number(t, resp.Total).Equal(120)
	gt.A(t, resp.Items).Length(1)
	gt.Value(t, resp.Items[0]["name"]).Equal("Acme")

	w = do(t, srv, http.MethodGet, "/api/board/Nowhere", "")
	gt.Number(t, w.Code).Equal(http.StatusNotFound)
}

func TestServer_Requests(t *testing.T) {
	testCases := []struct {
		name string
		path string
		want string
	}{
		{name: "load more", path: "/api/board/Lead/more", want: "more:Lead"},
		{name: "load all", path: "/api/board/Lead/all", want: "all:Lead"},
		{name: "reconcile bucket", path: "/api/board/Active/reconcile", want: "reconcile:Active"},
		{name: "reconcile board", path: "/api/board/reconcile", want: "reconcile:"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			board := newFakeBoard()
			w := do(t, httpctrl.New(board), http.MethodPost, tc.path, "")
			gt.Number(t, w.Code).Equal(http.StatusAccepted)
			gt.Value(t, board.requested).Equal([]string{tc.want})
		})

		t.Run(tc.name+" while disconnected", func(t *testing.T) {
			board := newFakeBoard()
			board.err = goerr.Wrap(usecase.ErrNotConnected, "down")
			w := do(t, httpctrl.New(board), http.MethodPost, tc.path, "")
			gt.Number(t, w.Code).Equal(http.StatusServiceUnavailable)
		})
	}
}

func TestServer_Connection(t *testing.T) {
	board := newFakeBoard()
	board.state = types.ConnectionStateFailed
	srv := httpctrl.New(board)

	w := do(t, srv, http.MethodGet, "/api/connection", "")
	gt.Number(t, w.Code).Equal(http.StatusOK)
	gt.Bool(t, strings.Contains(w.Body.String(), `"state":"failed"`)).True()

	w = do(t, srv, http.MethodPost, "/api/connection/retry", "")
	gt.Number(t, w.Code).Equal(http.StatusOK)
	gt.Bool(t, strings.Contains(w.Body.String(), `"state":"connected"`)).True()
}

func TestServer_Search(t *testing.T) {
	board := newFakeBoard()
	srv := httpctrl.New(board)

	w := do(t, srv, http.MethodGet, "/api/search?q=+Acme+", "")
	gt.Number(t, w.Code).Equal(http.StatusOK)
	gt.Value(t, board.searchTerm).Equal("Acme")
	gt.Bool(t, strings.Contains(w.Body.String(), `"records":[]`)).True()

	w = do(t, srv, http.MethodGet, "/api/search?q=ab", "")
	gt.Number(t, w.Code).Equal(http.StatusBadRequest)
}

func TestServer_Move(t *testing.T) {
	t.Run("settled move", func(t *testing.T) {
		board := newFakeBoard()
		board.moveResult = &model.MoveResult{
			State: types.MoveStateSettled,
			Outcomes: []model.MoveOutcome{
				{RecordID: 1, From: "Lead", To: "Active", RequestID: "req-1"},
			},
		}
		srv := httpctrl.New(board)

		body := `{"recordIds":[1],"target":"Active","fields":{"1":{"signed_date":"2026-03-01"}}}`
		w := do(t, srv, http.MethodPost, "/api/move", body)
		gt.Number(t, w.Code).Equal(http.StatusOK)
		gt.Value(t, board.moveIDs).Equal([]model.RecordID{1})

		values, ok, err := board.confirmer.CollectMissingFields(context.Background(),
			model.MissingFieldsRequest{Record: model.Record{ID: 1}})
		gt.NoError(t, err)
		gt.Bool(t, ok).True()
		gt.Value(t, values["signed_date"]).Equal("2026-03-01")

		approved, err := board.confirmer.ConfirmMove(context.Background(), model.PendingMove{})
		gt.NoError(t, err)
		gt.Bool(t, approved).True()
		gt.Bool(t, strings.Contains(w.Body.String(), `"requestId":"req-1"`)).True()
	})

	t.Run("blocked move", func(t *testing.T) {
		board := newFakeBoard()
		board.moveResult = &model.MoveResult{
			State: types.MoveStateCancelled,
			Blocked: []model.MissingFieldsRequest{{
				Record:        model.Record{ID: 1},
				Target:        "Active",
				MissingFields: []string{"signed_date"},
				Labels:        map[string]string{"signed_date": "Agreement signed date"},
			}},
		}
		w := do(t, httpctrl.New(board), http.MethodPost, "/api/move", `{"recordIds":[1],"target":"Active"}`)
		gt.Number(t, w.Code).Equal(http.StatusUnprocessableEntity)
		gt.Bool(t, strings.Contains(w.Body.String(), `"missingFields":["signed_date"]`)).True()
	})

	t.Run("invalid body", func(t *testing.T) {
		w := do(t, httpctrl.New(newFakeBoard()), http.MethodPost, "/api/move", `{`)
		gt.Number(t, w.Code).Equal(http.StatusBadRequest)
	})

	t.Run("unknown status", func(t *testing.T) {
		board := newFakeBoard()
		board.err = goerr.Wrap(usecase.ErrUnknownStatus, "nope")
		w := do(t, httpctrl.New(board), http.MethodPost, "/api/move", `{"recordIds":[1],"target":"Nowhere"}`)
		gt.Number(t, w.Code).Equal(http.StatusBadRequest)
	})
}

func TestServer_Token(t *testing.T) {
	srv := httpctrl.New(newFakeBoard(), httpctrl.WithToken("s3cret"))

	w := do(t, srv, http.MethodGet, "/api/board", "")
	gt.Number(t, w.Code).Equal(http.StatusUnauthorized)

	req := httptest.NewRequest(http.MethodGet, "/api/board", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	gt.Number(t, w.Code).Equal(http.StatusUnauthorized)

	req = httptest.NewRequest(http.MethodGet, "/api/board", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	gt.Number(t, w.Code).Equal(http.StatusOK)
}
