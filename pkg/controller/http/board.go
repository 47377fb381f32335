package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/boardsync/pkg/domain/model"
	"github.com/secmon-lab/boardsync/pkg/domain/types"
	"github.com/secmon-lab/boardsync/pkg/service/confirm"
	"github.com/secmon-lab/boardsync/pkg/service/connection"
	"github.com/secmon-lab/boardsync/pkg/usecase"
	"github.com/secmon-lab/boardsync/pkg/utils/errutil"
)

// errorStatus maps use case errors to HTTP status codes
func errorStatus(err error) int {
	switch {
	case errors.Is(err, usecase.ErrEmptyMove),
		errors.Is(err, usecase.ErrUnknownStatus),
		errors.Is(err, usecase.ErrSearchTermTooShort),
		errors.Is(err, usecase.ErrMissingFields):
		return http.StatusBadRequest
	case errors.Is(err, usecase.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, usecase.ErrSearchCancelled):
		return http.StatusConflict
	case errors.Is(err, usecase.ErrNotConnected),
		errors.Is(err, connection.ErrRetriesExhausted),
		errors.Is(err, connection.ErrConnectTimeout),
		errors.Is(err, connection.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type filterResponse struct {
	Franchise string           `json:"franchise,omitempty"`
	Mode      types.FilterMode `json:"mode"`
	Assignee  string           `json:"assignee,omitempty"`
}

func toFilterResponse(f model.FilterContext) filterResponse {
	n := f.Normalized()
	return filterResponse{Franchise: n.Franchise, Mode: n.Mode, Assignee: n.Assignee}
}

type connectionResponse struct {
	State  types.ConnectionState `json:"state"`
	Filter filterResponse        `json:"filter"`
}

type boardResponse struct {
	Connection connectionResponse    `json:"connection"`
	Buckets    []model.BucketSummary `json:"buckets"`
}

type bucketResponse struct {
	model.BucketSummary
	Items []model.Record `json:"items"`
}

func (s *Server) connection() connectionResponse {
	return connectionResponse{State: s.board.State(), Filter: toFilterResponse(s.board.Filter())}
}

func (s *Server) getBoard(w http.ResponseWriter, r *http.Request) {
	buckets := s.board.Snapshot()
	resp := boardResponse{
		Connection: s.connection(),
		Buckets:    make([]model.BucketSummary, len(buckets)),
	}
	for i, b := range buckets {
		resp.Buckets[i] = b.Summary()
	}
	writeJSON(r.Context(), w, http.StatusOK, resp)
}

func (s *Server) getBucket(w http.ResponseWriter, r *http.Request) {
	status := types.Status(chi.URLParam(r, "status"))
	b, ok := s.board.Bucket(status)
	if !ok {
		errutil.HandleHTTP(r.Context(), w,
			goerr.New("bucket is not loaded", goerr.V(model.StatusKey, status)), http.StatusNotFound)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, bucketResponse{BucketSummary: b.Summary(), Items: b.Items})
}

func (s *Server) loadMore(w http.ResponseWriter, r *http.Request) {
	status := types.Status(chi.URLParam(r, "status"))
	requested, err := s.board.LoadMore(r.Context(), status)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err, errorStatus(err))
		return
	}
	writeJSON(r.Context(), w, http.StatusAccepted, map[string]bool{"requested": requested})
}

func (s *Server) loadAll(w http.ResponseWriter, r *http.Request) {
	status := types.Status(chi.URLParam(r, "status"))
	if err := s.board.LoadAll(r.Context(), status); err != nil {
		errutil.HandleHTTP(r.Context(), w, err, errorStatus(err))
		return
	}
	writeJSON(r.Context(), w, http.StatusAccepted, map[string]bool{"requested": true})
}

func (s *Server) reconcileBucket(w http.ResponseWriter, r *http.Request) {
	s.reconcile(w, r, types.Status(chi.URLParam(r, "status")))
}

func (s *Server) reconcileBoard(w http.ResponseWriter, r *http.Request) {
	s.reconcile(w, r, "")
}

func (s *Server) reconcile(w http.ResponseWriter, r *http.Request, status types.Status) {
	if err := s.board.Reconcile(r.Context(), status); err != nil {
		errutil.HandleHTTP(r.Context(), w, err, errorStatus(err))
		return
	}
	writeJSON(r.Context(), w, http.StatusAccepted, map[string]bool{"requested": true})
}

func (s *Server) getConnection(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, s.connection())
}

func (s *Server) retryConnection(w http.ResponseWriter, r *http.Request) {
	if err := s.board.Retry(r.Context()); err != nil {
		errutil.HandleHTTP(r.Context(), w, err, errorStatus(err))
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, s.connection())
}

type searchResponse struct {
	Term     string         `json:"term"`
	Query    string         `json:"query"`
	Attempts int            `json:"attempts"`
	Records  []model.Record `json:"records"`
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	term := strings.TrimSpace(r.URL.Query().Get("q"))
	result, err := s.board.Search(r.Context(), term, s.searchAttempts)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err, errorStatus(err))
		return
	}
	records := result.Records
	if records == nil {
		records = []model.Record{}
	}
	writeJSON(r.Context(), w, http.StatusOK, searchResponse{
		Term:     result.Term,
		Query:    result.Query,
		Attempts: result.Attempts,
		Records:  records,
	})
}

// moveRequest is the body of POST /api/move. The request itself is the
// confirmation; fields supplies values for records that would be
// blocked by empty required fields.
type moveRequest struct {
	RecordIDs []model.RecordID                  `json:"recordIds"`
	Target    types.Status                      `json:"target"`
	SubStatus map[model.RecordID]types.Status   `json:"subStatus,omitempty"`
	Fields    map[model.RecordID]map[string]any `json:"fields,omitempty"`
}

type moveOutcomeResponse struct {
	RecordID  model.RecordID `json:"recordId"`
	From      types.Status   `json:"from,omitempty"`
	To        types.Status   `json:"to"`
	RequestID string         `json:"requestId,omitempty"`
	Error     string         `json:"error,omitempty"`
}

type blockedResponse struct {
	RecordID      model.RecordID    `json:"recordId"`
	Target        types.Status      `json:"target"`
	MissingFields []string          `json:"missingFields"`
	Labels        map[string]string `json:"labels"`
}

type moveResponse struct {
	State    types.MoveState       `json:"state"`
	Outcomes []moveOutcomeResponse `json:"outcomes"`
	Blocked  []blockedResponse     `json:"blocked,omitempty"`
}

func (s *Server) move(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errutil.HandleHTTP(r.Context(), w, goerr.Wrap(err, "invalid move request"), http.StatusBadRequest)
		return
	}

	confirmer := &confirm.Preset{Approve: true, Fields: req.Fields}
	result, err := s.board.Move(r.Context(), req.RecordIDs, req.Target, req.SubStatus, confirmer)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err, errorStatus(err))
		return
	}

	resp := moveResponse{State: result.State, Outcomes: make([]moveOutcomeResponse, len(result.Outcomes))}
	for i, o := range result.Outcomes {
		resp.Outcomes[i] = moveOutcomeResponse{RecordID: o.RecordID, From: o.From, To: o.To, RequestID: o.RequestID}
		if o.Err != nil {
			resp.Outcomes[i].Error = o.Err.Error()
		}
	}
	for _, b := range result.Blocked {
		resp.Blocked = append(resp.Blocked, blockedResponse{
			RecordID:      b.Record.ID,
			Target:        b.Target,
			MissingFields: b.MissingFields,
			Labels:        b.Labels,
		})
	}

	code := http.StatusOK
	if len(resp.Blocked) > 0 {
		code = http.StatusUnprocessableEntity
	}
	writeJSON(r.Context(), w, code, resp)
}
