package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/boardsync/pkg/domain/interfaces"
	"github.com/secmon-lab/boardsync/pkg/domain/model"
	"github.com/secmon-lab/boardsync/pkg/domain/types"
	"github.com/secmon-lab/boardsync/pkg/usecase"
	"github.com/secmon-lab/boardsync/pkg/utils/errutil"
	"github.com/secmon-lab/boardsync/pkg/utils/logging"
	"github.com/secmon-lab/boardsync/pkg/utils/safe"
)

// BoardUseCase is the board facade served over HTTP
type BoardUseCase interface {
	Snapshot() []*model.Bucket
	Bucket(status types.Status) (*model.Bucket, bool)
	LoadMore(ctx context.Context, status types.Status) (bool, error)
	LoadAll(ctx context.Context, status types.Status) error
	Reconcile(ctx context.Context, status types.Status) error
	State() types.ConnectionState
	Filter() model.FilterContext
	Retry(ctx context.Context) error
	Search(ctx context.Context, term string, maxAttempts int) (*usecase.SearchResult, error)
	Move(ctx context.Context, ids []model.RecordID, target types.Status, subStatus map[model.RecordID]types.Status, confirmer interfaces.Confirmer) (*model.MoveResult, error)
}

type Server struct {
	router         *chi.Mux
	board          BoardUseCase
	token          string
	searchAttempts int
}

type Options func(*Server)

// WithToken requires a bearer token on every API request
func WithToken(token string) Options {
	return func(s *Server) {
		s.token = token
	}
}

func WithSearchAttempts(n int) Options {
	return func(s *Server) {
		s.searchAttempts = n
	}
}

func New(board BoardUseCase, opts ...Options) *Server {
	r := chi.NewRouter()

	s := &Server{
		router:         r,
		board:          board,
		searchAttempts: usecase.DefaultSearchAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}

	r.Use(middleware.RequestID)
	r.Use(accessLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		if s.token != "" {
			r.Use(tokenMiddleware(s.token))
		}

		r.Route("/board", func(r chi.Router) {
			r.Get("/", s.getBoard)
			r.Post("/reconcile", s.reconcileBoard)
			r.Get("/{status}", s.getBucket)
			r.Post("/{status}/more", s.loadMore)
			r.Post("/{status}/all", s.loadAll)
			r.Post("/{status}/reconcile", s.reconcileBucket)
		})
		r.Get("/connection", s.getConnection)
		r.Post("/connection/retry", s.retryConnection)
		r.Get("/search", s.search)
		r.Post("/move", s.move)
	})

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// accessLogger is a middleware that logs HTTP requests
func accessLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			logging.From(r.Context()).Info("access",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote", r.RemoteAddr,
				"request_id", middleware.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to marshal response"), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	safe.Write(ctx, w, data)
}
