package usecase

import (
	"time"

	"github.com/secmon-lab/boardsync/pkg/domain/interfaces"
	"github.com/secmon-lab/boardsync/pkg/domain/model"
	"github.com/secmon-lab/boardsync/pkg/domain/model/config"
	"github.com/secmon-lab/boardsync/pkg/repository/memory"
	"github.com/secmon-lab/boardsync/pkg/service/connection"
	"github.com/secmon-lab/boardsync/pkg/service/identity"
	"github.com/secmon-lab/boardsync/pkg/utils/clock"
)

const (
	DefaultSearchRetryDelay = 2500 * time.Millisecond
	DefaultSearchTimeout    = 10 * time.Second
	DefaultSearchAttempts   = 3
	DefaultAckTimeout       = 0
)

type UseCases struct {
	catalog       *config.Catalog
	identity      interfaces.IdentityProvider
	clock         clock.Clock
	pageSize      int
	ackTimeout    time.Duration
	searchDelay   time.Duration
	searchTimeout time.Duration

	Board  *BoardUseCase
	Move   *MoveUseCase
	Search *SearchUseCase
}

type Option func(*UseCases)

func WithCatalog(catalog *config.Catalog) Option {
	return func(uc *UseCases) {
		uc.catalog = catalog
	}
}

func WithIdentity(p interfaces.IdentityProvider) Option {
	return func(uc *UseCases) {
		uc.identity = p
	}
}

func WithClock(c clock.Clock) Option {
	return func(uc *UseCases) {
		uc.clock = c
	}
}

func WithPageSize(n int) Option {
	return func(uc *UseCases) {
		uc.pageSize = n
	}
}

// WithAckTimeout makes every update wait for a statusUpdated or error
// reply. Zero settles a record as soon as its update was sent.
func WithAckTimeout(d time.Duration) Option {
	return func(uc *UseCases) {
		uc.ackTimeout = d
	}
}

func WithSearchRetryDelay(d time.Duration) Option {
	return func(uc *UseCases) {
		uc.searchDelay = d
	}
}

// WithSearchTimeout bounds the wait for each search response. Zero
// waits until results arrive or the search is cancelled.
func WithSearchTimeout(d time.Duration) Option {
	return func(uc *UseCases) {
		uc.searchTimeout = d
	}
}

// New wires the board, move and search use cases around one connection
// and one bucket store
func New(conn *connection.Manager, store *memory.BucketStore, opts ...Option) *UseCases {
	uc := &UseCases{
		catalog:       config.NewCatalog(config.DefaultStatusDefinitions()),
		identity:      identity.Static("unknown"),
		clock:         clock.Real(),
		pageSize:      model.DefaultItemsPerPage,
		ackTimeout:    DefaultAckTimeout,
		searchDelay:   DefaultSearchRetryDelay,
		searchTimeout: DefaultSearchTimeout,
	}

	for _, opt := range opts {
		opt(uc)
	}

	uc.Search = NewSearchUseCase(conn, conn.Filter, uc.clock, uc.searchDelay, uc.searchTimeout)
	uc.Move = NewMoveUseCase(store, conn, conn.Filter, uc.identity, uc.catalog, uc.clock, uc.ackTimeout)
	uc.Board = NewBoardUseCase(conn, store, uc.Move, uc.Search, uc.catalog, uc.clock, uc.pageSize)

	return uc
}
