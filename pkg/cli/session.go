package cli

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/boardsync/pkg/cli/config"
	"github.com/secmon-lab/boardsync/pkg/domain/model"
	"github.com/secmon-lab/boardsync/pkg/domain/types"
	"github.com/secmon-lab/boardsync/pkg/repository/memory"
	"github.com/secmon-lab/boardsync/pkg/service/connection"
	"github.com/secmon-lab/boardsync/pkg/service/websocket"
	"github.com/secmon-lab/boardsync/pkg/usecase"
	"github.com/secmon-lab/boardsync/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

var ErrBoardNotReady = goerr.New("board did not become ready")

// session is one live board: the connection, the cache and the use
// cases on top of them
type session struct {
	conn  *connection.Manager
	store *memory.BucketStore
	uc    *usecase.UseCases

	changed chan struct{}
}

// sessionFlags are the flags every command that talks to the server shares
type sessionFlags struct {
	conn       config.Connection
	catalog    config.Catalog
	ackTimeout time.Duration
}

func (x *sessionFlags) Flags() []cli.Flag {
	flags := append(x.conn.Flags(), x.catalog.Flags()...)
	return append(flags, &cli.DurationFlag{
		Name:        "ack-timeout",
		Usage:       "Wait this long for the server to acknowledge each update (0 settles on send)",
		Category:    "Board",
		Value:       usecase.DefaultAckTimeout,
		Destination: &x.ackTimeout,
		Sources:     cli.EnvVars("BOARDSYNC_ACK_TIMEOUT"),
	})
}

// open builds the session and connects. A failed first attempt is
// returned but the manager keeps reconnecting until closed.
func (x *sessionFlags) open(ctx context.Context) (*session, error) {
	cfg, err := x.conn.Configure()
	if err != nil {
		return nil, err
	}
	filter, err := x.conn.Filter()
	if err != nil {
		return nil, err
	}
	ident, err := x.conn.Identity()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to resolve display name")
	}
	catalog, err := x.catalog.Configure()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load status catalog")
	}

	conn, err := connection.New(cfg, websocket.NewDialer(websocket.WithHandshakeTimeout(cfg.ConnectTimeout)))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create connection manager")
	}

	s := &session{
		conn:    conn,
		store:   memory.NewBucketStore(catalog),
		changed: make(chan struct{}, 1),
	}
	s.uc = usecase.New(conn, s.store,
		usecase.WithCatalog(catalog),
		usecase.WithIdentity(ident),
		usecase.WithAckTimeout(x.ackTimeout),
	)
	s.store.OnChange(func(types.Status) {
		select {
		case s.changed <- struct{}{}:
		default:
		}
	})
	conn.OnStateChange(func(ch connection.StateChange) {
		logger := logging.Default().With("from", ch.From, "to", ch.To, connection.AttemptKey, ch.Attempt)
		switch ch.To {
		case types.ConnectionStateReconnecting:
			logger.Warn("connection lost, reconnecting", "delay", ch.Delay, "error", ch.Err)
		case types.ConnectionStateFailed:
			logger.Error("connection failed, retries exhausted", "error", ch.Err)
		default:
			logger.Info("connection state changed")
		}
	})

	logging.From(ctx).Info("connecting to board", "connection", x.conn, "catalog", x.catalog)
	if err := s.uc.Board.Start(ctx, filter); err != nil {
		return s, err
	}
	return s, nil
}

func (s *session) Close() {
	s.uc.Board.Stop()
}

// waitUntil blocks until cond holds, re-checking after every store
// change
func (s *session) waitUntil(ctx context.Context, timeout time.Duration, cond func() bool) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for !cond() {
		select {
		case <-s.changed:
		case <-ctx.Done():
			return goerr.Wrap(ErrBoardNotReady, "timed out waiting for board data", goerr.V("timeout", timeout))
		}
	}
	return nil
}

// waitForPreview waits until the first preview has populated the store
func (s *session) waitForPreview(ctx context.Context, timeout time.Duration) error {
	return s.waitUntil(ctx, timeout, func() bool {
		return len(s.store.Snapshot()) > 0
	})
}

// locate makes sure every id is cached, loading full buckets that still
// have unloaded records when some are missing
func (s *session) locate(ctx context.Context, ids []model.RecordID, timeout time.Duration) error {
	missing := func() []model.RecordID {
		var out []model.RecordID
		for _, id := range ids {
			if _, _, ok := s.store.Find(id); !ok {
				out = append(out, id)
			}
		}
		return out
	}
	if len(missing()) == 0 {
		return nil
	}

	var requested []types.Status
	for _, b := range s.store.Snapshot() {
		if !b.HasMore() {
			continue
		}
		if err := s.uc.Board.LoadAll(ctx, b.Status); err != nil {
			return err
		}
		requested = append(requested, b.Status)
	}
	logging.From(ctx).Debug("loading buckets to locate records", "ids", missing(), "statuses", requested)

	err := s.waitUntil(ctx, timeout, func() bool {
		if len(missing()) == 0 {
			return true
		}
		for _, status := range requested {
			if !s.store.IsFullyLoaded(status) {
				return false
			}
		}
		return true
	})
	if err != nil {
		return err
	}
	if m := missing(); len(m) > 0 {
		return goerr.Wrap(usecase.ErrRecordNotFound, "records are not on the board", goerr.V("ids", m))
	}
	return nil
}
