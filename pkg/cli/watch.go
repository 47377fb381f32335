package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/boardsync/pkg/cli/config"
	httpctrl "github.com/secmon-lab/boardsync/pkg/controller/http"
	"github.com/secmon-lab/boardsync/pkg/domain/model"
	"github.com/secmon-lab/boardsync/pkg/domain/types"
	"github.com/secmon-lab/boardsync/pkg/service/connection"
	"github.com/secmon-lab/boardsync/pkg/utils/async"
	"github.com/secmon-lab/boardsync/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdWatch() *cli.Command {
	var sess sessionFlags
	var serverCfg config.Server
	var loadAll []string
	var refresh time.Duration
	var readyTimeout time.Duration

	flags := []cli.Flag{
		&cli.StringSliceFlag{
			Name:        "load-all",
			Usage:       "Statuses to load in full once the preview arrived (kept fresh by the heartbeat)",
			Category:    "Board",
			Destination: &loadAll,
			Sources:     cli.EnvVars("BOARDSYNC_LOAD_ALL"),
		},
		&cli.DurationFlag{
			Name:        "refresh",
			Usage:       "Minimum interval between board redraws",
			Value:       2 * time.Second,
			Destination: &refresh,
		},
		&cli.DurationFlag{
			Name:        "ready-timeout",
			Usage:       "How long to wait for the first preview before loading full buckets",
			Value:       30 * time.Second,
			Destination: &readyTimeout,
		},
	}
	flags = append(flags, sess.Flags()...)
	flags = append(flags, serverCfg.Flags()...)

	return &cli.Command{
		Name:    "watch",
		Aliases: []string{"w"},
		Usage:   "Keep the board in sync and print it as it changes",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if refresh <= 0 {
				return goerr.Wrap(ErrInvalidArgument, "refresh interval must be positive", goerr.V("refresh", refresh))
			}

			s, err := sess.open(ctx)
			if s == nil {
				return err
			}
			defer s.Close()
			if err != nil {
				// the manager keeps reconnecting in background
				logging.From(ctx).Warn("first connection attempt failed", "error", err)
			}

			var dirty atomic.Bool
			dirty.Store(true)
			s.store.OnChange(func(types.Status) { dirty.Store(true) })
			s.conn.OnStateChange(func(connection.StateChange) { dirty.Store(true) })

			if len(loadAll) > 0 {
				async.Dispatch(ctx, "load-all", func(ctx context.Context) error {
					if err := s.waitForPreview(ctx, readyTimeout); err != nil {
						return err
					}
					for _, status := range loadAll {
						if err := s.uc.Board.LoadAll(ctx, types.Status(status)); err != nil {
							return goerr.Wrap(err, "failed to request full bucket", goerr.V(model.StatusKey, status))
						}
					}
					return nil
				})
			}

			errCh := make(chan error, 1)
			var server *http.Server
			if serverCfg.Enabled() {
				server = &http.Server{
					Addr:              serverCfg.Addr(),
					Handler:           httpctrl.New(s.uc.Board, httpctrl.WithToken(serverCfg.Token())),
					ReadHeaderTimeout: 30 * time.Second,
				}
				go func() {
					logging.Default().Info("Starting HTTP server", "server", serverCfg)
					if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						errCh <- goerr.Wrap(err, "failed to start server")
					}
				}()
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			ticker := time.NewTicker(refresh)
			defer ticker.Stop()

			for {
				select {
				case <-ticker.C:
					if dirty.Swap(false) {
						renderBoard(color.Output, s.uc.Board.State(), s.uc.Board.Snapshot())
					}

				case err := <-errCh:
					return err

				case <-ctx.Done():
					return shutdown(server)

				case sig := <-sigCh:
					logging.Default().Info("Received shutdown signal", "signal", sig)
					return shutdown(server)
				}
			}
		},
	}
}

func shutdown(server *http.Server) error {
	if server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return goerr.Wrap(err, "failed to shutdown server gracefully")
	}
	logging.Default().Info("Server shutdown completed")
	return nil
}
