package cli

import (
	"context"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/boardsync/pkg/usecase"
	"github.com/secmon-lab/boardsync/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdSearch() *cli.Command {
	var sess sessionFlags
	var attempts int
	var timeout time.Duration

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "attempts",
			Usage:       "Retries with rewritten queries after an empty result",
			Value:       usecase.DefaultSearchAttempts,
			Destination: &attempts,
		},
		&cli.DurationFlag{
			Name:        "wait",
			Usage:       "How long to wait for the connection before searching",
			Value:       30 * time.Second,
			Destination: &timeout,
		},
	}
	flags = append(flags, sess.Flags()...)

	return &cli.Command{
		Name:      "search",
		Aliases:   []string{"s"},
		Usage:     "Search records across every status",
		ArgsUsage: "<term>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			term := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
			if len(term) < usecase.MinSearchTermLength {
				return goerr.Wrap(usecase.ErrSearchTermTooShort, "search term needs at least 3 characters",
					goerr.V(usecase.SearchTermKey, term))
			}

			s, err := sess.open(ctx)
			if s != nil {
				defer s.Close()
			}
			if err != nil {
				return goerr.Wrap(err, "failed to connect to board")
			}
			if err := s.waitForPreview(ctx, timeout); err != nil {
				return err
			}

			result, err := s.uc.Board.Search(ctx, term, attempts)
			if err != nil {
				return goerr.Wrap(err, "search failed", goerr.V(usecase.SearchTermKey, term))
			}
			logging.From(ctx).Debug("search finished", "query", result.Query, "attempts", result.Attempts)
			renderSearch(color.Output, result)
			return nil
		},
	}
}
