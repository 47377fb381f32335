package cli

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/boardsync/pkg/domain/interfaces"
	"github.com/secmon-lab/boardsync/pkg/domain/model"
	"github.com/secmon-lab/boardsync/pkg/domain/types"
	"github.com/secmon-lab/boardsync/pkg/service/confirm"
	"github.com/secmon-lab/boardsync/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

var (
	ErrInvalidArgument = goerr.New("invalid argument")
	ErrMoveFailed      = goerr.New("some records were not moved")
)

func parseRecordID(s string) (model.RecordID, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, goerr.Wrap(ErrInvalidArgument, "record id must be an integer", goerr.V("value", s))
	}
	return model.RecordID(id), nil
}

func parseRecordIDs(values []string) ([]model.RecordID, error) {
	ids := make([]model.RecordID, 0, len(values))
	for _, v := range values {
		id, err := parseRecordID(v)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// parseSubStatuses reads "id=status" pairs
func parseSubStatuses(values []string) (map[model.RecordID]types.Status, error) {
	out := make(map[model.RecordID]types.Status, len(values))
	for _, v := range values {
		idPart, status, ok := strings.Cut(v, "=")
		if !ok || strings.TrimSpace(status) == "" {
			return nil, goerr.Wrap(ErrInvalidArgument, "sub-status must be id=status", goerr.V("value", v))
		}
		id, err := parseRecordID(idPart)
		if err != nil {
			return nil, err
		}
		out[id] = types.Status(strings.TrimSpace(status))
	}
	return out, nil
}

// parseFieldValues reads "id:key=value" triples. The key may also be a
// field label.
func parseFieldValues(values []string) (map[model.RecordID]map[string]any, error) {
	out := make(map[model.RecordID]map[string]any)
	for _, v := range values {
		idPart, rest, ok := strings.Cut(v, ":")
		if !ok {
			return nil, goerr.Wrap(ErrInvalidArgument, "field must be id:key=value", goerr.V("value", v))
		}
		key, value, ok := strings.Cut(rest, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, goerr.Wrap(ErrInvalidArgument, "field must be id:key=value", goerr.V("value", v))
		}
		id, err := parseRecordID(idPart)
		if err != nil {
			return nil, err
		}
		if out[id] == nil {
			out[id] = make(map[string]any)
		}
		out[id][strings.TrimSpace(key)] = value
	}
	return out, nil
}

func cmdMove() *cli.Command {
	var sess sessionFlags
	var records []string
	var target string
	var subs []string
	var fields []string
	var yes bool
	var timeout time.Duration

	flags := []cli.Flag{
		&cli.StringSliceFlag{
			Name:        "record",
			Aliases:     []string{"r"},
			Usage:       "Record ID to move (repeatable)",
			Required:    true,
			Destination: &records,
		},
		&cli.StringFlag{
			Name:        "to",
			Usage:       "Target status",
			Required:    true,
			Destination: &target,
		},
		&cli.StringSliceFlag{
			Name:        "sub",
			Usage:       "Sub-status of the target for one record, as id=status",
			Destination: &subs,
		},
		&cli.StringSliceFlag{
			Name:        "field",
			Usage:       "Value for a required field, as id:key=value (key or label)",
			Destination: &fields,
		},
		&cli.BoolFlag{
			Name:        "yes",
			Aliases:     []string{"y"},
			Usage:       "Confirm without prompting; missing fields must come from --field",
			Destination: &yes,
		},
		&cli.DurationFlag{
			Name:        "wait",
			Usage:       "How long to wait for board data before moving",
			Value:       30 * time.Second,
			Destination: &timeout,
		},
	}
	flags = append(flags, sess.Flags()...)

	return &cli.Command{
		Name:    "move",
		Aliases: []string{"mv"},
		Usage:   "Move records to another status",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ids, err := parseRecordIDs(records)
			if err != nil {
				return err
			}
			subStatus, err := parseSubStatuses(subs)
			if err != nil {
				return err
			}
			values, err := parseFieldValues(fields)
			if err != nil {
				return err
			}

			var confirmer interfaces.Confirmer = confirm.NewPrompt(os.Stdin, color.Output)
			if yes {
				confirmer = &confirm.Preset{Approve: true, Fields: values}
			} else if len(values) > 0 {
				confirmer = &prefilled{Confirmer: confirmer, fields: values}
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
			if err := s.locate(ctx, ids, timeout); err != nil {
				return err
			}

			result, err := s.uc.Board.Move(ctx, ids, types.Status(target), subStatus, confirmer)
			if err != nil {
				return goerr.Wrap(err, "move was not run", goerr.V("target", target))
			}
			renderMoveResult(color.Output, result)

			logging.From(ctx).Info("move finished",
				"state", result.State, "outcomes", len(result.Outcomes), "blocked", len(result.Blocked))
			if result.State == types.MoveStateFailed {
				return goerr.Wrap(ErrMoveFailed, "move failed", goerr.V("failed", len(result.Failed())))
			}
			return nil
		},
	}
}

// prefilled answers field prompts from --field values and falls back to
// the wrapped confirmer for anything else
type prefilled struct {
	interfaces.Confirmer
	fields map[model.RecordID]map[string]any
}

func (p *prefilled) CollectMissingFields(ctx context.Context, req model.MissingFieldsRequest) (map[string]any, bool, error) {
	if values, ok := p.fields[req.Record.ID]; ok {
		return values, true, nil
	}
	return p.Confirmer.CollectMissingFields(ctx, req)
}
