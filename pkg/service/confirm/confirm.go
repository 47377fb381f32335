// Package confirm provides the Confirmer implementations used outside
// tests: a preset one for non-interactive callers and a terminal prompt.
package confirm

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/boardsync/pkg/domain/interfaces"
	"github.com/secmon-lab/boardsync/pkg/domain/model"
)

// Preset answers every prompt from values fixed up front. A blocked
// record without preset values cancels the batch.
type Preset struct {
	Approve bool
	Fields  map[model.RecordID]map[string]any
}

var _ interfaces.Confirmer = (*Preset)(nil)

func (p *Preset) ConfirmMove(context.Context, model.PendingMove) (bool, error) {
	return p.Approve, nil
}

func (p *Preset) CollectMissingFields(_ context.Context, req model.MissingFieldsRequest) (map[string]any, bool, error) {
	values, ok := p.Fields[req.Record.ID]
	return values, ok, nil
}

// Prompt asks on a terminal. An empty answer to a field prompt or
// anything but yes to the confirmation cancels.
type Prompt struct {
	in  *bufio.Reader
	out io.Writer
}

var _ interfaces.Confirmer = (*Prompt)(nil)

func NewPrompt(in io.Reader, out io.Writer) *Prompt {
	return &Prompt{in: bufio.NewReader(in), out: out}
}

func (p *Prompt) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", goerr.Wrap(err, "failed to read answer")
	}
	return strings.TrimSpace(line), nil
}

func (p *Prompt) ConfirmMove(_ context.Context, move model.PendingMove) (bool, error) {
	fmt.Fprintf(p.out, "Move %d record(s) to %s? [y/N]: ",
		len(move.RecordIDs), color.CyanString(string(move.Target)))
	answer, err := p.readLine()
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

func (p *Prompt) CollectMissingFields(_ context.Context, req model.MissingFieldsRequest) (map[string]any, bool, error) {
	fmt.Fprintf(p.out, "%s #%d needs fields before entering %s\n",
		color.YellowString("blocked:"), req.Record.ID, req.Target)

	values := make(map[string]any, len(req.MissingFields))
	for _, key := range req.MissingFields {
		label := req.Labels[key]
		if label == "" {
			label = key
		}
		fmt.Fprintf(p.out, "  %s: ", label)
		answer, err := p.readLine()
		if err != nil {
			return nil, false, err
		}
		if answer == "" {
			return nil, false, nil
		}
		values[key] = answer
	}
	return values, true, nil
}
