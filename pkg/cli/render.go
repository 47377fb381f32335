package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"
	"github.com/secmon-lab/boardsync/pkg/domain/model"
	"github.com/secmon-lab/boardsync/pkg/domain/model/config"
	"github.com/secmon-lab/boardsync/pkg/domain/types"
	"github.com/secmon-lab/boardsync/pkg/usecase"
)

// titleKeys are tried in order to find a human readable record title
var titleKeys = []string{"name", "company", "title"}

func recordTitle(r model.Record) string {
	for _, key := range titleKeys {
		if v, ok := r.Field(key); ok && !r.IsFieldEmpty(key) {
			return fmt.Sprint(v)
		}
	}
	return "#" + strconv.FormatInt(int64(r.ID), 10)
}

func stateColor(state types.ConnectionState) *color.Color {
	switch state {
	case types.ConnectionStateConnected:
		return color.New(color.FgGreen)
	case types.ConnectionStateConnecting, types.ConnectionStateReconnecting:
		return color.New(color.FgYellow)
	case types.ConnectionStateFailed:
		return color.New(color.FgRed, color.Bold)
	default:
		return color.New(color.Faint)
	}
}

func renderBoard(w io.Writer, state types.ConnectionState, buckets []*model.Bucket) {
	bold := color.New(color.Bold)
	_, _ = fmt.Fprintf(w, "%s %s\n", bold.Sprint("Connection:"), stateColor(state).Sprint(state))

	tbl := uitable.New()
	tbl.Separator = "  "
	tbl.AddRow(bold.Sprint("Status"), bold.Sprint("Loaded"), bold.Sprint("Total"), bold.Sprint("Page"), "")
	for _, b := range buckets {
		mark := ""
		switch {
		case b.FullyLoaded:
			mark = color.GreenString("full")
		case b.HasMore():
			mark = color.YellowString("more")
		}
		tbl.AddRow(string(b.Status), b.LoadedCount(), b.Total, b.Page, mark)
	}
	tbl.RightAlign(1)
	tbl.RightAlign(2)
	tbl.RightAlign(3)
	_, _ = fmt.Fprintln(w, tbl)
}

func renderRecords(w io.Writer, records []model.Record) {
	tbl := uitable.New()
	tbl.Separator = "  "
	tbl.MaxColWidth = 48
	tbl.AddRow(color.New(color.Bold).Sprint("ID"), color.New(color.Bold).Sprint("Status"), color.New(color.Bold).Sprint("Title"))
	for _, r := range records {
		tbl.AddRow(int64(r.ID), string(r.Status), recordTitle(r))
	}
	tbl.RightAlign(0)
	_, _ = fmt.Fprintln(w, tbl)
}

func renderSearch(w io.Writer, result *usecase.SearchResult) {
	if len(result.Records) == 0 {
		_, _ = fmt.Fprintf(w, "No records match %q (%d attempts)\n", result.Term, result.Attempts)
		return
	}
	_, _ = fmt.Fprintf(w, "%d record(s) for %q via %q\n", len(result.Records), result.Term, result.Query)
	renderRecords(w, result.Records)
}

func renderMoveResult(w io.Writer, result *model.MoveResult) {
	bold := color.New(color.Bold)

	var st *color.Color
	switch result.State {
	case types.MoveStateSettled:
		st = color.New(color.FgGreen)
	case types.MoveStateFailed:
		st = color.New(color.FgRed, color.Bold)
	default:
		st = color.New(color.FgYellow)
	}
	_, _ = fmt.Fprintf(w, "%s %s\n", bold.Sprint("Move:"), st.Sprint(result.State))

	if len(result.Outcomes) > 0 {
		tbl := uitable.New()
		tbl.Separator = "  "
		tbl.AddRow(bold.Sprint("ID"), bold.Sprint("From"), bold.Sprint("To"), bold.Sprint("Result"))
		for _, o := range result.Outcomes {
			res := color.GreenString("ok")
			if !o.OK() {
				res = color.RedString(o.Err.Error())
			}
			tbl.AddRow(int64(o.RecordID), string(o.From), string(o.To), res)
		}
		tbl.RightAlign(0)
		_, _ = fmt.Fprintln(w, tbl)
	}

	for _, b := range result.Blocked {
		_, _ = fmt.Fprintf(w, "%s #%d needs", color.YellowString("blocked"), b.Record.ID)
		for _, key := range b.MissingFields {
			label := b.Labels[key]
			if label == "" {
				label = key
			}
			_, _ = fmt.Fprintf(w, " %q", label)
		}
		_, _ = fmt.Fprintln(w)
	}
}

func renderCatalog(w io.Writer, catalog *config.Catalog) {
	bold := color.New(color.Bold)

	tbl := uitable.New()
	tbl.Separator = "  "
	tbl.Wrap = true
	tbl.MaxColWidth = 60
	tbl.AddRow(bold.Sprint("Status"), bold.Sprint("Sub-statuses"), bold.Sprint("Required"))
	for _, status := range catalog.Statuses() {
		var subs, required []string
		for _, s := range catalog.SubStatuses(status) {
			subs = append(subs, string(s))
		}
		for _, f := range catalog.RequiredFields(status) {
			required = append(required, f.Label)
		}
		tbl.AddRow(string(status), joinOrDash(subs), joinOrDash(required))
	}
	_, _ = fmt.Fprintln(w, tbl)
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
