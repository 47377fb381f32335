package usecase

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/boardsync/pkg/domain/interfaces"
	"github.com/secmon-lab/boardsync/pkg/domain/model"
	"github.com/secmon-lab/boardsync/pkg/utils/clock"
	"github.com/secmon-lab/boardsync/pkg/utils/logging"
)

// MinSearchTermLength is the shortest trimmed term sent to the server
const MinSearchTermLength = 3

// SearchResult is the outcome of one search call
type SearchResult struct {
	Term string
	// Query is the rewrite that produced Records, or the last one tried
	Query string
	// Attempts counts the initial request plus every retry, skipped
	// rewrites included
	Attempts int
	Records  []model.Record
}

// SearchUseCase searches across buckets and retries empty results with
// rewritten queries
type SearchUseCase struct {
	sender  interfaces.Sender
	filter  func() model.FilterContext
	clock   clock.Clock
	delay   time.Duration
	timeout time.Duration

	mu      sync.Mutex
	current *searchRun
}

type searchRun struct {
	results chan []model.Record
	cancel  context.CancelFunc
}

func NewSearchUseCase(sender interfaces.Sender, filter func() model.FilterContext, clk clock.Clock, delay, timeout time.Duration) *SearchUseCase {
	if filter == nil {
		filter = func() model.FilterContext { return model.FilterContext{} }
	}
	return &SearchUseCase{
		sender:  sender,
		filter:  filter,
		clock:   clk,
		delay:   delay,
		timeout: timeout,
	}
}

// rewrite is a retry strategy; ok is false when its precondition fails
type rewrite func(tokens []string) (query string, ok bool)

var rewrites = []rewrite{
	// first token
	func(tokens []string) (string, bool) {
		if len(tokens) == 0 || len(tokens[0]) < MinSearchTermLength {
			return "", false
		}
		return tokens[0], true
	},
	// last token of a multi-word term
	func(tokens []string) (string, bool) {
		if len(tokens) < 2 || len(tokens[len(tokens)-1]) < MinSearchTermLength {
			return "", false
		}
		return tokens[len(tokens)-1], true
	},
	// reversed word order
	func(tokens []string) (string, bool) {
		if len(tokens) < 2 {
			return "", false
		}
		r := slices.Clone(tokens)
		slices.Reverse(r)
		return strings.Join(r, " "), true
	},
}

// Search sends term as a cross-bucket search. While the result is empty
// and retries remain, it waits the retry delay and tries the next
// rewrite; a rewrite whose precondition fails uses up its retry without
// waiting. maxAttempts is the number of retries after the initial
// request. A new search cancels the retries of the previous one.
func (uc *SearchUseCase) Search(ctx context.Context, term string, maxAttempts int) (*SearchResult, error) {
	term = strings.TrimSpace(term)
	if len(term) < MinSearchTermLength {
		return nil, goerr.Wrap(ErrSearchTermTooShort, "search term needs at least 3 characters",
			goerr.V(SearchTermKey, term))
	}
	if maxAttempts < 0 {
		maxAttempts = 0
	}

	ctx, run := uc.begin(ctx)
	defer uc.end(run)

	logger := logging.From(ctx).With(SearchTermKey, term)
	tokens := strings.Fields(term)
	result := &SearchResult{Term: term}

	records, err := uc.attempt(ctx, run, term)
	result.Query = term
	result.Attempts = 1
	if err != nil {
		return nil, err
	}

	for retry := 1; len(records) == 0 && retry <= min(maxAttempts, len(rewrites)); retry++ {
		result.Attempts++
		query, ok := rewrites[retry-1](tokens)
		if !ok {
			logger.Debug("search rewrite skipped", AttemptKey, retry)
			continue
		}

		if err := uc.sleep(ctx); err != nil {
			return nil, err
		}
		logger.Debug("retrying search", AttemptKey, retry, "query", query)
		records, err = uc.attempt(ctx, run, query)
		if err != nil {
			return nil, err
		}
		result.Query = query
	}

	result.Records = records
	logger.Info("search finished", "query", result.Query, "attempts", result.Attempts, "results", len(records))
	return result, nil
}

// Cancel stops the running search, if any
func (uc *SearchUseCase) Cancel() {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	if uc.current != nil {
		uc.current.cancel()
	}
}

// Deliver hands server results to the running search. Results arriving
// while no search waits are dropped.
func (uc *SearchUseCase) Deliver(records []model.Record) {
	uc.mu.Lock()
	run := uc.current
	uc.mu.Unlock()
	if run == nil {
		return
	}

	select {
	case run.results <- records:
	default:
		// a response is already queued; keep the first
	}
}

func (uc *SearchUseCase) begin(ctx context.Context) (context.Context, *searchRun) {
	ctx, cancel := context.WithCancel(ctx)

	uc.mu.Lock()
	defer uc.mu.Unlock()
	if uc.current != nil {
		uc.current.cancel()
	}
	run := &searchRun{results: make(chan []model.Record, 1), cancel: cancel}
	uc.current = run
	return ctx, run
}

func (uc *SearchUseCase) end(run *searchRun) {
	run.cancel()
	uc.mu.Lock()
	defer uc.mu.Unlock()
	if uc.current == run {
		uc.current = nil
	}
}

// attempt sends one query and waits for its response. An unsent request
// or a timed out response counts as an empty result.
func (uc *SearchUseCase) attempt(ctx context.Context, run *searchRun, query string) ([]model.Record, error) {
	// drop a late response to the previous query
	select {
	case <-run.results:
	default:
	}

	if !uc.sender.Send(ctx, model.NewSearchInStatus(uc.filter(), query)) {
		logging.From(ctx).Warn("search request not sent", "query", query)
		return nil, nil
	}

	var timeout <-chan struct{}
	if uc.timeout > 0 {
		ch := make(chan struct{})
		t := uc.clock.AfterFunc(uc.timeout, func() { close(ch) })
		defer t.Stop()
		timeout = ch
	}

	select {
	case records := <-run.results:
		return records, nil
	case <-timeout:
		logging.From(ctx).Warn("search response timed out", "query", query, "timeout", uc.timeout)
		return nil, nil
	case <-ctx.Done():
		return nil, goerr.Wrap(ErrSearchCancelled, "search cancelled", goerr.V("query", query))
	}
}

func (uc *SearchUseCase) sleep(ctx context.Context) error {
	if uc.delay <= 0 {
		return nil
	}
	ch := make(chan struct{})
	t := uc.clock.AfterFunc(uc.delay, func() { close(ch) })
	defer t.Stop()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return goerr.Wrap(ErrSearchCancelled, "search cancelled during retry delay")
	}
}
