package errutil_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/boardsync/pkg/utils/errutil"
)

func TestHandle(t *testing.T) {
	ctx := context.Background()
	gt.NoError(t, errutil.Handle(ctx, nil, "nothing"))

	base := errors.New("boom")
	wrapped := goerr.Wrap(base, "failed", goerr.V("status", "Lead"))
	got := errutil.Handle(ctx, wrapped, "handling")
	gt.Error(t, got).Is(base)
}

func TestHandleHTTP(t *testing.T) {
	testCases := []struct {
		name   string
		err    error
		status int
	}{
		{name: "client error", err: goerr.New("bad request"), status: http.StatusBadRequest},
		{name: "server error", err: errors.New("unavailable"), status: http.StatusServiceUnavailable},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			errutil.HandleHTTP(context.Background(), w, tc.err, tc.status)
			gt.Number(t, w.Code).Equal(tc.status)
			gt.Bool(t, strings.Contains(w.Body.String(), tc.err.Error())).True()
		})
	}

	t.Run("nil error writes nothing", func(t *testing.T) {
		w := httptest.NewRecorder()
		errutil.HandleHTTP(context.Background(), w, nil, http.StatusInternalServerError)
		gt.Number(t, w.Body.Len()).Equal(0)
	})
}

func TestInitSentry_EmptyDSN(t *testing.T) {
	gt.NoError(t, errutil.InitSentry(errutil.SentryConfig{}))
}
