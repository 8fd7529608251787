package readiness

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/models"
)

func workerAddr(srv *httptest.Server) models.WorkerAddr {
	return models.WorkerAddr(strings.TrimPrefix(srv.URL, "http://"))
}

func TestWaitReadyAfterWarmup(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/info", r.URL.Path)
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewHTTPProbe(Settings{Attempts: 5, Delay: time.Millisecond})
	require.NoError(t, p.WaitReady(context.Background(), workerAddr(srv)))
	assert.Equal(t, int32(3), calls.Load())
}

func TestWaitReadyGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewHTTPProbe(Settings{Attempts: 2, Delay: time.Millisecond})
	require.Error(t, p.WaitReady(context.Background(), workerAddr(srv)))
}
