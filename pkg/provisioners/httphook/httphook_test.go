package httphook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/models"
)

func newHook(t *testing.T, handler http.HandlerFunc) *Provisioner {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := New(&Settings{URL: srv.URL, Attempts: 3, RetryDelay: time.Millisecond})
	require.NoError(t, err)
	return p
}

func TestProvisionRetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	p := newHook(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, provisionPath, r.URL.Path)
		assert.NotEmpty(t, r.Header.Get(requestIDHdr))
		if calls.Add(1) < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(workerDto{Address: "10.0.0.5:3000"})
	})

	addr, ok := p.Provision(context.Background())
	require.True(t, ok)
	assert.Equal(t, models.WorkerAddr("10.0.0.5:3000"), addr)
	assert.Equal(t, int32(2), calls.Load())
}

func TestProvisionNoCapacityIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	p := newHook(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNoContent)
	})

	_, ok := p.Provision(context.Background())
	assert.False(t, ok)
	assert.Equal(t, int32(1), calls.Load())
}

func TestProvisionGivesUpAfterAttempts(t *testing.T) {
	var calls atomic.Int32
	p := newHook(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	_, ok := p.Provision(context.Background())
	assert.False(t, ok)
	assert.Equal(t, int32(3), calls.Load())
}

func TestTerminateSendsAddress(t *testing.T) {
	got := make(chan string, 1)
	p := newHook(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, terminatePath, r.URL.Path)
		dto := workerDto{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&dto))
		got <- dto.Address
	})

	require.NoError(t, p.Terminate(context.Background(), "10.0.0.5:3000"))
	assert.Equal(t, "10.0.0.5:3000", <-got)
}

func TestNewRejectsBadScheme(t *testing.T) {
	_, err := New(&Settings{URL: "ftp://hook"})
	require.Error(t, err)
}
