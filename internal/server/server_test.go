package server

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/admission"
	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/dispatch"
	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/drain"
	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/forwarder"
	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/metrics"
	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/models"
	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/notifyer"
	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/reclaimer"
	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/registry"
	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/strategy"
	"github.com/Sh00ty/cloud-nlb/task-dispatcher/pkg/provisioners/standby"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeWorker answers like a processing node: every created task gets the next id.
func fakeWorker(t *testing.T, name string, nextID *atomic.Int64) (*httptest.Server, models.WorkerAddr) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /task/new", func(w http.ResponseWriter, r *http.Request) {
		id := nextID.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"uuid":"t%d"}`, id)
	})
	mux.HandleFunc("GET /task/{uuid}/info", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"uuid":%q,"node":%q}`, r.PathValue("uuid"), name)
	})
	mux.HandleFunc("POST /task/remove", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Node", name)
		w.Header().Set("X-Received", string(body))
		fmt.Fprint(w, `{"success":true}`)
	})
	mux.HandleFunc("GET /options", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Node", name)
		fmt.Fprint(w, `[]`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, models.WorkerAddr(strings.TrimPrefix(srv.URL, "http://"))
}

type stack struct {
	reg      *registry.Registry
	pool     *standby.Provisioner
	reclaims *reclaimer.Reclaimer
	drain    *drain.Controller
	exited   chan int
	handler  http.Handler
}

func newStack(t *testing.T, local models.WorkerAddr, spare ...string) *stack {
	t.Helper()
	log := zerolog.Nop()
	reg := registry.New()
	require.NoError(t, reg.AddWorker(local, true))

	pool, err := standby.New(&standby.Settings{Workers: spare})
	require.NoError(t, err)

	s := &stack{reg: reg, pool: pool, exited: make(chan int, 1)}
	s.reclaims = reclaimer.New(reg, pool, time.Hour, metrics.Nop{}, notifyer.Nop{}, log)
	s.drain = drain.NewController(reg, pool, s.reclaims, 10*time.Millisecond,
		func(code int) { s.exited <- code }, metrics.Nop{}, notifyer.Nop{}, log)
	adm := admission.NewController(reg, pool, s.drain, s.reclaims,
		admission.Options{LoadThreshold: 1}, metrics.Nop{}, notifyer.Nop{}, log)
	d := dispatch.New(
		reg,
		strategy.NewSelector(reg, s.reclaims),
		adm,
		s.reclaims,
		forwarder.New(),
		dispatch.Capabilities{Engine: "odmp", MaxImages: 1000, MaxParallelTasks: 10},
		metrics.Nop{},
		notifyer.Nop{},
		log,
	)
	s.handler = NewServer(d, s.drain, log).Handler()
	return s
}

func (s *stack) do(t *testing.T, method, path, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func TestPoolLifecycle(t *testing.T) {
	ids := &atomic.Int64{}
	_, local := fakeWorker(t, "local", ids)
	_, second := fakeWorker(t, "second", ids)
	s := newStack(t, local, second.String())

	rec := s.do(t, http.MethodPost, "/task/new", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"uuid":"t1"}`, rec.Body.String())
	assert.Equal(t, 1, s.reg.Size())

	// local is at the threshold now, so the spare joins and takes the task
	rec = s.do(t, http.MethodPost, "/task/new", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"uuid":"t2"}`, rec.Body.String())
	assert.Equal(t, []models.WorkerAddr{local, second}, s.reg.Workers())
	owner, _ := s.reg.OwnerOf("t2")
	assert.Equal(t, second, owner)
	assert.False(t, s.reclaims.Pending(second))

	rec = s.do(t, http.MethodGet, "/task/t2/info", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"uuid":"t2","node":"second"}`, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/task/list", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"uuid":"t1"},{"uuid":"t2"}]`, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/task/remove", "application/x-www-form-urlencoded", "uuid=t1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "local", rec.Header().Get("X-Node"))
	assert.Equal(t, "uuid=t1", rec.Header().Get("X-Received"))
	assert.True(t, s.reg.Contains(local))
	assert.False(t, s.reclaims.Pending(local))

	rec = s.do(t, http.MethodPost, "/task/remove", "application/json", `{"uuid":"t2"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "second", rec.Header().Get("X-Node"))
	assert.Equal(t, `{"uuid":"t2"}`, rec.Header().Get("X-Received"))
	assert.True(t, s.reclaims.Pending(second))

	info := dispatch.InfoDto{}
	rec = s.do(t, http.MethodGet, "/info", "", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Zero(t, info.TaskQueueCount)
	assert.Equal(t, "odmp", info.Engine)
}

func TestGzipCreationReplyIsRegistered(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /task/new", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			fmt.Fprint(w, `{"uuid":"t1"}`)
			return
		}
		w.Header().Set("Content-Encoding", "gzip")
		zw := gzip.NewWriter(w)
		fmt.Fprint(zw, `{"uuid":"t1"}`)
		_ = zw.Close()
	})
	worker := httptest.NewServer(mux)
	t.Cleanup(worker.Close)
	s := newStack(t, models.WorkerAddr(strings.TrimPrefix(worker.URL, "http://")))

	req := httptest.NewRequest(http.MethodPost, "/task/new", strings.NewReader(""))
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
	zr, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	body, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.JSONEq(t, `{"uuid":"t1"}`, string(body))

	_, registered := s.reg.OwnerOf("t1")
	assert.True(t, registered)
}

func TestRoutingFailureIsEmpty500(t *testing.T) {
	_, local := fakeWorker(t, "local", &atomic.Int64{})
	s := newStack(t, local)

	rec := s.do(t, http.MethodPost, "/task/remove", "application/x-www-form-urlencoded", "uuid=missing")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/task/missing/info", "", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestUnreachableWorkerIs502(t *testing.T) {
	srv, local := fakeWorker(t, "local", &atomic.Int64{})
	srv.Close()
	s := newStack(t, local)

	rec := s.do(t, http.MethodGet, "/options", "", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestLocalEndpoints(t *testing.T) {
	_, local := fakeWorker(t, "local", &atomic.Int64{})
	s := newStack(t, local)

	rec := s.do(t, http.MethodGet, "/auth/info", "", "")
	assert.JSONEq(t, `{"loginUrl":"/auth/login","message":"odmp","registerUrl":null}`, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/auth/login", "", "")
	assert.JSONEq(t, `{"token":"token"}`, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/auth/register", "", "")
	assert.JSONEq(t, `{}`, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/options", "", "")
	assert.Equal(t, "local", rec.Header().Get("X-Node"))
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestDie(t *testing.T) {
	ids := &atomic.Int64{}
	_, local := fakeWorker(t, "local", ids)
	_, second := fakeWorker(t, "second", ids)
	s := newStack(t, local, second.String())

	s.do(t, http.MethodPost, "/task/new", "", "")
	s.do(t, http.MethodPost, "/task/new", "", "")
	require.Equal(t, 2, s.reg.Size())

	rec := s.do(t, http.MethodGet, "/die", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []models.WorkerAddr{local}, s.reg.Workers())

	select {
	case <-s.drain.Done():
	case <-time.After(time.Second):
		t.Fatal("terminations did not finish")
	}
	// the spare went back to the standby list
	addr, ok := s.pool.Provision(context.Background())
	require.True(t, ok)
	assert.Equal(t, second, addr)

	select {
	case code := <-s.exited:
		assert.Zero(t, code)
	case <-time.After(time.Second):
		t.Fatal("process did not exit")
	}

	// no growth after drain
	s.do(t, http.MethodPost, "/task/new", "", "")
	s.do(t, http.MethodPost, "/task/new", "", "")
	assert.Equal(t, 1, s.reg.Size())
}
