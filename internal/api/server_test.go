package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bgricker/matrixdrive/internal/history"
	"github.com/bgricker/matrixdrive/internal/metrics"
	"github.com/bgricker/matrixdrive/internal/report"
)

func newTestServer(t *testing.T) (*Server, *history.Store) {
	t.Helper()
	store, err := history.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	registry := prometheus.NewRegistry()
	metrics.NewRecorder(registry)
	return NewServer("127.0.0.1:0", store, registry), store
}

func appendRun(t *testing.T, store *history.Store, verdict report.Status) report.Report {
	t.Helper()
	rep := report.Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Outcomes: []report.Outcome{
			{JobID: "hygiene", Status: report.StatusPassed, FailedStep: report.NoFailedStep},
		},
		Verdict: verdict,
	}
	rep.Summary.TotalJobs = 1
	rep.Summary.Passed = 1
	require.NoError(t, store.Append(context.Background(), rep))
	return rep
}

func doRequest(t *testing.T, srv *Server, path string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var resp Response
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	rec, resp := doRequest(t, srv, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
}

func TestListRuns(t *testing.T) {
	srv, store := newTestServer(t)
	appendRun(t, store, report.StatusPassed)
	appendRun(t, store, report.StatusFailed)

	rec, resp := doRequest(t, srv, "/api/runs")
	assert.Equal(t, http.StatusOK, rec.Code)
	require.True(t, resp.Success)

	payload, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var runs []history.RunSummary
	require.NoError(t, json.Unmarshal(payload, &runs))
	assert.Len(t, runs, 2)
}

func TestGetRun(t *testing.T) {
	srv, store := newTestServer(t)
	rep := appendRun(t, store, report.StatusPassed)

	rec, resp := doRequest(t, srv, "/api/runs/"+rep.RunID)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.True(t, resp.Success)

	payload, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var got report.Report
	require.NoError(t, json.Unmarshal(payload, &got))
	assert.Equal(t, rep.RunID, got.RunID)
}

func TestGetRunNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	rec, resp := doRequest(t, srv, "/api/runs/"+uuid.NewString())
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, resp.Success)
}

func TestLatestRun(t *testing.T) {
	srv, store := newTestServer(t)

	rec, _ := doRequest(t, srv, "/api/runs/latest")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rep := appendRun(t, store, report.StatusFailed)
	rec, resp := doRequest(t, srv, "/api/runs/latest")
	assert.Equal(t, http.StatusOK, rec.Code)
	require.True(t, resp.Success)

	payload, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var got report.Report
	require.NoError(t, json.Unmarshal(payload, &got))
	assert.Equal(t, rep.RunID, got.RunID)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
