package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"splitter/internal/amqp"
	"splitter/internal/cache"
	"splitter/internal/core"
	"splitter/internal/log"
	"splitter/internal/services"
)

func quietLogger() *log.Logger {
	return log.New(log.Config{Level: slog.LevelError, Output: io.Discard})
}

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	opts.Logger = quietLogger()
	svc := services.NewSplitService(cache.NewLRUCache[core.Session](16, time.Hour), nil, core.DefaultTolerance, opts.Logger)
	srv := NewServer(":0", svc, opts)
	t.Cleanup(srv.rateLimiter.stop)
	return srv
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decodeSession(t *testing.T, rr *httptest.ResponseRecorder) sessionResponse {
	t.Helper()
	var resp sessionResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp), rr.Body.String())
	return resp
}

func createSplit(t *testing.T, srv *Server, body string) sessionResponse {
	t.Helper()
	rr := do(t, srv, http.MethodPost, "/splits", body)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decodeSession(t, rr)
}

func TestSplitLifecycle(t *testing.T) {
	srv := newTestServer(t, Options{})

	created := createSplit(t, srv, `{"participants": 2, "total": "100"}`)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "parameters_set", created.State)
	assert.Equal(t, 50.0, created.Average)
	assert.Equal(t, "50.00", created.AverageDisplay)
	assert.Equal(t, "All users to pay: Rs 50.00", created.Banner)
	assert.Equal(t, []float64{0, 0}, created.Contributions)
	assert.Equal(t, []string{"", ""}, created.Plan)

	base := "/splits/" + created.ID
	rr := do(t, srv, http.MethodPut, base+"/contributions/1", `{"value": "80 rs"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "contributions_entered", decodeSession(t, rr).State)

	rr = do(t, srv, http.MethodPut, base+"/contributions/2", `{"value": 20}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, []float64{80, 20}, decodeSession(t, rr).Contributions)

	rr = do(t, srv, http.MethodPost, base+"/settlement", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	settled := decodeSession(t, rr)
	assert.Equal(t, "settlement_computed", settled.State)
	assert.Equal(t, []string{
		"You need to receive Rs 30.00",
		"Pay total Extra Rs 30.00\nYou pay Rs 30.00 to User 1",
	}, settled.Plan)
	assert.Equal(t, []transferResponse{{From: 2, To: 1, Amount: 30, AmountDisplay: "30.00"}}, settled.Transfers)
	assert.Empty(t, settled.Residuals)

	rr = do(t, srv, http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, settled, decodeSession(t, rr))
}

func TestSettlementReportsResidual(t *testing.T) {
	srv := newTestServer(t, Options{})
	created := createSplit(t, srv, `{"participants": "2", "total": 50}`)
	base := "/splits/" + created.ID

	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPut, base+"/contributions/1", `{"value": "abc"}`).Code)
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPut, base+"/contributions/2", `{"value": "25"}`).Code)

	settled := decodeSession(t, do(t, srv, http.MethodPost, base+"/settlement", ""))
	assert.Equal(t, []string{
		"Pay total Extra Rs 25.00\nYou still need to pay Rs25.00",
		"You paid exactly Rs 25.00",
	}, settled.Plan)
	assert.Equal(t, []residualResponse{{Participant: 1, Amount: 25, AmountDisplay: "25.00"}}, settled.Residuals)
}

func TestCreateSplitErrors(t *testing.T) {
	srv := newTestServer(t, Options{})

	tests := []struct {
		name   string
		body   string
		status int
		errMsg string
	}{
		{"zero participants", `{"participants": 0, "total": 100}`, http.StatusUnprocessableEntity, core.ErrNonPositiveCount.Error()},
		{"unparseable participants", `{"participants": "many", "total": 100}`, http.StatusUnprocessableEntity, core.ErrNonPositiveCount.Error()},
		{"negative total", `{"participants": 3, "total": -5}`, http.StatusUnprocessableEntity, core.ErrNonPositiveTotal.Error()},
		{"missing total", `{"participants": 3}`, http.StatusUnprocessableEntity, core.ErrNonPositiveTotal.Error()},
		{"malformed json", `{"participants": `, http.StatusBadRequest, "invalid JSON body"},
		{"unknown field", `{"people": 3, "total": 10}`, http.StatusBadRequest, "invalid JSON body"},
		{"boolean total", `{"participants": 3, "total": true}`, http.StatusBadRequest, "invalid JSON body"},
		{"too many participants", `{"participants": 5000000, "total": 1}`, http.StatusUnprocessableEntity, core.ErrTooManyParticipants.Error()},
		{"too many participants as text", `{"participants": "1001", "total": 1}`, http.StatusUnprocessableEntity, core.ErrTooManyParticipants.Error()},
		{"huge participants", `{"participants": 1e12, "total": 1}`, http.StatusBadRequest, "whole number"},
		{"fractional participants", `{"participants": 2.5, "total": 10}`, http.StatusBadRequest, "whole number"},
		{"boolean participants", `{"participants": true, "total": 10}`, http.StatusBadRequest, "invalid JSON body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, http.MethodPost, "/splits", tt.body)
			assert.Equal(t, tt.status, rr.Code)

			var resp errorResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Contains(t, resp.Error, tt.errMsg)
			assert.NotEmpty(t, resp.RequestID)
		})
	}
	assert.Zero(t, srv.splits.Active())
}

func TestCreateSplitNumericParticipants(t *testing.T) {
	srv := newTestServer(t, Options{})

	created := createSplit(t, srv, `{"participants": 1e1, "total": 100}`)
	assert.Equal(t, 10, created.Participants)
	assert.Equal(t, 10.0, created.Average)
	assert.Len(t, created.Contributions, 10)

	created = createSplit(t, srv, `{"participants": 4.0, "total": "100"}`)
	assert.Equal(t, 4, created.Participants)

	created = createSplit(t, srv, fmt.Sprintf(`{"participants": %d, "total": 1000}`, core.MaxParticipants))
	assert.Len(t, created.Contributions, core.MaxParticipants)
}

func TestUnknownSession(t *testing.T) {
	srv := newTestServer(t, Options{})

	for _, tc := range []struct{ method, path, body string }{
		{http.MethodGet, "/splits/missing", ""},
		{http.MethodPut, "/splits/missing", `{"participants": 2, "total": 10}`},
		{http.MethodPut, "/splits/missing/contributions/1", `{"value": "1"}`},
		{http.MethodPost, "/splits/missing/settlement", ""},
	} {
		rr := do(t, srv, tc.method, tc.path, tc.body)
		assert.Equal(t, http.StatusNotFound, rr.Code, "%s %s", tc.method, tc.path)
	}
}

func TestRecordContributionBadIndex(t *testing.T) {
	srv := newTestServer(t, Options{})
	created := createSplit(t, srv, `{"participants": 2, "total": 10}`)
	base := "/splits/" + created.ID + "/contributions/"

	for _, index := range []string{"0", "3", "-1", "first"} {
		rr := do(t, srv, http.MethodPut, base+index, `{"value": "5"}`)
		assert.Equal(t, http.StatusBadRequest, rr.Code, "index %s", index)
	}

	rr := do(t, srv, http.MethodGet, "/splits/"+created.ID, "")
	assert.Equal(t, created, decodeSession(t, rr))
}

func TestResplit(t *testing.T) {
	srv := newTestServer(t, Options{})
	created := createSplit(t, srv, `{"participants": 2, "total": 100}`)
	base := "/splits/" + created.ID
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPut, base+"/contributions/1", `{"value": "100"}`).Code)

	rr := do(t, srv, http.MethodPut, base, `{"participants": 2, "total": 0}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	kept := decodeSession(t, do(t, srv, http.MethodGet, base, ""))
	assert.Equal(t, []float64{100, 0}, kept.Contributions)

	rr = do(t, srv, http.MethodPut, base, `{"participants": "4", "total": "100,00"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	next := decodeSession(t, rr)
	assert.Equal(t, created.ID, next.ID)
	assert.Equal(t, 25.0, next.Average)
	assert.Equal(t, []float64{0, 0, 0, 0}, next.Contributions)
	assert.Equal(t, "parameters_set", next.State)
}

func TestDeleteSplit(t *testing.T) {
	srv := newTestServer(t, Options{})
	created := createSplit(t, srv, `{"participants": 1, "total": 1}`)

	assert.Equal(t, http.StatusNoContent, do(t, srv, http.MethodDelete, "/splits/"+created.ID, "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/splits/"+created.ID, "").Code)
	assert.Equal(t, http.StatusNoContent, do(t, srv, http.MethodDelete, "/splits/"+created.ID, "").Code)
}

func TestRateLimitAppliesToMutations(t *testing.T) {
	srv := newTestServer(t, Options{RateLimitPerMinute: 2})

	createSplit(t, srv, `{"participants": 1, "total": 1}`)
	createSplit(t, srv, `{"participants": 1, "total": 1}`)

	rr := do(t, srv, http.MethodPost, "/splits", `{"participants": 1, "total": 1}`)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))

	// Reads are never limited.
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, int64(1), srv.rateLimiter.hits.Load())
}

func TestCommonHeaders(t *testing.T) {
	srv := newTestServer(t, Options{AllowedOrigins: []string{"https://split.example"}})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://split.example")
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get(log.RequestIDHeader))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.Equal(t, "https://split.example", rr.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set(log.RequestIDHeader, "req-42")
	rr = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "req-42", rr.Header().Get(log.RequestIDHeader))
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, Options{AllowedOrigins: []string{"https://split.example"}})

	req := httptest.NewRequest(http.MethodOptions, "/splits", nil)
	req.Header.Set("Origin", "https://split.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "https://split.example", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealthReadyMetrics(t *testing.T) {
	srv := newTestServer(t, Options{})
	createSplit(t, srv, `{"participants": 3, "total": 30}`)

	rr := do(t, srv, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"ok"`)

	rr = do(t, srv, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var ready struct {
		Status string         `json:"status"`
		Checks map[string]any `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &ready))
	assert.Equal(t, "ready", ready.Status)
	assert.Equal(t, "not_configured", ready.Checks["events"])

	rr = do(t, srv, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "splits_created_total 1\n")
	assert.Contains(t, body, "active_split_sessions 1\n")
	assert.Contains(t, body, "# TYPE settlements_total counter")
}

func TestSuspiciousRequestsAreCounted(t *testing.T) {
	srv := newTestServer(t, Options{})

	req := httptest.NewRequest(http.MethodGet, "/splits/x?q=../../etc/passwd", nil)
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, int64(1), srv.metrics.suspicious.Load())
}

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{"direct", "203.0.113.7:5000", nil, "203.0.113.7"},
		{"untrusted forwarder ignored", "203.0.113.7:5000", map[string]string{"X-Forwarded-For": "198.51.100.1"}, "203.0.113.7"},
		{"trusted forwarder", "10.0.0.5:5000", map[string]string{"X-Forwarded-For": "198.51.100.1, 10.0.0.5"}, "198.51.100.1"},
		{"trusted real ip", "127.0.0.1:5000", map[string]string{"X-Real-IP": "198.51.100.2"}, "198.51.100.2"},
		{"trusted with garbage header", "192.168.1.1:5000", map[string]string{"X-Forwarded-For": "not-an-ip"}, "192.168.1.1"},
		{"no port", "203.0.113.9", nil, "203.0.113.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, extractClientIP(req))
		})
	}
}

func TestRateLimiterWindow(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := newRateLimiter(2)
	defer rl.stop()
	rl.now = func() time.Time { return now }

	assert.True(t, rl.allow("a"))
	assert.True(t, rl.allow("a"))
	assert.False(t, rl.allow("a"))
	assert.True(t, rl.allow("b"))

	now = now.Add(time.Minute)
	assert.True(t, rl.allow("a"))

	now = now.Add(11 * time.Minute)
	rl.cleanupStaleEntries()
	assert.Equal(t, 0, rl.activeClients())
}

type stubPublisher struct {
	closed atomic.Bool
}

func (p *stubPublisher) PublishSettlement(ctx context.Context, msg *amqp.SettlementMessage) error {
	return nil
}

func (p *stubPublisher) IsClosed() bool { return p.closed.Load() }

func TestReadyReportsBrokerConnection(t *testing.T) {
	logger := quietLogger()
	pub := &stubPublisher{}
	svc := services.NewSplitService(cache.NewLRUCache[core.Session](16, time.Hour), pub, core.DefaultTolerance, logger)
	srv := NewServer(":0", svc, Options{Logger: logger})
	t.Cleanup(srv.rateLimiter.stop)

	readyz := func() (int, string, any) {
		rr := do(t, srv, http.MethodGet, "/readyz", "")
		var ready struct {
			Status string         `json:"status"`
			Checks map[string]any `json:"checks"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &ready))
		return rr.Code, ready.Status, ready.Checks["events"]
	}

	code, status, events := readyz()
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ready", status)
	assert.Equal(t, "ok", events)

	pub.closed.Store(true)
	code, status, events = readyz()
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "not_ready", status)
	assert.Equal(t, "failed: broker connection closed", events)
}
