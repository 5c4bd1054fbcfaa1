package http

import (
	"fmt"
	"net/http"
	"time"

	"splitter/internal/log"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.metrics.started).Round(time.Second).String(),
	})
}

// handleReady reports the state of the session store and event publisher.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := "ready"
	httpStatus := http.StatusOK
	checks := map[string]any{}

	if s.splits == nil {
		checks["sessions"] = "failed: split service not configured"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["sessions"] = map[string]any{
			"status": "ok",
			"active": s.splits.Active(),
		}
		switch {
		case !s.splits.Publishing():
			checks["events"] = "not_configured"
		case s.splits.PublisherHealthy():
			checks["events"] = "ok"
		default:
			checks["events"] = "failed: broker connection closed"
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
		}
	}
	checks["rate_limiter"] = map[string]any{
		"status":         "ok",
		"active_clients": s.rateLimiter.activeClients(),
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics writes counters in a Prometheus-like text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	active := 0
	if s.splits != nil {
		active = s.splits.Active()
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	metric := func(name, help, kind string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s %s\n", name, kind)
		fmt.Fprintf(w, "%s %v\n\n", name, value)
	}
	metric("http_requests_total", "Total number of HTTP requests", "counter", s.metrics.requests.Load())
	metric("splits_created_total", "Total number of split sessions created", "counter", s.metrics.created.Load())
	metric("settlements_total", "Total number of settlement plans computed", "counter", s.metrics.settled.Load())
	metric("rate_limit_hits_total", "Total rate limit hits", "counter", s.rateLimiter.hits.Load())
	metric("suspicious_requests_total", "Total suspicious requests detected", "counter", s.metrics.suspicious.Load())
	metric("active_split_sessions", "Split sessions currently held in memory", "gauge", active)
	metric("active_rate_limit_clients", "Currently tracked rate limit clients", "gauge", s.rateLimiter.activeClients())
	metric("uptime_seconds", "Application uptime in seconds", "gauge", fmt.Sprintf("%.0f", time.Since(s.metrics.started).Seconds()))
}

func (s *Server) handleCreateSplit(w http.ResponseWriter, r *http.Request) {
	var req splitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	count, total := req.parse()

	id, session, err := s.splits.Create(r.Context(), count, total)
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	s.metrics.created.Add(1)

	w.Header().Set("Location", "/splits/"+id)
	writeJSON(w, http.StatusCreated, newSessionResponse(id, session))
}

func (s *Server) handleGetSplit(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	session, err := s.splits.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(id, session))
}

func (s *Server) handleResplit(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req splitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, log.OpResplit, err)
		return
	}
	count, total := req.parse()

	session, err := s.splits.Resplit(r.Context(), id, count, total)
	if err != nil {
		writeError(w, r, log.OpResplit, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(id, session))
}

func (s *Server) handleDeleteSplit(w http.ResponseWriter, r *http.Request) {
	s.splits.Delete(r.Context(), r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRecordContribution(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	index, err := parseParticipantIndex(r.PathValue("index"))
	if err != nil {
		writeError(w, r, log.OpContribute, err)
		return
	}
	var req contributionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, log.OpContribute, err)
		return
	}

	session, err := s.splits.RecordContribution(r.Context(), id, index, string(req.Value))
	if err != nil {
		writeError(w, r, log.OpContribute, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(id, session))
}

func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	session, err := s.splits.Settle(r.Context(), id)
	if err != nil {
		writeError(w, r, log.OpSettle, err)
		return
	}
	s.metrics.settled.Add(1)
	writeJSON(w, http.StatusOK, newSessionResponse(id, session))
}
