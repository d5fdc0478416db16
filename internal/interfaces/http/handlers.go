package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/portfoliosim/internal/backtest/portfolio"
)

// ErrorResponse is the body of every non-2xx JSON response
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Code      string    `json:"code"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthResponse reports server liveness and the newest run
type HealthResponse struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Uptime    string                   `json:"uptime"`
	LatestRun *portfolio.LatestPointer `json:"latest_run,omitempty"`
	Sink      interface{}              `json:"sink,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(s.started).Round(time.Second).String(),
	}
	if latest, err := s.artifacts.Latest(); err == nil {
		resp.LatestRun = latest
	}
	if s.sink != nil {
		sink := s.sink(r.Context())
		resp.Sink = sink
		if !sink.Healthy {
			resp.Status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) latestEquity(w http.ResponseWriter, r *http.Request) {
	latest, ok := s.latest(w, r)
	if !ok {
		return
	}
	name := portfolio.EquityCurveFile
	if !latest.Complete {
		name = portfolio.IncompleteEquityCurveFile
	}
	s.serveCSV(w, r, latest, name)
}

func (s *Server) latestTrades(w http.ResponseWriter, r *http.Request) {
	latest, ok := s.latest(w, r)
	if !ok {
		return
	}
	if !latest.Complete {
		writeError(w, r, http.StatusConflict, "run_incomplete",
			"The latest run did not complete and has no trade ledger")
		return
	}
	s.serveCSV(w, r, latest, portfolio.TradesFile)
}

func (s *Server) latestSummary(w http.ResponseWriter, r *http.Request) {
	latest, ok := s.latest(w, r)
	if !ok {
		return
	}
	raw, err := os.ReadFile(s.artifacts.Path(latest, portfolio.SummaryFile))
	if err != nil {
		s.artifactError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Run-ID", latest.RunID)
	w.WriteHeader(http.StatusOK)
	w.Write(raw)
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	s.metrics.RecordHTTPRequest("not_found", http.StatusNotFound)
	writeError(w, r, http.StatusNotFound, "endpoint_not_found", "The requested endpoint does not exist")
}

func (s *Server) latest(w http.ResponseWriter, r *http.Request) (*portfolio.LatestPointer, bool) {
	latest, err := s.artifacts.Latest()
	if err != nil {
		if errors.Is(err, ErrNoRuns) {
			writeError(w, r, http.StatusNotFound, "no_runs", "No run has been recorded yet")
		} else {
			log.Error().Err(err).Str("request_id", requestID(r)).Msg("Latest run pointer unreadable")
			writeError(w, r, http.StatusInternalServerError, "latest_unreadable", "The latest run pointer could not be read")
		}
		return nil, false
	}
	return latest, true
}

func (s *Server) serveCSV(w http.ResponseWriter, r *http.Request, latest *portfolio.LatestPointer, name string) {
	raw, err := os.ReadFile(s.artifacts.Path(latest, name))
	if err != nil {
		s.artifactError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("X-Run-ID", latest.RunID)
	if latest.Complete {
		w.Header().Set("X-Run-Status", "complete")
	} else {
		w.Header().Set("X-Run-Status", "incomplete")
	}
	w.WriteHeader(http.StatusOK)
	w.Write(raw)
}

func (s *Server) artifactError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, os.ErrNotExist) {
		writeError(w, r, http.StatusNotFound, "artifact_missing", "The latest run has no such artifact")
		return
	}
	log.Error().Err(err).Str("request_id", requestID(r)).Msg("Artifact unreadable")
	writeError(w, r, http.StatusInternalServerError, "artifact_unreadable", "The artifact could not be read")
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// writeError writes the standard error body
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Error:     http.StatusText(status),
		Message:   message,
		Code:      code,
		RequestID: requestID(r),
		Timestamp: time.Now().UTC(),
	})
}
