package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/cryptovat/internal/jobs"
	"github.com/sawpanic/cryptovat/internal/persistence"
	"github.com/sawpanic/cryptovat/internal/pipeline"
	"github.com/sawpanic/cryptovat/internal/providers"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Warn().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Error:     http.StatusText(status),
		Message:   message,
		Code:      code,
		RequestID: requestID(r),
		Timestamp: time.Now().UTC(),
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
	}
	if s.svc.Jobs != nil {
		resp.Lifetime = s.svc.Jobs.Lifetime()
	}
	if s.svc.Metrics != nil {
		fresh := s.svc.Metrics.Freshness()
		resp.Providers = &fresh
	}
	if s.svc.Health != nil {
		check := s.svc.Health.Health(r.Context())
		resp.Database = &check
		if !check.Healthy {
			resp.Status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) startSpot(w http.ResponseWriter, r *http.Request) {
	s.startJob(w, r, persistence.KindSpot, func(ctx context.Context, user string, rep *jobs.Reporter) (interface{}, error) {
		return s.svc.Scanner.ScanSpot(ctx, user, rep)
	})
}

func (s *Server) startAnalyze(w http.ResponseWriter, r *http.Request) {
	var body AnalyzeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_body", "Request body must be JSON")
		return
	}
	if body.FuturesPath == "" || body.SpotPath == "" {
		writeError(w, r, http.StatusBadRequest, "missing_input", "futures_path and spot_path are required")
		return
	}

	futures, err := resolveInput(s.config.InputDir, body.FuturesPath)
	if err == nil {
		body.SpotPath, err = resolveInput(s.config.InputDir, body.SpotPath)
	}
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "path_outside_input_dir", err.Error())
		return
	}

	req := pipeline.AnalyzeRequest{FuturesPath: futures, SpotPath: body.SpotPath, Cleanup: body.Cleanup}
	s.startJob(w, r, persistence.KindAnalyze, func(ctx context.Context, user string, rep *jobs.Reporter) (interface{}, error) {
		return s.svc.Scanner.Analyze(ctx, user, req, rep)
	})
}

// resolveInput maps p into dir. Relative paths are taken from dir and any path
// that lands outside it is refused, since analyze may delete its inputs.
func resolveInput(dir, p string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("no input directory configured")
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}
	p = filepath.Clean(p)
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside the input directory", filepath.Base(p))
	}
	return p, nil
}

func (s *Server) startJob(w http.ResponseWriter, r *http.Request, kind string, run func(context.Context, string, *jobs.Reporter) (interface{}, error)) {
	user := r.Header.Get(UserHeader)
	if user == "" {
		writeError(w, r, http.StatusUnauthorized, "missing_user", UserHeader+" header is required")
		return
	}

	id, err := s.svc.Jobs.Start(s.jobCtx, user, kind, func(ctx context.Context, rep *jobs.Reporter) error {
		res, err := run(ctx, user, rep)
		if err != nil {
			return err
		}
		s.storeResult(rep.JobID(), res)
		return nil
	})
	if errors.Is(err, jobs.ErrJobActive) {
		writeError(w, r, http.StatusConflict, "job_active", "A job is already running for this user")
		return
	}
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "job_rejected", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, JobStarted{JobID: id, Status: string(jobs.StatusActive)})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	p, err := s.svc.Jobs.Get(id)
	if err != nil {
		writeError(w, r, http.StatusNotFound, "job_not_found", "Unknown job")
		return
	}
	view := JobView{Progress: p}
	if p.Status == jobs.StatusSuccess {
		view.Result = s.result(id)
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.svc.Jobs.Cancel(id); err != nil {
		writeError(w, r, http.StatusNotFound, "job_not_found", "Unknown job")
		return
	}
	p, _ := s.svc.Jobs.Get(id)
	writeJSON(w, http.StatusAccepted, JobView{Progress: p})
}

func (s *Server) jobLogs(w http.ResponseWriter, r *http.Request) {
	since, _ := strconv.Atoi(r.URL.Query().Get("last"))
	logs, next, err := s.svc.Jobs.Logs(mux.Vars(r)["id"], since)
	if err != nil {
		writeError(w, r, http.StatusNotFound, "job_not_found", "Unknown job")
		return
	}
	writeJSON(w, http.StatusOK, LogsChunk{Logs: logs, LastIndex: next})
}

func (s *Server) deepDive(w http.ResponseWriter, r *http.Request) {
	if s.svc.DeepDive == nil {
		writeError(w, r, http.StatusServiceUnavailable, "deep_dive_disabled", "Deep dive is not configured")
		return
	}

	report, err := s.svc.DeepDive.Lookup(r.Context(), mux.Vars(r)["coin"])
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, report)
	case errors.Is(err, providers.ErrRateLimited):
		writeError(w, r, http.StatusTooManyRequests, "rate_limited", "Rate Limit Hit. Please wait.")
	default:
		var se *providers.StatusError
		if errors.As(err, &se) {
			writeError(w, r, http.StatusBadGateway, "upstream_error", "API "+strconv.Itoa(se.Code))
			return
		}
		writeError(w, r, http.StatusBadGateway, "upstream_error", err.Error())
	}
}
