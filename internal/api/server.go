// Package api exposes the HTTP interface for the deedwatch service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/overageworks/deedwatch/internal/auction"
	"github.com/overageworks/deedwatch/internal/jobs"
)

// StartFunc launches an accepted job in the background. The server
// never blocks a request on job execution.
type StartFunc func(job auction.Job)

// Server wires HTTP handlers to the job engine and stores.
type Server struct {
	router    chi.Router
	engine    *jobs.Engine
	jobStore  auction.JobStore
	prospects auction.ProspectStore
	tracker   *jobs.Tracker
	start     StartFunc
	metrics   http.Handler
	reportDir string
	log       *zap.Logger
}

// NewServer constructs a Server with middleware and routes. metrics may
// be nil when no registry is exposed; start may be nil to accept jobs
// without executing them.
func NewServer(engine *jobs.Engine, jobStore auction.JobStore, prospects auction.ProspectStore, tracker *jobs.Tracker, start StartFunc, metrics http.Handler, reportDir string, log *zap.Logger) *Server {
	s := &Server{
		engine:    engine,
		jobStore:  jobStore,
		prospects: prospects,
		tracker:   tracker,
		start:     start,
		metrics:   metrics,
		reportDir: reportDir,
		log:       log,
	}

	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.submitJob)
			r.Get("/active", s.activeJobs)
			r.Route("/{job_id}", func(r chi.Router) {
				r.Get("/", s.getJob)
				r.Get("/report", s.getReport)
				r.Post("/restart", s.restartJob)
				r.Post("/clone", s.cloneJob)
			})
		})
		r.Get("/prospects", s.listProspects)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type submitJobRequest struct {
	Kind        string   `json:"kind"`
	State       string   `json:"state"`
	County      string   `json:"county"`
	Type        string   `json:"prospect_type"`
	StartDate   string   `json:"start_date"`
	EndDate     string   `json:"end_date"`
	CaseNumbers []string `json:"case_numbers"`
	DryRun      bool     `json:"dry_run"`
}

func (s *Server) submitJob(w http.ResponseWriter, r *http.Request) {
	var req submitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	kind := auction.JobKind(req.Kind)
	if kind != auction.JobKindScrape && kind != auction.JobKindSync {
		s.writeError(w, http.StatusBadRequest, "kind must be scrape or sync")
		return
	}
	scope, err := toScope(req)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := s.engine.Submit(r.Context(), kind, scope)
	if err != nil {
		if errors.Is(err, auction.ErrJobInProgress) {
			s.writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.launch(job)
	s.writeJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobStore.Get(r.Context(), jobID)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}

	payload := map[string]any{"job": job}
	if state, ok := s.tracker.Get(jobID); ok {
		payload["live"] = state
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *Server) activeJobs(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"jobs": s.tracker.Active()})
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	path := filepath.Join(s.reportDir, jobID+".txt")
	data, err := os.ReadFile(path) // #nosec G304 -- path is reportDir plus a validated uuid
	if err != nil {
		s.writeError(w, http.StatusNotFound, "report not found")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := w.Write(data); err != nil {
		s.log.Error("report write failed", zap.Error(err))
	}
}

func (s *Server) restartJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobStore.Get(r.Context(), jobID)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if !job.Status.Terminal() {
		s.writeError(w, http.StatusConflict, fmt.Sprintf("job is %s", job.Status))
		return
	}
	if err := s.jobStore.Reset(r.Context(), jobID); err != nil {
		if errors.Is(err, auction.ErrJobInProgress) {
			s.writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	job.Status = auction.JobStatusPending
	job.Counters = auction.JobCounters{}
	s.launch(job)
	s.writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID, "status": string(auction.JobStatusPending)})
}

type cloneJobRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	ShiftDays *int   `json:"shift_days"`
}

func (s *Server) cloneJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	var req cloneJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	var (
		clone auction.Job
		err   error
	)
	switch {
	case req.ShiftDays != nil:
		clone, err = s.engine.CloneShifted(r.Context(), jobID, *req.ShiftDays)
	case req.StartDate != "" && req.EndDate != "":
		var start, end time.Time
		if start, err = parseDate(req.StartDate); err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if end, err = parseDate(req.EndDate); err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		clone, err = s.engine.Clone(r.Context(), jobID, start, end)
	default:
		s.writeError(w, http.StatusBadRequest, "provide shift_days or start_date and end_date")
		return
	}
	if err != nil {
		var verr *auction.ValidationError
		switch {
		case errors.Is(err, auction.ErrJobInProgress):
			s.writeError(w, http.StatusConflict, err.Error())
		case errors.As(err, &verr):
			s.writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.writeError(w, http.StatusNotFound, err.Error())
		}
		return
	}
	s.launch(clone)
	s.writeJSON(w, http.StatusAccepted, map[string]string{"job_id": clone.ID})
}

func (s *Server) listProspects(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := auction.ProspectFilter{
		State:         q.Get("state"),
		County:        q.Get("county"),
		Type:          auction.ProspectType(q.Get("prospect_type")),
		Qualification: auction.QualificationStatus(q.Get("qualification")),
	}
	if v := q.Get("auction_start_date"); v != "" {
		d, err := parseDate(v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.AuctionStart = &d
	}
	if v := q.Get("auction_end_date"); v != "" {
		d, err := parseDate(v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.AuctionEnd = &d
	}

	prospects, err := s.prospects.List(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"prospects": prospects})
}

func (s *Server) launch(job auction.Job) {
	if s.start != nil {
		s.start(job)
	}
}

func toScope(req submitJobRequest) (auction.JobScope, error) {
	if req.County == "" {
		return auction.JobScope{}, errors.New("county is required")
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		return auction.JobScope{}, err
	}
	end, err := parseDate(req.EndDate)
	if err != nil {
		return auction.JobScope{}, err
	}
	if end.Before(start) {
		return auction.JobScope{}, errors.New("end_date before start_date")
	}
	return auction.JobScope{
		State:       req.State,
		County:      req.County,
		Type:        auction.ProspectType(req.Type),
		StartDate:   start,
		EndDate:     end,
		CaseNumbers: req.CaseNumbers,
		DryRun:      req.DryRun,
	}, nil
}

func parseDate(v string) (time.Time, error) {
	d, err := time.ParseInLocation("2006-01-02", v, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", v)
	}
	return d, nil
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.log.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()))
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("panic recovered", zap.Any("panic", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
