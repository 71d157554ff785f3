// Package api is the REST surface: a thin chi-based consumer that
// exercises the store, the schedule parser, the scheduler core, the
// rate limiter, and the retention sweeper end to end.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"httptrigger/internal/apperr"
	"httptrigger/internal/domain"
	"httptrigger/internal/reconcile"
	"httptrigger/internal/retention"
	"httptrigger/internal/schedule"
	"httptrigger/internal/store"
)

// RateLimiter is the narrow interface the API layer needs from
// internal/ratelimit.Limiter; the engine itself never sees this type.
type RateLimiter interface {
	Allow(jobID string) (ok bool, retryAfterSeconds float64)
}

// Engine is the subset of *scheduler.Core the API needs directly (the
// manual trigger). CRUD mutations instead go through the Reconciler so
// the registry stays the single source of truth for in-memory state.
type Engine interface {
	ExecuteManually(ctx context.Context, id string) (domain.ExecutionLog, error)
	IsJobRunning(id string) bool
}

type Server struct {
	r          *chi.Mux
	store      store.Store
	engine     Engine
	reconciler *reconcile.Reconciler
	limiter    RateLimiter
	sweeper    *retention.Sweeper
}

func NewServer(st store.Store, engine Engine, reconciler *reconcile.Reconciler, limiter RateLimiter, sweeper *retention.Sweeper) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	s := &Server{r: r, store: st, engine: engine, reconciler: reconciler, limiter: limiter, sweeper: sweeper}

	r.Get("/health", s.health)

	r.Route("/api/jobs", func(r chi.Router) {
		r.Get("/", s.listJobs)
		r.Post("/", s.createJob)
		r.Get("/{id}", s.getJob)
		r.Put("/{id}", s.updateJob)
		r.Delete("/{id}", s.deleteJob)
		r.Put("/{id}/toggle", s.toggleJob)
		r.Post("/{id}/trigger", s.triggerJob)
		r.Get("/{id}/logs", s.jobLogs)
	})

	r.Get("/api/logs/search", s.searchLogs)
	r.Get("/api/logs/stats", s.logStats)
	r.Post("/api/retention/sweep", s.sweepNow)

	return s.r
}

// sweepNow exposes retention.Sweeper.SweepNow to an operator, with an
// optional retentionDays override for this sweep only.
func (s *Server) sweepNow(w http.ResponseWriter, r *http.Request) {
	override, _ := strconv.Atoi(r.URL.Query().Get("retentionDays"))
	deleted, err := s.sweeper.SweepNow(r.Context(), override)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type jobDTO struct {
	ID             string  `json:"id,omitempty"`
	Name           string  `json:"name"`
	URL            string  `json:"url"`
	Method         string  `json:"method"`
	Headers        string  `json:"headers,omitempty"`
	Body           string  `json:"body,omitempty"`
	Schedule       string  `json:"schedule"`
	ScheduleType   string  `json:"scheduleType"`
	IsActive       bool    `json:"isActive"`
	RequestTimeout int     `json:"requestTimeout,omitempty"`
	ExecutionMode  string  `json:"executionMode,omitempty"`
	MaxConcurrent  int     `json:"maxConcurrent,omitempty"`
	CurrentRunning int     `json:"currentRunning"`
	ExecutionCount int64   `json:"executionCount"`
	LastExecutedAt *string `json:"lastExecutedAt,omitempty"`
	CreatedAt      string  `json:"createdAt,omitempty"`
	UpdatedAt      string  `json:"updatedAt,omitempty"`
	Description    string  `json:"description,omitempty"`
}

func toDTO(j domain.Job) jobDTO {
	d := jobDTO{
		ID: j.ID, Name: j.Name, URL: j.URL, Method: string(j.Method), Headers: j.Headers, Body: j.Body,
		Schedule: j.Schedule, ScheduleType: string(j.ScheduleType), IsActive: j.IsActive,
		RequestTimeout: j.RequestTimeout, ExecutionMode: string(j.ExecutionMode), MaxConcurrent: j.MaxConcurrent,
		CurrentRunning: j.CurrentRunning, ExecutionCount: j.ExecutionCount,
		CreatedAt: j.CreatedAt.Format(time.RFC3339), UpdatedAt: j.UpdatedAt.Format(time.RFC3339),
		Description: schedule.Describe(j.Schedule, j.ScheduleType),
	}
	if j.LastExecutedAt != nil {
		t := j.LastExecutedAt.Format(time.RFC3339)
		d.LastExecutedAt = &t
	}
	return d
}

func (dto jobDTO) toDomain() domain.Job {
	return domain.Job{
		ID: dto.ID, Name: dto.Name, URL: dto.URL, Method: domain.Method(dto.Method), Headers: dto.Headers,
		Body: dto.Body, Schedule: dto.Schedule, ScheduleType: domain.ScheduleType(dto.ScheduleType),
		IsActive: dto.IsActive, RequestTimeout: dto.RequestTimeout,
		ExecutionMode: domain.ExecutionMode(dto.ExecutionMode), MaxConcurrent: dto.MaxConcurrent,
	}
}

// validateJob enforces the API boundary invariants: name/url/schedule
// non-empty, method in {GET,POST}, requestTimeout in range, schedule
// well-formed for its declared type.
func validateJob(j domain.Job) error {
	if j.Name == "" {
		return apperr.New(apperr.InvalidSchedule, "name is required")
	}
	if j.URL == "" {
		return apperr.New(apperr.InvalidSchedule, "url is required")
	}
	if j.Method != domain.MethodGET && j.Method != domain.MethodPOST {
		return apperr.New(apperr.InvalidSchedule, "method must be GET or POST")
	}
	if j.Schedule == "" {
		return apperr.New(apperr.InvalidSchedule, "schedule is required")
	}
	if ok, msg := schedule.Validate(j.Schedule, j.ScheduleType); !ok {
		return apperr.New(apperr.InvalidSchedule, msg)
	}
	if j.RequestTimeout != 0 && (j.RequestTimeout < domain.MinRequestTimeoutMS || j.RequestTimeout > domain.MaxRequestTimeoutMS) {
		return apperr.New(apperr.InvalidSchedule, "requestTimeout must be between 1000 and 300000 ms")
	}
	if j.MaxConcurrent != 0 && (j.MaxConcurrent < domain.MinMaxConcurrent || j.MaxConcurrent > domain.MaxMaxConcurrent) {
		return apperr.New(apperr.InvalidSchedule, "maxConcurrent must be between 1 and 100")
	}
	return nil
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.store.ListJobs(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	out := make([]jobDTO, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, toDTO(j))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	var dto jobDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if dto.Method == "" {
		dto.Method = string(domain.MethodGET)
	}
	if dto.ExecutionMode == "" {
		dto.ExecutionMode = string(domain.ExecutionSequential)
	}
	job := dto.toDomain()
	if err := validateJob(job); err != nil {
		writeErr(w, err)
		return
	}

	created, err := s.store.CreateJob(r.Context(), job)
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := s.reconciler.OnJobCreated(created); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDTO(created))
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	j, err := s.store.GetJob(r.Context(), id)
	if err != nil {
		writeErr(w, apperr.Wrap(apperr.NotFound, "job not found", err))
		return
	}
	writeJSON(w, http.StatusOK, toDTO(j))
}

func (s *Server) updateJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	existing, err := s.store.GetJob(r.Context(), id)
	if err != nil {
		writeErr(w, apperr.Wrap(apperr.NotFound, "job not found", err))
		return
	}
	var dto jobDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	dto.ID = id
	updated := dto.toDomain()
	updated.CurrentRunning = existing.CurrentRunning
	updated.ExecutionCount = existing.ExecutionCount
	if err := validateJob(updated); err != nil {
		writeErr(w, err)
		return
	}

	saved, err := s.store.UpdateJob(r.Context(), updated)
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := s.reconciler.OnJobUpdated(r.Context(), id); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDTO(saved))
}

func (s *Server) deleteJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.DeleteJob(r.Context(), id); err != nil {
		writeErr(w, apperr.Wrap(apperr.NotFound, "job not found", err))
		return
	}
	s.reconciler.OnJobDeleted(id)
	w.WriteHeader(http.StatusNoContent)
}

// toggleJob flips isActive; applying it twice restores the original
// value.
func (s *Server) toggleJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	j, err := s.store.GetJob(r.Context(), id)
	if err != nil {
		writeErr(w, apperr.Wrap(apperr.NotFound, "job not found", err))
		return
	}
	j.IsActive = !j.IsActive
	saved, err := s.store.UpdateJob(r.Context(), j)
	if err != nil {
		writeErr(w, err)
		return
	}
	if saved.IsActive {
		err = s.reconciler.OnJobEnabled(r.Context(), id)
	} else {
		s.reconciler.OnJobDisabled(id)
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDTO(saved))
}

func (s *Server) triggerJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if ok, retryAfter := s.limiter.Allow(id); !ok {
		w.Header().Set("Retry-After", strconv.FormatFloat(retryAfter, 'f', 1, 64))
		writeJSON(w, http.StatusTooManyRequests, map[string]any{"error": "rate limited", "retryAfter": retryAfter})
		return
	}

	entry, err := s.engine.ExecuteManually(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	if entry.Status == domain.LogFailed {
		writeJSON(w, http.StatusInternalServerError, toLogDTO(entry, true))
		return
	}
	writeJSON(w, http.StatusOK, toLogDTO(entry, true))
}

func (s *Server) jobLogs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	f, p, expand := parseLogQuery(r)
	f.JobID = id
	logs, total, err := s.store.ListLogs(r.Context(), f, p)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, logsResponse(logs, total, p, expand))
}

func (s *Server) searchLogs(w http.ResponseWriter, r *http.Request) {
	f, p, expand := parseLogQuery(r)
	f.JobNameContains = r.URL.Query().Get("jobName")
	f.ResponseContains = r.URL.Query().Get("responseContent")
	logs, total, err := s.store.ListLogs(r.Context(), f, p)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, logsResponse(logs, total, p, expand))
}

func parseLogQuery(r *http.Request) (domain.LogFilter, domain.Pagination, bool) {
	q := r.URL.Query()
	f := domain.LogFilter{}
	if v := q.Get("status"); v != "" {
		f.Status = domain.LogStatus(v)
	}
	if v := q.Get("triggeredManually"); v != "" {
		b := v == "true"
		f.TriggeredManually = &b
	}
	if v := q.Get("startDate"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.StartDate = &t
		}
	}
	if v := q.Get("endDate"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.EndDate = &t
		}
	}
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	expand := q.Get("expand") == "true"
	return f, domain.Pagination{Page: page, Limit: limit}, expand
}

type logDTO struct {
	ID                string `json:"id"`
	JobID             string `json:"jobId"`
	ExecutedAt        string `json:"executedAt"`
	Status            string `json:"status"`
	ResponseCode      *int   `json:"responseCode,omitempty"`
	ExecutionTime     int64  `json:"executionTime"`
	ResponseBody      string `json:"responseBody,omitempty"`
	ErrorMessage      string `json:"errorMessage,omitempty"`
	TriggeredManually bool   `json:"triggeredManually"`
	RetryCount        int    `json:"retryCount,omitempty"`
}

// toLogDTO renders one log; expand=false truncates responseBody to 500
// chars with an ellipsis suffix for list views.
func toLogDTO(l domain.ExecutionLog, expand bool) logDTO {
	const truncatedLen = 500
	body := l.ResponseBody
	if !expand && len(body) > truncatedLen {
		body = body[:truncatedLen] + "..."
	}
	return logDTO{
		ID:                l.ID,
		JobID:             l.JobID,
		ExecutedAt:        l.ExecutedAt.Format(time.RFC3339),
		Status:            string(l.Status),
		ResponseCode:      l.ResponseCode,
		ExecutionTime:     l.ExecutionTime,
		ResponseBody:      body,
		ErrorMessage:      l.ErrorMessage,
		TriggeredManually: l.TriggeredManually,
		RetryCount:        l.RetryCount,
	}
}

func logsResponse(logs []domain.ExecutionLog, total int, p domain.Pagination, expand bool) map[string]any {
	out := make([]logDTO, len(logs))
	for i, l := range logs {
		out[i] = toLogDTO(l, expand)
	}
	return map[string]any{
		"data":  out,
		"page":  p.Page,
		"limit": p.Limit,
		"total": total,
	}
}

func (s *Server) logStats(w http.ResponseWriter, r *http.Request) {
	f, _, _ := parseLogQuery(r)
	f.JobID = ""
	perJob, err := s.store.LogStats(r.Context(), f)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, computeStats(perJob))
}

type jobStats struct {
	Total          int     `json:"total"`
	Success        int     `json:"success"`
	Failed         int     `json:"failed"`
	SuccessRate    float64 `json:"successRate"`
	MinExecutionMS int64   `json:"minExecutionTime"`
	AvgExecutionMS float64 `json:"avgExecutionTime"`
	MaxExecutionMS int64   `json:"maxExecutionTime"`
}

// computeStats folds the store's per-job aggregates into the response
// shape: the overall block is derived from the per-job rows rather
// than re-queried.
func computeStats(perJob []domain.JobLogStats) map[string]any {
	overall := jobStats{}
	byJob := make(map[string]jobStats, len(perJob))
	var sum int64

	for _, st := range perJob {
		js := jobStats{
			Total:          st.Total,
			Success:        st.Success,
			Failed:         st.Failed,
			MinExecutionMS: st.MinExecutionMS,
			AvgExecutionMS: round2(st.AvgExecutionMS),
			MaxExecutionMS: st.MaxExecutionMS,
		}
		if st.Total > 0 {
			js.SuccessRate = round2(float64(st.Success) / float64(st.Total) * 100)
		}
		byJob[st.JobID] = js

		overall.Total += st.Total
		overall.Success += st.Success
		overall.Failed += st.Failed
		sum += st.SumExecutionMS
		if overall.MinExecutionMS == 0 || (st.Total > 0 && st.MinExecutionMS < overall.MinExecutionMS) {
			overall.MinExecutionMS = st.MinExecutionMS
		}
		if st.MaxExecutionMS > overall.MaxExecutionMS {
			overall.MaxExecutionMS = st.MaxExecutionMS
		}
	}

	if overall.Total > 0 {
		overall.SuccessRate = round2(float64(overall.Success) / float64(overall.Total) * 100)
		overall.AvgExecutionMS = round2(float64(sum) / float64(overall.Total))
	}

	return map[string]any{"overall": overall, "perJob": byJob}
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	var ae *apperr.Error
	switch {
	case errors.As(err, &ae):
		switch ae.Kind {
		case apperr.NotFound:
			code = http.StatusNotFound
		case apperr.Inactive, apperr.AlreadyRunning, apperr.InvalidSchedule, apperr.InvalidHeaders:
			code = http.StatusBadRequest
		case apperr.RateLimited:
			code = http.StatusTooManyRequests
		}
	case errors.Is(err, store.ErrNotFound):
		code = http.StatusNotFound
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
