package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/aluiziolira/go-scrape-market/models"
	"github.com/aluiziolira/go-scrape-market/scheduler"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// CreateTaskRequest is the POST /tasks body.
type CreateTaskRequest struct {
	Type         models.TaskKind `json:"type"`
	Params       map[string]any  `json:"params"`
	ScheduleTime *time.Time      `json:"schedule_time,omitempty"`
	Recurrence   string          `json:"recurrence,omitempty"`
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
	Fetch  *fetchStats       `json:"fetch,omitempty"`
}

type fetchStats struct {
	Requests          int64          `json:"requests"`
	CacheEntries      int            `json:"cache_entries"`
	CacheTTLSeconds   float64        `json:"cache_ttl_seconds"`
	LowTraffic        bool           `json:"low_traffic"`
	ActiveProxies     int            `json:"active_proxies"`
	DelayMinSeconds   float64        `json:"delay_min_seconds"`
	DelayMaxSeconds   float64        `json:"delay_max_seconds"`
	BackoffSeconds    float64        `json:"backoff_seconds"`
	ConsecutiveErrors int            `json:"consecutive_errors"`
	ErrorsByKind      map[string]int `json:"errors_by_kind,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok"}
	if len(s.checks) > 0 {
		resp.Checks = make(map[string]string, len(s.checks))
	}
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			resp.Checks[name] = "unhealthy"
			resp.Status = "degraded"
			slog.Error("health check failed", slog.String("check", name), slog.Any("error", err))
			continue
		}
		resp.Checks[name] = "healthy"
	}

	if s.stats != nil {
		st := s.stats.Stats()
		resp.Fetch = &fetchStats{
			Requests:          st.Requests,
			CacheEntries:      st.CacheEntries,
			CacheTTLSeconds:   st.CacheTTL.Seconds(),
			LowTraffic:        st.LowTraffic,
			ActiveProxies:     st.ActiveProxies,
			DelayMinSeconds:   st.Delay.CurrentMin.Seconds(),
			DelayMaxSeconds:   st.Delay.CurrentMax.Seconds(),
			BackoffSeconds:    st.Backoff.Seconds(),
			ConsecutiveErrors: st.Delay.ConsecutiveErrors,
			ErrorsByKind:      st.ErrorsByKind,
		}
	}

	code := http.StatusOK
	if resp.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	respondWithJSON(w, code, resp)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks := s.tasks.List()
	if status := r.URL.Query().Get("status"); status != "" {
		filtered := tasks[:0]
		for _, t := range tasks {
			if string(t.Status) == status {
				filtered = append(filtered, t)
			}
		}
		tasks = filtered
	}
	respondWithJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.Type.Valid() {
		respondWithError(w, http.StatusBadRequest, "type must be product_search or seller_search")
		return
	}
	recurrence, err := models.ParseRecurrence(req.Recurrence)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := s.tasks.AddTask(r.Context(), req.Type, req.Params, req.ScheduleTime, recurrence)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	task, _ := s.tasks.Get(id)
	respondWithJSON(w, http.StatusCreated, task)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.tasks.Get(chi.URLParam(r, "id"))
	if !ok {
		respondWithError(w, http.StatusNotFound, "task not found")
		return
	}
	respondWithJSON(w, http.StatusOK, task)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	err := s.tasks.Delete(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, scheduler.ErrTaskNotFound):
		respondWithError(w, http.StatusNotFound, "task not found")
	case err != nil:
		slog.Error("delete task failed", slog.Any("error", err))
		respondWithError(w, http.StatusInternalServerError, "could not delete task")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// requestLogger logs one line per request through slog.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Debug("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		slog.Error("encode response failed", slog.Any("error", err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}
