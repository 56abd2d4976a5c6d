package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tahcohcat/gocalm-web/internal/llm"
)

var startedAt = time.Now()

// Pinger is satisfied by *database.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// WorkerStats is satisfied by *worker.Pool.
type WorkerStats interface {
	IsRunning() bool
	Stats() (processed, failed int64)
}

type HealthHandler struct {
	db      Pinger
	workers WorkerStats
	model   llm.LLM
}

func NewHealthHandler(db Pinger, workers WorkerStats, model llm.LLM) *HealthHandler {
	return &HealthHandler{db: db, workers: workers, model: model}
}

// GET /healthz - Liveness plus queue counters. ?deep=1 also asks the LLM
// provider whether the model is loaded.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	body := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(startedAt).Round(time.Second).String(),
	}

	if err := h.db.PingContext(ctx); err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
		body["database"] = err.Error()
	}

	if h.workers != nil {
		processed, failed := h.workers.Stats()
		body["workers_running"] = h.workers.IsRunning()
		body["jobs_processed"] = processed
		body["jobs_failed"] = failed
	}

	if r.URL.Query().Get("deep") == "1" && h.model != nil {
		if err := h.model.IsModelAvailable(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body["llm"] = err.Error()
		}
	}

	writeJSON(w, status, body)
}
