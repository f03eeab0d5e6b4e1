package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/upb/docchat/utils"
)

// readinessTimeout bounds all dependency probes of one readiness check
const readinessTimeout = 5 * time.Second

// ModelProbe reports whether the model server answers
type ModelProbe interface {
	IsAvailable(ctx context.Context) bool
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	db     *sql.DB
	models ModelProbe
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. db is nil when running on the
// in-memory store; models may be nil.
func NewHealthHandler(db *sql.DB, models ModelProbe, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:     db,
		models: models,
		logger: logger,
	}
}

// HandleHealth handles GET /healthz
// Liveness only: 200 whenever the process serves requests
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleReadiness handles GET /readyz
// The database decides readiness. The model server is reported but never
// fails the check, since answers degrade instead of failing without it.
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	switch err := h.checkDatabase(ctx); {
	case h.db == nil:
		checks["database"] = "in_memory"
	case err != nil:
		h.logger.Warn("database health check failed", zap.Error(err))
		checks["database"] = "unhealthy"
		allHealthy = false
	default:
		checks["database"] = "healthy"
	}

	switch {
	case h.models == nil:
		checks["ollama"] = "not_configured"
	case h.models.IsAvailable(ctx):
		checks["ollama"] = "healthy"
	default:
		h.logger.Warn("model server unreachable, answers will be degraded")
		checks["ollama"] = "degraded"
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !allHealthy {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}

	if err := utils.WriteJSON(w, httpStatus, utils.Envelope{Data: response}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}

// checkDatabase pings and runs a trivial query
func (h *HealthHandler) checkDatabase(ctx context.Context) error {
	if h.db == nil {
		return nil
	}
	if err := h.db.PingContext(ctx); err != nil {
		return err
	}
	var result int
	return h.db.QueryRowContext(ctx, "SELECT 1").Scan(&result)
}
