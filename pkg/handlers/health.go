package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/atelier-ai/atelier-engine/pkg/config"
	"github.com/atelier-ai/atelier-engine/pkg/database"
)

// HealthResponse contains service status and version information.
type HealthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Service     string `json:"service"`
	GoVersion   string `json:"go_version"`
	Environment string `json:"environment"`
	Database    string `json:"database"`
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	cfg    *config.Config
	db     *database.DB
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler with the given configuration.
func NewHealthHandler(cfg *config.Config, db *database.DB, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, db: db, logger: logger}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
}

// Health handles GET /health requests. Reports service identity and
// database reachability.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	dbStatus := "ok"
	status := "ok"
	code := http.StatusOK
	if err := h.db.Ping(ctx); err != nil {
		h.logger.Warn("Health check database ping failed", zap.Error(err))
		dbStatus = "unreachable"
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:      status,
		Version:     h.cfg.Version,
		Service:     "atelier-engine",
		GoVersion:   runtime.Version(),
		Environment: h.cfg.Env,
		Database:    dbStatus,
	}
	if err := WriteJSON(w, code, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
