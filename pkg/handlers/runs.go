package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atelier-ai/atelier-engine/pkg/auth"
	"github.com/atelier-ai/atelier-engine/pkg/models"
	"github.com/atelier-ai/atelier-engine/pkg/services"
)

// ProposeRunRequest is the payload an agent submits to propose work.
type ProposeRunRequest struct {
	Type                string              `json:"type" validate:"required"`
	RunName             string              `json:"run_name" validate:"required"`
	PlanDescription     string              `json:"plan_description" validate:"required"`
	QuestionsForUser    *string             `json:"questions_for_user"`
	ConfigDefaultsDescr *string             `json:"configuration_defaults_description"`
	InputRefs           models.EntityRefSet `json:"input_refs"`
}

// CompleteRunRequest carries the worker's outputs.
type CompleteRunRequest struct {
	Outputs models.RunOutputs `json:"outputs"`
}

// FailRunRequest carries the failure reason.
type FailRunRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// RunsHandler handles the run lifecycle HTTP surface.
type RunsHandler struct {
	runService services.RunService
	logger     *zap.Logger
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(runService services.RunService, logger *zap.Logger) *RunsHandler {
	return &RunsHandler{
		runService: runService,
		logger:     logger,
	}
}

// RegisterRoutes registers the runs handler's routes on the given mux.
func (h *RunsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, tenantMiddleware TenantMiddleware) {
	requireProject := authMiddleware.RequireAuthWithPathValidation("pid")

	mux.HandleFunc("POST /api/projects/{pid}/runs", requireProject(tenantMiddleware(h.Propose)))
	mux.HandleFunc("GET /api/projects/{pid}/runs", requireProject(tenantMiddleware(h.List)))
	mux.HandleFunc("GET /api/projects/{pid}/runs/{rid}", requireProject(tenantMiddleware(h.Get)))
	mux.HandleFunc("POST /api/projects/{pid}/runs/{rid}/launch", requireProject(tenantMiddleware(h.Launch)))
	mux.HandleFunc("POST /api/projects/{pid}/runs/{rid}/reject", requireProject(tenantMiddleware(h.Reject)))
	mux.HandleFunc("POST /api/projects/{pid}/runs/{rid}/complete", requireProject(tenantMiddleware(h.Complete)))
	mux.HandleFunc("POST /api/projects/{pid}/runs/{rid}/fail", requireProject(tenantMiddleware(h.Fail)))
	mux.HandleFunc("POST /api/projects/{pid}/runs/{rid}/heartbeat", requireProject(tenantMiddleware(h.Heartbeat)))
}

// Propose handles POST /api/projects/{pid}/runs.
// The run starts pending; nothing touches the graph until completion.
func (h *RunsHandler) Propose(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	var req ProposeRunRequest
	if !DecodeValidated(w, r, &req, h.logger) {
		return
	}

	run, err := h.runService.Propose(r.Context(), projectID, models.RunType(req.Type), models.RunDescriptor{
		RunName:             req.RunName,
		PlanDescription:     req.PlanDescription,
		QuestionsForUser:    req.QuestionsForUser,
		ConfigDefaultsDescr: req.ConfigDefaultsDescr,
	}, req.InputRefs)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusCreated, run); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// List handles GET /api/projects/{pid}/runs with an optional ?status= filter.
func (h *RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	var status *models.RunStatus
	if s := r.URL.Query().Get("status"); s != "" {
		parsed := models.RunStatus(s)
		if !models.IsValidRunStatus(parsed) {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_status", "Unknown run status filter"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		status = &parsed
	}

	runs, err := h.runService.List(r.Context(), projectID, status)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	if runs == nil {
		runs = []models.Run{}
	}

	if err := WriteJSON(w, http.StatusOK, map[string]any{"runs": runs}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /api/projects/{pid}/runs/{rid}.
func (h *RunsHandler) Get(w http.ResponseWriter, r *http.Request) {
	projectID, runID, ok := h.parseIDs(w, r)
	if !ok {
		return
	}

	run, err := h.runService.Get(r.Context(), projectID, runID)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, run); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Launch handles POST /api/projects/{pid}/runs/{rid}/launch.
// Exactly one of any number of concurrent launches wins; the rest get a
// 409 action_unavailable.
func (h *RunsHandler) Launch(w http.ResponseWriter, r *http.Request) {
	projectID, runID, ok := h.parseIDs(w, r)
	if !ok {
		return
	}

	run, err := h.runService.Launch(r.Context(), projectID, runID)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, run); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Reject handles POST /api/projects/{pid}/runs/{rid}/reject.
func (h *RunsHandler) Reject(w http.ResponseWriter, r *http.Request) {
	projectID, runID, ok := h.parseIDs(w, r)
	if !ok {
		return
	}

	run, err := h.runService.Reject(r.Context(), projectID, runID)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, run); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Complete handles POST /api/projects/{pid}/runs/{rid}/complete.
// Applies the worker's outputs atomically with the status flip. If the
// outputs cannot be applied the run stays running and the worker gets a
// 409 commit_failed to retry or escalate.
func (h *RunsHandler) Complete(w http.ResponseWriter, r *http.Request) {
	projectID, runID, ok := h.parseIDs(w, r)
	if !ok {
		return
	}

	var req CompleteRunRequest
	if !DecodeValidated(w, r, &req, h.logger) {
		return
	}

	run, err := h.runService.Complete(r.Context(), projectID, runID, req.Outputs)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, run); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Fail handles POST /api/projects/{pid}/runs/{rid}/fail.
func (h *RunsHandler) Fail(w http.ResponseWriter, r *http.Request) {
	projectID, runID, ok := h.parseIDs(w, r)
	if !ok {
		return
	}

	var req FailRunRequest
	if !DecodeValidated(w, r, &req, h.logger) {
		return
	}

	run, err := h.runService.Fail(r.Context(), projectID, runID, req.Reason)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, run); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Heartbeat handles POST /api/projects/{pid}/runs/{rid}/heartbeat.
func (h *RunsHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	projectID, runID, ok := h.parseIDs(w, r)
	if !ok {
		return
	}

	if err := h.runService.Heartbeat(r.Context(), projectID, runID); err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *RunsHandler) parseIDs(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	runID, ok := ParseRunID(w, r, h.logger)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	return projectID, runID, true
}
