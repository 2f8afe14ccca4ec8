package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lubesync/internal/common"
	"github.com/ternarybob/lubesync/internal/interfaces"
	"github.com/ternarybob/lubesync/internal/models"
	"github.com/ternarybob/lubesync/internal/services/entities"
	"github.com/ternarybob/lubesync/internal/services/setup"
)

// APIHandler serves the coordinator and setup endpoints.
type APIHandler struct {
	coordinator interfaces.Coordinator
	entities    *entities.Service
	setup       *setup.Service
	logger      arbor.ILogger
	startTime   time.Time
}

// NewAPIHandler creates a new API handler.
func NewAPIHandler(coordinator interfaces.Coordinator, entityService *entities.Service, setupService *setup.Service, logger arbor.ILogger) *APIHandler {
	return &APIHandler{
		coordinator: coordinator,
		entities:    entityService,
		setup:       setupService,
		logger:      logger,
		startTime:   time.Now(),
	}
}

// HealthHandler returns service health status
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"uptime": time.Since(h.startTime).String(),
	})
}

// VersionHandler returns build version information
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.Build,
		"commit":  common.GitCommit,
	})
}

// StatusHandler reports the coordinator state and snapshot age.
func (h *APIHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	status := map[string]interface{}{
		"state": h.coordinator.State(),
	}
	if snapshot, ok := h.coordinator.Snapshot(); ok {
		status["cycle"] = snapshot.Cycle
		status["taken_at"] = snapshot.TakenAt.Format(time.RFC3339)
		status["vehicles"] = len(snapshot.Vehicles)
	}

	WriteJSON(w, http.StatusOK, status)
}

// SnapshotHandler returns the last published snapshot. Reads never wait on
// an in-flight cycle.
func (h *APIHandler) SnapshotHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	snapshot, ok := h.coordinator.Snapshot()
	if !ok {
		WriteError(w, http.StatusNotFound, "No snapshot published yet")
		return
	}

	WriteJSON(w, http.StatusOK, snapshot)
}

// EntitiesHandler returns presentation entities built from the snapshot.
func (h *APIHandler) EntitiesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	snapshot, ok := h.coordinator.Snapshot()
	if !ok {
		WriteError(w, http.StatusNotFound, "No snapshot published yet")
		return
	}

	result := h.entities.Build(snapshot)
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"cycle":    snapshot.Cycle,
		"count":    len(result),
		"entities": result,
	})
}

// RefreshHandler runs an on-demand refresh cycle. If a cycle is already in
// flight the request attaches to it instead of starting another.
func (h *APIHandler) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	h.logger.Info().Str("remote", r.RemoteAddr).Msg("On-demand refresh requested")

	if err := h.coordinator.RequestRefresh(r.Context()); err != nil {
		WriteError(w, http.StatusBadGateway, err.Error())
		return
	}

	snapshot, _ := h.coordinator.Snapshot()
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"cycle":  snapshot.Cycle,
	})
}

// SetupValidateHandler validates a credential set against the remote
// service without touching the running coordinator.
func (h *APIHandler) SetupValidateHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var creds models.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.setup.Validate(r.Context(), creds); err != nil {
		switch {
		case errors.Is(err, setup.ErrInvalidAuth):
			WriteJSON(w, http.StatusUnauthorized, map[string]string{
				"status": "error",
				"reason": "invalid_auth",
				"error":  err.Error(),
			})
		case errors.Is(err, setup.ErrCannotConnect):
			WriteJSON(w, http.StatusBadGateway, map[string]string{
				"status": "error",
				"reason": "cannot_connect",
				"error":  err.Error(),
			})
		default:
			WriteError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	WriteSuccess(w, "Credentials validated")
}
