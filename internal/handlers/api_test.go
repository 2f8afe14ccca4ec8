package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lubesync/internal/models"
	"github.com/ternarybob/lubesync/internal/services/entities"
	"github.com/ternarybob/lubesync/internal/services/setup"
)

// stubCoordinator is a Coordinator with a fixed snapshot.
type stubCoordinator struct {
	snapshot   *models.Snapshot
	refreshErr error
	state      string
}

func (s *stubCoordinator) RequestRefresh(ctx context.Context) error { return s.refreshErr }
func (s *stubCoordinator) TriggerAuto(ctx context.Context)          {}
func (s *stubCoordinator) Snapshot() (*models.Snapshot, bool)       { return s.snapshot, s.snapshot != nil }
func (s *stubCoordinator) State() string                            { return s.state }
func (s *stubCoordinator) Close() error                             { return nil }

func newTestHandler(coordinator *stubCoordinator) *APIHandler {
	logger := arbor.NewLogger()
	return NewAPIHandler(coordinator, entities.NewService(logger), setup.NewService(logger, time.Second), logger)
}

func presentSnapshot() *models.Snapshot {
	return &models.Snapshot{
		Vehicles: map[int64]models.VehicleFacts{
			1: {
				Vehicle: models.Vehicle{ID: 1, Make: "Toyota", Model: "Corolla", Year: 2019},
				Facts: map[models.Category]models.CategoryFact{
					models.CategoryOdometer: {Status: models.StatusPresent, Record: &models.RawRecord{Odometer: 42100}},
				},
			},
		},
		TakenAt: time.Now(),
		Cycle:   3,
	}
}

func TestSnapshotHandler_NoSnapshotYet(t *testing.T) {
	handler := newTestHandler(&stubCoordinator{state: "idle"})

	rec := httptest.NewRecorder()
	handler.SnapshotHandler(rec, httptest.NewRequest(http.MethodGet, "/api/snapshot", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSnapshotHandler_ReturnsSnapshot(t *testing.T) {
	handler := newTestHandler(&stubCoordinator{snapshot: presentSnapshot(), state: "idle"})

	rec := httptest.NewRecorder()
	handler.SnapshotHandler(rec, httptest.NewRequest(http.MethodGet, "/api/snapshot", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var snapshot models.Snapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snapshot))
	assert.Equal(t, int64(3), snapshot.Cycle)
	assert.Contains(t, snapshot.Vehicles, int64(1))
}

func TestSnapshotHandler_RejectsPost(t *testing.T) {
	handler := newTestHandler(&stubCoordinator{state: "idle"})

	rec := httptest.NewRecorder()
	handler.SnapshotHandler(rec, httptest.NewRequest(http.MethodPost, "/api/snapshot", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestEntitiesHandler(t *testing.T) {
	handler := newTestHandler(&stubCoordinator{snapshot: presentSnapshot(), state: "idle"})

	rec := httptest.NewRecorder()
	handler.EntitiesHandler(rec, httptest.NewRequest(http.MethodGet, "/api/entities", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Cycle    int64             `json:"cycle"`
		Count    int               `json:"count"`
		Entities []entities.Entity `json:"entities"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, int64(3), body.Cycle)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "lubesync_1_latest_odometer", body.Entities[0].UniqueID)
}

func TestStatusHandler(t *testing.T) {
	handler := newTestHandler(&stubCoordinator{snapshot: presentSnapshot(), state: "idle"})

	rec := httptest.NewRecorder()
	handler.StatusHandler(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "idle", body["state"])
	assert.Equal(t, float64(3), body["cycle"])
	assert.Equal(t, float64(1), body["vehicles"])
}

func TestRefreshHandler_Error(t *testing.T) {
	handler := newTestHandler(&stubCoordinator{
		snapshot:   presentSnapshot(),
		refreshErr: assert.AnError,
		state:      "failed",
	})

	rec := httptest.NewRecorder()
	handler.RefreshHandler(rec, httptest.NewRequest(http.MethodPost, "/api/refresh", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestSetupValidateHandler_BadBody(t *testing.T) {
	handler := newTestHandler(&stubCoordinator{state: "idle"})

	req := httptest.NewRequest(http.MethodPost, "/api/setup/validate", nil)
	rec := httptest.NewRecorder()
	handler.SetupValidateHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
