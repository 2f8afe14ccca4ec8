package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Snapshot data
	mux.HandleFunc("/api/snapshot", s.app.APIHandler.SnapshotHandler) // GET - last published snapshot
	mux.HandleFunc("/api/entities", s.app.APIHandler.EntitiesHandler) // GET - presentation entities
	mux.HandleFunc("/api/refresh", s.app.APIHandler.RefreshHandler)   // POST - on-demand refresh
	mux.HandleFunc("/api/status", s.app.APIHandler.StatusHandler)     // GET - coordinator state

	// API routes - Setup
	mux.HandleFunc("/api/setup/validate", s.app.APIHandler.SetupValidateHandler) // POST - validate credentials

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	return mux
}
