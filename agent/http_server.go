package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// startHTTPServer starts the agent's local HTTP server. It exposes health
// and status endpoints for host-side monitoring; all control traffic goes
// through the store, never through this server.
func (a *Agent) startHTTPServer(ctx context.Context, port int) error {
	if port == 0 {
		// HTTP server disabled
		return nil
	}

	router := mux.NewRouter()

	// Health check endpoint
	router.HandleFunc("/health", a.handleHealth).Methods("GET")

	// Local server status endpoints
	router.HandleFunc("/servers", a.handleListServers).Methods("GET")
	router.HandleFunc("/servers/{id}/status", a.handleServerStatus).Methods("GET")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	log.Printf("Starting agent HTTP server on port %d", port)

	// Start server in background
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	// Shutdown handler
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
	}()

	return nil
}

// handleHealth returns agent health status
func (a *Agent) handleHealth(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(a.startTime)

	response := map[string]interface{}{
		"status":            "healthy",
		"hostname":          a.hostname,
		"uptime":            uptime.Seconds(),
		"configuredServers": len(a.local.Servers),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleListServers returns the configured servers and their runtime state
func (a *Agent) handleListServers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	statuses := make(map[string]interface{}, len(a.local.Servers))
	for id, cfg := range a.local.Servers {
		runtime, ok := a.runtimes[cfg.RuntimeKind()]
		if !ok {
			continue
		}
		status, err := runtime.Status(ctx, id, cfg)
		if err != nil {
			statuses[id] = map[string]string{"error": err.Error()}
			continue
		}
		statuses[id] = status
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"hostname": a.hostname,
		"count":    len(statuses),
		"servers":  statuses,
	})
}

// handleServerStatus returns the runtime state of one server
func (a *Agent) handleServerStatus(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	serverID := vars["id"]

	cfg, ok := a.local.ServerConfigFor(serverID)
	if !ok {
		http.Error(w, "Server not configured on this host", http.StatusNotFound)
		return
	}

	runtime, ok := a.runtimes[cfg.RuntimeKind()]
	if !ok {
		http.Error(w, "Runtime not available", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	status, err := runtime.Status(ctx, serverID, cfg)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to read status: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}
