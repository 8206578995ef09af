package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/elys-network/yieldvault/internal/logger"
	"github.com/elys-network/yieldvault/internal/state"
	"github.com/elys-network/yieldvault/internal/types"
)

var webLogger = logger.GetForComponent("web_server")

// VaultReader is the read side of the vault the API exposes.
type VaultReader interface {
	Summary(ctx context.Context) (types.VaultSummary, error)
	GetAllStrategiesInfo(ctx context.Context) []types.StrategyInfo
}

// CycleReader serves persisted maintenance cycles.
type CycleReader interface {
	RecentCycles(ctx context.Context, limit int) ([]types.CycleSnapshot, error)
	GetCycleMetrics(ctx context.Context) (state.CycleMetrics, error)
	Ping(ctx context.Context) error
}

// WebServer handles the read-only observability API.
type WebServer struct {
	router *mux.Router
	port   string
	vault  VaultReader
	cycles CycleReader
	start  time.Time
}

// NewWebServer creates a new web server instance. cycles may be nil when nothing is persisted.
func NewWebServer(port string, vault VaultReader, cycles CycleReader) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router: mux.NewRouter(),
		port:   port,
		vault:  vault,
		cycles: cycles,
		start:  time.Now(),
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET", "OPTIONS")

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET", "OPTIONS")
	api.HandleFunc("/strategies", ws.handleGetStrategies).Methods("GET", "OPTIONS")
	api.HandleFunc("/strategies/{id:[0-9]+}", ws.handleGetStrategy).Methods("GET", "OPTIONS")
	api.HandleFunc("/vault/summary", ws.handleGetVaultSummary).Methods("GET", "OPTIONS")
	api.HandleFunc("/cycles", ws.handleGetCycles).Methods("GET", "OPTIONS")
	api.HandleFunc("/cycles/latest", ws.handleGetLatestCycle).Methods("GET", "OPTIONS")
	api.HandleFunc("/performance", ws.handleGetPerformanceMetrics).Methods("GET", "OPTIONS")

	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Handler exposes the router, e.g. for httptest.
func (ws *WebServer) Handler() http.Handler {
	return ws.router
}

// Start serves until ctx is cancelled and then shuts down gracefully.
func (ws *WebServer) Start(ctx context.Context) error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		webLogger.Info().Msg("Shutting down web server")
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// handleHealth reports process, database and last-cycle status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	hasErrors := false
	dbHealthy := false
	cycleInfo := map[string]interface{}{
		"current_cycle":     0,
		"last_cycle_time":   nil,
		"last_cycle_status": "unknown",
		"failures":          0,
	}

	if ws.cycles != nil {
		dbHealthy = true
		if err := ws.cycles.Ping(r.Context()); err != nil {
			dbHealthy = false
			hasErrors = true
		}
		if latest, err := ws.cycles.RecentCycles(r.Context(), 1); err == nil && len(latest) > 0 {
			cycle := latest[0]
			status := "completed"
			if cycle.Error != "" {
				status = "failed"
				hasErrors = true
			}
			cycleInfo = map[string]interface{}{
				"current_cycle":     cycle.CycleNumber,
				"last_cycle_time":   cycle.Timestamp,
				"last_cycle_status": status,
				"failures":          len(cycle.Failures),
			}
		}
	}

	vaultHealthy := true
	if _, err := ws.vault.Summary(r.Context()); err != nil {
		vaultHealthy = false
		hasErrors = true
	}

	overallStatus := "OK"
	if hasErrors {
		overallStatus = "DEGRADED"
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
			"uptime_seconds":   int64(time.Since(ws.start).Seconds()),
		},
		"component": map[string]interface{}{
			"name":    "yield-vault-keeper",
			"version": "1.0.0",
		},
		"vault_status": map[string]interface{}{
			"vault_healthy":     vaultHealthy,
			"database_healthy":  dbHealthy,
			"has_recent_errors": hasErrors,
			"cycle_info":        cycleInfo,
		},
	}

	statusCode := http.StatusOK
	if hasErrors {
		statusCode = http.StatusServiceUnavailable
	}
	ws.writeJSONResponse(w, statusCode, response)
}

// handleGetStrategies returns every registered strategy with live readings
func (ws *WebServer) handleGetStrategies(w http.ResponseWriter, r *http.Request) {
	infos := ws.vault.GetAllStrategiesInfo(r.Context())
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"strategies": infos,
		"count":      len(infos),
	})
}

func (ws *WebServer) handleGetStrategy(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid strategy ID")
		return
	}
	for _, info := range ws.vault.GetAllStrategiesInfo(r.Context()) {
		if uint64(info.ID) == id {
			ws.writeJSONResponse(w, http.StatusOK, info)
			return
		}
	}
	ws.writeErrorResponse(w, http.StatusNotFound, "Strategy not found")
}

// handleGetVaultSummary returns vault summary statistics
func (ws *WebServer) handleGetVaultSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := ws.vault.Summary(r.Context())
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get vault summary")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve vault summary")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, summary)
}

// handleGetCycles returns the latest cycles, newest first
func (ws *WebServer) handleGetCycles(w http.ResponseWriter, r *http.Request) {
	if ws.cycles == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Cycle history is not persisted")
		return
	}

	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 || parsed > state.MaxRecentCycles {
			ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = parsed
	}

	cycles, err := ws.cycles.RecentCycles(r.Context(), limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get recent cycles")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve cycles")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"cycles": cycles,
		"count":  len(cycles),
		"limit":  limit,
	})
}

// handleGetLatestCycle returns the most recent cycle
func (ws *WebServer) handleGetLatestCycle(w http.ResponseWriter, r *http.Request) {
	if ws.cycles == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Cycle history is not persisted")
		return
	}
	cycles, err := ws.cycles.RecentCycles(r.Context(), 1)
	if err != nil || len(cycles) == 0 {
		webLogger.Error().Err(err).Msg("Failed to get latest cycle")
		ws.writeErrorResponse(w, http.StatusNotFound, "No cycles found")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, cycles[0])
}

// handleGetPerformanceMetrics returns metrics aggregated over every cycle
func (ws *WebServer) handleGetPerformanceMetrics(w http.ResponseWriter, r *http.Request) {
	if ws.cycles == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Cycle history is not persisted")
		return
	}
	metrics, err := ws.cycles.GetCycleMetrics(r.Context())
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get performance metrics")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve performance metrics")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, metrics)
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	ws.writeJSONResponse(w, statusCode, map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	})
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		webLogger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
