// Dashboard API server — REST endpoints for job records plus a WebSocket
// feed of live sync events.
package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/syncboard/syncboard/pkg/config"
	"github.com/syncboard/syncboard/pkg/infrastructure/persistence"
	"github.com/syncboard/syncboard/pkg/logger"
	"github.com/syncboard/syncboard/pkg/sync"
)

// DecompositionService is the app-layer operation behind POST /api/jobs.
type DecompositionService interface {
	StartDecomposition(ctx context.Context, planID int64, taskID string) (string, error)
}

// Server is the HTTP API server for the syncboard dashboard.
type Server struct {
	config         *config.Config
	bus            *sync.Bus
	store          *persistence.JobStore
	decompositions DecompositionService
	wsHub          *WSHub
	eventBridge    *EventBridge
	startTime      time.Time
	server         *http.Server
}

// NewServer creates a new API server instance.
func NewServer(cfg *config.Config, bus *sync.Bus, store *persistence.JobStore, decomp DecompositionService) *Server {
	// Secure-by-default: auto-generate an API key if none is configured.
	// Random key per session, printed once at startup; set gateway.api_key
	// or SYNCBOARD_API_KEY for a persistent one.
	if cfg.Gateway.APIKey == "" {
		raw := make([]byte, 24)
		if _, err := rand.Read(raw); err == nil {
			cfg.Gateway.APIKey = hex.EncodeToString(raw)
			logger.InfoCF("api", "Generated session API key", map[string]interface{}{
				"api_key": cfg.Gateway.APIKey,
			})
		}
	}

	s := &Server{
		config:         cfg,
		bus:            bus,
		store:          store,
		decompositions: decomp,
		startTime:      time.Now(),
	}
	s.wsHub = NewWSHub(s)
	s.eventBridge = NewEventBridge(bus, s.wsHub)
	return s
}

// Start begins listening on the configured host:port. Non-blocking; the
// listener runs until Stop or ctx cancellation.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)

	mux.HandleFunc("/api/jobs", s.handleJobs)
	mux.HandleFunc("/api/jobs/", s.handleJobByID)

	mux.HandleFunc("/api/hooks/{source}", s.handleHook)

	// WebSocket for live sync events
	mux.HandleFunc("/api/ws", s.wsHub.HandleWebSocket)

	addr := s.config.ListenAddr()
	s.server = &http.Server{
		Addr:         addr,
		Handler:      corsMiddleware(authMiddleware(s.config.Gateway.APIKey, mux)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	logger.InfoCF("api", "Dashboard API server starting", map[string]interface{}{
		"addr": addr,
	})

	go s.wsHub.Run(ctx)
	s.eventBridge.Start()

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.ErrorCF("api", "Server error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	s.eventBridge.Stop()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// --- Middleware ---

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" || isAllowedOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "http://localhost")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// isAllowedOrigin checks if the origin is a trusted localhost address.
func isAllowedOrigin(origin string) bool {
	for _, prefix := range []string{"http://localhost", "http://127.0.0.1", "https://localhost", "https://127.0.0.1"} {
		if strings.HasPrefix(origin, prefix) {
			return true
		}
	}
	return false
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
		"subscribers":    s.bus.SubscriberCount(),
	})
}

// handleJobs serves GET /api/jobs (recent records) and POST /api/jobs
// (submit a decomposition).
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		recent, err := s.store.List(50)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": recent})

	case http.MethodPost:
		var req struct {
			PlanID int64  `json:"plan_id"`
			TaskID string `json:"task_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
			return
		}
		if req.PlanID == 0 || req.TaskID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "plan_id and task_id required"})
			return
		}

		jobID, err := s.decompositions.StartDecomposition(r.Context(), req.PlanID, req.TaskID)
		if err != nil {
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJobByID serves GET /api/jobs/{id} from the local store.
func (s *Server) handleJobByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if jobID == "" || strings.Contains(jobID, "/") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid job id"})
		return
	}

	job, err := s.store.Get(jobID)
	if errors.Is(err, persistence.ErrJobNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("job %s not found", jobID)})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
