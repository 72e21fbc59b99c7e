package observability

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// HealthChecker reports the client's connection health. The engine
// updates it from connection lifecycle events.
type HealthChecker struct {
	mu               sync.RWMutex
	connectionState  string
	reconnectAttempt int
	pendingCount     int
	sessionID        string
	startTime        time.Time
}

// HealthResponse is the /health payload.
type HealthResponse struct {
	Status           string `json:"status"`
	ConnectionState  string `json:"connection_state"`
	ReconnectAttempt int    `json:"reconnect_attempt,omitempty"`
	PendingMessages  int    `json:"pending_messages"`
	SessionID        string `json:"session_id,omitempty"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
}

// NewHealthChecker creates a checker in the disconnected state.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		connectionState: "disconnected",
		startTime:       time.Now(),
	}
}

// Update records the latest connection snapshot.
func (hc *HealthChecker) Update(state string, attempt, pending int, sessionID string) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.connectionState = state
	hc.reconnectAttempt = attempt
	hc.pendingCount = pending
	hc.sessionID = sessionID
}

// Handler serves the health snapshot. Connected is healthy,
// reconnecting is degraded, disconnected is unhealthy.
func (hc *HealthChecker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hc.mu.RLock()
		resp := HealthResponse{
			ConnectionState:  hc.connectionState,
			ReconnectAttempt: hc.reconnectAttempt,
			PendingMessages:  hc.pendingCount,
			SessionID:        hc.sessionID,
			UptimeSeconds:    int64(time.Since(hc.startTime).Seconds()),
		}
		hc.mu.RUnlock()

		code := http.StatusOK
		switch resp.ConnectionState {
		case "connected":
			resp.Status = "healthy"
		case "reconnecting":
			resp.Status = "degraded"
		default:
			resp.Status = "unhealthy"
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// LivenessHandler returns a simple liveness probe handler.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
	}
}
