package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"

	"github.com/tagmill/tagmill/internal/service"
)

// HealthResponse is the JSON response from the /health endpoint.
type HealthResponse struct {
	Status  string            `json:"status"`            // "healthy" or "unhealthy"
	Checks  map[string]string `json:"checks"`            // Component check results
	Version string            `json:"version,omitempty"` // Optional version info
}

// HealthChecker verifies component health.
type HealthChecker struct {
	resolver *service.ResolverService
	history  *service.HistoryService
	version  string
}

// NewHealthChecker creates a HealthChecker with optional components.
// Pass nil for components that aren't available.
func NewHealthChecker(resolver *service.ResolverService, history *service.HistoryService, version string) *HealthChecker {
	return &HealthChecker{
		resolver: resolver,
		history:  history,
		version:  version,
	}
}

// Check performs health checks on all components.
func (h *HealthChecker) Check() HealthResponse {
	checks := make(map[string]string)
	healthy := true

	if h.resolver != nil {
		rules := h.resolver.CatalogSize()
		if rules == 0 {
			checks["catalog"] = "empty"
			healthy = false
		} else {
			checks["catalog"] = fmt.Sprintf("ok: %d rules", rules)
		}
	} else {
		checks["catalog"] = "not configured"
	}

	if h.history != nil {
		depth := h.history.ChannelDepth()
		capacity := h.history.ChannelCapacity()
		percentFull := 0
		if capacity > 0 {
			percentFull = depth * 100 / capacity
		}
		if percentFull > 90 {
			// >90% full means the history writer is under backpressure.
			checks["history"] = fmt.Sprintf("degraded: %d/%d (%d%%)", depth, capacity, percentFull)
			healthy = false
		} else {
			checks["history"] = fmt.Sprintf("ok: %d/%d (%d%%)", depth, capacity, percentFull)
		}
		if drops := h.history.DroppedRecords(); drops > 0 {
			checks["history_drops"] = fmt.Sprintf("%d dropped", drops)
		}
	} else {
		checks["history"] = "not configured"
	}

	checks["goroutines"] = fmt.Sprintf("%d", runtime.NumGoroutine())

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	return HealthResponse{
		Status:  status,
		Checks:  checks,
		Version: h.version,
	}
}

// Handler returns an HTTP handler for the health endpoint.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := h.Check()

		w.Header().Set("Content-Type", "application/json")
		if health.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		_ = json.NewEncoder(w).Encode(health)
	})
}
