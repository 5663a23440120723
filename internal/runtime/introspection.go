package runtime

import (
	"net/http"
	"strings"
	"time"

	configpkg "github.com/drblury/signalflow/internal/runtime/config"
	"github.com/drblury/signalflow/internal/runtime/jsoncodec"
	transportpkg "github.com/drblury/signalflow/transport"
)

// CortexSnapshot is the body of GET /api/circuits.
type CortexSnapshot struct {
	ID          string                      `json:"id"`
	Transport   string                      `json:"transport"`
	Transports  []transportpkg.Capabilities `json:"transports"`
	Circuits    []CircuitStats              `json:"circuits"`
	Resources   ResourceUsage               `json:"resources"`
	StartedAt   time.Time                   `json:"started_at"`
	CollectedAt time.Time                   `json:"collected_at"`
}

// Snapshot collects the stats of every circuit together with process
// resource usage.
func (c *Cortex) Snapshot() CortexSnapshot {
	circuits := c.Circuits()
	now := time.Now()
	snap := CortexSnapshot{
		ID:          c.Subject().ID,
		Transport:   c.Conf.EffectiveTransport(),
		Transports:  c.transports.Describe(),
		Circuits:    make([]CircuitStats, 0, len(circuits)),
		Resources:   c.resourceTracker.Snapshot(),
		StartedAt:   c.created,
		CollectedAt: now,
	}
	for _, circuit := range circuits {
		stats := circuit.Stats()
		stats.CollectedAt = now
		snap.Circuits = append(snap.Circuits, stats)
	}
	return snap
}

// StartIntrospectionServer mounts /api/circuits when introspection is enabled.
func (c *Cortex) StartIntrospectionServer() {
	if !c.Conf.IntrospectionEnabled {
		return
	}

	port := c.Conf.IntrospectionPort
	if port == 0 {
		port = configpkg.DefaultIntrospectionPort
	}

	c.RegisterHTTPHandler(port, "/api/circuits", http.HandlerFunc(c.handleGetCircuits))
}

func (c *Cortex) handleGetCircuits(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if len(c.Conf.IntrospectionCORSAllowedOrigins) > 0 {
		origin := r.Header.Get("Origin")
		if allowed := c.getAllowedCORSOrigin(origin); allowed != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowed)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
	}

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodGet, http.MethodHead:
	default:
		w.Header().Set("Allow", "GET, HEAD, OPTIONS")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := jsoncodec.Marshal(c.Snapshot())
	if err != nil {
		c.Logger.Error("Failed to encode circuit snapshot", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	_, _ = w.Write(body)
}

// getAllowedCORSOrigin returns the Access-Control-Allow-Origin value for
// requestOrigin, or "" when it is not allowed.
func (c *Cortex) getAllowedCORSOrigin(requestOrigin string) string {
	for _, allowed := range c.Conf.IntrospectionCORSAllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if strings.EqualFold(allowed, requestOrigin) {
			return requestOrigin
		}
	}
	return ""
}
