package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
)

const pingTimeout = 2 * time.Second

// Health states, ordered from best to worst.
const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

var severity = map[string]int{statusHealthy: 0, statusDegraded: 1, statusUnhealthy: 2}

func (s *Server) registerHealthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "healthCheck",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Reports store, search and event stream status. Responds 503 when any component is unhealthy.",
		Tags:        []string{"Health"},
	}, s.handleHealthCheck)
}

// ComponentHealth describes the health of a single component.
type ComponentHealth struct {
	Status  string `json:"status" enum:"healthy,degraded,unhealthy"`
	Latency string `json:"latency,omitempty" doc:"Time the check took"`
	Message string `json:"message,omitempty"`
}

// HealthResponse contains health check data in API responses.
type HealthResponse struct {
	Status     string                     `json:"status" enum:"healthy,degraded,unhealthy" doc:"Worst component status"`
	Components map[string]ComponentHealth `json:"components"`
}

// HealthOutput wraps the health response for Huma.
type HealthOutput struct {
	Status int
	Body   HealthResponse
}

func (s *Server) handleHealthCheck(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	out := &HealthOutput{
		Status: http.StatusOK,
		Body: HealthResponse{
			Status: statusHealthy,
			Components: map[string]ComponentHealth{
				"database": s.checkStore(ctx),
				"search":   s.checkSearch(),
				"sse":      s.checkStreams(),
			},
		},
	}
	for _, c := range out.Body.Components {
		if severity[c.Status] > severity[out.Body.Status] {
			out.Body.Status = c.Status
		}
	}
	if out.Body.Status == statusUnhealthy {
		out.Status = http.StatusServiceUnavailable
	}
	return out, nil
}

// timed runs check and records how long it took.
func timed(check func() (string, error)) (msg string, latency string, err error) {
	start := time.Now()
	msg, err = check()
	return msg, time.Since(start).String(), err
}

func (s *Server) checkStore(ctx context.Context) ComponentHealth {
	if s.store == nil {
		return ComponentHealth{Status: statusDegraded, Message: "database not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	_, latency, err := timed(func() (string, error) { return "", s.store.Ping(ctx) })
	if err != nil {
		s.logger.Warn("store ping failed", "error", err)
		return ComponentHealth{Status: statusUnhealthy, Latency: latency, Message: "database ping failed"}
	}
	return ComponentHealth{Status: statusHealthy, Latency: latency}
}

func (s *Server) checkSearch() ComponentHealth {
	if s.search == nil {
		return ComponentHealth{Status: statusHealthy, Message: "search disabled"}
	}
	msg, latency, err := timed(func() (string, error) {
		docs, err := s.search.DocumentCount()
		return fmt.Sprintf("%d indexed messages", docs), err
	})
	if err != nil {
		return ComponentHealth{Status: statusUnhealthy, Latency: latency, Message: "search index unreachable"}
	}
	return ComponentHealth{Status: statusHealthy, Latency: latency, Message: msg}
}

func (s *Server) checkStreams() ComponentHealth {
	if s.sseManager == nil {
		return ComponentHealth{Status: statusDegraded, Message: "event streams not configured"}
	}
	return ComponentHealth{Status: statusHealthy, Message: formatSSEStatus(s.sseManager.ClientCount())}
}

func formatSSEStatus(count int) string {
	if count == 0 {
		return "no connected clients"
	}
	if count == 1 {
		return "1 connected client"
	}
	return fmt.Sprintf("%d connected clients", count)
}
