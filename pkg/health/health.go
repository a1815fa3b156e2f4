package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/saaga0h/jeeves-sleeplight/pkg/mqtt"
	"github.com/saaga0h/jeeves-sleeplight/pkg/postgres"
	"github.com/saaga0h/jeeves-sleeplight/pkg/redis"
)

// checkTimeout bounds each dependency probe in the detailed check
const checkTimeout = 2 * time.Second

// Checker provides health check functionality for agents
type Checker struct {
	mqtt     mqtt.Client
	redis    redis.Client
	postgres postgres.Client
	logger   *slog.Logger
}

// NewChecker creates a new health checker. postgres may be nil when history is
// disabled.
func NewChecker(mqttClient mqtt.Client, redisClient redis.Client, postgresClient postgres.Client, logger *slog.Logger) *Checker {
	return &Checker{
		mqtt:     mqttClient,
		redis:    redisClient,
		postgres: postgresClient,
		logger:   logger,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp string    `json:"timestamp"`
	Services  *Services `json:"services,omitempty"`
}

// Services represents the status of external dependencies
type Services struct {
	Redis    string `json:"redis"`
	MQTT     string `json:"mqtt"`
	Postgres string `json:"postgres"`
}

// HandlerFunc returns 200 while the process is alive without checking
// dependencies
func (h *Checker) HandlerFunc() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.write(w, http.StatusOK, HealthResponse{
			Status:    "ok",
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		})
	}
}

// DetailedHandlerFunc returns a handler that probes every dependency
func (h *Checker) DetailedHandlerFunc() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		defer cancel()

		services := h.Check(ctx)

		status := "healthy"
		statusCode := http.StatusOK
		if services.Redis != "connected" || services.MQTT != "connected" || services.Postgres == "disconnected" {
			status = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		h.write(w, statusCode, HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			Services:  services,
		})
	}
}

// Check probes MQTT, Redis and Postgres
func (h *Checker) Check(ctx context.Context) *Services {
	services := &Services{
		Redis:    "disconnected",
		MQTT:     "disconnected",
		Postgres: "disabled",
	}

	if h.mqtt != nil && h.mqtt.IsConnected() {
		services.MQTT = "connected"
	}

	if h.redis != nil {
		if err := h.redis.Ping(ctx); err != nil {
			h.logger.Warn("Redis health probe failed", "error", err)
		} else {
			services.Redis = "connected"
		}
	}

	if h.postgres != nil {
		status, err := h.postgres.HealthCheck(ctx)
		switch {
		case err != nil:
			h.logger.Warn("Postgres health probe failed", "error", err)
			services.Postgres = "disconnected"
		case !status.Connected:
			h.logger.Warn("Postgres health probe failed", "error", status.Error)
			services.Postgres = "disconnected"
		default:
			services.Postgres = "connected"
		}
	}

	return services
}

func (h *Checker) write(w http.ResponseWriter, statusCode int, response HealthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("Failed to encode health response", "error", err)
	}
}
