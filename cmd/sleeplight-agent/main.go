package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/saaga0h/jeeves-sleeplight/internal/api"
	"github.com/saaga0h/jeeves-sleeplight/internal/estimator"
	"github.com/saaga0h/jeeves-sleeplight/internal/light"
	"github.com/saaga0h/jeeves-sleeplight/internal/sleeplight"
	"github.com/saaga0h/jeeves-sleeplight/internal/store"
	"github.com/saaga0h/jeeves-sleeplight/pkg/config"
	"github.com/saaga0h/jeeves-sleeplight/pkg/health"
	"github.com/saaga0h/jeeves-sleeplight/pkg/mqtt"
	"github.com/saaga0h/jeeves-sleeplight/pkg/postgres"
	"github.com/saaga0h/jeeves-sleeplight/pkg/redis"
)

func main() {
	// Load configuration with hierarchy: defaults → env → flags
	cfg := config.NewConfig()
	cfg.LoadFromEnv()
	cfg.LoadFromFlags()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("Starting J.E.E.V.E.S. Sleep Light Agent",
		"version", "1.0",
		"service_name", cfg.ServiceName,
		"mqtt_broker", cfg.MQTTAddress(),
		"redis_host", cfg.RedisAddress(),
		"postgres", fmt.Sprintf("%s:%d/%s", cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresDB),
		"model_path", cfg.ModelPath,
		"log_level", cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Initialize clients
	mqttClient := mqtt.NewClient(cfg, logger)

	redisClient := redis.NewClient(cfg, logger)
	if err := redisClient.Ping(ctx); err != nil {
		logger.Error("Failed to ping Redis", "error", err)
		os.Exit(1)
	}

	pgClient := postgres.NewClient(cfg, logger)
	if err := pgClient.Connect(ctx); err != nil {
		logger.Error("Failed to connect to postgres", "error", err)
		os.Exit(1)
	}

	state := store.NewState(redisClient, cfg, logger.With("component", "state"))
	history := store.NewHistory(pgClient, logger.With("component", "history"))
	if err := history.EnsureSchema(ctx); err != nil {
		logger.Error("Failed to prepare history schema", "error", err)
		os.Exit(1)
	}

	estimators, err := buildEstimators(cfg, history, logger)
	if err != nil {
		logger.Error("Failed to set up quality estimation", "error", err)
		os.Exit(1)
	}

	agent := light.NewAgent(mqttClient, state, history, estimators, cfg, logger.With("component", "agent"))

	healthChecker := health.NewChecker(mqttClient, redisClient, pgClient, logger)
	healthServer := startHealthServer(cfg.HealthPort, healthChecker, logger)

	apiServer := api.NewRouter(cfg, api.NewHandler(state, agent, logger))
	go func() {
		logger.Info("Starting API server", "port", cfg.APIPort)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("API server error", "error", err)
		}
	}()

	agentErr := make(chan error, 1)
	go func() {
		if err := agent.Start(ctx); err != nil {
			logger.Error("Agent error", "error", err)
			agentErr <- err
		}
	}()

	select {
	case <-sigChan:
		logger.Info("Shutdown signal received (SIGTERM/SIGINT)")
	case err := <-agentErr:
		logger.Error("Agent failed", "error", err)
	}

	logger.Info("Initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down API server", "error", err)
	}

	agent.Stop()

	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down health server", "error", err)
	}

	if err := redisClient.Close(); err != nil {
		logger.Error("Error closing Redis connection", "error", err)
	}
	if err := pgClient.Disconnect(); err != nil {
		logger.Error("Error closing Postgres connection", "error", err)
	}

	logger.Info("Sleep light agent shutdown complete")
}

// buildEstimators returns a per-user estimator: the user's similar past nights
// first, then the population model when one is configured
func buildEstimators(cfg *config.Config, history *store.History, logger *slog.Logger) (light.EstimatorSource, error) {
	timeout := time.Duration(cfg.EstimatorTimeoutMs) * time.Millisecond
	similar := estimator.NewSimilarNights(history, cfg.SimilarNeighbors, cfg.MinNeighbors)

	var forest sleeplight.QualityEstimator
	if cfg.ModelPath != "" {
		model, err := estimator.LoadModel(cfg.ModelPath)
		if err != nil {
			return nil, err
		}
		forest = estimator.WithTimeout(estimator.NewForestEstimator(model), timeout)
		logger.Info("Loaded sleep quality model",
			"name", model.Name,
			"trees", len(model.Trees),
			"features", len(model.Features))
	} else {
		logger.Warn("No model configured, estimating from recorded nights only")
	}

	return func(userID string) sleeplight.QualityEstimator {
		chain := estimator.Chain{estimator.WithTimeout(similar.ForUser(userID), timeout)}
		if forest != nil {
			chain = append(chain, forest)
		}
		return chain
	}, nil
}

func startHealthServer(port int, checker *health.Checker, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", checker.HandlerFunc())
	mux.HandleFunc("/health/detailed", checker.DetailedHandlerFunc())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		logger.Info("Starting health check server", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Health server error", "error", err)
		}
	}()

	return server
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
