package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// Config holds the configuration for the sleep lighting agent
type Config struct {
	// MQTT configuration
	MQTTBroker   string
	MQTTPort     int
	MQTTUser     string
	MQTTPassword string
	MQTTClientID string

	// Redis configuration
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	// Postgres configuration
	PostgresHost               string
	PostgresPort               int
	PostgresUser               string
	PostgresPassword           string
	PostgresDB                 string
	PostgresSSLMode            string
	PostgresMaxConnections     int
	PostgresMaxIdleConnections int
	PostgresConnMaxLifetime    time.Duration

	// Service configuration
	ServiceName string
	HealthPort  int
	APIPort     int
	LogLevel    string

	// Daylight context
	Latitude  float64
	Longitude float64

	// Light agent configuration
	DecisionIntervalSec   int
	ManualOverrideMinutes int
	MinDecisionIntervalMs int
	UserLocations         map[string]string

	// Quality estimation
	ModelPath          string
	SimilarNeighbors   int
	MinNeighbors       int
	EstimatorTimeoutMs int

	// State retention
	PatternHistory int
	PlanTTLMinutes int
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		MQTTBroker: "localhost",
		MQTTPort:   1883,

		RedisHost: "localhost",
		RedisPort: 6379,
		RedisDB:   0,

		PostgresHost:               "localhost",
		PostgresPort:               5432,
		PostgresUser:               "jeeves",
		PostgresDB:                 "sleeplight",
		PostgresSSLMode:            "disable",
		PostgresMaxConnections:     10,
		PostgresMaxIdleConnections: 2,
		PostgresConnMaxLifetime:    30 * time.Minute,

		ServiceName: "sleeplight-agent",
		HealthPort:  8080,
		APIPort:     3003,
		LogLevel:    "info",

		// Seoul coordinates
		Latitude:  37.5665,
		Longitude: 126.9780,

		DecisionIntervalSec:   60,
		ManualOverrideMinutes: 30,
		MinDecisionIntervalMs: 30000,
		UserLocations:         map[string]string{},

		SimilarNeighbors:   7,
		MinNeighbors:       3,
		EstimatorTimeoutMs: 2000,

		PatternHistory: 60,
		PlanTTLMinutes: 180,
	}
}

// LoadFromEnv loads configuration from environment variables with JEEVES_ prefix
func (c *Config) LoadFromEnv() {
	// MQTT configuration
	envString("JEEVES_MQTT_BROKER", &c.MQTTBroker)
	envInt("JEEVES_MQTT_PORT", &c.MQTTPort)
	envString("JEEVES_MQTT_USER", &c.MQTTUser)
	envString("JEEVES_MQTT_PASSWORD", &c.MQTTPassword)
	envString("JEEVES_MQTT_CLIENT_ID", &c.MQTTClientID)

	// Redis configuration
	envString("JEEVES_REDIS_HOST", &c.RedisHost)
	envInt("JEEVES_REDIS_PORT", &c.RedisPort)
	envString("JEEVES_REDIS_PASSWORD", &c.RedisPassword)
	envInt("JEEVES_REDIS_DB", &c.RedisDB)

	// Postgres configuration
	envString("JEEVES_POSTGRES_HOST", &c.PostgresHost)
	envInt("JEEVES_POSTGRES_PORT", &c.PostgresPort)
	envString("JEEVES_POSTGRES_USER", &c.PostgresUser)
	envString("JEEVES_POSTGRES_PASSWORD", &c.PostgresPassword)
	envString("JEEVES_POSTGRES_DB", &c.PostgresDB)
	envString("JEEVES_POSTGRES_SSLMODE", &c.PostgresSSLMode)
	envInt("JEEVES_POSTGRES_MAX_CONNECTIONS", &c.PostgresMaxConnections)
	envInt("JEEVES_POSTGRES_MAX_IDLE_CONNECTIONS", &c.PostgresMaxIdleConnections)
	if v := os.Getenv("JEEVES_POSTGRES_CONN_MAX_LIFETIME"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.PostgresConnMaxLifetime = d
		}
	}

	// Service configuration
	envString("JEEVES_SERVICE_NAME", &c.ServiceName)
	envInt("JEEVES_HEALTH_PORT", &c.HealthPort)
	envInt("JEEVES_API_PORT", &c.APIPort)
	envString("JEEVES_LOG_LEVEL", &c.LogLevel)

	// Daylight context
	envFloat("JEEVES_LATITUDE", &c.Latitude)
	envFloat("JEEVES_LONGITUDE", &c.Longitude)

	// Light agent configuration
	envInt("JEEVES_DECISION_INTERVAL_SEC", &c.DecisionIntervalSec)
	envInt("JEEVES_MANUAL_OVERRIDE_MINUTES", &c.ManualOverrideMinutes)
	envInt("JEEVES_MIN_DECISION_INTERVAL_MS", &c.MinDecisionIntervalMs)
	if v := os.Getenv("JEEVES_USER_LOCATIONS"); v != "" {
		c.UserLocations = ParseUserLocations(v)
	}

	// Quality estimation
	envString("JEEVES_MODEL_PATH", &c.ModelPath)
	envInt("JEEVES_SIMILAR_NEIGHBORS", &c.SimilarNeighbors)
	envInt("JEEVES_MIN_NEIGHBORS", &c.MinNeighbors)
	envInt("JEEVES_ESTIMATOR_TIMEOUT_MS", &c.EstimatorTimeoutMs)

	// State retention
	envInt("JEEVES_PATTERN_HISTORY", &c.PatternHistory)
	envInt("JEEVES_PLAN_TTL_MINUTES", &c.PlanTTLMinutes)
}

// LoadFromFlags parses command-line flags and overrides config values
func (c *Config) LoadFromFlags() {
	c.RegisterFlags(pflag.CommandLine)
	pflag.Parse()
}

// RegisterFlags binds every config field to a flag on fs
func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	// MQTT flags
	fs.StringVar(&c.MQTTBroker, "mqtt-broker", c.MQTTBroker, "MQTT broker hostname")
	fs.IntVar(&c.MQTTPort, "mqtt-port", c.MQTTPort, "MQTT broker port")
	fs.StringVar(&c.MQTTUser, "mqtt-user", c.MQTTUser, "MQTT username")
	fs.StringVar(&c.MQTTPassword, "mqtt-password", c.MQTTPassword, "MQTT password")
	fs.StringVar(&c.MQTTClientID, "mqtt-client-id", c.MQTTClientID, "MQTT client ID")

	// Redis flags
	fs.StringVar(&c.RedisHost, "redis-host", c.RedisHost, "Redis hostname")
	fs.IntVar(&c.RedisPort, "redis-port", c.RedisPort, "Redis port")
	fs.StringVar(&c.RedisPassword, "redis-password", c.RedisPassword, "Redis password")
	fs.IntVar(&c.RedisDB, "redis-db", c.RedisDB, "Redis database number")

	// Postgres flags
	fs.StringVar(&c.PostgresHost, "postgres-host", c.PostgresHost, "Postgres hostname")
	fs.IntVar(&c.PostgresPort, "postgres-port", c.PostgresPort, "Postgres port")
	fs.StringVar(&c.PostgresUser, "postgres-user", c.PostgresUser, "Postgres user")
	fs.StringVar(&c.PostgresPassword, "postgres-password", c.PostgresPassword, "Postgres password")
	fs.StringVar(&c.PostgresDB, "postgres-db", c.PostgresDB, "Postgres database name")
	fs.StringVar(&c.PostgresSSLMode, "postgres-sslmode", c.PostgresSSLMode, "Postgres sslmode")
	fs.IntVar(&c.PostgresMaxConnections, "postgres-max-connections", c.PostgresMaxConnections, "Maximum open Postgres connections")
	fs.IntVar(&c.PostgresMaxIdleConnections, "postgres-max-idle-connections", c.PostgresMaxIdleConnections, "Maximum idle Postgres connections")
	fs.DurationVar(&c.PostgresConnMaxLifetime, "postgres-conn-max-lifetime", c.PostgresConnMaxLifetime, "Maximum Postgres connection lifetime")

	// Service flags
	fs.StringVar(&c.ServiceName, "service-name", c.ServiceName, "Service name")
	fs.IntVar(&c.HealthPort, "health-port", c.HealthPort, "Health check HTTP port")
	fs.IntVar(&c.APIPort, "api-port", c.APIPort, "HTTP API port")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level (debug, info, warn, error)")

	// Daylight flags
	fs.Float64Var(&c.Latitude, "latitude", c.Latitude, "Geographic latitude for daylight context")
	fs.Float64Var(&c.Longitude, "longitude", c.Longitude, "Geographic longitude for daylight context")

	// Light agent flags
	fs.IntVar(&c.DecisionIntervalSec, "decision-interval", c.DecisionIntervalSec, "Re-planning interval in seconds")
	fs.IntVar(&c.ManualOverrideMinutes, "manual-override-minutes", c.ManualOverrideMinutes, "Default manual override duration in minutes")
	fs.IntVar(&c.MinDecisionIntervalMs, "min-decision-interval-ms", c.MinDecisionIntervalMs, "Minimum time between published plans per location (ms)")
	fs.StringToStringVar(&c.UserLocations, "user-locations", c.UserLocations, "User to light location mapping (user=location,...)")

	// Estimation flags
	fs.StringVar(&c.ModelPath, "model-path", c.ModelPath, "Path to the sleep quality model file (YAML)")
	fs.IntVar(&c.SimilarNeighbors, "similar-neighbors", c.SimilarNeighbors, "Nights averaged by the similar-nights estimator")
	fs.IntVar(&c.MinNeighbors, "min-neighbors", c.MinNeighbors, "Minimum recorded nights before similar-nights estimation is used")
	fs.IntVar(&c.EstimatorTimeoutMs, "estimator-timeout-ms", c.EstimatorTimeoutMs, "Timeout for a single quality estimate (ms)")

	// Retention flags
	fs.IntVar(&c.PatternHistory, "pattern-history", c.PatternHistory, "Pattern submissions kept per user")
	fs.IntVar(&c.PlanTTLMinutes, "plan-ttl-minutes", c.PlanTTLMinutes, "Lifetime of the cached plan in minutes")
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT broker is required")
	}
	if !validPort(c.MQTTPort) {
		return fmt.Errorf("MQTT port must be between 1 and 65535")
	}
	if c.RedisHost == "" {
		return fmt.Errorf("Redis host is required")
	}
	if !validPort(c.RedisPort) {
		return fmt.Errorf("Redis port must be between 1 and 65535")
	}
	if c.PostgresHost == "" {
		return fmt.Errorf("Postgres host is required")
	}
	if !validPort(c.PostgresPort) {
		return fmt.Errorf("Postgres port must be between 1 and 65535")
	}
	if !validPort(c.HealthPort) {
		return fmt.Errorf("Health port must be between 1 and 65535")
	}
	if !validPort(c.APIPort) {
		return fmt.Errorf("API port must be between 1 and 65535")
	}
	if c.ServiceName == "" {
		return fmt.Errorf("Service name is required")
	}
	if c.DecisionIntervalSec <= 0 {
		return fmt.Errorf("decision interval must be positive")
	}
	if c.SimilarNeighbors < c.MinNeighbors || c.MinNeighbors < 1 {
		return fmt.Errorf("similar neighbors (%d) must be >= min neighbors (%d) and min neighbors >= 1",
			c.SimilarNeighbors, c.MinNeighbors)
	}
	if c.Latitude < -90 || c.Latitude > 90 || c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("invalid coordinates: %.4f, %.4f", c.Latitude, c.Longitude)
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// MQTTAddress returns the full MQTT broker address
func (c *Config) MQTTAddress() string {
	return fmt.Sprintf("tcp://%s:%d", c.MQTTBroker, c.MQTTPort)
}

// RedisAddress returns the full Redis address
func (c *Config) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// PostgresConnectionString returns a lib/pq key=value connection string
func (c *Config) PostgresConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresSSLMode)
}

// LocationFor returns the light location a user's plan is published to
func (c *Config) LocationFor(userID string) string {
	if loc, ok := c.UserLocations[userID]; ok && loc != "" {
		return loc
	}
	return userID
}

// ParseUserLocations parses "user=location,user2=location2"
func ParseUserLocations(v string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(v, ",") {
		user, loc, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || user == "" || loc == "" {
			continue
		}
		out[user] = loc
	}
	return out
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
