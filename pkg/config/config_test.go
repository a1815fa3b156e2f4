package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_IsValid(t *testing.T) {
	require.NoError(t, NewConfig().Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("JEEVES_MQTT_BROKER", "mosquitto")
	t.Setenv("JEEVES_REDIS_PORT", "6380")
	t.Setenv("JEEVES_POSTGRES_CONN_MAX_LIFETIME", "5m")
	t.Setenv("JEEVES_LATITUDE", "60.1695")
	t.Setenv("JEEVES_USER_LOCATIONS", "alice=bedroom, bob=guest_room,broken")
	t.Setenv("JEEVES_MIN_NEIGHBORS", "not-a-number")

	cfg := NewConfig()
	cfg.LoadFromEnv()

	assert.Equal(t, "mosquitto", cfg.MQTTBroker)
	assert.Equal(t, 6380, cfg.RedisPort)
	assert.Equal(t, 5*time.Minute, cfg.PostgresConnMaxLifetime)
	assert.Equal(t, 60.1695, cfg.Latitude)
	assert.Equal(t, map[string]string{"alice": "bedroom", "bob": "guest_room"}, cfg.UserLocations)
	assert.Equal(t, 3, cfg.MinNeighbors, "unparseable values keep the default")
}

func TestRegisterFlags_OverrideEnv(t *testing.T) {
	t.Setenv("JEEVES_LOG_LEVEL", "warn")

	cfg := NewConfig()
	cfg.LoadFromEnv()

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg.RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{
		"--log-level=debug",
		"--api-port=4000",
		"--user-locations=carol=study",
		"--model-path=/etc/sleeplight/model.yaml",
	}))

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 4000, cfg.APIPort)
	assert.Equal(t, "study", cfg.LocationFor("carol"))
	assert.Equal(t, "dave", cfg.LocationFor("dave"))
	assert.Equal(t, "/etc/sleeplight/model.yaml", cfg.ModelPath)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"missing broker", func(c *Config) { c.MQTTBroker = "" }},
		{"bad redis port", func(c *Config) { c.RedisPort = 70000 }},
		{"missing postgres host", func(c *Config) { c.PostgresHost = "" }},
		{"bad api port", func(c *Config) { c.APIPort = 0 }},
		{"zero decision interval", func(c *Config) { c.DecisionIntervalSec = 0 }},
		{"neighbors below minimum", func(c *Config) { c.SimilarNeighbors = 2 }},
		{"bad latitude", func(c *Config) { c.Latitude = 91 }},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConnectionStrings(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTTAddress())
	assert.Equal(t, "localhost:6379", cfg.RedisAddress())
	assert.Equal(t, "host=localhost port=5432 user=jeeves password= dbname=sleeplight sslmode=disable",
		cfg.PostgresConnectionString())
}
