package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saaga0h/jeeves-sleeplight/internal/estimator"
	"github.com/saaga0h/jeeves-sleeplight/internal/sleeplight"
	"github.com/saaga0h/jeeves-sleeplight/pkg/config"
	"github.com/saaga0h/jeeves-sleeplight/pkg/postgres"
)

type execCall struct {
	query string
	args  []interface{}
}

// recordingDB is a postgres.Client that records writes and fails reads
type recordingDB struct {
	execs      []execCall
	migrations []string
	queryErr   error
}

func (r *recordingDB) Connect(ctx context.Context) error { return nil }
func (r *recordingDB) Disconnect() error                 { return nil }

func (r *recordingDB) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	r.execs = append(r.execs, execCall{query: query, args: args})
	return nil, nil
}

func (r *recordingDB) Query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return nil, r.queryErr
}

func (r *recordingDB) Transaction(ctx context.Context, fn func(*sql.Tx) error) error {
	return errors.New("not supported")
}

func (r *recordingDB) Migrate(ctx context.Context, statements ...string) error {
	r.migrations = append(r.migrations, statements...)
	return nil
}

func (r *recordingDB) HealthCheck(ctx context.Context) (*postgres.HealthStatus, error) {
	return &postgres.HealthStatus{Connected: true}, nil
}

func TestHistory_EnsureSchema(t *testing.T) {
	db := &recordingDB{}
	history := NewHistory(db, newTestLogger())

	require.NoError(t, history.EnsureSchema(context.Background()))

	require.NotEmpty(t, db.migrations)
	assert.Equal(t, "CREATE EXTENSION IF NOT EXISTS vector", db.migrations[0])
	joined := strings.Join(db.migrations, "\n")
	assert.Contains(t, joined, "features vector(6)")
	assert.Contains(t, joined, "CREATE TABLE IF NOT EXISTS light_plans")
}

func TestHistory_RecordNight(t *testing.T) {
	db := &recordingDB{}
	history := NewHistory(db, newTestLogger())
	at := time.Date(2026, 3, 14, 7, 0, 0, 0, time.UTC)
	vec := pgvector.NewVector([]float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6})

	require.NoError(t, history.RecordNight(context.Background(), "alice", vec, 8, at))

	require.Len(t, db.execs, 1)
	args := db.execs[0].args
	require.Len(t, args, 5)
	assert.IsType(t, uuid.UUID{}, args[0])
	assert.Equal(t, "alice", args[1])
	assert.Equal(t, at, args[2])
	assert.Equal(t, vec, args[3])
	assert.Equal(t, 8.0, args[4])
}

func TestHistory_RecordPlan(t *testing.T) {
	db := &recordingDB{}
	history := NewHistory(db, newTestLogger())
	ctx := context.Background()

	plan := sleeplight.LightPlan{
		ID:              uuid.NewString(),
		Phase:           sleeplight.PhaseDaytime,
		ColorMode:       sleeplight.ColorBlend,
		BlendRatio:      0.6,
		BrightnessPct:   65,
		Warm:            66,
		Cool:            99,
		QualityEstimate: 8,
		QualitySource:   sleeplight.SourceEstimator,
		Timestamp:       time.Now(),
	}
	require.NoError(t, history.RecordPlan(ctx, "bob", plan))
	require.Len(t, db.execs, 1)
	assert.Equal(t, "daytime", db.execs[0].args[3])
	assert.Equal(t, "estimator", db.execs[0].args[10])

	plan.ID = "not-a-uuid"
	assert.Error(t, history.RecordPlan(ctx, "bob", plan))
	assert.Len(t, db.execs, 1)
}

func TestHistory_NearestNightsQueryError(t *testing.T) {
	boom := errors.New("relation does not exist")
	history := NewHistory(&recordingDB{queryErr: boom}, newTestLogger())

	_, err := history.NearestNights(context.Background(), "alice", pgvector.NewVector(make([]float32, estimator.NightVectorDims)), 5)
	assert.ErrorIs(t, err, boom)
}

// setupTestDB connects to a PostgreSQL instance with the pgvector extension.
func setupTestDB(t *testing.T) postgres.Client {
	// This is a placeholder - in real tests, you would:
	// 1. Start PostgreSQL with pgvector (e.g., via testcontainers)
	// 2. Point JEEVES_POSTGRES_* at it
	// 3. Return the connected client
	t.Skip("Integration test - requires PostgreSQL with pgvector")
	return postgres.NewClient(config.NewConfig(), newTestLogger())
}

func TestHistory_NearestNightsIntegration(t *testing.T) {
	db := setupTestDB(t)
	defer db.Disconnect()

	history := NewHistory(db, newTestLogger())
	ctx := context.Background()
	require.NoError(t, history.EnsureSchema(ctx))

	user := "it-" + uuid.NewString()
	near := pgvector.NewVector([]float32{0.5, 0.5, 0.5, 0.5, 0.5, 0.5})
	far := pgvector.NewVector([]float32{1, 1, 1, 1, 1, 1})
	require.NoError(t, history.RecordNight(ctx, user, near, 8, time.Now()))
	require.NoError(t, history.RecordNight(ctx, user, far, 3, time.Now()))

	neighbors, err := history.NearestNights(ctx, user, near, 5)
	require.NoError(t, err)
	require.Len(t, neighbors, 2)
	assert.Equal(t, 8.0, neighbors[0].Quality)
	assert.InDelta(t, 0, neighbors[0].Distance, 1e-6)
}
