package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/saaga0h/jeeves-sleeplight/internal/estimator"
	"github.com/saaga0h/jeeves-sleeplight/internal/sleeplight"
	"github.com/saaga0h/jeeves-sleeplight/pkg/postgres"
)

// History persists recorded nights and computed plans in PostgreSQL + pgvector
type History struct {
	db     postgres.Client
	logger *slog.Logger
}

// NewHistory creates a new history store
func NewHistory(db postgres.Client, logger *slog.Logger) *History {
	return &History{
		db:     db,
		logger: logger,
	}
}

// schema returns the statements that create the history tables
func schema() []string {
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS sleep_nights (
			id UUID PRIMARY KEY,
			user_id TEXT NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL,
			features vector(%d) NOT NULL,
			quality DOUBLE PRECISION NOT NULL
		)`, estimator.NightVectorDims),
		`CREATE INDEX IF NOT EXISTS sleep_nights_user_idx ON sleep_nights (user_id, recorded_at DESC)`,
		`
		CREATE TABLE IF NOT EXISTS light_plans (
			id UUID PRIMARY KEY,
			user_id TEXT NOT NULL,
			computed_at TIMESTAMPTZ NOT NULL,
			phase TEXT NOT NULL,
			color_mode TEXT NOT NULL,
			blend_ratio DOUBLE PRECISION NOT NULL,
			brightness_pct INTEGER NOT NULL,
			warm INTEGER NOT NULL,
			cool INTEGER NOT NULL,
			quality_estimate DOUBLE PRECISION NOT NULL,
			quality_source TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS light_plans_user_idx ON light_plans (user_id, computed_at DESC)`,
	}
}

// EnsureSchema creates the history tables if they do not exist
func (h *History) EnsureSchema(ctx context.Context) error {
	if err := h.db.Migrate(ctx, schema()...); err != nil {
		return fmt.Errorf("failed to ensure history schema: %w", err)
	}
	h.logger.Info("History schema ready", "vector_dims", estimator.NightVectorDims)
	return nil
}

// RecordNight stores a night's feature vector with its reported quality
func (h *History) RecordNight(ctx context.Context, userID string, features pgvector.Vector, quality float64, recordedAt time.Time) error {
	query := `
		INSERT INTO sleep_nights (id, user_id, recorded_at, features, quality)
		VALUES ($1, $2, $3, $4, $5)
	`

	if _, err := h.db.Exec(ctx, query, uuid.New(), userID, recordedAt, features, quality); err != nil {
		return fmt.Errorf("failed to insert night: %w", err)
	}

	return nil
}

// NearestNights returns up to limit of the user's recorded nights ordered by
// euclidean distance to features
func (h *History) NearestNights(ctx context.Context, userID string, features pgvector.Vector, limit int) ([]estimator.Neighbor, error) {
	query := `
		SELECT quality, features <-> $2 AS distance
		FROM sleep_nights
		WHERE user_id = $1
		ORDER BY features <-> $2
		LIMIT $3
	`

	rows, err := h.db.Query(ctx, query, userID, features, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query nearest nights: %w", err)
	}
	defer rows.Close()

	var neighbors []estimator.Neighbor
	for rows.Next() {
		var n estimator.Neighbor
		if err := rows.Scan(&n.Quality, &n.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan night: %w", err)
		}
		neighbors = append(neighbors, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating nights: %w", err)
	}

	return neighbors, nil
}

// RecordPlan stores a computed plan. The plan must carry a UUID id.
func (h *History) RecordPlan(ctx context.Context, userID string, plan sleeplight.LightPlan) error {
	id, err := uuid.Parse(plan.ID)
	if err != nil {
		return fmt.Errorf("invalid plan id %q: %w", plan.ID, err)
	}

	query := `
		INSERT INTO light_plans (
			id, user_id, computed_at, phase, color_mode, blend_ratio,
			brightness_pct, warm, cool, quality_estimate, quality_source
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = h.db.Exec(ctx, query,
		id,
		userID,
		plan.Timestamp,
		string(plan.Phase),
		string(plan.ColorMode),
		plan.BlendRatio,
		plan.BrightnessPct,
		plan.Warm,
		plan.Cool,
		plan.QualityEstimate,
		string(plan.QualitySource),
	)
	if err != nil {
		return fmt.Errorf("failed to insert plan: %w", err)
	}

	return nil
}

var _ estimator.NightIndex = (*History)(nil)
