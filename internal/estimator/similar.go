package estimator

import (
	"context"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/saaga0h/jeeves-sleeplight/internal/sleeplight"
)

var ErrNotEnoughHistory = errors.New("not enough recorded nights")

// Neighbor is a previously recorded night close to the one being estimated
type Neighbor struct {
	Quality  float64
	Distance float64
}

// NightIndex finds a user's recorded nights nearest to a feature vector
type NightIndex interface {
	NearestNights(ctx context.Context, userID string, features pgvector.Vector, limit int) ([]Neighbor, error)
}

// SimilarNights estimates quality from the user's own most similar past nights
type SimilarNights struct {
	index        NightIndex
	neighbors    int
	minNeighbors int
}

// NewSimilarNights creates a similar-nights estimator averaging up to neighbors
// nights and refusing to answer with fewer than minNeighbors
func NewSimilarNights(index NightIndex, neighbors, minNeighbors int) *SimilarNights {
	return &SimilarNights{
		index:        index,
		neighbors:    neighbors,
		minNeighbors: minNeighbors,
	}
}

// ForUser returns an estimator bound to one user's history
func (s *SimilarNights) ForUser(userID string) sleeplight.QualityEstimator {
	return sleeplight.EstimatorFunc(func(ctx context.Context, profile sleeplight.UserProfile, pattern sleeplight.DailyPattern, sleep sleeplight.SleepRecord) (float64, error) {
		return s.estimate(ctx, userID, Observe(profile, pattern, sleep))
	})
}

func (s *SimilarNights) estimate(ctx context.Context, userID string, obs Observation) (float64, error) {
	neighbors, err := s.index.NearestNights(ctx, userID, EmbedNight(obs), s.neighbors)
	if err != nil {
		return 0, fmt.Errorf("failed to find similar nights: %w", err)
	}
	if len(neighbors) < s.minNeighbors {
		return 0, fmt.Errorf("%w: have %d, need %d", ErrNotEnoughHistory, len(neighbors), s.minNeighbors)
	}
	return weightedQuality(neighbors), nil
}

// weightedQuality averages neighbour quality weighted by inverse distance
func weightedQuality(neighbors []Neighbor) float64 {
	const epsilon = 1e-3

	var sum, weights float64
	for _, n := range neighbors {
		w := 1 / (n.Distance + epsilon)
		sum += w * n.Quality
		weights += w
	}
	return sum / weights
}
