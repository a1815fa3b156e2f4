package sleeplight

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// QualityEstimator predicts a sleep-quality score for a user. The result may be
// outside 1-10; the planner clamps it. Implementations must be safe for
// concurrent use.
type QualityEstimator interface {
	EstimateQuality(ctx context.Context, profile UserProfile, pattern DailyPattern, sleep SleepRecord) (float64, error)
}

// EstimatorFunc adapts a function to the QualityEstimator interface
type EstimatorFunc func(ctx context.Context, profile UserProfile, pattern DailyPattern, sleep SleepRecord) (float64, error)

func (f EstimatorFunc) EstimateQuality(ctx context.Context, profile UserProfile, pattern DailyPattern, sleep SleepRecord) (float64, error) {
	return f(ctx, profile, pattern, sleep)
}

var (
	ErrNoEstimator      = errors.New("no quality estimator configured")
	ErrUnusableEstimate = errors.New("estimator returned a non-finite value")
)

// estimateQuality returns the clamped quality score and where it came from.
// Estimator errors and panics degrade to the self-reported quality.
func estimateQuality(ctx context.Context, est QualityEstimator, profile UserProfile, pattern DailyPattern, sleep SleepRecord) (float64, QualitySource, error) {
	fallback := pattern.SelfReportedQuality()

	value, err := callEstimator(ctx, est, profile, pattern, sleep)
	if err != nil {
		return fallback, SourceSelfReport, err
	}
	return clampFloat(value, 1, 10), SourceEstimator, nil
}

func callEstimator(ctx context.Context, est QualityEstimator, profile UserProfile, pattern DailyPattern, sleep SleepRecord) (value float64, err error) {
	if est == nil {
		return 0, ErrNoEstimator
	}

	defer func() {
		if r := recover(); r != nil {
			value = 0
			err = fmt.Errorf("estimator panicked: %v", r)
		}
	}()

	value, err = est.EstimateQuality(ctx, profile, pattern, sleep)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, ErrUnusableEstimate
	}
	return value, nil
}
