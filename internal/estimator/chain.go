package estimator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/saaga0h/jeeves-sleeplight/internal/sleeplight"
)

var ErrNoEstimate = errors.New("no estimator produced a value")

// Chain tries estimators in order and returns the first usable value
type Chain []sleeplight.QualityEstimator

// EstimateQuality implements sleeplight.QualityEstimator
func (c Chain) EstimateQuality(ctx context.Context, profile sleeplight.UserProfile, pattern sleeplight.DailyPattern, sleep sleeplight.SleepRecord) (float64, error) {
	var errs []error
	for i, est := range c {
		if est == nil {
			continue
		}
		v, err := est.EstimateQuality(ctx, profile, pattern, sleep)
		if err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
			return v, nil
		}
		if err == nil {
			err = fmt.Errorf("non-finite estimate %v", v)
		}
		errs = append(errs, fmt.Errorf("estimator %d: %w", i, err))
	}
	if len(errs) == 0 {
		return 0, ErrNoEstimate
	}
	return 0, errors.Join(append([]error{ErrNoEstimate}, errs...)...)
}

// WithTimeout bounds each call to est by d
func WithTimeout(est sleeplight.QualityEstimator, d time.Duration) sleeplight.QualityEstimator {
	if d <= 0 {
		return est
	}
	return sleeplight.EstimatorFunc(func(ctx context.Context, profile sleeplight.UserProfile, pattern sleeplight.DailyPattern, sleep sleeplight.SleepRecord) (float64, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return est.EstimateQuality(ctx, profile, pattern, sleep)
	})
}
