package sleeplight

import (
	"context"
	"math"
	"time"
)

// Baselines per phase
const (
	morningBrightness = 90
	daytimeBrightness = 65
	daytimeBlend      = 0.6

	eveningMinBrightness = 15
	eveningMaxBrightness = 40

	// estimateThreshold is the quality estimate at or below which the plan is
	// softened further
	estimateThreshold = 6.0
)

// baseline is the phase-derived starting point before corrections
type baseline struct {
	phase      Phase
	mode       ColorMode
	ratio      float64
	brightness int
}

// BuildLightPlan derives the lighting plan for the given records at time now.
// It never fails: missing anchors, estimator failures and out-of-range fields all
// resolve to a valid plan.
func BuildLightPlan(
	ctx context.Context,
	profile UserProfile,
	pattern DailyPattern,
	sleep SleepRecord,
	now time.Time,
	estimator QualityEstimator,
) LightPlan {
	b := classifyPhase(pattern, now)

	quality, source, estErr := estimateQuality(ctx, estimator, profile, pattern, sleep)

	if needsSelfReportCorrection(pattern) {
		b = applySelfReportCorrection(b)
	}
	if quality <= estimateThreshold {
		b = applyEstimateCorrection(b)
	}

	b.brightness = clampInt(b.brightness, 10, 100)
	b.ratio = clampFloat(math.Round(b.ratio*100)/100, 0, 1)

	warm, cool := ToDualChannel(b.brightness, b.mode, b.ratio)

	return LightPlan{
		Phase:           b.phase,
		ColorMode:       b.mode,
		BlendRatio:      b.ratio,
		BrightnessPct:   b.brightness,
		Warm:            warm,
		Cool:            cool,
		QualityEstimate: quality,
		QualitySource:   source,
		Timestamp:       now,
		EstimatorErr:    estErr,
	}
}

// classifyPhase picks the first matching phase: morning boost, evening wind-down,
// then daytime
func classifyPhase(pattern DailyPattern, now time.Time) baseline {
	if wake, ok := ParseClock(pattern.Wake, now); ok && inWindow(now, wake, morningBoostWindow) {
		return baseline{
			phase:      PhaseMorningBoost,
			mode:       ColorCool,
			ratio:      1.0,
			brightness: morningBrightness,
		}
	}

	if sleep, ok := ParseClock(pattern.Sleep, now); ok && inWindow(now, sleep.Add(-eveningWinddownWindow), eveningWinddownWindow) {
		return baseline{
			phase:      PhaseEveningWinddown,
			mode:       ColorWarm,
			ratio:      0.0,
			brightness: eveningBrightness(sleep.Sub(now)),
		}
	}

	return baseline{
		phase:      PhaseDaytime,
		mode:       ColorBlend,
		ratio:      daytimeBlend,
		brightness: daytimeBrightness,
	}
}

// eveningBrightness dims linearly from 40% two hours before sleep to 15% at sleep
func eveningBrightness(untilSleep time.Duration) int {
	minutes := clampFloat(untilSleep.Minutes(), 0, eveningWinddownWindow.Minutes())
	span := float64(eveningMaxBrightness - eveningMinBrightness)
	level := eveningMinBrightness + (minutes/eveningWinddownWindow.Minutes())*span
	return clampInt(int(math.Round(level)), eveningMinBrightness, eveningMaxBrightness)
}

func needsSelfReportCorrection(pattern DailyPattern) bool {
	return pattern.SelfReportedQuality() <= 5 ||
		pattern.WakeCountValue() >= 2 ||
		pattern.SatisfactionScore() <= 5 ||
		pattern.Feel() == "bad"
}

func applySelfReportCorrection(b baseline) baseline {
	if b.phase == PhaseEveningWinddown {
		b.brightness = max(10, b.brightness-10)
	}
	b.brightness = max(30, b.brightness-10)
	if b.mode == ColorBlend {
		b.ratio = max(0.3, b.ratio-0.1)
	}
	return b
}

func applyEstimateCorrection(b baseline) baseline {
	if b.phase == PhaseEveningWinddown {
		b.mode = ColorWarm
		b.ratio = 0.0
		b.brightness = max(10, b.brightness-5)
		return b
	}
	b.brightness = max(35, b.brightness-5)
	return b
}
