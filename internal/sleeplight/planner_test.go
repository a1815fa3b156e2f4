package sleeplight

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func at(hour, minute int) time.Time {
	return time.Date(2026, time.March, 14, hour, minute, 0, 0, time.UTC)
}

func fixedEstimate(v float64) QualityEstimator {
	return EstimatorFunc(func(ctx context.Context, profile UserProfile, pattern DailyPattern, sleep SleepRecord) (float64, error) {
		return v, nil
	})
}

func goodPattern() DailyPattern {
	return DailyPattern{
		Wake:         "07:00",
		Sleep:        "23:00",
		Goal:         floatPtr(7),
		Satisfaction: floatPtr(8),
		MorningFeel:  "normal",
		WakeCount:    intPtr(0),
		Quality:      floatPtr(8),
	}
}

func TestBuildLightPlan_MorningBoostScenario(t *testing.T) {
	plan := BuildLightPlan(context.Background(), UserProfile{Age: 30}, goodPattern(), nil, at(7, 30), fixedEstimate(8))

	if plan.Phase != PhaseMorningBoost {
		t.Errorf("Expected phase morning_boost, got '%s'", plan.Phase)
	}
	if plan.ColorMode != ColorCool {
		t.Errorf("Expected color mode cool, got '%s'", plan.ColorMode)
	}
	if plan.BlendRatio != 1.0 {
		t.Errorf("Expected blend ratio 1.0, got %f", plan.BlendRatio)
	}
	if plan.BrightnessPct != 90 {
		t.Errorf("Expected brightness 90, got %d", plan.BrightnessPct)
	}
	if plan.Warm != 0 || plan.Cool != 229 {
		t.Errorf("Expected channels warm=0 cool=229, got warm=%d cool=%d", plan.Warm, plan.Cool)
	}
	if plan.QualitySource != SourceEstimator {
		t.Errorf("Expected quality source estimator, got '%s'", plan.QualitySource)
	}
	if !plan.Timestamp.Equal(at(7, 30)) {
		t.Errorf("Expected timestamp %v, got %v", at(7, 30), plan.Timestamp)
	}
}

func TestBuildLightPlan_EveningWinddownWithLowSatisfaction(t *testing.T) {
	pattern := goodPattern()
	pattern.Satisfaction = floatPtr(3)

	// 30 minutes before sleep: baseline 21, evening -10 gives 11, flat -10 floors at 30
	plan := BuildLightPlan(context.Background(), UserProfile{}, pattern, nil, at(22, 30), fixedEstimate(8))

	assert.Equal(t, PhaseEveningWinddown, plan.Phase)
	assert.Equal(t, ColorWarm, plan.ColorMode)
	assert.Equal(t, 0.0, plan.BlendRatio)
	assert.Equal(t, 30, plan.BrightnessPct)
	assert.Equal(t, 76, plan.Warm)
	assert.Equal(t, 0, plan.Cool)
}

func TestBuildLightPlan_EveningWithLowEstimate(t *testing.T) {
	pattern := goodPattern()
	pattern.Satisfaction = floatPtr(3)

	plan := BuildLightPlan(context.Background(), UserProfile{}, pattern, nil, at(22, 30), fixedEstimate(5))

	assert.Equal(t, PhaseEveningWinddown, plan.Phase)
	assert.Equal(t, ColorWarm, plan.ColorMode)
	assert.Equal(t, 25, plan.BrightnessPct)
	assert.Equal(t, 64, plan.Warm)
	assert.Equal(t, 0, plan.Cool)
}

func TestBuildLightPlan_EveningBrightnessRamp(t *testing.T) {
	testCases := []struct {
		name     string
		now      time.Time
		expected int
	}{
		{"window opens", at(21, 0), 40},
		{"halfway", at(22, 0), 28}, // 27.5 rounds away from zero
		{"thirty minutes left", at(22, 30), 21},
		{"at sleep time", at(23, 0), 15},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			plan := BuildLightPlan(context.Background(), UserProfile{}, goodPattern(), nil, tc.now, fixedEstimate(9))
			if plan.Phase != PhaseEveningWinddown {
				t.Fatalf("Expected evening_winddown, got '%s'", plan.Phase)
			}
			if plan.BrightnessPct != tc.expected {
				t.Errorf("Expected brightness %d, got %d", tc.expected, plan.BrightnessPct)
			}
		})
	}
}

func TestBuildLightPlan_DaytimeDefaults(t *testing.T) {
	plan := BuildLightPlan(context.Background(), UserProfile{}, goodPattern(), nil, at(13, 0), fixedEstimate(8))

	assert.Equal(t, PhaseDaytime, plan.Phase)
	assert.Equal(t, ColorBlend, plan.ColorMode)
	assert.InDelta(t, 0.6, plan.BlendRatio, 1e-9)
	assert.Equal(t, 65, plan.BrightnessPct)
	assert.Equal(t, 66, plan.Warm)
	assert.Equal(t, 99, plan.Cool)
}

func TestBuildLightPlan_DaytimeLowEstimate(t *testing.T) {
	plan := BuildLightPlan(context.Background(), UserProfile{}, goodPattern(), nil, at(13, 0), fixedEstimate(4.0))

	assert.Equal(t, PhaseDaytime, plan.Phase)
	assert.Equal(t, 60, plan.BrightnessPct)
	assert.Equal(t, 4.0, plan.QualityEstimate)
}

func TestBuildLightPlan_DaytimeBothCorrections(t *testing.T) {
	pattern := goodPattern()
	pattern.MorningFeel = "bad"

	plan := BuildLightPlan(context.Background(), UserProfile{}, pattern, nil, at(13, 0), fixedEstimate(4.0))

	assert.Equal(t, 50, plan.BrightnessPct)
	assert.InDelta(t, 0.5, plan.BlendRatio, 1e-9)
}

func TestBuildLightPlan_MorningBothCorrections(t *testing.T) {
	pattern := goodPattern()
	pattern.WakeCount = intPtr(3)

	plan := BuildLightPlan(context.Background(), UserProfile{}, pattern, nil, at(8, 30), fixedEstimate(2))

	assert.Equal(t, PhaseMorningBoost, plan.Phase)
	assert.Equal(t, ColorCool, plan.ColorMode)
	assert.Equal(t, 75, plan.BrightnessPct)
	assert.Equal(t, 1.0, plan.BlendRatio)
}

func TestEstimateCorrection_DaytimeFloor(t *testing.T) {
	b := applyEstimateCorrection(baseline{phase: PhaseDaytime, mode: ColorBlend, ratio: 0.5, brightness: 30})
	assert.Equal(t, 35, b.brightness)

	b = applyEstimateCorrection(baseline{phase: PhaseEveningWinddown, mode: ColorWarm, brightness: 12})
	assert.Equal(t, 10, b.brightness)
}

func TestSelfReportCorrection_BlendFloor(t *testing.T) {
	b := applySelfReportCorrection(baseline{phase: PhaseDaytime, mode: ColorBlend, ratio: 0.35, brightness: 65})
	assert.Equal(t, 55, b.brightness)
	assert.InDelta(t, 0.3, b.ratio, 1e-9)
}

func TestBuildLightPlan_SelfReportTriggers(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(p *DailyPattern)
	}{
		{"low quality", func(p *DailyPattern) { p.Quality = floatPtr(5) }},
		{"two wakings", func(p *DailyPattern) { p.WakeCount = intPtr(2) }},
		{"low satisfaction", func(p *DailyPattern) { p.Satisfaction = floatPtr(5) }},
		{"bad morning", func(p *DailyPattern) { p.MorningFeel = "Bad" }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			pattern := goodPattern()
			tc.mutate(&pattern)
			plan := BuildLightPlan(context.Background(), UserProfile{}, pattern, nil, at(13, 0), fixedEstimate(9))
			if plan.BrightnessPct != 55 {
				t.Errorf("Expected corrected brightness 55, got %d", plan.BrightnessPct)
			}
		})
	}
}

func TestBuildLightPlan_MorningWinsOverEvening(t *testing.T) {
	pattern := goodPattern()
	pattern.Wake = "22:00"
	pattern.Sleep = "23:00"

	plan := BuildLightPlan(context.Background(), UserProfile{}, pattern, nil, at(22, 30), fixedEstimate(9))
	assert.Equal(t, PhaseMorningBoost, plan.Phase)
}

func TestBuildLightPlan_MissingAnchorsResolveToDaytime(t *testing.T) {
	patterns := []DailyPattern{
		{},
		{Wake: "7am", Sleep: "late"},
		{Wake: "25:00", Sleep: "23:60"},
		{Wake: "+7:00", Sleep: "-1:30"},
	}

	for _, pattern := range patterns {
		for hour := 0; hour < 24; hour++ {
			plan := BuildLightPlan(context.Background(), UserProfile{}, pattern, nil, at(hour, 15), fixedEstimate(9))
			if plan.Phase != PhaseDaytime {
				t.Errorf("pattern %+v at %02d:15: expected daytime, got '%s'", pattern, hour, plan.Phase)
			}
		}
	}
}

func TestBuildLightPlan_EstimatorFailureFallsBack(t *testing.T) {
	failing := EstimatorFunc(func(ctx context.Context, profile UserProfile, pattern DailyPattern, sleep SleepRecord) (float64, error) {
		return 0, errors.New("model unavailable")
	})
	panicking := EstimatorFunc(func(ctx context.Context, profile UserProfile, pattern DailyPattern, sleep SleepRecord) (float64, error) {
		panic("corrupt model")
	})

	testCases := []struct {
		name      string
		estimator QualityEstimator
		pattern   DailyPattern
		expected  float64
	}{
		{"error", failing, goodPattern(), 8},
		{"panic", panicking, goodPattern(), 8},
		{"not a number", fixedEstimate(math.NaN()), goodPattern(), 8},
		{"infinite", fixedEstimate(math.Inf(1)), goodPattern(), 8},
		{"no estimator", nil, goodPattern(), 8},
		{"no estimator or quality", nil, DailyPattern{}, 7},
		{"quality out of range", nil, DailyPattern{Quality: floatPtr(14)}, 10},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var plan LightPlan
			require.NotPanics(t, func() {
				plan = BuildLightPlan(context.Background(), UserProfile{}, tc.pattern, SleepRecord{}, at(13, 0), tc.estimator)
			})
			assert.Equal(t, tc.expected, plan.QualityEstimate)
			assert.Equal(t, SourceSelfReport, plan.QualitySource)
			assert.Error(t, plan.EstimatorErr)
		})
	}
}

func TestBuildLightPlan_EstimateIsClamped(t *testing.T) {
	plan := BuildLightPlan(context.Background(), UserProfile{}, goodPattern(), nil, at(13, 0), fixedEstimate(42))
	assert.Equal(t, 10.0, plan.QualityEstimate)
	assert.Equal(t, 65, plan.BrightnessPct)

	plan = BuildLightPlan(context.Background(), UserProfile{}, goodPattern(), nil, at(13, 0), fixedEstimate(-3))
	assert.Equal(t, 1.0, plan.QualityEstimate)
	assert.Equal(t, 60, plan.BrightnessPct)
}

func TestBuildLightPlan_EstimatorReceivesRecords(t *testing.T) {
	profile := UserProfile{Age: 41, Extra: map[string]any{"Gender": "Female"}}
	sleep := SleepRecord{"Heart Rate": 62.0}

	var gotProfile UserProfile
	var gotSleep SleepRecord
	est := EstimatorFunc(func(ctx context.Context, p UserProfile, pattern DailyPattern, s SleepRecord) (float64, error) {
		gotProfile = p
		gotSleep = s
		return 8, nil
	})

	BuildLightPlan(context.Background(), profile, goodPattern(), sleep, at(13, 0), est)

	assert.Equal(t, profile, gotProfile)
	assert.Equal(t, sleep, gotSleep)
}

func TestBuildLightPlan_InvariantsHold(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	clock := func() string {
		if rng.Intn(5) == 0 {
			return "garbage"
		}
		return time.Date(2026, 1, 1, rng.Intn(24), rng.Intn(60), 0, 0, time.UTC).Format("15:04")
	}
	feels := []string{"bad", "normal", "good", ""}

	for i := 0; i < 2000; i++ {
		pattern := DailyPattern{
			Wake:         clock(),
			Sleep:        clock(),
			Satisfaction: floatPtr(rng.Float64()*14 - 2),
			MorningFeel:  feels[rng.Intn(len(feels))],
			WakeCount:    intPtr(rng.Intn(6) - 1),
			Quality:      floatPtr(rng.Float64()*14 - 2),
		}
		now := at(rng.Intn(24), rng.Intn(60))
		plan := BuildLightPlan(context.Background(), UserProfile{}, pattern, nil, now, fixedEstimate(rng.Float64()*30-10))

		require.GreaterOrEqual(t, plan.Warm, 0)
		require.LessOrEqual(t, plan.Warm, 255)
		require.GreaterOrEqual(t, plan.Cool, 0)
		require.LessOrEqual(t, plan.Cool, 255)
		require.GreaterOrEqual(t, plan.BrightnessPct, 10)
		require.LessOrEqual(t, plan.BrightnessPct, 100)
		require.GreaterOrEqual(t, plan.BlendRatio, 0.0)
		require.LessOrEqual(t, plan.BlendRatio, 1.0)
		require.GreaterOrEqual(t, plan.QualityEstimate, 1.0)
		require.LessOrEqual(t, plan.QualityEstimate, 10.0)
		require.Contains(t, []Phase{PhaseMorningBoost, PhaseEveningWinddown, PhaseDaytime}, plan.Phase)
	}
}
