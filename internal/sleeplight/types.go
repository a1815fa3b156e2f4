package sleeplight

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Phase is the circadian window that drives the baseline lighting
type Phase string

const (
	PhaseMorningBoost    Phase = "morning_boost"
	PhaseEveningWinddown Phase = "evening_winddown"
	PhaseDaytime         Phase = "daytime"
)

// ColorMode selects which light channel(s) dominate
type ColorMode string

const (
	ColorWarm  ColorMode = "warm"
	ColorCool  ColorMode = "cool"
	ColorBlend ColorMode = "blend"
)

// QualitySource records where a plan's quality estimate came from
type QualitySource string

const (
	SourceEstimator  QualitySource = "estimator"
	SourceSelfReport QualitySource = "self_report"
)

// Record defaults
const (
	DefaultAge          = 25
	DefaultGoalHours    = 7.0
	DefaultSatisfaction = 5.0
	DefaultMorningFeel  = "normal"
	DefaultQuality      = 7.0
)

// UserProfile is the onboarding record. Age is the only field the planner reads;
// everything else is carried in Extra for the estimator.
type UserProfile struct {
	Age   int            `json:"age"`
	Extra map[string]any `json:"extra,omitempty"`
}

// DailyPattern is the user's self-reported pattern for the day.
// Nil pointers mean the field was absent or could not be read.
type DailyPattern struct {
	Wake         string   `json:"wake,omitempty"`
	Sleep        string   `json:"sleep,omitempty"`
	Goal         *float64 `json:"goal,omitempty"`
	Satisfaction *float64 `json:"satisfaction,omitempty"`
	MorningFeel  string   `json:"morningFeel,omitempty"`
	WakeCount    *int     `json:"wakeCount,omitempty"`
	Quality      *float64 `json:"quality,omitempty"`
}

// SleepRecord is an opaque set of recorded sleep metrics
type SleepRecord map[string]any

// LightPlan is the planner output
type LightPlan struct {
	ID              string        `json:"id,omitempty"`
	Phase           Phase         `json:"phase"`
	ColorMode       ColorMode     `json:"color_mode"`
	BlendRatio      float64       `json:"blend_ratio"`
	BrightnessPct   int           `json:"brightness_pct"`
	Warm            int           `json:"warm"`
	Cool            int           `json:"cool"`
	QualityEstimate float64       `json:"quality_estimate"`
	QualitySource   QualitySource `json:"quality_source"`
	Timestamp       time.Time     `json:"timestamp"`

	// EstimatorErr is set when the estimator failed and the self-reported
	// quality was used instead. Callers decide whether to log it.
	EstimatorErr error `json:"-"`
}

// GoalHours returns the desired sleep duration, defaulting to 7
func (p DailyPattern) GoalHours() float64 {
	if p.Goal == nil {
		return DefaultGoalHours
	}
	return *p.Goal
}

// SatisfactionScore returns the 1-10 satisfaction, clamped, defaulting to 5
func (p DailyPattern) SatisfactionScore() float64 {
	if p.Satisfaction == nil {
		return DefaultSatisfaction
	}
	return clampFloat(*p.Satisfaction, 1, 10)
}

// Feel returns the normalized morning feel, defaulting to "normal"
func (p DailyPattern) Feel() string {
	feel := strings.ToLower(strings.TrimSpace(p.MorningFeel))
	if feel == "" {
		return DefaultMorningFeel
	}
	return feel
}

// WakeCountValue returns the number of night wakings, never negative
func (p DailyPattern) WakeCountValue() int {
	if p.WakeCount == nil || *p.WakeCount < 0 {
		return 0
	}
	return *p.WakeCount
}

// SelfReportedQuality returns the prior-night quality, clamped, defaulting to 7
func (p DailyPattern) SelfReportedQuality() float64 {
	if p.Quality == nil {
		return DefaultQuality
	}
	return clampFloat(*p.Quality, 1, 10)
}

// AgeYears returns the profile age, defaulting to 25 when unset or invalid
func (u UserProfile) AgeYears() int {
	if u.Age <= 0 {
		return DefaultAge
	}
	return u.Age
}

// ProfileFromRecord reads a profile from a loosely typed record such as a decoded
// JSON object or a spreadsheet row. Unknown fields are kept in Extra.
func ProfileFromRecord(rec map[string]any) UserProfile {
	profile := UserProfile{Age: DefaultAge, Extra: make(map[string]any)}
	for key, value := range rec {
		if strings.EqualFold(key, "age") {
			if age, ok := AsInt(value); ok && age > 0 {
				profile.Age = age
			}
			continue
		}
		profile.Extra[key] = value
	}
	return profile
}

// PatternFromRecord reads a daily pattern from a loosely typed record.
// Malformed values are treated as absent.
func PatternFromRecord(rec map[string]any) DailyPattern {
	var p DailyPattern
	if s, ok := rec["wake"].(string); ok {
		p.Wake = strings.TrimSpace(s)
	}
	if s, ok := rec["sleep"].(string); ok {
		p.Sleep = strings.TrimSpace(s)
	}
	if s, ok := rec["morningFeel"].(string); ok {
		p.MorningFeel = s
	}
	if v, ok := AsFloat(rec["goal"]); ok {
		p.Goal = &v
	}
	if v, ok := AsFloat(rec["satisfaction"]); ok {
		p.Satisfaction = &v
	}
	if v, ok := AsFloat(rec["quality"]); ok {
		p.Quality = &v
	}
	if v, ok := AsInt(rec["wakeCount"]); ok {
		p.WakeCount = &v
	}
	return p
}

// AsFloat coerces JSON numbers, Go numerics and numeric strings to float64
func AsFloat(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case int32:
		f = float64(x)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// AsInt coerces a value to int, rounding fractional numbers
func AsInt(v any) (int, bool) {
	f, ok := AsFloat(v)
	if !ok || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}
	return int(math.Round(f)), true
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
