package estimator

import (
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/saaga0h/jeeves-sleeplight/internal/sleeplight"
)

// Feature names as they appear in the sleep health dataset the models are trained on
const (
	FeatureAge           = "Age"
	FeatureGender        = "Gender"
	FeatureOccupation    = "Occupation"
	FeatureSleepDuration = "Sleep Duration"
	FeatureStressLevel   = "Stress Level"
	FeatureActivityLevel = "Physical Activity Level"
	FeatureHeartRate     = "Heart Rate"
	FeatureDailySteps    = "Daily Steps"
	FeatureBMICategory   = "BMI Category"
)

// DefaultFeatures is the training column order
var DefaultFeatures = []string{
	FeatureAge,
	FeatureGender,
	FeatureOccupation,
	FeatureSleepDuration,
	FeatureStressLevel,
	FeatureActivityLevel,
	FeatureHeartRate,
	FeatureDailySteps,
	FeatureBMICategory,
}

var categoricalFeatures = map[string]bool{
	FeatureGender:      true,
	FeatureOccupation:  true,
	FeatureBMICategory: true,
}

// Observation is the set of raw feature values found in a user's records
type Observation struct {
	Numeric     map[string]float64
	Categorical map[string]string
}

// spanReference anchors wake/sleep clock strings when computing a duration;
// the date itself does not matter
var spanReference = time.Date(2000, time.January, 1, 12, 0, 0, 0, time.UTC)

// Observe gathers feature values from the profile, pattern and sleep record.
// Sleep Duration falls back to the pattern's sleep span, then to its goal.
func Observe(profile sleeplight.UserProfile, pattern sleeplight.DailyPattern, sleep sleeplight.SleepRecord) Observation {
	obs := Observation{
		Numeric:     make(map[string]float64),
		Categorical: make(map[string]string),
	}
	obs.Numeric[FeatureAge] = float64(profile.AgeYears())

	for _, name := range DefaultFeatures {
		if name == FeatureAge {
			continue
		}
		if categoricalFeatures[name] {
			if v, ok := lookupString(name, sleep, profile.Extra); ok {
				obs.Categorical[name] = v
			}
			continue
		}
		if v, ok := lookupNumber(name, sleep, profile.Extra); ok {
			obs.Numeric[name] = v
		}
	}

	if _, ok := obs.Numeric[FeatureSleepDuration]; !ok {
		if hours, ok := sleeplight.SleepSpanHours(pattern, spanReference); ok {
			obs.Numeric[FeatureSleepDuration] = hours
		} else {
			obs.Numeric[FeatureSleepDuration] = pattern.GoalHours()
		}
	}

	return obs
}

// nightScale maps numeric features onto roughly 0-1 for distance comparisons
var nightScale = []struct {
	name   string
	lo, hi float64
}{
	{FeatureAge, 18, 80},
	{FeatureSleepDuration, 4, 10},
	{FeatureStressLevel, 1, 10},
	{FeatureActivityLevel, 0, 100},
	{FeatureHeartRate, 50, 100},
	{FeatureDailySteps, 0, 15000},
}

// NightVectorDims is the dimension of vectors produced by EmbedNight
var NightVectorDims = len(nightScale)

// EmbedNight converts the numeric features of an observation into a vector for
// nearest-neighbour search. Missing features sit at the middle of their range.
func EmbedNight(obs Observation) pgvector.Vector {
	vec := make([]float32, len(nightScale))
	for i, s := range nightScale {
		v, ok := obs.Numeric[s.name]
		if !ok {
			vec[i] = 0.5
			continue
		}
		scaled := (v - s.lo) / (s.hi - s.lo)
		if scaled < 0 {
			scaled = 0
		} else if scaled > 1 {
			scaled = 1
		}
		vec[i] = float32(scaled)
	}
	return pgvector.NewVector(vec)
}

func lookupNumber(name string, records ...map[string]any) (float64, bool) {
	for _, rec := range records {
		for _, key := range keyVariants(name) {
			if v, ok := rec[key]; ok {
				if f, ok := sleeplight.AsFloat(v); ok {
					return f, true
				}
			}
		}
	}
	return 0, false
}

func lookupString(name string, records ...map[string]any) (string, bool) {
	for _, rec := range records {
		for _, key := range keyVariants(name) {
			if s, ok := rec[key].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s), true
			}
		}
	}
	return "", false
}

// keyVariants returns the spellings a field may arrive under:
// "Sleep Duration", "sleep_duration", "sleepDuration", "sleep duration"
func keyVariants(name string) []string {
	words := strings.Fields(name)
	lower := make([]string, len(words))
	for i, w := range words {
		lower[i] = strings.ToLower(w)
	}

	camel := lower[0]
	for _, w := range lower[1:] {
		camel += strings.ToUpper(w[:1]) + w[1:]
	}

	return []string{
		name,
		strings.Join(lower, "_"),
		camel,
		strings.Join(lower, " "),
	}
}
