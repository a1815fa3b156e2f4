package sleeplight

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatternFromRecord(t *testing.T) {
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{
		"wake": " 06:45 ",
		"sleep": "22:30",
		"goal": "7.5",
		"satisfaction": 4,
		"morningFeel": "good",
		"wakeCount": "2",
		"quality": "n/a"
	}`), &rec))

	p := PatternFromRecord(rec)

	assert.Equal(t, "06:45", p.Wake)
	assert.Equal(t, "22:30", p.Sleep)
	assert.Equal(t, 7.5, p.GoalHours())
	assert.Equal(t, 4.0, p.SatisfactionScore())
	assert.Equal(t, "good", p.Feel())
	assert.Equal(t, 2, p.WakeCountValue())
	assert.Nil(t, p.Quality)
	assert.Equal(t, DefaultQuality, p.SelfReportedQuality())
}

func TestDailyPatternDefaults(t *testing.T) {
	p := PatternFromRecord(map[string]any{"wake": 700, "wakeCount": -3})

	assert.Empty(t, p.Wake)
	assert.Equal(t, DefaultGoalHours, p.GoalHours())
	assert.Equal(t, DefaultSatisfaction, p.SatisfactionScore())
	assert.Equal(t, DefaultMorningFeel, p.Feel())
	assert.Equal(t, 0, p.WakeCountValue())
	assert.Equal(t, DefaultQuality, p.SelfReportedQuality())
}

func TestProfileFromRecord(t *testing.T) {
	profile := ProfileFromRecord(map[string]any{
		"Age":        "34",
		"Gender":     "Male",
		"Occupation": "Nurse",
	})
	assert.Equal(t, 34, profile.AgeYears())
	assert.Equal(t, "Male", profile.Extra["Gender"])
	assert.Equal(t, "Nurse", profile.Extra["Occupation"])
	assert.NotContains(t, profile.Extra, "Age")

	assert.Equal(t, DefaultAge, ProfileFromRecord(map[string]any{"age": "unknown"}).AgeYears())
	assert.Equal(t, DefaultAge, ProfileFromRecord(map[string]any{"age": -4}).AgeYears())
	assert.Equal(t, DefaultAge, UserProfile{}.AgeYears())
}

func TestParseClock(t *testing.T) {
	now := time.Date(2026, time.June, 2, 15, 4, 5, 0, time.FixedZone("KST", 9*3600))

	got, ok := ParseClock("7:05", now)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, time.June, 2, 7, 5, 0, 0, now.Location()), got)

	for _, bad := range []string{"", "07", "07:5", "24:00", "12:61", "ab:cd", "07:00:00"} {
		_, ok := ParseClock(bad, now)
		assert.False(t, ok, "expected %q to be rejected", bad)
	}
}

func TestSleepSpanHours(t *testing.T) {
	now := time.Date(2026, time.June, 2, 12, 0, 0, 0, time.UTC)

	hours, ok := SleepSpanHours(DailyPattern{Wake: "07:00", Sleep: "23:00"}, now)
	require.True(t, ok)
	assert.Equal(t, 8.0, hours)

	hours, ok = SleepSpanHours(DailyPattern{Wake: "09:30", Sleep: "01:00"}, now)
	require.True(t, ok)
	assert.Equal(t, 8.5, hours)

	_, ok = SleepSpanHours(DailyPattern{Wake: "07:00"}, now)
	assert.False(t, ok)
}
