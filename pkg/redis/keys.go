package redis

import (
	"fmt"
	"strings"
)

// Key construction helpers for the sleeplight state store

const keyPrefix = "sleeplight"

// ProfileKey returns the key for a user's onboarding profile (JSON string)
// Pattern: sleeplight:profile:{user}
func ProfileKey(userID string) string {
	return fmt.Sprintf("%s:profile:%s", keyPrefix, userID)
}

// PatternKey returns the key for a user's latest daily pattern (JSON string)
// Pattern: sleeplight:pattern:{user}
func PatternKey(userID string) string {
	return fmt.Sprintf("%s:pattern:%s", keyPrefix, userID)
}

// PatternLogKey returns the key for a user's pattern submissions (list, newest first)
// Pattern: sleeplight:patterns:{user}
func PatternLogKey(userID string) string {
	return fmt.Sprintf("%s:patterns:%s", keyPrefix, userID)
}

// SleepRecordKey returns the key for a user's latest sleep record (JSON string)
// Pattern: sleeplight:sleep:{user}
func SleepRecordKey(userID string) string {
	return fmt.Sprintf("%s:sleep:%s", keyPrefix, userID)
}

// PlanKey returns the key for a user's latest computed plan (JSON string with TTL)
// Pattern: sleeplight:plan:{user}
func PlanKey(userID string) string {
	return fmt.Sprintf("%s:plan:%s", keyPrefix, userID)
}

// UserFromKey extracts the user id from any per-user key
func UserFromKey(key string) string {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) != 3 || parts[0] != keyPrefix {
		return ""
	}
	return parts[2]
}
