package mqtt

import (
	"fmt"
	"strings"
)

// Topic constants for sleep lighting
const (
	// Submissions (input), last segment is the user id
	TopicPatternSubmissions = "sleeplight/input/pattern/+"
	TopicSleepSubmissions   = "sleeplight/input/sleep/+"

	// Lighting output bases, last segment is the light location
	TopicLightCommandBase = "automation/command/light"
	TopicLightContextBase = "automation/context/lighting"

	// Agent availability (retained)
	TopicStatusBase = "sleeplight/status"
)

// LightCommandTopic constructs the command topic for a light location
// Pattern: automation/command/light/{location}
func LightCommandTopic(location string) string {
	return fmt.Sprintf("%s/%s", TopicLightCommandBase, location)
}

// LightContextTopic constructs the lighting context topic for a location
// Pattern: automation/context/lighting/{location}
func LightContextTopic(location string) string {
	return fmt.Sprintf("%s/%s", TopicLightContextBase, location)
}

// StatusTopic constructs the availability topic for a service
// Pattern: sleeplight/status/{service}
func StatusTopic(serviceName string) string {
	return fmt.Sprintf("%s/%s", TopicStatusBase, serviceName)
}

// SubmissionUser extracts the user id from a submission topic
// sleeplight/input/{kind}/{user} -> user
func SubmissionUser(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != "sleeplight" || parts[1] != "input" || parts[3] == "" {
		return "", false
	}
	return parts[3], true
}
