package mqtt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopicBuilders(t *testing.T) {
	assert.Equal(t, "automation/command/light/bedroom", LightCommandTopic("bedroom"))
	assert.Equal(t, "automation/context/lighting/bedroom", LightContextTopic("bedroom"))
	assert.Equal(t, "sleeplight/status/sleeplight-agent", StatusTopic("sleeplight-agent"))
}

func TestSubmissionUser(t *testing.T) {
	user, ok := SubmissionUser("sleeplight/input/pattern/alice")
	assert.True(t, ok)
	assert.Equal(t, "alice", user)

	for _, topic := range []string{
		"sleeplight/input/pattern/",
		"sleeplight/input/pattern",
		"automation/raw/motion/study",
		"sleeplight/input/sleep/alice/extra",
	} {
		_, ok := SubmissionUser(topic)
		assert.False(t, ok, topic)
	}
}
