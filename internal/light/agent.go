package light

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/saaga0h/jeeves-sleeplight/internal/estimator"
	"github.com/saaga0h/jeeves-sleeplight/internal/sleeplight"
	"github.com/saaga0h/jeeves-sleeplight/internal/store"
	"github.com/saaga0h/jeeves-sleeplight/pkg/config"
	"github.com/saaga0h/jeeves-sleeplight/pkg/mqtt"
)

// StateStore holds the latest records and plans per user
type StateStore interface {
	SavePattern(ctx context.Context, userID string, rec map[string]any) error
	SaveSleepRecord(ctx context.Context, userID string, rec sleeplight.SleepRecord) error
	Records(ctx context.Context, userID string) (store.Records, error)
	SavePlan(ctx context.Context, userID string, plan sleeplight.LightPlan) error
	ListUsers(ctx context.Context) ([]string, error)
}

// HistoryStore keeps long-term night and plan history
type HistoryStore interface {
	RecordNight(ctx context.Context, userID string, features pgvector.Vector, quality float64, recordedAt time.Time) error
	RecordPlan(ctx context.Context, userID string, plan sleeplight.LightPlan) error
}

// EstimatorSource returns the quality estimator to use for a user
type EstimatorSource func(userID string) sleeplight.QualityEstimator

// sleepQualityKeys are the fields a sleep record may report its quality under
var sleepQualityKeys = []string{"quality", "Quality of Sleep", "quality_of_sleep", "qualityOfSleep"}

// Agent plans sleep-aware lighting for every known user and publishes the
// resulting channel levels to each user's light location
type Agent struct {
	mqtt       mqtt.Client
	state      StateStore
	history    HistoryStore
	estimators EstimatorSource
	cfg        *config.Config
	logger     *slog.Logger
	now        func() time.Time

	overrideManager *OverrideManager
	rateLimiter     *RateLimiter

	// Periodic decision loop
	ticker   *time.Ticker
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewAgent creates a new light agent. history and estimators may be nil.
func NewAgent(
	mqttClient mqtt.Client,
	state StateStore,
	history HistoryStore,
	estimators EstimatorSource,
	cfg *config.Config,
	logger *slog.Logger,
) *Agent {
	return newAgent(mqttClient, state, history, estimators, cfg, logger, time.Now)
}

func newAgent(
	mqttClient mqtt.Client,
	state StateStore,
	history HistoryStore,
	estimators EstimatorSource,
	cfg *config.Config,
	logger *slog.Logger,
	now func() time.Time,
) *Agent {
	minInterval := time.Duration(cfg.MinDecisionIntervalMs) * time.Millisecond

	return &Agent{
		mqtt:            mqttClient,
		state:           state,
		history:         history,
		estimators:      estimators,
		cfg:             cfg,
		logger:          logger,
		now:             now,
		overrideManager: NewOverrideManager(now),
		rateLimiter:     NewRateLimiter(minInterval, now),
		stopChan:        make(chan struct{}),
	}
}

// Start connects to MQTT, subscribes to submissions and runs the periodic
// decision loop until ctx is cancelled
func (a *Agent) Start(ctx context.Context) error {
	a.logger.Info("Starting sleep light agent",
		"service_name", a.cfg.ServiceName,
		"decision_interval_sec", a.cfg.DecisionIntervalSec,
		"manual_override_minutes", a.cfg.ManualOverrideMinutes,
		"min_decision_interval_ms", a.cfg.MinDecisionIntervalMs)

	if err := a.mqtt.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to MQTT: %w", err)
	}

	if err := a.mqtt.Subscribe(mqtt.TopicPatternSubmissions, 1, a.handlePatternMessage); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", mqtt.TopicPatternSubmissions, err)
	}
	a.logger.Info("Subscribed to pattern submissions", "topic", mqtt.TopicPatternSubmissions)

	if err := a.mqtt.Subscribe(mqtt.TopicSleepSubmissions, 1, a.handleSleepMessage); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", mqtt.TopicSleepSubmissions, err)
	}
	a.logger.Info("Subscribed to sleep submissions", "topic", mqtt.TopicSleepSubmissions)

	a.startPeriodicDecisionLoop()

	a.logger.Info("Sleep light agent started and ready")

	<-ctx.Done()
	a.logger.Info("Sleep light agent stopping")

	return nil
}

// Stop stops the decision loop and disconnects from MQTT
func (a *Agent) Stop() {
	a.stopOnce.Do(func() {
		a.logger.Info("Stopping sleep light agent")

		if a.ticker != nil {
			a.ticker.Stop()
		}
		close(a.stopChan)

		a.mqtt.Disconnect()

		a.logger.Info("Sleep light agent stopped")
	})
}

func (a *Agent) startPeriodicDecisionLoop() {
	interval := time.Duration(a.cfg.DecisionIntervalSec) * time.Second
	a.ticker = time.NewTicker(interval)

	go func() {
		a.logger.Info("Starting periodic decision loop", "interval_sec", a.cfg.DecisionIntervalSec)
		for {
			select {
			case <-a.ticker.C:
				a.performPeriodicDecisions(context.Background())
			case <-a.stopChan:
				return
			}
		}
	}()
}

// performPeriodicDecisions re-plans every known user, subject to rate limiting
func (a *Agent) performPeriodicDecisions(ctx context.Context) {
	users, err := a.state.ListUsers(ctx)
	if err != nil {
		a.logger.Error("Failed to list users", "error", err)
		return
	}

	a.logger.Debug("Performing periodic decisions", "user_count", len(users))

	for _, user := range users {
		if _, _, err := a.evaluateUser(ctx, user, false); err != nil {
			a.logger.Error("Periodic decision failed", "user", user, "error", err)
		}
	}

	if cleaned := a.overrideManager.CleanupExpiredOverrides(); cleaned > 0 {
		a.logger.Debug("Cleaned up expired overrides", "count", cleaned)
	}
}

func (a *Agent) handlePatternMessage(msg mqtt.Message) {
	user, rec, ok := a.decodeSubmission(msg)
	if !ok {
		return
	}
	if err := a.SubmitPattern(context.Background(), user, rec); err != nil {
		a.logger.Error("Failed to accept pattern", "user", user, "error", err)
	}
}

func (a *Agent) handleSleepMessage(msg mqtt.Message) {
	user, rec, ok := a.decodeSubmission(msg)
	if !ok {
		return
	}
	if err := a.SubmitSleep(context.Background(), user, rec); err != nil {
		a.logger.Error("Failed to accept sleep record", "user", user, "error", err)
	}
}

// SubmitPattern stores a daily pattern, records the night when it reports a
// quality and re-plans the user immediately. Only a storage failure is returned.
func (a *Agent) SubmitPattern(ctx context.Context, user string, rec map[string]any) error {
	if err := a.state.SavePattern(ctx, user, rec); err != nil {
		return fmt.Errorf("failed to store pattern: %w", err)
	}
	a.logger.Info("Received daily pattern", "user", user)

	if q := sleeplight.PatternFromRecord(rec).Quality; q != nil {
		a.recordNight(ctx, user, *q)
	}

	if _, _, err := a.evaluateUser(ctx, user, true); err != nil {
		a.logger.Error("Failed to re-plan after pattern", "user", user, "error", err)
	}
	return nil
}

// SubmitSleep stores a sleep record, records the night when it reports a
// quality and re-plans the user immediately. Only a storage failure is returned.
func (a *Agent) SubmitSleep(ctx context.Context, user string, rec sleeplight.SleepRecord) error {
	if err := a.state.SaveSleepRecord(ctx, user, rec); err != nil {
		return fmt.Errorf("failed to store sleep record: %w", err)
	}
	a.logger.Info("Received sleep record", "user", user, "fields", len(rec))

	if q, ok := sleepQuality(rec); ok {
		a.recordNight(ctx, user, q)
	}

	if _, _, err := a.evaluateUser(ctx, user, true); err != nil {
		a.logger.Error("Failed to re-plan after sleep record", "user", user, "error", err)
	}
	return nil
}

// decodeSubmission extracts the user from the topic and the JSON object payload
func (a *Agent) decodeSubmission(msg mqtt.Message) (string, map[string]any, bool) {
	topic := msg.Topic()

	user, ok := mqtt.SubmissionUser(topic)
	if !ok {
		a.logger.Warn("Invalid submission topic format", "topic", topic)
		return "", nil, false
	}

	var rec map[string]any
	if err := json.Unmarshal(msg.Payload(), &rec); err != nil || rec == nil {
		a.logger.Error("Failed to parse submission",
			"topic", topic,
			"error", err)
		return "", nil, false
	}

	return user, rec, true
}

// sleepQuality reads a reported quality from a sleep record
func sleepQuality(rec map[string]any) (float64, bool) {
	for _, key := range sleepQualityKeys {
		if q, ok := sleeplight.AsFloat(rec[key]); ok {
			return q, true
		}
	}
	return 0, false
}

// recordNight adds a night with a known quality to the history used by the
// similar-nights estimator
func (a *Agent) recordNight(ctx context.Context, user string, quality float64) {
	if a.history == nil {
		return
	}

	recs, err := a.state.Records(ctx, user)
	if err != nil {
		a.logger.Warn("Failed to load records for night history", "user", user, "error", err)
		return
	}

	features := estimator.EmbedNight(estimator.Observe(recs.Profile, recs.Pattern, recs.Sleep))
	if err := a.history.RecordNight(ctx, user, features, quality, a.now()); err != nil {
		a.logger.Warn("Failed to record night", "user", user, "error", err)
		return
	}

	a.logger.Debug("Recorded night", "user", user, "quality", quality)
}

// PlanForUser computes, caches and archives a fresh plan without publishing it
func (a *Agent) PlanForUser(ctx context.Context, user string) (sleeplight.LightPlan, error) {
	recs, err := a.state.Records(ctx, user)
	if err != nil {
		return sleeplight.LightPlan{}, fmt.Errorf("failed to load records: %w", err)
	}

	var est sleeplight.QualityEstimator
	if a.estimators != nil {
		est = a.estimators(user)
	}

	plan := sleeplight.BuildLightPlan(ctx, recs.Profile, recs.Pattern, recs.Sleep, a.now(), est)
	plan.ID = uuid.NewString()

	if plan.EstimatorErr != nil && !errors.Is(plan.EstimatorErr, sleeplight.ErrNoEstimator) {
		a.logger.Warn("Quality estimator failed, using self-reported quality",
			"user", user,
			"fallback", plan.QualityEstimate,
			"error", plan.EstimatorErr)
	}

	if err := a.state.SavePlan(ctx, user, plan); err != nil {
		return plan, fmt.Errorf("failed to cache plan: %w", err)
	}

	if a.history != nil {
		if err := a.history.RecordPlan(ctx, user, plan); err != nil {
			a.logger.Warn("Failed to archive plan", "user", user, "error", err)
		}
	}

	return plan, nil
}

// Replan computes a plan for the user immediately and publishes it unless the
// user's location is under manual override. It reports whether a command was sent.
func (a *Agent) Replan(ctx context.Context, user string) (sleeplight.LightPlan, bool, error) {
	return a.evaluateUser(ctx, user, true)
}

// evaluateUser plans for one user and publishes the result to their location
func (a *Agent) evaluateUser(ctx context.Context, user string, force bool) (sleeplight.LightPlan, bool, error) {
	location := a.cfg.LocationFor(user)

	if force {
		a.rateLimiter.RecordDecision(location)
	} else if !a.rateLimiter.ShouldMakeDecision(location) {
		a.logger.Debug("Rate limited, skipping decision",
			"user", user,
			"location", location,
			"min_interval_ms", a.cfg.MinDecisionIntervalMs)
		return sleeplight.LightPlan{}, false, nil
	}

	plan, err := a.PlanForUser(ctx, user)
	if err != nil {
		return plan, false, err
	}

	if a.overrideManager.CheckManualOverride(location) {
		a.logger.Debug("Manual override active, command not published",
			"user", user,
			"location", location)
		return plan, false, nil
	}

	if err := a.publishPlan(location, user, plan); err != nil {
		return plan, false, err
	}

	a.logger.Info("Lighting plan published",
		"user", user,
		"location", location,
		"phase", plan.Phase,
		"brightness", plan.BrightnessPct,
		"warm", plan.Warm,
		"cool", plan.Cool,
		"quality", plan.QualityEstimate,
		"quality_source", plan.QualitySource)

	return plan, true, nil
}

// publishPlan publishes the command and lighting context messages for a plan
func (a *Agent) publishPlan(location, user string, plan sleeplight.LightPlan) error {
	timestamp := plan.Timestamp.Format(time.RFC3339)
	reason := planReason(plan)

	commandMsg := map[string]interface{}{
		"action":      "on",
		"brightness":  plan.BrightnessPct,
		"warm":        plan.Warm,
		"cool":        plan.Cool,
		"color_mode":  plan.ColorMode,
		"blend_ratio": plan.BlendRatio,
		"phase":       plan.Phase,
		"reason":      reason,
		"timestamp":   timestamp,
	}

	commandTopic := mqtt.LightCommandTopic(location)
	commandPayload, err := json.Marshal(commandMsg)
	if err != nil {
		return fmt.Errorf("failed to marshal command message: %w", err)
	}

	if err := a.mqtt.Publish(commandTopic, 0, false, commandPayload); err != nil {
		return fmt.Errorf("failed to publish command to %s: %w", commandTopic, err)
	}

	a.logger.Debug("Published lighting command", "topic", commandTopic)

	contextMsg := map[string]interface{}{
		"source":           a.cfg.ServiceName,
		"type":             "lighting",
		"location":         location,
		"user":             user,
		"plan_id":          plan.ID,
		"state":            "on",
		"phase":            plan.Phase,
		"brightness":       plan.BrightnessPct,
		"warm":             plan.Warm,
		"cool":             plan.Cool,
		"quality_estimate": plan.QualityEstimate,
		"quality_source":   plan.QualitySource,
		"reason":           reason,
		"daylight":         daylightAt(a.cfg.Latitude, a.cfg.Longitude, plan.Timestamp),
		"automated":        true,
		"timestamp":        timestamp,
	}

	contextTopic := mqtt.LightContextTopic(location)
	contextPayload, err := json.Marshal(contextMsg)
	if err != nil {
		return fmt.Errorf("failed to marshal context message: %w", err)
	}

	if err := a.mqtt.Publish(contextTopic, 0, false, contextPayload); err != nil {
		return fmt.Errorf("failed to publish context to %s: %w", contextTopic, err)
	}

	a.logger.Debug("Published lighting context", "topic", contextTopic)

	return nil
}

// planReason summarises why the plan looks the way it does
func planReason(plan sleeplight.LightPlan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s, sleep quality %.1f from %s", strings.ReplaceAll(string(plan.Phase), "_", " "), plan.QualityEstimate, plan.QualitySource)
	if plan.EstimatorErr != nil {
		b.WriteString(", estimator unavailable")
	}
	return b.String()
}

// SetOverride suppresses commands for a location. A non-positive duration uses
// ManualOverrideMinutes.
func (a *Agent) SetOverride(location string, duration time.Duration) time.Time {
	if duration <= 0 {
		duration = time.Duration(a.cfg.ManualOverrideMinutes) * time.Minute
	}
	expiresAt := a.overrideManager.SetManualOverride(location, duration)
	a.logger.Info("Manual override set", "location", location, "expires_at", expiresAt)
	return expiresAt
}

// ClearOverride removes a location's override, reporting whether one existed
func (a *Agent) ClearOverride(location string) bool {
	cleared := a.overrideManager.ClearManualOverride(location)
	if cleared {
		a.logger.Info("Manual override cleared", "location", location)
	}
	return cleared
}

// Overrides returns the active manual overrides
func (a *Agent) Overrides() []Override {
	return a.overrideManager.ActiveOverrides()
}
