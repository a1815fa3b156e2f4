package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/saaga0h/jeeves-sleeplight/internal/sleeplight"
	"github.com/saaga0h/jeeves-sleeplight/pkg/config"
	"github.com/saaga0h/jeeves-sleeplight/pkg/redis"
)

// ErrNotFound is returned when a user has no stored record of the requested kind
var ErrNotFound = errors.New("record not found")

// State keeps the latest records and plan for each user in Redis.
// Records are stored as the raw JSON objects that were submitted so fields the
// planner ignores stay available to estimators.
type State struct {
	redis  redis.Client
	cfg    *config.Config
	logger *slog.Logger
}

// NewState creates a new Redis-backed state store
func NewState(redisClient redis.Client, cfg *config.Config, logger *slog.Logger) *State {
	return &State{
		redis:  redisClient,
		cfg:    cfg,
		logger: logger,
	}
}

// Records bundles everything the planner needs for one user
type Records struct {
	Profile sleeplight.UserProfile
	Pattern sleeplight.DailyPattern
	Sleep   sleeplight.SleepRecord
}

// SaveProfile stores the user's onboarding record
func (s *State) SaveProfile(ctx context.Context, userID string, rec map[string]any) error {
	return s.setJSON(ctx, redis.ProfileKey(userID), rec, 0)
}

// GetProfile returns the user's onboarding profile
func (s *State) GetProfile(ctx context.Context, userID string) (sleeplight.UserProfile, error) {
	var rec map[string]any
	if err := s.getJSON(ctx, redis.ProfileKey(userID), &rec); err != nil {
		return sleeplight.UserProfile{}, err
	}
	return sleeplight.ProfileFromRecord(rec), nil
}

// SavePattern stores the user's latest daily pattern and appends it to the
// pattern log, keeping at most PatternHistory entries
func (s *State) SavePattern(ctx context.Context, userID string, rec map[string]any) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal pattern: %w", err)
	}

	if err := s.redis.Set(ctx, redis.PatternKey(userID), string(data), 0); err != nil {
		return fmt.Errorf("failed to store pattern: %w", err)
	}

	logKey := redis.PatternLogKey(userID)
	if err := s.redis.LPush(ctx, logKey, string(data)); err != nil {
		return fmt.Errorf("failed to append pattern log: %w", err)
	}

	if s.cfg.PatternHistory > 0 {
		if err := s.redis.LTrim(ctx, logKey, 0, int64(s.cfg.PatternHistory-1)); err != nil {
			return fmt.Errorf("failed to trim pattern log: %w", err)
		}
	}

	return nil
}

// GetPattern returns the user's latest daily pattern
func (s *State) GetPattern(ctx context.Context, userID string) (sleeplight.DailyPattern, error) {
	var rec map[string]any
	if err := s.getJSON(ctx, redis.PatternKey(userID), &rec); err != nil {
		return sleeplight.DailyPattern{}, err
	}
	return sleeplight.PatternFromRecord(rec), nil
}

// PatternLog returns the newest logged pattern submission and the number of
// submissions kept
func (s *State) PatternLog(ctx context.Context, userID string) (map[string]any, int64, error) {
	key := redis.PatternLogKey(userID)

	count, err := s.redis.LLen(ctx, key)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read pattern log length: %w", err)
	}
	if count == 0 {
		return nil, 0, ErrNotFound
	}

	items, err := s.redis.LRange(ctx, key, 0, 0)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read pattern log: %w", err)
	}
	if len(items) == 0 {
		return nil, 0, ErrNotFound
	}

	var latest map[string]any
	if err := json.Unmarshal([]byte(items[0]), &latest); err != nil {
		return nil, 0, fmt.Errorf("failed to unmarshal logged pattern: %w", err)
	}

	return latest, count, nil
}

// SaveSleepRecord stores the user's latest sleep record
func (s *State) SaveSleepRecord(ctx context.Context, userID string, rec sleeplight.SleepRecord) error {
	return s.setJSON(ctx, redis.SleepRecordKey(userID), rec, 0)
}

// GetSleepRecord returns the user's latest sleep record
func (s *State) GetSleepRecord(ctx context.Context, userID string) (sleeplight.SleepRecord, error) {
	var rec sleeplight.SleepRecord
	if err := s.getJSON(ctx, redis.SleepRecordKey(userID), &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Records loads profile, pattern and sleep record for a user. Missing records are
// left at their zero value; only storage failures are returned.
func (s *State) Records(ctx context.Context, userID string) (Records, error) {
	var recs Records
	var err error

	if recs.Profile, err = s.GetProfile(ctx, userID); err != nil && !errors.Is(err, ErrNotFound) {
		return Records{}, err
	}
	if recs.Pattern, err = s.GetPattern(ctx, userID); err != nil && !errors.Is(err, ErrNotFound) {
		return Records{}, err
	}
	if recs.Sleep, err = s.GetSleepRecord(ctx, userID); err != nil && !errors.Is(err, ErrNotFound) {
		return Records{}, err
	}

	return recs, nil
}

// SavePlan caches the user's latest plan for PlanTTLMinutes
func (s *State) SavePlan(ctx context.Context, userID string, plan sleeplight.LightPlan) error {
	ttl := time.Duration(s.cfg.PlanTTLMinutes) * time.Minute
	return s.setJSON(ctx, redis.PlanKey(userID), plan, ttl)
}

// GetPlan returns the user's cached plan
func (s *State) GetPlan(ctx context.Context, userID string) (sleeplight.LightPlan, error) {
	var plan sleeplight.LightPlan
	if err := s.getJSON(ctx, redis.PlanKey(userID), &plan); err != nil {
		return sleeplight.LightPlan{}, err
	}
	return plan, nil
}

// ListUsers returns every user with a stored profile, pattern or sleep record
func (s *State) ListUsers(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)

	for _, pattern := range []string{
		redis.ProfileKey("*"),
		redis.PatternKey("*"),
		redis.SleepRecordKey("*"),
	} {
		keys, err := s.redis.Keys(ctx, pattern)
		if err != nil {
			return nil, fmt.Errorf("failed to list users: %w", err)
		}
		for _, key := range keys {
			if user := redis.UserFromKey(key); user != "" {
				seen[user] = true
			}
		}
	}

	users := make([]string, 0, len(seen))
	for user := range seen {
		users = append(users, user)
	}
	sort.Strings(users)

	return users, nil
}

func (s *State) setJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := s.redis.Set(ctx, key, string(data), ttl); err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}
	return nil
}

func (s *State) getJSON(ctx context.Context, key string, v any) error {
	data, err := s.redis.Get(ctx, key)
	if errors.Is(err, redis.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		s.logger.Warn("Discarding unreadable record", "key", key, "error", err)
		return ErrNotFound
	}
	return nil
}
