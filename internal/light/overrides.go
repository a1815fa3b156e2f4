package light

import (
	"sort"
	"sync"
	"time"
)

// Override is an active manual override for a light location
type Override struct {
	Location  string    `json:"location"`
	ExpiresAt time.Time `json:"expires_at"`
}

// OverrideManager tracks manual overrides. While an override is active the
// agent keeps planning for the location but publishes no commands.
type OverrideManager struct {
	mu        sync.Mutex
	overrides map[string]time.Time
	now       func() time.Time
}

// NewOverrideManager creates a new override manager. A nil clock uses time.Now.
func NewOverrideManager(now func() time.Time) *OverrideManager {
	if now == nil {
		now = time.Now
	}
	return &OverrideManager{
		overrides: make(map[string]time.Time),
		now:       now,
	}
}

// SetManualOverride suppresses automation for a location for the given duration
func (om *OverrideManager) SetManualOverride(location string, duration time.Duration) time.Time {
	om.mu.Lock()
	defer om.mu.Unlock()

	expiresAt := om.now().Add(duration)
	om.overrides[location] = expiresAt

	return expiresAt
}

// CheckManualOverride reports whether an override is active for a location.
// Expired overrides are removed.
func (om *OverrideManager) CheckManualOverride(location string) bool {
	om.mu.Lock()
	defer om.mu.Unlock()

	expiresAt, exists := om.overrides[location]
	if !exists {
		return false
	}

	if !om.now().Before(expiresAt) {
		delete(om.overrides, location)
		return false
	}

	return true
}

// ClearManualOverride removes an override, reporting whether one existed
func (om *OverrideManager) ClearManualOverride(location string) bool {
	om.mu.Lock()
	defer om.mu.Unlock()

	if _, exists := om.overrides[location]; !exists {
		return false
	}
	delete(om.overrides, location)
	return true
}

// ActiveOverrides returns the unexpired overrides sorted by location
func (om *OverrideManager) ActiveOverrides() []Override {
	om.mu.Lock()
	defer om.mu.Unlock()

	now := om.now()
	active := make([]Override, 0, len(om.overrides))
	for location, expiresAt := range om.overrides {
		if now.Before(expiresAt) {
			active = append(active, Override{Location: location, ExpiresAt: expiresAt})
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].Location < active[j].Location })

	return active
}

// CleanupExpiredOverrides removes all expired overrides
func (om *OverrideManager) CleanupExpiredOverrides() int {
	om.mu.Lock()
	defer om.mu.Unlock()

	now := om.now()
	cleaned := 0
	for location, expiresAt := range om.overrides {
		if !now.Before(expiresAt) {
			delete(om.overrides, location)
			cleaned++
		}
	}

	return cleaned
}
