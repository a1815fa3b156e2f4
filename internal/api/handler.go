package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/saaga0h/jeeves-sleeplight/internal/light"
	"github.com/saaga0h/jeeves-sleeplight/internal/sleeplight"
	"github.com/saaga0h/jeeves-sleeplight/internal/store"
)

// Records is the record storage the API writes profiles to and reads the
// pattern log from
type Records interface {
	SaveProfile(ctx context.Context, userID string, rec map[string]any) error
	PatternLog(ctx context.Context, userID string) (map[string]any, int64, error)
}

// Planner accepts submissions and produces plans
type Planner interface {
	SubmitPattern(ctx context.Context, userID string, rec map[string]any) error
	SubmitSleep(ctx context.Context, userID string, rec sleeplight.SleepRecord) error
	Replan(ctx context.Context, userID string) (sleeplight.LightPlan, bool, error)
	SetOverride(location string, duration time.Duration) time.Time
	ClearOverride(location string) bool
	Overrides() []light.Override
}

// Handler wires the HTTP transport to the state store and light agent.
type Handler struct {
	records Records
	planner Planner
	logger  *slog.Logger
}

// NewHandler constructs the API handler.
func NewHandler(records Records, planner Planner, logger *slog.Logger) *Handler {
	return &Handler{
		records: records,
		planner: planner,
		logger:  logger.With("component", "http.handler"),
	}
}

type planResponse struct {
	sleeplight.LightPlan
	Published bool `json:"published"`
}

type analyzeResponse struct {
	LatestRow map[string]any `json:"latest_row"`
	Count     int64          `json:"count"`
}

type overrideRequest struct {
	Minutes int `json:"minutes"`
}

// PutProfile stores the user's onboarding profile.
func (h *Handler) PutProfile(c *gin.Context) {
	rec, ok := bindRecord(c)
	if !ok {
		return
	}

	if err := h.records.SaveProfile(c.Request.Context(), c.Param("user"), rec); err != nil {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "store_failed", "failed to store profile", err))
		return
	}

	c.Status(http.StatusNoContent)
}

// PostPattern accepts a daily pattern and re-plans the user.
func (h *Handler) PostPattern(c *gin.Context) {
	rec, ok := bindRecord(c)
	if !ok {
		return
	}

	if err := h.planner.SubmitPattern(c.Request.Context(), c.Param("user"), rec); err != nil {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "store_failed", "failed to store pattern", err))
		return
	}

	c.Status(http.StatusAccepted)
}

// PostSleep accepts a sleep record and re-plans the user.
func (h *Handler) PostSleep(c *gin.Context) {
	rec, ok := bindRecord(c)
	if !ok {
		return
	}

	if err := h.planner.SubmitSleep(c.Request.Context(), c.Param("user"), rec); err != nil {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "store_failed", "failed to store sleep record", err))
		return
	}

	c.Status(http.StatusAccepted)
}

// GetPlan computes, caches and publishes a fresh plan for the user.
func (h *Handler) GetPlan(c *gin.Context) {
	plan, published, err := h.planner.Replan(c.Request.Context(), c.Param("user"))
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "plan_failed", "failed to compute plan", err))
		return
	}

	c.JSON(http.StatusOK, planResponse{LightPlan: plan, Published: published})
}

// Analyze returns the newest pattern submission and how many are kept.
func (h *Handler) Analyze(c *gin.Context) {
	user := strings.TrimSpace(c.Query("user"))
	if user == "" {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "user query parameter is required", nil))
		return
	}

	latest, count, err := h.records.PatternLog(c.Request.Context(), user)
	if errors.Is(err, store.ErrNotFound) {
		abortWithError(c, NewHTTPError(http.StatusNotFound, "not_found", "no data", err))
		return
	}
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "analyze_failed", "failed to read pattern log", err))
		return
	}

	c.JSON(http.StatusOK, analyzeResponse{LatestRow: latest, Count: count})
}

// ListOverrides returns the active manual overrides.
func (h *Handler) ListOverrides(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"overrides": h.planner.Overrides()})
}

// SetOverride suppresses automation for a location. An empty body or zero
// minutes uses the configured default duration.
func (h *Handler) SetOverride(c *gin.Context) {
	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}
	if req.Minutes < 0 {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "minutes must not be negative", nil))
		return
	}

	location := c.Param("location")
	expiresAt := h.planner.SetOverride(location, time.Duration(req.Minutes)*time.Minute)

	c.JSON(http.StatusOK, light.Override{Location: location, ExpiresAt: expiresAt})
}

// ClearOverride removes a location's manual override.
func (h *Handler) ClearOverride(c *gin.Context) {
	location := c.Param("location")
	if !h.planner.ClearOverride(location) {
		abortWithError(c, NewHTTPError(http.StatusNotFound, "not_found", "no override for location", nil))
		return
	}

	c.Status(http.StatusNoContent)
}

// bindRecord decodes a JSON object body, aborting the request otherwise
func bindRecord(c *gin.Context) (map[string]any, bool) {
	var rec map[string]any
	if err := c.ShouldBindJSON(&rec); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return nil, false
	}
	if rec == nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "body must be a JSON object", nil))
		return nil, false
	}
	return rec, true
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
