package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/saaga0h/jeeves-sleeplight/pkg/config"
)

// NewRouter wires up the HTTP handlers and returns a configured server.
func NewRouter(cfg *config.Config, handler *Handler) *http.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(
		gin.Recovery(),
		requestLogger(handler.logger),
		errorHandlingMiddleware(handler.logger),
	)

	api := router.Group("/api/v1")
	{
		api.PUT("/users/:user/profile", handler.PutProfile)
		api.POST("/users/:user/pattern", handler.PostPattern)
		api.POST("/users/:user/sleep", handler.PostSleep)
		api.GET("/users/:user/plan", handler.GetPlan)
		api.GET("/analyze", handler.Analyze)

		api.GET("/overrides", handler.ListOverrides)
		api.POST("/locations/:location/override", handler.SetOverride)
		api.DELETE("/locations/:location/override", handler.ClearOverride)
	}

	return &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.APIPort),
		Handler:        router,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
}
