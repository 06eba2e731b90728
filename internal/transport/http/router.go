package httptransport

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/weskerllc/cronicorn/internal/repository"
	"github.com/weskerllc/cronicorn/internal/transport/http/handler"
	"github.com/weskerllc/cronicorn/internal/transport/http/middleware"

	sloggin "github.com/samber/slog-gin"
)

func NewRouter(
	logger *slog.Logger,
	jobHandler *handler.JobHandler,
	endpointHandler *handler.EndpointHandler,
	userRepo repository.UserRepository,
	jwtKey []byte,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security())
	r.Use(sloggin.New(logger))
	r.Use(middleware.Metrics())

	authMW := middleware.Auth(jwtKey)
	ensureUser := middleware.EnsureUser(userRepo, logger)

	jobs := r.Group("/jobs", authMW, ensureUser)
	jobs.POST("", jobHandler.Create)
	jobs.GET("", jobHandler.List)
	jobs.GET("/:id", jobHandler.GetByID)
	jobs.PATCH("/:id", jobHandler.Update)
	jobs.DELETE("/:id", jobHandler.Archive)
	jobs.POST("/:id/endpoints", endpointHandler.Create)
	jobs.GET("/:id/endpoints", endpointHandler.ListByJob)

	endpoints := r.Group("/endpoints", authMW, ensureUser)
	endpoints.GET("/:id", endpointHandler.GetByID)
	endpoints.PATCH("/:id", endpointHandler.Update)
	endpoints.DELETE("/:id", endpointHandler.Archive)
	endpoints.POST("/:id/pause", endpointHandler.Pause)
	endpoints.POST("/:id/resume", endpointHandler.Resume)
	endpoints.POST("/:id/clear-hints", endpointHandler.ClearHints)
	endpoints.POST("/:id/test", endpointHandler.TestRun)
	endpoints.GET("/:id/runs", endpointHandler.ListRuns)
	endpoints.GET("/:id/sessions", endpointHandler.ListSessions)

	r.GET("/usage", authMW, ensureUser, endpointHandler.Usage)

	return r
}
