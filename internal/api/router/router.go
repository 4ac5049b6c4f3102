package router

import (
	"context"
	"net/http"
	"time"

	"github.com/cuongbtq/gigmarket-be/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// Config holds the router settings that do not belong to the handlers
type Config struct {
	ServiceName string
	Auth        AuthConfig
	// FilesDir, when set, is served under /files for the local file store.
	FilesDir string
	// HealthChecks are run by /health, keyed by dependency name.
	HealthChecks map[string]HealthCheck
}

// HealthCheck reports whether one dependency is usable
type HealthCheck func(ctx context.Context) error

const healthCheckTimeout = 3 * time.Second

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies, cfg Config) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", healthHandler(cfg))

	if cfg.FilesDir != "" {
		r.Static("/files", cfg.FilesDir)
	}

	jobHandler := handler.NewJobHandler(deps)
	applicationHandler := handler.NewApplicationHandler(deps)
	submissionHandler := handler.NewSubmissionHandler(deps)
	messageHandler := handler.NewMessageHandler(deps)
	userHandler := handler.NewUserHandler(deps)
	uploadHandler := handler.NewUploadHandler(deps)

	v1 := r.Group("/api/v1")

	// Job browsing is public
	v1.GET("/jobs", jobHandler.ListJobs)
	v1.GET("/jobs/:id", jobHandler.GetJob)

	authed := v1.Group("", AuthMiddleware(cfg.Auth, deps.Logger))
	{
		jobs := authed.Group("/jobs")
		{
			jobs.POST("", jobHandler.CreateJob)
			jobs.PUT("/:id", jobHandler.UpdateJob)
			jobs.DELETE("/:id", jobHandler.DeleteJob)

			jobs.POST("/:id/escrow", jobHandler.FundEscrow)
			jobs.GET("/:id/escrow", jobHandler.GetEscrow)
			jobs.POST("/:id/escrow/confirm", jobHandler.ConfirmDelivery)
			jobs.POST("/:id/escrow/refund", jobHandler.RefundEscrow)
		}

		applications := authed.Group("/applications")
		{
			applications.POST("", applicationHandler.CreateApplication)
			applications.GET("/me", applicationHandler.ListMine)
			applications.GET("/job/:jobId", applicationHandler.ListForJob)
			applications.PUT("/:id", applicationHandler.UpdateStatus)
		}

		submissions := authed.Group("/submissions")
		{
			submissions.POST("", submissionHandler.SubmitWork)
			submissions.GET("/job/:jobId", submissionHandler.ListForJob)
			submissions.PUT("/:id", submissionHandler.Review)
		}

		messages := authed.Group("/messages")
		{
			messages.POST("", messageHandler.SendMessage)
			messages.GET("/job/:jobId", messageHandler.ListForJob)
		}

		users := authed.Group("/users")
		{
			users.GET("/me", userHandler.Me)
			users.PUT("/me", userHandler.UpdateMe)
		}

		authed.POST("/uploads", uploadHandler.Upload)
	}

	return r
}

func healthHandler(cfg Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		defer cancel()

		status, code := "healthy", http.StatusOK
		checks := make(map[string]string, len(cfg.HealthChecks))
		for name, check := range cfg.HealthChecks {
			if err := check(ctx); err != nil {
				checks[name] = err.Error()
				status, code = "unhealthy", http.StatusServiceUnavailable
				continue
			}
			checks[name] = "ok"
		}

		c.JSON(code, gin.H{
			"status":  status,
			"service": cfg.ServiceName,
			"checks":  checks,
		})
	}
}
