package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/sirupsen/logrus"

	"campusride/internal/config"
	"campusride/internal/handler"
	"campusride/internal/middleware"
	internalRedis "campusride/internal/redis"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	RideHandler        *handler.RideHandler
	RideRequestHandler *handler.RideRequestHandler
	UserHandler        *handler.UserHandler
	SettlementHandler  *handler.SettlementHandler
	Cache              internalRedis.ResponseCacheInterface
	Auth               config.AuthConfig
	Logger             logrus.FieldLogger
	NewRelicApp        *newrelic.Application
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.CORSMiddleware())

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API v1 routes. Idempotency keys are scoped to the caller, so the
	// idempotency middleware runs after authentication.
	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(deps.Auth, middleware.ResolversFromConfig(deps.Auth)...))
	v1.Use(middleware.NewRelicAttributes())
	v1.Use(middleware.IdempotencyMiddleware(deps.Cache, deps.Logger))
	{
		// User routes.
		users := v1.Group("/users/me")
		{
			users.GET("", deps.UserHandler.GetProfile)
			users.POST("", deps.UserHandler.SyncProfile)
			users.POST("/phone", deps.UserHandler.StartPhoneVerification)
			users.POST("/phone/verify", deps.UserHandler.VerifyPhone)
		}

		// Ride routes.
		rides := v1.Group("/rides")
		{
			rides.POST("", deps.RideHandler.CreateRide)
			rides.GET("", deps.RideHandler.GetAll)
			rides.GET("/:id", deps.RideHandler.GetRide)
			rides.POST("/:id/start-code", deps.RideHandler.GenerateStartCode)
			rides.POST("/:id/start", deps.RideHandler.VerifyStart)
			rides.POST("/:id/completion-code", deps.RideHandler.GenerateCompletionCode)
			rides.POST("/:id/complete", deps.RideHandler.VerifyCompletion)
			rides.POST("/:id/cancel", deps.RideHandler.CancelRide)
			rides.POST("/:id/counter-offers/accept", deps.RideRequestHandler.AcceptCounterOffer)
		}

		// Ride request routes.
		requests := v1.Group("/ride-requests")
		{
			requests.POST("", deps.RideRequestHandler.Create)
			requests.POST("/:id/approve", deps.RideRequestHandler.Approve)
			requests.POST("/:id/reject", deps.RideRequestHandler.Reject)
			requests.POST("/:id/cancel", deps.RideRequestHandler.Cancel)
			requests.POST("/:id/remove", deps.RideRequestHandler.Remove)
			requests.GET("/:id/payments", deps.RideRequestHandler.Payments)
		}

		// Operator routes.
		admin := v1.Group("/admin", middleware.AdminOnly(deps.Auth.AdminUserIDs))
		{
			admin.POST("/settlement/sweep", deps.SettlementHandler.Sweep)
		}
	}

	return router
}
