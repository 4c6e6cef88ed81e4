package http

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/layer-3/eden/service"
)

// SetupRouter sets up the Gin router
func SetupRouter(
	authService *service.AuthService,
	bookingService *service.BookingService,
	logger *zap.Logger,
	secureCookies bool,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(logger), SecurityHeaders(secureCookies))

	// Create handlers
	auth := NewAuthHandlers(authService, secureCookies)
	bookings := NewBookingHandlers(bookingService)
	requireSession := SessionAuth(authService)

	api := router.Group("/api")

	// Sign-in routes
	siwe := api.Group("/siwe")
	{
		siwe.GET("/nonce", auth.Nonce)
		siwe.POST("/verify", auth.Verify)
	}
	api.GET("/auth/session", auth.Session)
	api.DELETE("/auth/session", auth.Logout)

	// Booking routes, mutations need a session
	b := api.Group("/bookings")
	{
		b.POST("/check", bookings.Check)
		b.POST("/verify", bookings.Verify)
		b.GET("/:id", bookings.Get)

		b.POST("/create", requireSession, bookings.Create)
		b.DELETE("/:id", requireSession, bookings.Cancel)
		b.POST("/:id/commit", requireSession, bookings.Commit)
		b.POST("/:id/complete", requireSession, bookings.Complete)
	}
	api.GET("/providers/:address/bookings", bookings.ListByProvider)
	api.GET("/clients/:address/bookings", bookings.ListByClient)

	return router
}
