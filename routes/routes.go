package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"home-services-server/metrics"
	"home-services-server/middleware"
	"home-services-server/services"
	"home-services-server/websocket"
)

// Deps carries everything the HTTP layer needs. Hub and Limiter are optional.
type Deps struct {
	Auth      *services.AuthService
	Bookings  *services.BookingService
	Invoices  *services.InvoiceService
	Messages  *services.MessageService
	Reviews   *services.ReviewService
	Catalog   *services.CatalogService
	Providers *services.ProviderService

	Hub            *websocket.Hub
	Limiter        *middleware.RateLimiter
	AllowedOrigins []string
	Log            *zap.Logger
}

// NewRouter builds the gin engine with the middleware chain and every route.
func NewRouter(d Deps) *gin.Engine {
	router := gin.New()
	router.RedirectTrailingSlash = false
	router.RedirectFixedPath = false
	router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		d.Log.Error("panic recovered", zap.Any("panic", recovered), zap.String("path", c.Request.URL.Path))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "internal error"})
	}))
	router.Use(
		middleware.RequestID(),
		middleware.AccessLog(d.Log),
		middleware.Metrics(),
		middleware.CORSMiddleware(d.AllowedOrigins),
		middleware.SecurityHeadersMiddleware(),
		middleware.InputValidationMiddleware(),
	)

	RegisterRoutes(router, d)
	return router
}

// RegisterRoutes registers all API routes
func RegisterRoutes(router *gin.Engine, d Deps) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"message": "route not found"})
	})

	auth := middleware.AuthMiddleware(d.Auth, d.Log)
	optional := middleware.OptionalAuthMiddleware(d.Auth)

	api := router.Group("/api")
	if d.Limiter != nil {
		api.Use(middleware.RateLimitMiddleware(d.Limiter, d.Log))
	}
	{
		RegisterUserRoutes(api.Group("/users"), d.Auth, auth, d.Log)
		RegisterServiceRoutes(api.Group("/services"), d.Catalog, auth, optional, d.Log)
		RegisterBookingRoutes(api.Group("/bookings", auth), d.Bookings, d.Log)
		RegisterInvoiceRoutes(api.Group("/invoices", auth), d.Invoices, d.Log)
		RegisterPaymentRoutes(api.Group("/payments", auth), d.Invoices, d.Log)
		RegisterMessageRoutes(api.Group("/messages", auth), d.Messages, d.Log)
		RegisterReviewRoutes(api.Group("/reviews"), d.Reviews, auth, optional, d.Log)
		RegisterProviderRoutes(api.Group("/providers"), d.Providers, auth, optional, d.Log)

		if d.Hub != nil {
			api.GET("/ws", middleware.WebSocketAuthMiddleware(d.Auth), serveWebsocket(d.Hub))
		}
	}
}

func serveWebsocket(hub *websocket.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := middleware.CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "authentication required"})
			return
		}
		hub.Serve(c.Writer, c.Request, user.ID, user.Role)
	}
}
