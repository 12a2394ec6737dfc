package router

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"fiatramp/internal/config"
	"fiatramp/internal/handlers"
	"fiatramp/internal/middleware"
)

// corsMiddleware applies the configured origin whitelist; with no
// configuration every origin is allowed.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		allowedOrigins := []string{"*"}
		allowCredentials := true
		maxAge := 3600
		if config.AppConfig != nil && len(config.AppConfig.CORS.AllowedOrigins) > 0 {
			allowedOrigins = config.AppConfig.CORS.AllowedOrigins
			allowCredentials = config.AppConfig.CORS.AllowCredentials
			if config.AppConfig.CORS.MaxAge > 0 {
				maxAge = config.AppConfig.CORS.MaxAge
			}
		}

		if len(allowedOrigins) == 1 && allowedOrigins[0] == "*" {
			c.Header("Access-Control-Allow-Origin", "*")
		} else if origin != "" {
			for _, allowed := range allowedOrigins {
				if strings.TrimSpace(allowed) == origin {
					c.Header("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}

		if c.Request.Method == "OPTIONS" {
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, Cache-Control, Accept, X-Session-ID")
			if allowCredentials {
				c.Header("Access-Control-Allow-Credentials", "true")
			}
			c.Header("Access-Control-Max-Age", strconv.Itoa(maxAge))
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// Handlers bundles the constructed handlers the router wires up.
type Handlers struct {
	Quote     *handlers.QuoteHandler
	Intent    *handlers.IntentHandler
	Maker     *handlers.MakerHandler
	AdminAuth *handlers.AdminAuthHandler
	Session   *handlers.SessionHandler
	Admin     *middleware.AdminAuth
}

// Setup builds the gin engine with every route registered.
func Setup(h Handlers, logger *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	r.GET("/ping", handlers.PingHandler)
	r.GET("/api/health", handlers.HealthCheckHandler)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	quote := r.Group("/quote")
	{
		quote.POST("/exact-fiat", h.Quote.ExactFiat)
		quote.POST("/exact-token", h.Quote.ExactToken)
	}

	r.POST("/verify/intent", h.Intent.VerifyIntent)

	makers := r.Group("/makers")
	{
		makers.POST("/create", h.Maker.Create)
		makers.GET("/:platform/:hashedOnchainId", h.Maker.Get)
	}

	r.POST("/session/clear", h.Session.Clear)

	admin := r.Group("/admin")
	{
		admin.POST("/login", h.AdminAuth.Login)
		protected := admin.Group("")
		protected.Use(h.Admin.RequireAdmin())
		{
			// Maker management reuses the public handlers behind auth.
			protected.POST("/makers/create", h.Maker.Create)
			protected.GET("/makers/:platform/:hashedOnchainId", h.Maker.Get)
		}
	}

	logger.Info("router initialized")
	return r
}
