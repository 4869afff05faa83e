package routes

import (
	"net/http"
	"strings"

	"blogposts/handlers"
	"blogposts/metrics"
	"blogposts/middleware"
	"blogposts/websocket"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Dependencies struct {
	Posts   *handlers.PostHandler
	Health  *handlers.HealthHandler
	Metrics *handlers.MetricsHandler
	Counter *metrics.Counter
	Log     *zap.Logger

	AllowedOrigins []string
	// Events and RateLimiter are optional.
	Events      *websocket.Manager
	RateLimiter *middleware.IPRateLimiter
}

func SetupRouter(deps Dependencies) *gin.Engine {
	router := gin.New()

	// Recovery runs inside Logger and Metrics so a recovered panic is
	// still logged and counted as a 500.
	router.Use(
		middleware.RequestID(),
		middleware.Logger(deps.Log),
		middleware.CORS(deps.AllowedOrigins),
		middleware.Metrics(deps.Counter),
		gin.Recovery(),
	)

	router.GET("/health", deps.Health.Health)
	router.GET("/metrics", deps.Metrics.Metrics)
	router.GET("/metrics/prometheus", deps.Metrics.Prometheus)

	if deps.Events != nil {
		origins := deps.AllowedOrigins
		router.GET("/ws", gin.WrapF(deps.Events.Handler(func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || middleware.OriginAllowed(origins, origin)
		})))
	}

	api := router.Group("/api")
	if deps.RateLimiter != nil {
		api.Use(middleware.RateLimit(deps.RateLimiter))
	}

	posts := api.Group("/posts")
	posts.POST("", deps.Posts.CreatePost)
	posts.GET("", deps.Posts.GetPosts)
	posts.GET("/:id", deps.Posts.GetPost)
	posts.PUT("/:id", deps.Posts.UpdatePost)
	posts.DELETE("/:id", deps.Posts.DeletePost)

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Endpoint not found",
				"path":  c.Request.URL.Path,
			})
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})

	return router
}
