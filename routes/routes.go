package routes

import (
	"log/slog"

	"edith/controllers"
	"edith/middlewares"
	"edith/services"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies are the process-wide collaborators shared by every request.
type Dependencies struct {
	Chat          *services.ChatService
	Admin         *services.KnowledgeAdmin
	Governor      services.RateGovernor
	AllowedOrigin string

	// TrustedProxies lists the proxies whose forwarding headers are believed
	// when resolving the client address. Empty means the socket address is
	// always used.
	TrustedProxies []string
	MaxBodyBytes   int64
}

// DefaultMaxBodyBytes caps request bodies when no limit is configured.
const DefaultMaxBodyBytes = 10 << 20

// SetupRouter wires middleware and routes. Middleware is registered on the
// engine so the rate governor also sees unmatched /api/ paths.
func SetupRouter(deps Dependencies) *gin.Engine {
	r := gin.New()
	if err := r.SetTrustedProxies(deps.TrustedProxies); err != nil {
		slog.Error("Invalid trusted proxy list, trusting none", "error", err)
		_ = r.SetTrustedProxies(nil)
	}

	maxBody := deps.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	r.Use(middlewares.Recovery())
	r.Use(middlewares.Logger())
	r.Use(middlewares.SecureHeaders())
	r.Use(middlewares.CORS(deps.AllowedOrigin))
	r.Use(middlewares.RateLimit(deps.Governor, "/api/"))
	r.Use(middlewares.BodyLimit(maxBody))

	cc := controllers.NewChatController(deps.Chat, deps.Admin)

	api := r.Group("/api")
	{
		api.GET("/health", cc.HandleHealth)
		api.POST("/edith-chat", cc.HandleChat)
		api.POST("/admin/knowledge", cc.HandleKnowledgeUpdate)
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.NoRoute(controllers.HandleNotFound)

	return r
}
