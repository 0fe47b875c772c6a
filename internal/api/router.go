package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/facegate/internal/access"
	"github.com/your-org/facegate/internal/api/handlers"
	"github.com/your-org/facegate/internal/api/ws"
	"github.com/your-org/facegate/internal/auth"
	"github.com/your-org/facegate/internal/storage"
)

type RouterConfig struct {
	APIKey        string
	MaxImageBytes int
	Store         storage.Store
	// Archive is nil when object storage is not configured.
	Archive storage.ImageArchive
	Engine  *access.Engine
	Hub     *ws.Hub
	// Checks feed /readyz.
	Checks map[string]handlers.Check
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.New(corsConfig()))

	systemH := handlers.NewSystemHandler(cfg.Checks)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.Use(auth.APIKeyMiddleware(cfg.APIKey))

	if cfg.Hub != nil {
		api.GET("/ws", cfg.Hub.HandleWS)
	}

	clientH := handlers.NewClientHandler(cfg.Store, cfg.Engine, cfg.MaxImageBytes)
	api.GET("/clients", clientH.List)
	api.POST("/clients", clientH.Create)
	api.POST("/clients/with-face", clientH.CreateWithFace)
	api.GET("/clients/:id", clientH.Get)
	api.PUT("/clients/:id", clientH.Update)
	api.DELETE("/clients/:id", clientH.Delete)
	api.POST("/register-face", clientH.RegisterFace)

	accessH := handlers.NewAccessHandler(cfg.Engine, cfg.MaxImageBytes)
	api.POST("/verify-access", accessH.Verify)
	api.POST("/search", accessH.Search)

	eventH := handlers.NewEventHandler(cfg.Store, cfg.Archive)
	api.GET("/access-events", eventH.List)
	api.GET("/access-events/:id/snapshot", eventH.Snapshot)

	return r
}

func corsConfig() cors.Config {
	c := cors.DefaultConfig()
	c.AllowAllOrigins = true
	c.AllowHeaders = append(c.AllowHeaders, "X-API-Key")
	return c
}
