package server

import (
  "github.com/gin-gonic/gin"
  "github.com/gin-contrib/cors"
  "go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
  "github.com/velora-crm/outreach-backend/internal/handlers"
  "github.com/velora-crm/outreach-backend/internal/middleware"
)

type RouterConfig struct {
  AuthHandler       *handlers.AuthHandler
  AuthMiddleware    *middleware.AuthMiddleware
  ContactHandler    *handlers.ContactHandler
  SettingsHandler   *handlers.SettingsHandler
  BreakerHandler    *handlers.BreakerHandler
  CampaignHandler   *handlers.CampaignHandler
  InboundHandler    *handlers.InboundHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
  router := gin.Default()
  router.Use(otelgin.Middleware("outreach-backend"))

  // Cors
  router.Use(cors.New(cors.Config{
    AllowOrigins: []string{
      "http://localhost:80",
      "http://localhost:3000",
      "http://localhost:5174",
    },
    AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
    AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
    AllowCredentials: true,
  }))

// ===============
// || Public    ||
// ===============
  router.GET("/healthcheck", handlers.HealthCheck)
  router.POST("/login", cfg.AuthHandler.Login)
  // Transport webhook guards itself with a shared secret.
  router.POST("/inbound", cfg.InboundHandler.Receive)

// ===============
// || Protected ||
// ===============
  protected := router.Group("/")
  protected.Use(cfg.AuthMiddleware.RequireAuth())
  // Contacts
  protected.GET("/contacts", cfg.ContactHandler.List)
  protected.GET("/contacts/:id", cfg.ContactHandler.Get)
  protected.GET("/contacts/:id/events", cfg.ContactHandler.Events)
  protected.POST("/contacts/:id/resume", cfg.ContactHandler.Resume)
  protected.POST("/contacts/:id/dnd", cfg.ContactHandler.SetDND)
  // Settings
  protected.GET("/settings", cfg.SettingsHandler.GetAll)
  protected.PUT("/settings", cfg.SettingsHandler.Put)
  // Breaker
  protected.GET("/breaker", cfg.BreakerHandler.Status)
  protected.POST("/breaker/resume", cfg.BreakerHandler.Resume)
  // Campaign
  protected.POST("/campaign/start", cfg.CampaignHandler.Start)
  protected.POST("/campaign/stop", cfg.CampaignHandler.Stop)

  return router
}
