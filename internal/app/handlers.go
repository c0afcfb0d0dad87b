package app

import (
	"github.com/gin-gonic/gin"

	"github.com/velora-crm/outreach-backend/internal/handlers"
	"github.com/velora-crm/outreach-backend/internal/logger"
	"github.com/velora-crm/outreach-backend/internal/middleware"
	"github.com/velora-crm/outreach-backend/internal/server"
)

type Middleware struct {
	Auth *middleware.AuthMiddleware
}

type Handlers struct {
	Auth     *handlers.AuthHandler
	Contact  *handlers.ContactHandler
	Settings *handlers.SettingsHandler
	Breaker  *handlers.BreakerHandler
	Campaign *handlers.CampaignHandler
	Inbound  *handlers.InboundHandler
}

func wireHandlers(log *logger.Logger, cfg Config, r Repos, s Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Auth:     handlers.NewAuthHandler(s.Auth),
		Contact:  handlers.NewContactHandler(log, r.Contacts, r.Events, s.Consent, s.Escalation),
		Settings: handlers.NewSettingsHandler(log, s.Settings),
		Breaker:  handlers.NewBreakerHandler(log, s.Breaker, s.Settings),
		Campaign: handlers.NewCampaignHandler(log, s.Campaign),
		Inbound:  handlers.NewInboundHandler(log, s.Pipeline, cfg.WebhookSharedSecret),
	}
}

func wireMiddleware(log *logger.Logger, s Services) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth: middleware.NewAuthMiddleware(log, s.Auth),
	}
}

func wireRouter(h Handlers, mw Middleware) *gin.Engine {
	return server.NewRouter(server.RouterConfig{
		AuthHandler:     h.Auth,
		AuthMiddleware:  mw.Auth,
		ContactHandler:  h.Contact,
		SettingsHandler: h.Settings,
		BreakerHandler:  h.Breaker,
		CampaignHandler: h.Campaign,
		InboundHandler:  h.Inbound,
	})
}
