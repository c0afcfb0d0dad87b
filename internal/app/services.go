package app

import (
	"fmt"

	"gorm.io/gorm"

	redisclient "github.com/velora-crm/outreach-backend/internal/clients/redis"
	"github.com/velora-crm/outreach-backend/internal/clients/twilio"
	"github.com/velora-crm/outreach-backend/internal/logger"
	"github.com/velora-crm/outreach-backend/internal/services"
)

type Services struct {
	Auth       services.AuthService
	Settings   services.SettingsService
	Intents    services.IntentService
	Stages     services.StageService
	Consent    services.ConsentService
	Escalation services.EscalationService
	Validator  services.ValidatorService
	Breaker    services.BreakerService
	CCB        services.CCBService
	Outbound   services.OutboundService
	Pipeline   services.PipelineService
	Followup   services.FollowupService
	Campaign   services.CampaignService
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, r Repos, transport twilio.Client, llm services.LLMClient, bus redisclient.SettingsBus) (Services, error) {
	log.Info("Wiring services...")

	policy, err := services.LoadPolicy(cfg.PolicyPath, log)
	if err != nil {
		return Services{}, fmt.Errorf("load policy: %w", err)
	}

	authService, err := services.NewAuthService(log)
	if err != nil {
		return Services{}, fmt.Errorf("init auth: %w", err)
	}
	settingsService, err := services.NewSettingsService(db, log, r.Settings, bus)
	if err != nil {
		return Services{}, fmt.Errorf("init settings: %w", err)
	}

	stageService := services.NewStageService(db, log, r.Contacts, r.Events)
	intentService := services.NewIntentService(log, llm, policy)
	consentService := services.NewConsentService(db, log, r.Contacts, r.Events, stageService, policy)
	escalationService := services.NewEscalationService(db, log, r.Contacts, r.Events, policy)
	validatorService := services.NewValidatorService(log, settingsService, policy)
	breakerService := services.NewBreakerService(log, settingsService, r.Events, cfg.MaxConsecutiveErrors)
	ccbService := services.NewCCBService(db, log, r.Contacts, r.Turns, r.Events, stageService, llm)
	outboundService := services.NewOutboundService(db, log, r.Contacts, r.Turns, r.Events, breakerService, validatorService, transport)
	pipelineService := services.NewPipelineService(db, log, r.Contacts, r.Turns, r.Events, consentService, escalationService, intentService, stageService, ccbService, settingsService, outboundService, breakerService, transport, llm)
	followupService := services.NewFollowupService(db, log, r.Contacts, r.Turns, r.Events, ccbService, outboundService, settingsService, policy)
	campaignService := services.NewCampaignService(db, log, r.Contacts, r.Events, consentService, breakerService, outboundService)

	return Services{
		Auth:       authService,
		Settings:   settingsService,
		Intents:    intentService,
		Stages:     stageService,
		Consent:    consentService,
		Escalation: escalationService,
		Validator:  validatorService,
		Breaker:    breakerService,
		CCB:        ccbService,
		Outbound:   outboundService,
		Pipeline:   pipelineService,
		Followup:   followupService,
		Campaign:   campaignService,
	}, nil
}
