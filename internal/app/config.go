package app

import (
	"github.com/velora-crm/outreach-backend/internal/logger"
	"github.com/velora-crm/outreach-backend/internal/utils"
)

type Config struct {
	Port                 string
	PolicyPath           string
	WebhookSharedSecret  string
	MaxConsecutiveErrors int
}

func LoadConfig(log *logger.Logger) Config {
	return Config{
		Port:                 utils.GetEnv("PORT", "8080", log),
		PolicyPath:           utils.GetEnv("POLICY_PATH", "configs/policy.yaml", log),
		WebhookSharedSecret:  utils.GetEnv("WEBHOOK_SHARED_SECRET", "", log),
		MaxConsecutiveErrors: utils.GetEnvAsInt("BREAKER_MAX_CONSECUTIVE_ERRORS", 3, log),
	}
}
