package app

import (
	"gorm.io/gorm"

	"github.com/velora-crm/outreach-backend/internal/logger"
	"github.com/velora-crm/outreach-backend/internal/repos"
)

type Repos struct {
	Contacts repos.ContactRepo
	Turns    repos.TurnRepo
	Events   repos.EventRepo
	Settings repos.SettingRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Contacts: repos.NewContactRepo(db, log),
		Turns:    repos.NewTurnRepo(db, log),
		Events:   repos.NewEventRepo(db, log),
		Settings: repos.NewSettingRepo(db, log),
	}
}
