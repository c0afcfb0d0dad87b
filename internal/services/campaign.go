package services

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/velora-crm/outreach-backend/internal/logger"
	"github.com/velora-crm/outreach-backend/internal/repos"
	"github.com/velora-crm/outreach-backend/internal/types"
	"github.com/velora-crm/outreach-backend/internal/utils"
)

// CampaignStats summarizes one campaign run.
type CampaignStats struct {
	Attempted int
	Sent      int
	Skipped   int
	Blocked   int
	Failed    int
}

// CampaignService opens conversations with cold contacts at a deliberately
// human pace. The breaker gate is consulted immediately before every single
// send, and every pacing sleep doubles as a cancellation point, so a
// kill-switch trip stops an in-flight run within one interval.
type CampaignService interface {
	RunOpener(ctx context.Context, opener string) (CampaignStats, error)
}

type campaignService struct {
	db       *gorm.DB
	log      *logger.Logger
	contacts repos.ContactRepo
	events   repos.EventRepo
	consent  ConsentService
	breaker  BreakerService
	outbound OutboundService

	minDelay  time.Duration
	maxDelay  time.Duration
	batchSize int
	cooldown  time.Duration
}

func NewCampaignService(db *gorm.DB, baseLog *logger.Logger, contacts repos.ContactRepo, events repos.EventRepo, consent ConsentService, breaker BreakerService, outbound OutboundService) CampaignService {
	log := baseLog.With("service", "CampaignService")
	return &campaignService{
		db:        db,
		log:       log,
		contacts:  contacts,
		events:    events,
		consent:   consent,
		breaker:   breaker,
		outbound:  outbound,
		minDelay:  time.Duration(utils.GetEnvAsInt("CAMPAIGN_MIN_DELAY_SECONDS", 45, log)) * time.Second,
		maxDelay:  time.Duration(utils.GetEnvAsInt("CAMPAIGN_MAX_DELAY_SECONDS", 180, log)) * time.Second,
		batchSize: utils.GetEnvAsInt("CAMPAIGN_BATCH_SIZE", 10, log),
		cooldown:  time.Duration(utils.GetEnvAsInt("CAMPAIGN_COOLDOWN_MINUTES", 15, log)) * time.Minute,
	}
}

// RunOpener sends a permission-check opener to every contact whose consent is
// still UNKNOWN, marking each SOFT_OPTIN_SENT so they are not contacted again
// until they reply.
func (s *campaignService) RunOpener(ctx context.Context, opener string) (CampaignStats, error) {
	targets, err := s.contacts.ListByConsent(ctx, nil, types.ConsentUnknown)
	if err != nil {
		return CampaignStats{}, err
	}
	s.log.Info("Campaign run starting", "targets", len(targets))

	var stats CampaignStats
	sentInBatch := 0
	for _, contact := range targets {
		if err := ctx.Err(); err != nil {
			s.log.Info("Campaign cancelled", "sent", stats.Sent)
			return stats, err
		}
		stats.Attempted++

		if !s.consent.CanInitiateContact(contact) {
			stats.Skipped++
			continue
		}
		// Global state can flip mid-run; re-check right before the send.
		if ok, reason := s.breaker.CanSend(ctx, contact); !ok {
			s.log.Info("Campaign send blocked", "contact_id", contact.ID.String(), "reason", reason)
			stats.Blocked++
			if reason == BlockGlobalDisabled {
				s.log.Warn("Global sending disabled, aborting campaign run")
				return stats, nil
			}
			continue
		}

		correlationID := uuid.New()
		outcome, err := s.outbound.Send(ctx, nil, contact, opener, correlationID)
		if err != nil {
			s.log.Error("Campaign send failed", "contact_id", contact.ID.String(), "error", err)
			s.breaker.RecordError(ctx)
			stats.Failed++
			continue
		}
		if outcome.Blocked {
			stats.Blocked++
			continue
		}
		s.breaker.RecordSuccess()
		stats.Sent++
		sentInBatch++

		if err := s.contacts.SetConsent(ctx, nil, contact.ID, types.ConsentSoftOptinSent); err != nil {
			return stats, err
		}
		contact.ConsentStatus = types.ConsentSoftOptinSent
		if _, err := s.events.Append(ctx, nil, &contact.ID, types.EventConsentChanged, map[string]any{
			"from": types.ConsentUnknown,
			"to":   types.ConsentSoftOptinSent,
		}, correlationID); err != nil {
			return stats, err
		}

		pause := s.interSendDelay()
		if sentInBatch >= s.batchSize {
			pause = s.cooldown
			sentInBatch = 0
			s.log.Info("Campaign batch complete, cooling down", "cooldown", pause.String())
		}
		if err := s.sleep(ctx, pause); err != nil {
			s.log.Info("Campaign cancelled during pacing", "sent", stats.Sent)
			return stats, err
		}
	}

	s.log.Info("Campaign run finished", "sent", stats.Sent, "skipped", stats.Skipped, "blocked", stats.Blocked, "failed", stats.Failed)
	return stats, nil
}

func (s *campaignService) interSendDelay() time.Duration {
	if s.maxDelay <= s.minDelay {
		return s.minDelay
	}
	return s.minDelay + time.Duration(rand.Int63n(int64(s.maxDelay-s.minDelay)))
}

func (s *campaignService) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
