package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/velora-crm/outreach-backend/internal/logger"
	"github.com/velora-crm/outreach-backend/internal/repos"
	"github.com/velora-crm/outreach-backend/internal/types"
)

// ConsentResult is what the pipeline does with an inbound message after the
// consent check. When OptedOut is set the pipeline stops and sends only the
// fixed acknowledgment.
type ConsentResult struct {
	OptedOut bool
	Reply    string
	Promoted bool
}

type ConsentService interface {
	HandleInbound(ctx context.Context, tx *gorm.DB, contact *types.Contact, text string, correlationID uuid.UUID) (ConsentResult, error)
	CanInitiateContact(contact *types.Contact) bool
	ForceDND(ctx context.Context, tx *gorm.DB, contact *types.Contact, cause string, correlationID uuid.UUID) error
}

type consentService struct {
	db       *gorm.DB
	log      *logger.Logger
	contacts repos.ContactRepo
	events   repos.EventRepo
	stages   StageService
	policy   Policy
}

func NewConsentService(db *gorm.DB, baseLog *logger.Logger, contacts repos.ContactRepo, events repos.EventRepo, stages StageService, policy Policy) ConsentService {
	return &consentService{
		db:       db,
		log:      baseLog.With("service", "ConsentService"),
		contacts: contacts,
		events:   events,
		stages:   stages,
		policy:   policy,
	}
}

// HandleInbound: an explicit opt-out wins over everything. Absent that, any
// reply from an UNKNOWN or SOFT_OPTIN_SENT contact is an implicit opt-in.
func (s *consentService) HandleInbound(ctx context.Context, tx *gorm.DB, contact *types.Contact, text string, correlationID uuid.UUID) (ConsentResult, error) {
	if phrase, ok := s.matchOptOut(text); ok {
		if err := s.ForceDND(ctx, tx, contact, "opt_out:"+phrase, correlationID); err != nil {
			return ConsentResult{}, err
		}
		return ConsentResult{OptedOut: true, Reply: s.policy.OptOutReply}, nil
	}

	switch contact.ConsentStatus {
	case types.ConsentUnknown, types.ConsentSoftOptinSent:
		from := contact.ConsentStatus
		if err := s.contacts.SetConsent(ctx, tx, contact.ID, types.ConsentOptedIn); err != nil {
			return ConsentResult{}, err
		}
		contact.ConsentStatus = types.ConsentOptedIn
		if _, err := s.events.Append(ctx, tx, &contact.ID, types.EventConsentChanged, map[string]any{
			"from":  from,
			"to":    types.ConsentOptedIn,
			"cause": "inbound_reply",
		}, correlationID); err != nil {
			return ConsentResult{}, err
		}
		return ConsentResult{Promoted: true}, nil
	}

	return ConsentResult{}, nil
}

// CanInitiateContact gates cold outreach. UNKNOWN contacts may receive exactly
// one permission-check message; SOFT_OPTIN_SENT means we already asked and are
// waiting, so nothing more goes out until they reply.
func (s *consentService) CanInitiateContact(contact *types.Contact) bool {
	if contact == nil {
		return true
	}
	switch contact.ConsentStatus {
	case types.ConsentUnknown:
		return true
	case types.ConsentOptedIn:
		return true
	case types.ConsentSoftOptinSent:
		return false
	case types.ConsentDND:
		return false
	}
	return false
}

// ForceDND sets consent and stage to DND, pauses the bot, and records the
// cause. Also used by the control plane's force-DND operation.
func (s *consentService) ForceDND(ctx context.Context, tx *gorm.DB, contact *types.Contact, cause string, correlationID uuid.UUID) error {
	if err := s.contacts.SetConsent(ctx, tx, contact.ID, types.ConsentDND); err != nil {
		return err
	}
	contact.ConsentStatus = types.ConsentDND

	if err := s.contacts.SetBotPaused(ctx, tx, contact.ID, true); err != nil {
		return err
	}
	contact.BotPaused = true

	// Stage DND goes through the event-emitting transition path so the stage
	// invariant (stage DND implies consent DND) stays attributable.
	if _, err := s.stages.Transition(ctx, tx, contact, types.StageDND, cause, correlationID); err != nil {
		return err
	}

	if _, err := s.events.Append(ctx, tx, &contact.ID, types.EventDNDSet, map[string]any{
		"cause": cause,
	}, correlationID); err != nil {
		return err
	}

	s.log.Info("Contact set to DND", "contact_id", contact.ID.String(), "cause", cause)
	return nil
}

func (s *consentService) matchOptOut(text string) (string, bool) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return "", false
	}
	for _, phrase := range s.policy.OptOutPhrases {
		if phrase == "" {
			continue
		}
		if strings.Contains(normalized, strings.ToLower(phrase)) {
			return phrase, true
		}
	}
	return "", false
}
