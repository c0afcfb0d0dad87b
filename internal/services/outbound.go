package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/velora-crm/outreach-backend/internal/clients/twilio"
	"github.com/velora-crm/outreach-backend/internal/logger"
	"github.com/velora-crm/outreach-backend/internal/repos"
	"github.com/velora-crm/outreach-backend/internal/types"
)

const (
	BlockValidation = "validation_failed"
	BlockSimilarity = "similarity_flagged"
)

// SendOutcome reports what happened to one outbound attempt. Sent and
// Blocked are mutually exclusive; a transport or store failure is returned
// as an error instead, since only those count against the error breaker.
type SendOutcome struct {
	Sent    bool
	Blocked bool
	Reason  string
}

// OutboundService is the single choke point for messages leaving the system.
// Every send, reply, follow-up or campaign opener alike, passes the breaker,
// the validator and the repetition check before it reaches the transport.
type OutboundService interface {
	Send(ctx context.Context, tx *gorm.DB, contact *types.Contact, text string, correlationID uuid.UUID) (SendOutcome, error)
}

type outboundService struct {
	db        *gorm.DB
	log       *logger.Logger
	contacts  repos.ContactRepo
	turns     repos.TurnRepo
	events    repos.EventRepo
	breaker   BreakerService
	validator ValidatorService
	transport twilio.Client
}

func NewOutboundService(db *gorm.DB, baseLog *logger.Logger, contacts repos.ContactRepo, turns repos.TurnRepo, events repos.EventRepo, breaker BreakerService, validator ValidatorService, transport twilio.Client) OutboundService {
	return &outboundService{
		db:        db,
		log:       baseLog.With("service", "OutboundService"),
		contacts:  contacts,
		turns:     turns,
		events:    events,
		breaker:   breaker,
		validator: validator,
		transport: transport,
	}
}

func (s *outboundService) Send(ctx context.Context, tx *gorm.DB, contact *types.Contact, text string, correlationID uuid.UUID) (SendOutcome, error) {
	if ok, reason := s.breaker.CanSend(ctx, contact); !ok {
		s.log.Info("Send blocked", "contact_id", contact.ID.String(), "reason", reason)
		if _, err := s.events.Append(ctx, tx, &contact.ID, types.EventSendBlocked, map[string]any{
			"reason": reason,
		}, correlationID); err != nil {
			return SendOutcome{}, err
		}
		return SendOutcome{Blocked: true, Reason: reason}, nil
	}

	report := s.validator.Validate(ctx, contact, text)
	if !report.Valid {
		codes := make([]string, 0, len(report.Violations))
		for _, v := range report.Violations {
			codes = append(codes, v.Code)
		}
		s.log.Warn("Outbound message rejected by validator", "contact_id", contact.ID.String(), "violations", codes)
		if _, err := s.events.Append(ctx, tx, &contact.ID, types.EventValidationFailed, map[string]any{
			"violations": codes,
		}, correlationID); err != nil {
			return SendOutcome{}, err
		}
		return SendOutcome{Blocked: true, Reason: BlockValidation}, nil
	}

	recent, err := s.turns.GetRecentOutgoing(ctx, tx, contact.ID, similarityWindow)
	if err != nil {
		return SendOutcome{}, fmt.Errorf("load outgoing window: %w", err)
	}
	previous := make([]string, 0, len(recent))
	for _, turn := range recent {
		previous = append(previous, turn.Text)
	}
	if match := CheckSimilarity(text, previous, similarityThreshold); match.Flagged {
		s.log.Warn("Outbound message too similar to a recent one", "contact_id", contact.ID.String(), "score", match.Score)
		if _, err := s.events.Append(ctx, tx, &contact.ID, types.EventSimilarityFlagged, map[string]any{
			"score":    match.Score,
			"position": match.Position,
		}, correlationID); err != nil {
			return SendOutcome{}, err
		}
		return SendOutcome{Blocked: true, Reason: BlockSimilarity}, nil
	}

	msg, err := s.transport.SendText(ctx, contact.Phone, text)
	if err != nil {
		return SendOutcome{}, fmt.Errorf("send text: %w", err)
	}

	if _, err := s.turns.Append(ctx, tx, []*types.ConversationTurn{{
		ContactID:     contact.ID,
		Direction:     types.DirectionOutgoing,
		Text:          text,
		CorrelationID: correlationID,
	}}); err != nil {
		return SendOutcome{}, err
	}
	if _, err := s.events.Append(ctx, tx, &contact.ID, types.EventOutboundMessage, map[string]any{
		"chars":       len([]rune(text)),
		"message_sid": msg.SID,
	}, correlationID); err != nil {
		return SendOutcome{}, err
	}
	now := time.Now().UTC()
	if err := s.contacts.TouchLastContacted(ctx, tx, contact.ID, now); err != nil {
		return SendOutcome{}, err
	}
	contact.LastContactedAt = &now

	s.log.Info("Outbound message sent", "contact_id", contact.ID.String(), "phone", contact.Phone)
	return SendOutcome{Sent: true}, nil
}
