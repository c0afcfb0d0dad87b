package services

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/velora-crm/outreach-backend/internal/logger"
	"github.com/velora-crm/outreach-backend/internal/repos"
	"github.com/velora-crm/outreach-backend/internal/types"
)

// NextStage is the conversation state machine: a pure, total function over
// (stage, intent). Any intent not listed for a stage is a self-loop, so a
// contact never regresses on noise. WON and DND absorb everything; LOST only
// re-opens on a fresh interest signal.
func NextStage(stage, intent string) string {
	switch stage {
	case types.StageIntro:
		switch intent {
		case types.IntentInterest, types.IntentQuestion, types.IntentPricing, types.IntentGreeting, types.IntentConfirmation:
			return types.StageQualifying
		case types.IntentNotInterested:
			return types.StageLost
		}
		return types.StageIntro

	case types.StageQualifying:
		switch intent {
		case types.IntentAppointment:
			return types.StageBooking
		case types.IntentNotInterested:
			return types.StageLost
		case types.IntentInterest, types.IntentConfirmation, types.IntentQuestion, types.IntentThanks:
			return types.StageValueDelivery
		}
		return types.StageQualifying

	case types.StageValueDelivery:
		switch intent {
		case types.IntentAppointment, types.IntentConfirmation, types.IntentInterest, types.IntentThanks:
			return types.StageBooking
		case types.IntentNotInterested:
			return types.StageLost
		}
		return types.StageValueDelivery

	case types.StageBooking:
		switch intent {
		case types.IntentConfirmation:
			return types.StageWon
		case types.IntentNotInterested:
			return types.StageLost
		}
		return types.StageBooking

	case types.StageFollowUp:
		switch intent {
		case types.IntentInterest, types.IntentQuestion, types.IntentConfirmation:
			return types.StageQualifying
		case types.IntentNotInterested:
			return types.StageLost
		}
		return types.StageFollowUp

	case types.StageLost:
		if intent == types.IntentInterest {
			return types.StageQualifying
		}
		return types.StageLost

	case types.StageWon:
		return types.StageWon

	case types.StageDND:
		return types.StageDND
	}

	// Unknown stage: treat as INTRO so a corrupt row cannot wedge the pipeline.
	return types.StageIntro
}

// StageService persists transitions. Every actual stage change goes through
// Apply so it is attributable to a cause and leaves a STAGE_CHANGED event;
// self-loops write and emit nothing.
type StageService interface {
	Apply(ctx context.Context, tx *gorm.DB, contact *types.Contact, intent string, correlationID uuid.UUID) (string, bool, error)
	Transition(ctx context.Context, tx *gorm.DB, contact *types.Contact, toStage, reason string, correlationID uuid.UUID) (bool, error)
}

type stageService struct {
	db        *gorm.DB
	log       *logger.Logger
	contacts  repos.ContactRepo
	events    repos.EventRepo
}

func NewStageService(db *gorm.DB, baseLog *logger.Logger, contacts repos.ContactRepo, events repos.EventRepo) StageService {
	return &stageService{
		db:       db,
		log:      baseLog.With("service", "StageService"),
		contacts: contacts,
		events:   events,
	}
}

func (s *stageService) Apply(ctx context.Context, tx *gorm.DB, contact *types.Contact, intent string, correlationID uuid.UUID) (string, bool, error) {
	next := NextStage(contact.PipelineStage, intent)
	if next == contact.PipelineStage {
		return next, false, nil
	}
	changed, err := s.Transition(ctx, tx, contact, next, "intent:"+intent, correlationID)
	return next, changed, err
}

func (s *stageService) Transition(ctx context.Context, tx *gorm.DB, contact *types.Contact, toStage, reason string, correlationID uuid.UUID) (bool, error) {
	if toStage == contact.PipelineStage {
		return false, nil
	}
	fromStage := contact.PipelineStage

	if err := s.contacts.SetStage(ctx, tx, contact.ID, toStage, reason); err != nil {
		return false, err
	}
	contact.PipelineStage = toStage
	contact.StageReason = reason

	if _, err := s.events.Append(ctx, tx, &contact.ID, types.EventStageChanged, map[string]any{
		"from":   fromStage,
		"to":     toStage,
		"reason": reason,
	}, correlationID); err != nil {
		return false, err
	}

	s.log.Info("Stage changed",
		"contact_id", contact.ID.String(),
		"from", fromStage,
		"to", toStage,
		"reason", reason,
	)
	return true, nil
}
