package services

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/velora-crm/outreach-backend/internal/logger"
	"github.com/velora-crm/outreach-backend/internal/repos"
	"github.com/velora-crm/outreach-backend/internal/types"
)

// BlockReason codes from the send gate.
const (
	BlockGlobalDisabled = "global_send_disabled"
	BlockConsentDND     = "consent_dnd"
	BlockBotPaused      = "bot_paused"
	BlockHumanRequired  = "human_required"
)

// BreakerService is the layered kill switch. Layers 1-2 (global toggle,
// per-contact gate) are aggregated by CanSend and checked immediately before
// every send. Layer 3 is the consecutive-error counter: handling exceptions
// increment it, any success resets it, and reaching the threshold flips the
// global toggle off. Layer 4 (content) lives in the validator; a failed
// validation is a blocked send, never a recorded error.
type BreakerService interface {
	CanSend(ctx context.Context, contact *types.Contact) (bool, string)
	RecordError(ctx context.Context) int
	RecordSuccess()
	Resume(ctx context.Context, operator string) error
	ConsecutiveErrors() int
}

type breakerService struct {
	log      *logger.Logger
	settings SettingsService
	events   repos.EventRepo

	maxConsecutiveErrors int64
	errorCount           atomic.Int64
}

func NewBreakerService(baseLog *logger.Logger, settings SettingsService, events repos.EventRepo, maxConsecutiveErrors int) BreakerService {
	if maxConsecutiveErrors <= 0 {
		maxConsecutiveErrors = 3
	}
	return &breakerService{
		log:                  baseLog.With("service", "BreakerService"),
		settings:             settings,
		events:               events,
		maxConsecutiveErrors: int64(maxConsecutiveErrors),
	}
}

func (s *breakerService) CanSend(ctx context.Context, contact *types.Contact) (bool, string) {
	if !s.settings.GlobalSendEnabled(ctx) {
		return false, BlockGlobalDisabled
	}
	if contact != nil {
		if contact.ConsentStatus == types.ConsentDND || contact.PipelineStage == types.StageDND {
			return false, BlockConsentDND
		}
		if contact.BotPaused {
			return false, BlockBotPaused
		}
		if contact.HumanRequired {
			return false, BlockHumanRequired
		}
	}
	return true, ""
}

// RecordError is called once per handling exception. Crossing the threshold
// trips the global toggle; the counter stays latched until Resume.
func (s *breakerService) RecordError(ctx context.Context) int {
	count := s.errorCount.Add(1)
	if count == s.maxConsecutiveErrors {
		s.trip(ctx, count)
	}
	return int(count)
}

func (s *breakerService) RecordSuccess() {
	s.errorCount.Store(0)
}

func (s *breakerService) ConsecutiveErrors() int {
	return int(s.errorCount.Load())
}

func (s *breakerService) trip(ctx context.Context, count int64) {
	s.log.Error("Circuit breaker tripped, disabling global send", "consecutive_errors", count)

	if err := s.settings.Set(ctx, types.SettingGlobalSendEnabled, false); err != nil {
		// The toggle write failing is itself systemic; log loudly, the next
		// CanSend still fails closed on store errors.
		s.log.Error("Failed to persist global send toggle", "error", err)
	}

	if _, err := s.events.Append(ctx, nil, nil, types.EventCircuitBreakerTripped, map[string]any{
		"consecutive_errors": count,
		"threshold":          s.maxConsecutiveErrors,
	}, uuid.New()); err != nil {
		s.log.Error("Failed to record breaker trip event", "error", err)
	}
}

// Resume is the manual recovery path: re-enable sending and zero the counter.
func (s *breakerService) Resume(ctx context.Context, operator string) error {
	if err := s.settings.Set(ctx, types.SettingGlobalSendEnabled, true); err != nil {
		return err
	}
	s.errorCount.Store(0)

	s.log.Info("Circuit breaker manually resumed", "operator", operator)
	return nil
}
