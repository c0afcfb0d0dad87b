package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/velora-crm/outreach-backend/internal/clients/twilio"
	"github.com/velora-crm/outreach-backend/internal/logger"
	"github.com/velora-crm/outreach-backend/internal/repos"
	"github.com/velora-crm/outreach-backend/internal/types"
)

const intentWindowSize = 6

// PipelineService runs the full decision chain for one inbound message:
// consent, escalation, intent, stage, CCB refresh, reply. Handling is
// serialized per contact so concurrent messages from the same phone cannot
// interleave stage transitions or CCB writes.
type PipelineService interface {
	HandleInbound(ctx context.Context, phone, text string) error
}

type pipelineService struct {
	db         *gorm.DB
	log        *logger.Logger
	contacts   repos.ContactRepo
	turns      repos.TurnRepo
	events     repos.EventRepo
	consent    ConsentService
	escalation EscalationService
	intents    IntentService
	stages     StageService
	ccb        CCBService
	settings   SettingsService
	outbound   OutboundService
	breaker    BreakerService
	transport  twilio.Client
	llm        LLMClient

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewPipelineService(db *gorm.DB, baseLog *logger.Logger, contacts repos.ContactRepo, turns repos.TurnRepo, events repos.EventRepo, consent ConsentService, escalation EscalationService, intents IntentService, stages StageService, ccb CCBService, settings SettingsService, outbound OutboundService, breaker BreakerService, transport twilio.Client, llm LLMClient) PipelineService {
	return &pipelineService{
		db:         db,
		log:        baseLog.With("service", "PipelineService"),
		contacts:   contacts,
		turns:      turns,
		events:     events,
		consent:    consent,
		escalation: escalation,
		intents:    intents,
		stages:     stages,
		ccb:        ccb,
		settings:   settings,
		outbound:   outbound,
		breaker:    breaker,
		transport:  transport,
		llm:        llm,
		locks:      make(map[string]*sync.Mutex),
	}
}

// contactLock returns the mutex serializing handling for one phone number.
// Locks are never evicted; the set of distinct contacts is small relative to
// message volume.
func (s *pipelineService) contactLock(phone string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[phone]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[phone] = lock
	}
	return lock
}

func (s *pipelineService) HandleInbound(ctx context.Context, phone, text string) error {
	lock := s.contactLock(phone)
	lock.Lock()
	defer lock.Unlock()

	err := s.handle(ctx, phone, text)
	if err != nil {
		s.log.Error("Inbound handling failed", "phone", phone, "error", err)
		s.breaker.RecordError(ctx)
		return err
	}
	s.breaker.RecordSuccess()
	return nil
}

func (s *pipelineService) handle(ctx context.Context, phone, text string) error {
	correlationID := uuid.New()

	contact, err := s.contacts.GetOrCreateByPhone(ctx, nil, phone)
	if err != nil {
		return fmt.Errorf("resolve contact: %w", err)
	}

	if _, err := s.turns.Append(ctx, nil, []*types.ConversationTurn{{
		ContactID:     contact.ID,
		Direction:     types.DirectionIncoming,
		Text:          text,
		CorrelationID: correlationID,
	}}); err != nil {
		return fmt.Errorf("append inbound turn: %w", err)
	}
	if _, err := s.events.Append(ctx, nil, &contact.ID, types.EventInboundMessage, map[string]any{
		"chars": len([]rune(text)),
	}, correlationID); err != nil {
		return err
	}
	now := time.Now().UTC()
	if err := s.contacts.TouchLastInbound(ctx, nil, contact.ID, now); err != nil {
		return err
	}
	contact.LastInboundAt = &now
	turnCount, err := s.contacts.IncrementTurnCount(ctx, nil, contact.ID)
	if err != nil {
		return err
	}
	contact.TurnCount = turnCount

	consentResult, err := s.consent.HandleInbound(ctx, nil, contact, text, correlationID)
	if err != nil {
		return err
	}
	if consentResult.OptedOut {
		// The opt-out acknowledgment is the one message a DND contact still
		// receives; it skips the per-contact gate but not the kill switch.
		return s.sendAcknowledgment(ctx, contact, consentResult.Reply, correlationID)
	}

	escResult, err := s.escalation.Scan(ctx, nil, contact, text, correlationID)
	if err != nil {
		return err
	}
	if escResult.Escalated {
		s.log.Info("Pipeline short-circuited by escalation", "contact_id", contact.ID.String(), "triggers", escResult.Triggers)
		return s.sendAcknowledgment(ctx, contact, escResult.Reply, correlationID)
	}

	window, err := s.turns.GetRecent(ctx, nil, contact.ID, intentWindowSize)
	if err != nil {
		return err
	}
	result := s.intents.Classify(ctx, text, window)
	if _, err := s.events.Append(ctx, nil, &contact.ID, types.EventIntentClassified, map[string]any{
		"intent":     result.Intent,
		"sentiment":  result.Sentiment,
		"confidence": result.Confidence,
	}, correlationID); err != nil {
		return err
	}

	_, stageChanged, err := s.stages.Apply(ctx, nil, contact, result.Intent, correlationID)
	if err != nil {
		return err
	}

	if s.ccb.ShouldRegenerate(contact, stageChanged) {
		if _, err := s.ccb.Regenerate(ctx, nil, contact, correlationID); err != nil {
			return err
		}
	}

	if types.TerminalStage(contact.PipelineStage) {
		return nil
	}
	if !s.settings.AutoReplyEnabled(ctx) {
		s.log.Info("Auto-reply disabled, no reply generated", "contact_id", contact.ID.String())
		return nil
	}

	reply := s.generateReply(ctx, contact, text, result, window)
	if reply == "" {
		return nil
	}
	outcome, err := s.outbound.Send(ctx, nil, contact, reply, correlationID)
	if err != nil {
		return err
	}
	if outcome.Blocked {
		s.log.Info("Reply blocked by outbound gate", "contact_id", contact.ID.String(), "reason", outcome.Reason)
	}
	return nil
}

// sendAcknowledgment delivers a fixed terminal reply (opt-out confirmation or
// escalation holding message) directly over the transport. These must reach
// the contact even though their record is now DND or human-required, so only
// the global toggle applies.
func (s *pipelineService) sendAcknowledgment(ctx context.Context, contact *types.Contact, text string, correlationID uuid.UUID) error {
	if text == "" {
		return nil
	}
	if !s.settings.GlobalSendEnabled(ctx) {
		s.log.Warn("Acknowledgment suppressed, global sending disabled", "contact_id", contact.ID.String())
		return nil
	}
	if _, err := s.transport.SendText(ctx, contact.Phone, text); err != nil {
		return fmt.Errorf("send acknowledgment: %w", err)
	}
	if _, err := s.turns.Append(ctx, nil, []*types.ConversationTurn{{
		ContactID:     contact.ID,
		Direction:     types.DirectionOutgoing,
		Text:          text,
		CorrelationID: correlationID,
	}}); err != nil {
		return err
	}
	if _, err := s.events.Append(ctx, nil, &contact.ID, types.EventOutboundMessage, map[string]any{
		"chars":       len([]rune(text)),
		"acknowledge": true,
	}, correlationID); err != nil {
		return err
	}
	return s.contacts.TouchLastContacted(ctx, nil, contact.ID, time.Now().UTC())
}

const replySystemPrompt = `You are a helpful, concise human sales assistant
writing one short chat message in the contact's language. Never promise
returns, never pressure, never reveal that you are automated. Ask at most one
question. Keep it under two sentences.`

// generateReply asks the LLM for a reply candidate, steered by the current
// CCB strategy. Degradation here is silent: no reply is better than a bad one.
func (s *pipelineService) generateReply(ctx context.Context, contact *types.Contact, text string, intent types.IntentResult, window []*types.ConversationTurn) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Stage: %s\nDetected intent: %s (%s)\n", contact.PipelineStage, intent.Intent, intent.Sentiment)
	if bundle := s.ccb.Current(contact); bundle != nil {
		if bundle.Strategy.Conclusion != "" {
			fmt.Fprintf(&b, "Conversation summary: %s\n", bundle.Strategy.Conclusion)
		}
		if len(bundle.Strategy.NextBestActions) > 0 {
			fmt.Fprintf(&b, "Suggested next action: %s\n", bundle.Strategy.NextBestActions[0].Action)
		}
		if len(bundle.Strategy.DoNot) > 0 {
			fmt.Fprintf(&b, "Never do: %s\n", strings.Join(bundle.Strategy.DoNot, "; "))
		}
	}
	b.WriteString("\nRecent conversation (oldest first):\n")
	for i := len(window) - 1; i >= 0; i-- {
		role := "contact"
		if window[i].Direction == types.DirectionOutgoing {
			role = "you"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, window[i].Text)
	}
	fmt.Fprintf(&b, "contact: %s\n\nWrite your reply.", text)

	reply, err := s.llm.GenerateText(ctx, replySystemPrompt, b.String())
	if err != nil {
		s.log.Warn("Reply generation failed, skipping reply", "contact_id", contact.ID.String(), "error", err)
		return ""
	}
	return strings.TrimSpace(reply)
}
