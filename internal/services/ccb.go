package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/velora-crm/outreach-backend/internal/logger"
	"github.com/velora-crm/outreach-backend/internal/repos"
	"github.com/velora-crm/outreach-backend/internal/types"
)

const (
	ccbWindowSize = 12
	ccbCadence    = 3
)

// CCBService builds the Conversation Conclusion Bundle in two passes: a
// strictly-factual extraction pass and a strategy pass on top of it. Either
// pass failing aborts the cycle and leaves the previous bundle authoritative.
type CCBService interface {
	ShouldRegenerate(contact *types.Contact, stageChanged bool) bool
	Regenerate(ctx context.Context, tx *gorm.DB, contact *types.Contact, correlationID uuid.UUID) (*types.CCB, error)
	Current(contact *types.Contact) *types.CCB
}

type ccbService struct {
	db       *gorm.DB
	log      *logger.Logger
	contacts repos.ContactRepo
	turns    repos.TurnRepo
	events   repos.EventRepo
	stages   StageService
	llm      LLMClient
}

func NewCCBService(db *gorm.DB, baseLog *logger.Logger, contacts repos.ContactRepo, turns repos.TurnRepo, events repos.EventRepo, stages StageService, llm LLMClient) CCBService {
	return &ccbService{
		db:       db,
		log:      baseLog.With("service", "CCBService"),
		contacts: contacts,
		turns:    turns,
		events:   events,
		stages:   stages,
		llm:      llm,
	}
}

// ShouldRegenerate keeps LLM cost bounded: regenerate when no bundle exists,
// when the stage just moved, or on the fixed turn cadence.
func (s *ccbService) ShouldRegenerate(contact *types.Contact, stageChanged bool) bool {
	if len(contact.CCB) == 0 {
		return true
	}
	if stageChanged {
		return true
	}
	return contact.TurnCount > 0 && contact.TurnCount%ccbCadence == 0
}

func (s *ccbService) Current(contact *types.Contact) *types.CCB {
	if contact == nil || len(contact.CCB) == 0 {
		return nil
	}
	var bundle types.CCB
	if err := json.Unmarshal(contact.CCB, &bundle); err != nil {
		s.log.Warn("Stored CCB unreadable, treating as absent", "contact_id", contact.ID.String(), "error", err)
		return nil
	}
	return &bundle
}

func (s *ccbService) Regenerate(ctx context.Context, tx *gorm.DB, contact *types.Contact, correlationID uuid.UUID) (*types.CCB, error) {
	window, err := s.turns.GetRecent(ctx, tx, contact.ID, ccbWindowSize)
	if err != nil {
		return nil, fmt.Errorf("load conversation window: %w", err)
	}

	facts, err := s.extractFacts(ctx, contact, window)
	if err != nil {
		// Null-on-failure contract: the previous bundle stays authoritative.
		s.log.Warn("CCB extraction pass failed, keeping previous bundle", "contact_id", contact.ID.String(), "error", err)
		return nil, nil
	}

	strategy, err := s.buildStrategy(ctx, contact, facts)
	if err != nil {
		s.log.Warn("CCB strategy pass failed, keeping previous bundle", "contact_id", contact.ID.String(), "error", err)
		return nil, nil
	}

	previous := s.Current(contact)
	version := 1
	if previous != nil {
		version = previous.Version + 1
	}
	bundle := &types.CCB{
		Version:     version,
		Facts:       *facts,
		Strategy:    *strategy,
		GeneratedAt: time.Now().UTC(),
	}

	raw, err := json.Marshal(bundle)
	if err != nil {
		return nil, err
	}
	if err := s.contacts.SetCCB(ctx, tx, contact.ID, raw); err != nil {
		return nil, err
	}
	contact.CCB = raw

	if _, err := s.events.Append(ctx, tx, &contact.ID, types.EventCCBGenerated, map[string]any{
		"version":           bundle.Version,
		"recommended_stage": strategy.RecommendedStage,
		"risk_delta":        strategy.RiskDelta,
	}, correlationID); err != nil {
		return nil, err
	}

	// Strategy recommendations go through the event-emitting stage path, not
	// a raw write.
	if strategy.RecommendedStage != "" && strategy.RecommendedStage != contact.PipelineStage && validStage(strategy.RecommendedStage) {
		if _, err := s.stages.Transition(ctx, tx, contact, strategy.RecommendedStage, "ccb_recommendation", correlationID); err != nil {
			return nil, err
		}
	}

	if strategy.RiskDelta > 0 {
		newScore := contact.RiskScore + strategy.RiskDelta
		if newScore > 100 {
			newScore = 100
		}
		if err := s.contacts.RaiseRiskScore(ctx, tx, contact.ID, newScore); err != nil {
			return nil, err
		}
		if newScore > contact.RiskScore {
			contact.RiskScore = newScore
		}
	}

	return bundle, nil
}

func validStage(stage string) bool {
	switch stage {
	case types.StageIntro, types.StageQualifying, types.StageValueDelivery,
		types.StageBooking, types.StageFollowUp, types.StageWon, types.StageLost, types.StageDND:
		return true
	}
	return false
}

// ---- Pass A: extraction ----

var factsSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"profile":           map[string]any{"type": "string"},
		"stated_interest":   map[string]any{"type": "string"},
		"budget_mentions":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"timeline_mentions": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"objections":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"sentiment":         map[string]any{"type": "string", "enum": []string{"positive", "neutral", "negative"}},
		"engagement_level":  map[string]any{"type": "string", "enum": []string{"low", "medium", "high"}},
	},
	"required":             []string{"profile", "stated_interest", "budget_mentions", "timeline_mentions", "objections", "sentiment", "engagement_level"},
	"additionalProperties": false,
}

const factsSystemPrompt = `You extract facts from a sales conversation.
Record only what the contact literally said or directly stated. Do not infer,
speculate, or fill gaps. Empty fields are correct when nothing was said.`

func (s *ccbService) extractFacts(ctx context.Context, contact *types.Contact, window []*types.ConversationTurn) (*types.CCBFacts, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Contact stage: %s\n", contact.PipelineStage)
	if contact.DisplayName != nil {
		fmt.Fprintf(&b, "Contact name: %s\n", *contact.DisplayName)
	}
	b.WriteString("\nConversation (oldest first):\n")
	for i := len(window) - 1; i >= 0; i-- {
		turn := window[i]
		role := "contact"
		if turn.Direction == types.DirectionOutgoing {
			role = "agent"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, turn.Text)
	}

	obj, err := s.llm.GenerateJSON(ctx, factsSystemPrompt, b.String(), "ccb_facts", factsSchema)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	var facts types.CCBFacts
	if err := json.Unmarshal(raw, &facts); err != nil {
		return nil, err
	}
	return &facts, nil
}

// ---- Pass B: strategy ----

var strategySchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"recommended_stage": map[string]any{
			"type": "string",
			"enum": []string{
				types.StageIntro, types.StageQualifying, types.StageValueDelivery,
				types.StageBooking, types.StageFollowUp, types.StageWon, types.StageLost, types.StageDND,
			},
		},
		"conclusion": map[string]any{"type": "string"},
		"next_best_actions": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"action":      map[string]any{"type": "string"},
					"rank":        map[string]any{"type": "integer"},
					"needs_human": map[string]any{"type": "boolean"},
				},
				"required":             []string{"action", "rank", "needs_human"},
				"additionalProperties": false,
			},
		},
		"followup": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"max_followups": map[string]any{"type": "integer"},
				"timing":        map[string]any{"type": "string", "enum": []string{"aggressive", "standard", "gentle", "none"}},
				"archetype":     map[string]any{"type": "string"},
			},
			"required":             []string{"max_followups", "timing", "archetype"},
			"additionalProperties": false,
		},
		"risk_delta": map[string]any{"type": "integer"},
		"do_not":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
	},
	"required":             []string{"recommended_stage", "conclusion", "next_best_actions", "followup", "risk_delta", "do_not"},
	"additionalProperties": false,
}

const strategySystemPrompt = `You plan the next move in a sales conversation
from extracted facts. Recommend a funnel stage, rank concrete next actions and
mark any that need a human, propose a follow-up policy, report a risk delta
(0 when nothing concerning happened), and list actions that must not be taken
with this contact.`

func (s *ccbService) buildStrategy(ctx context.Context, contact *types.Contact, facts *types.CCBFacts) (*types.CCBStrategy, error) {
	factsJSON, err := json.Marshal(facts)
	if err != nil {
		return nil, err
	}
	user := fmt.Sprintf("Current stage: %s\nRisk score: %d\n\nExtracted facts:\n%s", contact.PipelineStage, contact.RiskScore, string(factsJSON))

	obj, err := s.llm.GenerateJSON(ctx, strategySystemPrompt, user, "ccb_strategy", strategySchema)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	var strategy types.CCBStrategy
	if err := json.Unmarshal(raw, &strategy); err != nil {
		return nil, err
	}
	return &strategy, nil
}
