package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/velora-crm/outreach-backend/internal/logger"
	"github.com/velora-crm/outreach-backend/internal/types"
)

// IntentService classifies the latest inbound message against a short
// conversation window. Classification degrades to a neutral result on any
// collaborator failure; it never blocks the pipeline.
type IntentService interface {
	Classify(ctx context.Context, text string, window []*types.ConversationTurn) types.IntentResult
}

type intentService struct {
	log    *logger.Logger
	llm    LLMClient
	policy Policy
}

func NewIntentService(baseLog *logger.Logger, llm LLMClient, policy Policy) IntentService {
	return &intentService{
		log:    baseLog.With("service", "IntentService"),
		llm:    llm,
		policy: policy,
	}
}

var intentSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"intent": map[string]any{
			"type": "string",
			"enum": types.Intents(),
		},
		"sentiment": map[string]any{
			"type": "string",
			"enum": []string{"positive", "neutral", "negative"},
		},
		"urgency": map[string]any{
			"type": "string",
			"enum": []string{"low", "medium", "high"},
		},
		"confidence": map[string]any{"type": "number"},
		"slots": map[string]any{
			"type":                 "object",
			"additionalProperties": true,
		},
	},
	"required":             []string{"intent", "sentiment", "urgency", "confidence"},
	"additionalProperties": false,
}

const intentSystemPrompt = `You classify the latest message of a sales conversation.
Pick exactly one intent from the allowed enum. Judge only what the contact
actually wrote; do not guess unstated intent. Polite refusals such as
"nein danke" are not_interested, never thanks.`

// Classify runs the local rejection override first. The remote classifier has
// mis-scored polite refusals as "thanks" often enough that the override always
// wins when it matches.
func (s *intentService) Classify(ctx context.Context, text string, window []*types.ConversationTurn) types.IntentResult {
	if result, ok := s.localOverride(text); ok {
		s.log.Debug("Local intent override matched", "intent", result.Intent)
		return result
	}

	result, err := s.classifyRemote(ctx, text, window)
	if err != nil {
		s.log.Warn("Intent classification degraded to neutral", "error", err)
		return types.NeutralIntent()
	}
	return result
}

func (s *intentService) localOverride(text string) (types.IntentResult, bool) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return types.IntentResult{}, false
	}
	for _, phrase := range s.policy.RejectionPhrases {
		if phrase == "" {
			continue
		}
		if strings.Contains(normalized, strings.ToLower(phrase)) {
			return types.IntentResult{
				Intent:     types.IntentNotInterested,
				Sentiment:  "negative",
				Urgency:    "low",
				Confidence: 1,
			}, true
		}
	}
	return types.IntentResult{}, false
}

func (s *intentService) classifyRemote(ctx context.Context, text string, window []*types.ConversationTurn) (types.IntentResult, error) {
	var b strings.Builder
	// window arrives newest-first; render oldest-first for the model.
	for i := len(window) - 1; i >= 0; i-- {
		turn := window[i]
		role := "contact"
		if turn.Direction == types.DirectionOutgoing {
			role = "agent"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, turn.Text)
	}
	fmt.Fprintf(&b, "\nLatest message to classify:\n%s", text)

	obj, err := s.llm.GenerateJSON(ctx, intentSystemPrompt, b.String(), "intent_classification", intentSchema)
	if err != nil {
		return types.IntentResult{}, err
	}

	raw, err := json.Marshal(obj)
	if err != nil {
		return types.IntentResult{}, err
	}
	var result types.IntentResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return types.IntentResult{}, err
	}

	if !validIntent(result.Intent) {
		return types.IntentResult{}, fmt.Errorf("classifier returned unknown intent %q", result.Intent)
	}
	return result, nil
}

func validIntent(intent string) bool {
	for _, known := range types.Intents() {
		if intent == known {
			return true
		}
	}
	return false
}
