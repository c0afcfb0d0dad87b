package services

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/velora-crm/outreach-backend/internal/logger"
	"github.com/velora-crm/outreach-backend/internal/repos"
	"github.com/velora-crm/outreach-backend/internal/types"
)

// EscalationResult reports whether a message forced a human handoff. When
// Escalated is set the pipeline stops and sends only the holding reply.
type EscalationResult struct {
	Escalated bool
	Triggers  []string
	Reply     string
}

type EscalationService interface {
	Scan(ctx context.Context, tx *gorm.DB, contact *types.Contact, text string, correlationID uuid.UUID) (EscalationResult, error)
	Resume(ctx context.Context, tx *gorm.DB, contact *types.Contact, operator string, correlationID uuid.UUID) error
}

type escalationService struct {
	db       *gorm.DB
	log      *logger.Logger
	contacts repos.ContactRepo
	events   repos.EventRepo
	policy   Policy
}

func NewEscalationService(db *gorm.DB, baseLog *logger.Logger, contacts repos.ContactRepo, events repos.EventRepo, policy Policy) EscalationService {
	return &escalationService{
		db:       db,
		log:      baseLog.With("service", "EscalationService"),
		contacts: contacts,
		events:   events,
		policy:   policy,
	}
}

// amountRe matches common money formats: 15000, 15.000, 15,000.50, 15000€.
var amountRe = regexp.MustCompile(`\b\d{1,3}(?:[.,]\d{3})*(?:[.,]\d{1,2})?\b`)

// Scan checks keyword categories, repeated mentions of the same trigger word,
// and numeric amounts above the policy ceiling. Any hit sets human_required,
// which only an explicit Resume ever clears.
func (s *escalationService) Scan(ctx context.Context, tx *gorm.DB, contact *types.Contact, text string, correlationID uuid.UUID) (EscalationResult, error) {
	triggers := s.findTriggers(text)
	if len(triggers) == 0 {
		return EscalationResult{}, nil
	}

	if err := s.contacts.SetHumanRequired(ctx, tx, contact.ID, true); err != nil {
		return EscalationResult{}, err
	}
	contact.HumanRequired = true

	newScore := contact.RiskScore + len(triggers)*15
	if newScore > 100 {
		newScore = 100
	}
	if err := s.contacts.RaiseRiskScore(ctx, tx, contact.ID, newScore); err != nil {
		return EscalationResult{}, err
	}
	if newScore > contact.RiskScore {
		contact.RiskScore = newScore
	}

	if _, err := s.events.Append(ctx, tx, &contact.ID, types.EventEscalationTriggered, map[string]any{
		"triggers":   triggers,
		"risk_score": contact.RiskScore,
	}, correlationID); err != nil {
		return EscalationResult{}, err
	}

	s.log.Warn("Escalation triggered",
		"contact_id", contact.ID.String(),
		"triggers", strings.Join(triggers, ","),
		"risk_score", contact.RiskScore,
	)
	return EscalationResult{Escalated: true, Triggers: triggers, Reply: s.policy.HoldingReply}, nil
}

// Resume is the only path that clears human_required. It is an explicit
// operator action, never automatic.
func (s *escalationService) Resume(ctx context.Context, tx *gorm.DB, contact *types.Contact, operator string, correlationID uuid.UUID) error {
	if err := s.contacts.SetHumanRequired(ctx, tx, contact.ID, false); err != nil {
		return err
	}
	contact.HumanRequired = false

	if _, err := s.events.Append(ctx, tx, &contact.ID, types.EventHumanTakeover, map[string]any{
		"action":   "resume",
		"operator": operator,
	}, correlationID); err != nil {
		return err
	}

	s.log.Info("Human takeover cleared", "contact_id", contact.ID.String(), "operator", operator)
	return nil
}

func (s *escalationService) findTriggers(text string) []string {
	normalized := strings.ToLower(text)
	var triggers []string

	categories := make([]string, 0, len(s.policy.EscalationKeywords))
	for category := range s.policy.EscalationKeywords {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	for _, category := range categories {
		for _, word := range s.policy.EscalationKeywords[category] {
			word = strings.ToLower(word)
			if word == "" {
				continue
			}
			count := strings.Count(normalized, word)
			if count == 0 {
				continue
			}
			triggers = append(triggers, "keyword:"+category+":"+word)
			if count >= 2 {
				triggers = append(triggers, "repeated:"+category+":"+word)
			}
			break // one hit per category is enough
		}
	}

	if s.policy.AmountCeiling > 0 {
		for _, match := range amountRe.FindAllString(normalized, -1) {
			if parseAmount(match) > s.policy.AmountCeiling {
				triggers = append(triggers, "amount:"+match)
				break
			}
		}
	}

	return triggers
}

// parseAmount handles both German (15.000,50) and English (15,000.50) digit
// grouping by treating a trailing 1-2 digit group as decimals.
func parseAmount(raw string) float64 {
	cleaned := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)

	// Strip decimal digits when the original had a 1-2 digit fraction group.
	if idx := strings.LastIndexAny(raw, ".,"); idx >= 0 {
		fraction := raw[idx+1:]
		if len(fraction) <= 2 {
			cleaned = cleaned[:len(cleaned)-len(fraction)]
		}
	}

	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return v
}
