package services

import (
	"context"
	"regexp"
	"strings"

	"github.com/velora-crm/outreach-backend/internal/logger"
	"github.com/velora-crm/outreach-backend/internal/types"
)

// Violation codes. A message can carry several at once; every rule is checked
// independently.
const (
	ViolationLength         = "length"
	ViolationForbiddenClaim = "forbidden_claim"
	ViolationForbiddenRegex = "forbidden_pattern"
	ViolationLinkPolicy     = "link_policy"
	ViolationBotDisclosure  = "bot_disclosure"
)

type Violation struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

// ValidationReport is the outbound firewall's verdict. Valid means zero
// violations; HasCallToAction is advisory only and never affects the verdict.
type ValidationReport struct {
	Valid           bool        `json:"valid"`
	Violations      []Violation `json:"violations"`
	HasCallToAction bool        `json:"has_call_to_action"`
}

type ValidatorService interface {
	Validate(ctx context.Context, contact *types.Contact, text string) ValidationReport
}

type validatorService struct {
	log       *logger.Logger
	settings  SettingsService
	policy    Policy
	forbidden []*regexp.Regexp
	botTells  []*regexp.Regexp
}

var urlRe = regexp.MustCompile(`(?i)\b(?:https?://|www\.)\S+|\b[a-z0-9-]+\.(?:com|de|net|org|io|co|app)\b`)

var ctaRe = regexp.MustCompile(`(?i)\?|(?:lass uns|sollen wir|wollen wir|passt (?:ihnen|dir)|wie wäre|shall we|would you|are you free|melden sie sich)`)

func NewValidatorService(baseLog *logger.Logger, settings SettingsService, policy Policy) ValidatorService {
	s := &validatorService{
		log:      baseLog.With("service", "ValidatorService"),
		settings: settings,
		policy:   policy,
	}
	for _, pattern := range policy.ForbiddenPatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			s.log.Warn("Skipping invalid forbidden pattern", "pattern", pattern, "error", err)
			continue
		}
		s.forbidden = append(s.forbidden, re)
	}
	for _, pattern := range policy.BotDisclosurePatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			s.log.Warn("Skipping invalid bot-disclosure pattern", "pattern", pattern, "error", err)
			continue
		}
		s.botTells = append(s.botTells, re)
	}
	return s
}

// earlyStage is the link-policy cutoff: links are withheld until the contact
// has moved past the opening stages.
func earlyStage(stage string) bool {
	return stage == types.StageIntro || stage == types.StageQualifying
}

func (s *validatorService) Validate(ctx context.Context, contact *types.Contact, text string) ValidationReport {
	report := ValidationReport{Valid: true}
	normalized := strings.ToLower(text)

	maxChars := s.settings.MaxCharsPerMessage(ctx)
	if maxChars > 0 && len([]rune(text)) > maxChars {
		report.Violations = append(report.Violations, Violation{
			Code:   ViolationLength,
			Detail: "message exceeds max_chars_per_message",
		})
	}

	for _, claim := range s.policy.ForbiddenClaims {
		if claim == "" {
			continue
		}
		if strings.Contains(normalized, strings.ToLower(claim)) {
			report.Violations = append(report.Violations, Violation{
				Code:   ViolationForbiddenClaim,
				Detail: claim,
			})
		}
	}

	for _, re := range s.forbidden {
		if re.MatchString(text) {
			report.Violations = append(report.Violations, Violation{
				Code:   ViolationForbiddenRegex,
				Detail: re.String(),
			})
		}
	}

	if urlRe.MatchString(text) {
		linkPolicy := s.settings.LinkPolicy(ctx)
		if linkPolicy == types.LinkPolicyNoLinksUntilEngagement && contact != nil && earlyStage(contact.PipelineStage) {
			report.Violations = append(report.Violations, Violation{
				Code:   ViolationLinkPolicy,
				Detail: "links not allowed before engagement",
			})
		}
	}

	for _, re := range s.botTells {
		if re.MatchString(text) {
			report.Violations = append(report.Violations, Violation{
				Code:   ViolationBotDisclosure,
				Detail: re.String(),
			})
		}
	}

	report.HasCallToAction = ctaRe.MatchString(text)
	report.Valid = len(report.Violations) == 0
	return report
}
