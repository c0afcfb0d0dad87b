package services

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/velora-crm/outreach-backend/internal/logger"
)

// Policy carries every phrase list and canned reply the decision layer matches
// against. The lists started life hardcoded and drifted per market; keeping
// them in one loadable document makes the precedence rules testable and lets
// operators extend language coverage without a deploy. The local rejection
// override always wins over the remote classifier when it matches.
type Policy struct {
	OptOutPhrases    []string `yaml:"opt_out_phrases"`
	RejectionPhrases []string `yaml:"rejection_phrases"`

	EscalationKeywords map[string][]string `yaml:"escalation_keywords"`
	AmountCeiling      float64             `yaml:"amount_ceiling"`

	ForbiddenClaims       []string `yaml:"forbidden_claims"`
	ForbiddenPatterns     []string `yaml:"forbidden_patterns"`
	BotDisclosurePatterns []string `yaml:"bot_disclosure_patterns"`

	OptOutReply  string `yaml:"opt_out_reply"`
	HoldingReply string `yaml:"holding_reply"`

	FollowupTemplates map[string][]string `yaml:"followup_templates"`
}

// DefaultPolicy is the compiled-in baseline; a policy file overrides it
// section by section.
func DefaultPolicy() Policy {
	return Policy{
		OptOutPhrases: []string{
			"stop", "unsubscribe", "abmelden", "austragen", "keine nachrichten",
			"nicht mehr schreiben", "lass mich in ruhe", "opt out", "opt-out",
		},
		RejectionPhrases: []string{
			"nein danke", "kein interesse", "kein bedarf", "nicht interessiert",
			"no thanks", "not interested", "keine zeit dafür", "lassen sie es",
		},
		EscalationKeywords: map[string][]string{
			"legal":    {"anwalt", "lawyer", "klage", "lawsuit", "rechtlich", "legal action"},
			"contract": {"vertrag kündigen", "cancel contract", "kündigung", "widerruf"},
			"fraud":    {"betrug", "fraud", "scam", "abzocke", "betrüger"},
			"payment":  {"rückerstattung", "refund", "chargeback", "geld zurück"},
			"threat":   {"anzeige", "polizei", "police", "report you", "verbraucherschutz"},
		},
		AmountCeiling: 10000,
		ForbiddenClaims: []string{
			"guaranteed return", "garantierte rendite", "risk-free", "risikofrei",
			"100% sicher", "versprochen", "guaranteed profit", "kann nicht verlieren",
		},
		ForbiddenPatterns: []string{
			`(?i)garantier\w*\s+(rendite|gewinn|ertrag)`,
			`(?i)guarantee[ds]?\s+(return|profit|income)`,
			`(?i)(kein|no|zero)\s+risiko`,
			`(?i)\d+\s*%\s*(rendite|return)\s*(garantiert|guaranteed)`,
		},
		BotDisclosurePatterns: []string{
			`(?i)i\s+am\s+(a|an)\s+(bot|ai|assistant|program)`,
			`(?i)ich\s+bin\s+(ein|eine)\s+(bot|ki|ai|programm|assistent)`,
			`(?i)as\s+an\s+ai\b`,
			`(?i)als\s+ki\b`,
		},
		OptOutReply:  "Alles klar, Sie erhalten keine weiteren Nachrichten von uns. Falls Sie es sich anders überlegen, schreiben Sie uns einfach.",
		HoldingReply: "Danke für Ihre Nachricht. Ein Kollege schaut sich das persönlich an und meldet sich in Kürze bei Ihnen.",
		FollowupTemplates: map[string][]string{
			"nudge_1": {
				"Wollte nur kurz nachhaken – haben Sie meine letzte Nachricht gesehen?",
				"Kurze Frage: Ist das Thema noch aktuell für Sie?",
			},
			"nudge_2": {
				"Ich will nicht aufdringlich sein – gibt es noch offene Fragen, die ich klären kann?",
				"Falls gerade viel los ist: Sagen Sie einfach kurz Bescheid, wann es besser passt.",
			},
			"nudge_3": {
				"Letzter kurzer Ping von mir – soll ich das Thema erstmal ruhen lassen?",
				"Ein kurzes Ja oder Nein reicht mir, dann weiß ich Bescheid.",
			},
			"reminder": {
				"Es ist etwas Zeit vergangen – falls das Thema wieder relevant wird, bin ich gerne für Sie da.",
			},
		},
	}
}

// LoadPolicy merges an optional YAML policy file over the defaults. A missing
// file is not an error; a malformed one is.
func LoadPolicy(path string, log *logger.Logger) (Policy, error) {
	policy := DefaultPolicy()
	if path == "" {
		return policy, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if log != nil {
				log.Debug("Policy file not found, using defaults", "path", path)
			}
			return policy, nil
		}
		return policy, fmt.Errorf("read policy file: %w", err)
	}

	var overlay Policy
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return policy, fmt.Errorf("parse policy file: %w", err)
	}

	if len(overlay.OptOutPhrases) > 0 {
		policy.OptOutPhrases = overlay.OptOutPhrases
	}
	if len(overlay.RejectionPhrases) > 0 {
		policy.RejectionPhrases = overlay.RejectionPhrases
	}
	if len(overlay.EscalationKeywords) > 0 {
		policy.EscalationKeywords = overlay.EscalationKeywords
	}
	if overlay.AmountCeiling > 0 {
		policy.AmountCeiling = overlay.AmountCeiling
	}
	if len(overlay.ForbiddenClaims) > 0 {
		policy.ForbiddenClaims = overlay.ForbiddenClaims
	}
	if len(overlay.ForbiddenPatterns) > 0 {
		policy.ForbiddenPatterns = overlay.ForbiddenPatterns
	}
	if len(overlay.BotDisclosurePatterns) > 0 {
		policy.BotDisclosurePatterns = overlay.BotDisclosurePatterns
	}
	if overlay.OptOutReply != "" {
		policy.OptOutReply = overlay.OptOutReply
	}
	if overlay.HoldingReply != "" {
		policy.HoldingReply = overlay.HoldingReply
	}
	if len(overlay.FollowupTemplates) > 0 {
		policy.FollowupTemplates = overlay.FollowupTemplates
	}

	if log != nil {
		log.Info("Policy file loaded", "path", path)
	}
	return policy, nil
}
