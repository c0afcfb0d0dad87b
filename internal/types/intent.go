package types

// Classified intents. The stage machine is total over this enum; anything the
// classifier cannot place lands on IntentOther.
const (
	IntentGreeting      = "greeting"
	IntentQuestion      = "question"
	IntentInterest      = "interest"
	IntentNotInterested = "not_interested"
	IntentObjection     = "objection"
	IntentConfirmation  = "confirmation"
	IntentThanks        = "thanks"
	IntentAppointment   = "appointment"
	IntentPricing       = "pricing"
	IntentOther         = "other"
)

// Intents returns the full enum, in a stable order.
func Intents() []string {
	return []string{
		IntentGreeting,
		IntentQuestion,
		IntentInterest,
		IntentNotInterested,
		IntentObjection,
		IntentConfirmation,
		IntentThanks,
		IntentAppointment,
		IntentPricing,
		IntentOther,
	}
}

// IntentResult is the classification collaborator's output.
type IntentResult struct {
	Intent     string         `json:"intent"`
	Sentiment  string         `json:"sentiment"`
	Urgency    string         `json:"urgency"`
	Confidence float64        `json:"confidence"`
	Slots      map[string]any `json:"slots,omitempty"`
}

// NeutralIntent is the degradation fallback when classification fails.
func NeutralIntent() IntentResult {
	return IntentResult{Intent: IntentOther, Sentiment: "neutral", Urgency: "low", Confidence: 0}
}
