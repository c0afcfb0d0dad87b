package types

import "time"

// CCBFacts holds what the contact actually said, extracted verbatim from the
// conversation window. Nothing in here is inferred.
type CCBFacts struct {
	Profile          string   `json:"profile"`
	StatedInterest   string   `json:"stated_interest"`
	BudgetMentions   []string `json:"budget_mentions"`
	TimelineMentions []string `json:"timeline_mentions"`
	Objections       []string `json:"objections"`
	Sentiment        string   `json:"sentiment"`
	EngagementLevel  string   `json:"engagement_level"`
}

// NextBestAction is one ranked recommendation from the strategy pass.
type NextBestAction struct {
	Action     string `json:"action"`
	Rank       int    `json:"rank"`
	NeedsHuman bool   `json:"needs_human"`
}

// FollowupPolicy is the strategy pass's follow-up recommendation.
type FollowupPolicy struct {
	MaxFollowups int    `json:"max_followups"`
	Timing       string `json:"timing"`
	Archetype    string `json:"archetype"`
}

// CCBStrategy is the actionable half of the bundle.
type CCBStrategy struct {
	RecommendedStage string           `json:"recommended_stage"`
	Conclusion       string           `json:"conclusion"`
	NextBestActions  []NextBestAction `json:"next_best_actions"`
	Followup         FollowupPolicy   `json:"followup"`
	RiskDelta        int              `json:"risk_delta"`
	DoNot            []string         `json:"do_not"`
}

// CCB is the Conversation Conclusion Bundle. Only the latest version is
// authoritative; regeneration replaces the document wholesale.
type CCB struct {
	Version     int         `json:"version"`
	Facts       CCBFacts    `json:"facts"`
	Strategy    CCBStrategy `json:"strategy"`
	GeneratedAt time.Time   `json:"generated_at"`
}
