package services

import (
	"testing"

	"github.com/velora-crm/outreach-backend/internal/types"
)

func allStages() []string {
	return []string{
		types.StageIntro, types.StageQualifying, types.StageValueDelivery,
		types.StageBooking, types.StageFollowUp, types.StageWon, types.StageLost, types.StageDND,
	}
}

func TestNextStageTotality(t *testing.T) {
	valid := map[string]bool{}
	for _, s := range allStages() {
		valid[s] = true
	}
	inputs := append(types.Intents(), "garbage", "")
	for _, stage := range allStages() {
		for _, intent := range inputs {
			next := NextStage(stage, intent)
			if !valid[next] {
				t.Fatalf("NextStage(%q, %q) = %q, not a known stage", stage, intent, next)
			}
		}
	}
}

func TestNextStageTransitionTable(t *testing.T) {
	cases := []struct {
		stage  string
		intent string
		want   string
	}{
		{types.StageIntro, types.IntentInterest, types.StageQualifying},
		{types.StageIntro, types.IntentQuestion, types.StageQualifying},
		{types.StageIntro, types.IntentPricing, types.StageQualifying},
		{types.StageIntro, types.IntentGreeting, types.StageQualifying},
		{types.StageIntro, types.IntentConfirmation, types.StageQualifying},
		{types.StageIntro, types.IntentNotInterested, types.StageLost},
		{types.StageIntro, types.IntentObjection, types.StageIntro},
		{types.StageQualifying, types.IntentAppointment, types.StageBooking},
		{types.StageQualifying, types.IntentNotInterested, types.StageLost},
		{types.StageQualifying, types.IntentThanks, types.StageValueDelivery},
		{types.StageQualifying, types.IntentOther, types.StageQualifying},
		{types.StageValueDelivery, types.IntentAppointment, types.StageBooking},
		{types.StageValueDelivery, types.IntentConfirmation, types.StageBooking},
		{types.StageValueDelivery, types.IntentNotInterested, types.StageLost},
		{types.StageValueDelivery, types.IntentQuestion, types.StageValueDelivery},
		{types.StageBooking, types.IntentConfirmation, types.StageWon},
		{types.StageBooking, types.IntentNotInterested, types.StageLost},
		{types.StageBooking, types.IntentQuestion, types.StageBooking},
		{types.StageFollowUp, types.IntentInterest, types.StageQualifying},
		{types.StageFollowUp, types.IntentNotInterested, types.StageLost},
		{types.StageFollowUp, types.IntentThanks, types.StageFollowUp},
	}
	for _, tc := range cases {
		if got := NextStage(tc.stage, tc.intent); got != tc.want {
			t.Errorf("NextStage(%q, %q) = %q, want %q", tc.stage, tc.intent, got, tc.want)
		}
	}
}

func TestNextStageAbsorbingStates(t *testing.T) {
	for _, intent := range types.Intents() {
		if got := NextStage(types.StageWon, intent); got != types.StageWon {
			t.Fatalf("WON must absorb %q, got %q", intent, got)
		}
		if got := NextStage(types.StageDND, intent); got != types.StageDND {
			t.Fatalf("DND must absorb %q, got %q", intent, got)
		}
	}
}

func TestNextStageLostReopensOnlyOnInterest(t *testing.T) {
	if got := NextStage(types.StageLost, types.IntentInterest); got != types.StageQualifying {
		t.Fatalf("LOST + interest = %q, want QUALIFYING", got)
	}
	for _, intent := range types.Intents() {
		if intent == types.IntentInterest {
			continue
		}
		if got := NextStage(types.StageLost, intent); got != types.StageLost {
			t.Fatalf("LOST + %q = %q, want LOST", intent, got)
		}
	}
}

func TestNextStageUnknownStageRecovers(t *testing.T) {
	if got := NextStage("CORRUPT", types.IntentOther); got != types.StageIntro {
		t.Fatalf("unknown stage must fall back to INTRO, got %q", got)
	}
}
