package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/velora-crm/outreach-backend/internal/types"
)

func ccbFixture(recommendedStage string, riskDelta int) func(schemaName string) (map[string]any, error) {
	return func(schemaName string) (map[string]any, error) {
		switch schemaName {
		case "ccb_facts":
			return map[string]any{
				"profile":           "freelancer, responds in the evening",
				"stated_interest":   "asked about onboarding effort",
				"budget_mentions":   []any{},
				"timeline_mentions": []any{"next quarter"},
				"objections":        []any{},
				"sentiment":         "positive",
				"engagement_level":  "medium",
			}, nil
		case "ccb_strategy":
			return map[string]any{
				"recommended_stage": recommendedStage,
				"conclusion":        "interested but needs a concrete effort estimate",
				"next_best_actions": []any{
					map[string]any{"action": "send effort estimate", "rank": 1, "needs_human": false},
				},
				"followup":   map[string]any{"max_followups": 2, "timing": "standard", "archetype": "nudge"},
				"risk_delta": riskDelta,
				"do_not":     []any{"quote prices"},
			}, nil
		default:
			return nil, fmt.Errorf("unexpected schema %q", schemaName)
		}
	}
}

func TestShouldRegenerateCadence(t *testing.T) {
	s := newStack(t)

	fresh := &types.Contact{TurnCount: 1}
	if !s.ccb.ShouldRegenerate(fresh, false) {
		t.Fatal("contact without a bundle must regenerate")
	}

	withBundle := &types.Contact{TurnCount: 1, CCB: []byte(`{"version":1}`)}
	if s.ccb.ShouldRegenerate(withBundle, false) {
		t.Fatal("turn 1 with a bundle must not regenerate")
	}
	if !s.ccb.ShouldRegenerate(withBundle, true) {
		t.Fatal("a stage change must force regeneration")
	}

	withBundle.TurnCount = 3
	if !s.ccb.ShouldRegenerate(withBundle, false) {
		t.Fatal("every third turn must regenerate")
	}
	withBundle.TurnCount = 4
	if s.ccb.ShouldRegenerate(withBundle, false) {
		t.Fatal("turn 4 must not regenerate")
	}
	withBundle.TurnCount = 6
	if !s.ccb.ShouldRegenerate(withBundle, false) {
		t.Fatal("turn 6 must regenerate")
	}
}

func TestRegeneratePersistsBundleAndAppliesStrategy(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	contact := s.mustContact(t, "+4915155550001")
	s.llm.jsonFn = ccbFixture(types.StageQualifying, 10)

	bundle, err := s.ccb.Regenerate(ctx, nil, contact, uuid.New())
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if bundle == nil {
		t.Fatal("expected a bundle")
	}
	if bundle.Version != 1 {
		t.Fatalf("version = %d, want 1", bundle.Version)
	}
	if bundle.Facts.Sentiment != "positive" || bundle.Strategy.Conclusion == "" {
		t.Fatalf("bundle not populated from both passes: %+v", bundle)
	}

	reloaded, err := s.contacts.GetByID(ctx, nil, contact.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	stored := s.ccb.Current(reloaded)
	if stored == nil || stored.Version != 1 {
		t.Fatal("bundle must be persisted on the contact")
	}
	if reloaded.PipelineStage != types.StageQualifying {
		t.Fatalf("stage = %s, want recommendation applied", reloaded.PipelineStage)
	}
	if reloaded.RiskScore != 10 {
		t.Fatalf("risk score = %d, want 10", reloaded.RiskScore)
	}

	evts := s.eventTypes(t, contact.ID)
	if !hasEvent(evts, types.EventCCBGenerated) {
		t.Fatal("missing CCB_GENERATED event")
	}
	if !hasEvent(evts, types.EventStageChanged) {
		t.Fatal("stage recommendation must go through the event-emitting path")
	}
}

func TestRegenerateBumpsVersion(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	contact := s.mustContact(t, "+4915155550002")
	s.llm.jsonFn = ccbFixture("", 0)

	first, err := s.ccb.Regenerate(ctx, nil, contact, uuid.New())
	if err != nil || first == nil {
		t.Fatalf("first regenerate: bundle=%v err=%v", first, err)
	}
	second, err := s.ccb.Regenerate(ctx, nil, contact, uuid.New())
	if err != nil || second == nil {
		t.Fatalf("second regenerate: bundle=%v err=%v", second, err)
	}
	if second.Version != first.Version+1 {
		t.Fatalf("version = %d after %d, want increment", second.Version, first.Version)
	}
}

func TestRegenerateKeepsPreviousBundleOnExtractionFailure(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	contact := s.mustContact(t, "+4915155550003")

	s.llm.jsonFn = ccbFixture("", 0)
	if _, err := s.ccb.Regenerate(ctx, nil, contact, uuid.New()); err != nil {
		t.Fatalf("seed bundle: %v", err)
	}

	s.llm.jsonFn = func(schemaName string) (map[string]any, error) {
		return nil, fmt.Errorf("model overloaded")
	}
	bundle, err := s.ccb.Regenerate(ctx, nil, contact, uuid.New())
	if err != nil {
		t.Fatalf("degraded regenerate must not error: %v", err)
	}
	if bundle != nil {
		t.Fatal("degraded regenerate must return no bundle")
	}

	reloaded, err := s.contacts.GetByID(ctx, nil, contact.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	stored := s.ccb.Current(reloaded)
	if stored == nil || stored.Version != 1 {
		t.Fatal("previous bundle must stay authoritative after a failed cycle")
	}
}

func TestRegenerateIgnoresInvalidStageRecommendation(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	contact := s.mustContact(t, "+4915155550004")
	s.llm.jsonFn = ccbFixture("NEGOTIATION", 0)

	if _, err := s.ccb.Regenerate(ctx, nil, contact, uuid.New()); err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	reloaded, err := s.contacts.GetByID(ctx, nil, contact.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.PipelineStage != types.StageIntro {
		t.Fatalf("stage = %s, unknown recommendation must be ignored", reloaded.PipelineStage)
	}
}
