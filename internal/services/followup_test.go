package services

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/velora-crm/outreach-backend/internal/types"
)

func (s *stack) addTurn(t *testing.T, contactID uuid.UUID, direction, text string, at time.Time) {
	t.Helper()
	_, err := s.turns.Append(context.Background(), nil, []*types.ConversationTurn{{
		ContactID:     contactID,
		Direction:     direction,
		Text:          text,
		CorrelationID: uuid.New(),
		CreatedAt:     at,
	}})
	if err != nil {
		t.Fatalf("append turn: %v", err)
	}
}

// pinClock fixes the sweep's clock and timing knobs so tests do not depend
// on wall time or environment.
func pinClock(t *testing.T, s *stack, at time.Time) {
	t.Helper()
	fs, ok := s.followup.(*followupService)
	if !ok {
		t.Fatal("followup service has unexpected concrete type")
	}
	fs.now = func() time.Time { return at }
	fs.nudgeGap = 20 * time.Minute
	fs.reminder = 48 * time.Hour
}

func isVariantOf(text string, variants []string) bool {
	for _, v := range variants {
		if text == v {
			return true
		}
	}
	return false
}

func TestSweepSkipsWhenContactSpokeLast(t *testing.T) {
	s := newStack(t)
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	pinClock(t, s, now)
	contact := s.mustContact(t, "+4915144440001")

	s.addTurn(t, contact.ID, types.DirectionOutgoing, "Hallo, hier unser Angebot.", now.Add(-2*time.Hour))
	s.addTurn(t, contact.ID, types.DirectionIncoming, "Ich melde mich später.", now.Add(-1*time.Hour))

	if err := s.followup.SweepOnce(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(s.transport.sent) != 0 {
		t.Fatalf("sent %d messages, want 0 when contact spoke last", len(s.transport.sent))
	}
}

func TestSweepSendsFirstNudgeAfterGap(t *testing.T) {
	s := newStack(t)
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	pinClock(t, s, now)
	contact := s.mustContact(t, "+4915144440002")

	s.addTurn(t, contact.ID, types.DirectionOutgoing, "Hallo, ich hätte da einen Vorschlag für Sie.", now.Add(-30*time.Minute))

	if err := s.followup.SweepOnce(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(s.transport.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(s.transport.sent))
	}
	if !isVariantOf(s.transport.sent[0].body, DefaultPolicy().FollowupTemplates["nudge_1"]) {
		t.Fatalf("body %q is not a nudge_1 template", s.transport.sent[0].body)
	}
	if !hasEvent(s.eventTypes(t, contact.ID), types.EventFollowupQueued) {
		t.Fatal("missing FOLLOWUP_QUEUED event")
	}
}

func TestSweepWaitsOutTheNudgeGap(t *testing.T) {
	s := newStack(t)
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	pinClock(t, s, now)
	contact := s.mustContact(t, "+4915144440003")

	s.addTurn(t, contact.ID, types.DirectionOutgoing, "Hallo, ich hätte da einen Vorschlag für Sie.", now.Add(-10*time.Minute))

	if err := s.followup.SweepOnce(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(s.transport.sent) != 0 {
		t.Fatalf("sent %d messages before the gap elapsed, want 0", len(s.transport.sent))
	}
}

func TestSweepSendsReminderAfterNudgesExhausted(t *testing.T) {
	s := newStack(t)
	now := time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)
	pinClock(t, s, now)
	contact := s.mustContact(t, "+4915144440004")

	texts := []string{
		"Hallo, hier unser Vorschlag für den Einstieg.",
		"Wollte nur kurz nachhaken – haben Sie meine letzte Nachricht gesehen?",
		"Ich will nicht aufdringlich sein – gibt es noch offene Fragen, die ich klären kann?",
		"Letzter kurzer Ping von mir – soll ich das Thema erstmal ruhen lassen?",
	}
	for i, text := range texts {
		s.addTurn(t, contact.ID, types.DirectionOutgoing, text, now.Add(-time.Duration(80-i)*time.Hour))
	}

	if err := s.followup.SweepOnce(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(s.transport.sent) != 1 {
		t.Fatalf("sent %d messages, want 1 reminder", len(s.transport.sent))
	}
	if !strings.Contains(s.transport.sent[0].body, "Zeit vergangen") {
		t.Fatalf("body %q is not the reminder template", s.transport.sent[0].body)
	}
}

func TestSweepGoesQuietAfterReminder(t *testing.T) {
	s := newStack(t)
	now := time.Date(2026, 3, 20, 9, 0, 0, 0, time.UTC)
	pinClock(t, s, now)
	contact := s.mustContact(t, "+4915144440005")

	texts := []string{
		"Hallo, hier unser Vorschlag für den Einstieg.",
		"Wollte nur kurz nachhaken – haben Sie meine letzte Nachricht gesehen?",
		"Ich will nicht aufdringlich sein – gibt es noch offene Fragen, die ich klären kann?",
		"Letzter kurzer Ping von mir – soll ich das Thema erstmal ruhen lassen?",
		"Es ist etwas Zeit vergangen – falls das Thema wieder relevant wird, bin ich gerne für Sie da.",
	}
	for i, text := range texts {
		s.addTurn(t, contact.ID, types.DirectionOutgoing, text, now.Add(-time.Duration(300-i)*time.Hour))
	}

	if err := s.followup.SweepOnce(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(s.transport.sent) != 0 {
		t.Fatalf("sent %d messages after the reminder, want silence", len(s.transport.sent))
	}
}

func TestSweepHonorsMaxFollowupsSetting(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	pinClock(t, s, now)
	contact := s.mustContact(t, "+4915144440011")

	if err := s.settings.Set(ctx, types.SettingMaxFollowupsWithoutReply, 1); err != nil {
		t.Fatalf("set setting: %v", err)
	}
	s.addTurn(t, contact.ID, types.DirectionOutgoing, "Hallo, hier unser Vorschlag für den Einstieg.", now.Add(-3*time.Hour))
	s.addTurn(t, contact.ID, types.DirectionOutgoing, "Wollte nur kurz nachhaken – haben Sie meine letzte Nachricht gesehen?", now.Add(-2*time.Hour))

	if err := s.followup.SweepOnce(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(s.transport.sent) != 0 {
		t.Fatalf("sent %d messages past the configured ceiling, want 0", len(s.transport.sent))
	}

	// Raising the ceiling lets the same contact through again.
	if err := s.settings.Set(ctx, types.SettingMaxFollowupsWithoutReply, 4); err != nil {
		t.Fatalf("raise setting: %v", err)
	}
	if err := s.followup.SweepOnce(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(s.transport.sent) != 1 {
		t.Fatalf("sent %d messages with ceiling raised, want 1", len(s.transport.sent))
	}
}

func TestSweepHonorsStrategyTimingNone(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	pinClock(t, s, now)
	contact := s.mustContact(t, "+4915144440006")

	bundle := types.CCB{
		Version:     1,
		Strategy:    types.CCBStrategy{Followup: types.FollowupPolicy{Timing: "none"}},
		GeneratedAt: now.Add(-time.Hour),
	}
	raw, err := json.Marshal(bundle)
	if err != nil {
		t.Fatalf("marshal ccb: %v", err)
	}
	if err := s.contacts.SetCCB(ctx, nil, contact.ID, raw); err != nil {
		t.Fatalf("set ccb: %v", err)
	}
	s.addTurn(t, contact.ID, types.DirectionOutgoing, "Hallo, hier unser Angebot.", now.Add(-6*time.Hour))

	if err := s.followup.SweepOnce(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(s.transport.sent) != 0 {
		t.Fatalf("sent %d messages despite timing none, want 0", len(s.transport.sent))
	}
}

func TestSweepSkipsIneligibleContacts(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	pinClock(t, s, now)

	dnd := s.mustContact(t, "+4915144440007")
	if err := s.contacts.SetConsent(ctx, nil, dnd.ID, types.ConsentDND); err != nil {
		t.Fatalf("set consent: %v", err)
	}
	paused := s.mustContact(t, "+4915144440008")
	if err := s.contacts.SetBotPaused(ctx, nil, paused.ID, true); err != nil {
		t.Fatalf("set paused: %v", err)
	}
	escalated := s.mustContact(t, "+4915144440009")
	if err := s.contacts.SetHumanRequired(ctx, nil, escalated.ID, true); err != nil {
		t.Fatalf("set human required: %v", err)
	}
	won := s.mustContact(t, "+4915144440010")
	if err := s.contacts.SetStage(ctx, nil, won.ID, types.StageWon, "deal closed"); err != nil {
		t.Fatalf("set stage: %v", err)
	}

	for _, c := range []*types.Contact{dnd, paused, escalated, won} {
		s.addTurn(t, c.ID, types.DirectionOutgoing, "Hallo, hier unser Angebot.", now.Add(-6*time.Hour))
	}

	if err := s.followup.SweepOnce(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(s.transport.sent) != 0 {
		t.Fatalf("sent %d messages to ineligible contacts, want 0", len(s.transport.sent))
	}
}
