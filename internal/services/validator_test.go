package services

import (
	"context"
	"strings"
	"testing"

	"github.com/velora-crm/outreach-backend/internal/types"
)

func violationCodes(report ValidationReport) map[string]bool {
	codes := map[string]bool{}
	for _, v := range report.Violations {
		codes[v.Code] = true
	}
	return codes
}

func TestValidateCleanMessage(t *testing.T) {
	s := newStack(t)
	contact := s.mustContact(t, "+4915111111001")

	report := s.validator.Validate(context.Background(), contact, "Danke für Ihre Antwort! Wann passt Ihnen ein kurzes Telefonat?")
	if !report.Valid {
		t.Fatalf("clean message rejected: %+v", report.Violations)
	}
	if !report.HasCallToAction {
		t.Fatal("question should be flagged as call to action")
	}
}

func TestValidateLengthBoundary(t *testing.T) {
	s := newStack(t)
	contact := s.mustContact(t, "+4915111111002")
	ctx := context.Background()
	max := s.settings.MaxCharsPerMessage(ctx)

	atLimit := strings.Repeat("a", max)
	if report := s.validator.Validate(ctx, contact, atLimit); violationCodes(report)[ViolationLength] {
		t.Fatal("message at the limit must pass the length check")
	}
	overLimit := strings.Repeat("a", max+1)
	report := s.validator.Validate(ctx, contact, overLimit)
	if report.Valid || !violationCodes(report)[ViolationLength] {
		t.Fatalf("message of max+1 chars must fail with a length violation, got %+v", report.Violations)
	}
}

func TestValidateForbiddenClaim(t *testing.T) {
	s := newStack(t)
	contact := s.mustContact(t, "+4915111111003")

	report := s.validator.Validate(context.Background(), contact, "With us you get a guaranteed return of 8% per year.")
	if report.Valid {
		t.Fatal("guaranteed return must always be rejected")
	}
	if !violationCodes(report)[ViolationForbiddenClaim] {
		t.Fatalf("want forbidden_claim violation, got %+v", report.Violations)
	}
}

func TestValidateLinkPolicyByStage(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	msg := "Schauen Sie gerne hier: https://example.com/info"

	early := s.mustContact(t, "+4915111111004")
	report := s.validator.Validate(ctx, early, msg)
	if !violationCodes(report)[ViolationLinkPolicy] {
		t.Fatalf("link in INTRO must violate link policy, got %+v", report.Violations)
	}

	late := s.mustContact(t, "+4915111111005")
	if err := s.contacts.SetStage(ctx, nil, late.ID, types.StageBooking, "test"); err != nil {
		t.Fatalf("set stage: %v", err)
	}
	late.PipelineStage = types.StageBooking
	if report := s.validator.Validate(ctx, late, msg); violationCodes(report)[ViolationLinkPolicy] {
		t.Fatal("link in BOOKING must be allowed")
	}
}

func TestValidateBotDisclosure(t *testing.T) {
	s := newStack(t)
	contact := s.mustContact(t, "+4915111111006")

	report := s.validator.Validate(context.Background(), contact, "I am a bot, but I can still help you.")
	if report.Valid || !violationCodes(report)[ViolationBotDisclosure] {
		t.Fatalf("bot disclosure must be rejected, got %+v", report.Violations)
	}
}

func TestValidateReportsAllViolationsIndependently(t *testing.T) {
	s := newStack(t)
	contact := s.mustContact(t, "+4915111111007")
	ctx := context.Background()

	msg := strings.Repeat("x", s.settings.MaxCharsPerMessage(ctx)) +
		" guaranteed return, details at www.example.com"
	report := s.validator.Validate(ctx, contact, msg)
	codes := violationCodes(report)
	for _, want := range []string{ViolationLength, ViolationForbiddenClaim, ViolationLinkPolicy} {
		if !codes[want] {
			t.Errorf("missing violation %q in %+v", want, report.Violations)
		}
	}
}
