package services

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/velora-crm/outreach-backend/internal/types"
)

func TestOptOutForcesDNDAndBlocksSends(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	contact := s.mustContact(t, "+4915122220001")

	result, err := s.consent.HandleInbound(ctx, nil, contact, "STOP", uuid.New())
	if err != nil {
		t.Fatalf("handle inbound: %v", err)
	}
	if !result.OptedOut {
		t.Fatal("STOP must be detected as opt-out")
	}
	if result.Reply == "" {
		t.Fatal("opt-out must produce an acknowledgment reply")
	}

	reloaded, err := s.contacts.GetByID(ctx, nil, contact.ID)
	if err != nil {
		t.Fatalf("reload contact: %v", err)
	}
	if reloaded.ConsentStatus != types.ConsentDND {
		t.Fatalf("consent = %q, want DND", reloaded.ConsentStatus)
	}
	if !reloaded.BotPaused {
		t.Fatal("opt-out must pause the bot")
	}
	if reloaded.PipelineStage != types.StageDND {
		t.Fatalf("stage = %q, want DND", reloaded.PipelineStage)
	}
	if !hasEvent(s.eventTypes(t, contact.ID), types.EventDNDSet) {
		t.Fatal("missing DND_SET event")
	}

	outcome, err := s.outbound.Send(ctx, nil, reloaded, "Noch eine Frage?", uuid.New())
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !outcome.Blocked || outcome.Reason != BlockConsentDND {
		t.Fatalf("send to DND contact must be blocked with consent_dnd, got %+v", outcome)
	}
	if len(s.transport.sent) != 0 {
		t.Fatal("nothing may reach the transport for a DND contact")
	}
	if !hasEvent(s.eventTypes(t, contact.ID), types.EventSendBlocked) {
		t.Fatal("missing SEND_BLOCKED event")
	}
}

func TestInboundReplyPromotesConsent(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	contact := s.mustContact(t, "+4915122220002")

	result, err := s.consent.HandleInbound(ctx, nil, contact, "Klingt spannend, erzählen Sie mehr", uuid.New())
	if err != nil {
		t.Fatalf("handle inbound: %v", err)
	}
	if result.OptedOut {
		t.Fatal("normal reply must not opt out")
	}
	if !result.Promoted {
		t.Fatal("UNKNOWN contact replying must be promoted")
	}
	if contact.ConsentStatus != types.ConsentOptedIn {
		t.Fatalf("consent = %q, want OPTED_IN", contact.ConsentStatus)
	}
	if !hasEvent(s.eventTypes(t, contact.ID), types.EventConsentChanged) {
		t.Fatal("missing CONSENT_CHANGED event")
	}
}

func TestSoftRejectionIsNotOptOut(t *testing.T) {
	s := newStack(t)
	contact := s.mustContact(t, "+4915122220003")

	result, err := s.consent.HandleInbound(context.Background(), nil, contact, "nein danke", uuid.New())
	if err != nil {
		t.Fatalf("handle inbound: %v", err)
	}
	if result.OptedOut {
		t.Fatal("a polite refusal must not be treated as opt-out")
	}
	if contact.ConsentStatus == types.ConsentDND {
		t.Fatal("soft rejection must not force DND")
	}
}

func TestCanInitiateContact(t *testing.T) {
	s := newStack(t)
	cases := []struct {
		consent string
		want    bool
	}{
		{types.ConsentUnknown, true},
		{types.ConsentOptedIn, true},
		{types.ConsentSoftOptinSent, false},
		{types.ConsentDND, false},
	}
	for _, tc := range cases {
		contact := &types.Contact{ID: uuid.New(), ConsentStatus: tc.consent}
		if got := s.consent.CanInitiateContact(contact); got != tc.want {
			t.Errorf("CanInitiateContact(%s) = %v, want %v", tc.consent, got, tc.want)
		}
	}
}
