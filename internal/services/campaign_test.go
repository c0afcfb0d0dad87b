package services

import (
	"context"
	"testing"
	"time"

	"github.com/velora-crm/outreach-backend/internal/types"
)

const testOpener = "Hallo! Wir helfen Selbstständigen bei der Altersvorsorge. Dürfen wir Ihnen kurz zwei Fragen stellen?"

func newTestCampaign(t *testing.T, s *stack) CampaignService {
	t.Helper()
	svc := NewCampaignService(s.db, newTestLogger(t), s.contacts, s.events, s.consent, s.breaker, s.outbound)
	c, ok := svc.(*campaignService)
	if !ok {
		t.Fatal("campaign service has unexpected concrete type")
	}
	c.minDelay = time.Millisecond
	c.maxDelay = 2 * time.Millisecond
	c.cooldown = time.Millisecond
	c.batchSize = 100
	return c
}

func TestRunOpenerContactsOnlyUnknownConsent(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	campaign := newTestCampaign(t, s)

	cold1 := s.mustContact(t, "+4915177770001")
	cold2 := s.mustContact(t, "+4915177770002")
	asked := s.mustContact(t, "+4915177770003")
	if err := s.contacts.SetConsent(ctx, nil, asked.ID, types.ConsentSoftOptinSent); err != nil {
		t.Fatalf("set consent: %v", err)
	}

	stats, err := campaign.RunOpener(ctx, testOpener)
	if err != nil {
		t.Fatalf("run opener: %v", err)
	}
	if stats.Sent != 2 || stats.Failed != 0 {
		t.Fatalf("stats = %+v, want 2 sent", stats)
	}
	if len(s.transport.sent) != 2 {
		t.Fatalf("transport sent %d, want 2", len(s.transport.sent))
	}

	for _, c := range []*types.Contact{cold1, cold2} {
		reloaded, err := s.contacts.GetByID(ctx, nil, c.ID)
		if err != nil {
			t.Fatalf("reload: %v", err)
		}
		if reloaded.ConsentStatus != types.ConsentSoftOptinSent {
			t.Fatalf("consent = %s, want SOFT_OPTIN_SENT after opener", reloaded.ConsentStatus)
		}
		if !hasEvent(s.eventTypes(t, c.ID), types.EventConsentChanged) {
			t.Fatal("missing CONSENT_CHANGED event")
		}
	}
}

func TestRunOpenerNeverAsksTwice(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	campaign := newTestCampaign(t, s)
	s.mustContact(t, "+4915177770004")

	if _, err := campaign.RunOpener(ctx, testOpener); err != nil {
		t.Fatalf("first run: %v", err)
	}
	stats, err := campaign.RunOpener(ctx, testOpener)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if stats.Sent != 0 {
		t.Fatalf("second run sent %d, want 0", stats.Sent)
	}
	if len(s.transport.sent) != 1 {
		t.Fatalf("transport sent %d total, want 1", len(s.transport.sent))
	}
}

func TestRunOpenerAbortsWhenGlobalSendDisabled(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	campaign := newTestCampaign(t, s)
	s.mustContact(t, "+4915177770005")
	s.mustContact(t, "+4915177770006")

	if err := s.settings.Set(ctx, types.SettingGlobalSendEnabled, false); err != nil {
		t.Fatalf("disable sending: %v", err)
	}

	stats, err := campaign.RunOpener(ctx, testOpener)
	if err != nil {
		t.Fatalf("run opener: %v", err)
	}
	if stats.Sent != 0 {
		t.Fatalf("sent %d with global sending disabled, want 0", stats.Sent)
	}
	if stats.Attempted != 1 {
		t.Fatalf("attempted = %d, want abort after the first blocked target", stats.Attempted)
	}
	if len(s.transport.sent) != 0 {
		t.Fatalf("transport sent %d, want 0", len(s.transport.sent))
	}
}

func TestRunOpenerStopsOnCancellation(t *testing.T) {
	s := newStack(t)
	campaign := newTestCampaign(t, s)
	s.mustContact(t, "+4915177770007")
	s.mustContact(t, "+4915177770008")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := campaign.RunOpener(ctx, testOpener)
	if err == nil {
		t.Fatal("cancelled run must surface the context error")
	}
	if stats.Sent != 0 {
		t.Fatalf("sent %d after cancellation, want 0", stats.Sent)
	}
}
