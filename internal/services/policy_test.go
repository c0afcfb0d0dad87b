package services

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadPolicyMissingFileUsesDefaults(t *testing.T) {
	policy, err := LoadPolicy(filepath.Join(t.TempDir(), "nope.yaml"), newTestLogger(t))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if policy.AmountCeiling != 10000 {
		t.Fatalf("amount ceiling = %v, want default", policy.AmountCeiling)
	}
	if len(policy.OptOutPhrases) == 0 {
		t.Fatal("defaults must carry opt-out phrases")
	}
}

func TestLoadPolicyOverlayMergesSectionWise(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	overlay := "amount_ceiling: 5000\nholding_reply: \"Einen Moment bitte.\"\n"
	if err := os.WriteFile(path, []byte(overlay), 0o644); err != nil {
		t.Fatalf("write overlay: %v", err)
	}

	policy, err := LoadPolicy(path, newTestLogger(t))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if policy.AmountCeiling != 5000 {
		t.Fatalf("amount ceiling = %v, want overlay value", policy.AmountCeiling)
	}
	if policy.HoldingReply != "Einen Moment bitte." {
		t.Fatalf("holding reply = %q, want overlay value", policy.HoldingReply)
	}
	// Untouched sections keep their defaults.
	if len(policy.EscalationKeywords) == 0 || policy.OptOutReply == "" {
		t.Fatal("overlay must not wipe sections it does not set")
	}
}

func TestLoadPolicyMalformedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte("amount_ceiling: [not a number"), 0o644); err != nil {
		t.Fatalf("write overlay: %v", err)
	}
	if _, err := LoadPolicy(path, newTestLogger(t)); err == nil {
		t.Fatal("malformed policy file must fail loudly")
	}
}
