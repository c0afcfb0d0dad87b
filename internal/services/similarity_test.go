package services

import "testing"

func TestJaccardIdentity(t *testing.T) {
	a := Shingles("Wollen wir morgen telefonieren?", 3)
	if len(a) == 0 {
		t.Fatal("expected non-empty shingle set")
	}
	if got := Jaccard(a, a); got != 1 {
		t.Fatalf("Jaccard(A, A) = %v, want 1", got)
	}
}

func TestJaccardDisjoint(t *testing.T) {
	a := Shingles("aaaa", 3)
	b := Shingles("zzzz", 3)
	if got := Jaccard(a, b); got != 0 {
		t.Fatalf("Jaccard of disjoint sets = %v, want 0", got)
	}
}

func TestJaccardEmptyUnion(t *testing.T) {
	a := Shingles("", 3)
	b := Shingles("?!", 3) // punctuation only, nothing survives normalization
	if got := Jaccard(a, b); got != 0 {
		t.Fatalf("Jaccard with empty union = %v, want 0", got)
	}
}

func TestShinglesNormalization(t *testing.T) {
	a := Shingles("Hallo Welt!", 3)
	b := Shingles("hallo   welt", 3)
	if got := Jaccard(a, b); got != 1 {
		t.Fatalf("case and punctuation must not affect shingles, Jaccard = %v", got)
	}
}

func TestCheckSimilarityIdenticalMessageFlagged(t *testing.T) {
	msg := "Haben Sie meine letzte Nachricht gesehen?"
	match := CheckSimilarity(msg, []string{"Ganz andere Nachricht", msg}, 0.7)
	if !match.Flagged {
		t.Fatal("identical prior message must be flagged")
	}
	if match.Score != 1 {
		t.Fatalf("identical message score = %v, want 1", match.Score)
	}
	if match.Position != 1 {
		t.Fatalf("match position = %d, want 1", match.Position)
	}
}

func TestCheckSimilarityUnrelatedNotFlagged(t *testing.T) {
	match := CheckSimilarity(
		"Wann passt Ihnen ein kurzes Telefonat?",
		[]string{"Der Bericht liegt seit gestern im Anhang"},
		0.7,
	)
	if match.Flagged {
		t.Fatalf("unrelated messages must not be flagged, score %v", match.Score)
	}
}

func TestCheckSimilarityEmptyHistory(t *testing.T) {
	if match := CheckSimilarity("irgendein Text", nil, 0.7); match.Flagged {
		t.Fatal("empty history must never flag")
	}
}
