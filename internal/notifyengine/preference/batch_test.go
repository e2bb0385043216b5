package preference

import (
	"strings"
	"testing"
)

func TestBatchStoreAppendAndDrainAll(t *testing.T) {
	b := NewBatchStore()
	b.Append("u1", "System", "email", "n1", "first")
	b.Append("u1", "System", "email", "n2", "second")
	b.Append("u2", "System", "email", "n3", "other user")

	drained := b.DrainAll()
	if len(drained) != 2 {
		t.Fatalf("expected 2 distinct batch keys, got %d", len(drained))
	}
	u1 := drained["u1|System|email"]
	if len(u1) != 2 {
		t.Fatalf("expected 2 summaries for u1, got %d", len(u1))
	}
}

func TestBatchStoreDrainAllClearsPending(t *testing.T) {
	b := NewBatchStore()
	b.Append("u1", "System", "email", "n1", "first")
	b.DrainAll()
	if drained := b.DrainAll(); len(drained) != 0 {
		t.Fatalf("expected second drain to be empty, got %d entries", len(drained))
	}
}

func TestSynthesizeBodyCapsAt50Lines(t *testing.T) {
	summaries := make([]PendingSummary, 75)
	for i := range summaries {
		summaries[i] = PendingSummary{NotificationID: "n", Line: "line"}
	}
	body := SynthesizeBody(summaries)
	if !strings.HasPrefix(body, "75 new notifications") {
		t.Errorf("expected body to report full count, got %q", body[:40])
	}
	if strings.Count(body, "- line") != 50 {
		t.Errorf("expected exactly 50 summary lines, got %d", strings.Count(body, "- line"))
	}
}
