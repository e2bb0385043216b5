package scheduler

import "testing"

func TestSplitBatchKey(t *testing.T) {
	userID, notifType, channel, ok := splitBatchKey("u1|System|email")
	if !ok || userID != "u1" || notifType != "System" || channel != "email" {
		t.Fatalf("splitBatchKey returned (%q, %q, %q, %v)", userID, notifType, channel, ok)
	}
}

func TestSplitBatchKeyRejectsWrongPartCount(t *testing.T) {
	if _, _, _, ok := splitBatchKey("too|many|parts|here"); ok {
		t.Fatal("expected splitBatchKey to reject a key with more than 3 parts")
	}
	if _, _, _, ok := splitBatchKey("too-few"); ok {
		t.Fatal("expected splitBatchKey to reject a key with fewer than 3 parts")
	}
}
