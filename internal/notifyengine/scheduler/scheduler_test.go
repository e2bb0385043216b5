package scheduler

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestTriggerRunsTaskImmediately(t *testing.T) {
	s := New()
	var ran int32
	if err := s.AddTask("t1", "@every 1h", func() error {
		atomic.AddInt32(&ran, 1)
		return nil
	}); err != nil {
		t.Fatalf("AddTask: %v", err)
	}

	if err := s.Trigger("t1"); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt32(&ran) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if atomic.LoadInt32(&ran) != 1 {
		t.Fatal("expected triggered task to run")
	}
}

func TestTriggerUnknownTaskErrors(t *testing.T) {
	s := New()
	if err := s.Trigger("nope"); err == nil {
		t.Fatal("expected error triggering unregistered task")
	}
}

func TestDisableSkipsScheduledRun(t *testing.T) {
	s := New()
	var ran int32
	if err := s.AddTask("t1", "@every 1h", func() error {
		atomic.AddInt32(&ran, 1)
		return nil
	}); err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	if err := s.Disable("t1"); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	if err := s.Trigger("t1"); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if atomic.LoadInt32(&ran) != 0 {
		t.Fatal("expected disabled task not to run")
	}
}

func TestStatusAllReportsRegisteredTasks(t *testing.T) {
	s := New()
	if err := s.AddTask("t1", "@every 1h", func() error { return nil }); err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	statuses := s.StatusAll()
	if len(statuses) != 1 || statuses[0].Name != "t1" {
		t.Fatalf("expected one status for t1, got %+v", statuses)
	}
	if !statuses[0].Enabled {
		t.Error("expected newly added task to start enabled")
	}
}
