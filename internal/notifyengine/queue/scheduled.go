package queue

import (
	"sync"
	"time"

	"github.com/apimgr/notifyengine/internal/notifyengine/model"
)

// scheduledEntry is one notification waiting for its NotBefore time.
type scheduledEntry struct {
	notificationID string
	priority       model.Priority
	notBefore      time.Time
}

// ScheduledSet holds notifications admitted with a future NotBefore time,
// ordered by that time, swept periodically into the live priority queue.
type ScheduledSet struct {
	mu      sync.Mutex
	entries []scheduledEntry
}

// NewScheduledSet creates an empty scheduled set.
func NewScheduledSet() *ScheduledSet {
	return &ScheduledSet{}
}

// Add inserts a notification to fire at notBefore, keeping entries ordered.
func (s *ScheduledSet) Add(notificationID string, priority model.Priority, notBefore time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := scheduledEntry{notificationID: notificationID, priority: priority, notBefore: notBefore}
	i := 0
	for ; i < len(s.entries); i++ {
		if s.entries[i].notBefore.After(notBefore) {
			break
		}
	}
	s.entries = append(s.entries, scheduledEntry{})
	copy(s.entries[i+1:], s.entries[i:])
	s.entries[i] = e
}

// Due removes and returns all entries whose NotBefore has elapsed by now.
func (s *ScheduledSet) Due(now time.Time) []struct {
	NotificationID string
	Priority       model.Priority
} {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := 0
	for ; i < len(s.entries); i++ {
		if s.entries[i].notBefore.After(now) {
			break
		}
	}
	due := s.entries[:i]
	s.entries = s.entries[i:]

	out := make([]struct {
		NotificationID string
		Priority       model.Priority
	}, len(due))
	for idx, e := range due {
		out[idx].NotificationID = e.notificationID
		out[idx].Priority = e.priority
	}
	return out
}

// Len returns the number of notifications still waiting for their time.
func (s *ScheduledSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
