// Package queue implements the durable five-tier priority queue and the
// scheduled set that feeds it, grounded on append-only journal
// style (src/scheduler and src/services/delivery_system.go use a similar
// "load state, mutate, persist" discipline, here applied to an in-memory
// queue with a journal for crash recovery).
package queue

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/apimgr/notifyengine/internal/notifyengine/model"
)

// tierOrder lists priority tiers from highest to lowest.
var tierOrder = []model.Priority{
	model.PriorityCritical,
	model.PriorityUrgent,
	model.PriorityHigh,
	model.PriorityNormal,
	model.PriorityLow,
}

// journalEntry is one durable record of an enqueue or dequeue event. ID is
// a ULID rather than a UUID so journal entries sort lexically in
// insertion order, useful when replaying or auditing the raw file.
type journalEntry struct {
	ID             string    `json:"id"`
	Op             string    `json:"op"` // "enqueue" or "dequeue"
	NotificationID string    `json:"notification_id"`
	Priority       int       `json:"priority"`
	Time           time.Time `json:"time"`
}

// Queue is the durable, priority-tiered, aging-aware FIFO queue.
type Queue struct {
	mu            sync.Mutex
	tiers         map[model.Priority][]string
	enqueuedAt    map[string]time.Time // first-enqueue time per tier wait, for aging
	tierWaitSince map[model.Priority]time.Time
	seen          map[string]bool // dedup by notification id, for Enqueue idempotency
	aging         time.Duration

	journal   *os.File
	journalMu sync.Mutex
}

// New creates a Queue with the given aging threshold, optionally backed by
// a durable journal file at journalPath (empty disables journaling).
func New(agingThreshold time.Duration, journalPath string) (*Queue, error) {
	q := &Queue{
		tiers:         make(map[model.Priority][]string),
		enqueuedAt:    make(map[string]time.Time),
		tierWaitSince: make(map[model.Priority]time.Time),
		seen:          make(map[string]bool),
		aging:         agingThreshold,
	}
	for _, t := range tierOrder {
		q.tiers[t] = nil
	}

	if journalPath != "" {
		f, err := os.OpenFile(journalPath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open queue journal %s: %w", journalPath, err)
		}
		q.journal = f
		if err := q.replay(); err != nil {
			return nil, fmt.Errorf("failed to replay queue journal: %w", err)
		}
	}

	return q, nil
}

// replay reconstructs queue state from the journal after a crash. Because
// enqueue/dequeue are append-only, a notification id present in more
// enqueue entries than dequeue entries is still outstanding.
func (q *Queue) replay() error {
	if _, err := q.journal.Seek(0, 0); err != nil {
		return err
	}
	outstanding := make(map[string]model.Priority)
	order := make([]string, 0)

	scanner := bufio.NewScanner(q.journal)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var e journalEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		switch e.Op {
		case "enqueue":
			if _, ok := outstanding[e.NotificationID]; !ok {
				order = append(order, e.NotificationID)
			}
			outstanding[e.NotificationID] = model.Priority(e.Priority)
		case "dequeue":
			delete(outstanding, e.NotificationID)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	if _, err := q.journal.Seek(0, 2); err != nil {
		return err
	}

	for _, id := range order {
		prio, ok := outstanding[id]
		if !ok {
			continue
		}
		q.tiers[prio] = append(q.tiers[prio], id)
		q.seen[id] = true
	}
	if len(order) > 0 {
		log.Printf("📥 queue: replayed %d outstanding notifications from journal", len(outstanding))
	}
	return nil
}

func (q *Queue) appendJournal(op, notificationID string, priority model.Priority) {
	if q.journal == nil {
		return
	}
	q.journalMu.Lock()
	defer q.journalMu.Unlock()

	entry := journalEntry{ID: ulid.Make().String(), Op: op, NotificationID: notificationID, Priority: int(priority), Time: time.Now()}
	data, err := json.Marshal(entry)
	if err != nil {
		log.Printf("⚠️  queue: failed to marshal journal entry: %v", err)
		return
	}
	data = append(data, '\n')
	if _, err := q.journal.Write(data); err != nil {
		log.Printf("⚠️  queue: failed to write journal entry: %v", err)
	}
}

// Enqueue admits notificationID into the given priority tier. Re-enqueueing
// an id already present anywhere in the queue is a no-op, keyed on
// notification id.
func (q *Queue) Enqueue(notificationID string, priority model.Priority) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.seen[notificationID] {
		return
	}
	q.seen[notificationID] = true
	q.tiers[priority] = append(q.tiers[priority], notificationID)
	if _, ok := q.tierWaitSince[priority]; !ok {
		q.tierWaitSince[priority] = time.Now()
	}
	q.appendJournal("enqueue", notificationID, priority)
}

// effectiveOrder returns tiers in dequeue-priority order for "now", applying
// aging: any tier that has been non-empty and waiting longer than the aging
// threshold is promoted one slot for this dequeue only.
func (q *Queue) effectiveOrder(now time.Time) []model.Priority {
	promoted := make(map[model.Priority]bool)
	for i, t := range tierOrder {
		if i == 0 {
			continue
		}
		if len(q.tiers[t]) == 0 {
			continue
		}
		since, ok := q.tierWaitSince[t]
		if !ok {
			continue
		}
		if now.Sub(since) > q.aging {
			promoted[t] = true
		}
	}
	if len(promoted) == 0 {
		return tierOrder
	}

	order := make([]model.Priority, 0, len(tierOrder))
	order = append(order, tierOrder[0])
	for i := 1; i < len(tierOrder); i++ {
		t := tierOrder[i]
		if promoted[t] {
			// Splice this aged tier ahead of the immediately-higher tier.
			order = append(order[:len(order)-1], t, order[len(order)-1])
		} else {
			order = append(order, t)
		}
	}
	return order
}

// Dequeue pops the next notification id in priority order (with aging),
// FIFO within a tier. Returns ok=false when the queue is empty.
func (q *Queue) Dequeue() (notificationID string, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	for _, t := range q.effectiveOrder(now) {
		bucket := q.tiers[t]
		if len(bucket) == 0 {
			continue
		}
		notificationID = bucket[0]
		q.tiers[t] = bucket[1:]
		if len(q.tiers[t]) == 0 {
			delete(q.tierWaitSince, t)
		}
		delete(q.seen, notificationID)
		q.appendJournal("dequeue", notificationID, t)
		return notificationID, true
	}
	return "", false
}

// Len returns the total number of queued notifications across all tiers.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	total := 0
	for _, t := range tierOrder {
		total += len(q.tiers[t])
	}
	return total
}

// TierLen returns the depth of a single tier, used for metrics and health.
func (q *Queue) TierLen(p model.Priority) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tiers[p])
}

// Close releases the journal file handle.
func (q *Queue) Close() error {
	if q.journal == nil {
		return nil
	}
	return q.journal.Close()
}
