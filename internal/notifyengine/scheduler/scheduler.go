// Package scheduler drives every background sweep the engine needs —
// scheduled-set promotion, retry requeue, batch digests, metrics
// flush/rollup/prune, and cleanup — on robfig/cron schedules, grounded on
// the Scheduler/Task wrapper (src/scheduler/scheduler.go), trimmed of
// its cluster-lock and audit-log plumbing since this engine runs its
// sweeps per-process rather than across a cluster.
package scheduler

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Task is one named, schedulable unit of work.
type Task struct {
	Name     string
	Schedule string
	Fn       func() error

	entryID cron.EntryID
	mu      sync.Mutex
	enabled bool
	lastRun *time.Time
	lastErr error
}

// Scheduler manages the engine's background sweeps on a robfig/cron clock.
type Scheduler struct {
	cron  *cron.Cron
	mu    sync.RWMutex
	tasks map[string]*Task
}

// New creates a Scheduler. Cron expressions and @every/@hourly-style
// descriptors are both accepted, matching parser config.
func New() *Scheduler {
	c := cron.New(cron.WithParser(cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)))
	return &Scheduler{cron: c, tasks: make(map[string]*Task)}
}

// AddTask registers fn to run on schedule under name.
func (s *Scheduler) AddTask(name, schedule string, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task := &Task{Name: name, Schedule: schedule, Fn: fn, enabled: true}
	entryID, err := s.cron.AddFunc(schedule, func() { s.run(task) })
	if err != nil {
		return fmt.Errorf("failed to schedule task %q with %q: %w", name, schedule, err)
	}
	task.entryID = entryID
	s.tasks[name] = task
	return nil
}

// Start begins running scheduled tasks.
func (s *Scheduler) Start() {
	s.mu.RLock()
	n := len(s.tasks)
	s.mu.RUnlock()
	s.cron.Start()
	log.Printf("📅 scheduler: started with %d tasks", n)
}

// Stop halts the cron clock and waits for any in-flight task to finish.
func (s *Scheduler) Stop() {
	log.Println("🛑 scheduler: stopping")
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Println("✅ scheduler: stopped")
}

func (s *Scheduler) run(task *Task) {
	task.mu.Lock()
	if !task.enabled {
		task.mu.Unlock()
		return
	}
	task.mu.Unlock()

	start := time.Now()
	err := task.Fn()
	end := time.Now()

	task.mu.Lock()
	task.lastRun = &end
	task.lastErr = err
	task.mu.Unlock()

	if err != nil {
		log.Printf("❌ scheduler: task %q failed after %v: %v", task.Name, end.Sub(start), err)
	} else {
		log.Printf("✅ scheduler: task %q completed in %v", task.Name, end.Sub(start))
	}
}

// Trigger runs a task immediately, outside its normal schedule.
func (s *Scheduler) Trigger(name string) error {
	s.mu.RLock()
	task, ok := s.tasks[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("scheduler: task %q not found", name)
	}
	go s.run(task)
	return nil
}

// Enable resumes a previously disabled task.
func (s *Scheduler) Enable(name string) error { return s.setEnabled(name, true) }

// Disable pauses a task without removing it from the cron clock.
func (s *Scheduler) Disable(name string) error { return s.setEnabled(name, false) }

func (s *Scheduler) setEnabled(name string, enabled bool) error {
	s.mu.RLock()
	task, ok := s.tasks[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("scheduler: task %q not found", name)
	}
	task.mu.Lock()
	task.enabled = enabled
	task.mu.Unlock()
	return nil
}

// Status is a point-in-time snapshot of one task's run history.
type Status struct {
	Name     string
	Schedule string
	Enabled  bool
	LastRun  *time.Time
	LastErr  error
	NextRun  time.Time
}

// StatusAll returns a Status for every registered task.
func (s *Scheduler) StatusAll() []Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Status, 0, len(s.tasks))
	for _, t := range s.tasks {
		t.mu.Lock()
		entry := s.cron.Entry(t.entryID)
		out = append(out, Status{
			Name:     t.Name,
			Schedule: t.Schedule,
			Enabled:  t.enabled,
			LastRun:  t.lastRun,
			LastErr:  t.lastErr,
			NextRun:  entry.Next,
		})
		t.mu.Unlock()
	}
	return out
}
