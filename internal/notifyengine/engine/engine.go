// Package engine wires the configuration, stores, queue, channel
// adapters, worker pool, and scheduler into the single running process a
// notifyengine deployment starts, grounded on top-level
// App/service wiring (src/server/server.go's construction order:
// database, then caches, then services, then background schedulers).
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/apimgr/notifyengine/internal/notifyengine/breaker"
	"github.com/apimgr/notifyengine/internal/notifyengine/channel"
	"github.com/apimgr/notifyengine/internal/notifyengine/config"
	"github.com/apimgr/notifyengine/internal/notifyengine/intake"
	"github.com/apimgr/notifyengine/internal/notifyengine/live"
	"github.com/apimgr/notifyengine/internal/notifyengine/metrics"
	"github.com/apimgr/notifyengine/internal/notifyengine/preference"
	"github.com/apimgr/notifyengine/internal/notifyengine/queue"
	"github.com/apimgr/notifyengine/internal/notifyengine/ratelimit"
	"github.com/apimgr/notifyengine/internal/notifyengine/scheduler"
	"github.com/apimgr/notifyengine/internal/notifyengine/store"
	"github.com/apimgr/notifyengine/internal/notifyengine/worker"
)

// Engine bundles every live component started by cmd/notifyengine.
type Engine struct {
	Config *config.Config

	DB  *sql.DB
	Redis *redis.Client

	Queue         *queue.Queue
	Scheduled     *queue.ScheduledSet
	Notifications *store.NotificationStore
	Delivery      *store.DeliveryRecordStore
	Preferences   *store.CachedPreferenceStore
	Templates     *store.CachedTemplateStore
	Inbox         *store.InboxStore
	ProviderState *store.ProviderStateStore
	Batches       *preference.BatchStore

	RateLimits *ratelimit.Registry
	Breakers   *breaker.Registry
	Channels   *channel.Registry
	Hub        *live.Hub
	Metrics    *metrics.Aggregator

	Intake *intake.Admitter
	Pool   *worker.Pool
	Sched  *scheduler.Scheduler

	configMu sync.RWMutex
	watcher  *config.Watcher
}

// RecipientResolver is injected by the caller (cmd/notifyengine), since
// resolving a user's delivery address is the external-directory seam
// this engine never owns.
type RecipientResolver = worker.RecipientResolver

// New builds an Engine from cfg and recipients, opening the database and
// wiring every component, but does not start any background goroutine.
func New(cfg *config.Config, recipients RecipientResolver) (*Engine, error) {
	db, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	q, err := queue.New(cfg.Queue.AgingInterval, cfg.Queue.JournalPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open priority queue: %w", err)
	}
	scheduled := queue.NewScheduledSet()

	notifications := store.NewNotificationStore(db)
	delivery := store.NewDeliveryRecordStore(db)
	preferences := store.NewCachedPreferenceStore(store.NewPreferenceStore(db), cfg.Template.CacheTTL)
	templates := store.NewCachedTemplateStore(store.NewTemplateStore(db), cfg.Template.CacheTTL)
	inbox := store.NewInboxStore(db)
	providerState := store.NewProviderStateStore(db)
	batches := preference.NewBatchStore()

	rateLimits := ratelimit.NewRegistry(redisClient)
	for ch, rl := range cfg.RateLimit.PerChannel {
		rateLimits.Configure(modelChannel(ch), rl.RatePerSecond, rl.Burst)
	}

	breakers := breaker.NewRegistry(breaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		OpenDuration:     cfg.Breaker.OpenDuration,
	})

	hub := live.NewHub()
	channels := buildChannelRegistry(cfg, inbox, hub)

	agg := metrics.New(db)

	admitter := intake.New(notifications, q, scheduled, cfg.Retry.DefaultMaxRetries)

	pool := worker.New(worker.Deps{
		Queue:         q,
		Notifications: notifications,
		Delivery:      delivery,
		Preferences:   preferences,
		Templates:     templates,
		Batches:       batches,
		Channels:      channels,
		RateLimits:    rateLimits,
		Breakers:      breakers,
		Recipients:    recipients,
		Metrics:       agg,
		MaxRetries:    cfg.Retry.DefaultMaxRetries,
		DialTimeout:   30 * time.Second,
	}, workerCount(cfg))

	sched := scheduler.New()
	if err := scheduler.Register(sched, cfg.Scheduler.Tasks, scheduler.Deps{
		Queue:         q,
		Scheduled:     scheduled,
		Notifications: notifications,
		Delivery:      delivery,
		Inbox:         inbox,
		Batches:       batches,
		Metrics:       agg,
		RecordTTL:     7 * 24 * time.Hour,
		MaxRetries:    cfg.Retry.DefaultMaxRetries,
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to register scheduled tasks: %w", err)
	}

	return &Engine{
		Config:        cfg,
		DB:            db,
		Redis:         redisClient,
		Queue:         q,
		Scheduled:     scheduled,
		Notifications: notifications,
		Delivery:      delivery,
		Preferences:   preferences,
		Templates:     templates,
		Inbox:         inbox,
		ProviderState: providerState,
		Batches:       batches,
		RateLimits:    rateLimits,
		Breakers:      breakers,
		Channels:      channels,
		Hub:           hub,
		Metrics:       agg,
		Intake:        admitter,
		Pool:          pool,
		Sched:         sched,
	}, nil
}

// Start launches the live hub, worker pool, and scheduler.
func (e *Engine) Start() {
	go e.Hub.Run()
	e.Pool.Start()
	e.Sched.Start()
	log.Println("✅ engine: started")
}

// WatchConfig starts watching configPath for changes and live-applies
// rate-limit and breaker tuning from the reloaded file via ApplyConfig.
// Changes to the database DSN, server port, or scheduler cron expressions
// still require a restart — only the tunables the dispatch path reads on
// every call can be swapped safely without one.
func (e *Engine) WatchConfig(configPath string) error {
	w, err := config.NewWatcher(configPath, e.ApplyConfig)
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	if err := w.Start(); err != nil {
		return fmt.Errorf("failed to start config watcher: %w", err)
	}
	e.watcher = w
	return nil
}

// ApplyConfig live-applies a reloaded config's rate-limit and breaker
// tunables to the running engine.
func (e *Engine) ApplyConfig(cfg *config.Config) error {
	for ch, rl := range cfg.RateLimit.PerChannel {
		e.RateLimits.Configure(modelChannel(ch), rl.RatePerSecond, rl.Burst)
	}
	e.Breakers.Reconfigure(breaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		OpenDuration:     cfg.Breaker.OpenDuration,
	})

	e.configMu.Lock()
	e.Config = cfg
	e.configMu.Unlock()
	return nil
}

// Stop halts the scheduler and worker pool, then closes the queue journal
// and database handle, in the reverse of Start's order.
func (e *Engine) Stop() {
	if e.watcher != nil {
		if err := e.watcher.Stop(); err != nil {
			log.Printf("⚠️  engine: failed to stop config watcher: %v", err)
		}
	}
	e.Sched.Stop()
	e.Pool.Stop()
	e.Hub.Stop()
	if err := e.Queue.Close(); err != nil {
		log.Printf("⚠️  engine: failed to close queue journal: %v", err)
	}
	if err := e.DB.Close(); err != nil {
		log.Printf("⚠️  engine: failed to close database: %v", err)
	}
	if e.Redis != nil {
		if err := e.Redis.Close(); err != nil {
			log.Printf("⚠️  engine: failed to close redis client: %v", err)
		}
	}
	log.Println("🛑 engine: stopped")
}

// ReplayScheduled runs one immediate pass of the scheduled-set sweep,
// for the CLI's replay-scheduled command.
func (e *Engine) ReplayScheduled(ctx context.Context) error {
	return e.Sched.Trigger("scheduled_sweep")
}

func workerCount(cfg *config.Config) int {
	// One worker per enabled channel is the floor; five is the usual
	// steady-state concurrency across all channels combined.
	n := 0
	for _, c := range cfg.Channels {
		if c.Enabled {
			n++
		}
	}
	if n < 5 {
		n = 5
	}
	return n
}
