package config

import (
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches the config file for changes and triggers a debounced
// reload, logging exactly which hot-reloadable tunable moved rather than a
// generic "reloading" line, since most fields in Config take effect only
// at process start and a bare reload notice would be misleading about
// what actually changed in the running engine.
type Watcher struct {
	watcher    *fsnotify.Watcher
	configPath string
	reloadFunc func(*Config) error
	current    *Config
	stopChan   chan struct{}
}

// NewWatcher creates a config file watcher for configPath. reloadFunc is
// called with the freshly-parsed config after each debounced write,
// whether or not a tunable actually changed. The file is read once here to
// seed the baseline used for diffing; a failure to do so is not fatal,
// it just means the first reload has nothing to diff against.
func NewWatcher(configPath string, reloadFunc func(*Config) error) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	baseline, err := Load(configPath)
	if err != nil {
		baseline = nil
	}
	return &Watcher{
		watcher:    w,
		configPath: configPath,
		reloadFunc: reloadFunc,
		current:    baseline,
		stopChan:   make(chan struct{}),
	}, nil
}

// Start begins watching the config file's directory for changes.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(filepath.Dir(w.configPath)); err != nil {
		return err
	}

	log.Printf("👁️  watching for config changes: %s", w.configPath)

	go func() {
		var debounceTimer *time.Timer
		const debounceDuration = 500 * time.Millisecond

		for {
			select {
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(w.configPath) {
					continue
				}
				if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
					if debounceTimer != nil {
						debounceTimer.Stop()
					}
					debounceTimer = time.AfterFunc(debounceDuration, w.reload)
				}

			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				log.Printf("⚠️  config watcher error: %v", err)

			case <-w.stopChan:
				log.Println("👁️  stopping config watcher")
				return
			}
		}
	}()

	return nil
}

// reload loads the rewritten config, logs each hot-reloadable tunable that
// moved since the last applied config, and hands the new config to
// reloadFunc regardless of whether a diffable tunable changed -- a rewrite
// that only touches a field the engine can't apply without a restart still
// becomes the new diffing baseline.
func (w *Watcher) reload() {
	newCfg, err := Load(w.configPath)
	if err != nil {
		log.Printf("❌ config reload: failed to parse %s: %v", w.configPath, err)
		return
	}

	changes := diffTunables(w.current, newCfg)
	if len(changes) == 0 {
		log.Println("🔄 config file rewritten, no hot-reloadable tunable changed")
	} else {
		for _, c := range changes {
			log.Printf("🔄 config reload: %s", c)
		}
	}

	if err := w.reloadFunc(newCfg); err != nil {
		log.Printf("❌ config reload: failed to apply %s: %v", w.configPath, err)
		return
	}
	w.current = newCfg
	log.Println("✅ config reloaded, no restart needed")
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	close(w.stopChan)
	return w.watcher.Close()
}

// diffTunables reports, in a stable order, the rate-limit and circuit
// breaker tunables that differ between old and new -- the fields
// Engine.ApplyConfig actually reads on the hot path. old may be nil when
// no baseline could be loaded, in which case every tunable in new is
// reported as newly set rather than changed.
func diffTunables(old, next *Config) []string {
	if next == nil {
		return nil
	}

	var changes []string
	channels := make(map[string]bool)
	if old != nil {
		for ch := range old.RateLimit.PerChannel {
			channels[ch] = true
		}
	}
	for ch := range next.RateLimit.PerChannel {
		channels[ch] = true
	}

	names := make([]string, 0, len(channels))
	for ch := range channels {
		names = append(names, ch)
	}
	sort.Strings(names)

	for _, ch := range names {
		newRL, stillConfigured := next.RateLimit.PerChannel[ch]
		var oldRL ChannelRateLimit
		wasConfigured := false
		if old != nil {
			oldRL, wasConfigured = old.RateLimit.PerChannel[ch]
		}
		switch {
		case wasConfigured && !stillConfigured:
			changes = append(changes, fmt.Sprintf("rate limit for channel %q removed", ch))
		case !wasConfigured && stillConfigured:
			changes = append(changes, fmt.Sprintf("rate limit for channel %q set to %.2f/s (burst %d)", ch, newRL.RatePerSecond, newRL.Burst))
		case wasConfigured && stillConfigured && oldRL != newRL:
			changes = append(changes, fmt.Sprintf("rate limit for channel %q changed: %.2f/s (burst %d) -> %.2f/s (burst %d)",
				ch, oldRL.RatePerSecond, oldRL.Burst, newRL.RatePerSecond, newRL.Burst))
		}
	}

	oldBreaker := BreakerConfig{}
	if old != nil {
		oldBreaker = old.Breaker
	}
	if oldBreaker.FailureThreshold != next.Breaker.FailureThreshold {
		changes = append(changes, fmt.Sprintf("circuit breaker failure threshold changed: %d -> %d", oldBreaker.FailureThreshold, next.Breaker.FailureThreshold))
	}
	if oldBreaker.OpenDuration != next.Breaker.OpenDuration {
		changes = append(changes, fmt.Sprintf("circuit breaker open duration changed: %s -> %s", oldBreaker.OpenDuration, next.Breaker.OpenDuration))
	}

	return changes
}
