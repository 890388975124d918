package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"shortener/internal/ratelimit"
)

// WatcherConfig configures a rule watcher
type WatcherConfig struct {
	// DebounceDuration collapses bursts of file events into one reload
	DebounceDuration time.Duration
	// Apply receives the admission rules of every valid configuration whose
	// rules differ from the last ones applied. Returning an error rejects
	// them and the previous rules stay in effect.
	Apply   func(rules *ratelimit.RuleSet) error
	OnError func(error)
	// Load reads the configuration file. Defaults to Load, so .env and
	// environment overrides apply on reload too.
	Load func(path string) (*Config, error)
}

// DefaultWatcherConfig returns default watcher configuration
func DefaultWatcherConfig() *WatcherConfig {
	return &WatcherConfig{
		DebounceDuration: 500 * time.Millisecond,
	}
}

// Watcher hot-reloads the rate-limit rules of a configuration file. Every
// other setting is read once at startup.
//
// The parent directory is watched rather than the file so editors that
// save by rename, and files that are deleted and recreated, keep working.
type Watcher struct {
	path    string
	cfg     WatcherConfig
	fs      *fsnotify.Watcher
	logger  *slog.Logger
	done    chan struct{}
	wg      sync.WaitGroup
	stopped sync.Once

	mu      sync.Mutex
	timer   *time.Timer
	applied RateLimit
	reloads int
}

// NewWatcher creates a watcher for the file at path. The rules currently in
// the file count as applied.
func NewWatcher(path string, config *WatcherConfig, logger *slog.Logger) (*Watcher, error) {
	if config == nil {
		config = DefaultWatcherConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	w := &Watcher{
		path:   abs,
		cfg:    *config,
		logger: logger.With("component", "rule-watcher"),
		done:   make(chan struct{}),
	}
	if w.cfg.Load == nil {
		w.cfg.Load = Load
	}
	if w.cfg.DebounceDuration <= 0 {
		w.cfg.DebounceDuration = DefaultWatcherConfig().DebounceDuration
	}
	if current, err := w.cfg.Load(abs); err == nil {
		w.applied = current.RateLimit
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}
	w.fs = fsw

	return w, nil
}

// Start begins watching in the background
func (w *Watcher) Start() {
	w.wg.Add(1)
	go w.loop()
	w.logger.Info("Watching rate limit rules", "file", w.path)
}

// Stop ends the watch and cancels any pending reload. Safe to call twice.
func (w *Watcher) Stop() error {
	var err error
	w.stopped.Do(func() {
		close(w.done)
		w.wg.Wait()

		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()

		err = w.fs.Close()
	})
	return err
}

// Reloads returns how many rule sets have been applied
func (w *Watcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Remove) {
				w.logger.Warn("Config file removed, keeping current rules", "file", w.path)
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.schedule()
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.fail(fmt.Errorf("watcher error: %w", err))
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.cfg.DebounceDuration, func() {
		if err := w.reload(); err != nil {
			w.fail(err)
		}
	})
}

func (w *Watcher) fail(err error) {
	w.logger.Error("Rule reload failed, keeping current rules", "error", err)
	if w.cfg.OnError != nil {
		w.cfg.OnError(err)
	}
}

// reload reads the file and applies its rules when they changed. Load
// validates the rules, so Apply only ever sees a usable set.
func (w *Watcher) reload() error {
	next, err := w.cfg.Load(w.path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	w.mu.Lock()
	unchanged := sameRules(w.applied, next.RateLimit)
	w.mu.Unlock()
	if unchanged {
		w.logger.Debug("Config changed but rate limit rules did not", "file", w.path)
		return nil
	}

	rules, err := next.RateLimit.RuleSet()
	if err != nil {
		return fmt.Errorf("invalid rate limit rules: %w", err)
	}
	if w.cfg.Apply != nil {
		if err := w.cfg.Apply(rules); err != nil {
			return fmt.Errorf("failed to apply rules: %w", err)
		}
	}

	w.mu.Lock()
	w.applied = next.RateLimit
	w.reloads++
	w.mu.Unlock()

	w.logger.Info("Rate limit rules reloaded",
		"fixedWindowRules", len(next.RateLimit.FixedWindow),
		"tokenBucketRules", len(next.RateLimit.TokenBucket),
	)
	return nil
}

func sameRules(a, b RateLimit) bool {
	return reflect.DeepEqual(a.FixedWindow, b.FixedWindow) &&
		reflect.DeepEqual(a.TokenBucket, b.TokenBucket)
}
