package config

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher reloads ServerConfig whenever the process's .env file changes,
// following the teacher's ConfigWatcher/handleEvents split: a single
// fsnotify.Watcher goroutine debounced against duplicate Write events.
type Watcher struct {
	mu     sync.RWMutex
	cfg    *ServerConfig
	fsw    *fsnotify.Watcher
	logger zerolog.Logger
	onLoad func() (*ServerConfig, error)
	stop   chan struct{}
}

// NewWatcher starts watching envPath and applies onLoad whenever it changes.
// onLoad is called once immediately to populate the initial config.
func NewWatcher(envPath string, logger zerolog.Logger, onLoad func() (*ServerConfig, error)) (*Watcher, error) {
	initial, err := onLoad()
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if envPath != "" {
		if err := fsw.Add(envPath); err != nil {
			fsw.Close()
			return nil, err
		}
	}

	w := &Watcher{
		cfg:    initial,
		fsw:    fsw,
		logger: logger,
		onLoad: onLoad,
		stop:   make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	// A reload runs once events have been quiet for reloadDebounce, so the
	// several Write events of one save trigger a single reload.
	const reloadDebounce = 100 * time.Millisecond
	var pending <-chan time.Time
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			pending = time.After(reloadDebounce)
		case <-pending:
			pending = nil
			cfg, err := w.onLoad()
			if err != nil {
				w.logger.Warn().Err(err).Msg("config: reload failed, keeping previous config")
				continue
			}
			w.mu.Lock()
			w.cfg = cfg
			w.mu.Unlock()
			w.logger.Info().Msg("config: reloaded")
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("config: watcher error")
		case <-w.stop:
			return
		}
	}
}

// Current returns the most recently loaded config.
func (w *Watcher) Current() *ServerConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cfg
}

// Stop terminates the watcher goroutine and releases the fsnotify handle.
func (w *Watcher) Stop() error {
	close(w.stop)
	return w.fsw.Close()
}
