package monitor

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Mobahiro/epetcare-syncd/internal/status"
)

// Loop schedules Engine.SyncOnce on an interval.
//
// The loop has two states: idle (waiting on the ticker or shutdown) and
// running (one attempt in progress). Shutdown is cooperative: an idle
// loop observes it immediately; a mid-flight attempt is allowed to
// finish so the database file is never left half-streamed.
type Loop struct {
	engine   *Engine
	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	watcher     *fsnotify.Watcher
	configDirty atomic.Bool
}

// NewLoop creates a loop ticking at interval.
func NewLoop(engine *Engine, interval time.Duration) (*Loop, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %v", interval)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Loop{
		engine:   engine,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start launches the loop's goroutines. The first sync runs immediately;
// subsequent runs follow the interval.
func (l *Loop) Start() {
	l.engine.logger.Printf("monitor started with interval %v", l.interval)

	l.startConfigWatch()

	l.engine.tracker.Update(func(s *status.Snapshot) { s.MonitorRunning = true })

	l.wg.Add(1)
	go l.run()
}

// Stop signals shutdown and waits for the loop to exit. A mid-flight
// attempt finishes first.
func (l *Loop) Stop() {
	l.cancel()
	if l.watcher != nil {
		_ = l.watcher.Close()
	}
	l.wg.Wait()
	l.engine.tracker.Update(func(s *status.Snapshot) { s.MonitorRunning = false })
	l.engine.logger.Printf("monitor stopped")
}

func (l *Loop) run() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.iterate()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			l.iterate()
		}
	}
}

func (l *Loop) iterate() {
	if l.configDirty.Swap(false) {
		if err := l.engine.store.Reload(); err != nil {
			l.engine.logger.Printf("config reload failed: %v", err)
		} else {
			l.engine.logger.Printf("configuration reloaded")
		}
	}

	l.engine.logger.Printf("checking database sync...")
	res := l.engine.SyncOnce(l.ctx)
	if res.Success {
		l.engine.logger.Printf("sync successful")
	} else {
		l.engine.logger.Printf("sync failed: %v", res.Errors)
	}
}

// startConfigWatch marks the config dirty when the file changes on disk
// so the next tick picks up external edits. Watch failures are logged
// and the loop proceeds without live reload.
func (l *Loop) startConfigWatch() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		l.engine.logger.Printf("config watch unavailable: %v", err)
		return
	}
	cfgPath := l.engine.store.Path()
	if err := watcher.Add(filepath.Dir(cfgPath)); err != nil {
		l.engine.logger.Printf("config watch unavailable: %v", err)
		_ = watcher.Close()
		return
	}
	l.watcher = watcher

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		for {
			select {
			case <-l.ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(cfgPath) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				l.configDirty.Store(true)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.engine.logger.Printf("config watch error: %v", err)
			}
		}
	}()
}

// Supervisor owns the currently running Loop so it can be restarted on
// demand (the dashboard's /restart-monitor action).
type Supervisor struct {
	mu       sync.Mutex
	engine   *Engine
	interval time.Duration
	loop     *Loop
}

// NewSupervisor creates a supervisor; no loop runs until Start.
func NewSupervisor(engine *Engine, interval time.Duration) *Supervisor {
	return &Supervisor{engine: engine, interval: interval}
}

// Start launches a loop if none is running.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loop != nil {
		return nil
	}
	loop, err := NewLoop(s.engine, s.interval)
	if err != nil {
		return err
	}
	s.loop = loop
	loop.Start()
	return nil
}

// Stop shuts the current loop down, if any.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	loop := s.loop
	s.loop = nil
	s.mu.Unlock()

	if loop != nil {
		loop.Stop()
	}
}

// Restart stops the current loop and starts a fresh one.
func (s *Supervisor) Restart() error {
	s.Stop()
	return s.Start()
}

// Running reports whether a loop is currently active.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loop != nil
}
