// Package monitor drives the periodic, self-healing synchronization loop.
//
// The Engine performs guarded one-shot operations (sync, fix, snapshot
// refresh) and publishes results into the shared status tracker; the Loop
// schedules the Engine on an interval with cooperative shutdown; the
// Supervisor owns the current Loop so the dashboard can restart it.
package monitor

import (
	"context"
	"log"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Mobahiro/epetcare-syncd/internal/autofix"
	"github.com/Mobahiro/epetcare-syncd/internal/config"
	"github.com/Mobahiro/epetcare-syncd/internal/dbcheck"
	"github.com/Mobahiro/epetcare-syncd/internal/probe"
	"github.com/Mobahiro/epetcare-syncd/internal/status"
	"github.com/Mobahiro/epetcare-syncd/internal/syncer"
)

// Engine wires the sync, probe, and remediation components around one
// shared status tracker and one database-file lock.
type Engine struct {
	store   *config.Store
	tracker *status.Tracker
	logger  *log.Logger

	prober *probe.Prober
	orch   syncer.Orchestrator
	fixer  *autofix.Fixer

	// fileMu serializes every operation touching the database file:
	// upload streaming, recovery, backup restore.
	fileMu sync.Mutex

	// inFlight collapses overlapping sync requests: a second trigger
	// while one attempt is running becomes a no-op rather than a
	// concurrent reader of the same database file.
	inFlight atomic.Bool

	autoFix bool
}

// EngineConfig holds Engine construction options.
type EngineConfig struct {
	// AutoFix enables the remediate-then-retry-once path after a failed
	// attempt.
	AutoFix bool

	// ConnectivityURL overrides the remediation reachability probe.
	ConnectivityURL string

	// ProbeClient and UploadClient override the HTTP clients (tests).
	ProbeClient  *http.Client
	UploadClient *http.Client

	Logger *log.Logger
}

// NewEngine builds an Engine over the given config store and tracker.
func NewEngine(store *config.Store, tracker *status.Tracker, cfg EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[monitor] ", log.LstdFlags)
	}

	e := &Engine{
		store:   store,
		tracker: tracker,
		logger:  logger,
		autoFix: cfg.AutoFix,
	}
	e.prober = probe.New(cfg.ProbeClient, logger)
	e.orch = syncer.New(cfg.UploadClient, e.prober, logger, &e.fileMu)

	var opts []autofix.Option
	if cfg.ConnectivityURL != "" {
		opts = append(opts, autofix.WithConnectivityURL(cfg.ConnectivityURL))
	}
	e.fixer = autofix.New(store, logger, &e.fileMu, opts...)

	return e
}

// Tracker returns the shared status tracker.
func (e *Engine) Tracker() *status.Tracker {
	return e.tracker
}

// SyncOnce runs one complete sync iteration: attempt, and on failure with
// auto-fix enabled, one remediation pass followed by exactly one retry.
// The published status reflects the final attempt.
//
// If another sync is already in flight the call is collapsed into a
// no-op and the last known result state stands.
func (e *Engine) SyncOnce(ctx context.Context) syncer.Result {
	if !e.inFlight.CompareAndSwap(false, true) {
		e.logger.Printf("sync already in progress, skipping")
		return syncer.Result{Timestamp: time.Now(), Errors: []string{"sync already in progress"}}
	}
	defer e.inFlight.Store(false)

	now := time.Now()
	e.tracker.Update(func(s *status.Snapshot) {
		s.LastCheck = &now
		s.Errors = []string{}
	})

	cfg := e.store.Config()
	if !cfg.Enabled {
		e.logger.Printf("remote database sync is disabled in config")
		e.tracker.Update(func(s *status.Snapshot) { s.Status = status.StateDisabled })
		return syncer.Result{Timestamp: now, Errors: []string{"remote database sync is disabled"}, Kind: syncer.KindConfig}
	}
	if err := cfg.Validate(); err != nil {
		e.logger.Printf("config error: %v", err)
		res := syncer.Result{Timestamp: now, Errors: []string{err.Error()}, Kind: syncer.KindConfig}
		e.publish(res, cfg)
		return res
	}

	res := e.orch.Attempt(ctx, cfg.DBPath, cfg.RemoteURL, e.credentials(cfg))
	e.publish(res, cfg)

	if !res.Success && e.autoFix {
		e.logger.Printf("sync failed, attempting remediation")
		if e.fixer.Remediate(ctx) {
			e.logger.Printf("remediation applied, retrying once")
		} else {
			e.logger.Printf("no remediation applied, retrying once anyway")
		}
		// Config may have been normalized or reloaded by the fixer.
		cfg = e.store.Config()
		res = e.orch.Attempt(ctx, cfg.DBPath, cfg.RemoteURL, e.credentials(cfg))
		e.publish(res, cfg)
	}

	return res
}

// Fix runs one standalone remediation pass (the dashboard's /fix action).
func (e *Engine) Fix(ctx context.Context) bool {
	applied := e.fixer.Remediate(ctx)
	cfg := e.store.Config()
	e.tracker.Update(func(s *status.Snapshot) {
		s.LocalDB = dbcheck.Snapshot(cfg.DBPath)
	})
	return applied
}

// RefreshSnapshots synchronously refreshes the local and remote status
// sub-snapshots without attempting an upload (the dashboard's /check).
func (e *Engine) RefreshSnapshots(ctx context.Context) {
	cfg := e.store.Config()
	now := time.Now()

	local := dbcheck.Snapshot(cfg.DBPath)

	var remote probe.RemoteSnapshot
	if cfg.RemoteURL == "" {
		remote = probe.RemoteSnapshot{Status: "not_configured"}
	} else {
		pr := e.prober.Probe(ctx, cfg.RemoteURL, e.credentials(cfg))
		remote = pr.Snapshot(now)
	}

	e.tracker.Update(func(s *status.Snapshot) {
		s.LastCheck = &now
		s.LocalDB = local
		s.RemoteAPI = remote
	})
}

func (e *Engine) credentials(cfg config.Config) *probe.Credentials {
	if cfg.Username == "" {
		return nil
	}
	return &probe.Credentials{Username: cfg.Username, Password: cfg.Password}
}

// publish folds an attempt result into the shared status record.
func (e *Engine) publish(res syncer.Result, cfg config.Config) {
	local := dbcheck.Snapshot(cfg.DBPath)

	e.tracker.Update(func(s *status.Snapshot) {
		ts := res.Timestamp
		s.LocalDB = local
		if res.Probe != nil {
			s.RemoteAPI = res.Probe.Snapshot(ts)
		}
		if res.Success {
			s.Status = status.StateSuccess
			s.LastSuccess = &ts
			return
		}
		s.Status = status.StateError
		s.LastFailure = &ts
		s.Errors = append(s.Errors, res.Errors...)
	})
}
