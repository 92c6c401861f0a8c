// Package autofix applies a bounded sequence of remediations after a
// failed sync attempt.
//
// The sequence is strictly "try, move on": each step is independent and
// swallows its own errors, except the connectivity gate, which short
// circuits the whole pass -- there is no point repairing local state when
// there is no network at all. The caller retries the sync exactly once
// afterwards.
package autofix

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Mobahiro/epetcare-syncd/internal/config"
	"github.com/Mobahiro/epetcare-syncd/internal/dbcheck"
)

// DefaultConnectivityURL is a stable external host used purely as an
// "is there internet at all" probe.
const DefaultConnectivityURL = "https://www.google.com"

// Fixer runs the remediation sequence.
type Fixer struct {
	store           *config.Store
	client          *http.Client
	connectivityURL string
	logger          *log.Logger
	fileMu          *sync.Mutex
}

// Option customizes a Fixer.
type Option func(*Fixer)

// WithConnectivityURL overrides the internet reachability probe target.
func WithConnectivityURL(u string) Option {
	return func(f *Fixer) { f.connectivityURL = u }
}

// WithClient overrides the HTTP client used for the connectivity probe.
func WithClient(c *http.Client) Option {
	return func(f *Fixer) { f.client = c }
}

// New creates a Fixer. fileMu must be the same mutex the orchestrator
// uses so a restore never races an in-flight upload.
func New(store *config.Store, logger *log.Logger, fileMu *sync.Mutex, opts ...Option) *Fixer {
	if logger == nil {
		logger = log.New(os.Stderr, "[autofix] ", log.LstdFlags)
	}
	if fileMu == nil {
		fileMu = &sync.Mutex{}
	}
	f := &Fixer{
		store:           store,
		client:          &http.Client{Timeout: 5 * time.Second},
		connectivityURL: DefaultConnectivityURL,
		logger:          logger,
		fileMu:          fileMu,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Remediate runs the fixed remediation sequence and reports whether any
// remediation was applied.
func (f *Fixer) Remediate(ctx context.Context) bool {
	// Step 1: basic internet reachability. Failure stops everything.
	if !f.checkConnectivity(ctx) {
		f.logger.Printf("network connectivity issues detected, skipping remediation")
		return false
	}

	applied := false

	// Step 2: normalize known config drift.
	changed := f.store.Normalize()
	if changed {
		f.logger.Printf("normalized remote database URL")
		applied = true
	}

	// Step 3: restore the database from the latest backup if it no
	// longer passes its integrity check.
	cfg := f.store.Config()
	if cfg.DBPath != "" {
		if report := dbcheck.Check(cfg.DBPath); !report.Valid {
			f.logger.Printf("local database is corrupted, attempting restore: %s", report.Message)
			if err := f.restoreLatestBackup(cfg); err != nil {
				f.logger.Printf("backup restore failed: %v", err)
			} else {
				applied = true
			}
		}
	}

	// Step 4: persist whatever normalization happened.
	if changed {
		if err := f.store.Save(); err != nil {
			f.logger.Printf("failed to persist config changes: %v", err)
		} else {
			f.logger.Printf("updated configuration file")
		}
	}

	return applied
}

func (f *Fixer) checkConnectivity(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.connectivityURL, nil)
	if err != nil {
		return false
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

// restoreLatestBackup copies the lexicographically-latest .sqlite3 file
// from the backup directory over the corrupted database, after parking
// the corrupted file under a timestamped quarantine name.
func (f *Fixer) restoreLatestBackup(cfg config.Config) error {
	if cfg.BackupDir == "" {
		return fmt.Errorf("no backup directory configured")
	}
	entries, err := os.ReadDir(cfg.BackupDir)
	if err != nil {
		return fmt.Errorf("cannot read backup directory %s: %w", cfg.BackupDir, err)
	}

	var backups []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sqlite3") {
			backups = append(backups, e.Name())
		}
	}
	if len(backups) == 0 {
		return fmt.Errorf("no backups found in %s", cfg.BackupDir)
	}
	// Backup filenames carry sortable timestamps: lexicographic max is
	// the most recent.
	sort.Strings(backups)
	latest := filepath.Join(cfg.BackupDir, backups[len(backups)-1])

	f.fileMu.Lock()
	defer f.fileMu.Unlock()

	if _, err := os.Stat(cfg.DBPath); err == nil {
		quarantine := fmt.Sprintf("%s.corrupted.%s", cfg.DBPath, time.Now().Format("20060102150405"))
		if err := copyFile(cfg.DBPath, quarantine); err != nil {
			return fmt.Errorf("failed to quarantine corrupted database: %w", err)
		}
		f.logger.Printf("quarantined corrupted database at %s", quarantine)
	}

	if err := copyFile(latest, cfg.DBPath); err != nil {
		return fmt.Errorf("failed to restore backup %s: %w", latest, err)
	}
	f.logger.Printf("restored database from backup: %s", latest)
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
