// Package config reads and persists the desktop application's JSON
// configuration document.
//
// The document is owned by the desktop client; this engine only consumes
// the `database` and `remote_database` sections and, during remediation,
// writes back normalized values through the same file.
package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Config is a read-only snapshot of the settings this engine consumes.
type Config struct {
	// DBPath is the local SQLite database file.
	DBPath string
	// BackupDir holds timestamped .sqlite3 backups; lexicographic order
	// of filenames equals chronological order.
	BackupDir string

	RemoteURL    string
	Username     string
	Password     string
	Enabled      bool
	SyncInterval time.Duration
}

// Validate reports the first missing required setting.
func (c Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("no database path configured")
	}
	if c.RemoteURL == "" {
		return fmt.Errorf("no remote database URL configured")
	}
	return nil
}

// Store wraps the configuration file with reload and write-back support.
// All methods are safe for concurrent use.
type Store struct {
	mu   sync.Mutex
	v    *viper.Viper
	path string
}

// Open loads the configuration document at path.
func Open(path string) (*Store, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	v.SetDefault("database.backup_dir", "backups")
	v.SetDefault("remote_database.enabled", true)
	v.SetDefault("remote_database.sync_interval", 60)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}

	return &Store{v: v, path: path}, nil
}

// Path returns the configuration file location.
func (s *Store) Path() string {
	return s.path
}

// Config returns the current settings snapshot.
func (s *Store) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()

	interval := s.v.GetInt("remote_database.sync_interval")
	if interval <= 0 {
		interval = 60
	}

	return Config{
		DBPath:       s.v.GetString("database.path"),
		BackupDir:    s.v.GetString("database.backup_dir"),
		RemoteURL:    s.v.GetString("remote_database.url"),
		Username:     s.v.GetString("remote_database.username"),
		Password:     s.v.GetString("remote_database.password"),
		Enabled:      s.v.GetBool("remote_database.enabled"),
		SyncInterval: time.Duration(interval) * time.Second,
	}
}

// Reload re-reads the document from disk, picking up external edits.
func (s *Store) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to reload config %s: %w", s.path, err)
	}
	return nil
}

// Normalize repairs known configuration drift in memory and reports
// whether anything changed. Call Save to persist.
//
// Repairs: trailing slashes on the remote URL, and a missing scheme
// (https:// is assumed, matching the hosted deployment).
func (s *Store) Normalize() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false

	url := s.v.GetString("remote_database.url")
	if url == "" {
		return false
	}
	if trimmed := strings.TrimRight(url, "/"); trimmed != url {
		url = trimmed
		changed = true
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "https://" + url
		changed = true
	}
	if changed {
		s.v.Set("remote_database.url", url)
	}
	return changed
}

// Save writes the current settings back to the configuration file.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.v.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("failed to save config %s: %w", s.path, err)
	}
	return nil
}
