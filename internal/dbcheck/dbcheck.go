// Package dbcheck validates the local SQLite database file.
//
// The database schema is owned by the web application; this package only
// verifies that the file opens, passes SQLite's built-in integrity scan,
// and still contains the tables the sync contract depends on. Every check
// opens the file read-only and produces a fresh report; nothing is cached.
package dbcheck

import (
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// RequiredTables must exist for a sync attempt to proceed.
var RequiredTables = []string{
	"auth_user",
	"clinic_owner",
	"clinic_pet",
	"clinic_appointment",
}

// ExtendedTables are additionally reported on the dashboard's record
// counts; their absence does not block syncing.
var ExtendedTables = []string{
	"auth_user",
	"clinic_owner",
	"clinic_pet",
	"clinic_appointment",
	"clinic_medicalrecord",
	"clinic_prescription",
}

// Report is the result of a single integrity check.
type Report struct {
	Valid         bool     `json:"valid"`
	Message       string   `json:"message"`
	Tables        []string `json:"tables"`
	MissingTables []string `json:"missing_tables"`
}

// Check validates the database file at path.
//
// Missing required tables are reported but do not set Valid=false on
// their own; the caller decides how severe that is.
func Check(path string) Report {
	if _, err := os.Stat(path); err != nil {
		return Report{Valid: false, Message: fmt.Sprintf("database file not found at %s", path)}
	}

	conn, err := openReadOnly(path)
	if err != nil {
		return Report{Valid: false, Message: fmt.Sprintf("failed to open database: %v", err)}
	}
	defer conn.Close()

	var result string
	if err := conn.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return Report{Valid: false, Message: fmt.Sprintf("integrity check error: %v", err)}
	}
	if result != "ok" {
		return Report{Valid: false, Message: fmt.Sprintf("database integrity check failed: %s", result)}
	}

	tables, err := ListTables(conn)
	if err != nil {
		return Report{Valid: false, Message: fmt.Sprintf("failed to list tables: %v", err)}
	}

	present := make(map[string]bool, len(tables))
	for _, t := range tables {
		present[t] = true
	}

	var missing []string
	for _, t := range RequiredTables {
		if !present[t] {
			missing = append(missing, t)
		}
	}

	report := Report{Valid: true, Message: "local database is valid", Tables: tables, MissingTables: missing}
	if len(missing) > 0 {
		report.Message = fmt.Sprintf("database is missing required tables: %s", strings.Join(missing, ", "))
	}
	return report
}

// ListTables enumerates user tables in catalog order, excluding SQLite's
// internal sqlite_* tables.
func ListTables(conn *sql.DB) ([]string, error) {
	rows, err := conn.Query("SELECT name FROM sqlite_master WHERE type='table'")
	if err != nil {
		return nil, fmt.Errorf("failed to query sqlite_master: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		if strings.HasPrefix(name, "sqlite_") {
			continue
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tables: %w", err)
	}
	return tables, nil
}

// LocalSnapshot describes the local database for the dashboard.
type LocalSnapshot struct {
	Path         string            `json:"path"`
	Status       string            `json:"status"` // ok, not_found, error
	SizeMB       float64           `json:"size_mb"`
	LastModified string            `json:"last_modified"`
	Tables       int               `json:"tables"`
	Integrity    string            `json:"integrity"`
	Records      map[string]string `json:"records"`
}

// Snapshot gathers dashboard-facing facts about the database file.
// Unlike Check it never fails; problems are folded into the snapshot.
func Snapshot(path string) LocalSnapshot {
	snap := LocalSnapshot{Path: path, Integrity: "unknown", Records: map[string]string{}}

	if path == "" {
		snap.Status = "not_found"
		return snap
	}
	info, err := os.Stat(path)
	if err != nil {
		snap.Status = "not_found"
		return snap
	}
	snap.SizeMB = float64(info.Size()) / (1024 * 1024)
	snap.LastModified = info.ModTime().Format(time.DateTime)

	conn, err := openReadOnly(path)
	if err != nil {
		snap.Status = "error"
		snap.Integrity = "error"
		return snap
	}
	defer conn.Close()

	var integrity string
	if err := conn.QueryRow("PRAGMA integrity_check").Scan(&integrity); err != nil {
		integrity = "error"
	}
	snap.Integrity = integrity

	tables, err := ListTables(conn)
	if err != nil {
		snap.Status = "error"
		return snap
	}
	snap.Tables = len(tables)

	present := make(map[string]bool, len(tables))
	for _, t := range tables {
		present[t] = true
	}
	for _, t := range ExtendedTables {
		if !present[t] {
			snap.Records[t] = "missing"
			continue
		}
		var count int
		if err := conn.QueryRow("SELECT COUNT(*) FROM " + QuoteIdent(t)).Scan(&count); err != nil {
			snap.Records[t] = "error"
			continue
		}
		snap.Records[t] = strconv.Itoa(count)
	}

	snap.Status = "ok"
	if integrity != "ok" {
		snap.Status = "error"
	}
	return snap
}

// QuoteIdent quotes a SQLite identifier for safe interpolation.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func openReadOnly(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}
