// Package recovery rebuilds a damaged SQLite database file.
//
// Recovery is table-by-table and best-effort: the original file is copied
// aside, every salvageable table is recreated from its catalog DDL into a
// fresh staging file, rows are copied one at a time, and the staging file
// atomically replaces the original only at the end. The original path is
// never mutated in place.
package recovery

import (
	"database/sql"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/Mobahiro/epetcare-syncd/internal/dbcheck"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Result describes what a recovery pass salvaged.
type Result struct {
	// Replaced is true once the staging file has been swapped in.
	Replaced bool
	// FixedPath points at the staging file when the swap failed; the
	// rebuilt data is still there for manual recovery.
	FixedPath string
	// Bootstrap is true when the source file was missing entirely and a
	// minimal empty schema was created instead.
	Bootstrap bool

	Recovered []string
	Failed    []string
	// SkippedRows counts individual rows that could not be copied out of
	// otherwise-recovered tables.
	SkippedRows int

	// Report is the integrity check of the resulting file. Informational:
	// a recovery that merely completed is still returned with its data.
	Report dbcheck.Report
}

// Success is true when every table made it across.
func (r Result) Success() bool {
	return r.Replaced && len(r.Failed) == 0
}

// Recover rebuilds the database at path.
//
// Individual table and row failures are recovered around, never fatal.
// An unreadable table catalog is fatal: with no tables to salvage, the
// original file is left untouched rather than replaced with an empty
// one. Filesystem-level problems (cannot create the staging file, cannot
// rename it into place) also return an error; even then the Result
// carries whatever was salvaged.
func Recover(path string, logger *log.Logger) (Result, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[recovery] ", log.LstdFlags)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Printf("database missing at %s, creating degraded bootstrap", path)
		return bootstrap(path)
	}

	// Side copy of the damaged file. An existing .bak is an earlier
	// recovery's snapshot and must not be overwritten.
	bakPath := path + ".bak"
	if _, err := os.Stat(bakPath); os.IsNotExist(err) {
		if err := copyFile(path, bakPath); err != nil {
			logger.Printf("warning: failed to create backup %s: %v", bakPath, err)
		} else {
			logger.Printf("created backup at %s", bakPath)
		}
	}

	fixedPath := path + ".fixed"
	_ = os.Remove(fixedPath)

	src, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return Result{}, fmt.Errorf("failed to open source database: %w", err)
	}
	defer src.Close()

	dst, err := sql.Open("sqlite3", "file:"+fixedPath)
	if err != nil {
		return Result{}, fmt.Errorf("failed to create destination database: %w", err)
	}
	if err := dst.Ping(); err != nil {
		_ = dst.Close()
		return Result{}, fmt.Errorf("failed to create destination database: %w", err)
	}

	res := Result{}
	tables, err := dbcheck.ListTables(src)
	if err != nil {
		// Catalog unreadable: nothing can be salvaged table-by-table, and
		// swapping in the empty staging file would destroy whatever data
		// the damaged original still holds. Leave the original in place.
		_ = dst.Close()
		_ = os.Remove(fixedPath)
		return res, fmt.Errorf("cannot read table catalog: %w", err)
	}

	for _, table := range tables {
		if err := recoverTable(src, dst, table, &res, logger); err != nil {
			logger.Printf("failed to recover table %s: %v", table, err)
			res.Failed = append(res.Failed, table)
			continue
		}
		res.Recovered = append(res.Recovered, table)
		logger.Printf("recovered table %s", table)
	}

	_ = src.Close()
	if err := dst.Close(); err != nil {
		logger.Printf("warning: error closing destination: %v", err)
	}

	if err := os.Rename(fixedPath, path); err != nil {
		res.FixedPath = fixedPath
		logger.Printf("failed to replace original database, rebuilt copy left at %s", fixedPath)
		return res, fmt.Errorf("failed to replace original database: %w", err)
	}
	res.Replaced = true

	res.Report = dbcheck.Check(path)
	if res.Report.Valid {
		logger.Printf("recovery complete: %d tables recovered, %d failed, %d rows skipped",
			len(res.Recovered), len(res.Failed), res.SkippedRows)
	} else {
		logger.Printf("recovery completed but integrity check still reports: %s", res.Report.Message)
	}
	return res, nil
}

// recoverTable recreates one table in dst and copies its rows across.
// A row that cannot be read or inserted is skipped; an unreadable table
// (no DDL, failing CREATE, failing bulk read) returns an error so the
// caller marks the whole table failed.
func recoverTable(src, dst *sql.DB, table string, res *Result, logger *log.Logger) error {
	var ddl sql.NullString
	err := src.QueryRow("SELECT sql FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&ddl)
	if err != nil {
		return fmt.Errorf("failed to read DDL: %w", err)
	}
	if !ddl.Valid || strings.TrimSpace(ddl.String) == "" {
		return fmt.Errorf("no creation statement in catalog")
	}

	if _, err := dst.Exec(ddl.String); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	rows, err := src.Query("SELECT * FROM " + dbcheck.QuoteIdent(table))
	if err != nil {
		return fmt.Errorf("failed to read rows: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("failed to read columns: %w", err)
	}

	tx, err := dst.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin insert transaction: %w", err)
	}
	defer tx.Rollback()

	quoted := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = dbcheck.QuoteIdent(c)
		placeholders[i] = "?"
	}
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		dbcheck.QuoteIdent(table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))

	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			logger.Printf("skipping unreadable row in %s: %v", table, err)
			res.SkippedRows++
			continue
		}
		if _, err := tx.Exec(insert, vals...); err != nil {
			logger.Printf("skipping row in %s: %v", table, err)
			res.SkippedRows++
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("bulk read failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rows: %w", err)
	}
	return nil
}

// Minimal schema for the degraded bootstrap: just enough structure for
// the desktop client to start against an empty database.
const bootstrapSchema = `
CREATE TABLE IF NOT EXISTS auth_user (
	id INTEGER PRIMARY KEY,
	username TEXT UNIQUE NOT NULL,
	password TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS clinic_pet (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	species TEXT,
	breed TEXT,
	date_of_birth TEXT
);
`

// bootstrap creates a minimal empty database when no source exists.
// This is a degraded bootstrap, not a repair.
func bootstrap(path string) (Result, error) {
	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return Result{}, fmt.Errorf("failed to create database: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Exec(bootstrapSchema); err != nil {
		return Result{}, fmt.Errorf("failed to create bootstrap schema: %w", err)
	}
	if err := conn.Close(); err != nil {
		return Result{}, fmt.Errorf("failed to close bootstrap database: %w", err)
	}

	return Result{
		Replaced:  true,
		Bootstrap: true,
		Recovered: []string{"auth_user", "clinic_pet"},
		Report:    dbcheck.Check(path),
	}, nil
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
