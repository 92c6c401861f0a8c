package autofix

import (
	"context"
	"database/sql"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Mobahiro/epetcare-syncd/internal/config"
	"github.com/Mobahiro/epetcare-syncd/internal/dbcheck"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

func discard() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// onlineStub answers everything 200, standing in for the connectivity
// probe target.
func onlineStub(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// fixture builds a config store, a database path, and a backup dir all
// inside one temp tree.
func fixture(t *testing.T, extra string) (*config.Store, string, string) {
	t.Helper()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "db.sqlite3")
	backupDir := filepath.Join(dir, "backups")
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		t.Fatal(err)
	}

	cfgPath := filepath.Join(dir, "config.json")
	content := `{
		"database": {"path": ` + jsonString(dbPath) + `, "backup_dir": ` + jsonString(backupDir) + `},
		"remote_database": {"url": "` + extra + `"}
	}`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	store, err := config.Open(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	return store, dbPath, backupDir
}

func jsonString(s string) string {
	return `"` + strings.ReplaceAll(s, `\`, `\\`) + `"`
}

// writeBackup creates a valid SQLite backup file with a marker row.
func writeBackup(t *testing.T, dir, name, marker string) {
	t.Helper()

	path := filepath.Join(dir, name)
	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if _, err := conn.Exec("CREATE TABLE clinic_pet (id INTEGER PRIMARY KEY, name TEXT)"); err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Exec("INSERT INTO clinic_pet (name) VALUES (?)", marker); err != nil {
		t.Fatal(err)
	}
}

func petName(t *testing.T, path string) string {
	t.Helper()

	conn, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	var name string
	if err := conn.QueryRow("SELECT name FROM clinic_pet LIMIT 1").Scan(&name); err != nil {
		t.Fatal(err)
	}
	return name
}

func TestRemediateOfflineStopsEverything(t *testing.T) {
	store, dbPath, _ := fixture(t, "https://epetcare.example.com/")
	if err := os.WriteFile(dbPath, []byte("corrupt"), 0o644); err != nil {
		t.Fatal(err)
	}

	// A closed server makes the connectivity probe fail.
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	f := New(store, discard(), nil, WithConnectivityURL(srv.URL))
	if f.Remediate(context.Background()) {
		t.Error("remediation applied while offline")
	}
	// URL drift must remain untouched.
	if got := store.Config().RemoteURL; got != "https://epetcare.example.com/" {
		t.Errorf("config was normalized while offline: %q", got)
	}
}

func TestRemediateNormalizesConfig(t *testing.T) {
	store, _, _ := fixture(t, "epetcare.example.com/")
	online := onlineStub(t)

	f := New(store, discard(), nil, WithConnectivityURL(online.URL))
	if !f.Remediate(context.Background()) {
		t.Fatal("expected a remediation to apply")
	}
	if got := store.Config().RemoteURL; got != "https://epetcare.example.com" {
		t.Errorf("RemoteURL = %q", got)
	}

	// The repair must have been written through to disk.
	reopened, err := config.Open(store.Path())
	if err != nil {
		t.Fatal(err)
	}
	if got := reopened.Config().RemoteURL; got != "https://epetcare.example.com" {
		t.Errorf("persisted RemoteURL = %q", got)
	}
}

func TestRemediateRestoresLatestBackup(t *testing.T) {
	store, dbPath, backupDir := fixture(t, "https://epetcare.example.com")
	if err := os.WriteFile(dbPath, []byte("not a database"), 0o644); err != nil {
		t.Fatal(err)
	}
	writeBackup(t, backupDir, "backup_20240101_020000.sqlite3", "old")
	writeBackup(t, backupDir, "backup_20240601_020000.sqlite3", "new")
	// Non-backup files in the directory must be ignored.
	if err := os.WriteFile(filepath.Join(backupDir, "zzz_notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	online := onlineStub(t)

	f := New(store, discard(), nil, WithConnectivityURL(online.URL))
	if !f.Remediate(context.Background()) {
		t.Fatal("expected restore to apply")
	}

	if got := petName(t, dbPath); got != "new" {
		t.Errorf("restored marker = %q, want the latest backup", got)
	}
	if report := dbcheck.Check(dbPath); !report.Valid {
		t.Errorf("restored database fails integrity: %s", report.Message)
	}

	// The corrupted file must be parked under a quarantine name.
	entries, err := os.ReadDir(filepath.Dir(dbPath))
	if err != nil {
		t.Fatal(err)
	}
	quarantined := false
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "db.sqlite3.corrupted.") {
			quarantined = true
			data, err := os.ReadFile(filepath.Join(filepath.Dir(dbPath), e.Name()))
			if err != nil {
				t.Fatal(err)
			}
			if string(data) != "not a database" {
				t.Error("quarantine does not hold the corrupted bytes")
			}
		}
	}
	if !quarantined {
		t.Error("corrupted database was not quarantined")
	}
}

func TestRemediateLeavesHealthyDatabaseAlone(t *testing.T) {
	store, dbPath, backupDir := fixture(t, "https://epetcare.example.com")
	writeBackup(t, backupDir, "backup_20240101_020000.sqlite3", "backup")
	// A healthy database in place.
	writeBackup(t, filepath.Dir(dbPath), "db.sqlite3", "live")
	online := onlineStub(t)

	f := New(store, discard(), nil, WithConnectivityURL(online.URL))
	f.Remediate(context.Background())

	if got := petName(t, dbPath); got != "live" {
		t.Errorf("healthy database was replaced, marker = %q", got)
	}
}

func TestRemediateNoBackupsAvailable(t *testing.T) {
	store, dbPath, _ := fixture(t, "https://epetcare.example.com")
	if err := os.WriteFile(dbPath, []byte("corrupt"), 0o644); err != nil {
		t.Fatal(err)
	}
	online := onlineStub(t)

	f := New(store, discard(), nil, WithConnectivityURL(online.URL))
	if f.Remediate(context.Background()) {
		t.Error("nothing should have applied with no backups and clean config")
	}
	// The corrupted file stays put for a later manual recovery.
	data, err := os.ReadFile(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "corrupt" {
		t.Error("corrupted database was altered with no backup to restore")
	}
}
