// Package syncer performs single upload-based synchronization attempts:
// integrity gate, endpoint discovery, then a whole-file multipart upload.
package syncer

import (
	"context"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Mobahiro/epetcare-syncd/internal/dbcheck"
	"github.com/Mobahiro/epetcare-syncd/internal/probe"
)

type orchestrator struct {
	client *http.Client
	prober *probe.Prober
	logger *log.Logger
	fileMu *sync.Mutex
}

// New creates an Orchestrator.
//
// fileMu serializes every operation that touches the database file; the
// same mutex must be shared with the recovery/remediation side. A nil
// client gets a 60 second timeout sized for full-file uploads.
func New(client *http.Client, prober *probe.Prober, logger *log.Logger, fileMu *sync.Mutex) Orchestrator {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	if fileMu == nil {
		fileMu = &sync.Mutex{}
	}
	return &orchestrator{client: client, prober: prober, logger: logger, fileMu: fileMu}
}

// Attempt implements Orchestrator.Attempt.
func (o *orchestrator) Attempt(ctx context.Context, dbPath, baseURL string, creds *probe.Credentials) Result {
	res := Result{Timestamp: time.Now()}

	// Integrity gate: no point probing the network if the local file is
	// unusable for upload.
	report := dbcheck.Check(dbPath)
	if !report.Valid {
		return res.fail(KindLocalData, "local database error: "+report.Message)
	}
	if len(report.MissingTables) > 0 {
		return res.fail(KindLocalData, "local database error: "+report.Message)
	}

	pr := o.prober.Probe(ctx, baseURL, creds)
	res.Probe = &pr
	if !pr.Valid {
		return res.fail(KindConfig, pr.Message)
	}

	upload := pr.UploadEndpoint
	if upload == "" && pr.SyncEndpoint != "" {
		upload = DeriveUploadEndpoint(pr.SyncEndpoint)
		if upload != "" {
			o.logger.Printf("derived upload endpoint %s from %s", upload, pr.SyncEndpoint)
		}
	}
	if upload == "" {
		return res.fail(KindNetwork, "no sync endpoints available")
	}
	res.Endpoint = upload

	o.logger.Printf("uploading database to %s", upload)
	if err := o.upload(ctx, dbPath, upload, pr.AuthToken); err != nil {
		return res.fail(KindNetwork, "upload failed: "+err.Error())
	}

	o.logger.Printf("database upload successful")
	res.Success = true
	return res
}

func (r Result) fail(kind FailureKind, msg string) Result {
	r.Success = false
	r.Kind = kind
	r.Errors = append(r.Errors, msg)
	return r
}

// upload streams the database file as a multipart POST (field name
// "database", the remote's whole-file replacement contract). HTTP 200 is
// the only success; everything else is reported with the response body.
func (o *orchestrator) upload(ctx context.Context, dbPath, endpoint, token string) error {
	o.fileMu.Lock()
	defer o.fileMu.Unlock()

	f, err := os.Open(dbPath)
	if err != nil {
		return fmt.Errorf("cannot open database file: %w", err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("database", "db.sqlite3")
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, f); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		return fmt.Errorf("cannot build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Token "+token)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%d - %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// DeriveUploadEndpoint guesses the upload endpoint from a sync endpoint
// by substituting the final path segment "sync" with "upload".
//
// This is a textual heuristic inherited from the remote's observed
// layout; when the sync path's final segment is not literally "sync" no
// endpoint is derived and the caller fails the attempt instead of
// guessing further.
func DeriveUploadEndpoint(syncEndpoint string) string {
	u, err := url.Parse(syncEndpoint)
	if err != nil {
		return ""
	}
	segs := strings.Split(u.Path, "/")
	for i := len(segs) - 1; i >= 0; i-- {
		if segs[i] == "" {
			continue
		}
		if segs[i] != "sync" {
			return ""
		}
		segs[i] = "upload"
		u.Path = strings.Join(segs, "/")
		return u.String()
	}
	return ""
}
