package probe

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func testProber(t *testing.T) *Prober {
	t.Helper()
	return New(nil, log.New(io.Discard, "", 0))
}

// remoteStub serves a configurable deployment layout and records which
// paths were hit, in order.
type remoteStub struct {
	mu    sync.Mutex
	hits  []string
	serve func(w http.ResponseWriter, r *http.Request)
}

func (s *remoteStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.hits = append(s.hits, r.Method+" "+r.URL.Path)
	s.mu.Unlock()
	s.serve(w, r)
}

func (s *remoteStub) requested(entry string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.hits {
		if h == entry {
			return true
		}
	}
	return false
}

func TestProbeInvalidURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"empty", ""},
		{"no scheme", "epetcare.example.com"},
		{"scheme only", "https://"},
		{"garbage", "://nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := testProber(t).Probe(context.Background(), tt.url, nil)
			if res.Valid {
				t.Errorf("expected Valid=false for %q", tt.url)
			}
			if res.Message == "" {
				t.Error("expected a message explaining the rejection")
			}
		})
	}
}

func TestProbeStandardLayout(t *testing.T) {
	stub := &remoteStub{}
	stub.serve = func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			w.WriteHeader(http.StatusOK)
		case "/api-token-auth/":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"token": "tok-123"}`))
		case "/api/database/sync/", "/api/database/download/", "/api/database/upload/":
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}
	srv := httptest.NewServer(stub)
	defer srv.Close()

	res := testProber(t).Probe(context.Background(), srv.URL, &Credentials{Username: "vet", Password: "pw"})
	if !res.Valid || !res.Reachable {
		t.Fatalf("expected valid reachable result, got %+v", res)
	}
	if res.AuthEndpoint != srv.URL+"/api-token-auth/" {
		t.Errorf("AuthEndpoint = %q", res.AuthEndpoint)
	}
	if res.AuthToken != "tok-123" {
		t.Errorf("AuthToken = %q", res.AuthToken)
	}
	if res.SyncEndpoint != srv.URL+"/api/database/sync/" {
		t.Errorf("SyncEndpoint = %q", res.SyncEndpoint)
	}
	if res.DownloadEndpoint != srv.URL+"/api/database/download/" {
		t.Errorf("DownloadEndpoint = %q", res.DownloadEndpoint)
	}
	if res.UploadEndpoint != srv.URL+"/api/database/upload/" {
		t.Errorf("UploadEndpoint = %q", res.UploadEndpoint)
	}
}

func TestProbeLegacyPortalLayout(t *testing.T) {
	stub := &remoteStub{}
	stub.serve = func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/", "/vet_portal/api/database/sync/":
			w.WriteHeader(http.StatusOK)
		case "/vet_portal/api-token-auth/":
			w.Write([]byte(`{"access": "jwt-456"}`))
		default:
			http.NotFound(w, r)
		}
	}
	srv := httptest.NewServer(stub)
	defer srv.Close()

	res := testProber(t).Probe(context.Background(), srv.URL, &Credentials{Username: "vet", Password: "pw"})
	if res.AuthToken != "jwt-456" {
		t.Errorf("AuthToken = %q, want jwt-456 from access field", res.AuthToken)
	}
	if res.SyncEndpoint != srv.URL+"/vet_portal/api/database/sync/" {
		t.Errorf("SyncEndpoint = %q", res.SyncEndpoint)
	}
	if res.UploadEndpoint != "" {
		t.Errorf("UploadEndpoint = %q, want empty", res.UploadEndpoint)
	}
}

func TestProbeFirstPrefixWins(t *testing.T) {
	// Both /api and /api/v1 expose the sync endpoint; the canonical
	// result must be the earlier prefix.
	stub := &remoteStub{}
	stub.serve = func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/database/sync/", "/api/v1/database/sync/":
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}
	srv := httptest.NewServer(stub)
	defer srv.Close()

	res := testProber(t).Probe(context.Background(), srv.URL, nil)
	if res.SyncEndpoint != srv.URL+"/api/database/sync/" {
		t.Errorf("SyncEndpoint = %q, want /api prefix", res.SyncEndpoint)
	}
	// Both live candidates are still reported.
	found := 0
	for _, ep := range res.WorkingEndpoints {
		if ep == srv.URL+"/api/database/sync/" || ep == srv.URL+"/api/v1/database/sync/" {
			found++
		}
	}
	if found != 2 {
		t.Errorf("expected both sync candidates in WorkingEndpoints, got %v", res.WorkingEndpoints)
	}
}

func TestProbeAuthStopsAtFirstSuccess(t *testing.T) {
	stub := &remoteStub{}
	stub.serve = func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/token/":
			w.Write([]byte(`{"access": "jwt"}`))
		default:
			http.NotFound(w, r)
		}
	}
	srv := httptest.NewServer(stub)
	defer srv.Close()

	res := testProber(t).Probe(context.Background(), srv.URL, &Credentials{Username: "vet", Password: "pw"})
	if res.AuthEndpoint != srv.URL+"/api/token/" {
		t.Fatalf("AuthEndpoint = %q", res.AuthEndpoint)
	}
	// Earlier candidate was tried, later ones were not.
	if !stub.requested("POST /api-token-auth/") {
		t.Error("first auth candidate was never tried")
	}
	if stub.requested("POST /vet_portal/api-token-auth/") || stub.requested("POST /api/auth/") {
		t.Error("auth probing continued after a success")
	}
}

func TestProbeAuthIgnoresNonTokenResponses(t *testing.T) {
	stub := &remoteStub{}
	stub.serve = func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api-token-auth/":
			// 200 but no usable token field.
			w.Write([]byte(`{"detail": "ok"}`))
		case "/api/token/":
			w.Write([]byte(`{"token": "tok"}`))
		default:
			http.NotFound(w, r)
		}
	}
	srv := httptest.NewServer(stub)
	defer srv.Close()

	res := testProber(t).Probe(context.Background(), srv.URL, &Credentials{Username: "vet", Password: "pw"})
	if res.AuthEndpoint != srv.URL+"/api/token/" {
		t.Errorf("AuthEndpoint = %q, want the candidate with a real token", res.AuthEndpoint)
	}
}

func TestProbeSendsTokenToFunctionalEndpoints(t *testing.T) {
	var gotAuth string
	stub := &remoteStub{}
	stub.serve = func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api-token-auth/":
			w.Write([]byte(`{"token": "tok-789"}`))
		case "/api/database/sync/":
			gotAuth = r.Header.Get("Authorization")
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}
	srv := httptest.NewServer(stub)
	defer srv.Close()

	testProber(t).Probe(context.Background(), srv.URL, &Credentials{Username: "vet", Password: "pw"})
	if gotAuth != "Token tok-789" {
		t.Errorf("Authorization = %q, want Token tok-789", gotAuth)
	}
}

func TestProbeProbeMethods(t *testing.T) {
	stub := &remoteStub{}
	stub.serve = func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}
	srv := httptest.NewServer(stub)
	defer srv.Close()

	testProber(t).Probe(context.Background(), srv.URL, nil)
	if !stub.requested("GET /api/database/sync/") {
		t.Error("sync probed with wrong method")
	}
	if !stub.requested("HEAD /api/database/download/") {
		t.Error("download probed with wrong method")
	}
	if !stub.requested("OPTIONS /api/database/upload/") {
		t.Error("upload probed with wrong method")
	}
}

func TestProbeUnreachableHost(t *testing.T) {
	p := New(&http.Client{Timeout: 200 * time.Millisecond}, log.New(io.Discard, "", 0))

	res := p.Probe(context.Background(), "http://127.0.0.1:1", &Credentials{Username: "vet"})
	if !res.Valid {
		t.Error("a well-formed URL stays valid even when unreachable")
	}
	if res.Reachable {
		t.Error("expected Reachable=false")
	}
	if len(res.WorkingEndpoints) != 0 {
		t.Errorf("expected no working endpoints, got %v", res.WorkingEndpoints)
	}
}

func TestProbeTrimsTrailingSlash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	res := testProber(t).Probe(context.Background(), srv.URL+"///", nil)
	if res.BaseURL != srv.URL {
		t.Errorf("BaseURL = %q, want %q", res.BaseURL, srv.URL)
	}
}

func TestResultSnapshot(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		res        Result
		wantStatus string
		wantAuth   bool
	}{
		{"invalid url", Result{Message: "invalid URL: x"}, "not_configured", false},
		{"reachable", Result{Valid: true, Reachable: true}, "online", false},
		{"endpoints only", Result{Valid: true, WorkingEndpoints: []string{"https://x/api/database/sync/"}}, "online", false},
		{"authenticated", Result{Valid: true, Reachable: true, AuthToken: "tok"}, "online", true},
		{"dead", Result{Valid: true}, "error", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := tt.res.Snapshot(now)
			if snap.Status != tt.wantStatus {
				t.Errorf("Status = %q, want %q", snap.Status, tt.wantStatus)
			}
			if snap.AuthOK != tt.wantAuth {
				t.Errorf("AuthOK = %v, want %v", snap.AuthOK, tt.wantAuth)
			}
			if snap.LastCheck != "2025-06-01 12:00:00" {
				t.Errorf("LastCheck = %q", snap.LastCheck)
			}
		})
	}
}
