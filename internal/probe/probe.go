// Package probe discovers which HTTP endpoints a remote deployment
// actually exposes.
//
// Deployments differ in their URL layout (/api, /vet_portal/api, /api/v1),
// so candidates are expressed as ordered data and walked with a single
// first-match-wins rule per category. Every individual request failure is
// equivalent to "this candidate doesn't work"; the probe as a whole always
// returns whatever it found.
package probe

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// Credentials authenticate against the remote's token endpoint.
type Credentials struct {
	Username string
	Password string
}

// Candidate authentication paths, in fixed priority order. The first one
// returning HTTP 200 with a token/access field in its JSON body wins.
var authPaths = []string{
	"/api-token-auth/",
	"/api/token/",
	"/vet_portal/api-token-auth/",
	"/api/auth/",
}

// Candidate API path prefixes, in fixed priority order.
var apiPrefixes = []string{
	"/api",
	"/vet_portal/api",
	"/api/v1",
}

// endpointProbe pairs a functional endpoint suffix with the side-effect
// free method used to test it.
type endpointProbe struct {
	suffix string
	method string
}

var endpointProbes = []endpointProbe{
	{"database/sync/", http.MethodGet},
	{"database/download/", http.MethodHead},
	{"database/upload/", http.MethodOptions},
}

// Result aggregates everything a probe discovered. Any field may be empty;
// callers must handle partial results.
type Result struct {
	BaseURL string `json:"base_url"`
	// Valid is false when the base URL itself could not be parsed; no
	// probing happens in that case.
	Valid     bool   `json:"valid"`
	Message   string `json:"message,omitempty"`
	Reachable bool   `json:"reachable"`

	WorkingEndpoints []string `json:"working_endpoints"`

	AuthEndpoint string `json:"auth_endpoint,omitempty"`
	AuthToken    string `json:"-"`

	SyncEndpoint     string `json:"sync_endpoint,omitempty"`
	DownloadEndpoint string `json:"download_endpoint,omitempty"`
	UploadEndpoint   string `json:"upload_endpoint,omitempty"`
}

// Prober issues the discovery requests.
type Prober struct {
	client *http.Client
	logger *log.Logger
}

// New creates a Prober. A nil client gets a 10 second timeout so probes
// stay responsive against unreachable hosts.
func New(client *http.Client, logger *log.Logger) *Prober {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[probe] ", log.LstdFlags)
	}
	return &Prober{client: client, logger: logger}
}

// Probe discovers the remote's live endpoints under baseURL. creds may be
// nil, in which case authentication is skipped and functional endpoints
// are probed anonymously.
func (p *Prober) Probe(ctx context.Context, baseURL string, creds *Credentials) Result {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	res := Result{BaseURL: base}

	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		res.Message = "invalid URL: " + baseURL
		return res
	}
	res.Valid = true

	// Reachability is informational: a failing base GET does not abort
	// the rest of the probe (some deployments 404 their root).
	if p.request(ctx, http.MethodGet, base, "") {
		res.Reachable = true
		res.WorkingEndpoints = append(res.WorkingEndpoints, base)
	}

	if creds != nil && creds.Username != "" {
		endpoint, token := p.probeAuth(ctx, base, creds)
		if endpoint != "" {
			res.AuthEndpoint = endpoint
			res.AuthToken = token
			res.WorkingEndpoints = append(res.WorkingEndpoints, endpoint)
		}
	}

	for _, ep := range endpointProbes {
		canonical := ""
		for _, prefix := range apiPrefixes {
			target := base + prefix + "/" + ep.suffix
			if !p.request(ctx, ep.method, target, res.AuthToken) {
				continue
			}
			res.WorkingEndpoints = append(res.WorkingEndpoints, target)
			if canonical == "" {
				canonical = target
			}
		}
		switch ep.suffix {
		case "database/sync/":
			res.SyncEndpoint = canonical
		case "database/download/":
			res.DownloadEndpoint = canonical
		case "database/upload/":
			res.UploadEndpoint = canonical
		}
	}

	return res
}

// probeAuth walks the auth candidates and returns the first endpoint that
// yields a token. Later candidates are never tried once one succeeds.
func (p *Prober) probeAuth(ctx context.Context, base string, creds *Credentials) (endpoint, token string) {
	form := url.Values{}
	form.Set("username", creds.Username)
	form.Set("password", creds.Password)

	for _, path := range authPaths {
		target := base + path
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
		if err != nil {
			continue
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := p.client.Do(req)
		if err != nil {
			p.logger.Printf("auth candidate %s: %v", target, err)
			continue
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			continue
		}
		var payload map[string]any
		if err := json.Unmarshal(body, &payload); err != nil {
			continue
		}
		tok, _ := payload["token"].(string)
		if tok == "" {
			tok, _ = payload["access"].(string)
		}
		if tok != "" {
			p.logger.Printf("authenticated at %s", target)
			return target, tok
		}
	}
	return "", ""
}

// request reports whether a single candidate responds with a non-error
// status. Transport failures and timeouts count as not working.
func (p *Prober) request(ctx context.Context, method, target, token string) bool {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return false
	}
	if token != "" {
		req.Header.Set("Authorization", "Token "+token)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	resp.Body.Close()
	return resp.StatusCode < 400
}

// RemoteSnapshot is the dashboard-facing view of a probe.
type RemoteSnapshot struct {
	URL       string   `json:"url"`
	Status    string   `json:"status"` // online, error, not_configured, unknown
	Endpoints []string `json:"endpoints"`
	AuthOK    bool     `json:"auth_ok"`
	LastCheck string   `json:"last_check"`
	Error     string   `json:"error,omitempty"`
}

// Snapshot condenses the probe result for the status record.
func (r Result) Snapshot(now time.Time) RemoteSnapshot {
	snap := RemoteSnapshot{
		URL:       r.BaseURL,
		Endpoints: r.WorkingEndpoints,
		AuthOK:    r.AuthToken != "",
		LastCheck: now.Format(time.DateTime),
	}
	switch {
	case !r.Valid:
		snap.Status = "not_configured"
		snap.Error = r.Message
	case r.Reachable || len(r.WorkingEndpoints) > 0:
		snap.Status = "online"
	default:
		snap.Status = "error"
		snap.Error = "no endpoints reachable"
	}
	return snap
}
