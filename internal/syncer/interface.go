package syncer

import (
	"context"
	"time"

	"github.com/Mobahiro/epetcare-syncd/internal/probe"
)

// FailureKind classifies what went wrong with an attempt.
type FailureKind string

const (
	KindNone      FailureKind = ""
	KindLocalData FailureKind = "local_data"
	KindNetwork   FailureKind = "network"
	KindConfig    FailureKind = "config"
)

// Result is the outcome of one synchronization attempt. Attempt never
// fails any other way; errors surface here as messages, not panics.
type Result struct {
	Success   bool        `json:"success"`
	Timestamp time.Time   `json:"timestamp"`
	Errors    []string    `json:"errors,omitempty"`
	Kind      FailureKind `json:"kind,omitempty"`

	// Endpoint is the upload endpoint actually used (probed or derived).
	Endpoint string `json:"endpoint,omitempty"`

	// Probe carries the endpoint discovery detail for status reporting.
	Probe *probe.Result `json:"-"`
}

// Orchestrator performs one upload-based synchronization attempt against
// the remote deployment.
type Orchestrator interface {
	// Attempt checks the local database, discovers the remote's
	// endpoints, and uploads the database file. It holds the database
	// file lock while streaming so recovery cannot run concurrently.
	Attempt(ctx context.Context, dbPath, baseURL string, creds *probe.Credentials) Result
}
