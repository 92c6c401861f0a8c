// Package status holds the process-wide sync status record.
//
// The record is published as an immutable snapshot behind an atomic
// pointer: writers copy, mutate, and swap; readers load whatever snapshot
// is current. A reader can therefore never observe a half-updated record,
// no matter how the monitor loop, dashboard handlers, and manual triggers
// interleave.
package status

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/Mobahiro/epetcare-syncd/internal/dbcheck"
	"github.com/Mobahiro/epetcare-syncd/internal/probe"
)

// State is the overall sync state shown on the dashboard.
type State string

const (
	StateUnknown  State = "unknown"
	StateSuccess  State = "success"
	StateError    State = "error"
	StateDisabled State = "disabled"
)

// maxErrors bounds the dashboard error log; the most recent entries win.
const maxErrors = 50

// Snapshot is one immutable published state of the engine.
type Snapshot struct {
	LastCheck   *time.Time `json:"last_check"`
	LastSuccess *time.Time `json:"last_success"`
	LastFailure *time.Time `json:"last_failure"`
	Errors      []string   `json:"errors"`
	Status      State      `json:"status"`

	LocalDB   dbcheck.LocalSnapshot `json:"local_db"`
	RemoteAPI probe.RemoteSnapshot  `json:"remote_api"`

	MonitorRunning bool `json:"monitor_running"`
}

// Tracker owns the current snapshot. The zero value is not usable; use
// NewTracker.
type Tracker struct {
	writeMu sync.Mutex
	cur     atomic.Pointer[Snapshot]
}

// NewTracker returns a tracker initialized to the all-unknown state.
func NewTracker() *Tracker {
	t := &Tracker{}
	t.cur.Store(&Snapshot{
		Status: StateUnknown,
		Errors: []string{},
		LocalDB: dbcheck.LocalSnapshot{
			Status:    "unknown",
			Integrity: "unknown",
			Records:   map[string]string{},
		},
		RemoteAPI: probe.RemoteSnapshot{Status: "unknown"},
	})
	return t
}

// Snapshot returns a copy of the current record, safe for the caller to
// hold or serialize while writers continue swapping.
func (t *Tracker) Snapshot() Snapshot {
	return clone(t.cur.Load())
}

// Update applies fn to a private copy of the current snapshot and swaps
// the result in. Writers are serialized; readers are never blocked.
func (t *Tracker) Update(fn func(*Snapshot)) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	next := clone(t.cur.Load())
	fn(&next)
	if len(next.Errors) > maxErrors {
		next.Errors = append([]string(nil), next.Errors[len(next.Errors)-maxErrors:]...)
	}
	t.cur.Store(&next)
}

func clone(s *Snapshot) Snapshot {
	c := *s
	c.Errors = append([]string(nil), s.Errors...)
	c.RemoteAPI.Endpoints = append([]string(nil), s.RemoteAPI.Endpoints...)
	c.LocalDB.Records = make(map[string]string, len(s.LocalDB.Records))
	for k, v := range s.LocalDB.Records {
		c.LocalDB.Records[k] = v
	}
	if s.LastCheck != nil {
		v := *s.LastCheck
		c.LastCheck = &v
	}
	if s.LastSuccess != nil {
		v := *s.LastSuccess
		c.LastSuccess = &v
	}
	if s.LastFailure != nil {
		v := *s.LastFailure
		c.LastFailure = &v
	}
	return c
}
