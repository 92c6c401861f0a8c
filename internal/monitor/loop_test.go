package monitor

import (
	"fmt"
	"os"
	"testing"
	"time"
)

func TestNewLoopValidation(t *testing.T) {
	engine, _ := newTestEngine(t, "https://epetcare.example.com", false, EngineConfig{})

	if _, err := NewLoop(nil, time.Second); err == nil {
		t.Error("expected error for nil engine")
	}
	if _, err := NewLoop(engine, 0); err == nil {
		t.Error("expected error for zero interval")
	}
	if _, err := NewLoop(engine, -time.Second); err == nil {
		t.Error("expected error for negative interval")
	}
	if _, err := NewLoop(engine, 50*time.Millisecond); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoopRunsImmediatelyAndSetsRunningFlag(t *testing.T) {
	// Disabled sync keeps iterations local and instant.
	engine, _ := newTestEngine(t, "https://epetcare.example.com", false, EngineConfig{})

	loop, err := NewLoop(engine, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	loop.Start()

	// The first iteration runs on Start, not on the first tick.
	deadline := time.Now().Add(2 * time.Second)
	for {
		snap := engine.Tracker().Snapshot()
		if snap.LastCheck != nil {
			if !snap.MonitorRunning {
				t.Error("MonitorRunning not set while loop is active")
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first iteration never ran")
		}
		time.Sleep(10 * time.Millisecond)
	}

	loop.Stop()
	if engine.Tracker().Snapshot().MonitorRunning {
		t.Error("MonitorRunning still set after Stop")
	}
}

func TestLoopStopsPromptlyWhileIdle(t *testing.T) {
	engine, _ := newTestEngine(t, "https://epetcare.example.com", false, EngineConfig{})

	loop, err := NewLoop(engine, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	loop.Start()
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	loop.Stop()
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Stop took %v with an idle loop", elapsed)
	}
}

func TestLoopReloadsConfigAfterFileChange(t *testing.T) {
	engine, dbPath := newTestEngine(t, "https://old.example.com", false, EngineConfig{})

	loop, err := NewLoop(engine, 50*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	loop.Start()
	defer loop.Stop()

	// Rewrite the config out of band; the watcher marks it dirty and the
	// next tick reloads it.
	doc := fmt.Sprintf(`{
		"database": {"path": %q},
		"remote_database": {"url": "https://new.example.com", "enabled": false}
	}`, dbPath)
	if err := os.WriteFile(engine.store.Path(), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		if engine.store.Config().RemoteURL == "https://new.example.com" {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("config change never picked up")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestSupervisorLifecycle(t *testing.T) {
	engine, _ := newTestEngine(t, "https://epetcare.example.com", false, EngineConfig{})
	super := NewSupervisor(engine, time.Hour)

	if super.Running() {
		t.Fatal("no loop should run before Start")
	}
	if err := super.Start(); err != nil {
		t.Fatal(err)
	}
	if !super.Running() {
		t.Fatal("loop not running after Start")
	}

	// Start on a running supervisor is a no-op, not an error.
	if err := super.Start(); err != nil {
		t.Errorf("second Start errored: %v", err)
	}

	if err := super.Restart(); err != nil {
		t.Fatal(err)
	}
	if !super.Running() {
		t.Fatal("loop not running after Restart")
	}

	super.Stop()
	if super.Running() {
		t.Error("loop still running after Stop")
	}
	// Stopping twice is safe.
	super.Stop()
}
