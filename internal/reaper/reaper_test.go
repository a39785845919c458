package reaper

import (
	"errors"
	"strings"
	"testing"
)

// fakeProc simulates one process-table entry.
type fakeProc struct {
	name    string
	nameErr error
	killErr error
	killed  bool
}

// Name returns the injected process name.
func (p *fakeProc) Name() (string, error) {
	return p.name, p.nameErr
}

// Kill records the kill attempt and returns the injected error.
func (p *fakeProc) Kill() error {
	if p.killErr != nil {
		return p.killErr
	}
	p.killed = true
	return nil
}

func newTestReaper(procs []proc, listErr error) *Reaper {
	r := New(nil)
	r.processes = func() ([]proc, error) {
		return procs, listErr
	}
	return r
}

// TestStopAllKillsMatchingProcesses checks name matching and counting.
func TestStopAllKillsMatchingProcesses(t *testing.T) {
	ffmpeg1 := &fakeProc{name: "ffmpeg"}
	ffmpeg2 := &fakeProc{name: "FFmpeg.exe"}
	other := &fakeProc{name: "systemd"}

	r := newTestReaper([]proc{ffmpeg1, other, ffmpeg2}, nil)
	status, err := r.StopAll()
	if err != nil {
		t.Fatalf("StopAll error: %v", err)
	}
	if !strings.Contains(status, "2") {
		t.Fatalf("status = %q, want 2 processes stopped", status)
	}
	if !ffmpeg1.killed || !ffmpeg2.killed {
		t.Fatal("expected both ffmpeg processes killed")
	}
	if other.killed {
		t.Fatal("unrelated process must not be killed")
	}
}

// TestStopAllNoMatchesIsSuccess checks the idempotent empty case.
func TestStopAllNoMatchesIsSuccess(t *testing.T) {
	r := newTestReaper([]proc{&fakeProc{name: "bash"}}, nil)
	status, err := r.StopAll()
	if err != nil {
		t.Fatalf("StopAll error: %v", err)
	}
	if status != "no encoder processes found" {
		t.Fatalf("status = %q", status)
	}
}

// TestStopAllSurfacesKillFailures checks permission-style errors.
func TestStopAllSurfacesKillFailures(t *testing.T) {
	stuck := &fakeProc{name: "ffmpeg", killErr: errors.New("operation not permitted")}
	r := newTestReaper([]proc{stuck}, nil)

	if _, err := r.StopAll(); err == nil {
		t.Fatal("expected kill failure error")
	}
}

// TestStopAllSurfacesListFailure checks process enumeration errors.
func TestStopAllSurfacesListFailure(t *testing.T) {
	r := newTestReaper(nil, errors.New("proc unavailable"))
	if _, err := r.StopAll(); err == nil {
		t.Fatal("expected list failure error")
	}
}

// TestIsActive checks the process-table probe.
func TestIsActive(t *testing.T) {
	r := newTestReaper([]proc{&fakeProc{name: "ffmpeg"}}, nil)
	active, err := r.IsActive("ffmpeg")
	if err != nil {
		t.Fatalf("IsActive error: %v", err)
	}
	if !active {
		t.Fatal("expected active encoder")
	}

	r = newTestReaper([]proc{&fakeProc{name: "bash"}}, nil)
	active, err = r.IsActive()
	if err != nil {
		t.Fatalf("IsActive error: %v", err)
	}
	if active {
		t.Fatal("expected no active encoder")
	}
}
