package reaper

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/shirou/gopsutil/v4/process"
)

// DefaultEncoderName is the process name reaped when no override is set.
const DefaultEncoderName = "ffmpeg"

// proc is the slice of the process table the reaper needs.
type proc interface {
	Name() (string, error)
	Kill() error
}

// Reaper terminates encoder subprocesses host-wide by process name.
// Best effort: the application runs one conversion session at a time,
// so killing every matching process is the intended blunt instrument.
type Reaper struct {
	logger    hclog.Logger
	processes func() ([]proc, error)
}

// New constructs a reaper reading the real process table.
func New(logger hclog.Logger) *Reaper {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Reaper{
		logger:    logger.Named("reaper"),
		processes: listProcesses,
	}
}

func listProcesses() ([]proc, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}
	out := make([]proc, 0, len(procs))
	for _, p := range procs {
		out = append(out, p)
	}
	return out, nil
}

// StopAll kills every process whose name matches one of names (the
// default encoder name when none are given). Zero matches is a
// success, not an error.
func (r *Reaper) StopAll(names ...string) (string, error) {
	if len(names) == 0 {
		names = []string{DefaultEncoderName}
	}

	procs, err := r.processes()
	if err != nil {
		return "", fmt.Errorf("list processes: %w", err)
	}

	killed := 0
	var failures []string
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			// Processes can exit between enumeration and inspection.
			continue
		}
		if !matchesAny(name, names) {
			continue
		}
		if err := p.Kill(); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		killed++
	}

	if len(failures) > 0 {
		return "", fmt.Errorf("stop encoder processes: %s", strings.Join(failures, " | "))
	}
	if killed == 0 {
		return "no encoder processes found", nil
	}

	r.logger.Info("stopped encoder processes", "count", killed)
	return fmt.Sprintf("stopped %d encoder process(es)", killed), nil
}

// IsActive reports whether any matching encoder process is running.
func (r *Reaper) IsActive(names ...string) (bool, error) {
	if len(names) == 0 {
		names = []string{DefaultEncoderName}
	}

	procs, err := r.processes()
	if err != nil {
		return false, fmt.Errorf("list processes: %w", err)
	}

	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue
		}
		if matchesAny(name, names) {
			return true, nil
		}
	}
	return false, nil
}

// matchesAny compares process names case-insensitively, ignoring the
// Windows .exe suffix.
func matchesAny(name string, targets []string) bool {
	normalized := strings.ToLower(strings.TrimSuffix(name, ".exe"))
	for _, target := range targets {
		if normalized == strings.ToLower(strings.TrimSuffix(target, ".exe")) {
			return true
		}
	}
	return false
}
