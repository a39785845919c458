package convert

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"strconv"
	"strings"
)

// commandResult is an internal process execution response.
type commandResult struct {
	Stderr   string
	ExitCode int
}

// commandRunner abstracts encoder execution for testability. When
// onOutTime is non-nil the runner parses the ffmpeg `-progress pipe:1`
// stream from stdout and reports transcoded seconds as they advance.
type commandRunner interface {
	Run(ctx context.Context, onOutTime func(seconds float64), name string, args ...string) (commandResult, error)
}

// execRunner executes commands via os/exec.
type execRunner struct{}

// Run executes one encoder invocation, capturing stderr and exit code.
func (r *execRunner) Run(ctx context.Context, onOutTime func(float64), name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	var err error
	if onOutTime != nil {
		var stdout io.ReadCloser
		stdout, err = cmd.StdoutPipe()
		if err == nil {
			if err = cmd.Start(); err == nil {
				scanProgress(stdout, onOutTime)
				err = cmd.Wait()
			}
		}
	} else {
		cmd.Stdout = io.Discard
		err = cmd.Run()
	}

	result := commandResult{
		Stderr:   stderr.String(),
		ExitCode: 0,
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}

	return result, nil
}

// scanProgress reads key=value progress records until the stream ends.
func scanProgress(r io.Reader, onOutTime func(float64)) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if seconds, ok := parseOutTime(scanner.Text()); ok {
			onOutTime(seconds)
		}
	}
}

// parseOutTime extracts transcoded seconds from one progress line.
// ffmpeg reports out_time_us and out_time_ms; both carry microseconds.
// Malformed or negative values are dropped silently.
func parseOutTime(line string) (float64, bool) {
	key, value, found := strings.Cut(strings.TrimSpace(line), "=")
	if !found {
		return 0, false
	}
	if key != "out_time_us" && key != "out_time_ms" {
		return 0, false
	}

	micros, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || micros < 0 {
		return 0, false
	}
	return float64(micros) / 1e6, true
}
