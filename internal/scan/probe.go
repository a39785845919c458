package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ffprobe resolves media durations with a single JSON format query.
type ffprobe struct {
	path   string
	output func(ctx context.Context, name string, args ...string) ([]byte, error)
}

func newFFprobe(path string) *ffprobe {
	if strings.TrimSpace(path) == "" {
		path = "ffprobe"
	}
	return &ffprobe{
		path: path,
		output: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).Output()
		},
	}
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
}

type ffprobeOutput struct {
	Format ffprobeFormat `json:"format"`
}

// Duration returns the media duration in seconds.
func (p *ffprobe) Duration(ctx context.Context, path string) (float64, error) {
	out, err := p.output(ctx, p.path,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("ffprobe %q: %w", path, err)
	}

	return ParseDuration(out)
}

// ParseDuration extracts the format duration from raw ffprobe JSON.
// Exported for testing without a real ffprobe binary.
func ParseDuration(data []byte) (float64, error) {
	var raw ffprobeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return 0, fmt.Errorf("parse ffprobe JSON: %w", err)
	}

	trimmed := strings.TrimSpace(raw.Format.Duration)
	if trimmed == "" {
		return 0, fmt.Errorf("ffprobe output has no duration")
	}

	seconds, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", trimmed, err)
	}
	return seconds, nil
}
