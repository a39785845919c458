package diagnostics

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"media-batch-converter/internal/domain"
)

// Checker validates external encoder tools and required filesystem paths.
type Checker struct {
	lookPath   func(string) (string, error)
	stat       func(string) (os.FileInfo, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker() *Checker {
	return &Checker{
		lookPath:   exec.LookPath,
		stat:       os.Stat,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
	}
}

// Run executes all startup checks and returns a combined report.
func (c *Checker) Run(settings domain.Settings) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkTool("ffmpeg", settings.FFmpegPath),
		c.checkTool("ffprobe", settings.FFprobePath),
		c.checkOutputDir(settings.OutputDir),
	}

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkTool verifies a required encoder executable is reachable, either
// via the configured override or on PATH.
func (c *Checker) checkTool(name, override string) domain.DiagnosticItem {
	candidate := strings.TrimSpace(override)
	if candidate == "" {
		candidate = name
	}

	path, err := c.lookPath(candidate)
	if err != nil {
		return domain.DiagnosticItem{
			ID:      "tool_" + name,
			Name:    name,
			Status:  domain.DiagnosticStatusFail,
			Message: fmt.Sprintf("Tool not found: %s", candidate),
			Hint:    "Install it and ensure the binary is available on PATH, or set its full path in settings.",
		}
	}

	return domain.DiagnosticItem{
		ID:      "tool_" + name,
		Name:    name,
		Status:  domain.DiagnosticStatusPass,
		Message: fmt.Sprintf("Found at %s", path),
	}
}

// checkOutputDir validates output directory existence and write access.
func (c *Checker) checkOutputDir(outputDir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "output_dir",
		Name: "Output directory",
	}

	if strings.TrimSpace(outputDir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Output directory is empty."
		item.Hint = "Choose a destination directory for converted files."
		return item
	}

	info, err := c.stat(outputDir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			item.Status = domain.DiagnosticStatusFail
			item.Message = fmt.Sprintf("Cannot access output directory: %s", outputDir)
			item.Hint = "Check permissions for the output directory."
			return item
		}
		if err := c.mkdirAll(outputDir, 0o755); err != nil {
			item.Status = domain.DiagnosticStatusFail
			item.Message = fmt.Sprintf("Cannot create output directory: %s", outputDir)
			item.Hint = "Choose a writable destination directory."
			return item
		}
	} else if !info.IsDir() {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Output path is not a directory: %s", outputDir)
		return item
	}

	probe, err := c.createTemp(outputDir, ".write-probe-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Output directory is not writable: %s", outputDir)
		item.Hint = "Check permissions for the output directory."
		return item
	}
	probePath := probe.Name()
	_ = probe.Close()
	_ = c.remove(probePath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Output directory is writable: %s", filepath.Clean(outputDir))
	return item
}

// NewCheckerForTests constructs a checker with injectable dependencies.
func NewCheckerForTests(
	lookPath func(string) (string, error),
	stat func(string) (os.FileInfo, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
) *Checker {
	return &Checker{
		lookPath:   lookPath,
		stat:       stat,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
	}
}
