package bootstrap

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"media-batch-converter/internal/budget"
	"media-batch-converter/internal/config"
	"media-batch-converter/internal/convert"
	"media-batch-converter/internal/diagnostics"
	"media-batch-converter/internal/domain"
	"media-batch-converter/internal/jobs"
	"media-batch-converter/internal/reaper"
	"media-batch-converter/internal/scan"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

var mediaDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Media files",
		Pattern:     "*.mp4;*.mov;*.mkv;*.avi;*.webm;*.wmv;*.m4v;*.flv;*.ts;*.mp3;*.wav;*.flac;*.aac;*.ogg;*.m4a;*.wma;*.opus;*.jpg;*.jpeg;*.png;*.bmp;*.tif;*.tiff;*.webp",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

// conversionScheduler is the scheduling surface App drives per run.
type conversionScheduler interface {
	Run(ctx context.Context, tree []domain.DirEntry, outputDir string) error
	Wait()
	Outcomes() []domain.ItemOutcome
}

// App wires configuration, the run gate, the conversion scheduler, and
// UI runtime callbacks.
type App struct {
	Settings    domain.Settings
	Store       config.Store
	Runs        *jobs.Manager
	Diagnostics domain.DiagnosticReport
	assets      fs.FS
	checker     *diagnostics.Checker
	logger      hclog.Logger
	reaper      *reaper.Reaper

	// newScheduler builds a scheduler per run; tests inject fakes here.
	newScheduler func(convert.Config) conversionScheduler

	mu          sync.Mutex
	activeRunID string
	cancel      context.CancelFunc
	events      *jobs.EventBus
	runtimeCtx  context.Context
}

// New builds the application with persisted settings and startup diagnostics.
func New() (*App, error) {
	return NewWithAssets(nil)
}

// NewWithAssets builds the application and optionally configures embedded frontend assets.
func NewWithAssets(assets fs.FS) (*App, error) {
	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "media-batch-converter",
		Level: hclog.Info,
	})

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve user home: %w", err)
	}
	if err := ensureLocalBinOnPATH(homeDir); err != nil {
		return nil, fmt.Errorf("prepare local tool path: %w", err)
	}

	store := config.NewJSONStore(filepath.Join(homeDir, ".media-batch-converter", "settings.json"))
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	checker := diagnostics.NewChecker()
	report := checker.Run(settings)

	return &App{
		Settings:    settings,
		Store:       store,
		Runs:        jobs.NewManager(),
		Diagnostics: report,
		assets:      assets,
		checker:     checker,
		logger:      logger,
		reaper:      reaper.New(logger),
		events:      jobs.NewEventBus(1000),
	}, nil
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "Media Batch Converter",
		Width:       1180,
		Height:      780,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown:  a.Shutdown,
		Bind:        []interface{}{a},
	})
}

// Startup stores Wails runtime context for push events.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runtimeCtx = ctx
}

// Shutdown drops the runtime context and tears down outstanding
// encoder subprocesses so no orphans survive the window closing.
func (a *App) Shutdown(ctx context.Context) {
	a.mu.Lock()
	cancel := a.cancel
	a.runtimeCtx = nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if status, err := a.reaper.StopAll(a.encoderNames()...); err != nil {
		a.logger.Warn("shutdown encoder teardown failed", "error", err)
	} else {
		a.logger.Info("shutdown encoder teardown", "status", status)
	}
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	return a.Diagnostics
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()

	return settings, nil
}

// SaveSettings normalizes and persists settings, then refreshes diagnostics.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := normalizeSettings(settings)
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = normalized
	if a.checker != nil {
		a.Diagnostics = a.checker.Run(normalized)
	}
	a.mu.Unlock()

	return normalized, nil
}

// SelectInputs opens a native picker and details the selection into
// DirEntry trees. A cancelled dialog returns an empty selection, not
// an error.
func (a *App) SelectInputs(kind string) ([]domain.DirEntry, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return nil, err
	}

	var paths []string
	if kind == "directory" {
		path, err := wailsruntime.OpenDirectoryDialog(ctx, wailsruntime.OpenDialogOptions{
			Title: "Select folder to convert",
		})
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(path) == "" {
			return []domain.DirEntry{}, nil
		}
		paths = []string{path}
	} else {
		files, err := wailsruntime.OpenMultipleFilesDialog(ctx, wailsruntime.OpenDialogOptions{
			Title:   "Select media files",
			Filters: mediaDialogFilter,
		})
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return []domain.DirEntry{}, nil
		}
		paths = files
	}

	return a.DetailPaths(paths), nil
}

// DetailPaths resolves raw paths into detailed DirEntry trees with
// sizes and media durations. Unreadable paths are omitted.
func (a *App) DetailPaths(paths []string) []domain.DirEntry {
	scanner := scan.NewScanner(a.currentSettings().FFprobePath, a.logger)
	return scanner.DetailPaths(context.Background(), paths)
}

// SelectOutputDirectory opens a native directory picker for converted output.
func (a *App) SelectOutputDirectory() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenDirectoryDialog(ctx, wailsruntime.OpenDialogOptions{
		Title: "Select output directory",
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// RunConversion flattens the selection and starts the batch encode.
// It returns immediately after dispatch; progress, per-item errors,
// and completion arrive through the event channel. A second call while
// a run is active fails with jobs.ErrRunAlreadyActive.
func (a *App) RunConversion(tree []domain.DirEntry, outputDir string) (domain.Run, error) {
	if strings.TrimSpace(outputDir) == "" {
		return domain.Run{}, fmt.Errorf("output directory is required")
	}

	settings, err := a.Store.Load()
	if err != nil {
		return domain.Run{}, fmt.Errorf("load settings: %w", err)
	}

	runID := "run-" + uuid.NewString()
	if err := a.Runs.Begin(runID); err != nil {
		return domain.Run{}, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.mu.Lock()
	a.activeRunID = runID
	a.cancel = cancel
	a.Settings = settings
	a.mu.Unlock()

	build := a.newScheduler
	if build == nil {
		build = func(cfg convert.Config) conversionScheduler {
			return convert.NewScheduler(cfg)
		}
	}
	sched := build(convert.Config{
		FFmpegPath:    settings.FFmpegPath,
		TotalCores:    budget.CoreCount(),
		MaxConcurrent: settings.MaxConcurrent,
		Notifier:      &eventNotifier{app: a, runID: runID},
		Reaper:        a.reaper,
		Logger:        a.logger,
	})

	a.publishStatus(runID, domain.RunStatusRunning, "Conversion started")
	go a.runConversion(ctx, runID, sched, tree, outputDir)
	return a.Runs.Current(), nil
}

// runConversion drives one scheduler run and maps its terminal state
// to run gate updates and events.
func (a *App) runConversion(ctx context.Context, runID string, sched conversionScheduler, tree []domain.DirEntry, outputDir string) {
	if err := sched.Run(ctx, tree, outputDir); err != nil {
		// Queue build failed: fatal for the whole run, nothing started.
		a.logger.Error("queue build failed", "error", err)
		a.publishEvent(jobs.Event{
			RunID:   runID,
			Type:    jobs.EventTypeLog,
			Level:   "error",
			Message: fmt.Sprintf("conversion aborted: %v", err),
		})
		a.Runs.Finish(runID)
		a.clearActiveRun(runID)
		return
	}

	sched.Wait()

	failed := 0
	for _, outcome := range sched.Outcomes() {
		if !outcome.Succeeded {
			failed++
		}
	}
	message := fmt.Sprintf("Converted %d file(s)", len(sched.Outcomes())-failed)
	if failed > 0 {
		message = fmt.Sprintf("%s, %d failed", message, failed)
	}

	a.Runs.Finish(runID)
	a.publishStatus(runID, domain.RunStatusDone, message)
	a.clearActiveRun(runID)
}

// CancelConversion cancels the active run and tears down its encoders.
func (a *App) CancelConversion() error {
	a.mu.Lock()
	cancel := a.cancel
	activeRunID := a.activeRunID
	a.mu.Unlock()

	if cancel == nil {
		return jobs.ErrNoActiveRun
	}

	cancel()
	if status, err := a.reaper.StopAll(a.encoderNames()...); err != nil {
		a.logger.Warn("cancel encoder teardown failed", "error", err)
	} else {
		a.logger.Info("cancel encoder teardown", "status", status)
	}

	if activeRunID != "" {
		a.publishStatus(activeRunID, domain.RunStatusRunning, "Cancellation requested")
	}
	return nil
}

// IsEncoderActive probes the process table for running encoders.
func (a *App) IsEncoderActive() (bool, error) {
	return a.reaper.IsActive(a.encoderNames()...)
}

// StopAllEncoderProcesses force-kills every encoder process host-wide.
func (a *App) StopAllEncoderProcesses() (string, error) {
	return a.reaper.StopAll(a.encoderNames()...)
}

// CurrentRun returns current run metadata and status.
func (a *App) CurrentRun() domain.Run {
	return a.Runs.Current()
}

// ConversionEvents returns all events with sequence greater than sinceSeq.
func (a *App) ConversionEvents(sinceSeq int64) []jobs.Event {
	return a.events.Since(sinceSeq)
}

// RefreshDiagnostics reloads settings and reruns dependency checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = settings
	a.Diagnostics = a.checker.Run(settings)
	report := a.Diagnostics
	a.mu.Unlock()
	return report, nil
}

// OpenOutputFolder opens the given path (or configured output dir) in file manager.
func (a *App) OpenOutputFolder(path string) error {
	target := strings.TrimSpace(path)
	if target == "" {
		target = a.currentSettings().OutputDir
	}
	if target == "" {
		return fmt.Errorf("output path is empty")
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}

	openPath := target
	if !info.IsDir() {
		openPath = filepath.Dir(target)
	}

	return openInFileManager(openPath)
}

// eventNotifier adapts the scheduler's outbound channel onto the event
// bus and the Wails push stream.
type eventNotifier struct {
	app   *App
	runID string
}

func (n *eventNotifier) Progress(path string, percent float64) {
	n.app.publishEvent(jobs.Event{
		RunID:   n.runID,
		Type:    jobs.EventTypeProgress,
		Path:    path,
		Percent: percent,
	})
}

func (n *eventNotifier) ItemError(path, message string) {
	n.app.publishEvent(jobs.Event{
		RunID:   n.runID,
		Type:    jobs.EventTypeItemError,
		Path:    path,
		Message: message,
	})
}

func (n *eventNotifier) Complete() {
	n.app.publishEvent(jobs.Event{
		RunID: n.runID,
		Type:  jobs.EventTypeComplete,
	})
}

func (n *eventNotifier) Log(level, message string) {
	n.app.publishEvent(jobs.Event{
		RunID:   n.runID,
		Type:    jobs.EventTypeLog,
		Level:   level,
		Message: message,
	})
}

// publishStatus sends a normalized status event.
func (a *App) publishStatus(runID string, status domain.RunStatus, message string) {
	a.publishEvent(jobs.Event{
		RunID:   runID,
		Type:    jobs.EventTypeStatus,
		Status:  status,
		Message: message,
	})
}

// publishEvent stores event history and emits runtime push notifications.
func (a *App) publishEvent(event jobs.Event) {
	published := a.events.Publish(event)

	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, "conversion:event", published)
	}
}

// clearActiveRun clears cancellation handles for completed run IDs.
func (a *App) clearActiveRun(runID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.activeRunID == runID {
		a.activeRunID = ""
		a.cancel = nil
	}
}

// encoderNames lists process names the reaper should match: the
// configured binary plus the stock name in case of overrides.
func (a *App) encoderNames() []string {
	settings := a.currentSettings()
	names := []string{reaper.DefaultEncoderName}
	if configured := strings.TrimSpace(settings.FFmpegPath); configured != "" {
		base := filepath.Base(configured)
		if !strings.EqualFold(base, reaper.DefaultEncoderName) {
			names = append(names, base)
		}
	}
	return names
}

// currentSettings returns a snapshot of in-memory settings.
func (a *App) currentSettings() domain.Settings {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Settings
}

// runtimeContext returns current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

// normalizeSettings trims user inputs and applies defaults for empty
// binary paths.
func normalizeSettings(settings domain.Settings) domain.Settings {
	settings.OutputDir = strings.TrimSpace(settings.OutputDir)
	settings.FFmpegPath = strings.TrimSpace(settings.FFmpegPath)
	settings.FFprobePath = strings.TrimSpace(settings.FFprobePath)
	if settings.FFmpegPath == "" {
		settings.FFmpegPath = "ffmpeg"
	}
	if settings.FFprobePath == "" {
		settings.FFprobePath = "ffprobe"
	}
	if settings.MaxConcurrent < 0 {
		settings.MaxConcurrent = 0
	}
	return settings
}

// openInFileManager launches the platform file explorer for the provided path.
func openInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", filepath.Clean(path))
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch file manager: %w", err)
	}
	return nil
}
