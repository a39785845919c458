package convert

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"

	"media-batch-converter/internal/budget"
	"media-batch-converter/internal/domain"
)

// Notifier is the outbound channel a run reports through. Sends are
// fire-and-forget; implementations must tolerate concurrent calls and
// an absent presentation layer.
type Notifier interface {
	Progress(path string, percent float64)
	ItemError(path string, message string)
	Complete()
	Log(level, message string)
}

// converter abstracts the encode driver for scheduler tests.
type converter interface {
	Convert(ctx context.Context, item domain.WorkItem, onProgress func(percent float64)) error
}

// reaperClient abstracts encoder subprocess teardown.
type reaperClient interface {
	StopAll(names ...string) (string, error)
}

// Config carries the per-run collaborators and budget inputs.
type Config struct {
	FFmpegPath    string
	TotalCores    int
	MaxConcurrent int // 0 derives the cap from TotalCores
	Notifier      Notifier
	Reaper        reaperClient
	Logger        hclog.Logger
}

// Scheduler owns one conversion run: the flattened FIFO queue, the
// active-encode count, and collected outcomes. Construct one per run;
// nothing here is shared across runs.
type Scheduler struct {
	driver        converter
	reaper        reaperClient
	notifier      Notifier
	logger        hclog.Logger
	maxConcurrent int
	encoderName   string
	mkdirAll      func(string, os.FileMode) error

	mu        sync.Mutex
	queue     []domain.WorkItem
	active    int
	completed bool
	outcomes  []domain.ItemOutcome

	outputRoot string
	done       chan struct{}
}

// NewScheduler builds a run scheduler from cfg.
func NewScheduler(cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	logger = logger.Named("scheduler")

	cores := cfg.TotalCores
	if cores < 1 {
		cores = budget.CoreCount()
	}

	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = budget.MaxConcurrent(cores)
	}

	ffmpegPath := cfg.FFmpegPath
	if strings.TrimSpace(ffmpegPath) == "" {
		ffmpegPath = "ffmpeg"
	}

	return &Scheduler{
		driver:        NewDriver(ffmpegPath, cores, logger),
		reaper:        cfg.Reaper,
		notifier:      cfg.Notifier,
		logger:        logger,
		maxConcurrent: maxConcurrent,
		encoderName:   filepath.Base(ffmpegPath),
		mkdirAll:      os.MkdirAll,
		done:          make(chan struct{}),
	}
}

// MaxConcurrent reports the run's job cap.
func (s *Scheduler) MaxConcurrent() int {
	return s.maxConcurrent
}

// Run flattens tree into the work queue, creating every mirrored
// output directory before any encode starts, then launches the
// admission workers and returns. The returned error is only ever a
// queue-build failure; encode outcomes arrive through the notifier,
// never as an error here.
func (s *Scheduler) Run(ctx context.Context, tree []domain.DirEntry, outputDir string) error {
	if err := s.buildQueue(tree, outputDir); err != nil {
		return err
	}

	s.notifier.Log("info", fmt.Sprintf("queued %d file(s), up to %d concurrent encodes", len(s.queue), s.maxConcurrent))
	s.logger.Info("run starting", "queued", len(s.queue), "maxConcurrent", s.maxConcurrent, "outputRoot", s.outputRoot)

	for i := 0; i < s.maxConcurrent; i++ {
		go s.admit(ctx)
	}
	return nil
}

// Wait blocks until the run has emitted its completion notification.
func (s *Scheduler) Wait() {
	<-s.done
}

// Outcomes returns a snapshot of per-item results collected so far.
func (s *Scheduler) Outcomes() []domain.ItemOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ItemOutcome, len(s.outcomes))
	copy(out, s.outcomes)
	return out
}

// buildQueue walks the selection in pre-order, mirroring directories
// under outputDir/converted and appending one work item per file.
// Runs before any worker starts, so no locking is needed yet.
func (s *Scheduler) buildQueue(tree []domain.DirEntry, outputDir string) error {
	root := filepath.Join(outputDir, "converted")
	if err := s.mkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("create output root %s: %w", root, err)
	}
	s.outputRoot = root

	for _, entry := range tree {
		if err := s.flatten(entry, root); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) flatten(entry domain.DirEntry, dir string) error {
	if entry.IsDir {
		next := filepath.Join(dir, entry.Name)
		if err := s.mkdirAll(next, 0o755); err != nil {
			return fmt.Errorf("create output directory %s: %w", next, err)
		}
		for _, child := range entry.Children {
			if err := s.flatten(child, next); err != nil {
				return err
			}
		}
		return nil
	}

	base := strings.TrimSuffix(entry.Name, filepath.Ext(entry.Name))
	s.queue = append(s.queue, domain.WorkItem{
		Kind:        entry.Kind,
		InputPath:   entry.Path,
		OutputBase:  filepath.Join(dir, base),
		DurationSec: entry.DurationSec,
	})
	return nil
}

// admit is one worker slot's self-feeding loop. The queue check, pop,
// and active increment happen under one lock acquisition with no
// blocking call in between; that is what makes admission and the
// completion check race-free across slots.
func (s *Scheduler) admit(ctx context.Context) {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			finished := s.active == 0 && !s.completed
			if finished {
				s.completed = true
			}
			s.mu.Unlock()

			if finished {
				s.logger.Info("run complete")
				s.notifier.Complete()
				close(s.done)
			}
			return
		}
		item := s.queue[0]
		s.queue = s.queue[1:]
		s.active++
		s.mu.Unlock()

		err := s.driver.Convert(ctx, item, func(percent float64) {
			s.notifier.Progress(item.InputPath, percent)
		})

		outcome := domain.ItemOutcome{
			InputPath: item.InputPath,
			Kind:      item.Kind,
			Succeeded: err == nil,
		}
		if err != nil {
			outcome.Reason = err.Error()
			s.handleEncodeError(item, err)
		}

		s.mu.Lock()
		s.active--
		s.outcomes = append(s.outcomes, outcome)
		s.mu.Unlock()
	}
}

// handleEncodeError tears down every encoder subprocess, then reports
// the failed item. Reaper failures are logged and swallowed so cleanup
// can never wedge the run.
func (s *Scheduler) handleEncodeError(item domain.WorkItem, err error) {
	if s.reaper != nil {
		status, reapErr := s.reaper.StopAll(s.encoderName)
		if reapErr != nil {
			s.logger.Warn("encoder teardown failed", "error", reapErr)
			s.notifier.Log("warn", fmt.Sprintf("encoder teardown failed: %v", reapErr))
		} else {
			s.logger.Info("encoder teardown", "status", status)
		}
	}

	s.logger.Error("conversion failed", "path", item.InputPath, "error", err)
	s.notifier.ItemError(item.InputPath, err.Error())
}
