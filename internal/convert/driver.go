package convert

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"

	"media-batch-converter/internal/budget"
	"media-batch-converter/internal/domain"
)

// Driver executes the external encoder for one work item, translating
// its lifecycle into progress callbacks and a terminal error or nil.
type Driver struct {
	ffmpegPath string
	totalCores int
	runner     commandRunner
	logger     hclog.Logger
	remove     func(string) error
}

// NewDriver constructs the production driver for the given encoder
// binary and host core count.
func NewDriver(ffmpegPath string, totalCores int, logger hclog.Logger) *Driver {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Driver{
		ffmpegPath: ffmpegPath,
		totalCores: totalCores,
		runner:     &execRunner{},
		logger:     logger.Named("driver"),
		remove:     os.Remove,
	}
}

// Convert runs the encode for item. onProgress receives percentages in
// [0, 100]; the final 100 is always emitted on success regardless of
// what the encoder itself reported. No retries are performed.
func (d *Driver) Convert(ctx context.Context, item domain.WorkItem, onProgress func(percent float64)) error {
	threads := budget.ThreadsFor(item.Kind, d.totalCores)
	output := item.OutputBase + item.Kind.OutputExt()
	d.logger.Debug("starting encode", "input", item.InputPath, "output", output, "threads", threads)

	var err error
	switch item.Kind {
	case domain.MediaKindAudio:
		err = d.convertAudio(ctx, item, output, threads, onProgress)
	case domain.MediaKindVideo:
		err = d.convertVideo(ctx, item, output, threads, onProgress)
	case domain.MediaKindImage:
		err = d.convertImage(ctx, item, output, threads, onProgress)
	default:
		return &EncodeError{
			InputPath: item.InputPath,
			Message:   fmt.Sprintf("unsupported media kind: %s", item.Kind),
		}
	}
	if err != nil {
		return err
	}

	emitProgress(onProgress, 100)
	return nil
}

// convertAudio runs the single-pass audio encode.
func (d *Driver) convertAudio(ctx context.Context, item domain.WorkItem, output string, threads int, onProgress func(float64)) error {
	args := buildAudioArgs(item.InputPath, output, threads)
	result, err := d.runner.Run(ctx, progressForwarder(item.DurationSec, onProgress), d.ffmpegPath, args...)
	if err != nil {
		return &EncodeError{
			InputPath:  item.InputPath,
			Message:    "audio conversion failed",
			CommandLog: commandLog(d.ffmpegPath, args, result),
			Err:        err,
		}
	}
	return nil
}

// convertVideo runs the statistics pass to a discard sink, then the
// real encode. Pass 2 is never attempted after a pass-1 failure.
func (d *Driver) convertVideo(ctx context.Context, item domain.WorkItem, output string, threads int, onProgress func(float64)) error {
	statsFile := item.OutputBase + ".x265.stats"
	defer d.cleanupPassFiles(statsFile, statsFile+".cutree")

	pass1 := buildVideoArgs(item.InputPath, output, statsFile, threads, 1)
	result, err := d.runner.Run(ctx, nil, d.ffmpegPath, pass1...)
	if err != nil {
		return &EncodeError{
			InputPath:  item.InputPath,
			Pass:       1,
			Message:    "video analysis pass failed",
			CommandLog: commandLog(d.ffmpegPath, pass1, result),
			Err:        err,
		}
	}

	pass2 := buildVideoArgs(item.InputPath, output, statsFile, threads, 2)
	result, err = d.runner.Run(ctx, progressForwarder(item.DurationSec, onProgress), d.ffmpegPath, pass2...)
	if err != nil {
		return &EncodeError{
			InputPath:  item.InputPath,
			Pass:       2,
			Message:    "video encode pass failed",
			CommandLog: commandLog(d.ffmpegPath, pass2, result),
			Err:        err,
		}
	}
	return nil
}

// convertImage mirrors the video two-pass shape without an audio
// track. Single images have no duration, so the terminal 100% emitted
// by Convert is the effective completion signal.
func (d *Driver) convertImage(ctx context.Context, item domain.WorkItem, output string, threads int, onProgress func(float64)) error {
	passLog := item.OutputBase + ".av1"
	defer d.cleanupPassFiles(passLog + "-0.log")

	pass1 := buildImageArgs(item.InputPath, output, passLog, threads, 1)
	result, err := d.runner.Run(ctx, nil, d.ffmpegPath, pass1...)
	if err != nil {
		return &EncodeError{
			InputPath:  item.InputPath,
			Pass:       1,
			Message:    "image analysis pass failed",
			CommandLog: commandLog(d.ffmpegPath, pass1, result),
			Err:        err,
		}
	}

	pass2 := buildImageArgs(item.InputPath, output, passLog, threads, 2)
	result, err = d.runner.Run(ctx, nil, d.ffmpegPath, pass2...)
	if err != nil {
		return &EncodeError{
			InputPath:  item.InputPath,
			Pass:       2,
			Message:    "image encode pass failed",
			CommandLog: commandLog(d.ffmpegPath, pass2, result),
			Err:        err,
		}
	}
	return nil
}

// cleanupPassFiles removes encoder statistics artifacts, best effort.
func (d *Driver) cleanupPassFiles(paths ...string) {
	for _, path := range paths {
		if err := d.remove(path); err != nil && !os.IsNotExist(err) {
			d.logger.Debug("stats cleanup failed", "path", path, "error", err)
		}
	}
}

// progressForwarder converts transcoded seconds into percentages
// against the item's probed duration. Without a usable duration the
// encoder stream is not consulted and only the terminal 100% fires.
func progressForwarder(durationSec float64, onProgress func(float64)) func(float64) {
	if onProgress == nil || durationSec <= 0 {
		return nil
	}
	return func(seconds float64) {
		percent := seconds / durationSec * 100
		if percent > 100 {
			percent = 100
		}
		if percent < 0 {
			return
		}
		onProgress(percent)
	}
}

func emitProgress(onProgress func(float64), percent float64) {
	if onProgress != nil {
		onProgress(percent)
	}
}

func commandLog(command string, args []string, result commandResult) CommandLog {
	return CommandLog{
		Command:  command,
		Args:     args,
		ExitCode: result.ExitCode,
		Stderr:   result.Stderr,
	}
}
