package convert

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"media-batch-converter/internal/domain"
)

type progressEvent struct {
	path    string
	percent float64
}

type itemErrorEvent struct {
	path    string
	message string
}

// recordingNotifier captures run notifications for assertions.
type recordingNotifier struct {
	mu         sync.Mutex
	progress   []progressEvent
	itemErrors []itemErrorEvent
	completes  int
	logs       []string
}

func (n *recordingNotifier) Progress(path string, percent float64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.progress = append(n.progress, progressEvent{path, percent})
}

func (n *recordingNotifier) ItemError(path, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.itemErrors = append(n.itemErrors, itemErrorEvent{path, message})
}

func (n *recordingNotifier) Complete() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completes++
}

func (n *recordingNotifier) Log(level, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.logs = append(n.logs, level+": "+message)
}

// fakeConverter replaces the encode driver in scheduler tests.
type fakeConverter struct {
	convert func(ctx context.Context, item domain.WorkItem, onProgress func(float64)) error
}

func (f *fakeConverter) Convert(ctx context.Context, item domain.WorkItem, onProgress func(float64)) error {
	if f.convert == nil {
		return nil
	}
	return f.convert(ctx, item, onProgress)
}

// fakeReaper counts teardown invocations.
type fakeReaper struct {
	calls int32
}

func (r *fakeReaper) StopAll(names ...string) (string, error) {
	atomic.AddInt32(&r.calls, 1)
	return "stopped", nil
}

func newTestScheduler(maxConcurrent int, notifier Notifier, reap reaperClient, conv converter) *Scheduler {
	s := NewScheduler(Config{
		FFmpegPath:    "ffmpeg",
		TotalCores:    8,
		MaxConcurrent: maxConcurrent,
		Notifier:      notifier,
		Reaper:        reap,
	})
	if conv != nil {
		s.driver = conv
	}
	return s
}

func sampleTree(root string) []domain.DirEntry {
	return []domain.DirEntry{
		{
			Path:  filepath.Join(root, "clips"),
			Name:  "clips",
			IsDir: true,
			Children: []domain.DirEntry{
				{
					Path:        filepath.Join(root, "clips", "movie.mkv"),
					Name:        "movie.mkv",
					Kind:        domain.MediaKindVideo,
					DurationSec: 30,
				},
				{
					Path:        filepath.Join(root, "clips", "song.wav"),
					Name:        "song.wav",
					Kind:        domain.MediaKindAudio,
					DurationSec: 10,
				},
			},
		},
	}
}

// TestBuildQueuePreOrder verifies the flattened queue matches pre-order
// traversal and mirrored directories exist before any encode.
func TestBuildQueuePreOrder(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "out")

	tree := []domain.DirEntry{
		{
			Path:  "/src/a",
			Name:  "a",
			IsDir: true,
			Children: []domain.DirEntry{
				{Path: "/src/a/one.mp4", Name: "one.mp4", Kind: domain.MediaKindVideo},
				{
					Path:  "/src/a/b",
					Name:  "b",
					IsDir: true,
					Children: []domain.DirEntry{
						{Path: "/src/a/b/two.png", Name: "two.png", Kind: domain.MediaKindImage},
					},
				},
				{Path: "/src/a/three.mp3", Name: "three.mp3", Kind: domain.MediaKindAudio},
			},
		},
	}

	s := newTestScheduler(2, &recordingNotifier{}, &fakeReaper{}, nil)
	if err := s.buildQueue(tree, out); err != nil {
		t.Fatalf("buildQueue error: %v", err)
	}

	wantInputs := []string{"/src/a/one.mp4", "/src/a/b/two.png", "/src/a/three.mp3"}
	if len(s.queue) != len(wantInputs) {
		t.Fatalf("queue length = %d, want %d", len(s.queue), len(wantInputs))
	}
	for i, want := range wantInputs {
		if s.queue[i].InputPath != want {
			t.Fatalf("queue[%d] = %q, want %q", i, s.queue[i].InputPath, want)
		}
	}

	if s.queue[0].OutputBase != filepath.Join(out, "converted", "a", "one") {
		t.Fatalf("output base = %q", s.queue[0].OutputBase)
	}
	for _, dir := range []string{
		filepath.Join(out, "converted"),
		filepath.Join(out, "converted", "a"),
		filepath.Join(out, "converted", "a", "b"),
	} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("mirrored directory missing: %s (%v)", dir, err)
		}
	}
}

// TestRunEndToEndSuccess covers the two-file happy path: both items
// admitted, two terminal progress signals, one completion.
func TestRunEndToEndSuccess(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "out")
	notifier := &recordingNotifier{}

	conv := &fakeConverter{
		convert: func(ctx context.Context, item domain.WorkItem, onProgress func(float64)) error {
			// Mirrored directory must exist before the encode starts.
			if _, err := os.Stat(filepath.Dir(item.OutputBase)); err != nil {
				t.Errorf("output dir missing for %s: %v", item.InputPath, err)
			}
			onProgress(100)
			return nil
		},
	}

	s := newTestScheduler(2, notifier, &fakeReaper{}, conv)
	if err := s.Run(context.Background(), sampleTree(root), out); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	s.Wait()

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.progress) != 2 {
		t.Fatalf("progress events = %d, want 2", len(notifier.progress))
	}
	if notifier.completes != 1 {
		t.Fatalf("completes = %d, want 1", notifier.completes)
	}
	if len(notifier.itemErrors) != 0 {
		t.Fatalf("unexpected item errors: %+v", notifier.itemErrors)
	}

	outcomes := s.Outcomes()
	if len(outcomes) != 2 {
		t.Fatalf("outcomes = %d, want 2", len(outcomes))
	}
	for _, outcome := range outcomes {
		if !outcome.Succeeded {
			t.Fatalf("outcome failed: %+v", outcome)
		}
	}
}

// TestEncodeErrorReapsAndStillCompletes checks the partial-failure
// contract: one teardown, one item error, run still completes.
func TestEncodeErrorReapsAndStillCompletes(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "out")
	notifier := &recordingNotifier{}
	reap := &fakeReaper{}

	conv := &fakeConverter{
		convert: func(ctx context.Context, item domain.WorkItem, onProgress func(float64)) error {
			if item.Kind == domain.MediaKindVideo {
				return &EncodeError{InputPath: item.InputPath, Pass: 2, Message: "encoder died"}
			}
			onProgress(100)
			return nil
		},
	}

	s := newTestScheduler(2, notifier, reap, conv)
	if err := s.Run(context.Background(), sampleTree(root), out); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	s.Wait()

	if got := atomic.LoadInt32(&reap.calls); got != 1 {
		t.Fatalf("reaper calls = %d, want 1", got)
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.itemErrors) != 1 {
		t.Fatalf("item errors = %d, want 1", len(notifier.itemErrors))
	}
	if notifier.itemErrors[0].path != filepath.Join(root, "clips", "movie.mkv") {
		t.Fatalf("failed path = %q", notifier.itemErrors[0].path)
	}
	if notifier.completes != 1 {
		t.Fatalf("completes = %d, want 1", notifier.completes)
	}

	failed := 0
	for _, outcome := range s.Outcomes() {
		if !outcome.Succeeded {
			failed++
			if outcome.Reason == "" {
				t.Fatal("failed outcome must carry a reason")
			}
		}
	}
	if failed != 1 {
		t.Fatalf("failed outcomes = %d, want 1", failed)
	}
}

// TestEmptyTreeCompletesImmediately checks the zero-item run.
func TestEmptyTreeCompletesImmediately(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "out")
	notifier := &recordingNotifier{}

	s := newTestScheduler(0, notifier, &fakeReaper{}, &fakeConverter{})
	if err := s.Run(context.Background(), nil, out); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	s.Wait()

	if _, err := os.Stat(filepath.Join(out, "converted")); err != nil {
		t.Fatalf("output root missing: %v", err)
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if notifier.completes != 1 {
		t.Fatalf("completes = %d, want 1", notifier.completes)
	}
	if len(notifier.progress) != 0 {
		t.Fatalf("unexpected progress events: %+v", notifier.progress)
	}
}

// TestActiveNeverExceedsMaxConcurrent checks the admission budget under
// more items than slots.
func TestActiveNeverExceedsMaxConcurrent(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "out")

	var active, peak int32
	conv := &fakeConverter{
		convert: func(ctx context.Context, item domain.WorkItem, onProgress func(float64)) error {
			now := atomic.AddInt32(&active, 1)
			for {
				current := atomic.LoadInt32(&peak)
				if now <= current || atomic.CompareAndSwapInt32(&peak, current, now) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			return nil
		},
	}

	var children []domain.DirEntry
	for _, name := range []string{"a.mp3", "b.mp3", "c.mp3", "d.mp3", "e.mp3", "f.mp3"} {
		children = append(children, domain.DirEntry{
			Path: filepath.Join(root, name),
			Name: name,
			Kind: domain.MediaKindAudio,
		})
	}

	s := newTestScheduler(2, &recordingNotifier{}, &fakeReaper{}, conv)
	if err := s.Run(context.Background(), children, out); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	s.Wait()

	if got := atomic.LoadInt32(&peak); got > 2 {
		t.Fatalf("peak concurrency = %d, want <= 2", got)
	}
	if len(s.Outcomes()) != 6 {
		t.Fatalf("outcomes = %d, want 6", len(s.Outcomes()))
	}
}

// TestBuildQueueFailureIsFatal checks directory-creation failure stops
// the run before any worker starts.
func TestBuildQueueFailureIsFatal(t *testing.T) {
	root := t.TempDir()
	notifier := &recordingNotifier{}

	started := int32(0)
	conv := &fakeConverter{
		convert: func(ctx context.Context, item domain.WorkItem, onProgress func(float64)) error {
			atomic.AddInt32(&started, 1)
			return nil
		},
	}

	s := newTestScheduler(2, notifier, &fakeReaper{}, conv)
	s.mkdirAll = func(string, os.FileMode) error {
		return errors.New("disk full")
	}

	err := s.Run(context.Background(), sampleTree(root), filepath.Join(root, "out"))
	if err == nil {
		t.Fatal("expected queue build failure")
	}
	if atomic.LoadInt32(&started) != 0 {
		t.Fatal("no encode may start after a build failure")
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if notifier.completes != 0 {
		t.Fatal("failed build must not emit completion")
	}
}

// TestDerivedMaxConcurrentBounds checks cap derivation in the
// scheduler constructor.
func TestDerivedMaxConcurrentBounds(t *testing.T) {
	s := NewScheduler(Config{TotalCores: 16, Notifier: &recordingNotifier{}})
	if s.MaxConcurrent() != 6 {
		t.Fatalf("cap for 16 cores = %d, want 6", s.MaxConcurrent())
	}

	s = NewScheduler(Config{TotalCores: 4, Notifier: &recordingNotifier{}})
	if s.MaxConcurrent() != 2 {
		t.Fatalf("cap for 4 cores = %d, want 2", s.MaxConcurrent())
	}
}
