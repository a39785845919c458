package scan

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"media-batch-converter/internal/domain"
)

// fakeProber returns a fixed duration for every probed file.
type fakeProber struct {
	duration float64
	err      error
	probed   []string
}

// Duration records the probed path and returns injected values.
func (p *fakeProber) Duration(ctx context.Context, path string) (float64, error) {
	p.probed = append(p.probed, path)
	return p.duration, p.err
}

func newTestScanner(prober durationProber) *Scanner {
	s := NewScanner("ffprobe", nil)
	s.prober = prober
	return s
}

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// TestDetailPathsBuildsTree checks folder recursion, ordering, kinds,
// and aggregate sizes.
func TestDetailPathsBuildsTree(t *testing.T) {
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "clips", "a.mp4"), "vvvv")
	mustWriteFile(t, filepath.Join(root, "clips", "b.mp3"), "aa")
	mustWriteFile(t, filepath.Join(root, "clips", "notes.txt"), "skip me")
	mustWriteFile(t, filepath.Join(root, "cover.png"), "ppp")

	prober := &fakeProber{duration: 12.5}
	scanner := newTestScanner(prober)

	entries := scanner.DetailPaths(context.Background(), []string{
		filepath.Join(root, "clips"),
		filepath.Join(root, "cover.png"),
		filepath.Join(root, "missing.mp4"),
	})

	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}

	clips := entries[0]
	if !clips.IsDir || clips.Name != "clips" {
		t.Fatalf("unexpected first entry: %+v", clips)
	}
	if len(clips.Children) != 2 {
		t.Fatalf("clips children = %d, want 2 (txt filtered)", len(clips.Children))
	}
	if clips.Children[0].Name != "a.mp4" || clips.Children[0].Kind != domain.MediaKindVideo {
		t.Fatalf("unexpected child 0: %+v", clips.Children[0])
	}
	if clips.Children[1].Name != "b.mp3" || clips.Children[1].Kind != domain.MediaKindAudio {
		t.Fatalf("unexpected child 1: %+v", clips.Children[1])
	}
	if clips.Size != 6 {
		t.Fatalf("aggregate size = %d, want 6", clips.Size)
	}
	if clips.Children[0].DurationSec != 12.5 {
		t.Fatalf("duration = %v, want 12.5", clips.Children[0].DurationSec)
	}

	cover := entries[1]
	if cover.Kind != domain.MediaKindImage || cover.IsDir {
		t.Fatalf("unexpected cover entry: %+v", cover)
	}
	if cover.DurationSec != 0 {
		t.Fatal("images must not carry durations")
	}

	if len(prober.probed) != 2 {
		t.Fatalf("probed = %d files, want 2 (image not probed)", len(prober.probed))
	}
}

// TestDetailPathsProbeFailureKeepsFile checks a failed duration probe
// leaves the file in the tree with zero duration.
func TestDetailPathsProbeFailureKeepsFile(t *testing.T) {
	root := t.TempDir()
	input := filepath.Join(root, "clip.mkv")
	mustWriteFile(t, input, "vv")

	scanner := newTestScanner(&fakeProber{err: os.ErrPermission})
	entries := scanner.DetailPaths(context.Background(), []string{input})

	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if entries[0].DurationSec != 0 {
		t.Fatalf("duration = %v, want 0", entries[0].DurationSec)
	}
}

// TestKindForPath checks extension classification.
func TestKindForPath(t *testing.T) {
	cases := []struct {
		path string
		kind domain.MediaKind
		ok   bool
	}{
		{"/a/b.MP4", domain.MediaKindVideo, true},
		{"/a/b.flac", domain.MediaKindAudio, true},
		{"/a/b.jpeg", domain.MediaKindImage, true},
		{"/a/b.txt", "", false},
		{"/a/b", "", false},
	}

	for _, tc := range cases {
		kind, ok := KindForPath(tc.path)
		if ok != tc.ok || kind != tc.kind {
			t.Fatalf("KindForPath(%q) = (%q, %v), want (%q, %v)", tc.path, kind, ok, tc.kind, tc.ok)
		}
	}
}

// TestParseDuration checks ffprobe JSON duration extraction.
func TestParseDuration(t *testing.T) {
	got, err := ParseDuration([]byte(`{"format":{"duration":"93.5"}}`))
	if err != nil {
		t.Fatalf("ParseDuration error: %v", err)
	}
	if got != 93.5 {
		t.Fatalf("duration = %v, want 93.5", got)
	}

	if _, err := ParseDuration([]byte(`{"format":{}}`)); err == nil {
		t.Fatal("expected error for missing duration")
	}
	if _, err := ParseDuration([]byte(`{not-json`)); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}
