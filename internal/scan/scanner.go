package scan

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-hclog"

	"media-batch-converter/internal/domain"
)

var extensionKinds = map[string]domain.MediaKind{
	".mp3":  domain.MediaKindAudio,
	".wav":  domain.MediaKindAudio,
	".flac": domain.MediaKindAudio,
	".aac":  domain.MediaKindAudio,
	".ogg":  domain.MediaKindAudio,
	".m4a":  domain.MediaKindAudio,
	".wma":  domain.MediaKindAudio,
	".opus": domain.MediaKindAudio,

	".mp4":  domain.MediaKindVideo,
	".mov":  domain.MediaKindVideo,
	".mkv":  domain.MediaKindVideo,
	".avi":  domain.MediaKindVideo,
	".webm": domain.MediaKindVideo,
	".wmv":  domain.MediaKindVideo,
	".m4v":  domain.MediaKindVideo,
	".flv":  domain.MediaKindVideo,
	".ts":   domain.MediaKindVideo,

	".jpg":  domain.MediaKindImage,
	".jpeg": domain.MediaKindImage,
	".png":  domain.MediaKindImage,
	".bmp":  domain.MediaKindImage,
	".tif":  domain.MediaKindImage,
	".tiff": domain.MediaKindImage,
	".webp": domain.MediaKindImage,
}

// KindForPath resolves the media kind from a file's extension.
func KindForPath(path string) (domain.MediaKind, bool) {
	kind, ok := extensionKinds[strings.ToLower(filepath.Ext(path))]
	return kind, ok
}

// durationProber resolves media durations, usually via ffprobe.
type durationProber interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// Scanner details user-selected paths into DirEntry trees with sizes
// and media durations. Paths that cannot be read are dropped from the
// result rather than failing the whole selection.
type Scanner struct {
	prober  durationProber
	logger  hclog.Logger
	stat    func(string) (os.FileInfo, error)
	readDir func(string) ([]os.DirEntry, error)
}

// NewScanner constructs a scanner probing durations with ffprobePath.
func NewScanner(ffprobePath string, logger hclog.Logger) *Scanner {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Scanner{
		prober:  newFFprobe(ffprobePath),
		logger:  logger.Named("scan"),
		stat:    os.Stat,
		readDir: os.ReadDir,
	}
}

// DetailPaths resolves each selected path into a DirEntry tree.
// Unsupported files and unreadable paths are omitted.
func (s *Scanner) DetailPaths(ctx context.Context, paths []string) []domain.DirEntry {
	entries := make([]domain.DirEntry, 0, len(paths))
	for _, path := range paths {
		entry, ok := s.detailPath(ctx, path)
		if !ok {
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}

func (s *Scanner) detailPath(ctx context.Context, path string) (domain.DirEntry, bool) {
	info, err := s.stat(path)
	if err != nil {
		s.logger.Warn("skipping unreadable path", "path", path, "error", err)
		return domain.DirEntry{}, false
	}

	if info.IsDir() {
		return s.detailDir(ctx, path, info.Name())
	}
	return s.detailFile(ctx, path, info)
}

func (s *Scanner) detailDir(ctx context.Context, path, name string) (domain.DirEntry, bool) {
	listing, err := s.readDir(path)
	if err != nil {
		s.logger.Warn("skipping unreadable directory", "path", path, "error", err)
		return domain.DirEntry{}, false
	}

	sort.Slice(listing, func(i, j int) bool {
		return listing[i].Name() < listing[j].Name()
	})

	entry := domain.DirEntry{
		Path:  path,
		Name:  name,
		IsDir: true,
	}
	for _, child := range listing {
		if strings.HasPrefix(child.Name(), ".") {
			continue
		}
		childEntry, ok := s.detailPath(ctx, filepath.Join(path, child.Name()))
		if !ok {
			continue
		}
		entry.Size += childEntry.Size
		entry.Children = append(entry.Children, childEntry)
	}
	return entry, true
}

func (s *Scanner) detailFile(ctx context.Context, path string, info os.FileInfo) (domain.DirEntry, bool) {
	kind, ok := KindForPath(path)
	if !ok {
		return domain.DirEntry{}, false
	}

	entry := domain.DirEntry{
		Path: path,
		Name: info.Name(),
		Kind: kind,
		Size: info.Size(),
	}

	if kind == domain.MediaKindAudio || kind == domain.MediaKindVideo {
		duration, err := s.prober.Duration(ctx, path)
		if err != nil {
			// Progress for this item will rely on the terminal 100% signal.
			s.logger.Warn("duration probe failed", "path", path, "error", err)
		} else {
			entry.DurationSec = duration
		}
	}

	return entry, true
}
