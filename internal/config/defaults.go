package config

import (
	"os"
	"path/filepath"

	"media-batch-converter/internal/domain"
)

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return domain.Settings{
		OutputDir:   filepath.Join(homeDir, "Videos", "Converted"),
		FFmpegPath:  "ffmpeg",
		FFprobePath: "ffprobe",
	}
}
