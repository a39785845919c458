package convert

import (
	"fmt"
	"os"
	"strconv"
)

// downscaleFilter caps output width at 1920px with high-quality
// resampling; smaller inputs pass through untouched. The -2 height
// keeps even dimensions for the encoders.
const downscaleFilter = "scale='min(1920,iw)':-2:flags=lanczos"

// commonArgs is the invocation prefix shared by every pass: silent
// non-interactive run with machine-readable progress on stdout.
func commonArgs(input string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-nostats",
		"-progress", "pipe:1",
		"-i", input,
	}
}

// audioCodecArgs is the fixed lossy audio target: mono, 44.1 kHz,
// 128 kbit/s. Used both for audio files and video companion tracks.
func audioCodecArgs() []string {
	return []string{
		"-ac", "1",
		"-ar", "44100",
		"-c:a", "libmp3lame",
		"-b:a", "128k",
	}
}

// buildAudioArgs builds the single-pass audio conversion command.
func buildAudioArgs(input, output string, threads int) []string {
	args := commonArgs(input)
	args = append(args, "-vn")
	args = append(args, audioCodecArgs()...)
	args = append(args, "-threads", strconv.Itoa(threads), output)
	return args
}

// buildVideoArgs builds one pass of the two-pass video command. Both
// passes share the full quality contract; pass 1 drops audio and
// writes encoder statistics to statsFile through the null muxer.
func buildVideoArgs(input, output, statsFile string, threads, pass int) []string {
	args := commonArgs(input)
	args = append(args,
		"-c:v", "libx265",
		"-crf", "22",
		"-preset", "medium",
		"-pix_fmt", "yuv420p10le",
		"-g", "240",
		"-x265-params", fmt.Sprintf("pass=%d:stats=%s", pass, statsFile),
		"-vf", downscaleFilter,
		"-threads", strconv.Itoa(threads),
	)

	if pass == 1 {
		return append(args, "-an", "-f", "null", os.DevNull)
	}

	args = append(args, audioCodecArgs()...)
	return append(args, output)
}

// buildImageArgs builds one pass of the two-pass still-image command:
// AV1 in an AVIF container, full color range retained.
func buildImageArgs(input, output, passLogFile string, threads, pass int) []string {
	args := commonArgs(input)
	args = append(args,
		"-c:v", "libaom-av1",
		"-still-picture", "1",
		"-crf", "22",
		"-color_range", "pc",
		"-vf", downscaleFilter,
		"-threads", strconv.Itoa(threads),
		"-pass", strconv.Itoa(pass),
		"-passlogfile", passLogFile,
	)

	if pass == 1 {
		return append(args, "-an", "-f", "null", os.DevNull)
	}
	return append(args, output)
}
