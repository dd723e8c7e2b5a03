package catalog

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Prober measures the duration of a video file in seconds.
type Prober interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// FFProbe runs ffprobe to read the container duration.
type FFProbe struct {
	// Command is the ffprobe binary, looked up in PATH when not absolute.
	Command string
}

// Duration returns the duration of the video at path.
func (f FFProbe) Duration(ctx context.Context, path string) (float64, error) {
	command := f.Command
	if command == "" {
		command = "ffprobe"
	}
	cmd := exec.CommandContext(ctx, command,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("%s: %w: %s", command, err, strings.TrimSpace(out.String()))
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(out.String()), 64)
	if err != nil {
		return 0, fmt.Errorf("%s: unexpected output %q", command, strings.TrimSpace(out.String()))
	}
	return d, nil
}
