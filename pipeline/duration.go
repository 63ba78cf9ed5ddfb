package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/capsulabs/capsule-pipeline/subprocess"

	ffprobe "gopkg.in/vansante/go-ffprobe.v2"
)

// ProbeDuration runs the external tool's `duration -f PATH` subcommand,
// which emits a single line with the duration in seconds, and returns the
// value rounded to milliseconds (§4.6.2, §6.1).
func ProbeDuration(ctx context.Context, runner *subprocess.Runner, requestID, path string) (int64, error) {
	var lastLine string
	result, err := runner.Run(ctx, requestID, []string{"duration", "-f", path}, nil, nil, func(line string) {
		lastLine = line
	})
	if err != nil {
		return 0, fmt.Errorf("duration probe failed: %w", err)
	}
	if lastLine == "" {
		lastLine = strings.TrimSpace(result.Stdout)
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(lastLine), 64)
	if err != nil {
		return 0, fmt.Errorf("duration probe returned non-numeric output %q: %w", lastLine, err)
	}
	return int64(seconds*1000 + 0.5), nil
}

// ProbeDurationFallback double-checks the external tool's reported
// duration against ffprobe directly, for deployments that want a local
// verification path independent of the external tool's own measurement.
// It is not on the critical path of §4.6.2 — a probe failure here is
// discarded by the caller and does not fail production.
func ProbeDurationFallback(ctx context.Context, path string) (int64, error) {
	data, err := ffprobe.ProbeURL(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("ffprobe fallback failed: %w", err)
	}
	seconds := data.Format.DurationSeconds
	return int64(seconds*1000 + 0.5), nil
}
