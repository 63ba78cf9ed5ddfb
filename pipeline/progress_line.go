package pipeline

import (
	"strconv"
	"strings"
)

// parseProgressLine parses one stdout line from a produce/publish
// subcommand as the percentage it reports (§6.1's "one float per line,
// 0-100, monotonically increasing" contract). Lines that don't parse as a
// float are ignored rather than treated as an error, since the external
// tool may also emit diagnostic lines on stdout.
func parseProgressLine(line string) (float64, bool) {
	pct, err := strconv.ParseFloat(strings.TrimSpace(line), 64)
	if err != nil {
		return 0, false
	}
	return pct, true
}
