package pipeline

import (
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Clock is swappable in tests for deterministic rate-limiting, mirroring
// the teacher's progress.Clock package variable.
var Clock = clock.New()

var progressReportBuckets = []float64{0, 25, 50, 75, 100}

const minProgressReportInterval = 10 * time.Second

// ProgressReporter rate-limits the one-floating-point-percentage-per-line
// stream the external tool emits (§4.2, §4.6), reporting on quartile
// crossing or after 10s, and never regressing — ported from the teacher's
// progress.ProgressReporter, adapted from pull-based polling to push-based
// reporting since every line already carries the current value.
type ProgressReporter struct {
	notify func(pct float64)

	mu           sync.Mutex
	lastReport   time.Time
	lastProgress float64
	started      bool
}

func NewProgressReporter(notify func(pct float64)) *ProgressReporter {
	return &ProgressReporter{notify: notify}
}

// Report is called once per stdout line from the external tool with the
// parsed percentage. Non-monotonic values are dropped rather than
// reported, since the external tool contract guarantees a monotone stream
// (§8).
func (p *ProgressReporter) Report(pct float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started && pct <= p.lastProgress {
		return
	}
	if p.started && !shouldReportProgress(pct, p.lastProgress, p.lastReport) {
		p.lastProgress = pct
		return
	}

	p.notify(pct)
	p.lastReport = Clock.Now()
	p.lastProgress = pct
	p.started = true
}

func shouldReportProgress(newPct, oldPct float64, lastReportedAt time.Time) bool {
	return progressBucket(newPct) != progressBucket(oldPct) ||
		Clock.Since(lastReportedAt) >= minProgressReportInterval
}

func progressBucket(pct float64) int {
	return sort.SearchFloat64s(progressReportBuckets, pct)
}
