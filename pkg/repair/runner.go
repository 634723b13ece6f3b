package repair

import (
	"time"

	"github.com/jmylchreest/tagmend/internal/logger"
)

// runPasses applies every pass in order. Disabled passes are recorded in
// stats but leave the buffer alone.
func runPasses(passes []Pass, buf string, features Features, limit int, stats *Stats) string {
	for _, p := range passes {
		enabled := features.Has(p.Feature)
		ps := stats.AddPass(p.Name, p.Feature, enabled)
		if !enabled {
			continue
		}
		buf = runPass(p, buf, limit, ps)
	}
	return buf
}

// runPass re-applies p until Detect no longer matches, a rewrite leaves the
// buffer unchanged, or limit fixes have been made.
func runPass(p Pass, buf string, limit int, ps *PassStats) string {
	start := time.Now()
	for p.Detect(buf) {
		if ps.Fixes >= limit {
			ps.Capped = true
			break
		}
		next := p.Rewrite(buf)
		if next == buf {
			break
		}
		buf = next
		ps.Fixes++
	}
	ps.Duration = time.Since(start)

	if ps.Capped {
		logger.Warn("pass hit iteration limit", "pass", p.Name, "limit", limit)
	} else if ps.Fixes > 0 {
		logger.Debug("pass applied", "pass", p.Name, "fixes", ps.Fixes, "duration", ps.Duration)
	}
	return buf
}
