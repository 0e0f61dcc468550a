package scraper

import (
	"math"
	"time"

	"github.com/aluiziolira/go-scrape-market/config"
)

const windowSpan = time.Minute

// requestWindow holds issue times of requests within the last minute.
type requestWindow struct {
	stamps []time.Time
}

func (w *requestWindow) prune(now time.Time) {
	i := 0
	for i < len(w.stamps) && now.Sub(w.stamps[i]) >= windowSpan {
		i++
	}
	w.stamps = w.stamps[i:]
}

func (w *requestWindow) add(t time.Time) {
	w.stamps = append(w.stamps, t)
}

func (w *requestWindow) len() int {
	return len(w.stamps)
}

// wait returns how long to block before another request fits under limit.
// The extra second keeps the oldest entry strictly outside the window.
func (w *requestWindow) wait(now time.Time, limit int) time.Duration {
	w.prune(now)
	if limit <= 0 || len(w.stamps) < limit {
		return 0
	}
	oldest := w.stamps[len(w.stamps)-limit]
	return windowSpan - now.Sub(oldest) + time.Second
}

type limits struct {
	rpm        int
	delayScale float64
}

func inLowTrafficWindow(hour int, w config.LowTrafficHours) bool {
	switch {
	case w.Start == w.End:
		return false
	case w.Start < w.End:
		return hour >= w.Start && hour < w.End
	default:
		return hour >= w.Start || hour < w.End
	}
}

func limitsFor(now time.Time, cfg *config.Config) (limits, bool) {
	base := limits{rpm: cfg.MaxRequestsPerMinute, delayScale: 1}
	if !inLowTrafficWindow(now.Hour(), cfg.LowTraffic) || cfg.LowTrafficBoost <= 1 {
		return base, false
	}
	return limits{
		rpm:        int(math.Ceil(float64(cfg.MaxRequestsPerMinute) * cfg.LowTrafficBoost)),
		delayScale: 1 / cfg.LowTrafficBoost,
	}, true
}

func scaleDuration(d time.Duration, f float64) time.Duration {
	if f == 1 {
		return d
	}
	return time.Duration(float64(d) * f)
}
