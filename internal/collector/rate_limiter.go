package collector

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// lowWatermark is the remaining-request count under which enumeration
// pauses until the reported reset time.
const lowWatermark = 5

// pacer spaces out GitHub API calls and backs off when the remaining
// quota reported by response headers runs low. Until the first response
// arrives the quota is unknown, so only the minimum spacing applies.
type pacer struct {
	mu        sync.Mutex
	remaining int
	reset     time.Time
	known     bool
	spacing   time.Duration
	lastCall  time.Time
}

func newPacer() *pacer {
	return &pacer{
		spacing: 100 * time.Millisecond,
	}
}

// Wait blocks until the next API call may be made. It returns early with
// the context error on cancellation.
func (p *pacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	pause := time.Duration(0)
	if p.known && p.remaining <= lowWatermark {
		pause = time.Until(p.reset)
		if pause > 0 {
			slog.Warn("GitHub rate limit nearly exhausted, pausing enumeration",
				"remaining", p.remaining, "pause", pause.Round(time.Second))
		}
		p.known = false
	}
	if gap := p.spacing - time.Since(p.lastCall); gap > pause {
		pause = gap
	}
	p.lastCall = time.Now().Add(pause)
	p.mu.Unlock()

	if pause <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(pause):
		return nil
	}
}

// Observe records the quota reported by a GitHub API response.
func (p *pacer) Observe(remaining int, reset time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.remaining = remaining
	p.reset = reset
	p.known = true
}
