package pipeline

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/sells-group/lead-scraper/internal/config"
	"github.com/sells-group/lead-scraper/internal/grid"
	"github.com/sells-group/lead-scraper/internal/resilience"
)

// Pacing throttles one stage: a random delay after every item, a longer
// random pause every PauseEvery items, and a ledger push every PushEvery.
type Pacing struct {
	DelayMin   time.Duration
	DelayMax   time.Duration
	PauseEvery int
	PauseMin   time.Duration
	PauseMax   time.Duration
	PushEvery  int
}

// Options tunes the pipeline stages.
type Options struct {
	// FailureThreshold is the number of consecutive failures that halts
	// discovery or enrichment.
	FailureThreshold int
	// ThrottleWait is the pause before retrying a rate-limited item.
	ThrottleWait time.Duration
	Spacing      float64

	Scan   Pacing
	Scrape Pacing
	Emails Pacing
}

// DefaultOptions returns the production pacing.
func DefaultOptions() Options {
	return Options{
		FailureThreshold: 10,
		ThrottleWait:     resilience.DefaultThrottleWait,
		Spacing:          grid.DefaultSpacing,
		Scan:             Pacing{DelayMin: 200 * time.Millisecond, DelayMax: 200 * time.Millisecond, PushEvery: 5},
		Scrape: Pacing{
			DelayMin: 2 * time.Second, DelayMax: 4 * time.Second,
			PauseEvery: 25, PauseMin: 15 * time.Second, PauseMax: 30 * time.Second,
			PushEvery: 10,
		},
		Emails: Pacing{
			DelayMin: time.Second, DelayMax: 3 * time.Second,
			PauseEvery: 20, PauseMin: 10 * time.Second, PauseMax: 20 * time.Second,
			PushEvery: 10,
		},
	}
}

// OptionsFromConfig converts the pipeline config section.
func OptionsFromConfig(cfg config.PipelineConfig) Options {
	stage := func(s config.StageConfig) Pacing {
		return Pacing{
			DelayMin:   time.Duration(s.DelayMinMS) * time.Millisecond,
			DelayMax:   time.Duration(s.DelayMaxMS) * time.Millisecond,
			PauseEvery: s.PauseEvery,
			PauseMin:   time.Duration(s.PauseMinSecs) * time.Second,
			PauseMax:   time.Duration(s.PauseMaxSecs) * time.Second,
			PushEvery:  s.PushEvery,
		}
	}
	return Options{
		FailureThreshold: cfg.FailureThreshold,
		ThrottleWait:     time.Duration(cfg.ThrottleWaitSecs) * time.Second,
		Spacing:          grid.DefaultSpacing,
		Scan:             stage(cfg.Scan),
		Scrape:           stage(cfg.Scrape),
		Emails:           stage(cfg.Emails),
	}
}

// wait sleeps after the n-th processed item (1-based). It returns early with
// the context error when ctx is cancelled.
func (p Pacing) wait(ctx context.Context, n int) error {
	if err := sleep(ctx, between(p.DelayMin, p.DelayMax)); err != nil {
		return err
	}
	if p.PauseEvery > 0 && n%p.PauseEvery == 0 {
		return sleep(ctx, between(p.PauseMin, p.PauseMax))
	}
	return nil
}

// pushDue reports whether the n-th item should trigger a ledger push.
func (p Pacing) pushDue(n int) bool {
	return p.PushEvery > 0 && n%p.PushEvery == 0
}

func between(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo+1)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
