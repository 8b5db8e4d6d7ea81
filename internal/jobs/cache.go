package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/sells-group/lead-scraper/internal/ledger"
)

// DefaultCacheTTL is how long a fetched remote job list stays valid.
const DefaultCacheTTL = 5 * time.Second

// remoteCache holds the last remote job list. It is the only state shared
// across jobs and is replaced wholesale on each fetch.
type remoteCache struct {
	ledger *ledger.BestEffort
	ttl    time.Duration
	now    func() time.Time

	mu        sync.Mutex
	jobs      []ledger.Job
	fetchedAt time.Time
}

// list returns the cached jobs, refetching when the cache has expired.
func (c *remoteCache) list(ctx context.Context) []ledger.Job {
	if !c.ledger.Enabled() {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.fetchedAt.IsZero() && c.now().Sub(c.fetchedAt) < c.ttl {
		return c.jobs
	}
	c.jobs = c.ledger.ListJobs(ctx)
	c.fetchedAt = c.now()
	return c.jobs
}

// lookup returns the cached remote job with id without refetching.
func (c *remoteCache) lookup(id string) (ledger.Job, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, j := range c.jobs {
		if j.ID == id {
			return j, true
		}
	}
	return ledger.Job{}, false
}
