package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-scraper/internal/grid"
	"github.com/sells-group/lead-scraper/internal/model"
	"github.com/sells-group/lead-scraper/internal/resilience"
)

// ErrTooManyFailures halts a stage after consecutive collaborator failures.
// Progress persisted so far is kept and the job stays resumable.
var ErrTooManyFailures = eris.New("pipeline: too many consecutive failures")

// PlaceSearcher returns the candidate ids found around a point. On error it
// may still return the ids collected before the failure.
type PlaceSearcher interface {
	SearchAt(ctx context.Context, query string, lat, lng float64) ([]string, error)
}

// DetailFetcher enriches one candidate.
type DetailFetcher interface {
	FetchDetail(ctx context.Context, placeID string) (model.DetailRecord, error)
}

// EmailExtractor collects contact emails from a website. Misses yield an
// empty set, never an error.
type EmailExtractor interface {
	ExtractEmails(ctx context.Context, website string) []string
}

// failureCounter tracks consecutive failures against a threshold.
type failureCounter struct {
	threshold int
	n         int
}

func (f *failureCounter) record(err error) bool {
	if err == nil {
		f.n = 0
		return false
	}
	f.n++
	return f.threshold > 0 && f.n >= f.threshold
}

// stopped reports whether a collaborator result must be discarded: the item
// was throttled and the retry wait was abandoned because the job stopped.
func stopped(ctx context.Context, err error) bool {
	return err != nil && ctx.Err() != nil && resilience.IsThrottled(err)
}

// discover searches every grid point not yet scanned. A point is marked
// scanned only when its search succeeds; ids from a failed search are still
// merged.
func (o *Orchestrator) discover(ctx context.Context, j *Job) error {
	log := j.Logger()
	c := j.Criteria()

	box, err := o.regions.Lookup(c.RegionKey)
	if err != nil {
		log.Error("unknown region", zap.String("region", c.RegionKey), zap.Error(err))
		return err
	}
	points, err := grid.Generate(box, o.opts.Spacing)
	if err != nil {
		return eris.Wrap(err, "pipeline: generate grid")
	}
	j.setGridTotal(len(points))

	remaining := grid.Remaining(points, j.Store().ScannedKeys())
	log.Info("scanning grid",
		zap.Int("grid_total", len(points)),
		zap.Int("remaining", len(remaining)),
		zap.Int("places_so_far", j.Store().Counts().Candidates),
	)

	retry := resilience.ThrottleRetry(o.opts.ThrottleWait, resilience.RetryLogger(log, "search"))
	fails := failureCounter{threshold: o.opts.FailureThreshold}
	detached := context.WithoutCancel(ctx)

	for i, pt := range remaining {
		if ctx.Err() != nil {
			log.Info("stopped by user")
			return nil
		}

		var ids []string
		searchErr := resilience.Do(ctx, retry, func(context.Context) error {
			found, err := o.places.SearchAt(detached, c.Niche, pt.Lat, pt.Lng)
			ids = append(ids, found...)
			return err
		})
		if stopped(ctx, searchErr) {
			log.Info("stopped by user")
			return nil
		}

		if _, err := j.Store().MergeCandidates(ids...); err != nil {
			return err
		}
		if searchErr != nil {
			log.Warn("search failed", zap.String("point", pt.Key()), zap.Error(searchErr))
		} else if _, err := j.Store().MergeScanned(pt); err != nil {
			return err
		}
		j.saveMeta()

		n := i + 1
		if o.opts.Scan.pushDue(n) {
			o.push(ctx, j)
		}
		if fails.record(searchErr) {
			log.Error("too many search failures, stopping scan", zap.Int("consecutive", fails.n))
			return ErrTooManyFailures
		}
		if err := o.opts.Scan.wait(ctx, n); err != nil {
			log.Info("stopped by user")
			return nil
		}
	}

	log.Info("scan finished", zap.Int("places_found", j.Store().Counts().Candidates))
	return nil
}

// enrich fetches a detail record for every candidate without one. Failures
// are recorded as failure markers.
func (o *Orchestrator) enrich(ctx context.Context, j *Job) error {
	log := j.Logger()
	store := j.Store()

	remaining := store.PendingDetails()
	counts := store.Counts()
	log.Info("scraping place details",
		zap.Int("total", counts.Candidates),
		zap.Int("done", counts.Details),
		zap.Int("remaining", len(remaining)),
	)

	retry := resilience.ThrottleRetry(o.opts.ThrottleWait, resilience.RetryLogger(log, "detail"))
	fails := failureCounter{threshold: o.opts.FailureThreshold}
	detached := context.WithoutCancel(ctx)

	for i, id := range remaining {
		if ctx.Err() != nil {
			log.Info("stopped by user")
			return nil
		}

		rec, err := resilience.DoVal(ctx, retry, func(context.Context) (model.DetailRecord, error) {
			return o.details.FetchDetail(detached, id)
		})
		if stopped(ctx, err) {
			log.Info("stopped by user")
			return nil
		}
		if err != nil {
			log.Warn("detail failed", zap.String("place_id", id), zap.Error(err))
			rec = model.FailedDetail(id, err)
		}
		rec.PlaceID = id
		if perr := store.PutDetail(rec); perr != nil {
			return perr
		}
		j.saveMeta()

		n := i + 1
		if o.opts.Scrape.pushDue(n) {
			o.push(ctx, j)
			log.Info("scraped", zap.Int("places_scraped", store.Counts().DetailsOK))
		}
		if fails.record(err) {
			log.Error("too many detail failures, stopping scrape", zap.Int("consecutive", fails.n))
			return ErrTooManyFailures
		}
		if err := o.opts.Scrape.wait(ctx, n); err != nil {
			log.Info("stopped by user")
			return nil
		}
	}

	log.Info("scrape finished", zap.Int("places_scraped", store.Counts().DetailsOK))
	return nil
}

// extractEmails checks the website of every successful record that has not
// been checked yet. It never fails on a site; only checkpoint writes error.
func (o *Orchestrator) extractEmails(ctx context.Context, j *Job) error {
	log := j.Logger()
	store := j.Store()

	remaining := store.PendingEmails()
	log.Info("checking websites for emails",
		zap.Int("remaining", len(remaining)),
		zap.Int("done", store.Counts().EmailsChecked),
	)

	detached := context.WithoutCancel(ctx)

	for i, id := range remaining {
		if ctx.Err() != nil {
			log.Info("stopped by user")
			return nil
		}

		rec, _ := store.Detail(id)
		emails := o.emails.ExtractEmails(detached, rec.Website)
		if err := store.PutEmails(id, emails); err != nil {
			return err
		}
		if len(emails) > 0 {
			log.Info("emails found", zap.String("name", rec.Name), zap.Strings("emails", emails))
		}
		j.saveMeta()

		n := i + 1
		if o.opts.Emails.pushDue(n) {
			o.push(ctx, j)
		}
		if err := o.opts.Emails.wait(ctx, n); err != nil {
			log.Info("stopped by user")
			return nil
		}
	}

	log.Info("email check finished", zap.Int("emails_found", store.Counts().EmailsFound))
	return nil
}
