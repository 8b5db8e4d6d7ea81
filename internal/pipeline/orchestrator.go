// Package pipeline runs a lead collection job: discovery over a search grid,
// detail enrichment, email extraction and export. Every item is written
// through the job checkpoint, so a stopped or crashed job resumes where it
// left off.
package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-scraper/internal/export"
	"github.com/sells-group/lead-scraper/internal/grid"
	"github.com/sells-group/lead-scraper/internal/ledger"
	"github.com/sells-group/lead-scraper/internal/model"
	"github.com/sells-group/lead-scraper/internal/resume"
)

// Orchestrator sequences the stages of a job.
type Orchestrator struct {
	regions *grid.Table
	places  PlaceSearcher
	details DetailFetcher
	emails  EmailExtractor
	ledger  *ledger.BestEffort
	opts    Options
}

// New creates an Orchestrator. A nil ledger runs jobs purely locally.
func New(
	regions *grid.Table,
	places PlaceSearcher,
	details DetailFetcher,
	emails EmailExtractor,
	led *ledger.BestEffort,
	opts Options,
) *Orchestrator {
	if regions == nil {
		regions = grid.DefaultTable()
	}
	if led == nil {
		led = ledger.NewBestEffort(nil, nil)
	}
	if opts.Spacing <= 0 {
		opts.Spacing = grid.DefaultSpacing
	}
	return &Orchestrator{
		regions: regions,
		places:  places,
		details: details,
		emails:  emails,
		ledger:  led,
		opts:    opts,
	}
}

type stage struct {
	running model.Phase
	done    model.Phase
	run     func(context.Context, *Job) error
	// pending reports whether the checkpoint still holds work for the stage.
	pending func(*Job) bool
}

func (o *Orchestrator) stages() []stage {
	return []stage{
		{model.PhaseScanning, model.PhaseScanComplete, o.discover, o.scanPending},
		{model.PhaseScraping, model.PhaseScrapeComplete, o.enrich, func(j *Job) bool {
			return len(j.Store().PendingDetails()) > 0
		}},
		{model.PhaseEmails, model.PhaseEmailsComplete, o.extractEmails, func(j *Job) bool {
			return len(j.Store().PendingEmails()) > 0
		}},
	}
}

// scanPending reports whether grid points remain. A job that already has
// candidates and an unknown region is treated as scanned.
func (o *Orchestrator) scanPending(j *Job) bool {
	box, err := o.regions.Lookup(j.Criteria().RegionKey)
	if err != nil {
		return !j.Store().Counts().HasCandidates()
	}
	points, err := grid.Generate(box, o.opts.Spacing)
	if err != nil {
		return true
	}
	j.setGridTotal(len(points))
	return len(grid.Remaining(points, j.Store().ScannedKeys())) > 0
}

// Run executes a fresh job from the top.
func (o *Orchestrator) Run(ctx context.Context, j *Job) error {
	j.setRemoteID(o.ledger.CreateJob(ctx, j.Criteria().Niche, j.Criteria().Region))
	if id := j.RemoteID(); id != "" {
		j.Logger().Info("ledger job created", zap.String("remote_id", id))
	}
	j.saveMeta()
	return o.execute(ctx, j, false)
}

// Resume continues a previously interrupted job. Stages whose work is already
// complete in the checkpoint are skipped; the rest run the same bodies as Run.
func (o *Orchestrator) Resume(ctx context.Context, j *Job) error {
	if j.RemoteID() == "" {
		j.setRemoteID(o.ledger.CreateJob(ctx, j.Criteria().Niche, j.Criteria().Region))
		if id := j.RemoteID(); id != "" {
			j.Logger().Info("ledger job created", zap.String("remote_id", id))
		}
		j.saveMeta()
	}
	j.Logger().Info("resuming job",
		zap.String("region", j.Criteria().Region),
		zap.String("from", resume.Describe(j.Store().Counts())),
	)
	return o.execute(ctx, j, true)
}

func (o *Orchestrator) execute(ctx context.Context, j *Job, skipSatisfied bool) error {
	log := j.Logger()
	for _, s := range o.stages() {
		if skipSatisfied && !s.pending(j) {
			log.Info("stage already complete", zap.Stringer("stage", s.running))
			continue
		}
		o.transition(ctx, j, s.running)
		if err := s.run(ctx, j); err != nil {
			o.push(ctx, j)
			return eris.Wrapf(err, "pipeline: %s", s.running)
		}
		if ctx.Err() != nil {
			o.push(ctx, j)
			return nil
		}
		o.transition(ctx, j, s.done)
	}
	return o.export(ctx, j)
}

// export writes the CSV and XLSX files, uploads them and marks the job
// complete. A job without rows is left as is.
func (o *Orchestrator) export(ctx context.Context, j *Job) error {
	log := j.Logger()
	o.transition(ctx, j, model.PhaseExporting)

	store := j.Store()
	rows := export.BuildRows(store.Details(), store.Emails())
	if len(rows) == 0 {
		log.Warn("no results to export")
		return nil
	}

	content, err := export.WriteCSV(store.Path(j.CSVName()), rows)
	if err != nil {
		return err
	}
	if err := export.WriteXLSX(store.Path(j.XLSXName()), rows); err != nil {
		return err
	}

	sum := export.Summarize(rows)
	log.Info("exported",
		zap.Int("businesses", sum.Rows),
		zap.Int("with_phone", sum.WithPhone),
		zap.Int("with_email", sum.WithEmail),
		zap.String("csv", store.Path(j.CSVName())),
	)

	lctx := context.WithoutCancel(ctx)
	url := ""
	if remoteID := j.RemoteID(); remoteID != "" {
		o.ledger.UploadResults(lctx, remoteID, rows)
		url = o.ledger.UploadCSV(lctx, remoteID, content, j.CSVName())
		if url != "" {
			log.Info("uploaded export", zap.String("url", url))
		}
	}
	j.setExported(sum, url)

	j.setStatus(model.StatusOf(model.PhaseComplete))
	j.saveMeta()

	status := j.Status()
	progress := j.Progress()
	o.ledger.UpdateJob(lctx, j.RemoteID(), ledger.Update{
		Status:       &status,
		Progress:     &progress,
		TotalResults: &sum.Rows,
		ExportURL:    &url,
	})
	log.Info("done")
	return nil
}

// transition records a live status change and pushes it.
func (o *Orchestrator) transition(ctx context.Context, j *Job, p model.Phase) {
	j.setStatus(model.StatusOf(p))
	o.push(ctx, j)
}

// push saves the meta record and sends status and progress to the ledger.
// Pushes run even after stop so the final position is reported.
func (o *Orchestrator) push(ctx context.Context, j *Job) {
	j.saveMeta()
	status := j.Status()
	progress := j.Progress()
	o.ledger.UpdateJob(context.WithoutCancel(ctx), j.RemoteID(), ledger.Update{
		Status:   &status,
		Progress: &progress,
	})
}
