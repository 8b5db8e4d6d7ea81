package ledger

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/lead-scraper/internal/export"
)

// BestEffort wraps a Ledger so that failures are logged and swallowed. Stage
// code calls it directly; a dead ledger never blocks or fails a job.
type BestEffort struct {
	inner Ledger
	log   *zap.Logger
}

// NewBestEffort wraps l, logging failures to log.
func NewBestEffort(l Ledger, log *zap.Logger) *BestEffort {
	if l == nil {
		l = Nop{}
	}
	if log == nil {
		log = zap.L()
	}
	return &BestEffort{inner: l, log: log}
}

// Enabled reports whether the wrapped ledger is real.
func (b *BestEffort) Enabled() bool { return b.inner.Enabled() }

// CreateJob returns the remote id, or "" when the ledger is unavailable.
func (b *BestEffort) CreateJob(ctx context.Context, niche, region string) string {
	id, err := b.inner.CreateJob(ctx, niche, region)
	if err != nil {
		b.log.Warn("ledger: create job failed", zap.Error(err))
		return ""
	}
	return id
}

// UpdateJob pushes u for jobID.
func (b *BestEffort) UpdateJob(ctx context.Context, jobID string, u Update) {
	if err := b.inner.UpdateJob(ctx, jobID, u); err != nil {
		b.log.Warn("ledger: update job failed", zap.String("remote_id", jobID), zap.Error(err))
	}
}

// UploadResults uploads the exported rows.
func (b *BestEffort) UploadResults(ctx context.Context, jobID string, rows []export.Row) {
	if err := b.inner.UploadResults(ctx, jobID, rows); err != nil {
		b.log.Warn("ledger: upload results failed", zap.String("remote_id", jobID), zap.Error(err))
	}
}

// UploadCSV uploads the CSV export and returns its URL, or "".
func (b *BestEffort) UploadCSV(ctx context.Context, jobID string, content []byte, fileName string) string {
	url, err := b.inner.UploadCSV(ctx, jobID, content, fileName)
	if err != nil {
		b.log.Warn("ledger: upload csv failed", zap.String("remote_id", jobID), zap.Error(err))
		return ""
	}
	return url
}

// GetJob returns the remote job, or nil when unknown or unavailable.
func (b *BestEffort) GetJob(ctx context.Context, jobID string) *Job {
	job, err := b.inner.GetJob(ctx, jobID)
	if err != nil {
		b.log.Warn("ledger: get job failed", zap.String("remote_id", jobID), zap.Error(err))
		return nil
	}
	return job
}

// ListJobs returns every remote job, or nil when the ledger is unavailable.
func (b *BestEffort) ListJobs(ctx context.Context) []Job {
	jobs, err := b.inner.ListJobs(ctx)
	if err != nil {
		b.log.Warn("ledger: list jobs failed", zap.Error(err))
		return nil
	}
	return jobs
}
