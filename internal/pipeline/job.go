package pipeline

import (
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/lead-scraper/internal/checkpoint"
	"github.com/sells-group/lead-scraper/internal/export"
	"github.com/sells-group/lead-scraper/internal/model"
	"github.com/sells-group/lead-scraper/internal/resume"
)

// Job is the live runtime state of one job. Its checkpoint is the source of
// truth; status and progress are mirrors kept for display and the meta record.
type Job struct {
	id       string
	criteria model.Criteria
	store    *checkpoint.Store
	ring     *LogRing
	log      *zap.Logger

	mu        sync.RWMutex
	status    model.Status
	remoteID  string
	gridTotal int
	summary   *export.Summary
	exportURL string
}

// NewJob creates a fresh job backed by store.
func NewJob(id string, criteria model.Criteria, store *checkpoint.Store, base *zap.Logger) *Job {
	j := &Job{
		id:       id,
		criteria: criteria,
		store:    store,
		ring:     NewLogRing(LogRingSize),
		status:   model.StatusOf(model.PhaseCreated),
	}
	j.log = newJobLogger(base, j.ring, zap.String("job_id", id), zap.String("niche", criteria.Niche))
	return j
}

// RestoreJob rebuilds a job from its meta record. The recorded status is
// reclassified against the artifacts actually present in store.
func RestoreJob(meta model.JobMeta, store *checkpoint.Store, base *zap.Logger) *Job {
	j := NewJob(meta.LocalID, meta.Criteria, store, base)
	j.remoteID = meta.RemoteID
	j.gridTotal = meta.Progress.GridTotal
	j.status = resume.Classify(meta.Status, resume.ArtifactsOf(store.Counts()))
	return j
}

func (j *Job) ID() string { return j.id }
func (j *Job) Criteria() model.Criteria { return j.criteria }
func (j *Job) Store() *checkpoint.Store { return j.store }
func (j *Job) Logger() *zap.Logger { return j.log }
func (j *Job) Logs(n int) []string { return j.ring.Tail(n) }

// Status returns the current status.
func (j *Job) Status() model.Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}

func (j *Job) setStatus(s model.Status) {
	j.mu.Lock()
	j.status = s
	j.mu.Unlock()
}

// RemoteID returns the ledger id, or "" when the job is local only.
func (j *Job) RemoteID() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.remoteID
}

func (j *Job) setRemoteID(id string) {
	j.mu.Lock()
	j.remoteID = id
	j.mu.Unlock()
}

func (j *Job) setGridTotal(n int) {
	j.mu.Lock()
	j.gridTotal = n
	j.mu.Unlock()
}

// ExportURL returns the uploaded export URL of this run, if any.
func (j *Job) ExportURL() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.exportURL
}

func (j *Job) setExported(s export.Summary, url string) {
	j.mu.Lock()
	j.summary = &s
	j.exportURL = url
	j.mu.Unlock()
}

// Progress derives the counters from the checkpoint. Export totals replace
// the per-record contact counts once an export has run.
func (j *Job) Progress() model.Progress {
	c := j.store.Counts()

	j.mu.RLock()
	defer j.mu.RUnlock()

	p := model.Progress{
		GridTotal:        j.gridTotal,
		GridScanned:      c.Scanned,
		PlacesFound:      c.Candidates,
		PlacesScraped:    c.DetailsOK,
		PlacesFailed:     c.DetailsFailed,
		EmailsScraped:    c.EmailsChecked,
		EmailsFound:      c.EmailsFound,
		TotalWithPhone:   c.WithPhone,
		TotalWithEmail:   c.EmailsFound,
		TotalWithWebsite: c.WithWebsite,
	}
	if j.summary != nil {
		p.TotalWithPhone = j.summary.WithPhone
		p.TotalWithEmail = j.summary.WithEmail
		p.TotalWithWebsite = j.summary.WithWebsite
	}
	return p
}

// Meta builds the meta record for the current state.
func (j *Job) Meta() model.JobMeta {
	return model.JobMeta{
		RemoteID: j.RemoteID(),
		LocalID:  j.id,
		Criteria: j.criteria,
		Status:   j.Status(),
		Progress: j.Progress(),
	}
}

func (j *Job) saveMeta() {
	if err := j.store.SaveMeta(j.Meta()); err != nil {
		j.log.Warn("failed to save job meta", zap.Error(err))
	}
}

// CanResume reports whether the job has local data worth resuming.
func (j *Job) CanResume() bool {
	return resume.CanResume(j.Status(), j.store.HasArtifactFiles())
}

// ResumeStep describes where a resume would pick up.
func (j *Job) ResumeStep() string {
	return resume.Describe(j.store.Counts())
}

// CSVName is the file name of the CSV export.
func (j *Job) CSVName() string {
	return export.Slug(j.criteria.Niche, j.criteria.Region) + ".csv"
}

// XLSXName is the file name of the spreadsheet export.
func (j *Job) XLSXName() string {
	return export.Slug(j.criteria.Niche, j.criteria.Region) + ".xlsx"
}

// ExportPath returns the local CSV export, or "" when none has been written.
func (j *Job) ExportPath() string {
	path := j.store.Path(j.CSVName())
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}
