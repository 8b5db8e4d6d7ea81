package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/lead-scraper/internal/checkpoint"
	"github.com/sells-group/lead-scraper/internal/grid"
	"github.com/sells-group/lead-scraper/internal/ledger"
	"github.com/sells-group/lead-scraper/internal/model"
	"github.com/sells-group/lead-scraper/internal/resilience"
)

func newTestOrchestrator(s PlaceSearcher, d DetailFetcher, e EmailExtractor, l ledger.Ledger) *Orchestrator {
	return New(testTable(), s, d, e, ledger.NewBestEffort(l, zap.NewNop()), testOptions())
}

func TestRun_FullFlow(t *testing.T) {
	dir := jobDir(t)
	job := newTestJob(t, dir)
	fl := &fakeLedger{}
	o := newTestOrchestrator(&fakeSearcher{}, &fakeDetails{}, &fakeEmails{}, fl)

	require.NoError(t, o.Run(context.Background(), job))

	assert.Equal(t, "complete", job.Status().String())
	assert.Equal(t, "R1", job.RemoteID())

	p := job.Progress()
	assert.Equal(t, 9, p.GridTotal)
	assert.Equal(t, 9, p.GridScanned)
	assert.Equal(t, 10, p.PlacesFound)
	assert.Equal(t, 10, p.PlacesScraped)
	assert.Equal(t, 0, p.PlacesFailed)
	assert.Equal(t, 4, p.EmailsScraped)
	assert.Equal(t, 3, p.EmailsFound)
	assert.Equal(t, 3, p.TotalWithEmail)
	assert.Equal(t, 4, p.TotalWithWebsite)

	csvPath := job.ExportPath()
	require.NotEmpty(t, csvPath)
	assert.Equal(t, "plumbers_test_region.csv", filepath.Base(csvPath))
	_, err := os.Stat(filepath.Join(dir, "plumbers_test_region.xlsx"))
	assert.NoError(t, err)

	// Ledger received the export and a final completion update.
	assert.Len(t, fl.rows, 10)
	assert.Equal(t, "plumbers_test_region.csv", fl.csvName)
	last := fl.lastUpdate()
	require.NotNil(t, last.Status)
	assert.True(t, last.Status.Is(model.PhaseComplete))
	require.NotNil(t, last.TotalResults)
	assert.Equal(t, 10, *last.TotalResults)
	require.NotNil(t, last.ExportURL)
	assert.Equal(t, "https://storage.example.com/plumbers_test_region.csv", *last.ExportURL)
	assert.Equal(t, *last.ExportURL, job.ExportURL())

	// Meta on disk mirrors the final state.
	meta, err := checkpoint.LoadMeta(dir)
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, "R1", meta.RemoteID)
	assert.True(t, meta.Status.Is(model.PhaseComplete))
	assert.Equal(t, 10, meta.Progress.PlacesFound)
}

func TestRun_WithoutLedger(t *testing.T) {
	job := newTestJob(t, jobDir(t))
	o := New(testTable(), &fakeSearcher{}, &fakeDetails{}, &fakeEmails{}, nil, testOptions())

	require.NoError(t, o.Run(context.Background(), job))
	assert.Empty(t, job.RemoteID())
	assert.True(t, job.Status().Is(model.PhaseComplete))
	assert.Empty(t, job.ExportURL())
}

func TestResume_EquivalentToUninterruptedRun(t *testing.T) {
	// Uninterrupted reference run.
	refDir := jobDir(t)
	ref := newTestJob(t, refDir)
	require.NoError(t, newTestOrchestrator(&fakeSearcher{}, &fakeDetails{}, &fakeEmails{}, nil).
		Run(context.Background(), ref))

	// Same job stopped partway through enrichment.
	dir := jobDir(t)
	job := newTestJob(t, dir)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	details := &fakeDetails{onCall: func(n int) {
		if n == 4 {
			cancel()
		}
	}}
	require.NoError(t, newTestOrchestrator(&fakeSearcher{}, details, &fakeEmails{}, nil).Run(ctx, job))

	assert.True(t, job.Status().Is(model.PhaseScraping))
	// The in-flight item finished and was recorded.
	assert.Equal(t, 4, job.Store().Counts().Details)
	assert.Empty(t, job.ExportPath())

	// Restart from disk and resume.
	restored := restoreTestJob(t, dir)
	assert.Equal(t, "scraping", restored.Status().String())
	assert.True(t, restored.CanResume())
	assert.Equal(t, "Resume from detail scraping (4/10 places done)", restored.ResumeStep())

	searcher := &fakeSearcher{}
	resumedDetails := &fakeDetails{}
	require.NoError(t, newTestOrchestrator(searcher, resumedDetails, &fakeEmails{}, nil).
		Resume(context.Background(), restored))

	assert.True(t, restored.Status().Is(model.PhaseComplete))
	assert.Zero(t, searcher.calls, "scan was already complete")
	assert.Equal(t, 6, resumedDetails.total, "only the remaining candidates are fetched")

	for _, name := range []string{checkpoint.ProgressFile, checkpoint.CandidatesFile, checkpoint.DetailsFile, checkpoint.EmailsFile, "plumbers_test_region.csv"} {
		want, err := os.ReadFile(filepath.Join(refDir, name))
		require.NoError(t, err)
		got, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		assert.Equal(t, string(want), string(got), name)
	}
}

func TestRun_StopDuringScan(t *testing.T) {
	dir := jobDir(t)
	job := newTestJob(t, dir)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	searcher := &fakeSearcher{onCall: func(n int) {
		if n == 3 {
			cancel()
		}
	}}
	details := &fakeDetails{}

	require.NoError(t, newTestOrchestrator(searcher, details, &fakeEmails{}, nil).Run(ctx, job))

	assert.True(t, job.Status().Is(model.PhaseScanning), "stop forces no transition")
	assert.Equal(t, 3, job.Store().Counts().Scanned)
	assert.Zero(t, details.total)

	// scanning with candidates is not corroborated by a later artifact.
	restored := restoreTestJob(t, dir)
	assert.Equal(t, "scanning_interrupted", restored.Status().String())
	assert.True(t, restored.CanResume())

	require.NoError(t, newTestOrchestrator(&fakeSearcher{}, &fakeDetails{}, &fakeEmails{}, nil).
		Resume(context.Background(), restored))
	assert.True(t, restored.Status().Is(model.PhaseComplete))
	assert.Equal(t, 9, restored.Store().Counts().Scanned)
	assert.Equal(t, 10, restored.Store().Counts().Candidates)
}

func TestDiscover_FailedPointKeepsPartialIDs(t *testing.T) {
	job := newTestJob(t, jobDir(t))
	bad := grid.NewPoint(37.5, -111.5).Key()
	searcher := &fakeSearcher{errAt: map[string]error{bad: assert.AnError}}
	o := newTestOrchestrator(searcher, &fakeDetails{}, &fakeEmails{}, nil)

	require.NoError(t, o.discover(context.Background(), job))

	keys := job.Store().ScannedKeys()
	assert.Len(t, keys, 8)
	assert.NotContains(t, keys, bad)
	assert.Contains(t, job.Store().Candidates(), "partial")

	// A later pass only revisits the failed point.
	searcher.errAt = nil
	before := searcher.calls
	require.NoError(t, o.discover(context.Background(), job))
	assert.Equal(t, before+1, searcher.calls)
	assert.Len(t, job.Store().ScannedKeys(), 9)
	assert.Contains(t, job.Store().Candidates(), pointID(37.5, -111.5))
}

func TestDiscover_FailureThreshold(t *testing.T) {
	job := newTestJob(t, jobDir(t))
	errAt := map[string]error{}
	for _, lng := range []float64{-112.0, -111.5, -111.0} {
		errAt[grid.NewPoint(37.0, lng).Key()] = assert.AnError
	}
	opts := testOptions()
	opts.FailureThreshold = 3
	o := New(testTable(), &fakeSearcher{errAt: errAt}, &fakeDetails{}, &fakeEmails{}, nil, opts)

	err := o.Run(context.Background(), job)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTooManyFailures)
	assert.True(t, job.Status().Is(model.PhaseScanning))
	assert.Zero(t, job.Store().Counts().Scanned)
}

func TestRun_UnknownRegion(t *testing.T) {
	store, err := checkpoint.Open(jobDir(t))
	require.NoError(t, err)
	job := NewJob("job1", model.Criteria{Niche: "plumbers", Region: "Atlantis", RegionKey: "atlantis"}, store, zap.NewNop())
	searcher := &fakeSearcher{}

	err = newTestOrchestrator(searcher, &fakeDetails{}, &fakeEmails{}, nil).Run(context.Background(), job)
	require.Error(t, err)
	assert.ErrorIs(t, err, grid.ErrUnknownRegion)
	assert.True(t, job.Status().Is(model.PhaseScanning))
	assert.Zero(t, searcher.calls)
}

func TestEnrich_FailureThreshold(t *testing.T) {
	job := newTestJob(t, jobDir(t))
	opts := testOptions()
	opts.FailureThreshold = 3
	details := &fakeDetails{failAll: assert.AnError}
	o := New(testTable(), &fakeSearcher{}, details, &fakeEmails{}, nil, opts)

	err := o.Run(context.Background(), job)
	assert.ErrorIs(t, err, ErrTooManyFailures)

	c := job.Store().Counts()
	assert.Equal(t, 3, c.Details)
	assert.Equal(t, 3, c.DetailsFailed)
	assert.Equal(t, 3, job.Progress().PlacesFailed)
	assert.True(t, job.Status().Is(model.PhaseScraping))
	assert.True(t, job.CanResume())

	for id, rec := range job.Store().Details() {
		assert.True(t, rec.Failed(), id)
		assert.Equal(t, id, rec.PlaceID)
	}
}

func TestEnrich_ThrottleRetriesSameItem(t *testing.T) {
	job := newTestJob(t, jobDir(t))
	throttled := resilience.NewStatusError("maps", 429, nil)
	details := &fakeDetails{errs: map[string][]error{"shared": {throttled}}}
	o := newTestOrchestrator(&fakeSearcher{}, details, &fakeEmails{}, nil)

	require.NoError(t, o.Run(context.Background(), job))

	assert.Equal(t, 2, details.callsFor("shared"))
	rec, ok := job.Store().Detail("shared")
	require.True(t, ok)
	assert.False(t, rec.Failed())
	assert.Zero(t, job.Store().Counts().DetailsFailed)
}

func TestEnrich_ThrottledTwiceIsFailure(t *testing.T) {
	job := newTestJob(t, jobDir(t))
	throttled := resilience.NewStatusError("maps", 429, nil)
	details := &fakeDetails{errs: map[string][]error{"shared": {throttled, throttled}}}
	o := newTestOrchestrator(&fakeSearcher{}, details, &fakeEmails{}, nil)

	require.NoError(t, o.Run(context.Background(), job))

	assert.Equal(t, 2, details.callsFor("shared"))
	rec, ok := job.Store().Detail("shared")
	require.True(t, ok)
	assert.True(t, rec.Failed())
	assert.Contains(t, rec.Error, "429")
}

func TestExtraction_EmptySetRecorded(t *testing.T) {
	job := newTestJob(t, jobDir(t))
	emails := &fakeEmails{}
	o := newTestOrchestrator(&fakeSearcher{}, &fakeDetails{}, emails, nil)

	require.NoError(t, o.Run(context.Background(), job))

	got := job.Store().Emails()
	set, ok := got["shared"]
	require.True(t, ok, "checked site without emails is recorded")
	assert.Empty(t, set)
	assert.Equal(t, []string{"info@" + pointID(37.5, -111.5) + ".example.com"}, got[pointID(37.5, -111.5)])
	assert.Len(t, emails.sites, 4)
}

func TestExport_NoRowsLeavesJobIncomplete(t *testing.T) {
	job := newTestJob(t, jobDir(t))
	fl := &fakeLedger{}
	o := newTestOrchestrator(&fakeSearcher{}, &fakeDetails{noName: true}, &fakeEmails{}, fl)

	require.NoError(t, o.Run(context.Background(), job))

	assert.True(t, job.Status().Is(model.PhaseExporting))
	assert.Empty(t, job.ExportPath())
	assert.Nil(t, fl.rows)
}

func TestResume_SkipsSatisfiedStages(t *testing.T) {
	dir := jobDir(t)
	job := newTestJob(t, dir)
	require.NoError(t, newTestOrchestrator(&fakeSearcher{}, &fakeDetails{}, &fakeEmails{}, nil).
		Run(context.Background(), job))

	fl := &fakeLedger{}
	searcher, details, emails := &fakeSearcher{}, &fakeDetails{}, &fakeEmails{}
	restored := restoreTestJob(t, dir)
	require.NoError(t, newTestOrchestrator(searcher, details, emails, fl).Resume(context.Background(), restored))

	assert.Zero(t, searcher.calls)
	assert.Zero(t, details.total)
	assert.Empty(t, emails.sites)
	assert.Equal(t, 1, fl.created, "a local-only job gets a ledger id on resume")
	assert.True(t, restored.Status().Is(model.PhaseComplete))
}
