package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/lead-scraper/internal/checkpoint"
	"github.com/sells-group/lead-scraper/internal/export"
	"github.com/sells-group/lead-scraper/internal/grid"
	"github.com/sells-group/lead-scraper/internal/ledger"
	"github.com/sells-group/lead-scraper/internal/model"
)

// testTable has one region producing a 3x3 grid at the default spacing.
func testTable() *grid.Table {
	return &grid.Table{
		Regions: map[string]grid.Region{
			"test": {Name: "Test Region", BoundingBox: grid.BoundingBox{MinLat: 37.0, MaxLat: 38.0, MinLng: -112.0, MaxLng: -111.0}},
		},
		States: map[string]grid.BoundingBox{},
	}
}

func testOptions() Options {
	return Options{
		FailureThreshold: 10,
		Spacing:          grid.DefaultSpacing,
		Scan:             Pacing{PushEvery: 5},
		Scrape:           Pacing{PushEvery: 10},
		Emails:           Pacing{PushEvery: 10},
	}
}

var testCriteria = model.Criteria{Niche: "plumbers", Region: "Test Region", RegionKey: "test"}

func newTestJob(t *testing.T, dir string) *Job {
	t.Helper()
	store, err := checkpoint.Open(dir)
	require.NoError(t, err)
	return NewJob("job1", testCriteria, store, zap.NewNop())
}

func restoreTestJob(t *testing.T, dir string) *Job {
	t.Helper()
	meta, err := checkpoint.LoadMeta(dir)
	require.NoError(t, err)
	require.NotNil(t, meta)
	store, err := checkpoint.Open(dir)
	require.NoError(t, err)
	return RestoreJob(*meta, store, zap.NewNop())
}

func pointID(lat, lng float64) string {
	return fmt.Sprintf("p%.1f_%.1f", lat, lng)
}

// fakeSearcher returns one id per point plus an id shared by every point.
type fakeSearcher struct {
	mu     sync.Mutex
	calls  int
	errAt  map[string]error
	onCall func(n int)
}

func (f *fakeSearcher) SearchAt(_ context.Context, query string, lat, lng float64) ([]string, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	err := f.errAt[grid.NewPoint(lat, lng).Key()]
	f.mu.Unlock()
	if f.onCall != nil {
		f.onCall(n)
	}
	if err != nil {
		return []string{"partial"}, err
	}
	return []string{pointID(lat, lng), "shared"}, nil
}

// fakeDetails returns a record derived from the id. Scripted errors are
// consumed per id, one per call.
type fakeDetails struct {
	mu      sync.Mutex
	calls   map[string]int
	total   int
	errs    map[string][]error
	failAll error
	noName  bool
	onCall  func(n int)
}

func (f *fakeDetails) FetchDetail(_ context.Context, id string) (model.DetailRecord, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[id]++
	f.total++
	n := f.total
	var err error
	if q := f.errs[id]; len(q) > 0 {
		err, f.errs[id] = q[0], q[1:]
	}
	f.mu.Unlock()

	if f.onCall != nil {
		f.onCall(n)
	}
	if f.failAll != nil {
		return model.DetailRecord{}, f.failAll
	}
	if err != nil {
		return model.DetailRecord{}, err
	}

	rec := model.DetailRecord{
		PlaceID:   id,
		Address:   "1 Main St",
		SourceURL: "https://www.google.com/maps/place/?q=place_id:" + id,
	}
	if !f.noName {
		rec.Name = "Biz " + id
	}
	if len(id)%2 == 0 {
		rec.Phone = "(555) 010-0000"
	}
	if !strings.HasSuffix(id, "0") {
		rec.Website = "https://" + id + ".example.com"
	}
	return rec, nil
}

func (f *fakeDetails) callsFor(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

// fakeEmails finds an address on every site except those for "shared".
type fakeEmails struct {
	mu    sync.Mutex
	sites []string
}

func (f *fakeEmails) ExtractEmails(_ context.Context, website string) []string {
	f.mu.Lock()
	f.sites = append(f.sites, website)
	f.mu.Unlock()
	if strings.Contains(website, "shared") {
		return []string{}
	}
	host := strings.TrimPrefix(website, "https://")
	return []string{"info@" + host}
}

// fakeLedger records ledger traffic in memory.
type fakeLedger struct {
	mu       sync.Mutex
	created  int
	updates  []ledger.Update
	rows     []export.Row
	csvName  string
	csvBytes []byte
}

func (f *fakeLedger) Enabled() bool { return true }

func (f *fakeLedger) CreateJob(context.Context, string, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	return fmt.Sprintf("R%d", f.created), nil
}

func (f *fakeLedger) UpdateJob(_ context.Context, _ string, u ledger.Update) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, u)
	return nil
}

func (f *fakeLedger) UploadResults(_ context.Context, _ string, rows []export.Row) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = rows
	return nil
}

func (f *fakeLedger) UploadCSV(_ context.Context, _ string, content []byte, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.csvBytes = content
	f.csvName = name
	return "https://storage.example.com/" + name, nil
}

func (f *fakeLedger) GetJob(context.Context, string) (*ledger.Job, error) { return nil, nil }

func (f *fakeLedger) ListJobs(context.Context) ([]ledger.Job, error) { return nil, nil }

func (f *fakeLedger) lastUpdate() ledger.Update {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updates[len(f.updates)-1]
}

func jobDir(t *testing.T) string {
	return filepath.Join(t.TempDir(), "plumbers_test_region_job1")
}
