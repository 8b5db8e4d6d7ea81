package jobs

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-scraper/internal/checkpoint"
	"github.com/sells-group/lead-scraper/internal/grid"
	"github.com/sells-group/lead-scraper/internal/ledger"
	"github.com/sells-group/lead-scraper/internal/model"
	"github.com/sells-group/lead-scraper/internal/pipeline"
)

// DefaultRegion is used when a start request names no region.
const DefaultRegion = "utah"

var (
	ErrJobNotFound     = eris.New("jobs: job not found")
	ErrAlreadyRunning  = eris.New("jobs: job is already running")
	ErrNotResumable    = eris.New("jobs: job cannot be resumed")
	ErrNicheRequired   = eris.New("jobs: niche is required")
	ErrShutdownTimeout = eris.New("jobs: timed out waiting for jobs to stop")
)

// Runner executes a job. The pipeline Orchestrator implements it.
type Runner interface {
	Run(ctx context.Context, j *pipeline.Job) error
	Resume(ctx context.Context, j *pipeline.Job) error
}

type handle struct {
	job    *pipeline.Job
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func (h *handle) running() bool {
	if h.done == nil {
		return false
	}
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Option configures a Manager.
type Option func(*Manager)

// WithCacheTTL sets the validity window of the remote job list.
func WithCacheTTL(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.cache.ttl = d
		}
	}
}

// WithLogger sets the base logger of jobs.
func WithLogger(log *zap.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// WithClock overrides the time source used for heartbeat staleness.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
		m.cache.now = now
	}
}

// Manager owns every job known to this process. Each job runs in its own
// goroutine; jobs share nothing but the remote job cache.
type Manager struct {
	root    string
	runner  Runner
	regions *grid.Table
	ledger  *ledger.BestEffort
	cache   *remoteCache
	log     *zap.Logger
	now     func() time.Time

	mu    sync.Mutex
	jobs  map[string]*handle
	order []string
}

// NewManager creates a Manager storing job checkpoints under root.
func NewManager(root string, runner Runner, regions *grid.Table, led *ledger.BestEffort, opts ...Option) *Manager {
	if regions == nil {
		regions = grid.DefaultTable()
	}
	if led == nil {
		led = ledger.NewBestEffort(nil, nil)
	}
	m := &Manager{
		root:    root,
		runner:  runner,
		regions: regions,
		ledger:  led,
		log:     zap.L(),
		now:     time.Now,
		jobs:    make(map[string]*handle),
	}
	m.cache = &remoteCache{ledger: led, ttl: DefaultCacheTTL, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start creates a fresh job and runs it in the background.
func (m *Manager) Start(niche, regionKey string) (string, error) {
	niche = strings.TrimSpace(niche)
	if niche == "" {
		return "", ErrNicheRequired
	}
	regionKey = strings.TrimSpace(regionKey)
	if regionKey == "" {
		regionKey = DefaultRegion
	}

	criteria := model.Criteria{
		Niche:     niche,
		Region:    m.regions.DisplayName(regionKey),
		RegionKey: regionKey,
	}
	id := uuid.NewString()[:8]

	store, err := checkpoint.Open(JobDir(m.root, criteria.Niche, criteria.Region, id))
	if err != nil {
		return "", eris.Wrap(err, "jobs: open checkpoint")
	}
	job := pipeline.NewJob(id, criteria, store, m.log)

	m.mu.Lock()
	h := m.addLocked(job)
	m.launchLocked(h, m.runner.Run)
	m.mu.Unlock()

	job.Logger().Info("job started",
		zap.String("region", criteria.Region),
		zap.String("dir", store.Dir()),
	)
	return id, nil
}

// Resume restarts a registered job from its checkpoint.
func (m *Manager) Resume(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if h.running() {
		return ErrAlreadyRunning
	}
	if !h.job.CanResume() {
		return ErrNotResumable
	}
	m.launchLocked(h, m.runner.Resume)
	return nil
}

// Stop asks a running job to halt at its next item boundary. Stopping an
// idle job is a no-op.
func (m *Manager) Stop(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if h.cancel != nil {
		h.cancel()
	}
	return nil
}

// Wait blocks until the job's current run returns and yields its error.
func (m *Manager) Wait(ctx context.Context, id string) error {
	m.mu.Lock()
	h, ok := m.jobs[id]
	var done chan struct{}
	if ok {
		done = h.done
	}
	m.mu.Unlock()
	if !ok {
		return ErrJobNotFound
	}
	if done == nil {
		return nil
	}
	select {
	case <-done:
		m.mu.Lock()
		defer m.mu.Unlock()
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops every running job and waits for them to return.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	var pending []*handle
	for _, h := range m.jobs {
		if h.running() {
			h.cancel()
			pending = append(pending, h)
		}
	}
	m.mu.Unlock()

	for _, h := range pending {
		select {
		case <-h.done:
		case <-ctx.Done():
			return ErrShutdownTimeout
		}
	}
	return nil
}

// RegisterResumable adds interrupted jobs found under the storage root
// without running them. It returns how many were registered.
func (m *Manager) RegisterResumable() (int, error) {
	found, err := DiscoverResumable(m.root, m.log)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, job := range found {
		if _, ok := m.jobs[job.ID()]; ok {
			continue
		}
		m.addLocked(job)
		n++
	}
	return n, nil
}

// State returns a local job's live state, falling back to the ledger.
func (m *Manager) State(ctx context.Context, id string) (View, error) {
	m.mu.Lock()
	if h, ok := m.jobs[id]; ok {
		v := localView(h)
		m.mu.Unlock()
		return v, nil
	}
	m.mu.Unlock()

	if remote := m.ledger.GetJob(ctx, id); remote != nil {
		return cloudView(*remote, m.now()), nil
	}
	return View{}, ErrJobNotFound
}

// ListAll returns local jobs merged with the remote job list.
func (m *Manager) ListAll(ctx context.Context) []View {
	m.mu.Lock()
	local := make([]View, 0, len(m.order))
	for _, id := range m.order {
		local = append(local, localView(m.jobs[id]))
	}
	m.mu.Unlock()

	return Merge(local, m.cache.list(ctx), m.now())
}

// ExportPath returns the local CSV export of a job, or "".
func (m *Manager) ExportPath(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.jobs[id]; ok {
		return h.job.ExportPath()
	}
	return ""
}

// ExportURL returns the uploaded export URL for a local or remote job id,
// or "" when none is known.
func (m *Manager) ExportURL(ctx context.Context, id string) string {
	remoteID := id
	m.mu.Lock()
	if h, ok := m.jobs[id]; ok {
		if url := h.job.ExportURL(); url != "" {
			m.mu.Unlock()
			return url
		}
		remoteID = h.job.RemoteID()
	}
	m.mu.Unlock()
	if remoteID == "" {
		return ""
	}

	m.cache.list(ctx)
	if j, ok := m.cache.lookup(remoteID); ok {
		return j.CSVURL
	}
	return ""
}

func (m *Manager) addLocked(job *pipeline.Job) *handle {
	h := &handle{job: job}
	m.jobs[job.ID()] = h
	m.order = append(m.order, job.ID())
	return h
}

func (m *Manager) launchLocked(h *handle, fn func(context.Context, *pipeline.Job) error) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	h.cancel = cancel
	h.done = done
	h.err = nil

	go func() {
		defer close(done)
		defer cancel()
		err := fn(ctx, h.job)
		if err != nil {
			h.job.Logger().Error("job halted", zap.Error(err))
		}
		m.mu.Lock()
		h.err = err
		m.mu.Unlock()
	}()
}

func localView(h *handle) View {
	j := h.job
	c := j.Criteria()
	running := h.running()
	v := View{
		ID:        j.ID(),
		Niche:     c.Niche,
		Region:    c.Region,
		Status:    j.Status().String(),
		Progress:  j.Progress(),
		Log:       j.Logs(pipeline.LogTailSize),
		CSVPath:   j.ExportPath(),
		CSVURL:    j.ExportURL(),
		RemoteID:  j.RemoteID(),
		Source:    SourceLocal,
		Running:   running,
		CanResume: !running && j.CanResume(),
	}
	if v.CanResume {
		v.ResumeStep = j.ResumeStep()
	}
	return v
}
