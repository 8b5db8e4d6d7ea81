// Package ledger talks to the remote job ledger shared by every worker. The
// ledger is best effort: the local checkpoint stays authoritative.
package ledger

import (
	"context"
	"time"

	"github.com/sells-group/lead-scraper/internal/export"
	"github.com/sells-group/lead-scraper/internal/model"
)

// Job is the ledger's view of a job.
type Job struct {
	ID            string         `json:"id"`
	Niche         string         `json:"niche"`
	Region        string         `json:"region"`
	Status        string         `json:"status"`
	Progress      model.Progress `json:"progress"`
	LastHeartbeat string         `json:"lastHeartbeat,omitempty"`
	TotalResults  int            `json:"totalResults"`
	CSVURL        string         `json:"csvUrl,omitempty"`
	CreatedAt     string         `json:"createdAt,omitempty"`
	UpdatedAt     string         `json:"updatedAt,omitempty"`
}

// Heartbeat parses LastHeartbeat. It reports false when the value is missing
// or unparseable.
func (j Job) Heartbeat() (time.Time, bool) {
	if j.LastHeartbeat == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, j.LastHeartbeat)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Update is a partial job update. Nil fields are left unchanged.
type Update struct {
	Status       *model.Status
	Progress     *model.Progress
	TotalResults *int
	ExportURL    *string
}

// Ledger is the remote ledger protocol.
type Ledger interface {
	// Enabled reports whether calls reach a real ledger.
	Enabled() bool
	CreateJob(ctx context.Context, niche, region string) (string, error)
	UpdateJob(ctx context.Context, jobID string, u Update) error
	UploadResults(ctx context.Context, jobID string, rows []export.Row) error
	UploadCSV(ctx context.Context, jobID string, content []byte, fileName string) (string, error)
	// GetJob returns nil when the ledger does not know the job.
	GetJob(ctx context.Context, jobID string) (*Job, error)
	ListJobs(ctx context.Context) ([]Job, error)
}

// Nop is the ledger used when no URL is configured.
type Nop struct{}

func (Nop) Enabled() bool { return false }
func (Nop) CreateJob(context.Context, string, string) (string, error) { return "", nil }
func (Nop) UpdateJob(context.Context, string, Update) error { return nil }
func (Nop) UploadResults(context.Context, string, []export.Row) error { return nil }
func (Nop) UploadCSV(context.Context, string, []byte, string) (string, error) { return "", nil }
func (Nop) GetJob(context.Context, string) (*Job, error) { return nil, nil }
func (Nop) ListJobs(context.Context) ([]Job, error) { return nil, nil }

// New returns an HTTP ledger for url, or Nop when url is empty.
func New(url string, timeout time.Duration) Ledger {
	if url == "" {
		return Nop{}
	}
	return NewClient(url, WithTimeout(timeout))
}
