// Package jobs owns the set of jobs running in this process and presents one
// merged view of local and remote (ledger) jobs.
package jobs

import (
	"time"

	"github.com/sells-group/lead-scraper/internal/ledger"
	"github.com/sells-group/lead-scraper/internal/model"
)

// StaleAfter is how long a remote in-progress job may go without a heartbeat
// before it is shown as interrupted.
const StaleAfter = 120 * time.Second

// View sources.
const (
	SourceLocal = "local"
	SourceCloud = "cloud"
)

// View is the state of one job as shown to callers.
type View struct {
	ID         string         `json:"id"`
	Niche      string         `json:"niche"`
	Region     string         `json:"region"`
	Status     string         `json:"status"`
	Progress   model.Progress `json:"progress"`
	Log        []string       `json:"log"`
	CSVPath    string         `json:"csv_path,omitempty"`
	CSVURL     string         `json:"csv_url,omitempty"`
	CanResume  bool           `json:"can_resume"`
	ResumeStep string         `json:"resume_step,omitempty"`
	RemoteID   string         `json:"firebase_job_id,omitempty"`
	Source     string         `json:"source"`
	Running    bool           `json:"running"`

	// Remote copy of a local job.
	CloudStatus   string          `json:"cloud_status,omitempty"`
	CloudProgress *model.Progress `json:"cloud_progress,omitempty"`

	// Cloud-only fields.
	TotalResults int    `json:"total_results,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
	UpdatedAt    string `json:"updated_at,omitempty"`
}

// Stale reports whether a remote job's heartbeat is missing, unparseable or
// older than StaleAfter.
func Stale(j ledger.Job, now time.Time) bool {
	hb, ok := j.Heartbeat()
	if !ok {
		return true
	}
	return now.Sub(hb) > StaleAfter
}

// effectiveStatus relabels an in-progress remote status as interrupted when
// its heartbeat is stale. Unknown labels pass through.
func effectiveStatus(j ledger.Job, now time.Time) string {
	s, err := model.ParseStatus(j.Status)
	if err != nil {
		return j.Status
	}
	if s.Phase.InProgress() && !s.Interrupted && Stale(j, now) {
		return s.Interrupt().String()
	}
	return s.String()
}

// cloudView renders a remote job that has no local counterpart.
func cloudView(j ledger.Job, now time.Time) View {
	return View{
		ID:           j.ID,
		Niche:        j.Niche,
		Region:       j.Region,
		Status:       effectiveStatus(j, now),
		Progress:     j.Progress,
		Log:          []string{},
		CSVURL:       j.CSVURL,
		RemoteID:     j.ID,
		Source:       SourceCloud,
		TotalResults: j.TotalResults,
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
	}
}

// Merge combines local views with the remote job list. Local views come
// first and win over the remote entry carrying the same remote id; that
// entry's status and progress are attached as supplementary fields. Remote
// jobs not claimed by a local view follow as cloud-only entries.
func Merge(local []View, remote []ledger.Job, now time.Time) []View {
	byID := make(map[string]ledger.Job, len(remote))
	for _, r := range remote {
		byID[r.ID] = r
	}

	out := make([]View, 0, len(local)+len(remote))
	claimed := make(map[string]struct{}, len(local))
	for _, v := range local {
		v.Source = SourceLocal
		if v.RemoteID != "" {
			claimed[v.RemoteID] = struct{}{}
			if r, ok := byID[v.RemoteID]; ok {
				progress := r.Progress
				v.CloudStatus = r.Status
				v.CloudProgress = &progress
			}
		}
		out = append(out, v)
	}

	for _, r := range remote {
		if _, ok := claimed[r.ID]; ok {
			continue
		}
		claimed[r.ID] = struct{}{}
		out = append(out, cloudView(r, now))
	}
	return out
}
