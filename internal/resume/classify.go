// Package resume infers where a job really stands from its persisted
// artifacts rather than trusting a possibly stale recorded status.
package resume

import (
	"fmt"

	"github.com/sells-group/lead-scraper/internal/checkpoint"
	"github.com/sells-group/lead-scraper/internal/model"
)

// Artifacts records which checkpoint artifacts hold data.
type Artifacts struct {
	ScanProgress bool
	Candidates   bool
	Details      bool
	Emails       bool
}

// ArtifactsOf derives artifact presence from checkpoint counts.
func ArtifactsOf(c checkpoint.Counts) Artifacts {
	return Artifacts{
		ScanProgress: c.HasScanProgress(),
		Candidates:   c.HasCandidates(),
		Details:      c.HasDetails(),
		Emails:       c.HasEmails(),
	}
}

// Classify returns the effective status of a job given its last recorded
// status. A recorded status is kept only when the artifacts it implies exist;
// an in-progress status without corroboration is marked interrupted.
func Classify(last model.Status, a Artifacts) model.Status {
	if last.Is(model.PhaseComplete) {
		return last
	}
	if a.Emails && last.In(model.PhaseEmails, model.PhaseEmailsComplete, model.PhaseExporting, model.PhaseComplete) {
		return last
	}
	if a.Details && last.In(model.PhaseScrapeComplete, model.PhaseEmails, model.PhaseEmailsComplete) {
		return last
	}
	if a.Candidates && last.In(model.PhaseScanComplete, model.PhaseScraping, model.PhaseScrapeComplete) {
		return last
	}
	return last.Interrupt()
}

// CanResume reports whether a job in status s has local data worth resuming.
func CanResume(s model.Status, hasArtifactFiles bool) bool {
	if s.Is(model.PhaseComplete) || s.Is(model.PhaseCreated) {
		return false
	}
	return hasArtifactFiles
}

// Describe returns a human readable resume point. It is for display only.
func Describe(c checkpoint.Counts) string {
	a := ArtifactsOf(c)
	switch {
	case a.Emails:
		return fmt.Sprintf("Resume from email scraping (%d sites checked)", c.EmailsChecked)
	case a.Details:
		return fmt.Sprintf("Resume from detail scraping (%d/%d places done)", c.Details, c.Candidates)
	case a.Candidates:
		return fmt.Sprintf("Resume from grid scanning (%d cells scanned, %d places found)", c.Scanned, c.Candidates)
	default:
		return "Start from beginning"
	}
}
