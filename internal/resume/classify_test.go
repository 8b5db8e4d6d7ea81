package resume

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/lead-scraper/internal/checkpoint"
	"github.com/sells-group/lead-scraper/internal/model"
)

func status(t *testing.T, label string) model.Status {
	t.Helper()
	s, err := model.ParseStatus(label)
	if err != nil {
		t.Fatalf("parse %q: %v", label, err)
	}
	return s
}

func TestClassify(t *testing.T) {
	none := Artifacts{}
	cands := Artifacts{ScanProgress: true, Candidates: true}
	details := Artifacts{ScanProgress: true, Candidates: true, Details: true}
	all := Artifacts{ScanProgress: true, Candidates: true, Details: true, Emails: true}

	tests := []struct {
		name string
		last string
		a    Artifacts
		want string
	}{
		{"complete is terminal", "complete", none, "complete"},
		{"scraping corroborated by candidates", "scraping", cands, "scraping"},
		{"scraping without candidates", "scraping", none, "scraping_interrupted"},
		{"scanning never corroborated", "scanning", cands, "scanning_interrupted"},
		{"scan_complete corroborated", "scan_complete", cands, "scan_complete"},
		{"scrape_complete corroborated by details", "scrape_complete", details, "scrape_complete"},
		{"emails corroborated by details", "emails", details, "emails"},
		{"emails corroborated by emails", "emails", all, "emails"},
		{"emails without downstream data", "emails", cands, "emails_interrupted"},
		{"exporting corroborated by emails", "exporting", all, "exporting"},
		{"exporting without emails", "exporting", details, "exporting_interrupted"},
		{"emails_complete without data kept", "emails_complete", none, "emails_complete"},
		{"created kept", "created", none, "created"},
		{"already interrupted stays", "scraping_interrupted", cands, "scraping_interrupted"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(status(t, tt.last), tt.a)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestCanResume(t *testing.T) {
	assert.False(t, CanResume(model.StatusOf(model.PhaseComplete), true))
	assert.False(t, CanResume(model.StatusOf(model.PhaseCreated), true))
	assert.False(t, CanResume(model.StatusOf(model.PhaseScraping), false))
	assert.True(t, CanResume(model.Status{Phase: model.PhaseScanning, Interrupted: true}, true))
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "Start from beginning", Describe(checkpoint.Counts{}))
	assert.Equal(t, "Resume from grid scanning (4 cells scanned, 7 places found)",
		Describe(checkpoint.Counts{Scanned: 4, Candidates: 7}))
	assert.Equal(t, "Resume from detail scraping (3/7 places done)",
		Describe(checkpoint.Counts{Scanned: 9, Candidates: 7, Details: 3}))
	assert.Equal(t, "Resume from email scraping (2 sites checked)",
		Describe(checkpoint.Counts{Candidates: 7, Details: 7, EmailsChecked: 2}))
}
