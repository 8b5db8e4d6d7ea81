package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-scraper/internal/ledger"
	"github.com/sells-group/lead-scraper/internal/model"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func heartbeat(ago time.Duration) string {
	return testNow.Add(-ago).Format(time.RFC3339Nano)
}

func TestMerge_LocalWinsOverRemoteDuplicate(t *testing.T) {
	local := []View{{ID: "abc12345", Status: "scraping", RemoteID: "R1", Progress: model.Progress{PlacesScraped: 40}}}
	remote := []ledger.Job{
		{ID: "R1", Status: "scan_complete", Progress: model.Progress{PlacesScraped: 10}, LastHeartbeat: heartbeat(time.Hour)},
	}

	merged := Merge(local, remote, testNow)

	require.Len(t, merged, 1)
	v := merged[0]
	assert.Equal(t, "abc12345", v.ID)
	assert.Equal(t, "scraping", v.Status)
	assert.Equal(t, SourceLocal, v.Source)
	assert.Equal(t, 40, v.Progress.PlacesScraped)
	assert.Equal(t, "scan_complete", v.CloudStatus)
	require.NotNil(t, v.CloudProgress)
	assert.Equal(t, 10, v.CloudProgress.PlacesScraped)
}

func TestMerge_LocalFirstThenCloudOnly(t *testing.T) {
	local := []View{
		{ID: "l1", Status: "complete"},
		{ID: "l2", Status: "emails", RemoteID: "R2"},
	}
	remote := []ledger.Job{
		{ID: "R1", Niche: "dentists", Region: "Utah", Status: "complete", TotalResults: 12, CSVURL: "https://x/r1.csv", LastHeartbeat: heartbeat(time.Minute)},
		{ID: "R2", Status: "emails", LastHeartbeat: heartbeat(time.Second)},
		{ID: "R1", Status: "complete"},
	}

	merged := Merge(local, remote, testNow)

	require.Len(t, merged, 3)
	assert.Equal(t, []string{"l1", "l2", "R1"}, []string{merged[0].ID, merged[1].ID, merged[2].ID})
	assert.Empty(t, merged[0].CloudStatus, "no remote id, nothing attached")

	cloud := merged[2]
	assert.Equal(t, SourceCloud, cloud.Source)
	assert.Equal(t, "R1", cloud.RemoteID)
	assert.Equal(t, "dentists", cloud.Niche)
	assert.Equal(t, 12, cloud.TotalResults)
	assert.Equal(t, "https://x/r1.csv", cloud.CSVURL)
	assert.False(t, cloud.CanResume)
	assert.NotNil(t, cloud.Log)
}

func TestMerge_HeartbeatStaleness(t *testing.T) {
	tests := []struct {
		name      string
		status    string
		heartbeat string
		want      string
	}{
		{"stale 150s", "scraping", heartbeat(150 * time.Second), "scraping_interrupted"},
		{"fresh 90s", "scraping", heartbeat(90 * time.Second), "scraping"},
		{"exactly threshold", "scanning", heartbeat(StaleAfter), "scanning"},
		{"missing heartbeat", "emails", "", "emails_interrupted"},
		{"unparseable heartbeat", "exporting", "yesterday", "exporting_interrupted"},
		{"not in progress", "scrape_complete", heartbeat(time.Hour), "scrape_complete"},
		{"already interrupted", "scraping_interrupted", heartbeat(time.Hour), "scraping_interrupted"},
		{"unknown label", "error", heartbeat(time.Hour), "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			merged := Merge(nil, []ledger.Job{{ID: "R9", Status: tt.status, LastHeartbeat: tt.heartbeat}}, testNow)
			require.Len(t, merged, 1)
			assert.Equal(t, tt.want, merged[0].Status)
		})
	}
}

func TestStale(t *testing.T) {
	assert.True(t, Stale(ledger.Job{}, testNow))
	assert.True(t, Stale(ledger.Job{LastHeartbeat: heartbeat(121 * time.Second)}, testNow))
	assert.False(t, Stale(ledger.Job{LastHeartbeat: heartbeat(119 * time.Second)}, testNow))
}
