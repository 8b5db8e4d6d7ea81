// Package model defines the data types shared by the lead collection pipeline.
package model

// MaxErrorLen bounds the error text kept on a failed DetailRecord.
const MaxErrorLen = 200

// DetailRecord holds the enriched fields for one candidate, or a failure
// marker when enrichment did not succeed.
type DetailRecord struct {
	PlaceID   string `json:"place_id"`
	Name      string `json:"name,omitempty"`
	Address   string `json:"address,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Website   string `json:"website,omitempty"`
	SourceURL string `json:"google_maps_url,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Failed reports whether the record is a failure marker.
func (r DetailRecord) Failed() bool { return r.Error != "" }

// NeedsEmails reports whether the record qualifies for contact extraction.
func (r DetailRecord) NeedsEmails() bool { return !r.Failed() && r.Website != "" }

// FailedDetail builds a failure marker for id, truncating the error text.
func FailedDetail(id string, err error) DetailRecord {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	if len(msg) > MaxErrorLen {
		msg = msg[:MaxErrorLen]
	}
	return DetailRecord{PlaceID: id, Error: msg}
}

// Criteria describes what a job collects and where.
type Criteria struct {
	Niche     string `json:"niche"`
	Region    string `json:"region"`
	RegionKey string `json:"region_key"`
}

// Progress holds the counters reported for a job. Every field is derived from
// checkpoint artifact sizes.
type Progress struct {
	GridTotal        int `json:"gridTotal"`
	GridScanned      int `json:"gridScanned"`
	PlacesFound      int `json:"placesFound"`
	PlacesScraped    int `json:"placesScraped"`
	PlacesFailed     int `json:"placesFailed"`
	EmailsScraped    int `json:"emailsScraped"`
	EmailsFound      int `json:"emailsFound"`
	TotalWithPhone   int `json:"totalWithPhone"`
	TotalWithEmail   int `json:"totalWithEmail"`
	TotalWithWebsite int `json:"totalWithWebsite"`
}

// JobMeta is the persisted summary used for fast restart display. It is never
// authoritative over checkpoint contents.
type JobMeta struct {
	RemoteID string   `json:"firebase_job_id,omitempty"`
	LocalID  string   `json:"local_id"`
	Criteria
	Status   Status   `json:"status"`
	Progress Progress `json:"progress"`
}
