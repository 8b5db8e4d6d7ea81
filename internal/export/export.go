// Package export turns a job checkpoint into the consolidated lead table and
// writes it as CSV and XLSX.
package export

import (
	"regexp"
	"sort"
	"strings"

	"github.com/sells-group/lead-scraper/internal/model"
)

// EmailSeparator joins multiple addresses in one cell.
const EmailSeparator = "; "

// Row is one exported business.
type Row struct {
	Name          string `csv:"Business Name" json:"name"`
	Phone         string `csv:"Phone" json:"phone"`
	Email         string `csv:"Email" json:"email"`
	Website       string `csv:"Website" json:"website"`
	Address       string `csv:"Address" json:"address"`
	GoogleMapsURL string `csv:"Google Maps" json:"googleMapsUrl"`
}

// Headers lists the column titles in order.
var Headers = []string{"Business Name", "Phone", "Email", "Website", "Address", "Google Maps"}

func (r Row) cells() []string {
	return []string{r.Name, r.Phone, r.Email, r.Website, r.Address, r.GoogleMapsURL}
}

// BuildRows joins successful detail records with their email sets. Failed
// records and records without a name are dropped; rows are sorted by name.
func BuildRows(details map[string]model.DetailRecord, emails map[string][]string) []Row {
	rows := make([]Row, 0, len(details))
	for id, rec := range details {
		if rec.Failed() || strings.TrimSpace(rec.Name) == "" {
			continue
		}
		rows = append(rows, Row{
			Name:          rec.Name,
			Phone:         rec.Phone,
			Email:         strings.Join(emails[id], EmailSeparator),
			Website:       rec.Website,
			Address:       rec.Address,
			GoogleMapsURL: rec.SourceURL,
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Name != rows[j].Name {
			return rows[i].Name < rows[j].Name
		}
		return rows[i].GoogleMapsURL < rows[j].GoogleMapsURL
	})
	return rows
}

// Summary counts populated columns across rows.
type Summary struct {
	Rows        int
	WithPhone   int
	WithEmail   int
	WithWebsite int
}

// Summarize counts rows with each contact channel.
func Summarize(rows []Row) Summary {
	s := Summary{Rows: len(rows)}
	for _, r := range rows {
		if r.Phone != "" {
			s.WithPhone++
		}
		if r.Email != "" {
			s.WithEmail++
		}
		if r.Website != "" {
			s.WithWebsite++
		}
	}
	return s
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slug builds the file-name stem for a niche and region, e.g.
// "Plumbers", "Utah" -> "plumbers_utah".
func Slug(niche, region string) string {
	return strings.Trim(slugRe.ReplaceAllString(strings.ToLower(niche+"_"+region), "_"), "_")
}
