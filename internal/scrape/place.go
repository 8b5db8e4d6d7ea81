package scrape

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-scraper/internal/model"
)

const mapsPlaceURL = "https://www.google.com/maps/place/?q=place_id:"

var (
	addressLabelRe = regexp.MustCompile(`Address:\s*(.+)`)
	phoneLabelRe   = regexp.MustCompile(`Phone:\s*(.+)`)
	redirectRe     = regexp.MustCompile(`/url\?q=([^&]+)`)
)

// MapsURL returns the Google Maps page for a place id.
func MapsURL(placeID string) string {
	return mapsPlaceURL + placeID
}

// PlaceScraper enriches a place id by loading its Maps page.
type PlaceScraper struct {
	loader Loader
}

// NewPlaceScraper creates a PlaceScraper backed by loader.
func NewPlaceScraper(loader Loader) *PlaceScraper {
	return &PlaceScraper{loader: loader}
}

// FetchDetail loads the Maps page for placeID and parses the listing. Missing
// fields are left empty; only a failed load or unparseable page is an error.
func (s *PlaceScraper) FetchDetail(ctx context.Context, placeID string) (model.DetailRecord, error) {
	target := MapsURL(placeID)
	page, err := s.loader.Load(ctx, target)
	if err != nil {
		return model.DetailRecord{}, eris.Wrapf(err, "scrape: load place %s", placeID)
	}

	rec, err := ParsePlace(page.HTML)
	if err != nil {
		return model.DetailRecord{}, eris.Wrapf(err, "scrape: parse place %s", placeID)
	}
	rec.PlaceID = placeID
	rec.SourceURL = target
	return rec, nil
}

// ParsePlace extracts the listing fields from a rendered Maps place page.
func ParsePlace(html string) (model.DetailRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return model.DetailRecord{}, eris.Wrap(err, "parse html")
	}

	var rec model.DetailRecord
	rec.Name = collapseSpace(doc.Find("h1").First().Text())
	rec.Address = labelValue(doc, `button[aria-label^="Address"]`, addressLabelRe)
	rec.Phone = labelValue(doc, `button[aria-label^="Phone"]`, phoneLabelRe)

	if rec.Phone == "" {
		if href, ok := doc.Find(`a[href^="tel:"]`).First().Attr("href"); ok {
			rec.Phone = strings.TrimSpace(strings.TrimPrefix(href, "tel:"))
		}
	}

	if href, ok := doc.Find(`a[aria-label^="Website"]`).First().Attr("href"); ok {
		rec.Website = unwrapRedirect(href)
	}

	return rec, nil
}

func labelValue(doc *goquery.Document, selector string, re *regexp.Regexp) string {
	label, ok := doc.Find(selector).First().Attr("aria-label")
	if !ok {
		return ""
	}
	m := re.FindStringSubmatch(label)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// unwrapRedirect resolves Google's /url?q= redirect links to their target.
func unwrapRedirect(href string) string {
	if !strings.Contains(href, "/url?q=") {
		return href
	}
	m := redirectRe.FindStringSubmatch(href)
	if len(m) < 2 {
		return href
	}
	target, err := url.QueryUnescape(m[1])
	if err != nil {
		return m[1]
	}
	return target
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
