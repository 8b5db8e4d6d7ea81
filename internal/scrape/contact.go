package scrape

import (
	"context"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

const (
	maxEmailLen     = 100
	maxMailtoLinks  = 10
	maxAnchorsSeen  = 50
	maxContactPages = 2
)

var emailRe = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)

var junkDomains = map[string]struct{}{
	"example.com":     {},
	"test.com":        {},
	"email.com":       {},
	"domain.com":      {},
	"sentry.io":       {},
	"wixpress.com":    {},
	"googleapis.com":  {},
	"google.com":      {},
	"gstatic.com":     {},
	"w3.org":          {},
	"schema.org":      {},
	"wordpress.org":   {},
	"wordpress.com":   {},
	"squarespace.com": {},
	"godaddy.com":     {},
}

// Matches like logo@2x.png are image names, not addresses.
var assetMarkers = []string{".png", ".jpg", ".gif", ".svg", ".woff", ".css", ".js"}

var (
	contactTextKeywords = []string{"contact", "reach us", "get in touch"}
	contactHrefKeywords = []string{"contact", "about"}
)

// ExtractEmails returns the sorted, de-duplicated addresses found in text,
// ignoring junk domains and asset file names.
func ExtractEmails(text string) []string {
	set := make(map[string]struct{})
	for _, raw := range emailRe.FindAllString(text, -1) {
		e := strings.ToLower(strings.TrimRight(strings.TrimSpace(raw), "."))
		if len(e) >= maxEmailLen || isJunkDomain(e) || hasAssetMarker(e) {
			continue
		}
		set[e] = struct{}{}
	}
	return sortedSet(set)
}

func isJunkDomain(email string) bool {
	domain := email[strings.LastIndex(email, "@")+1:]
	_, junk := junkDomains[domain]
	return junk
}

func hasAssetMarker(email string) bool {
	for _, m := range assetMarkers {
		if strings.Contains(email, m) {
			return true
		}
	}
	return false
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for e := range set {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

// EmailFinder visits a business website and collects contact addresses.
type EmailFinder struct {
	loader Loader
}

// NewEmailFinder creates an EmailFinder backed by loader.
func NewEmailFinder(loader Loader) *EmailFinder {
	return &EmailFinder{loader: loader}
}

// ExtractEmails scans the home page (text and mailto links) and, when it
// yields nothing, up to two same-host contact pages. It never fails: an
// unreachable or malformed site yields an empty result.
func (f *EmailFinder) ExtractEmails(ctx context.Context, website string) []string {
	if !strings.HasPrefix(website, "http") {
		return []string{}
	}
	base, err := url.Parse(website)
	if err != nil {
		return []string{}
	}

	set := make(map[string]struct{})
	doc, ok := f.scanPage(ctx, website, set)
	if !ok {
		return []string{}
	}

	if len(set) == 0 {
		for _, link := range contactLinks(doc, base) {
			f.scanPage(ctx, link, set)
			if len(set) > 0 {
				break
			}
		}
	}

	return sortedSet(set)
}

// scanPage loads target and adds every address it finds to set.
func (f *EmailFinder) scanPage(ctx context.Context, target string, set map[string]struct{}) (*goquery.Document, bool) {
	page, err := f.loader.Load(ctx, target)
	if err != nil {
		zap.L().Debug("scrape: contact page unavailable", zap.String("url", target), zap.Error(err))
		return nil, false
	}
	for _, e := range ExtractEmails(page.HTML) {
		set[e] = struct{}{}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return nil, false
	}
	for _, e := range mailtoAddresses(doc) {
		set[e] = struct{}{}
	}
	return doc, true
}

func mailtoAddresses(doc *goquery.Document) []string {
	var out []string
	doc.Find(`a[href^="mailto:"]`).EachWithBreak(func(i int, s *goquery.Selection) bool {
		if i >= maxMailtoLinks {
			return false
		}
		href, _ := s.Attr("href")
		e := strings.TrimPrefix(href, "mailto:")
		if idx := strings.Index(e, "?"); idx >= 0 {
			e = e[:idx]
		}
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" && !isJunkDomain(e) {
			out = append(out, e)
		}
		return true
	})
	return out
}

// contactLinks returns up to two same-host links whose text or href suggests
// a contact page, resolved against base. Only the first fifty anchors are
// considered.
func contactLinks(doc *goquery.Document, base *url.URL) []string {
	var candidates []string
	doc.Find("a").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if i >= maxAnchorsSeen {
			return false
		}
		href, ok := s.Attr("href")
		if !ok || href == "" {
			return true
		}
		text := strings.ToLower(s.Text())
		lowerHref := strings.ToLower(href)
		if containsAny(text, contactTextKeywords) || containsAny(lowerHref, contactHrefKeywords) {
			candidates = append(candidates, href)
		}
		return true
	})

	if len(candidates) > maxContactPages {
		candidates = candidates[:maxContactPages]
	}

	var links []string
	for _, href := range candidates {
		ref, err := url.Parse(href)
		if err != nil {
			continue
		}
		abs := base.ResolveReference(ref)
		if abs.Host != base.Host {
			continue
		}
		links = append(links, abs.String())
	}
	return links
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
