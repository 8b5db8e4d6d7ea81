package google

import (
	"context"
	"time"
)

const (
	// DefaultRadiusMeters is the location-bias radius around each sample point.
	DefaultRadiusMeters = 35000

	defaultPageSize  = 20
	defaultPageDelay = 500 * time.Millisecond
)

// AreaSearcher collects every place id the Text Search API returns for a
// query biased toward one coordinate, following pagination to the end.
type AreaSearcher struct {
	client    Client
	radius    float64
	pageDelay time.Duration
}

// AreaOption configures an AreaSearcher.
type AreaOption func(*AreaSearcher)

// WithRadius overrides the location-bias radius in meters.
func WithRadius(meters float64) AreaOption {
	return func(a *AreaSearcher) {
		if meters > 0 {
			a.radius = meters
		}
	}
}

// WithPageDelay overrides the pause between result pages.
func WithPageDelay(d time.Duration) AreaOption {
	return func(a *AreaSearcher) {
		if d >= 0 {
			a.pageDelay = d
		}
	}
}

// NewAreaSearcher wraps client.
func NewAreaSearcher(client Client, opts ...AreaOption) *AreaSearcher {
	a := &AreaSearcher{
		client:    client,
		radius:    DefaultRadiusMeters,
		pageDelay: defaultPageDelay,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// SearchAt returns the unique place ids found for query around (lat, lng), in
// the order first seen. When a page fails, the ids collected from earlier
// pages are returned together with the error.
func (a *AreaSearcher) SearchAt(ctx context.Context, query string, lat, lng float64) ([]string, error) {
	seen := make(map[string]struct{})
	var ids []string

	req := TextSearchRequest{
		TextQuery: query,
		LocationBias: &LocationBias{Circle: Circle{
			Center: LatLng{Latitude: lat, Longitude: lng},
			Radius: a.radius,
		}},
		MaxResultCount: defaultPageSize,
		LanguageCode:   "en",
	}

	for {
		resp, err := a.client.TextSearch(ctx, req)
		if err != nil {
			return ids, err
		}
		for _, p := range resp.Places {
			if p.ID == "" {
				continue
			}
			if _, ok := seen[p.ID]; ok {
				continue
			}
			seen[p.ID] = struct{}{}
			ids = append(ids, p.ID)
		}

		if resp.NextPageToken == "" {
			return ids, nil
		}
		req.PageToken = resp.NextPageToken

		if a.pageDelay > 0 {
			t := time.NewTimer(a.pageDelay)
			select {
			case <-ctx.Done():
				t.Stop()
				return ids, ctx.Err()
			case <-t.C:
			}
		}
	}
}
