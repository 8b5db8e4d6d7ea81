package scrape

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const placeHTML = `<html><body>
<div role="main">
  <h1 class="DUwDvf">
    Wasatch   Plumbing &amp; Heating
  </h1>
  <button data-item-id="address" aria-label="Address: 123 Main St, Provo, UT 84601 ">Addr</button>
  <button data-item-id="phone" aria-label="Phone: (801) 555-0100">Call</button>
  <a aria-label="Website: wasatchplumbing.com" href="/url?q=https%3A%2F%2Fwasatchplumbing.com%2F&amp;opi=123">Site</a>
</div>
</body></html>`

func TestParsePlace(t *testing.T) {
	rec, err := ParsePlace(placeHTML)
	require.NoError(t, err)

	assert.Equal(t, "Wasatch Plumbing & Heating", rec.Name)
	assert.Equal(t, "123 Main St, Provo, UT 84601", rec.Address)
	assert.Equal(t, "(801) 555-0100", rec.Phone)
	assert.Equal(t, "https://wasatchplumbing.com/", rec.Website)
}

func TestParsePlace_TelFallbackAndDirectWebsite(t *testing.T) {
	html := `<h1>Acme</h1>
<a href="tel:+18015550199">call</a>
<a aria-label="Website" href="https://acme.test">site</a>`

	rec, err := ParsePlace(html)
	require.NoError(t, err)
	assert.Equal(t, "Acme", rec.Name)
	assert.Equal(t, "+18015550199", rec.Phone)
	assert.Equal(t, "https://acme.test", rec.Website)
	assert.Empty(t, rec.Address)
}

func TestParsePlace_EmptyPage(t *testing.T) {
	rec, err := ParsePlace("<html></html>")
	require.NoError(t, err)
	assert.Empty(t, rec.Name)
	assert.False(t, rec.Failed())
}

func TestPlaceScraper_FetchDetail(t *testing.T) {
	loader := &stubLoader{name: "stub", pages: map[string]string{
		MapsURL("ChIJ-1"): placeHTML,
	}}

	rec, err := NewPlaceScraper(loader).FetchDetail(context.Background(), "ChIJ-1")
	require.NoError(t, err)
	assert.Equal(t, "ChIJ-1", rec.PlaceID)
	assert.Equal(t, "https://www.google.com/maps/place/?q=place_id:ChIJ-1", rec.SourceURL)
	assert.Equal(t, "Wasatch Plumbing & Heating", rec.Name)
}

func TestPlaceScraper_LoadError(t *testing.T) {
	loader := &stubLoader{name: "stub", err: errors.New("navigation timeout")}

	_, err := NewPlaceScraper(loader).FetchDetail(context.Background(), "ChIJ-2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ChIJ-2")
	assert.Contains(t, err.Error(), "navigation timeout")
}

func TestUnwrapRedirect(t *testing.T) {
	assert.Equal(t, "https://a.test/x?y=1", unwrapRedirect("https://www.google.com/url?q=https://a.test/x%3Fy%3D1&sa=U"))
	assert.Equal(t, "https://plain.test", unwrapRedirect("https://plain.test"))
}
