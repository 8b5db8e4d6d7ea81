package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-scraper/internal/resilience"
)

func TestHTTPLoader_DecodesCharset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "Mozilla/5.0")
		w.Header().Set("Content-Type", "text/html; charset=ISO-8859-1")
		// "Café" in Latin-1.
		_, _ = w.Write([]byte("<h1>Caf\xe9 Rio</h1>"))
	}))
	defer srv.Close()

	page, err := NewHTTPLoader(5*time.Second).Load(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "<h1>Café Rio</h1>", page.HTML)
	assert.Equal(t, 200, page.StatusCode)
}

func TestHTTPLoader_Blocked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Cf-Ray", "abc123")
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewHTTPLoader(5*time.Second).Load(context.Background(), srv.URL)
	var blocked *BlockedError
	require.ErrorAs(t, err, &blocked)
	assert.Equal(t, BlockCloudflare, blocked.Type)
}

func TestHTTPLoader_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewHTTPLoader(5*time.Second).Load(context.Background(), srv.URL)
	assert.True(t, resilience.IsThrottled(err))
}

func TestDecodeBody(t *testing.T) {
	out, err := decodeBody("text/html", []byte("plain"))
	require.NoError(t, err)
	assert.Equal(t, "plain", out)

	out, err = decodeBody("", []byte("no header"))
	require.NoError(t, err)
	assert.Equal(t, "no header", out)

	_, err = decodeBody("text/html; charset=klingon", []byte("x"))
	assert.Error(t, err)
}
