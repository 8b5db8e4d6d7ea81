package scrape

import (
	"context"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sells-group/lead-scraper/internal/resilience"
)

const (
	maxBodyBytes = 2 << 20

	// DefaultUserAgent is sent by the HTTP and browser loaders.
	DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// HTTPLoader fetches raw HTML via net/http without running scripts.
type HTTPLoader struct {
	client    *http.Client
	userAgent string
}

// NewHTTPLoader creates an HTTPLoader with the given request timeout.
func NewHTTPLoader(timeout time.Duration) *HTTPLoader {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPLoader{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		userAgent: DefaultUserAgent,
	}
}

// Name implements Loader.
func (l *HTTPLoader) Name() string { return "http" }

// Load fetches targetURL, rejects blocked or error responses and decodes the
// body to UTF-8 using the charset from the Content-Type header.
func (l *HTTPLoader) Load(ctx context.Context, targetURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "http loader: create request")
	}
	req.Header.Set("User-Agent", l.userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "http loader: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, eris.Wrap(err, "http loader: read body")
	}

	if bt := DetectBlock(resp.StatusCode, resp.Header, body); bt != BlockNone {
		return nil, &BlockedError{URL: targetURL, Type: bt}
	}
	if resp.StatusCode >= 400 {
		return nil, resilience.NewStatusError("http", resp.StatusCode, nil)
	}

	html, err := decodeBody(resp.Header.Get("Content-Type"), body)
	if err != nil {
		return nil, err
	}

	finalURL := targetURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &Page{URL: finalURL, HTML: html, StatusCode: resp.StatusCode}, nil
}

func decodeBody(contentType string, body []byte) (string, error) {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return string(body), nil
	}
	charset := strings.ToLower(strings.TrimSpace(params["charset"]))
	if charset == "" || charset == "utf-8" || charset == "utf8" {
		return string(body), nil
	}

	enc, err := htmlindex.Get(charset)
	if err != nil {
		return "", eris.Wrapf(err, "http loader: unsupported charset %q", charset)
	}
	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return "", eris.Wrapf(err, "http loader: decode %s body", charset)
	}
	return string(out), nil
}
