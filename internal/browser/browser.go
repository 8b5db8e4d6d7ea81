// Package browser renders pages in headless Chrome through chromedp.
package browser

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-scraper/internal/scrape"
)

// Config controls the Chrome instance.
type Config struct {
	Headless    bool
	NoSandbox   bool
	UserAgent   string
	PageTimeout time.Duration
	// Wait is how long a page is given to run scripts after navigation.
	Wait time.Duration
}

func (c Config) withDefaults() Config {
	if c.UserAgent == "" {
		c.UserAgent = scrape.DefaultUserAgent
	}
	if c.PageTimeout <= 0 {
		c.PageTimeout = 30 * time.Second
	}
	if c.Wait < 0 {
		c.Wait = 0
	}
	return c
}

// Loader implements scrape.Loader with one Chrome process; every Load opens
// and closes its own tab.
type Loader struct {
	cfg           Config
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

func allocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("no-sandbox", cfg.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(cfg.UserAgent),
		chromedp.WindowSize(1920, 1080),
	)
	return opts
}

// New starts Chrome and checks that it responds. The browser lives until
// Close is called.
func New(cfg Config) (*Loader, error) {
	cfg = cfg.withDefaults()

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(zap.S().Debugf),
	)

	startCtx, cancel := context.WithTimeout(browserCtx, cfg.PageTimeout)
	defer cancel()
	if err := chromedp.Run(startCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocCancel()
		return nil, eris.Wrap(err, "browser: start chrome")
	}

	zap.L().Info("browser: chrome started", zap.Bool("headless", cfg.Headless))

	return &Loader{
		cfg:           cfg,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// Name implements scrape.Loader.
func (l *Loader) Name() string { return "chrome" }

// Load navigates a fresh tab to targetURL, waits for scripts and returns the
// rendered document.
func (l *Loader) Load(ctx context.Context, targetURL string) (*scrape.Page, error) {
	tabCtx, tabCancel := chromedp.NewContext(l.browserCtx)
	defer tabCancel()

	pageCtx, cancel := context.WithTimeout(tabCtx, l.cfg.PageTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var html, location string
	err := chromedp.Run(pageCtx,
		chromedp.Navigate(targetURL),
		chromedp.Sleep(l.cfg.Wait),
		chromedp.OuterHTML("html", &html),
		chromedp.Location(&location),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "browser: load %s", targetURL)
	}

	switch bt := scrape.DetectBlock(0, nil, []byte(html)); bt {
	case scrape.BlockCaptcha, scrape.BlockCloudflare:
		return nil, &scrape.BlockedError{URL: targetURL, Type: bt}
	}

	if location == "" {
		location = targetURL
	}
	return &scrape.Page{URL: location, HTML: html, StatusCode: 200}, nil
}

// Close shuts Chrome down.
func (l *Loader) Close() {
	l.browserCancel()
	l.allocCancel()
}
