package main

import (
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-scraper/internal/browser"
	"github.com/sells-group/lead-scraper/internal/config"
	"github.com/sells-group/lead-scraper/internal/grid"
	"github.com/sells-group/lead-scraper/internal/jobs"
	"github.com/sells-group/lead-scraper/internal/ledger"
	"github.com/sells-group/lead-scraper/internal/pipeline"
	"github.com/sells-group/lead-scraper/internal/scrape"
	"github.com/sells-group/lead-scraper/pkg/google"
)

// appEnv holds the job manager and the resources behind it, as needed by the
// run/resume/jobs/serve commands.
type appEnv struct {
	Regions *grid.Table
	Ledger  *ledger.BestEffort
	Manager *jobs.Manager

	chrome *browser.Loader // nil unless the chrome engine is in use
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.chrome != nil {
		e.chrome.Close()
	}
}

// initEnv validates the config for mode and builds the job manager. The
// "jobs" mode only reads checkpoints and the ledger, so no collaborators
// are started for it.
func initEnv(mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	regions, err := grid.LoadTable(cfg.RegionsFile)
	if err != nil {
		return nil, eris.Wrap(err, "load regions")
	}

	led := ledger.NewBestEffort(ledger.New(cfg.Ledger.URL, cfg.Ledger.Timeout()), zap.L())
	env := &appEnv{Regions: regions, Ledger: led}

	var runner jobs.Runner
	if mode != "jobs" {
		orch, err := env.initOrchestrator(cfg)
		if err != nil {
			return nil, err
		}
		runner = orch
	}

	env.Manager = jobs.NewManager(cfg.Storage.Root, runner, regions, led,
		jobs.WithCacheTTL(cfg.Ledger.CacheTTL()),
	)
	return env, nil
}

func (e *appEnv) initOrchestrator(c *config.Config) (*pipeline.Orchestrator, error) {
	client := google.NewClient(c.Google.Key,
		google.WithBaseURL(c.Google.BaseURL),
		google.WithRateLimit(c.Google.RateLimit),
	)
	places := google.NewAreaSearcher(client,
		google.WithPageDelay(time.Duration(c.Google.PageDelayMS)*time.Millisecond),
	)

	pageTimeout := time.Duration(c.Browser.PageTimeoutSecs) * time.Second
	httpLoader := scrape.NewHTTPLoader(pageTimeout)

	var pageLoader scrape.Loader = httpLoader
	emailLoader := scrape.Loader(httpLoader)
	if c.Browser.Engine == config.EngineChrome {
		chrome, err := browser.New(browser.Config{
			Headless:    c.Browser.Headless,
			NoSandbox:   c.Browser.NoSandbox,
			PageTimeout: pageTimeout,
			Wait:        time.Duration(c.Browser.WaitMS) * time.Millisecond,
		})
		if err != nil {
			return nil, err
		}
		e.chrome = chrome
		// Listings are script-rendered; business sites usually are not.
		pageLoader = chrome
		emailLoader = scrape.NewChain(httpLoader, chrome)
	}

	zap.L().Info("pipeline collaborators ready",
		zap.String("places", c.Google.BaseURL),
		zap.String("details", pageLoader.Name()),
		zap.String("emails", emailLoader.Name()),
		zap.Bool("ledger", e.Ledger.Enabled()),
	)

	return pipeline.New(
		e.Regions,
		places,
		scrape.NewPlaceScraper(pageLoader),
		scrape.NewEmailFinder(emailLoader),
		e.Ledger,
		pipeline.OptionsFromConfig(c.Pipeline),
	), nil
}
