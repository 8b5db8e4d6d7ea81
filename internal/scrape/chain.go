package scrape

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Chain tries loaders in priority order, returning the first success.
type Chain struct {
	loaders []Loader
}

// NewChain creates a Chain. Loaders are tried in order.
func NewChain(loaders ...Loader) *Chain {
	return &Chain{loaders: loaders}
}

// Name implements Loader.
func (c *Chain) Name() string {
	names := make([]string, 0, len(c.loaders))
	for _, l := range c.loaders {
		names = append(names, l.Name())
	}
	return "chain(" + strings.Join(names, ",") + ")"
}

// Load tries each loader in order for a single URL. Context cancellation
// stops the chain immediately.
func (c *Chain) Load(ctx context.Context, targetURL string) (*Page, error) {
	var lastErr error
	for _, l := range c.loaders {
		page, err := l.Load(ctx, targetURL)
		if err == nil && page != nil {
			return page, nil
		}
		if err != nil {
			zap.L().Debug("scrape: loader failed, trying next",
				zap.String("loader", l.Name()),
				zap.String("url", targetURL),
				zap.Error(err),
			)
			lastErr = err
		}
		if ctx.Err() != nil {
			break
		}
	}
	if lastErr != nil {
		return nil, eris.Wrap(lastErr, "scrape: all loaders failed")
	}
	return nil, eris.Errorf("scrape: no loader returned a page for %s", targetURL)
}
