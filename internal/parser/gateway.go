package parser

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"pricewatch/internal/misc"
	"pricewatch/internal/model"
)

// Gateway resolves a marketplace to its parser and runs it. Every failure mode
// (unknown marketplace, fetch error, timeout, missing title) collapses into ok=false.
type Gateway struct {
	Registry *Registry
	// Timeout bounds a single Parse call.
	Timeout time.Duration
	// Spacing is the minimum delay between two fetches on the same marketplace.
	Spacing time.Duration
	Logger  logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewGateway(registry *Registry, timeout time.Duration, spacing time.Duration, l logger) *Gateway {
	return &Gateway{
		Registry: registry,
		Timeout:  timeout,
		Spacing:  spacing,
		Logger:   l,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (g *Gateway) Fetch(ctx context.Context, marketplace string, link string) (snap model.Snapshot, ok bool) {
	p, found := g.Registry.Resolve(marketplace)
	if !found {
		g.Logger.Debugf("Fetch: No parser registered for marketplace: %s, link: %s", marketplace, link)
		return model.Snapshot{}, false
	}
	if link == "" {
		g.Logger.Warnf("Fetch: Empty link for marketplace: %s", marketplace)
		return model.Snapshot{}, false
	}

	if err := g.limiter(marketplace).Wait(ctx); err != nil {
		g.Logger.Debugf("Fetch: Throttle wait aborted for %s, link: %s, err: %v", marketplace, link, err)
		return model.Snapshot{}, false
	}

	defer func() {
		if r := recover(); r != nil {
			g.Logger.Errorf("Fetch: Parser for %s crashed, link: %s, err: %v, stack trace:\n%s",
				marketplace, link, r, debug.Stack())
			snap, ok = model.Snapshot{}, false
		}
	}()

	fetchCtx := ctx
	if g.Timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}

	start := time.Now()
	snap, err := p.Parse(fetchCtx, link)
	if err != nil {
		g.Logger.Warnf("Fetch: Error parsing %s link: %s after %dms, err: %v",
			marketplace, link, time.Since(start).Milliseconds(), err)
		return model.Snapshot{}, false
	}
	if !snap.OK() {
		g.Logger.Debugf("Fetch: No title parsed from %s link: %s", marketplace, link)
		return model.Snapshot{}, false
	}
	g.Logger.Debugf("Fetch: Parsed %s link: %s, title: %s in %dms",
		marketplace, link, misc.StringLimit(*snap.Title, 45), time.Since(start).Milliseconds())
	return snap, true
}

func (g *Gateway) limiter(marketplace string) *rate.Limiter {
	key := normalizeMarketplace(marketplace)
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.limiters == nil {
		g.limiters = make(map[string]*rate.Limiter)
	}
	l, ok := g.limiters[key]
	if !ok {
		limit := rate.Inf
		if g.Spacing > 0 {
			limit = rate.Every(g.Spacing)
		}
		l = rate.NewLimiter(limit, 1)
		g.limiters[key] = l
	}
	return l
}
