// Package parser turns a product link on a marketplace into a price snapshot.
package parser

import (
	"context"
	"strings"

	"pricewatch/internal/model"
)

// Parser fetches and parses a single marketplace product page.
type Parser interface {
	Marketplace() string
	Parse(ctx context.Context, link string) (model.Snapshot, error)
}

// Registry maps marketplace identifiers to parsers. Identifiers are case-insensitive.
type Registry struct {
	parsers map[string]Parser
}

func NewRegistry(ps ...Parser) *Registry {
	r := &Registry{parsers: make(map[string]Parser, len(ps))}
	for _, p := range ps {
		r.Register(p)
	}
	return r
}

// Register adds p, replacing any parser registered for the same marketplace.
func (r *Registry) Register(p Parser) {
	r.parsers[normalizeMarketplace(p.Marketplace())] = p
}

func (r *Registry) Resolve(marketplace string) (Parser, bool) {
	if r == nil {
		return nil, false
	}
	p, ok := r.parsers[normalizeMarketplace(marketplace)]
	return p, ok
}

func (r *Registry) Marketplaces() []string {
	ms := make([]string, 0, len(r.parsers))
	for m := range r.parsers {
		ms = append(ms, m)
	}
	return ms
}

func normalizeMarketplace(m string) string {
	return strings.ToLower(strings.TrimSpace(m))
}
