// Package database defines the store contract used by the reconciliation job.
package database

import (
	"context"

	"github.com/pkg/errors"

	"pricewatch/internal/model"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

// Opener hands out one Session per cycle.
type Opener interface {
	Open(ctx context.Context) (Session, error)
}

// Session is scoped to a single cycle and must be closed when the cycle ends.
type Session interface {
	// LatestPrices returns every user with their products; each product carries
	// at most its single most recent price record. Loaded in one bounded query.
	LatestPrices(ctx context.Context) ([]model.User, error)
	// AppendPrices stores all records or none of them.
	AppendPrices(ctx context.Context, records []model.PriceRecord) error
	Close(ctx context.Context) error
}
