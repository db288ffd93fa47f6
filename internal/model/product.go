package model

import "time"

type Product struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Marketplace string `json:"marketplace"`
	Link        string `json:"link"`
	// Prices is ordered by CreatedAt ascending. Stores load at most the latest record.
	Prices []PriceRecord `json:"prices"`
}

// LastPrice returns the record with the latest CreatedAt. A product without
// history yields a zero record and false.
func (p Product) LastPrice() (PriceRecord, bool) {
	if len(p.Prices) == 0 {
		return PriceRecord{ProductID: p.ID}, false
	}
	last := p.Prices[0]
	for _, pr := range p.Prices[1:] {
		if !pr.CreatedAt.Before(last.CreatedAt) {
			last = pr
		}
	}
	return last, true
}

// PriceRecord is immutable once stored.
type PriceRecord struct {
	ProductID       string    `json:"product_id"`
	BasePrice       float64   `json:"base_price"`
	DiscountedPrice float64   `json:"discounted_price"`
	CreatedAt       time.Time `json:"created_at"`
}
