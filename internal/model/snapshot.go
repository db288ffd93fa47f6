package model

import "strings"

// Snapshot is a single price observation returned by a marketplace parser.
// A nil Title means the page could not be parsed.
type Snapshot struct {
	Title     *string
	Price     *float64
	CardPrice *float64
}

func (s Snapshot) OK() bool {
	return s.Title != nil && strings.TrimSpace(*s.Title) != ""
}

// Prices returns the base and discounted price, absent values read as 0.
func (s Snapshot) Prices() (base float64, discounted float64) {
	if s.Price != nil {
		base = *s.Price
	}
	if s.CardPrice != nil {
		discounted = *s.CardPrice
	}
	return base, discounted
}

func NewSnapshot(title string, price *float64, cardPrice *float64) Snapshot {
	return Snapshot{Title: &title, Price: price, CardPrice: cardPrice}
}

// Float is a helper for building optional prices.
func Float(f float64) *float64 {
	return &f
}
