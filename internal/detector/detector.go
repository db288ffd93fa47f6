// Package detector decides whether a freshly observed price differs from the
// last stored one. It performs no I/O.
package detector

import (
	"math"
	"time"

	"pricewatch/internal/model"
)

// Epsilon absorbs floating point noise. Any real price delta exceeds it.
const Epsilon = 1e-10

type Result struct {
	Changed      bool
	Record       model.PriceRecord
	Notification model.Notification
}

// Detect compares s against last. Absent snapshot prices read as 0. The caller
// must only pass snapshots for which s.OK() holds.
func Detect(last model.PriceRecord, s model.Snapshot, now time.Time) Result {
	base, discounted := s.Prices()
	if !significant(last.BasePrice, base) && !significant(last.DiscountedPrice, discounted) {
		return Result{}
	}
	var title string
	if s.Title != nil {
		title = *s.Title
	}
	return Result{
		Changed: true,
		Record: model.PriceRecord{
			ProductID:       last.ProductID,
			BasePrice:       base,
			DiscountedPrice: discounted,
			CreatedAt:       now,
		},
		Notification: model.Notification{
			Title:           title,
			BasePrice:       base,
			DiscountedPrice: discounted,
		},
	}
}

// DetectFor runs Detect against p's latest record and fills in the product
// reference on the record and the link on the notification.
func DetectFor(p model.Product, s model.Snapshot, now time.Time) Result {
	last, _ := p.LastPrice()
	res := Detect(last, s, now)
	if res.Changed {
		res.Record.ProductID = p.ID
		res.Notification.Link = p.Link
	}
	return res
}

func significant(old, new float64) bool {
	return math.Abs(old-new) > Epsilon
}
