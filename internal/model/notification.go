package model

type Notification struct {
	Title           string
	Link            string
	BasePrice       float64
	DiscountedPrice float64
}
