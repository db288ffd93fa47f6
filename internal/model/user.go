package model

// User is a subscriber. Recipient is the opaque handle the notification
// channel uses to reach the user (chat id, device token).
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Recipient string    `json:"recipient"`
	Products  []Product `json:"products"`
}
