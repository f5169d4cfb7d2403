package usecase

import "time"

const (
	EventOrderCreated = "order.created"
	EventOrderPaid    = "order.paid"
)

// Published on the order.events exchange; routing key is Type.
type OrderEvent struct {
	Type       string    `json:"type"`
	OrderID    string    `json:"orderId"`
	Status     string    `json:"status"`
	OrderType  string    `json:"orderType"`
	Total      string    `json:"total"`
	OccurredAt time.Time `json:"occurredAt"`
}
