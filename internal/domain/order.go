package domain

import "time"

type Order struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Items     []OrderLineItem `json:"items"`
	CreatedAt time.Time       `json:"created_at"`
}

type OrderLineItem struct {
	ID        string   `json:"id,omitempty"`
	OrderID   string   `json:"order_id,omitempty"`
	ProductID string   `json:"product_id"`
	Quantity  int      `json:"quantity"`
	Product   *Product `json:"product,omitempty"`
}
