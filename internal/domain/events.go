package domain

import "time"

type SessionEventType string

const (
	SessionSignedIn    SessionEventType = "SIGNED_IN"
	SessionSignedOut   SessionEventType = "SIGNED_OUT"
	SessionUserUpdated SessionEventType = "USER_UPDATED"
)

type SessionEvent struct {
	Type      SessionEventType `json:"type"`
	UserID    string           `json:"user_id"`
	Token     string           `json:"token,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

type OrderPlacedEvent struct {
	OrderID   string          `json:"order_id"`
	UserID    string          `json:"user_id"`
	Email     string          `json:"email"`
	Items     []OrderLineItem `json:"items"`
	Timestamp time.Time       `json:"timestamp"`
}
