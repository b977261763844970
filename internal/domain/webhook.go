package domain

import "time"

// Delivery outcome classifications recorded on a webhook registration.
const (
	DeliveryStatusSuccess = "SUCCESS"
	DeliveryStatusFailed  = "FAILED"
	DeliveryStatusTimeout = "TIMEOUT"
	DeliveryStatusError   = "ERROR"
)

// Webhook is a registered external endpoint subscribed to event types.
type Webhook struct {
	ID                  int64     `json:"id"`
	Name                string    `json:"name"`
	URL                 string    `json:"url"`
	EventTypes          []string  `json:"event_types"`
	Enabled             bool      `json:"enabled"`
	LastDeliveryStatus  string    `json:"last_delivery_status,omitempty"`
	LastDeliveryCode    *int      `json:"last_delivery_code,omitempty"`
	LastDeliverySeconds *float64  `json:"last_delivery_seconds,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// SubscribedTo reports whether the webhook listens for the event type.
func (w Webhook) SubscribedTo(eventType string) bool {
	for _, t := range w.EventTypes {
		if t == eventType {
			return true
		}
	}
	return false
}

// DeliveryRecord captures the outcome of a single delivery attempt.
type DeliveryRecord struct {
	Status       string
	ResponseCode *int
	ResponseTime *float64
}
