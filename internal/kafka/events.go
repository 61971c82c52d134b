package kafka

import (
	"time"

	"github.com/Domenick1991/servicehub/internal/domain"
)

const (
	EventBookingCreated   = "booking_created"
	EventBookingConfirmed = "booking_confirmed"
	EventBookingStarted   = "booking_started"
	EventBookingCompleted = "booking_completed"
	EventBookingCancelled = "booking_cancelled"
	EventBookingRefunded  = "booking_refunded"
	EventBookingExpired   = "booking_expired"
)

type BookingEvent struct {
	Type        string    `json:"type"`
	BookingID   string    `json:"booking_id"`
	TenantID    string    `json:"tenant_id"`
	CustomerID  string    `json:"customer_id"`
	ProviderID  string    `json:"provider_id"`
	ServiceID   string    `json:"service_id"`
	Status      string    `json:"status"`
	ScheduledAt time.Time `json:"scheduled_at"`
	TotalAmount string    `json:"total_amount"`
	Currency    string    `json:"currency"`
	OccurredAt  time.Time `json:"occurred_at"`
}

func NewBookingEvent(eventType string, b *domain.Booking, at time.Time) BookingEvent {
	return BookingEvent{
		Type:        eventType,
		BookingID:   b.ID,
		TenantID:    b.TenantID,
		CustomerID:  b.CustomerID,
		ProviderID:  b.ProviderID,
		ServiceID:   b.ServiceID,
		Status:      string(b.Status),
		ScheduledAt: b.ScheduledAt,
		TotalAmount: b.TotalAmount.StringFixed(2),
		Currency:    b.Currency,
		OccurredAt:  at,
	}
}
