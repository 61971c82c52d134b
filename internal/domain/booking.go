package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	BookingStatusPending    BookingStatus = "pending"
	BookingStatusConfirmed  BookingStatus = "confirmed"
	BookingStatusInProgress BookingStatus = "in_progress"
	BookingStatusCompleted  BookingStatus = "completed"
	BookingStatusCancelled  BookingStatus = "cancelled"
	BookingStatusRefunded   BookingStatus = "refunded"
)

var transitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:    {BookingStatusConfirmed, BookingStatusCancelled},
	BookingStatusConfirmed:  {BookingStatusInProgress, BookingStatusCancelled, BookingStatusRefunded},
	BookingStatusInProgress: {BookingStatusCompleted, BookingStatusRefunded},
	BookingStatusCompleted:  {BookingStatusRefunded},
}

// CanTransitionTo reports whether a booking in status s may move to next.
// Bookings only move forward; cancelled and refunded are terminal.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s BookingStatus) Terminal() bool {
	return len(transitions[s]) == 0
}

// ConflictExcludedStatuses lists the statuses that never occupy a provider's
// timeline. With softHold, pending bookings are excluded as well and only
// claim the slot once confirmed.
func ConflictExcludedStatuses(softHold bool) []BookingStatus {
	if softHold {
		return []BookingStatus{BookingStatusPending, BookingStatusCancelled, BookingStatusRefunded}
	}
	return []BookingStatus{BookingStatusCancelled, BookingStatusRefunded}
}

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRefunded PaymentStatus = "refunded"
	PaymentStatusFailed   PaymentStatus = "failed"
)

type PaymentType string

const (
	PaymentTypeInstant        PaymentType = "instant"
	PaymentTypeCashOnDelivery PaymentType = "cash_on_delivery"
)

func (p PaymentType) Valid() bool {
	return p == PaymentTypeInstant || p == PaymentTypeCashOnDelivery
}

type Booking struct {
	ID               string
	TenantID         string
	CustomerID       string
	ProviderID       string
	ServiceID        string
	Status           BookingStatus
	ScheduledAt      time.Time
	DurationMinutes  int
	TotalAmount      decimal.Decimal
	CommissionAmount decimal.Decimal
	Currency         string
	PaymentStatus    PaymentStatus
	PaymentType      PaymentType
	CustomerAddress  json.RawMessage
	Notes            string
	Addons           []BookingAddon
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// EndsAt is the exclusive end of the slot the booking occupies.
func (b *Booking) EndsAt() time.Time {
	return b.ScheduledAt.Add(time.Duration(b.DurationMinutes) * time.Minute)
}

type BookingAddon struct {
	BookingID string
	AddonID   string
	Price     decimal.Decimal
}

// Overlaps reports whether [startA, endA) and [startB, endB) share any instant.
// Touching intervals do not overlap.
func Overlaps(startA, endA, startB, endB time.Time) bool {
	return startA.Before(endB) && startB.Before(endA)
}

var scheduleLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// ParseScheduledAt reads an ISO-8601-like timestamp. Values with an offset are
// converted to loc; naive values are taken as wall-clock time in loc. The
// result carries no sub-second part and is expressed as a naive UTC wall clock,
// matching how booking timestamps are stored.
func ParseScheduledAt(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, ErrScheduledAtRequired
	}
	if loc == nil {
		loc = time.UTC
	}

	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return naive(t.In(loc)), nil
	}
	for _, layout := range scheduleLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return naive(t), nil
		}
	}
	return time.Time{}, ErrInvalidScheduledAt
}

func naive(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
}
