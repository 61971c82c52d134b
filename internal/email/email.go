package email

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Domenick1991/servicehub/internal/kafka"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var subjects = map[string]string{
	kafka.EventBookingCreated:   "We received your booking",
	kafka.EventBookingConfirmed: "Your booking is confirmed",
	kafka.EventBookingStarted:   "Your provider has started",
	kafka.EventBookingCompleted: "Your booking is complete",
	kafka.EventBookingCancelled: "Your booking was cancelled",
	kafka.EventBookingRefunded:  "Your booking was refunded",
	kafka.EventBookingExpired:   "Your booking hold expired",
}

// Sender turns booking events into customer notifications. Delivery is a
// structured log line until a mail provider is configured.
type Sender struct {
	logger *zap.Logger
}

func NewSender(logger *zap.Logger) *Sender {
	return &Sender{logger: logger.Named("email")}
}

func (s *Sender) Send(ctx context.Context, event kafka.BookingEvent) error {
	subject, ok := subjects[event.Type]
	if !ok {
		return fmt.Errorf("no notification for event type %q", event.Type)
	}

	s.logger.Info("notification sent",
		zap.String("tenant_id", event.TenantID),
		zap.String("customer_id", event.CustomerID),
		zap.String("booking_id", event.BookingID),
		zap.String("subject", subject),
		zap.Time("scheduled_at", event.ScheduledAt),
		zap.String("total", event.TotalAmount+" "+event.Currency))
	return nil
}

// Handle decodes a booking event message and sends its notification.
// Unknown or malformed events are skipped.
func (s *Sender) Handle(ctx context.Context, msg kafkago.Message) error {
	var event kafka.BookingEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		s.logger.Warn("skipping malformed booking event", zap.Int64("offset", msg.Offset), zap.Error(err))
		return nil
	}
	if err := s.Send(ctx, event); err != nil {
		s.logger.Warn("skipping booking event", zap.String("booking_id", event.BookingID), zap.Error(err))
	}
	return nil
}
