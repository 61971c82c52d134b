package email

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/Domenick1991/servicehub/internal/kafka"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSender_Send(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	s := NewSender(zap.New(core))

	err := s.Send(context.Background(), kafka.BookingEvent{
		Type:        kafka.EventBookingConfirmed,
		BookingID:   "b-1",
		CustomerID:  "cust-1",
		TotalAmount: "125.00",
		Currency:    "USD",
	})
	require.NoError(t, err)

	sent := logs.FilterMessage("notification sent").All()
	require.Len(t, sent, 1)
	fields := sent[0].ContextMap()
	assert.Equal(t, "Your booking is confirmed", fields["subject"])
	assert.Equal(t, "125.00 USD", fields["total"])
}

func TestSender_SendUnknownType(t *testing.T) {
	s := NewSender(zap.NewNop())
	assert.Error(t, s.Send(context.Background(), kafka.BookingEvent{Type: "booking_teleported"}))
}

func TestSender_Handle(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	s := NewSender(zap.New(core))
	ctx := context.Background()

	payload, err := json.Marshal(kafka.BookingEvent{Type: kafka.EventBookingCreated, BookingID: "b-1"})
	require.NoError(t, err)

	assert.NoError(t, s.Handle(ctx, kafkago.Message{Value: payload}))
	assert.NoError(t, s.Handle(ctx, kafkago.Message{Value: []byte("{")}))

	assert.Equal(t, 1, logs.FilterMessage("notification sent").Len())
	assert.Equal(t, 1, logs.FilterMessage("skipping malformed booking event").Len())
}
