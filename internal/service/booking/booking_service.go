package booking

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/Domenick1991/servicehub/internal/audit"
	"github.com/Domenick1991/servicehub/internal/domain"
	"github.com/Domenick1991/servicehub/internal/kafka"
	"github.com/Domenick1991/servicehub/internal/metrics"
	"github.com/Domenick1991/servicehub/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	ActionCreate = "customer.booking.create"
	ActionExpire = "system.booking.expire"

	// SystemUserID is the actor recorded for changes made by the worker.
	SystemUserID = "system"

	DefaultListLimit = 20
	MaxListLimit     = 100
)

type BookingUseCase interface {
	CreateBooking(ctx context.Context, actor domain.Actor, input CreateBookingInput) (*domain.Booking, error)
	GetBooking(ctx context.Context, actor domain.Actor, id string) (*domain.Booking, error)
	ListBookings(ctx context.Context, actor domain.Actor, limit, offset int) ([]domain.Booking, error)
	ConfirmBooking(ctx context.Context, actor domain.Actor, id string) (*domain.Booking, error)
	StartBooking(ctx context.Context, actor domain.Actor, id string) (*domain.Booking, error)
	CompleteBooking(ctx context.Context, actor domain.Actor, id string) (*domain.Booking, error)
	CancelBooking(ctx context.Context, actor domain.Actor, id string) (*domain.Booking, error)
	RefundBooking(ctx context.Context, actor domain.Actor, id string) (*domain.Booking, error)
	ExpirePendingBookings(ctx context.Context) ([]domain.Booking, error)
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

type AuditRecorder interface {
	Record(ctx context.Context, actor domain.Actor, action, resourceType, resourceID string, changes map[string]any)
}

type BookingService struct {
	bookings           repository.BookingRepository
	producer           Producer
	audit              AuditRecorder
	bookingTopic       string
	notificationsTopic string
	logger             *zap.Logger
	location           *time.Location
	softHold           bool
	pendingTTL         time.Duration
	newID              func() string
	now                func() time.Time
}

type CreateBookingInput struct {
	ServiceID       string             `json:"serviceId"`
	ProviderID      string             `json:"providerId"`
	ScheduledAt     string             `json:"scheduledAt"`
	CustomerAddress json.RawMessage    `json:"customerAddress,omitempty"`
	Notes           string             `json:"notes,omitempty"`
	Addons          []string           `json:"addons,omitempty"`
	PaymentType     domain.PaymentType `json:"paymentType"`
}

type BookingServiceOption func(*BookingService)

func WithNotificationsTopic(topic string) BookingServiceOption {
	return func(s *BookingService) {
		s.notificationsTopic = topic
	}
}

func WithAuditRecorder(recorder AuditRecorder) BookingServiceOption {
	return func(s *BookingService) {
		s.audit = recorder
	}
}

func WithLogger(logger *zap.Logger) BookingServiceOption {
	return func(s *BookingService) {
		s.logger = logger
	}
}

// WithLocation sets the zone scheduled times are stored in.
func WithLocation(loc *time.Location) BookingServiceOption {
	return func(s *BookingService) {
		s.location = loc
	}
}

// WithPendingSoftHold lets pending bookings overlap; only confirmed and later
// bookings claim a slot.
func WithPendingSoftHold(enabled bool) BookingServiceOption {
	return func(s *BookingService) {
		s.softHold = enabled
	}
}

// WithPendingTTL enables cancelling pending bookings older than ttl.
func WithPendingTTL(ttl time.Duration) BookingServiceOption {
	return func(s *BookingService) {
		s.pendingTTL = ttl
	}
}

func NewBookingService(
	bookings repository.BookingRepository,
	producer Producer,
	bookingTopic string,
	opts ...BookingServiceOption,
) *BookingService {
	service := &BookingService{
		bookings:     bookings,
		producer:     producer,
		bookingTopic: bookingTopic,
		logger:       zap.NewNop(),
		location:     time.UTC,
		newID:        uuid.NewString,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	service.logger = service.logger.Named("booking")
	return service
}

// CreateBooking reserves a slot for the calling customer. Input is validated
// before any transaction is opened. The audit entry and the booking event are
// emitted only after the reservation commits and never fail the call.
func (s *BookingService) CreateBooking(ctx context.Context, actor domain.Actor, input CreateBookingInput) (b *domain.Booking, err error) {
	defer func(start time.Time) {
		metrics.ReservationDuration.Observe(time.Since(start).Seconds())
		metrics.Reservations.WithLabelValues(metrics.Outcome(string(domain.KindOf(err)))).Inc()
	}(s.now())

	params, err := s.reserveParams(actor, input)
	if err != nil {
		return nil, err
	}

	b, err = s.bookings.Reserve(ctx, params)
	if err != nil {
		s.logFailure("reservation failed", err,
			zap.String("tenant_id", actor.TenantID),
			zap.String("provider_id", params.ProviderID),
			zap.Time("scheduled_at", params.ScheduledAt))
		return nil, err
	}

	s.logger.Info("booking created",
		zap.String("booking_id", b.ID),
		zap.String("tenant_id", b.TenantID),
		zap.String("provider_id", b.ProviderID),
		zap.Time("scheduled_at", b.ScheduledAt))

	addonIDs := make([]string, 0, len(b.Addons))
	for _, a := range b.Addons {
		addonIDs = append(addonIDs, a.AddonID)
	}
	s.record(ctx, actor, ActionCreate, b, map[string]any{
		"status":           string(b.Status),
		"serviceId":        b.ServiceID,
		"providerId":       b.ProviderID,
		"scheduledAt":      b.ScheduledAt,
		"durationMinutes":  b.DurationMinutes,
		"totalAmount":      b.TotalAmount.StringFixed(2),
		"commissionAmount": b.CommissionAmount.StringFixed(2),
		"paymentType":      string(b.PaymentType),
		"addons":           addonIDs,
	})
	s.publish(ctx, kafka.EventBookingCreated, b)
	return b, nil
}

// GetBooking looks a booking up within the actor's tenant. Whether the actor
// may see it (customer, provider staff, admin) is decided by the upstream
// gateway, unlike ListBookings which returns only the actor's own bookings.
func (s *BookingService) GetBooking(ctx context.Context, actor domain.Actor, id string) (*domain.Booking, error) {
	if !actor.Valid() {
		return nil, domain.ErrIdentityRequired
	}
	if strings.TrimSpace(id) == "" {
		return nil, domain.ErrBookingIDRequired
	}
	return s.bookings.GetByID(ctx, actor.TenantID, id)
}

// ListBookings returns the calling customer's bookings, latest slot first.
func (s *BookingService) ListBookings(ctx context.Context, actor domain.Actor, limit, offset int) ([]domain.Booking, error) {
	if !actor.Valid() {
		return nil, domain.ErrIdentityRequired
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	limit = min(limit, MaxListLimit)
	offset = max(offset, 0)
	return s.bookings.ListByCustomer(ctx, actor.TenantID, actor.UserID, limit, offset)
}

func (s *BookingService) ConfirmBooking(ctx context.Context, actor domain.Actor, id string) (*domain.Booking, error) {
	return s.transition(ctx, actor, id, domain.BookingStatusConfirmed, "confirm", kafka.EventBookingConfirmed)
}

func (s *BookingService) StartBooking(ctx context.Context, actor domain.Actor, id string) (*domain.Booking, error) {
	return s.transition(ctx, actor, id, domain.BookingStatusInProgress, "start", kafka.EventBookingStarted)
}

func (s *BookingService) CompleteBooking(ctx context.Context, actor domain.Actor, id string) (*domain.Booking, error) {
	return s.transition(ctx, actor, id, domain.BookingStatusCompleted, "complete", kafka.EventBookingCompleted)
}

func (s *BookingService) CancelBooking(ctx context.Context, actor domain.Actor, id string) (*domain.Booking, error) {
	return s.transition(ctx, actor, id, domain.BookingStatusCancelled, "cancel", kafka.EventBookingCancelled)
}

func (s *BookingService) RefundBooking(ctx context.Context, actor domain.Actor, id string) (*domain.Booking, error) {
	return s.transition(ctx, actor, id, domain.BookingStatusRefunded, "refund", kafka.EventBookingRefunded)
}

// ExpirePendingBookings cancels pending holds older than the configured TTL.
// It is a no-op when no TTL is set.
func (s *BookingService) ExpirePendingBookings(ctx context.Context) ([]domain.Booking, error) {
	if s.pendingTTL <= 0 {
		return nil, nil
	}

	expired, err := s.bookings.ExpirePendingOlderThan(ctx, s.pendingTTL)
	if err != nil {
		return nil, err
	}

	for i := range expired {
		b := &expired[i]
		actor := domain.Actor{TenantID: b.TenantID, UserID: SystemUserID}
		s.record(ctx, actor, ActionExpire, b, map[string]any{"status": string(b.Status)})
		s.publish(ctx, kafka.EventBookingExpired, b)
		metrics.Transitions.WithLabelValues(string(b.Status), "expired").Inc()
	}
	if len(expired) > 0 {
		s.logger.Info("expired pending bookings", zap.Int("count", len(expired)))
	}
	return expired, nil
}

// transition is tenant-scoped like GetBooking; ownership checks belong to the
// upstream gateway.
func (s *BookingService) transition(ctx context.Context, actor domain.Actor, id string, to domain.BookingStatus, verb, eventType string) (*domain.Booking, error) {
	if !actor.Valid() {
		return nil, domain.ErrIdentityRequired
	}
	if strings.TrimSpace(id) == "" {
		return nil, domain.ErrBookingIDRequired
	}

	b, err := s.bookings.Transition(ctx, actor.TenantID, id, to, s.excludedStatuses())
	metrics.Transitions.WithLabelValues(string(to), metrics.Outcome(string(domain.KindOf(err)))).Inc()
	if err != nil {
		s.logFailure("transition failed", err, zap.String("booking_id", id), zap.String("to", string(to)))
		return nil, err
	}

	s.record(ctx, actor, "customer.booking."+verb, b, map[string]any{
		"status":        string(b.Status),
		"paymentStatus": string(b.PaymentStatus),
	})
	s.publish(ctx, eventType, b)
	return b, nil
}

func (s *BookingService) reserveParams(actor domain.Actor, input CreateBookingInput) (repository.ReserveParams, error) {
	if !actor.Valid() {
		return repository.ReserveParams{}, domain.ErrIdentityRequired
	}
	if !input.PaymentType.Valid() {
		return repository.ReserveParams{}, domain.ErrInvalidPaymentType
	}
	serviceID := strings.TrimSpace(input.ServiceID)
	if serviceID == "" {
		return repository.ReserveParams{}, domain.ErrServiceRequired
	}
	providerID := strings.TrimSpace(input.ProviderID)
	if providerID == "" {
		return repository.ReserveParams{}, domain.ErrProviderRequired
	}
	scheduledAt, err := domain.ParseScheduledAt(input.ScheduledAt, s.location)
	if err != nil {
		return repository.ReserveParams{}, err
	}
	address, err := normalizeAddress(input.CustomerAddress)
	if err != nil {
		return repository.ReserveParams{}, err
	}

	return repository.ReserveParams{
		BookingID:        s.newID(),
		TenantID:         actor.TenantID,
		CustomerID:       actor.UserID,
		ServiceID:        serviceID,
		ProviderID:       providerID,
		ScheduledAt:      scheduledAt,
		CustomerAddress:  address,
		Notes:            input.Notes,
		AddonIDs:         uniqueIDs(input.Addons),
		PaymentType:      input.PaymentType,
		ExcludedStatuses: s.excludedStatuses(),
	}, nil
}

func (s *BookingService) excludedStatuses() []domain.BookingStatus {
	return domain.ConflictExcludedStatuses(s.softHold)
}

func (s *BookingService) record(ctx context.Context, actor domain.Actor, action string, b *domain.Booking, changes map[string]any) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, actor, action, audit.ResourceBooking, b.ID, changes)
}

func (s *BookingService) publish(ctx context.Context, eventType string, b *domain.Booking) {
	if s.producer == nil || s.bookingTopic == "" {
		return
	}
	event := kafka.NewBookingEvent(eventType, b, s.now().UTC())
	if err := s.producer.Publish(ctx, s.bookingTopic, b.ID, event); err != nil {
		s.logger.Warn("failed to publish booking event", zap.String("type", eventType), zap.String("booking_id", b.ID), zap.Error(err))
		return
	}
	if s.notificationsTopic != "" {
		if err := s.producer.Publish(ctx, s.notificationsTopic, b.ID, event); err != nil {
			s.logger.Warn("failed to publish notification", zap.String("type", eventType), zap.String("booking_id", b.ID), zap.Error(err))
		}
	}
}

func (s *BookingService) logFailure(msg string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))
	if domain.KindOf(err) == domain.KindInternal {
		s.logger.Error(msg, fields...)
		return
	}
	s.logger.Info(msg, fields...)
}

// normalizeAddress accepts an absent address or a JSON object.
func normalizeAddress(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] != '{' || !json.Valid(trimmed) {
		return nil, domain.ErrInvalidAddress
	}
	return trimmed, nil
}

func uniqueIDs(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

var _ BookingUseCase = (*BookingService)(nil)
