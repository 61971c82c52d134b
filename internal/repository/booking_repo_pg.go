package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/servicehub/internal/domain"
	"github.com/jackc/pgx/v5"
)

const bookingColumns = `id, tenant_id, customer_id, provider_id, service_id, status, scheduled_at,
	duration_minutes, total_amount, commission_amount, currency, payment_status, payment_type,
	customer_address, notes, created_at, updated_at`

// ReserveParams is a validated reservation request.
type ReserveParams struct {
	BookingID       string
	TenantID        string
	CustomerID      string
	ServiceID       string
	ProviderID      string
	ScheduledAt     time.Time
	CustomerAddress json.RawMessage
	Notes           string
	AddonIDs        []string
	PaymentType     domain.PaymentType
	// ExcludedStatuses are the booking statuses that do not occupy a slot.
	ExcludedStatuses []domain.BookingStatus
}

type BookingRepository interface {
	Reserve(ctx context.Context, p ReserveParams) (*domain.Booking, error)
	GetByID(ctx context.Context, tenantID, id string) (*domain.Booking, error)
	ListByCustomer(ctx context.Context, tenantID, customerID string, limit, offset int) ([]domain.Booking, error)
	Transition(ctx context.Context, tenantID, id string, to domain.BookingStatus, excluded []domain.BookingStatus) (*domain.Booking, error)
	ExpirePendingOlderThan(ctx context.Context, ttl time.Duration) ([]domain.Booking, error)
}

type PGBookingRepository struct {
	db          DB
	lockTimeout time.Duration
}

type BookingRepositoryOption func(*PGBookingRepository)

// WithLockTimeout bounds how long a transaction waits for row locks.
// Zero keeps the server default.
func WithLockTimeout(d time.Duration) BookingRepositoryOption {
	return func(r *PGBookingRepository) {
		r.lockTimeout = d
	}
}

func NewBookingRepository(db DB, opts ...BookingRepositoryOption) BookingRepository {
	r := &PGBookingRepository{db: db}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reserve creates a pending booking and its addon rows in one transaction.
//
// The service row and its provider row are locked first. The provider lock
// serializes every reservation on that provider's timeline, so the overlap
// check below cannot race with a concurrent insert into an empty slot.
// Overlapping bookings that occupy the timeline are locked as well.
func (r *PGBookingRepository) Reserve(ctx context.Context, p ReserveParams) (*domain.Booking, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, domain.Internal("begin reservation", err)
	}
	defer tx.Rollback(ctx)

	if err := r.setLockTimeout(ctx, tx); err != nil {
		return nil, err
	}

	svc, err := lockService(ctx, tx, p.TenantID, p.ProviderID, p.ServiceID)
	if err != nil {
		return nil, err
	}

	duration := svc.EffectiveDuration()
	end := p.ScheduledAt.Add(time.Duration(duration) * time.Minute)

	conflict, err := hasConflict(ctx, tx, p.TenantID, p.ProviderID, "", p.ScheduledAt, end, p.ExcludedStatuses)
	if err != nil {
		return nil, err
	}
	if conflict {
		return nil, domain.ErrSlotNotAvailable
	}

	addons, err := resolveAddons(ctx, tx, p.ServiceID, p.AddonIDs)
	if err != nil {
		return nil, err
	}
	total, commission := domain.Quote(svc.BasePrice, addons, svc.CommissionRate)

	b := &domain.Booking{
		ID:               p.BookingID,
		TenantID:         p.TenantID,
		CustomerID:       p.CustomerID,
		ProviderID:       p.ProviderID,
		ServiceID:        p.ServiceID,
		Status:           domain.BookingStatusPending,
		ScheduledAt:      p.ScheduledAt,
		DurationMinutes:  duration,
		TotalAmount:      total,
		CommissionAmount: commission,
		Currency:         svc.Currency,
		PaymentStatus:    domain.PaymentStatusPending,
		PaymentType:      p.PaymentType,
		CustomerAddress:  p.CustomerAddress,
		Notes:            p.Notes,
	}

	if err := tx.QueryRow(ctx, `INSERT INTO bookings (id, tenant_id, customer_id, provider_id, service_id, status,
		scheduled_at, duration_minutes, total_amount, commission_amount, currency, payment_status,
		payment_type, customer_address, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at, updated_at`,
		b.ID, b.TenantID, b.CustomerID, b.ProviderID, b.ServiceID, string(b.Status),
		b.ScheduledAt, b.DurationMinutes, b.TotalAmount, b.CommissionAmount, b.Currency, string(b.PaymentStatus),
		string(b.PaymentType), jsonParam(b.CustomerAddress), b.Notes).
		Scan(&b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, domain.Internal("insert booking", err)
	}

	for _, a := range addons {
		if _, err := tx.Exec(ctx, `INSERT INTO booking_addons (booking_id, addon_id, price) VALUES ($1, $2, $3)`,
			b.ID, a.ID, a.Price); err != nil {
			return nil, domain.Internal("insert booking addon", err)
		}
		b.Addons = append(b.Addons, domain.BookingAddon{BookingID: b.ID, AddonID: a.ID, Price: a.Price})
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, domain.Internal("commit reservation", err)
	}
	return b, nil
}

func (r *PGBookingRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Booking, error) {
	b, err := scanBooking(r.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 AND tenant_id = $2`, id, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrBookingNotFound
	}
	if err != nil {
		return nil, domain.Internal("get booking", err)
	}

	rows, err := r.db.Query(ctx, `SELECT booking_id, addon_id, price FROM booking_addons WHERE booking_id = $1 ORDER BY addon_id`, id)
	if err != nil {
		return nil, domain.Internal("get booking addons", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a domain.BookingAddon
		if err := rows.Scan(&a.BookingID, &a.AddonID, &a.Price); err != nil {
			return nil, domain.Internal("scan booking addon", err)
		}
		b.Addons = append(b.Addons, a)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal("get booking addons", err)
	}
	return b, nil
}

func (r *PGBookingRepository) ListByCustomer(ctx context.Context, tenantID, customerID string, limit, offset int) ([]domain.Booking, error) {
	rows, err := r.db.Query(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE tenant_id = $1 AND customer_id = $2
		ORDER BY scheduled_at DESC, id
		LIMIT $3 OFFSET $4`, tenantID, customerID, limit, offset)
	if err != nil {
		return nil, domain.Internal("list bookings", err)
	}
	return collectBookings(rows)
}

// Transition moves a booking to status to. Confirming re-checks the
// provider's timeline under the same locks a reservation takes, so a pending
// hold cannot be confirmed over a slot that has been claimed meanwhile.
func (r *PGBookingRepository) Transition(ctx context.Context, tenantID, id string, to domain.BookingStatus, excluded []domain.BookingStatus) (*domain.Booking, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, domain.Internal("begin transition", err)
	}
	defer tx.Rollback(ctx)

	if err := r.setLockTimeout(ctx, tx); err != nil {
		return nil, err
	}

	// provider before booking, the same order Reserve uses
	if to == domain.BookingStatusConfirmed {
		if err := lockBookingProvider(ctx, tx, tenantID, id); err != nil {
			return nil, err
		}
	}

	b, err := scanBooking(tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 AND tenant_id = $2 FOR UPDATE`, id, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrBookingNotFound
	}
	if err != nil {
		return nil, domain.Internal("lock booking", err)
	}

	if !b.Status.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: %s to %s", domain.ErrInvalidTransition, b.Status, to)
	}

	if to == domain.BookingStatusConfirmed {
		conflict, err := hasConflict(ctx, tx, tenantID, b.ProviderID, b.ID, b.ScheduledAt, b.EndsAt(), excluded)
		if err != nil {
			return nil, err
		}
		if conflict {
			return nil, domain.ErrSlotNotAvailable
		}
	}

	paymentStatus := b.PaymentStatus
	if to == domain.BookingStatusRefunded {
		paymentStatus = domain.PaymentStatusRefunded
	}

	if err := tx.QueryRow(ctx, `UPDATE bookings SET status = $1, payment_status = $2, updated_at = now()
		WHERE id = $3 AND tenant_id = $4
		RETURNING updated_at`, string(to), string(paymentStatus), id, tenantID).Scan(&b.UpdatedAt); err != nil {
		return nil, domain.Internal("update booking status", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, domain.Internal("commit transition", err)
	}

	b.Status = to
	b.PaymentStatus = paymentStatus
	return b, nil
}

// ExpirePendingOlderThan cancels pending bookings created more than ttl ago.
func (r *PGBookingRepository) ExpirePendingOlderThan(ctx context.Context, ttl time.Duration) ([]domain.Booking, error) {
	rows, err := r.db.Query(ctx, `UPDATE bookings SET status = $1, updated_at = now()
		WHERE status = $2 AND created_at <= now() - make_interval(mins => $3)
		RETURNING `+bookingColumns,
		string(domain.BookingStatusCancelled), string(domain.BookingStatusPending), int(ttl/time.Minute))
	if err != nil {
		return nil, domain.Internal("expire pending bookings", err)
	}
	return collectBookings(rows)
}

func (r *PGBookingRepository) setLockTimeout(ctx context.Context, tx pgx.Tx) error {
	if r.lockTimeout <= 0 {
		return nil
	}
	if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`,
		fmt.Sprintf("%dms", r.lockTimeout.Milliseconds())); err != nil {
		return domain.Internal("set lock timeout", err)
	}
	return nil
}

func lockService(ctx context.Context, tx pgx.Tx, tenantID, providerID, serviceID string) (*domain.Service, error) {
	svc, err := scanService(tx.QueryRow(ctx, `SELECT `+serviceColumns+`
		FROM services s
		JOIN providers p ON p.id = s.provider_id AND p.tenant_id = s.tenant_id
		WHERE s.id = $1 AND s.provider_id = $2 AND s.tenant_id = $3 AND s.is_active
		FOR UPDATE OF s, p`, serviceID, providerID, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrServiceNotFound
	}
	if err != nil {
		return nil, domain.Internal("lock service", err)
	}
	return svc, nil
}

func lockBookingProvider(ctx context.Context, tx pgx.Tx, tenantID, bookingID string) error {
	var providerID string
	err := tx.QueryRow(ctx, `SELECT provider_id FROM bookings WHERE id = $1 AND tenant_id = $2`, bookingID, tenantID).Scan(&providerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrBookingNotFound
	}
	if err != nil {
		return domain.Internal("find booking provider", err)
	}

	if _, err := tx.Exec(ctx, `SELECT 1 FROM providers WHERE id = $1 AND tenant_id = $2 FOR UPDATE`, providerID, tenantID); err != nil {
		return domain.Internal("lock provider", err)
	}
	return nil
}

// hasConflict locks and counts bookings of the provider whose slot overlaps
// [start, end). Bookings in an excluded status and excludeID are ignored.
func hasConflict(ctx context.Context, tx pgx.Tx, tenantID, providerID, excludeID string, start, end time.Time, excluded []domain.BookingStatus) (bool, error) {
	rows, err := tx.Query(ctx, `SELECT id FROM bookings
		WHERE provider_id = $1 AND tenant_id = $2
		  AND id <> $3
		  AND status <> ALL($4)
		  AND scheduled_at < $5
		  AND scheduled_at + make_interval(mins => duration_minutes) > $6
		FOR UPDATE`, providerID, tenantID, excludeID, statusStrings(excluded), end, start)
	if err != nil {
		return false, domain.Internal("check slot conflicts", err)
	}
	defer rows.Close()

	conflicts := 0
	for rows.Next() {
		conflicts++
	}
	if err := rows.Err(); err != nil {
		return false, domain.Internal("check slot conflicts", err)
	}
	return conflicts > 0, nil
}

// resolveAddons loads the requested addons of the service. Ids that do not
// belong to the service are ignored.
func resolveAddons(ctx context.Context, tx pgx.Tx, serviceID string, ids []string) ([]domain.ServiceAddon, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := tx.Query(ctx, `SELECT id, service_id, name, price FROM service_addons
		WHERE service_id = $1 AND id = ANY($2)
		ORDER BY id`, serviceID, ids)
	if err != nil {
		return nil, domain.Internal("resolve addons", err)
	}
	return collectAddons(rows)
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking
	var status, paymentStatus, paymentType string
	var address []byte
	if err := row.Scan(&b.ID, &b.TenantID, &b.CustomerID, &b.ProviderID, &b.ServiceID, &status, &b.ScheduledAt,
		&b.DurationMinutes, &b.TotalAmount, &b.CommissionAmount, &b.Currency, &paymentStatus, &paymentType,
		&address, &b.Notes, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	b.Status = domain.BookingStatus(status)
	b.PaymentStatus = domain.PaymentStatus(paymentStatus)
	b.PaymentType = domain.PaymentType(paymentType)
	if len(address) > 0 {
		b.CustomerAddress = json.RawMessage(address)
	}
	return &b, nil
}

func collectBookings(rows pgx.Rows) ([]domain.Booking, error) {
	defer rows.Close()

	bookings := make([]domain.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, domain.Internal("scan booking", err)
		}
		bookings = append(bookings, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal("read bookings", err)
	}
	return bookings, nil
}

func jsonParam(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

var _ BookingRepository = (*PGBookingRepository)(nil)
