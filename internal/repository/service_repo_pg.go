package repository

import (
	"context"
	"errors"

	"github.com/Domenick1991/servicehub/internal/domain"
	"github.com/jackc/pgx/v5"
)

const serviceColumns = `s.id, s.tenant_id, s.provider_id, s.name, s.base_price, s.currency,
	s.duration_minutes, s.is_active, p.commission_rate`

type ServiceRepository interface {
	GetByID(ctx context.Context, tenantID, id string) (*domain.Service, error)
	ListByProvider(ctx context.Context, tenantID, providerID string) ([]domain.Service, error)
	ListAddons(ctx context.Context, serviceID string) ([]domain.ServiceAddon, error)
}

type PGServiceRepository struct {
	db DB
}

func NewServiceRepository(db DB) ServiceRepository {
	return &PGServiceRepository{db: db}
}

func (r *PGServiceRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Service, error) {
	svc, err := scanService(r.db.QueryRow(ctx, `SELECT `+serviceColumns+`
		FROM services s
		JOIN providers p ON p.id = s.provider_id AND p.tenant_id = s.tenant_id
		WHERE s.id = $1 AND s.tenant_id = $2 AND s.is_active`, id, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrServiceNotFound
	}
	if err != nil {
		return nil, domain.Internal("get service", err)
	}
	return svc, nil
}

func (r *PGServiceRepository) ListByProvider(ctx context.Context, tenantID, providerID string) ([]domain.Service, error) {
	rows, err := r.db.Query(ctx, `SELECT `+serviceColumns+`
		FROM services s
		JOIN providers p ON p.id = s.provider_id AND p.tenant_id = s.tenant_id
		WHERE s.provider_id = $1 AND s.tenant_id = $2 AND s.is_active
		ORDER BY s.name, s.id`, providerID, tenantID)
	if err != nil {
		return nil, domain.Internal("list services", err)
	}
	defer rows.Close()

	services := make([]domain.Service, 0)
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, domain.Internal("scan service", err)
		}
		services = append(services, *svc)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal("list services", err)
	}
	return services, nil
}

func (r *PGServiceRepository) ListAddons(ctx context.Context, serviceID string) ([]domain.ServiceAddon, error) {
	rows, err := r.db.Query(ctx, `SELECT id, service_id, name, price FROM service_addons WHERE service_id = $1 ORDER BY id`, serviceID)
	if err != nil {
		return nil, domain.Internal("list addons", err)
	}
	return collectAddons(rows)
}

// scanService reads serviceColumns. A NULL duration is left as zero and
// resolved by Service.EffectiveDuration.
func scanService(row pgx.Row) (*domain.Service, error) {
	var svc domain.Service
	var duration *int
	if err := row.Scan(&svc.ID, &svc.TenantID, &svc.ProviderID, &svc.Name, &svc.BasePrice, &svc.Currency,
		&duration, &svc.Active, &svc.CommissionRate); err != nil {
		return nil, err
	}
	if duration != nil {
		svc.DurationMinutes = *duration
	}
	return &svc, nil
}

func collectAddons(rows pgx.Rows) ([]domain.ServiceAddon, error) {
	defer rows.Close()

	addons := make([]domain.ServiceAddon, 0)
	for rows.Next() {
		var a domain.ServiceAddon
		if err := rows.Scan(&a.ID, &a.ServiceID, &a.Name, &a.Price); err != nil {
			return nil, domain.Internal("scan addon", err)
		}
		addons = append(addons, a)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal("read addons", err)
	}
	return addons, nil
}

var _ ServiceRepository = (*PGServiceRepository)(nil)
