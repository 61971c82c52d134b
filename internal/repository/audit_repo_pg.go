package repository

import (
	"context"
	"encoding/json"

	"github.com/Domenick1991/servicehub/internal/domain"
)

type AuditRepository interface {
	Insert(ctx context.Context, entry domain.AuditEntry) error
}

type PGAuditRepository struct {
	db DB
}

func NewAuditRepository(db DB) AuditRepository {
	return &PGAuditRepository{db: db}
}

// Insert stores an audit entry. Entries are keyed by their snowflake id, so a
// redelivered entry is ignored.
func (r *PGAuditRepository) Insert(ctx context.Context, entry domain.AuditEntry) error {
	changes, err := json.Marshal(entry.Changes)
	if err != nil {
		return domain.Internal("encode audit changes", err)
	}
	client, err := json.Marshal(entry.ClientInfo)
	if err != nil {
		return domain.Internal("encode audit client info", err)
	}

	if _, err := r.db.Exec(ctx, `INSERT INTO audit_logs (id, tenant_id, user_id, action, resource_type, resource_id,
		changes, client_info, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`,
		entry.ID, entry.TenantID, entry.UserID, entry.Action, entry.ResourceType, entry.ResourceID,
		changes, client, entry.CreatedAt); err != nil {
		return domain.Internal("insert audit entry", err)
	}
	return nil
}

var _ AuditRepository = (*PGAuditRepository)(nil)
