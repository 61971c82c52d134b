package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Domenick1991/servicehub/internal/domain"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Store interface {
	Insert(ctx context.Context, entry domain.AuditEntry) error
}

// Persister writes audit entries consumed from the audit topic to storage.
type Persister struct {
	store  Store
	logger *zap.Logger
}

func NewPersister(store Store, logger *zap.Logger) *Persister {
	return &Persister{store: store, logger: logger.Named("audit.persister")}
}

// Handle stores one message. Undecodable messages are logged and skipped so
// they do not block the partition.
func (p *Persister) Handle(ctx context.Context, msg kafka.Message) error {
	var entry domain.AuditEntry
	if err := json.Unmarshal(msg.Value, &entry); err != nil {
		p.logger.Error("skipping malformed audit message", zap.Int64("offset", msg.Offset), zap.Error(err))
		return nil
	}

	if err := p.store.Insert(ctx, entry); err != nil {
		return fmt.Errorf("persist audit entry %d: %w", entry.ID, err)
	}
	return nil
}
