package catalog

import (
	"context"
	"strings"

	"github.com/Domenick1991/servicehub/internal/domain"
	"github.com/Domenick1991/servicehub/internal/repository"
	"go.uber.org/zap"
)

type CatalogUseCase interface {
	GetService(ctx context.Context, actor domain.Actor, id string) (*domain.Service, error)
	ListProviderServices(ctx context.Context, actor domain.Actor, providerID string) ([]domain.Service, error)
}

type Cache interface {
	GetService(ctx context.Context, tenantID, serviceID string) (*domain.Service, error)
	SetService(ctx context.Context, svc *domain.Service) error
	GetProviderServices(ctx context.Context, tenantID, providerID string) ([]domain.Service, error)
	SetProviderServices(ctx context.Context, tenantID, providerID string, services []domain.Service) error
}

// CatalogService serves the read-only service catalog. Cache errors are
// logged and the store is used instead.
type CatalogService struct {
	repo   repository.ServiceRepository
	cache  Cache
	logger *zap.Logger
}

func NewCatalogService(repo repository.ServiceRepository, cache Cache, logger *zap.Logger) *CatalogService {
	return &CatalogService{repo: repo, cache: cache, logger: logger.Named("catalog")}
}

// GetService returns an active service with its addons.
func (s *CatalogService) GetService(ctx context.Context, actor domain.Actor, id string) (*domain.Service, error) {
	if actor.TenantID == "" {
		return nil, domain.ErrIdentityRequired
	}
	if strings.TrimSpace(id) == "" {
		return nil, domain.ErrServiceRequired
	}

	if s.cache != nil {
		cached, err := s.cache.GetService(ctx, actor.TenantID, id)
		if err != nil {
			s.logger.Warn("catalog cache read failed", zap.String("service_id", id), zap.Error(err))
		} else if cached != nil {
			return cached, nil
		}
	}

	svc, err := s.repo.GetByID(ctx, actor.TenantID, id)
	if err != nil {
		return nil, err
	}
	addons, err := s.repo.ListAddons(ctx, svc.ID)
	if err != nil {
		return nil, err
	}
	svc.Addons = addons

	if s.cache != nil {
		if err := s.cache.SetService(ctx, svc); err != nil {
			s.logger.Warn("catalog cache write failed", zap.String("service_id", id), zap.Error(err))
		}
	}
	return svc, nil
}

// ListProviderServices returns the provider's active services without addons.
func (s *CatalogService) ListProviderServices(ctx context.Context, actor domain.Actor, providerID string) ([]domain.Service, error) {
	if actor.TenantID == "" {
		return nil, domain.ErrIdentityRequired
	}
	if strings.TrimSpace(providerID) == "" {
		return nil, domain.ErrProviderRequired
	}

	if s.cache != nil {
		cached, err := s.cache.GetProviderServices(ctx, actor.TenantID, providerID)
		if err != nil {
			s.logger.Warn("catalog cache read failed", zap.String("provider_id", providerID), zap.Error(err))
		} else if cached != nil {
			return cached, nil
		}
	}

	services, err := s.repo.ListByProvider(ctx, actor.TenantID, providerID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetProviderServices(ctx, actor.TenantID, providerID, services); err != nil {
			s.logger.Warn("catalog cache write failed", zap.String("provider_id", providerID), zap.Error(err))
		}
	}
	return services, nil
}

var _ CatalogUseCase = (*CatalogService)(nil)
