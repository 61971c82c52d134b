package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/Domenick1991/servicehub/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockServiceRepository struct {
	mock.Mock
}

func (m *MockServiceRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Service, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Service), args.Error(1)
}

func (m *MockServiceRepository) ListByProvider(ctx context.Context, tenantID, providerID string) ([]domain.Service, error) {
	args := m.Called(ctx, tenantID, providerID)
	return args.Get(0).([]domain.Service), args.Error(1)
}

func (m *MockServiceRepository) ListAddons(ctx context.Context, serviceID string) ([]domain.ServiceAddon, error) {
	args := m.Called(ctx, serviceID)
	return args.Get(0).([]domain.ServiceAddon), args.Error(1)
}

type MockCache struct {
	mock.Mock
}

func (m *MockCache) GetService(ctx context.Context, tenantID, serviceID string) (*domain.Service, error) {
	args := m.Called(ctx, tenantID, serviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Service), args.Error(1)
}

func (m *MockCache) SetService(ctx context.Context, svc *domain.Service) error {
	args := m.Called(ctx, svc)
	return args.Error(0)
}

func (m *MockCache) GetProviderServices(ctx context.Context, tenantID, providerID string) ([]domain.Service, error) {
	args := m.Called(ctx, tenantID, providerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Service), args.Error(1)
}

func (m *MockCache) SetProviderServices(ctx context.Context, tenantID, providerID string, services []domain.Service) error {
	args := m.Called(ctx, tenantID, providerID, services)
	return args.Error(0)
}

var actor = domain.Actor{TenantID: "t1", UserID: "cust-1"}

func deepClean() *domain.Service {
	return &domain.Service{
		ID:         "svc-1",
		TenantID:   "t1",
		ProviderID: "prov-1",
		Name:       "Deep clean",
		BasePrice:  decimal.RequireFromString("100.00"),
		Currency:   "USD",
		Active:     true,
	}
}

func TestCatalogService_GetService_CacheMiss(t *testing.T) {
	mockRepo := &MockServiceRepository{}
	mockCache := &MockCache{}
	service := NewCatalogService(mockRepo, mockCache, zap.NewNop())
	ctx := context.Background()

	addons := []domain.ServiceAddon{{ID: "a1", ServiceID: "svc-1", Price: decimal.RequireFromString("10.00")}}

	mockCache.On("GetService", ctx, "t1", "svc-1").Return(nil, nil).Once()
	mockRepo.On("GetByID", ctx, "t1", "svc-1").Return(deepClean(), nil).Once()
	mockRepo.On("ListAddons", ctx, "svc-1").Return(addons, nil).Once()
	mockCache.On("SetService", ctx, mock.MatchedBy(func(s *domain.Service) bool {
		return s.ID == "svc-1" && len(s.Addons) == 1
	})).Return(nil).Once()

	svc, err := service.GetService(ctx, actor, "svc-1")

	require.NoError(t, err)
	assert.Len(t, svc.Addons, 1)
	mockRepo.AssertExpectations(t)
	mockCache.AssertExpectations(t)
}

func TestCatalogService_GetService_CacheHit(t *testing.T) {
	mockRepo := &MockServiceRepository{}
	mockCache := &MockCache{}
	service := NewCatalogService(mockRepo, mockCache, zap.NewNop())
	ctx := context.Background()

	mockCache.On("GetService", ctx, "t1", "svc-1").Return(deepClean(), nil).Once()

	svc, err := service.GetService(ctx, actor, "svc-1")

	require.NoError(t, err)
	assert.Equal(t, "Deep clean", svc.Name)
	mockRepo.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything, mock.Anything)
}

func TestCatalogService_GetService_CacheDown(t *testing.T) {
	mockRepo := &MockServiceRepository{}
	mockCache := &MockCache{}
	service := NewCatalogService(mockRepo, mockCache, zap.NewNop())
	ctx := context.Background()

	mockCache.On("GetService", ctx, "t1", "svc-1").Return(nil, errors.New("redis down")).Once()
	mockRepo.On("GetByID", ctx, "t1", "svc-1").Return(deepClean(), nil).Once()
	mockRepo.On("ListAddons", ctx, "svc-1").Return([]domain.ServiceAddon{}, nil).Once()
	mockCache.On("SetService", ctx, mock.Anything).Return(errors.New("redis down")).Once()

	svc, err := service.GetService(ctx, actor, "svc-1")

	require.NoError(t, err)
	assert.Equal(t, "svc-1", svc.ID)
	mockRepo.AssertExpectations(t)
}

func TestCatalogService_GetService_Errors(t *testing.T) {
	mockRepo := &MockServiceRepository{}
	service := NewCatalogService(mockRepo, nil, zap.NewNop())
	ctx := context.Background()

	mockRepo.On("GetByID", ctx, "t1", "missing").Return(nil, domain.ErrServiceNotFound).Once()

	_, err := service.GetService(ctx, actor, "missing")
	assert.ErrorIs(t, err, domain.ErrServiceNotFound)

	_, err = service.GetService(ctx, actor, "")
	assert.ErrorIs(t, err, domain.ErrServiceRequired)

	_, err = service.GetService(ctx, domain.Actor{}, "svc-1")
	assert.ErrorIs(t, err, domain.ErrIdentityRequired)
}

func TestCatalogService_ListProviderServices(t *testing.T) {
	mockRepo := &MockServiceRepository{}
	mockCache := &MockCache{}
	service := NewCatalogService(mockRepo, mockCache, zap.NewNop())
	ctx := context.Background()

	services := []domain.Service{*deepClean()}

	mockCache.On("GetProviderServices", ctx, "t1", "prov-1").Return(nil, nil).Once()
	mockRepo.On("ListByProvider", ctx, "t1", "prov-1").Return(services, nil).Once()
	mockCache.On("SetProviderServices", ctx, "t1", "prov-1", services).Return(nil).Once()

	result, err := service.ListProviderServices(ctx, actor, "prov-1")

	require.NoError(t, err)
	assert.Equal(t, services, result)
	mockRepo.AssertExpectations(t)
	mockCache.AssertExpectations(t)

	_, err = service.ListProviderServices(ctx, actor, " ")
	assert.ErrorIs(t, err, domain.ErrProviderRequired)
}
