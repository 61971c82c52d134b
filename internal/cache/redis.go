package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/servicehub/config"
	"github.com/Domenick1991/servicehub/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	auditDeadLetterKey = "deadletter:audit"
	// Entries that no longer decode are moved here for manual inspection.
	auditMalformedKey = "deadletter:audit:malformed"
)

var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisCache struct {
	client     *redis.Client
	catalogTTL time.Duration
}

func NewRedisCache(cfg config.RedisConfig, catalogTTL time.Duration) *RedisCache {
	return NewRedisCacheFromClient(
		redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
		catalogTTL,
	)
}

func NewRedisCacheFromClient(client *redis.Client, catalogTTL time.Duration) *RedisCache {
	return &RedisCache{client: client, catalogTTL: catalogTTL}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// GetService returns nil without an error on a cache miss.
func (c *RedisCache) GetService(ctx context.Context, tenantID, serviceID string) (*domain.Service, error) {
	var svc domain.Service
	found, err := c.getJSON(ctx, serviceKey(tenantID, serviceID), &svc)
	if err != nil || !found {
		return nil, err
	}
	return &svc, nil
}

func (c *RedisCache) SetService(ctx context.Context, svc *domain.Service) error {
	return c.setJSON(ctx, serviceKey(svc.TenantID, svc.ID), svc)
}

// GetProviderServices returns nil without an error on a cache miss.
func (c *RedisCache) GetProviderServices(ctx context.Context, tenantID, providerID string) ([]domain.Service, error) {
	var services []domain.Service
	found, err := c.getJSON(ctx, providerServicesKey(tenantID, providerID), &services)
	if err != nil || !found {
		return nil, err
	}
	return services, nil
}

func (c *RedisCache) SetProviderServices(ctx context.Context, tenantID, providerID string, services []domain.Service) error {
	return c.setJSON(ctx, providerServicesKey(tenantID, providerID), services)
}

// AcquireLock takes a best-effort lease on name for ttl. The returned token
// must be passed to ReleaseLock.
func (c *RedisCache) AcquireLock(ctx context.Context, name string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := c.client.SetNX(ctx, lockKey(name), token, ttl).Result()
	if err != nil || !ok {
		return "", false, err
	}
	return token, true, nil
}

// ReleaseLock drops the lease only while it is still held with token, so an
// expired lease taken over by another holder is left alone.
func (c *RedisCache) ReleaseLock(ctx context.Context, name, token string) error {
	return releaseLockScript.Run(ctx, c.client, []string{lockKey(name)}, token).Err()
}

// PushAuditDeadLetter parks an audit entry that could not be published.
func (c *RedisCache) PushAuditDeadLetter(ctx context.Context, entry domain.AuditEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.client.RPush(ctx, auditDeadLetterKey, payload).Err()
}

// PopAuditDeadLetters removes and returns up to max parked entries, oldest
// first. Entries that fail to decode are moved to the malformed list and do not
// count toward max. On a Redis error the entries popped so far are returned
// with the error.
func (c *RedisCache) PopAuditDeadLetters(ctx context.Context, max int) ([]domain.AuditEntry, error) {
	entries := make([]domain.AuditEntry, 0)
	for len(entries) < max {
		data, err := c.client.LPop(ctx, auditDeadLetterKey).Bytes()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return entries, err
		}

		var entry domain.AuditEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			if err := c.client.RPush(ctx, auditMalformedKey, data).Err(); err != nil {
				return entries, fmt.Errorf("park malformed dead letter: %w", err)
			}
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (c *RedisCache) getJSON(ctx context.Context, key string, dst any) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisCache) setJSON(ctx context.Context, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, c.catalogTTL).Err()
}

func serviceKey(tenantID, serviceID string) string {
	return fmt.Sprintf("cache:tenant:%s:service:%s", tenantID, serviceID)
}

func providerServicesKey(tenantID, providerID string) string {
	return fmt.Sprintf("cache:tenant:%s:provider:%s:services", tenantID, providerID)
}

func lockKey(name string) string {
	return "lock:" + name
}
