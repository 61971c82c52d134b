package cache

import (
	"context"
	"testing"
	"time"

	"github.com/Domenick1991/servicehub/internal/domain"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCacheFromClient(client, time.Minute), s
}

func TestRedisCache_Service(t *testing.T) {
	c, s := newTestCache(t)
	ctx := context.Background()

	got, err := c.GetService(ctx, "t1", "svc-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	svc := &domain.Service{ID: "svc-1", TenantID: "t1", Name: "Deep clean", BasePrice: decimal.RequireFromString("100.00")}
	require.NoError(t, c.SetService(ctx, svc))

	got, err = c.GetService(ctx, "t1", "svc-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Deep clean", got.Name)
	assert.True(t, got.BasePrice.Equal(svc.BasePrice))

	// keys are tenant scoped
	other, err := c.GetService(ctx, "t2", "svc-1")
	require.NoError(t, err)
	assert.Nil(t, other)

	s.FastForward(2 * time.Minute)
	got, err = c.GetService(ctx, "t1", "svc-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisCache_ProviderServices(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetProviderServices(ctx, "t1", "prov-1", []domain.Service{{ID: "a"}, {ID: "b"}}))

	got, err := c.GetProviderServices(ctx, "t1", "prov-1")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestRedisCache_Lock(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	token, ok, err := c.AcquireLock(ctx, "expire-pending", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEmpty(t, token)

	_, ok, err = c.AcquireLock(ctx, "expire-pending", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.ReleaseLock(ctx, "expire-pending", token))
	_, ok, err = c.AcquireLock(ctx, "expire-pending", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisCache_ReleaseLockKeepsForeignLease(t *testing.T) {
	c, s := newTestCache(t)
	ctx := context.Background()

	stale, ok, err := c.AcquireLock(ctx, "expire-pending", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	s.FastForward(2 * time.Minute)
	current, ok, err := c.AcquireLock(ctx, "expire-pending", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, c.ReleaseLock(ctx, "expire-pending", stale))
	held, err := s.Get(lockKey("expire-pending"))
	require.NoError(t, err)
	assert.Equal(t, current, held)

	require.NoError(t, c.ReleaseLock(ctx, "expire-pending", current))
	assert.False(t, s.Exists(lockKey("expire-pending")))
}

func TestRedisCache_AuditDeadLetters(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, c.PushAuditDeadLetter(ctx, domain.AuditEntry{ID: i, Action: "customer.booking.create"}))
	}

	first, err := c.PopAuditDeadLetters(ctx, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, int64(1), first[0].ID)
	assert.Equal(t, int64(2), first[1].ID)

	rest, err := c.PopAuditDeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, int64(3), rest[0].ID)

	empty, err := c.PopAuditDeadLetters(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRedisCache_AuditDeadLettersSkipsMalformed(t *testing.T) {
	c, s := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.PushAuditDeadLetter(ctx, domain.AuditEntry{ID: 1}))
	_, err := s.RPush(auditDeadLetterKey, "not-json")
	require.NoError(t, err)
	require.NoError(t, c.PushAuditDeadLetter(ctx, domain.AuditEntry{ID: 3}))

	entries, err := c.PopAuditDeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(1), entries[0].ID)
	assert.Equal(t, int64(3), entries[1].ID)

	malformed, err := s.List(auditMalformedKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"not-json"}, malformed)
	assert.False(t, s.Exists(auditDeadLetterKey))
}
