package audit

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Domenick1991/servicehub/internal/cache"
	"github.com/Domenick1991/servicehub/internal/domain"
	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, topic, key string, value interface{}) error {
	args := m.Called(ctx, topic, key, value)
	return args.Error(0)
}

type memoryDeadLetters struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
	pushErr error
	popErr  error
}

func (d *memoryDeadLetters) PushAuditDeadLetter(ctx context.Context, entry domain.AuditEntry) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pushErr != nil {
		return d.pushErr
	}
	d.entries = append(d.entries, entry)
	return nil
}

func (d *memoryDeadLetters) PopAuditDeadLetters(ctx context.Context, max int) ([]domain.AuditEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := min(max, len(d.entries))
	out := append([]domain.AuditEntry(nil), d.entries[:n]...)
	d.entries = d.entries[n:]
	return out, d.popErr
}

func (d *memoryDeadLetters) len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

func testNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return node
}

var actor = domain.Actor{TenantID: "t1", UserID: "cust-1", ClientIP: "10.0.0.1", UserAgent: "curl"}

func TestSink_PublishesEntry(t *testing.T) {
	pub := &MockPublisher{}
	pub.On("Publish", mock.Anything, "audit-log", "b-1", mock.MatchedBy(func(e domain.AuditEntry) bool {
		return e.ID != 0 &&
			e.TenantID == "t1" &&
			e.UserID == "cust-1" &&
			e.Action == "customer.booking.create" &&
			e.ResourceType == ResourceBooking &&
			e.ClientInfo.IP == "10.0.0.1" &&
			e.Changes["status"] == "pending"
	})).Return(nil).Once()

	sink := NewSink(testNode(t), pub, "audit-log")
	sink.Record(context.Background(), actor, "customer.booking.create", ResourceBooking, "b-1", map[string]any{"status": "pending"})
	sink.Close()

	pub.AssertExpectations(t)
}

func TestSink_RetriesThenDeadLetters(t *testing.T) {
	pub := &MockPublisher{}
	pub.On("Publish", mock.Anything, "audit-log", "b-1", mock.Anything).Return(errors.New("broker down")).Times(3)
	dl := &memoryDeadLetters{}

	sink := NewSink(testNode(t), pub, "audit-log", WithRetry(3, time.Millisecond), WithDeadLetters(dl))
	sink.Record(context.Background(), actor, "customer.booking.create", ResourceBooking, "b-1", nil)
	sink.Close()

	pub.AssertExpectations(t)
	assert.Equal(t, 1, dl.len())
}

func TestSink_RecoversOnRetry(t *testing.T) {
	pub := &MockPublisher{}
	pub.On("Publish", mock.Anything, "audit-log", "b-1", mock.Anything).Return(errors.New("timeout")).Once()
	pub.On("Publish", mock.Anything, "audit-log", "b-1", mock.Anything).Return(nil).Once()
	dl := &memoryDeadLetters{}

	sink := NewSink(testNode(t), pub, "audit-log", WithRetry(3, time.Millisecond), WithDeadLetters(dl))
	sink.Record(context.Background(), actor, "customer.booking.create", ResourceBooking, "b-1", nil)
	sink.Close()

	pub.AssertExpectations(t)
	assert.Equal(t, 0, dl.len())
}

func TestSink_RecordAfterCloseParks(t *testing.T) {
	pub := &MockPublisher{}
	dl := &memoryDeadLetters{}

	sink := NewSink(testNode(t), pub, "audit-log", WithDeadLetters(dl))
	sink.Close()
	sink.Close()

	sink.Record(context.Background(), actor, "customer.booking.cancel", ResourceBooking, "b-1", nil)

	assert.Equal(t, 1, dl.len())
	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSink_DropIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	pub := &MockPublisher{}
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down"))
	dl := &memoryDeadLetters{pushErr: errors.New("redis down")}

	sink := NewSink(testNode(t), pub, "audit-log", WithRetry(1, 0), WithDeadLetters(dl), WithLogger(zap.New(core)))
	sink.Record(context.Background(), actor, "customer.booking.create", ResourceBooking, "b-1", nil)
	sink.Close()

	dropped := logs.FilterMessage("audit entry dropped").All()
	require.Len(t, dropped, 1)
	assert.Equal(t, "b-1", dropped[0].ContextMap()["resource_id"])
}

func TestSink_ReplayDeadLetters(t *testing.T) {
	pub := &MockPublisher{}
	pub.On("Publish", mock.Anything, "audit-log", "b-1", mock.Anything).Return(nil).Once()
	pub.On("Publish", mock.Anything, "audit-log", "b-2", mock.Anything).Return(errors.New("broker down")).Once()
	dl := &memoryDeadLetters{entries: []domain.AuditEntry{
		{ID: 1, ResourceID: "b-1"},
		{ID: 2, ResourceID: "b-2"},
		{ID: 3, ResourceID: "b-3"},
	}}

	sink := NewSink(testNode(t), pub, "audit-log", WithDeadLetters(dl))
	defer sink.Close()

	n, err := sink.ReplayDeadLetters(context.Background(), 10)
	assert.Error(t, err)
	assert.Equal(t, 1, n)
	// the failed entry and everything after it is parked again
	assert.Equal(t, 2, dl.len())
	pub.AssertExpectations(t)
}

func TestSink_ReplayKeepsEntriesPoppedBeforeStoreError(t *testing.T) {
	pub := &MockPublisher{}
	pub.On("Publish", mock.Anything, "audit-log", "b-1", mock.Anything).Return(nil).Once()
	pub.On("Publish", mock.Anything, "audit-log", "b-2", mock.Anything).Return(nil).Once()
	redisDown := errors.New("redis: connection reset")
	dl := &memoryDeadLetters{
		entries: []domain.AuditEntry{{ID: 1, ResourceID: "b-1"}, {ID: 2, ResourceID: "b-2"}},
		popErr:  redisDown,
	}

	sink := NewSink(testNode(t), pub, "audit-log", WithDeadLetters(dl))
	defer sink.Close()

	n, err := sink.ReplayDeadLetters(context.Background(), 10)
	assert.ErrorIs(t, err, redisDown)
	assert.Equal(t, 2, n)
	pub.AssertExpectations(t)
}

func TestSink_ReplaySkipsMalformedDeadLetter(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()
	store := cache.NewRedisCacheFromClient(client, time.Minute)
	ctx := context.Background()

	require.NoError(t, store.PushAuditDeadLetter(ctx, domain.AuditEntry{ID: 1, ResourceID: "b-1"}))
	_, err = s.RPush("deadletter:audit", "not-json")
	require.NoError(t, err)
	require.NoError(t, store.PushAuditDeadLetter(ctx, domain.AuditEntry{ID: 3, ResourceID: "b-3"}))

	pub := &MockPublisher{}
	pub.On("Publish", mock.Anything, "audit-log", "b-1", mock.Anything).Return(nil).Once()
	pub.On("Publish", mock.Anything, "audit-log", "b-3", mock.Anything).Return(nil).Once()

	sink := NewSink(testNode(t), pub, "audit-log", WithDeadLetters(store))
	defer sink.Close()

	n, err := sink.ReplayDeadLetters(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.False(t, s.Exists("deadletter:audit"))
	pub.AssertExpectations(t)
}

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Insert(ctx context.Context, entry domain.AuditEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func TestPersister_Handle(t *testing.T) {
	store := &MockStore{}
	p := NewPersister(store, zap.NewNop())
	ctx := context.Background()

	entry := domain.AuditEntry{ID: 7, TenantID: "t1", Action: "customer.booking.create", ResourceID: "b-1"}
	payload, err := json.Marshal(entry)
	require.NoError(t, err)

	store.On("Insert", ctx, mock.MatchedBy(func(e domain.AuditEntry) bool {
		return e.ID == 7 && e.ResourceID == "b-1"
	})).Return(nil).Once()

	assert.NoError(t, p.Handle(ctx, kafka.Message{Value: payload}))
	store.AssertExpectations(t)
}

func TestPersister_HandleErrors(t *testing.T) {
	store := &MockStore{}
	p := NewPersister(store, zap.NewNop())
	ctx := context.Background()

	assert.NoError(t, p.Handle(ctx, kafka.Message{Value: []byte("not json")}))

	store.On("Insert", ctx, mock.Anything).Return(errors.New("db down")).Once()
	assert.Error(t, p.Handle(ctx, kafka.Message{Value: []byte(`{"id":1}`)}))
}
