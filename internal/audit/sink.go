package audit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Domenick1991/servicehub/internal/domain"
	"github.com/Domenick1991/servicehub/internal/metrics"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
)

const (
	ResourceBooking = "booking"

	defaultQueueSize      = 1024
	defaultMaxRetries     = 3
	defaultRetryBackoff   = 500 * time.Millisecond
	defaultPublishTimeout = 5 * time.Second
)

type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload interface{}) error
}

type DeadLetterStore interface {
	PushAuditDeadLetter(ctx context.Context, entry domain.AuditEntry) error
	PopAuditDeadLetters(ctx context.Context, max int) ([]domain.AuditEntry, error)
}

// Sink delivers audit entries to a topic off the request path. Entries are
// queued in memory, published with retries, and parked in the dead letter
// store when every attempt fails.
type Sink struct {
	node        *snowflake.Node
	publisher   Publisher
	deadLetters DeadLetterStore
	topic       string
	logger      *zap.Logger

	queueSize      int
	maxRetries     int
	retryBackoff   time.Duration
	publishTimeout time.Duration
	now            func() time.Time

	mu     sync.RWMutex
	closed bool
	queue  chan domain.AuditEntry
	wg     sync.WaitGroup
}

type Option func(*Sink)

func WithDeadLetters(store DeadLetterStore) Option {
	return func(s *Sink) {
		s.deadLetters = store
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Sink) {
		s.logger = logger
	}
}

func WithQueueSize(n int) Option {
	return func(s *Sink) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

// WithRetry sets the number of publish attempts and the base backoff between
// them. The n-th wait is n times backoff.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(s *Sink) {
		if attempts > 0 {
			s.maxRetries = attempts
		}
		if backoff >= 0 {
			s.retryBackoff = backoff
		}
	}
}

func NewSink(node *snowflake.Node, publisher Publisher, topic string, opts ...Option) *Sink {
	s := &Sink{
		node:           node,
		publisher:      publisher,
		topic:          topic,
		logger:         zap.NewNop(),
		queueSize:      defaultQueueSize,
		maxRetries:     defaultMaxRetries,
		retryBackoff:   defaultRetryBackoff,
		publishTimeout: defaultPublishTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("audit")
	s.queue = make(chan domain.AuditEntry, s.queueSize)

	s.wg.Add(1)
	go s.run()
	return s
}

// Record builds an entry for actor and enqueues it. It never blocks on the
// publisher and never reports an error to the caller.
func (s *Sink) Record(ctx context.Context, actor domain.Actor, action, resourceType, resourceID string, changes map[string]any) {
	entry := domain.AuditEntry{
		ID:           s.node.Generate().Int64(),
		TenantID:     actor.TenantID,
		UserID:       actor.UserID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Changes:      changes,
		ClientInfo:   domain.ClientInfo{IP: actor.ClientIP, UserAgent: actor.UserAgent},
		CreatedAt:    s.now().UTC(),
	}

	s.mu.RLock()
	if !s.closed {
		select {
		case s.queue <- entry:
			s.mu.RUnlock()
			metrics.AuditEvents.WithLabelValues("queued").Inc()
			return
		default:
		}
	}
	s.mu.RUnlock()

	s.logger.Warn("audit queue unavailable, parking entry", zap.String("action", action), zap.String("resource_id", resourceID))
	s.park(context.WithoutCancel(ctx), entry)
}

// Close stops accepting entries and waits until the queue is drained.
func (s *Sink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	s.wg.Wait()
}

// ReplayDeadLetters republishes up to max parked entries. An entry that still
// fails is parked again together with everything after it and the replay
// stops. Entries handed back alongside a store error are still replayed
// before that error is returned.
func (s *Sink) ReplayDeadLetters(ctx context.Context, max int) (int, error) {
	if s.deadLetters == nil {
		return 0, nil
	}

	entries, popErr := s.deadLetters.PopAuditDeadLetters(ctx, max)
	for i, entry := range entries {
		if err := s.publish(ctx, entry); err != nil {
			for _, rest := range entries[i:] {
				s.park(context.WithoutCancel(ctx), rest)
			}
			return i, errors.Join(err, popErr)
		}
		metrics.AuditEvents.WithLabelValues("replayed").Inc()
	}
	return len(entries), popErr
}

func (s *Sink) run() {
	defer s.wg.Done()
	for entry := range s.queue {
		s.deliver(entry)
	}
}

func (s *Sink) deliver(entry domain.AuditEntry) {
	var err error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if err = s.publish(context.Background(), entry); err == nil {
			metrics.AuditEvents.WithLabelValues("published").Inc()
			return
		}
		s.logger.Warn("audit publish failed",
			zap.Int64("audit_id", entry.ID),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
		if attempt < s.maxRetries-1 {
			time.Sleep(time.Duration(attempt+1) * s.retryBackoff)
		}
	}
	s.park(context.Background(), entry)
}

func (s *Sink) publish(ctx context.Context, entry domain.AuditEntry) error {
	ctx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()
	return s.publisher.Publish(ctx, s.topic, entry.ResourceID, entry)
}

func (s *Sink) park(ctx context.Context, entry domain.AuditEntry) {
	if s.deadLetters != nil {
		err := s.deadLetters.PushAuditDeadLetter(ctx, entry)
		if err == nil {
			metrics.AuditEvents.WithLabelValues("dead_lettered").Inc()
			return
		}
		s.logger.Error("audit dead letter failed", zap.Int64("audit_id", entry.ID), zap.Error(err))
	}

	metrics.AuditEvents.WithLabelValues("dropped").Inc()
	s.logger.Error("audit entry dropped",
		zap.Int64("audit_id", entry.ID),
		zap.String("tenant_id", entry.TenantID),
		zap.String("user_id", entry.UserID),
		zap.String("action", entry.Action),
		zap.String("resource_id", entry.ResourceID),
		zap.Any("changes", entry.Changes))
}
