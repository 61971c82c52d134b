package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Domenick1991/servicehub/config"
	"github.com/Domenick1991/servicehub/internal/audit"
	"github.com/Domenick1991/servicehub/internal/cache"
	"github.com/Domenick1991/servicehub/internal/email"
	"github.com/Domenick1991/servicehub/internal/kafka"
	"github.com/Domenick1991/servicehub/internal/logger"
	"github.com/Domenick1991/servicehub/internal/repository"
	"github.com/Domenick1991/servicehub/internal/service/booking"
	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const expireLock = "expire-pending"

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	zlog, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer zlog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		zlog.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	producer := kafka.NewProducer(cfg.Kafka.Brokers, zlog)
	defer producer.Close()
	redisCache := cache.NewRedisCache(cfg.Redis, time.Duration(cfg.Booking.CatalogCacheTTL)*time.Second)
	defer redisCache.Close()

	node, err := snowflake.NewNode(cfg.Audit.NodeID)
	if err != nil {
		zlog.Fatal("init audit id generator", zap.Int64("node_id", cfg.Audit.NodeID), zap.Error(err))
	}
	sink := audit.NewSink(node, producer, cfg.Kafka.AuditTopic,
		audit.WithDeadLetters(redisCache),
		audit.WithLogger(zlog),
		audit.WithQueueSize(cfg.Audit.QueueSize),
		audit.WithRetry(cfg.Audit.MaxRetries, time.Duration(cfg.Audit.RetryBackoffMs)*time.Millisecond),
	)
	defer sink.Close()

	bookingRepo := repository.NewBookingRepository(pool, repository.WithLockTimeout(cfg.Database.LockTimeout()))
	bookingService := booking.NewBookingService(
		bookingRepo,
		producer,
		cfg.Kafka.BookingEventsTopic,
		booking.WithNotificationsTopic(cfg.Kafka.NotificationsTopic),
		booking.WithAuditRecorder(sink),
		booking.WithLogger(zlog),
		booking.WithPendingTTL(time.Duration(cfg.Booking.PendingTTLMinutes)*time.Minute),
	)

	auditConsumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID+"-audit", cfg.Kafka.AuditTopic, zlog)
	defer auditConsumer.Close()
	persister := audit.NewPersister(repository.NewAuditRepository(pool), zlog)
	go runConsumer(ctx, stop, zlog, "audit", auditConsumer, persister.Handle)

	notificationsTopic := cfg.Kafka.NotificationsTopic
	if notificationsTopic == "" {
		notificationsTopic = cfg.Kafka.BookingEventsTopic
	}
	notificationsConsumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID+"-notifications", notificationsTopic, zlog)
	defer notificationsConsumer.Close()
	sender := email.NewSender(zlog)
	go runConsumer(ctx, stop, zlog, "notifications", notificationsConsumer, sender.Handle)

	sweep := time.Duration(cfg.Worker.ExpirationSweepMinutes) * time.Minute
	expireTicker := time.NewTicker(sweep)
	defer expireTicker.Stop()
	replayTicker := time.NewTicker(time.Duration(cfg.Worker.DeadLetterReplaySeconds) * time.Second)
	defer replayTicker.Stop()

	for {
		select {
		case <-expireTicker.C:
			expirePending(ctx, zlog, redisCache, bookingService, sweep)
		case <-replayTicker.C:
			replayed, err := sink.ReplayDeadLetters(ctx, cfg.Worker.DeadLetterBatch)
			if err != nil {
				zlog.Warn("replay audit dead letters", zap.Int("replayed", replayed), zap.Error(err))
				continue
			}
			if replayed > 0 {
				zlog.Info("replayed audit dead letters", zap.Int("count", replayed))
			}
		case <-ctx.Done():
			zlog.Info("shutting down")
			return
		}
	}
}

// runConsumer blocks in Consume. The consumer retries failed messages itself,
// so a return before shutdown means the reader is broken and the whole worker
// stops to be restarted by its supervisor.
func runConsumer(ctx context.Context, stop context.CancelFunc, zlog *zap.Logger, name string, consumer *kafka.Consumer, handler kafka.Handler) {
	err := consumer.Consume(ctx, handler)
	if ctx.Err() != nil {
		return
	}
	zlog.Error("consumer stopped, shutting down worker", zap.String("consumer", name), zap.Error(err))
	stop()
}

// expirePending runs one sweep while holding a lease so that only one worker
// replica expires bookings at a time.
func expirePending(ctx context.Context, zlog *zap.Logger, locks *cache.RedisCache, svc booking.BookingUseCase, lease time.Duration) {
	token, acquired, err := locks.AcquireLock(ctx, expireLock, lease)
	if err != nil {
		zlog.Warn("acquire expiry lock", zap.Error(err))
		return
	}
	if !acquired {
		return
	}
	defer func() {
		if err := locks.ReleaseLock(context.WithoutCancel(ctx), expireLock, token); err != nil {
			zlog.Warn("release expiry lock", zap.Error(err))
		}
	}()

	if _, err := svc.ExpirePendingBookings(ctx); err != nil {
		zlog.Error("expire pending bookings", zap.Error(err))
	}
}
