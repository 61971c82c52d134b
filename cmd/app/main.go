package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Domenick1991/servicehub/api"
	"github.com/Domenick1991/servicehub/config"
	"github.com/Domenick1991/servicehub/internal/audit"
	"github.com/Domenick1991/servicehub/internal/bootstrap"
	"github.com/Domenick1991/servicehub/internal/cache"
	"github.com/Domenick1991/servicehub/internal/kafka"
	"github.com/Domenick1991/servicehub/internal/logger"
	"github.com/Domenick1991/servicehub/internal/migration"
	"github.com/Domenick1991/servicehub/internal/repository"
	"github.com/Domenick1991/servicehub/internal/service/booking"
	"github.com/Domenick1991/servicehub/internal/service/catalog"
	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

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

	location, err := cfg.Booking.Location()
	if err != nil {
		zlog.Fatal("load booking timezone", zap.String("timezone", cfg.Booking.Timezone), zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		zlog.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	if cfg.Database.MigrateOnStart {
		db := stdlib.OpenDBFromPool(pool)
		err := migration.Run(db, zlog)
		db.Close()
		if err != nil {
			zlog.Fatal("run migrations", zap.Error(err))
		}
	}

	redisCache := cache.NewRedisCache(cfg.Redis, time.Duration(cfg.Booking.CatalogCacheTTL)*time.Second)
	defer redisCache.Close()

	producer := kafka.NewProducer(cfg.Kafka.Brokers, zlog)
	defer producer.Close()

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
	serviceRepo := repository.NewServiceRepository(pool)

	bookingService := booking.NewBookingService(
		bookingRepo,
		producer,
		cfg.Kafka.BookingEventsTopic,
		booking.WithNotificationsTopic(cfg.Kafka.NotificationsTopic),
		booking.WithAuditRecorder(sink),
		booking.WithLogger(zlog),
		booking.WithLocation(location),
		booking.WithPendingSoftHold(cfg.Booking.PendingSoftHold),
	)
	catalogService := catalog.NewCatalogService(serviceRepo, redisCache, zlog)

	err = bootstrap.Run(ctx, cfg, bootstrap.Deps{
		Bookings: bookingService,
		Catalog:  catalogService,
		Identity: api.HeaderIdentityResolver{},
		Checks: map[string]bootstrap.HealthCheck{
			"postgres": pool.Ping,
			"redis":    redisCache.Ping,
		},
		Logger: zlog,
	})
	if err != nil {
		zlog.Error("server error", zap.Error(err))
	}
}
