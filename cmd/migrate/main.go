package main

import (
	"context"
	"log"
	"os"

	"github.com/Domenick1991/servicehub/config"
	"github.com/Domenick1991/servicehub/internal/logger"
	"github.com/Domenick1991/servicehub/internal/migration"
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

	pool, err := pgxpool.New(context.Background(), cfg.Database.DSN())
	if err != nil {
		zlog.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	if err := migration.Run(db, zlog); err != nil {
		zlog.Fatal("run migrations", zap.Error(err))
	}
}
