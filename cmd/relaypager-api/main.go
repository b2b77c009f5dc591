package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/Alp4ka/relaypager/internal/config"
	"github.com/Alp4ka/relaypager/internal/database"
	"github.com/Alp4ka/relaypager/internal/httpapi"
	"github.com/Alp4ka/relaypager/internal/people"
)

const _seedSize = 1000

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	log, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to build logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err = run(cfg, log); err != nil {
		log.Error("people api stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx := context.Background()

	db, err := database.Open(cfg.Database)
	if err != nil {
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	store := people.NewStore(db, log.Named("people"))
	if database.Pooled(cfg.Database) {
		store = store.WithConcurrentReads()
	}

	if err = store.Migrate(ctx); err != nil {
		return err
	}

	if cfg.Database.Seed {
		if err = store.Seed(ctx, _seedSize); err != nil {
			return err
		}
	}

	server := httpapi.NewServer(cfg.Port, log.Named("http"))
	httpapi.NewPeopleRouter(server.Echo, store, cfg.MaxTake).Bind()

	log.Info(
		"people api configured",
		zap.String("env", cfg.Environment),
		zap.String("driver", cfg.Database.Driver),
		zap.Int("max_take", cfg.MaxTake),
	)

	return server.Start()
}
