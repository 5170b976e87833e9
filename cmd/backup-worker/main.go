package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/davidalonso/posstack-backend/internal/backup"
	"github.com/davidalonso/posstack-backend/internal/scheduler"
	"github.com/davidalonso/posstack-backend/pkg/config"
	"github.com/davidalonso/posstack-backend/pkg/db"
	"github.com/davidalonso/posstack-backend/pkg/logger"
	"github.com/davidalonso/posstack-backend/pkg/metrics"
	"github.com/davidalonso/posstack-backend/pkg/redis"
	"github.com/davidalonso/posstack-backend/pkg/security"
	"github.com/davidalonso/posstack-backend/pkg/store"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "backup-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "backup-worker"
	logg = logger.New(logger.Options{
		ServiceName: "backup-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
	})

	if !cfg.Backup.Enabled {
		logg.Info(context.Background(), "scheduled backups disabled, exiting")
		return
	}

	storeClient, err := store.NewHTTPClient(cfg.Store)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap store client", err)
		os.Exit(1)
	}

	var cipher *security.Cipher
	if cfg.Backup.Passphrase != "" {
		cipher, err = security.NewCipher(cfg.Backup.Passphrase, cfg.Backup.KeyIterations)
		if err != nil {
			logg.Error(context.Background(), "failed to build snapshot cipher", err)
			os.Exit(1)
		}
	}

	var archive *backup.Archive
	if cfg.Archive.Enabled() {
		dbClient, err := db.New(context.Background(), cfg.Archive, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap archive database", err)
			os.Exit(1)
		}
		defer func() {
			if err := dbClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing archive database", err)
			}
		}()
		archive, err = backup.NewArchive(dbClient)
		if err != nil {
			logg.Error(context.Background(), "failed to prepare snapshot archive", err)
			os.Exit(1)
		}
	}

	var lock scheduler.Lock = scheduler.NewLocalLock()
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		lock, err = scheduler.NewRedisLock(redisClient, cfg.Backup.SchedulerLockKey, cfg.Backup.SchedulerLockTTL)
		if err != nil {
			logg.Error(context.Background(), "failed to create scheduler lock", err)
			os.Exit(1)
		}
	}

	jobMetrics := metrics.NewJobMetrics(prometheus.DefaultRegisterer)

	serviceParams := backup.ServiceParams{
		Store:   storeClient,
		Logger:  logg,
		Config:  cfg.Backup,
		Metrics: jobMetrics,
	}
	if cipher != nil {
		serviceParams.Cipher = cipher
	}
	if archive != nil {
		serviceParams.Archive = archive
	}
	backupService, err := backup.NewService(serviceParams)
	if err != nil {
		logg.Error(context.Background(), "failed to create snapshot service", err)
		os.Exit(1)
	}
	job, err := backup.NewJob(backupService)
	if err != nil {
		logg.Error(context.Background(), "failed to create snapshot job", err)
		os.Exit(1)
	}

	runner, err := scheduler.NewService(scheduler.ServiceParams{
		Logger:   logg,
		Registry: scheduler.NewRegistry(job),
		Lock:     lock,
		Metrics:  jobMetrics,
		Interval: cfg.Backup.Interval(),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create scheduler", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting backup worker")

	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "backup worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "backup worker shutting down gracefully")
}
