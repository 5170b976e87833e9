package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/davidalonso/posstack-backend/internal/backup"
	"github.com/davidalonso/posstack-backend/pkg/config"
	"github.com/davidalonso/posstack-backend/pkg/db"
	"github.com/davidalonso/posstack-backend/pkg/logger"
	"github.com/davidalonso/posstack-backend/pkg/security"
	"github.com/davidalonso/posstack-backend/pkg/store"
)

const usage = `usage:
  backupctl backup            capture a snapshot and write it to the backup directory
  backupctl restore <path>    restore a snapshot file into the store`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}

	logg := logger.New(logger.Options{ServiceName: "backupctl"})
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(ctx, "failed to load config", err)
		os.Exit(1)
	}
	logg = logger.New(logger.Options{
		ServiceName: "backupctl",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
	})

	service, closeFn, err := buildService(ctx, cfg, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap snapshot service", err)
		os.Exit(1)
	}
	defer closeFn()

	switch os.Args[1] {
	case "backup":
		result, err := service.Backup(ctx)
		if err != nil {
			logg.Error(ctx, "backup failed", err)
			os.Exit(1)
		}
		ctx = logg.WithSnapshot(ctx, result.Filename)
		logg.Info(ctx, "backup complete")
		fmt.Println(result.FilePath)
	case "restore":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, usage)
			os.Exit(1)
		}
		path := os.Args[2]
		if err := service.Restore(ctx, path); err != nil {
			logg.Error(ctx, "restore failed", err)
			os.Exit(1)
		}
		logg.Info(logg.WithSnapshot(ctx, path), "restore complete")
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}
}

// buildService wires the snapshot engine from config. The returned closer
// releases the optional archive database.
func buildService(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*backup.Service, func(), error) {
	storeClient, err := store.NewHTTPClient(cfg.Store)
	if err != nil {
		return nil, nil, err
	}

	params := backup.ServiceParams{
		Store:  storeClient,
		Logger: logg,
		Config: cfg.Backup,
	}

	if cfg.Backup.Passphrase != "" {
		cipher, err := security.NewCipher(cfg.Backup.Passphrase, cfg.Backup.KeyIterations)
		if err != nil {
			return nil, nil, err
		}
		params.Cipher = cipher
	}

	closeFn := func() {}
	if cfg.Archive.Enabled() {
		dbClient, err := db.New(ctx, cfg.Archive, logg)
		if err != nil {
			return nil, nil, err
		}
		archive, err := backup.NewArchive(dbClient)
		if err != nil {
			_ = dbClient.Close()
			return nil, nil, err
		}
		params.Archive = archive
		closeFn = func() {
			if err := dbClient.Close(); err != nil {
				logg.Error(ctx, "error closing archive database", err)
			}
		}
	}

	service, err := backup.NewService(params)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return service, closeFn, nil
}
