package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/splax/skillsync/internal/app/migrate"
	"github.com/splax/skillsync/pkg/config"
	"github.com/splax/skillsync/pkg/logger"
)

func main() {
	command := flag.String("command", "up", "migrate command (up|status|down)")
	timeout := flag.Duration("timeout", time.Minute, "command timeout")
	target := flag.Int64("target", 0, "target version for down command (optional)")
	envFile := flag.String("env", config.DefaultEnvFile, "dotenv file to read before the environment")
	flag.Parse()

	log := logger.New("migrate", slog.LevelInfo)
	cfg, err := config.LoadAPIConfig(*envFile)
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	var driver, dsn string
	switch cfg.StoreDriver {
	case config.StorePostgres:
		driver, dsn = migrate.DriverPostgres, cfg.DatabaseURL
	case config.StoreSQLite:
		driver, dsn = migrate.DriverSQLite, cfg.SQLitePath
	default:
		log.Error("store driver has no migrations", "driver", cfg.StoreDriver)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	runner, err := migrate.New(driver, dsn, cfg.MigrationsDir, log)
	if err != nil {
		log.Error("failed to configure migration runner", "error", err)
		os.Exit(1)
	}

	switch *command {
	case "up":
		err = runner.Ensure(ctx)
	case "status":
		err = runner.Status(ctx)
	case "down":
		err = runner.Down(ctx, *target)
	default:
		log.Error("unsupported command", "command", *command)
		os.Exit(1)
	}
	if err != nil {
		log.Error("migration command failed", "command", *command, "error", err)
		os.Exit(1)
	}

	log.Info("migration command completed", "command", *command, "driver", driver)
}
