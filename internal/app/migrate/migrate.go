package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/splax/skillsync/db"
)

// Supported storage drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Runner wraps database migration capabilities.
type Runner struct {
	driver string
	dsn    string
	fsys   fs.FS
	dir    string
	log    *slog.Logger
}

// New returns a migration runner backed by goose. Migrations come from the
// embedded db package unless migrationsDir points at a directory on disk.
func New(driver, dsn, migrationsDir string, log *slog.Logger) (Runner, error) {
	if dsn == "" {
		return Runner{}, errors.New("empty database dsn")
	}
	if log == nil {
		log = slog.Default()
	}
	r := Runner{driver: driver, dsn: dsn, log: log}
	switch driver {
	case DriverPostgres:
		r.dir = "migrations/postgres"
	case DriverSQLite:
		r.dir = "migrations/sqlite"
	default:
		return Runner{}, fmt.Errorf("unsupported migration driver %q", driver)
	}

	if migrationsDir == "" {
		r.fsys = db.Migrations
		return r, nil
	}
	if _, err := os.Stat(migrationsDir); err != nil {
		return Runner{}, fmt.Errorf("locate migrations dir: %w", err)
	}
	r.fsys = os.DirFS(migrationsDir)
	r.dir = "."
	return r, nil
}

// Ensure applies pending migrations.
func (r Runner) Ensure(ctx context.Context) error {
	return r.withDB(ctx, func(db *sql.DB) error {
		runCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()

		r.log.Info("applying migrations", "driver", r.driver, "dir", r.dir)
		if err := goose.UpContext(runCtx, db, r.dir); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		r.log.Info("migrations applied")
		return nil
	})
}

// Apply runs pending migrations on an already open handle. Stores that own
// their connection, such as an in-memory SQLite database, use it at startup.
func (r Runner) Apply(ctx context.Context, db *sql.DB) error {
	if err := r.configure(); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, r.dir); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Status reports applied and pending migrations.
func (r Runner) Status(ctx context.Context) error {
	return r.withDB(ctx, func(db *sql.DB) error {
		r.log.Info("migration status", "driver", r.driver, "dir", r.dir)
		if err := goose.StatusContext(ctx, db, r.dir); err != nil {
			return fmt.Errorf("migration status: %w", err)
		}
		return nil
	})
}

// Down rolls back migrations either to the previous version or a specific target version.
func (r Runner) Down(ctx context.Context, targetVersion int64) error {
	return r.withDB(ctx, func(db *sql.DB) error {
		runCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()

		if targetVersion > 0 {
			r.log.Info("rolling back migrations", "target", targetVersion)
			if err := goose.DownToContext(runCtx, db, r.dir, targetVersion); err != nil {
				return fmt.Errorf("rollback to version %d: %w", targetVersion, err)
			}
		} else {
			r.log.Info("rolling back latest migration")
			if err := goose.DownContext(runCtx, db, r.dir); err != nil {
				return fmt.Errorf("rollback latest migration: %w", err)
			}
		}

		r.log.Info("rollback complete")
		return nil
	})
}

// Ping ensures the database accepts connections.
func (r Runner) Ping(ctx context.Context) error {
	return r.withDB(ctx, func(*sql.DB) error { return nil })
}

func (r Runner) withDB(ctx context.Context, fn func(*sql.DB) error) error {
	driverName := "pgx"
	if r.driver == DriverSQLite {
		driverName = "sqlite"
	}

	db, err := sql.Open(driverName, r.dsn)
	if err != nil {
		return fmt.Errorf("open sql connection: %w", err)
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("ping sql connection: %w", err)
	}

	if err := r.configure(); err != nil {
		return err
	}
	return fn(db)
}

func (r Runner) configure() error {
	dialect := "postgres"
	if r.driver == DriverSQLite {
		dialect = "sqlite3"
	}
	goose.SetBaseFS(r.fsys)
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("configure goose: %w", err)
	}
	return nil
}
