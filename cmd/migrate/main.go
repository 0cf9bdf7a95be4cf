// Command migrate manages the SafeScore PostgreSQL schema with goose.
//
// Usage:
//
//	migrate up                 apply all pending migrations
//	migrate up-by-one          apply the next pending migration
//	migrate up-to <version>    apply migrations up to version
//	migrate down               roll back the last migration
//	migrate down-to <version>  roll back to version (0 for an empty schema)
//	migrate redo               roll back and re-apply the last migration
//	migrate status             list migrations and when they were applied
//	migrate version            print the current schema version
//
// DATABASE_URL is required. The migrations compiled into the binary are
// used unless MIGRATIONS_DIR points at a directory of .sql files.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/mbd888/safescore/internal/logging"
	"github.com/mbd888/safescore/migrations"
)

var errUsage = errors.New("usage: migrate <up|up-by-one|up-to N|down|down-to N|redo|status|version>")

func main() {
	logger := logging.New("info", "text")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		logger.Error("migrate failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	_ = godotenv.Load()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	var fsys fs.FS
	if dir := os.Getenv("MIGRATIONS_DIR"); dir != "" {
		fsys = os.DirFS(dir)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	p, err := migrations.NewProvider(db, fsys)
	if err != nil {
		return err
	}
	return execute(ctx, p, args[0], args[1:])
}

func execute(ctx context.Context, p *goose.Provider, command string, rest []string) error {
	switch command {
	case "up":
		return report(p.Up(ctx))
	case "up-by-one":
		return report1(p.UpByOne(ctx))
	case "up-to":
		v, err := versionArg(rest)
		if err != nil {
			return err
		}
		return report(p.UpTo(ctx, v))
	case "down":
		return report1(p.Down(ctx))
	case "down-to":
		v, err := versionArg(rest)
		if err != nil {
			return err
		}
		return report(p.DownTo(ctx, v))
	case "redo":
		if err := report1(p.Down(ctx)); err != nil {
			return err
		}
		return report1(p.UpByOne(ctx))
	case "status":
		statuses, err := p.Status(ctx)
		if err != nil {
			return err
		}
		for _, s := range statuses {
			applied := "pending"
			if s.State == goose.StateApplied {
				applied = s.AppliedAt.Format(time.RFC3339)
			}
			fmt.Printf("%-25s %s\n", applied, s.Source.Path)
		}
		return nil
	case "version":
		v, err := p.GetDBVersion(ctx)
		if err != nil {
			return err
		}
		fmt.Println(v)
		return nil
	default:
		return fmt.Errorf("unknown command %q: %w", command, errUsage)
	}
}

func versionArg(rest []string) (int64, error) {
	if len(rest) != 1 {
		return 0, errUsage
	}
	v, err := strconv.ParseInt(rest[0], 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid version %q", rest[0])
	}
	return v, nil
}

func report(results []*goose.MigrationResult, err error) error {
	for _, r := range results {
		fmt.Printf("%-4s %s (%s)\n", r.Direction, r.Source.Path, r.Duration.Round(time.Millisecond))
	}
	if err == nil && len(results) == 0 {
		fmt.Println("no migrations to run")
	}
	return err
}

func report1(r *goose.MigrationResult, err error) error {
	if errors.Is(err, goose.ErrNoNextVersion) {
		fmt.Println("no migrations to run")
		return nil
	}
	if r == nil {
		return err
	}
	return report([]*goose.MigrationResult{r}, err)
}
