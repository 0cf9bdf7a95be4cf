// Package testutil provides a migrated PostgreSQL database for integration
// tests.
package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/mbd888/safescore/migrations"
)

const postgresImage = "postgres:16-alpine"

// Postgres returns a migrated database. It uses POSTGRES_URL when set and
// otherwise starts a throwaway container, skipping the test when no
// container runtime is reachable. Tables are emptied and the connection
// closed when the test ends.
func Postgres(t *testing.T) *sql.DB {
	t.Helper()

	dsn := os.Getenv("POSTGRES_URL")
	if dsn == "" {
		dsn = startContainer(t)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("testutil: open database: %v", err)
	}
	t.Cleanup(func() {
		// Shared databases outlive the test; containers are discarded anyway.
		if _, err := db.Exec("TRUNCATE wallet_assessments"); err != nil {
			t.Logf("testutil: truncate: %v", err)
		}
		_ = db.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("testutil: connect to database: %v", err)
	}
	if err := migrations.Up(ctx, db); err != nil {
		t.Fatalf("testutil: run migrations: %v", err)
	}
	return db
}

func startContainer(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	ctr, err := postgres.Run(ctx, postgresImage,
		postgres.WithDatabase("safescore"),
		postgres.WithUsername("safescore"),
		postgres.WithPassword("safescore"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("testutil: postgres container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			t.Logf("testutil: terminate container: %v", err)
		}
	})

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("testutil: connection string: %v", err)
	}
	return dsn
}
