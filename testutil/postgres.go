package testutil

import (
	"database/sql"
	"os"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// OpenPostgres opens the database named by TEST_PG_DSN and closes it when the
// test ends. It skips the test if TEST_PG_DSN is not set. Callers apply the
// schema themselves.
func OpenPostgres(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	database, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() {
		database.Close()
	})
	return database
}
