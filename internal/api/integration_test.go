//go:build integration

package api

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/sqlassist/sqlassist/internal/gateway"
)

// Requires a Postgres server with TLS enabled; the gateway never falls back to
// plaintext.
func TestExecuteSQLAgainstPostgres(t *testing.T) {
	host := strings.TrimSpace(os.Getenv("SQLASSIST_TEST_DB_HOST"))
	if host == "" {
		t.Skip("SQLASSIST_TEST_DB_HOST is not set")
	}
	port, err := strconv.Atoi(envOr("SQLASSIST_TEST_DB_PORT", "5432"))
	if err != nil {
		t.Fatalf("invalid SQLASSIST_TEST_DB_PORT: %v", err)
	}

	db, err := gateway.OpenPostgres(gateway.PostgresConfig{
		Host:     host,
		Port:     port,
		Database: envOr("SQLASSIST_TEST_DB_NAME", "postgres"),
		User:     envOr("SQLASSIST_TEST_DB_USER", "postgres"),
		Password: os.Getenv("SQLASSIST_TEST_DB_PASSWORD"),
	})
	if err != nil {
		t.Fatalf("OpenPostgres() error = %v", err)
	}
	gw := gateway.New(db)
	defer func() { _ = gw.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := gw.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}

	h := NewHandler(Dependencies{Executor: gw})

	rr := postJSON(h, "/execute_sql", `{"query":"USE analytics;\nSELECT 1 AS one, 'a'::text AS letter"}`)
	assertJSON(t, rr, http.StatusOK, map[string]any{
		"result": []any{map[string]any{"letter": "a", "one": float64(1)}},
	})

	rr = postJSON(h, "/execute_sql", `{"query":"SELECT * FROM sqlassist_missing_table"}`)
	assertJSON(t, rr, http.StatusInternalServerError, map[string]any{"error": "Failed to execute SQL."})
}

func envOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
