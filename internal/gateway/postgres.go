package gateway

import (
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

type PostgresConfig struct {
	Host            string
	Port            int
	Database        string
	User            string
	Password        string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

// OpenPostgres builds the process-wide pool. Connections are established
// lazily, so an unreachable server only surfaces on first use or Ping.
func OpenPostgres(cfg PostgresConfig) (*sql.DB, error) {
	connConfig, err := postgresConnConfig(cfg)
	if err != nil {
		return nil, err
	}

	db := stdlib.OpenDB(*connConfig)
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return db, nil
}

// postgresConnConfig always negotiates TLS without verifying the server
// certificate and never falls back to plaintext. The simple protocol lets a
// single request carry several statements.
func postgresConnConfig(cfg PostgresConfig) (*pgx.ConnConfig, error) {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid postgres port %d", cfg.Port)
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = "localhost"
	}

	dsn := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(host, strconv.Itoa(port)),
		Path:     "/" + strings.TrimSpace(cfg.Database),
		RawQuery: url.Values{"sslmode": []string{"require"}}.Encode(),
	}
	if cfg.User != "" {
		dsn.User = url.UserPassword(cfg.User, cfg.Password)
	}

	connConfig, err := pgx.ParseConfig(dsn.String())
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if connConfig.TLSConfig == nil {
		return nil, fmt.Errorf("postgres tls config was not initialized")
	}
	connConfig.TLSConfig.InsecureSkipVerify = true
	connConfig.Fallbacks = nil
	connConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	return connConfig, nil
}
