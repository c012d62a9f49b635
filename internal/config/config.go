package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

const (
	DriverPostgres = "postgres"
	DriverDuckDB   = "duckdb"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Database      DatabaseConfig
	AI            AIConfig
	UI            UIConfig
	Journal       JournalConfig
	ObjectStore   ObjectStoreConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	MetricsAddr  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            int
	Name            string
	User            string
	Password        string
	DuckDBPath      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

type AIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature *float64
	Timeout     time.Duration
}

type UIConfig struct {
	PublicDir string
}

type JournalConfig struct {
	Enabled       bool
	FlushInterval time.Duration
	BatchSize     int
	MaxBuffered   int
}

type ObjectStoreConfig struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

// Load builds the configuration from lookup. Plain dotenv keys (PORT, DB_HOST,
// GROQ_API_KEY, ...) are accepted as fallbacks for their SQLASSIST_
// counterparts.
func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("SQLASSIST_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid SQLASSIST_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	steps := []func() error{
		func() error { return applyString(lookup, "SQLASSIST_SERVICE_NAME", &cfg.Service.Name) },
		func() error { return applyListenPort(lookup, "PORT", &cfg.HTTP.Address) },
		func() error { return applyString(lookup, "SQLASSIST_HTTP_ADDR", &cfg.HTTP.Address) },
		func() error { return applyString(lookup, "SQLASSIST_METRICS_ADDR", &cfg.HTTP.MetricsAddr) },
		func() error { return applyDuration(lookup, "SQLASSIST_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout) },
		func() error { return applyDuration(lookup, "SQLASSIST_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout) },
		func() error { return applyDuration(lookup, "SQLASSIST_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout) },
		func() error { return applyString(lookup, "SQLASSIST_DB_DRIVER", &cfg.Database.Driver) },
		func() error { return applyString(lookup, "SQLASSIST_DB_HOST", &cfg.Database.Host, "DB_HOST") },
		func() error { return applyInt(lookup, "SQLASSIST_DB_PORT", &cfg.Database.Port, "DB_PORT") },
		func() error { return applyString(lookup, "SQLASSIST_DB_NAME", &cfg.Database.Name, "DB_NAME") },
		func() error { return applyString(lookup, "SQLASSIST_DB_USER", &cfg.Database.User, "DB_USER") },
		func() error { return applyRawString(lookup, "SQLASSIST_DB_PASSWORD", &cfg.Database.Password, "DB_PASSWORD") },
		func() error { return applyString(lookup, "SQLASSIST_DB_DUCKDB_PATH", &cfg.Database.DuckDBPath) },
		func() error { return applyInt(lookup, "SQLASSIST_DB_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns) },
		func() error { return applyInt(lookup, "SQLASSIST_DB_MAX_IDLE_CONNS", &cfg.Database.MaxIdleConns) },
		func() error {
			return applyDuration(lookup, "SQLASSIST_DB_CONN_MAX_IDLE_TIME", &cfg.Database.ConnMaxIdleTime)
		},
		func() error {
			return applyDuration(lookup, "SQLASSIST_DB_CONN_MAX_LIFETIME", &cfg.Database.ConnMaxLifetime)
		},
		func() error { return applyString(lookup, "SQLASSIST_AI_BASE_URL", &cfg.AI.BaseURL) },
		func() error { return applyString(lookup, "SQLASSIST_AI_API_KEY", &cfg.AI.APIKey, "GROQ_API_KEY") },
		func() error { return applyString(lookup, "SQLASSIST_AI_MODEL", &cfg.AI.Model) },
		func() error { return applyOptionalFloat(lookup, "SQLASSIST_AI_TEMPERATURE", &cfg.AI.Temperature) },
		func() error { return applyDuration(lookup, "SQLASSIST_AI_TIMEOUT", &cfg.AI.Timeout) },
		func() error { return applyString(lookup, "SQLASSIST_UI_PUBLIC_DIR", &cfg.UI.PublicDir) },
		func() error { return applyBool(lookup, "SQLASSIST_JOURNAL_ENABLED", &cfg.Journal.Enabled) },
		func() error {
			return applyDuration(lookup, "SQLASSIST_JOURNAL_FLUSH_INTERVAL", &cfg.Journal.FlushInterval)
		},
		func() error { return applyInt(lookup, "SQLASSIST_JOURNAL_BATCH_SIZE", &cfg.Journal.BatchSize) },
		func() error { return applyInt(lookup, "SQLASSIST_JOURNAL_MAX_BUFFERED", &cfg.Journal.MaxBuffered) },
		func() error { return applyString(lookup, "SQLASSIST_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint) },
		func() error { return applyString(lookup, "SQLASSIST_OBJECTSTORE_REGION", &cfg.ObjectStore.Region) },
		func() error { return applyString(lookup, "SQLASSIST_OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket) },
		func() error { return applyString(lookup, "SQLASSIST_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID) },
		func() error {
			return applyString(lookup, "SQLASSIST_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey)
		},
		func() error { return applyBool(lookup, "SQLASSIST_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL) },
		func() error { return applyString(lookup, "SQLASSIST_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix) },
		func() error {
			return applyBool(lookup, "SQLASSIST_OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket)
		},
		func() error { return applyBool(lookup, "SQLASSIST_LOG_JSON", &cfg.Observability.LogJSON) },
		func() error { return applyLogLevel(lookup, "SQLASSIST_LOG_LEVEL", &cfg.Observability.LogLevel) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return Config{}, err
		}
	}

	cfg.Database.Driver = strings.ToLower(cfg.Database.Driver)
	if cfg.Service.Name == "" {
		return Config{}, fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return Config{}, fmt.Errorf("http address is required")
	}
	switch cfg.Database.Driver {
	case DriverPostgres, DriverDuckDB:
	default:
		return Config{}, fmt.Errorf("invalid SQLASSIST_DB_DRIVER: %q", cfg.Database.Driver)
	}
	if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
		return Config{}, fmt.Errorf("invalid database port: %d", cfg.Database.Port)
	}
	if cfg.Journal.Enabled {
		if cfg.Journal.BatchSize <= 0 {
			return Config{}, fmt.Errorf("journal batch size must be > 0")
		}
		if cfg.Journal.MaxBuffered < cfg.Journal.BatchSize {
			return Config{}, fmt.Errorf("journal max buffered (%d) must be >= batch size (%d)", cfg.Journal.MaxBuffered, cfg.Journal.BatchSize)
		}
		if cfg.ObjectStore.Bucket == "" {
			return Config{}, fmt.Errorf("object store bucket is required when the journal is enabled")
		}
	}
	return cfg, nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "sqlassist-api"},
		HTTP: HTTPConfig{
			Address:      ":3000",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          DriverPostgres,
			Host:            "localhost",
			Port:            5432,
			Name:            "postgres",
			User:            "postgres",
			MaxOpenConns:    10,
			MaxIdleConns:    10,
			ConnMaxIdleTime: 10 * time.Second,
			ConnMaxLifetime: 30 * time.Minute,
		},
		AI: AIConfig{
			BaseURL: "https://api.groq.com/openai",
			Model:   "llama-3.3-70b-versatile",
			Timeout: 60 * time.Second,
		},
		UI: UIConfig{
			PublicDir: "public",
		},
		Journal: JournalConfig{
			Enabled:       false,
			FlushInterval: time.Minute,
			BatchSize:     500,
			MaxBuffered:   10000,
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "sqlassist",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			UseSSL:           false,
			Prefix:           "",
			AutoCreateBucket: true,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":13000"
		cfg.Observability.LogLevel = slog.LevelWarn
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.ObjectStore.UseSSL = true
		cfg.ObjectStore.AutoCreateBucket = false
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

// lookupFirst returns the value of key, or of the first alias that is set.
func lookupFirst(lookup LookupFunc, key string, aliases []string) (string, string, bool) {
	if raw, ok := lookup(key); ok {
		return key, raw, true
	}
	for _, alias := range aliases {
		if raw, ok := lookup(alias); ok {
			return alias, raw, true
		}
	}
	return "", "", false
}

func applyString(lookup LookupFunc, key string, dst *string, aliases ...string) error {
	_, raw, ok := lookupFirst(lookup, key, aliases)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

// applyRawString keeps surrounding whitespace, which may be part of a secret.
func applyRawString(lookup LookupFunc, key string, dst *string, aliases ...string) error {
	_, raw, ok := lookupFirst(lookup, key, aliases)
	if !ok {
		return nil
	}
	*dst = raw
	return nil
}

func applyListenPort(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	port, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || port < 0 || port > 65535 {
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	*dst = ":" + strconv.Itoa(port)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int, aliases ...string) error {
	name, raw, ok := lookupFirst(lookup, key, aliases)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = value
	return nil
}

func applyOptionalFloat(lookup LookupFunc, key string, dst **float64) error {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = &value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
