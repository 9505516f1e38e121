// Package config loads server configuration from flags, the environment, a .env
// file and an optional YAML file.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
	BackendMongo  = "mongo"
)

// Config holds the application configuration.
type Config struct {
	App       AppConfig
	Logger    LoggerConfig
	Server    ServerConfig
	Storage   StorageConfig
	Lock      LockConfig
	Auth      AuthConfig
	Search    SearchConfig
	RateLimit RateLimitConfig
	Migration MigrationConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
	// Format is "json" or "pretty". Empty picks by environment.
	Format string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string
	CORSOrigins  []string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// ShutdownTimeout bounds draining the HTTP server and the event streams.
	ShutdownTimeout time.Duration
}

// StorageConfig selects and locates the group store.
type StorageConfig struct {
	Backend string
	// DataPath holds the badger or sqlite files, the search index and the auth key.
	DataPath      string
	MongoURI      string
	MongoDatabase string
}

// LockConfig configures the per-group lock. An empty RedisURL keeps locks in
// process.
type LockConfig struct {
	RedisURL string
	TTL      time.Duration
	Wait     time.Duration
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	// KeyHex overrides the generated token key. 64 hex characters.
	KeyHex              string
	AccessTokenDuration time.Duration
}

// SearchConfig toggles the message index.
type SearchConfig struct {
	Enabled bool
}

// RateLimitConfig holds request budgets. Zero disables a limit.
type RateLimitConfig struct {
	MessagesPerMinute int
	AuthPerMinute     int
}

// MigrationConfig holds startup data migrations.
type MigrationConfig struct {
	LegacyReactions bool
}

type option struct {
	flag  string
	key   string
	usage string
}

var options = []option{
	{"env", "ENV", "Environment (development, staging, production)"},
	{"log-level", "LOG_LEVEL", "Log level (debug, info, warn, error)"},
	{"log-format", "LOG_FORMAT", "Log format (json, pretty)"},
	{"port", "SERVER_PORT", "Server port (default: 8080)"},
	{"read-timeout", "SERVER_READ_TIMEOUT", "HTTP read timeout (default: 15s)"},
	{"write-timeout", "SERVER_WRITE_TIMEOUT", "HTTP write timeout, 0 for streaming (default: 0s)"},
	{"idle-timeout", "SERVER_IDLE_TIMEOUT", "HTTP idle timeout (default: 60s)"},
	{"cors-origins", "CORS_ORIGINS", "Comma separated allowed origins (default: *)"},
	{"store", "STORE_BACKEND", "Store backend (badger, sqlite, mongo)"},
	{"data-path", "DATA_PATH", "Directory for local data"},
	{"mongo-uri", "MONGO_URI", "MongoDB connection string"},
	{"mongo-database", "MONGO_DATABASE", "MongoDB database name"},
	{"redis-url", "REDIS_URL", "Redis URL for cross-process group locks"},
	{"lock-ttl", "LOCK_TTL", "Group lock expiry (default: 5s)"},
	{"lock-wait", "LOCK_WAIT", "Maximum wait for a group lock (default: 3s)"},
	{"auth-key", "AUTH_KEY", "Hex encoded token key (default: generated)"},
	{"access-token-duration", "ACCESS_TOKEN_DURATION", "Access token lifetime (default: 24h)"},
	{"search", "SEARCH_ENABLED", "Enable message search (default: true)"},
	{"messages-per-minute", "MESSAGES_PER_MINUTE", "Per user message budget (default: 60)"},
	{"auth-per-minute", "AUTH_PER_MINUTE", "Per IP login budget (default: 10)"},
	{"migrate-legacy-reactions", "MIGRATE_LEGACY_REACTIONS", "Rewrite bare reaction tags at startup (default: true)"},
}

// LoadConfig loads configuration from the process arguments.
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:])
}

// Load builds the configuration with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. YAML file given by -config.
// 5. Default values (lowest priority).
func Load(args []string) (*Config, error) {
	flags := flag.NewFlagSet("groups-server", flag.ContinueOnError)
	envFile := flags.String("env-file", ".env", "Path to .env file")
	configFile := flags.String("config", "", "Path to YAML config file")
	for _, o := range options {
		flags.String(o.flag, "", o.usage)
	}
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	l := &loader{flags: map[string]string{}}
	keyByFlag := make(map[string]string, len(options))
	for _, o := range options {
		keyByFlag[o.flag] = o.key
	}
	flags.Visit(func(f *flag.Flag) {
		if key, ok := keyByFlag[f.Name]; ok {
			l.flags[key] = f.Value.String()
		}
	})

	// godotenv never overrides variables that are already set.
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file %s: %w", *envFile, err)
	}

	if *configFile != "" {
		file, err := readYAML(*configFile)
		if err != nil {
			return nil, err
		}
		l.file = file
	}

	cfg := &Config{
		App: AppConfig{
			Environment: l.str("ENV", "development"),
		},
		Logger: LoggerConfig{
			Level:  l.str("LOG_LEVEL", "info"),
			Format: l.str("LOG_FORMAT", ""),
		},
		Server: ServerConfig{
			Port:            l.str("SERVER_PORT", "8080"),
			CORSOrigins:     l.list("CORS_ORIGINS", []string{"*"}),
			ReadTimeout:     l.duration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    l.duration("SERVER_WRITE_TIMEOUT", 0),
			IdleTimeout:     l.duration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: l.duration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Storage: StorageConfig{
			Backend:       strings.ToLower(l.str("STORE_BACKEND", BackendBadger)),
			DataPath:      l.str("DATA_PATH", ""),
			MongoURI:      l.str("MONGO_URI", "mongodb://localhost:27017"),
			MongoDatabase: l.str("MONGO_DATABASE", "boilergroups"),
		},
		Lock: LockConfig{
			RedisURL: l.str("REDIS_URL", ""),
			TTL:      l.duration("LOCK_TTL", 5*time.Second),
			Wait:     l.duration("LOCK_WAIT", 3*time.Second),
		},
		Auth: AuthConfig{
			KeyHex:              l.str("AUTH_KEY", ""),
			AccessTokenDuration: l.duration("ACCESS_TOKEN_DURATION", 24*time.Hour),
		},
		Search: SearchConfig{
			Enabled: l.boolean("SEARCH_ENABLED", true),
		},
		RateLimit: RateLimitConfig{
			MessagesPerMinute: l.integer("MESSAGES_PER_MINUTE", 60),
			AuthPerMinute:     l.integer("AUTH_PER_MINUTE", 10),
		},
		Migration: MigrationConfig{
			LegacyReactions: l.boolean("MIGRATE_LEGACY_REACTIONS", true),
		},
	}
	if l.err != nil {
		return nil, l.err
	}

	if err := cfg.expandDataPath(); err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks that all config values are present and valid.
func (c *Config) Validate() error {
	switch c.App.Environment {
	case "development", "staging", "production":
	default:
		return fmt.Errorf("invalid environment: %q (must be development, staging, or production)", c.App.Environment)
	}

	switch strings.ToLower(c.Logger.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	switch c.Logger.Format {
	case "", "json", "pretty":
	default:
		return fmt.Errorf("invalid log format: %s (must be json or pretty)", c.Logger.Format)
	}

	switch c.Storage.Backend {
	case BackendBadger, BackendSQLite:
		if c.Storage.DataPath == "" {
			return errors.New("data path cannot be empty")
		}
	case BackendMongo:
		if c.Storage.MongoURI == "" || c.Storage.MongoDatabase == "" {
			return errors.New("mongo backend requires MONGO_URI and MONGO_DATABASE")
		}
	default:
		return fmt.Errorf("invalid store backend: %s (must be badger, sqlite, or mongo)", c.Storage.Backend)
	}

	if c.Auth.AccessTokenDuration <= 0 {
		return errors.New("access token duration must be positive")
	}
	if c.Lock.TTL <= 0 || c.Lock.Wait <= 0 {
		return errors.New("lock ttl and wait must be positive")
	}
	if c.RateLimit.MessagesPerMinute < 0 || c.RateLimit.AuthPerMinute < 0 {
		return errors.New("rate limits cannot be negative")
	}
	return nil
}

// IsProduction reports whether the server runs in production.
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func (c *Config) expandDataPath() error {
	if c.Storage.DataPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		c.Storage.DataPath = filepath.Join(home, "BoilerGroups", "data")
		return nil
	}

	path := c.Storage.DataPath
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}
	c.Storage.DataPath = filepath.Clean(abs)
	return nil
}

// readYAML reads a flat KEY: value document. Scalars of any type are kept in
// their string form.
func readYAML(path string) (map[string]string, error) {
	b, err := os.ReadFile(path) //#nosec G304 -- operator supplied config path
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var raw map[string]yaml.Node
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	out := make(map[string]string, len(raw))
	for k, node := range raw {
		if node.Kind == yaml.SequenceNode {
			items := make([]string, 0, len(node.Content))
			for _, item := range node.Content {
				items = append(items, item.Value)
			}
			out[strings.ToUpper(k)] = strings.Join(items, ",")
			continue
		}
		if node.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("config file %s: %s must be a scalar or list", path, k)
		}
		out[strings.ToUpper(k)] = node.Value
	}
	return out, nil
}

// loader resolves one key through the precedence chain and remembers the first
// parse failure.
type loader struct {
	flags map[string]string
	file  map[string]string
	err   error
}

func (l *loader) str(key, defaultValue string) string {
	if v := l.flags[key]; v != "" {
		return v
	}
	if v := os.Getenv(key); v != "" {
		return v
	}
	if v := l.file[key]; v != "" {
		return v
	}
	return defaultValue
}

func (l *loader) fail(key, value string, err error) {
	if l.err == nil {
		l.err = fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
}

func (l *loader) duration(key string, defaultValue time.Duration) time.Duration {
	v := l.str(key, "")
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		l.fail(key, v, err)
		return defaultValue
	}
	return d
}

func (l *loader) integer(key string, defaultValue int) int {
	v := l.str(key, "")
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		l.fail(key, v, err)
		return defaultValue
	}
	return n
}

func (l *loader) boolean(key string, defaultValue bool) bool {
	v := l.str(key, "")
	if v == "" {
		return defaultValue
	}
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		l.fail(key, v, errors.New("not a boolean"))
		return defaultValue
	}
}

func (l *loader) list(key string, defaultValue []string) []string {
	v := l.str(key, "")
	if v == "" {
		return defaultValue
	}
	var out []string
	for part := range strings.SplitSeq(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
