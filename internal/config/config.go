package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/rohankatakam/ogm/internal/cache"
	"github.com/rohankatakam/ogm/internal/errors"
	"github.com/rohankatakam/ogm/internal/graph"
	"github.com/rohankatakam/ogm/internal/logging"
)

// Config holds all configuration settings. It is built once by Load and
// passed explicitly to the constructors that need it.
type Config struct {
	// Deployment mode; empty means detect from the environment
	Mode string `yaml:"mode" mapstructure:"mode"`

	Neo4j   Neo4jConfig   `yaml:"neo4j" mapstructure:"neo4j"`
	Cache   CacheConfig   `yaml:"cache" mapstructure:"cache"`
	Session SessionConfig `yaml:"session" mapstructure:"session"`
	Schema  SchemaConfig  `yaml:"schema" mapstructure:"schema"`
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
}

type Neo4jConfig struct {
	URI      string `yaml:"uri" mapstructure:"uri"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`

	MaxPoolSize         int           `yaml:"max_pool_size" mapstructure:"max_pool_size"`
	AcquisitionTimeout  time.Duration `yaml:"acquisition_timeout" mapstructure:"acquisition_timeout"`
	StatementsPerSecond float64       `yaml:"statements_per_second" mapstructure:"statements_per_second"`

	// PasswordSource records where Password came from (env, keychain, config)
	PasswordSource string `yaml:"-" mapstructure:"-"`
}

type CacheConfig struct {
	Backend       string        `yaml:"backend" mapstructure:"backend"` // memory, redis, bolt, tiered
	TTL           time.Duration `yaml:"ttl" mapstructure:"ttl"`
	RedisAddr     string        `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisPassword string        `yaml:"redis_password" mapstructure:"redis_password"`
	RedisDB       int           `yaml:"redis_db" mapstructure:"redis_db"`
	BoltPath      string        `yaml:"bolt_path" mapstructure:"bolt_path"`
}

type SessionConfig struct {
	// Depth is the default save depth; -1 walks the whole reachable graph
	Depth     int    `yaml:"depth" mapstructure:"depth"`
	KeyPrefix string `yaml:"key_prefix" mapstructure:"key_prefix"`
}

type SchemaConfig struct {
	AutoIndex string `yaml:"auto_index" mapstructure:"auto_index"` // none, assert, dump, drop
	File      string `yaml:"file" mapstructure:"file"`
}

type LoggingConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
	File  string `yaml:"file" mapstructure:"file"`
	JSON  bool   `yaml:"json" mapstructure:"json"`
}

// Password sources
const (
	SourceEnv      = "env"
	SourceKeychain = "keychain"
	SourceConfig   = "config"
)

// Default returns default configuration
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Neo4j: Neo4jConfig{
			URI:                "bolt://localhost:7687",
			User:               "neo4j",
			Database:           "neo4j",
			MaxPoolSize:        50,
			AcquisitionTimeout: 60 * time.Second,
		},
		Cache: CacheConfig{
			Backend:  cache.BackendMemory,
			TTL:      24 * time.Hour,
			BoltPath: filepath.Join(homeDir, ".ogm", "snapshots.db"),
		},
		Session: SessionConfig{
			Depth:     -1,
			KeyPrefix: "ogm",
		},
		Schema: SchemaConfig{
			AutoIndex: "none",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from file. An empty path searches .ogm/, the
// working directory and ~/.ogm for config.yaml; a missing file is not an
// error.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	cfg := Default()
	setDefaults(v, cfg)

	v.SetEnvPrefix("OGM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".ogm")
		v.AddConfigPath(".")
		homeDir, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(homeDir, ".ogm"))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, errors.SeverityHigh, "failed to read config")
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, errors.SeverityHigh, "failed to unmarshal config")
	}
	if cfg.Neo4j.Password != "" {
		cfg.Neo4j.PasswordSource = SourceConfig
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("mode", cfg.Mode)
	v.SetDefault("neo4j.uri", cfg.Neo4j.URI)
	v.SetDefault("neo4j.user", cfg.Neo4j.User)
	v.SetDefault("neo4j.database", cfg.Neo4j.Database)
	v.SetDefault("neo4j.max_pool_size", cfg.Neo4j.MaxPoolSize)
	v.SetDefault("neo4j.acquisition_timeout", cfg.Neo4j.AcquisitionTimeout)
	v.SetDefault("neo4j.statements_per_second", cfg.Neo4j.StatementsPerSecond)
	v.SetDefault("cache.backend", cfg.Cache.Backend)
	v.SetDefault("cache.ttl", cfg.Cache.TTL)
	v.SetDefault("cache.bolt_path", cfg.Cache.BoltPath)
	v.SetDefault("session.depth", cfg.Session.Depth)
	v.SetDefault("session.key_prefix", cfg.Session.KeyPrefix)
	v.SetDefault("schema.auto_index", cfg.Schema.AutoIndex)
	v.SetDefault("logging.level", cfg.Logging.Level)
}

// loadEnvFiles loads .env.local, the nearest .env and ~/.ogm/.env. godotenv
// never overrides variables that are already set, so earlier files win.
func loadEnvFiles() {
	if _, err := os.Stat(".env.local"); err == nil {
		_ = godotenv.Load(".env.local")
	}
	_ = NewEnvLoader().Load()

	homeDir, _ := os.UserHomeDir()
	homeEnvFile := filepath.Join(homeDir, ".ogm", ".env")
	if _, err := os.Stat(homeEnvFile); err == nil {
		_ = godotenv.Load(homeEnvFile)
	}
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(cfg *Config) {
	if uri := os.Getenv("NEO4J_URI"); uri != "" {
		cfg.Neo4j.URI = uri
	}
	if user := os.Getenv("NEO4J_USER"); user != "" {
		cfg.Neo4j.User = user
	}
	if db := os.Getenv("NEO4J_DATABASE"); db != "" {
		cfg.Neo4j.Database = db
	}

	// Precedence: env, then keychain, then config file
	if pw := os.Getenv("NEO4J_PASSWORD"); pw != "" {
		cfg.Neo4j.Password = pw
		cfg.Neo4j.PasswordSource = SourceEnv
	} else {
		km := NewKeyringManager()
		if km.IsAvailable() {
			if pw, err := km.GetNeo4jPassword(); err == nil && pw != "" {
				cfg.Neo4j.Password = pw
				cfg.Neo4j.PasswordSource = SourceKeychain
			}
		}
	}

	if backend := os.Getenv("OGM_CACHE_BACKEND"); backend != "" {
		cfg.Cache.Backend = backend
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Cache.RedisAddr = addr
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.Cache.RedisPassword = pw
	} else if cfg.Cache.RedisAddr != "" && cfg.Cache.RedisPassword == "" {
		if pw, err := NewKeyringManager().GetRedisPassword(); err == nil && pw != "" {
			cfg.Cache.RedisPassword = pw
		}
	}
	cfg.Cache.RedisDB = GetInt("REDIS_DB", cfg.Cache.RedisDB)
	cfg.Cache.TTL = GetDuration("OGM_CACHE_TTL", cfg.Cache.TTL)
	if path := os.Getenv("OGM_BOLT_PATH"); path != "" {
		cfg.Cache.BoltPath = expandPath(path)
	}

	if file := os.Getenv("OGM_SCHEMA_FILE"); file != "" {
		cfg.Schema.File = expandPath(file)
	}
	if mode := os.Getenv("OGM_AUTO_INDEX"); mode != "" {
		cfg.Schema.AutoIndex = mode
	}

	if mode := os.Getenv("OGM_MODE"); mode != "" {
		cfg.Mode = mode
	}
	cfg.Session.Depth = GetInt("OGM_SESSION_DEPTH", cfg.Session.Depth)
	cfg.Logging.Level = GetString("OGM_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.File = GetString("OGM_LOG_FILE", cfg.Logging.File)
	cfg.Logging.JSON = GetBool("OGM_LOG_JSON", cfg.Logging.JSON)

	cfg.Cache.BoltPath = expandPath(cfg.Cache.BoltPath)
	cfg.Logging.File = expandPath(cfg.Logging.File)
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// DeploymentMode resolves the configured mode, falling back to detection
func (c *Config) DeploymentMode() DeploymentMode {
	if m, ok := parseMode(c.Mode); ok {
		return m
	}
	return DetectMode()
}

// ClientOptions maps the neo4j section onto graph client options
func (c *Config) ClientOptions() graph.ClientOptions {
	return graph.ClientOptions{
		URI:                 c.Neo4j.URI,
		User:                c.Neo4j.User,
		Password:            c.Neo4j.Password,
		Database:            c.Neo4j.Database,
		MaxPoolSize:         c.Neo4j.MaxPoolSize,
		AcquisitionTimeout:  c.Neo4j.AcquisitionTimeout,
		StatementsPerSecond: c.Neo4j.StatementsPerSecond,
	}
}

// CacheOptions maps the cache section onto snapshot store options
func (c *Config) CacheOptions() cache.Options {
	return cache.Options{
		Backend: c.Cache.Backend,
		TTL:     c.Cache.TTL,
		Redis: cache.RedisOptions{
			Addr:     c.Cache.RedisAddr,
			Password: c.Cache.RedisPassword,
			DB:       c.Cache.RedisDB,
			TTL:      c.Cache.TTL,
		},
		BoltPath: c.Cache.BoltPath,
	}
}

// LoggerConfig maps the logging section onto the structured logger config.
// An unknown level falls back to info; Validate reports it.
func (c *Config) LoggerConfig() logging.Config {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		level = logging.INFO
	}
	return logging.Config{
		Level:      level,
		OutputFile: c.Logging.File,
		JSONFormat: c.Logging.JSON,
		AddSource:  level == logging.DEBUG,
	}
}

// Save saves configuration to file. The Neo4j password is never written
// when it came from the environment or the keychain.
func (c *Config) Save(path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	neo := map[string]any{
		"uri":                   c.Neo4j.URI,
		"user":                  c.Neo4j.User,
		"database":              c.Neo4j.Database,
		"max_pool_size":         c.Neo4j.MaxPoolSize,
		"acquisition_timeout":   c.Neo4j.AcquisitionTimeout.String(),
		"statements_per_second": c.Neo4j.StatementsPerSecond,
	}
	if c.Neo4j.PasswordSource == SourceConfig {
		neo["password"] = c.Neo4j.Password
	}

	v.Set("mode", c.Mode)
	v.Set("neo4j", neo)
	v.Set("cache", map[string]any{
		"backend":    c.Cache.Backend,
		"ttl":        c.Cache.TTL.String(),
		"redis_addr": c.Cache.RedisAddr,
		"redis_db":   c.Cache.RedisDB,
		"bolt_path":  c.Cache.BoltPath,
	})
	v.Set("session", map[string]any{"depth": c.Session.Depth, "key_prefix": c.Session.KeyPrefix})
	v.Set("schema", map[string]any{"auto_index": c.Schema.AutoIndex, "file": c.Schema.File})
	v.Set("logging", map[string]any{"level": c.Logging.Level, "file": c.Logging.File, "json": c.Logging.JSON})

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
