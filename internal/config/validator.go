package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/rohankatakam/ogm/internal/cache"
	"github.com/rohankatakam/ogm/internal/errors"
	"github.com/rohankatakam/ogm/internal/logging"
	"github.com/rohankatakam/ogm/internal/schema"
)

// ValidationContext specifies what configuration is required
type ValidationContext string

const (
	// ValidationContextConnect - commands that open a database connection
	ValidationContextConnect ValidationContext = "connect"
	// ValidationContextOffline - commands that only compile statements
	ValidationContextOffline ValidationContext = "offline"
	// ValidationContextAll - validate all configuration
	ValidationContextAll ValidationContext = "all"
)

// ValidationResult holds validation results
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// AddError adds an error to the validation result
func (vr *ValidationResult) AddError(format string, args ...interface{}) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, fmt.Sprintf(format, args...))
}

// AddWarning adds a warning to the validation result
func (vr *ValidationResult) AddWarning(format string, args ...interface{}) {
	vr.Warnings = append(vr.Warnings, fmt.Sprintf(format, args...))
}

// HasErrors returns true if there are any errors
func (vr *ValidationResult) HasErrors() bool {
	return !vr.Valid || len(vr.Errors) > 0
}

// Error returns a formatted error message
func (vr *ValidationResult) Error() string {
	if !vr.HasErrors() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, err := range vr.Errors {
		sb.WriteString("  - " + err + "\n")
	}
	if len(vr.Warnings) > 0 {
		sb.WriteString("warnings:\n")
		for _, warn := range vr.Warnings {
			sb.WriteString("  - " + warn + "\n")
		}
	}
	return sb.String()
}

// Validate validates configuration for the given context in the configured
// deployment mode
func (c *Config) Validate(ctx ValidationContext) *ValidationResult {
	return c.ValidateWithMode(ctx, c.DeploymentMode())
}

// ValidateWithMode validates configuration for the given context and deployment mode
func (c *Config) ValidateWithMode(ctx ValidationContext, mode DeploymentMode) *ValidationResult {
	result := &ValidationResult{Valid: true}

	switch ctx {
	case ValidationContextConnect:
		c.validateNeo4j(result, true, mode)
		c.validateCache(result)
		c.validateSession(result)
		c.validateSchema(result)
	case ValidationContextOffline:
		c.validateSession(result)
		c.validateSchema(result)
	case ValidationContextAll:
		c.validateNeo4j(result, true, mode)
		c.validateCache(result)
		c.validateSession(result)
		c.validateSchema(result)
		c.validateLogging(result)
	default:
		result.AddError("unknown validation context %q", ctx)
	}

	return result
}

// Require validates and converts a failed result into a config error
func (c *Config) Require(ctx ValidationContext) error {
	result := c.Validate(ctx)
	if result.HasErrors() {
		return errors.ConfigErrorf("%s", result.Error()).WithContext("mode", c.DeploymentMode().String())
	}
	return nil
}

var boltSchemes = map[string]bool{
	"bolt": true, "bolt+s": true, "bolt+ssc": true,
	"neo4j": true, "neo4j+s": true, "neo4j+ssc": true,
}

func (c *Config) validateNeo4j(result *ValidationResult, required bool, mode DeploymentMode) {
	if c.Neo4j.URI == "" {
		if required {
			result.AddError("NEO4J_URI is required but not set")
		} else {
			result.AddWarning("NEO4J_URI is not set")
		}
	} else {
		u, err := url.Parse(c.Neo4j.URI)
		switch {
		case err != nil:
			result.AddError("NEO4J_URI is invalid: %v", err)
		case !boltSchemes[u.Scheme]:
			result.AddError("NEO4J_URI scheme %q is not a bolt or neo4j scheme", u.Scheme)
		case strings.Contains(u.Host, "localhost") && mode == ModePackaged:
			result.AddWarning("NEO4J_URI points at localhost in %s mode", mode)
		}
	}

	if c.Neo4j.User == "" {
		if required {
			result.AddError("NEO4J_USER is required but not set")
		} else {
			result.AddWarning("NEO4J_USER is not set")
		}
	}

	if c.Neo4j.Password == "" {
		if required {
			result.AddError("NEO4J_PASSWORD is required but not set. Set it via %s or run: ogm login", mode.ConfigSource())
		} else {
			result.AddWarning("NEO4J_PASSWORD is not set")
		}
	} else {
		insecure := []string{"password", "neo4j", "test", "changeme"}
		for _, weak := range insecure {
			if c.Neo4j.Password != weak {
				continue
			}
			if mode.RequiresSecureCredentials() {
				result.AddError("NEO4J_PASSWORD is set to an insecure default (%s). This is not allowed in %s mode.", weak, mode)
			} else {
				result.AddWarning("NEO4J_PASSWORD is set to a very common password (%s)", weak)
			}
		}
		if mode == ModeCI && c.Neo4j.PasswordSource == SourceConfig {
			result.AddWarning("NEO4J_PASSWORD comes from a config file in CI; prefer the environment")
		}
	}

	if c.Neo4j.Database == "" {
		result.AddWarning("NEO4J_DATABASE is not set, the server default database is used")
	}
	if c.Neo4j.MaxPoolSize < 0 {
		result.AddError("neo4j.max_pool_size must not be negative, got %d", c.Neo4j.MaxPoolSize)
	}
	if c.Neo4j.AcquisitionTimeout < 0 {
		result.AddError("neo4j.acquisition_timeout must not be negative")
	}
	if c.Neo4j.StatementsPerSecond < 0 {
		result.AddError("neo4j.statements_per_second must not be negative")
	}
}

func (c *Config) validateCache(result *ValidationResult) {
	switch c.Cache.Backend {
	case "", cache.BackendMemory:
	case cache.BackendRedis:
		if c.Cache.RedisAddr == "" {
			result.AddError("cache backend redis needs REDIS_ADDR")
		}
	case cache.BackendBolt:
		if c.Cache.BoltPath == "" {
			result.AddError("cache backend bolt needs OGM_BOLT_PATH")
		}
	case cache.BackendTiered:
		if c.Cache.RedisAddr == "" && c.Cache.BoltPath == "" {
			result.AddError("cache backend tiered needs REDIS_ADDR or OGM_BOLT_PATH")
		}
	default:
		result.AddError("unknown cache backend %q (memory, redis, bolt, tiered)", c.Cache.Backend)
	}

	if c.Cache.TTL < 0 {
		result.AddError("cache.ttl must not be negative")
	} else if c.Cache.TTL == 0 {
		result.AddWarning("cache.ttl is zero, snapshots never expire")
	}
}

func (c *Config) validateSession(result *ValidationResult) {
	if c.Session.Depth < -1 {
		result.AddError("session.depth must be -1 (unlimited) or a hop count, got %d", c.Session.Depth)
	}
	if c.Session.KeyPrefix == "" || strings.ContainsAny(c.Session.KeyPrefix, " :\t") {
		result.AddError("session.key_prefix %q must be non-empty without spaces or colons", c.Session.KeyPrefix)
	}
}

func (c *Config) validateSchema(result *ValidationResult) {
	if _, err := schema.ParseMode(c.Schema.AutoIndex); err != nil {
		result.AddError("OGM_AUTO_INDEX: %v", err)
	}
	if c.Schema.File != "" {
		if _, err := os.Stat(c.Schema.File); err != nil {
			result.AddError("schema file %s: %v", c.Schema.File, err)
		}
	}
}

func (c *Config) validateLogging(result *ValidationResult) {
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		result.AddError("logging.level: %v", err)
	}
}
