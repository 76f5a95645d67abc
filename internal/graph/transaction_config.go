package graph

import (
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Operation names used for transaction configuration and routing
const (
	OpSave        = "save"
	OpDelete      = "delete"
	OpReload      = "reload"
	OpSchema      = "schema"
	OpHealthCheck = "health_check"
)

// TransactionConfig defines timeout and metadata for transactions.
// Metadata is logged by Neo4j and visible in query.log.
type TransactionConfig struct {
	Timeout  time.Duration
	Metadata map[string]any
}

// DefaultTransactionConfigs returns the config per operation type
func DefaultTransactionConfigs() map[string]TransactionConfig {
	return map[string]TransactionConfig{
		OpSave: {
			Timeout: 30 * time.Second,
			Metadata: map[string]any{
				"operation": OpSave,
				"type":      "write",
			},
		},
		OpDelete: {
			Timeout: 30 * time.Second,
			Metadata: map[string]any{
				"operation": OpDelete,
				"type":      "write",
			},
		},
		OpReload: {
			Timeout: 15 * time.Second,
			Metadata: map[string]any{
				"operation": OpReload,
				"type":      "read",
			},
		},
		// index creation can be slow on large graphs
		OpSchema: {
			Timeout: 5 * time.Minute,
			Metadata: map[string]any{
				"operation": OpSchema,
				"type":      "schema",
			},
		},
		OpHealthCheck: {
			Timeout: 5 * time.Second,
			Metadata: map[string]any{
				"operation": OpHealthCheck,
				"type":      "read",
			},
		},
	}
}

// AsNeo4jConfig converts to Neo4j transaction config functions
// for ExecuteRead/ExecuteWrite
func (tc TransactionConfig) AsNeo4jConfig() []func(*neo4j.TransactionConfig) {
	configs := []func(*neo4j.TransactionConfig){}
	if tc.Timeout > 0 {
		configs = append(configs, neo4j.WithTxTimeout(tc.Timeout))
	}
	if len(tc.Metadata) > 0 {
		configs = append(configs, neo4j.WithTxMetadata(tc.Metadata))
	}
	return configs
}

// GetConfigForOperation retrieves the transaction config for an operation,
// falling back to a 60s config for unknown ones
func GetConfigForOperation(operation string) TransactionConfig {
	if config, ok := DefaultTransactionConfigs()[operation]; ok {
		return config
	}
	return TransactionConfig{
		Timeout: 60 * time.Second,
		Metadata: map[string]any{
			"operation": operation,
			"type":      "unknown",
		},
	}
}

// WithCustomMetadata returns a copy of the config with one more metadata entry
func (tc TransactionConfig) WithCustomMetadata(key string, value any) TransactionConfig {
	newConfig := TransactionConfig{
		Timeout:  tc.Timeout,
		Metadata: make(map[string]any, len(tc.Metadata)+1),
	}
	for k, v := range tc.Metadata {
		newConfig.Metadata[k] = v
	}
	newConfig.Metadata[key] = value
	return newConfig
}

// WithTimeout returns a copy of the config with a custom timeout
func (tc TransactionConfig) WithTimeout(timeout time.Duration) TransactionConfig {
	return TransactionConfig{
		Timeout:  timeout,
		Metadata: tc.Metadata,
	}
}
