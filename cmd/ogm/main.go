package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rohankatakam/ogm/internal/config"
	"github.com/rohankatakam/ogm/internal/graph"
	"github.com/rohankatakam/ogm/internal/logging"
	"github.com/rohankatakam/ogm/internal/sample"
	"github.com/rohankatakam/ogm/internal/schema"
)

var (
	// Version information (set by build flags)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	cfgFile string
	verbose bool
	logger  *logrus.Logger
	cfg     *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ogm",
	Short: "Object graph mapper for Neo4j",
	Long: `ogm compiles changes to an object graph into a single parameterized
Cypher write statement and executes it against Neo4j with optimistic locking.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var loadErr error
		cfg, loadErr = config.Load(cfgFile)
		if loadErr != nil {
			cfg = config.Default()
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}

		lg, err := logging.Initialize(cfg.LoggerConfig())
		if err != nil {
			return err
		}
		logger = lg.Logrus()
		if loadErr != nil {
			logger.WithError(loadErr).Warn("Failed to load config, using defaults")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .ogm/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.SetVersionTemplate(`ogm {{.Version}}
Build time: ` + BuildTime + `
Git commit: ` + GitCommit + `
`)

	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(demoCmd)
}

// connect validates the connection settings and opens a client
func connect(ctx context.Context) (*graph.Client, error) {
	if err := cfg.Require(config.ValidationContextConnect); err != nil {
		return nil, err
	}
	for _, w := range cfg.Validate(config.ValidationContextConnect).Warnings {
		logger.Warn(w)
	}
	return graph.NewClient(ctx, cfg.ClientOptions())
}

// schemaDefinitions merges the sample model's declarations with the
// configured schema file
func schemaDefinitions() ([]schema.Definition, error) {
	defs := schema.FromMetadata(sample.Registry().Classes())
	if cfg.Schema.File == "" {
		return schema.Merge(defs), nil
	}
	fromFile, err := schema.LoadFile(cfg.Schema.File)
	if err != nil {
		return nil, err
	}
	return schema.Merge(defs, fromFile), nil
}
