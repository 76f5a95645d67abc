package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/ogm/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and initialize configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration for connecting",
	RunE:  runConfigValidate,
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the effective configuration to a file (default: ~/.ogm/config.yaml)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigInit,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configInitCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	mode := cfg.DeploymentMode()
	source := config.PasswordSource(cfg)

	fmt.Fprintf(out, "mode:            %s (%s)\n", mode, mode.Description())
	fmt.Fprintf(out, "neo4j.uri:       %s\n", cfg.Neo4j.URI)
	fmt.Fprintf(out, "neo4j.user:      %s\n", cfg.Neo4j.User)
	fmt.Fprintf(out, "neo4j.password:  %s [%s]\n", config.MaskSecret(cfg.Neo4j.Password), source.Source)
	fmt.Fprintf(out, "neo4j.database:  %s\n", cfg.Neo4j.Database)
	fmt.Fprintf(out, "cache.backend:   %s (ttl %s)\n", cfg.Cache.Backend, cfg.Cache.TTL)
	if cfg.Cache.RedisAddr != "" {
		fmt.Fprintf(out, "cache.redis:     %s db %d\n", cfg.Cache.RedisAddr, cfg.Cache.RedisDB)
	}
	fmt.Fprintf(out, "cache.bolt_path: %s\n", cfg.Cache.BoltPath)
	fmt.Fprintf(out, "session.depth:   %d\n", cfg.Session.Depth)
	fmt.Fprintf(out, "schema:          %s %s\n", cfg.Schema.AutoIndex, cfg.Schema.File)
	if !source.Secure {
		fmt.Fprintf(out, "\n%s\n", source.Recommended)
	}
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	result := cfg.Validate(config.ValidationContextAll)
	out := cmd.OutOrStdout()
	for _, w := range result.Warnings {
		fmt.Fprintf(out, "warning: %s\n", w)
	}
	if result.HasErrors() {
		return fmt.Errorf("%s", result.Error())
	}
	fmt.Fprintf(out, "configuration valid for %s mode\n", cfg.DeploymentMode())
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) == 1 {
		path = args[0]
	} else {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		path = filepath.Join(homeDir, ".ogm", "config.yaml")
	}
	if err := cfg.Save(path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
	return nil
}
