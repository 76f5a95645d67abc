package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/ogm/internal/config"
	"github.com/rohankatakam/ogm/internal/graph"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store the Neo4j password in the OS keychain",
	Long: `Prompts for the Neo4j password, verifies it against the configured
database and stores it in the OS keychain. Where no keychain is available the
password is written to ~/.config/ogm/credentials.yaml with user-only
permissions.`,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored Neo4j password",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.NewKeyringManager().DeleteNeo4jPassword(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Neo4j password removed from keychain")
		return nil
	},
}

var skipVerify bool

func init() {
	loginCmd.Flags().BoolVar(&skipVerify, "no-verify", false, "store the password without connecting first")
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cm := config.NewCredentialManager(cfg.DeploymentMode())

	password, err := cm.Prompt(fmt.Sprintf("Neo4j password for %s@%s: ", cfg.Neo4j.User, cfg.Neo4j.URI))
	if err != nil {
		return err
	}
	if password == "" {
		return fmt.Errorf("password cannot be empty")
	}

	if !skipVerify {
		opts := cfg.ClientOptions()
		opts.Password = password
		client, err := graph.NewClient(ctx, opts)
		if err != nil {
			return err
		}
		defer client.Close(ctx)
		if err := client.HealthCheck(ctx); err != nil {
			return err
		}
	}

	if err := cm.SaveCredentials(config.Credentials{Neo4jPassword: password}); err != nil {
		return err
	}
	logger.WithField("password", config.MaskSecret(password)).Info("Neo4j password stored")
	fmt.Fprintln(cmd.OutOrStdout(), "Logged in")
	return nil
}
