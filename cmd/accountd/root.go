// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/userauth/accountd/internal/config"
)

// Global flags available to all subcommands.
var (
	configFile string
	envFile    string
)

// NewRootCmd creates the root command for the accountd CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accountd",
		Short: "accountd - user account service",
		Long: `accountd registers users, exchanges email and password for a signed
session token, and serves the profile of the token's owner over JSON/HTTP.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (YAML)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", config.DefaultEnvFile, `dotenv file to read ("-" to skip)`)

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// NewVersionCmd creates the version subcommand.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println("accountd " + versionString())
		},
	}
}

// loadOptions returns the config sources selected by the global flags.
func loadOptions(cmd *cobra.Command) config.LoadOptions {
	return config.LoadOptions{
		ConfigFile: configFile,
		EnvFile:    envFile,
		Flags:      cmd.Flags(),
	}
}
