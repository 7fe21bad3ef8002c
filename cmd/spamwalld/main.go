/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2025 Spamwall and its licensors
 */

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spamwall/spamwall/cmd/spamwalld/common"
	"github.com/spamwall/spamwall/cmd/spamwalld/gen"
	"github.com/spamwall/spamwall/cmd/spamwalld/serve"
	"github.com/spamwall/spamwall/cmd/spamwalld/status"
	"github.com/spamwall/spamwall/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "spamwalld",
		Short: "Spam gating SMTP relay",
	}

	rootCmd.PersistentFlags().StringVarP(&common.DefaultEnvConfigFile, "config", "c", common.DefaultEnvConfigFile, "Full path to config file")

	rootCmd.AddCommand(serve.CommandServe())
	rootCmd.AddCommand(status.CommandStatus())
	rootCmd.AddCommand(gen.CommandGen())
	rootCmd.AddCommand(commandVersion())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func commandVersion() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version and exit",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Version: %s\n", version.Version)
		},
	}
}
