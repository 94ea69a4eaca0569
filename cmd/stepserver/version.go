package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hairizuan-noorazman/browser-steps/cmd/stepserver/handlers"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "stepserver %s (commit %s, built %s)\n", Version, Commit, BuildDate)
	},
}

var hashTokenCmd = &cobra.Command{
	Use:   "hash-token <token>",
	Short: "Print the bcrypt hash to set as auth.token_hash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := handlers.HashToken(args[0])
		if err != nil {
			return fmt.Errorf("failed to hash token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(hashTokenCmd)
}
