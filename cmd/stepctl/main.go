package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

var (
	flagConfig    string
	flagTransport string
	flagURL       string
	flagToken     string
	flagJSON      bool
	flagDebug     bool
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "stepctl",
		Short: "Run browser steps against a stepserver worker",
		Long:  "A command-line client that sends action lists to a stepserver worker, stepwise or in one shot, and looks up selector hints for pages.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "config file (default ~/.browser-steps.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagTransport, "transport", "", "worker transport: stdio or http (env: BROWSER_STEPS_TRANSPORT)")
	rootCmd.PersistentFlags().StringVar(&flagURL, "url", "", "worker base URL for the http transport (env: BROWSER_STEPS_HTTP_BASE_URL)")
	rootCmd.PersistentFlags().StringVar(&flagToken, "token", "", "worker bearer token (env: BROWSER_STEPS_HTTP_TOKEN)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Output as JSON")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging on stderr")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("stepctl %s (commit: %s, built: %s)\n", Version, Commit, BuildDate)
		},
	}

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newHintsCmd())
	rootCmd.AddCommand(newHistoryCmd())
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
