// Package main implements taskctl, a CLI for the taskbot HTTP API.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the taskbotd HTTP server
	serverURL string
	// userID is the user every per-user command acts for
	userID string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "taskctl",
	Short: "CLI for taskbotd",
	Long: `taskctl talks to a taskbotd HTTP server. It forwards messages, triggers
analyses and answers destination questions on behalf of one user.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:9090", "taskbotd server URL")
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", os.Getenv("TASKBOT_USER"), "user id (defaults to $TASKBOT_USER)")

	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(directCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(chooseCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(extractCmd)
}
