// Command taskctl is a thin REST/WebSocket client for the task execution
// server: submit a task, stream its events, check status, or interrupt it.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL   string
	bearerToken string
)

var rootCmd = &cobra.Command{
	Use:     "taskctl",
	Short:   "Command line client for the task execution server",
	Version: "dev",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://localhost:8000", "task server base URL")
	rootCmd.PersistentFlags().StringVar(&bearerToken, "token", os.Getenv("TASKCTL_TOKEN"), "bearer token, if auth is enabled")

	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(interruptCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(streamCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
