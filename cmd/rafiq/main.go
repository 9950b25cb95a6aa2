// Rafiq ul-Islam — a companion for Islamic knowledge, at the terminal.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "rafiq",
	Short: "Rafiq ul-Islam — a chat companion for Islamic knowledge.",
	Long: `Rafiq is a terminal client for the Rafiq ul-Islam chat service.
Conversations are stored locally, searchable, and exportable; the remote
service only ever sees the message being asked.`,
	RunE:          runChat, // Default to the interactive REPL.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(chatCmd, queryCmd, historyCmd, settingsCmd, versionCmd)
	_ = godotenv.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
