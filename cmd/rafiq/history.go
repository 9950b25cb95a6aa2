package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rafiqlabs/rafiq/internal/config"
	"github.com/rafiqlabs/rafiq/internal/history"
)

var historyConfigPath string

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect and manage stored conversations",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored conversations, newest first",
	RunE: func(_ *cobra.Command, _ []string) error {
		sc, cleanup, err := buildComponents(historyConfigPath)
		if err != nil {
			return err
		}
		defer cleanup()

		threads := sc.History.Threads()
		if len(threads) == 0 {
			fmt.Println("No conversations stored.")
			return nil
		}
		now := time.Now()
		for _, t := range threads {
			fmt.Printf("[%s] %s  (%s, %d messages)\n",
				history.BucketOf(t.Timestamp, now), t.Title(), t.ID, len(t.Messages))
		}
		return nil
	},
}

var historySearchCmd = &cobra.Command{
	Use:   "search <text>",
	Short: "Search all stored messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		sc, cleanup, err := buildComponents(historyConfigPath)
		if err != nil {
			return err
		}
		defer cleanup()

		results := sc.History.Search(args[0])
		if len(results) == 0 {
			fmt.Println("No matches.")
			return nil
		}
		for _, r := range results {
			fmt.Printf("[%s] %s: %s\n", r.ThreadID, r.Role, r.Content)
		}
		return nil
	},
}

var historyExportCmd = &cobra.Command{
	Use:   "export [thread-id]",
	Short: "Write conversations to a pretty-printed JSON file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		sc, cleanup, err := buildComponents(historyConfigPath)
		if err != nil {
			return err
		}
		defer cleanup()

		var (
			data []byte
			name string
		)
		if len(args) == 1 {
			if sc.History.Find(args[0]) == nil {
				return fmt.Errorf("no conversation with ID %s", args[0])
			}
			data, err = sc.History.Export(args[0])
			name = history.ExportFilename(args[0])
		} else {
			data, err = sc.History.Export()
			name = history.ExportFilename("")
		}
		if err != nil {
			return err
		}

		if err := os.WriteFile(name, data, 0o600); err != nil {
			return fmt.Errorf("writing export: %w", err)
		}
		fmt.Printf("Wrote %s\n", name)
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all stored conversations",
	RunE: func(_ *cobra.Command, _ []string) error {
		sc, cleanup, err := buildComponents(historyConfigPath)
		if err != nil {
			return err
		}
		defer cleanup()

		n := sc.History.ThreadCount()
		sc.History.ClearAll(context.Background())
		fmt.Printf("Deleted %d conversation(s).\n", n)
		return nil
	},
}

func init() {
	historyCmd.PersistentFlags().StringVarP(&historyConfigPath, "config", "c", config.DefaultConfigPath(), "path to config file")
	historyCmd.AddCommand(historyListCmd, historySearchCmd, historyExportCmd, historyClearCmd)
}
