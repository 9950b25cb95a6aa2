package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	goutils "github.com/jkaninda/go-utils"

	"github.com/rafiqlabs/rafiq/internal/config"
	"github.com/rafiqlabs/rafiq/internal/history"
)

// Exit codes for the query command.
const (
	ExitSuccess     = 0
	ExitFailure     = 1
	ExitUnavailable = 3
)

var (
	queryMessage    string
	queryConfigPath string
	queryThreadID   string
	queryNoStore    bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Send a one-shot message and print the reply",
	Long: `Send a single message to the chat service and print the reply.
By default the exchange is stored in local history like any other
conversation.

Examples:
  rafiq query -m "What are the five pillars of Islam?"
  rafiq query -m "follow-up question" --thread chat_1712345678901_a1b2c3d4e
  rafiq query -m "throwaway question" --no-store

Exit codes:
  0  success
  1  exchange failed
  3  service unreachable`,
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVarP(&queryMessage, "message", "m", "", "message to send (required)")
	queryCmd.Flags().StringVarP(&queryConfigPath, "config", "c", config.DefaultConfigPath(), "path to config file")
	queryCmd.Flags().StringVar(&queryThreadID, "thread", "", "append to an existing conversation")
	queryCmd.Flags().BoolVar(&queryNoStore, "no-store", false, "do not record the exchange in history")

	_ = queryCmd.MarkFlagRequired("message")
}

func runQuery(_ *cobra.Command, _ []string) error {
	if queryMessage == "" {
		return fmt.Errorf("message is required: use -m flag")
	}

	sc, cleanup, err := buildComponents(goutils.Env("RAFIQ_CONFIG", queryConfigPath))
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), sc.Config.ExchangeTimeout())
	defer cancel()

	if !sc.Client.Ping(ctx) {
		fmt.Fprintf(os.Stderr, "Error: cannot reach %s\n", sc.Client.BaseURL())
		os.Exit(ExitUnavailable)
	}

	reply, err := sc.Client.Send(ctx, queryMessage)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitFailure)
	}

	fmt.Println(sc.Formatter.Render(reply))

	if !queryNoStore {
		threadID := queryThreadID
		if threadID == "" {
			threadID = history.NewThreadID()
		}
		sc.History.Append(threadID, queryMessage, reply)
		sc.History.Persist(ctx)
		fmt.Fprintf(os.Stderr, "[thread=%s]\n", threadID)
	}
	return nil
}
