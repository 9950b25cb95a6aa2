package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rafiqlabs/rafiq/internal/chat"
	"github.com/rafiqlabs/rafiq/internal/config"
	"github.com/rafiqlabs/rafiq/internal/gateway/cli"
)

var chatConfigPath string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start the interactive chat REPL",
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatConfigPath, "config", "c", config.DefaultConfigPath(), "path to config file")
	// The root command defaults to chat, so it shares the flag.
	rootCmd.Flags().StringVarP(&chatConfigPath, "config", "c", config.DefaultConfigPath(), "path to config file")
}

func runChat(_ *cobra.Command, _ []string) error {
	sc, cleanup, err := buildComponents(chatConfigPath)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g := cli.NewGateway(sc.History, sc.Settings, sc.Client, sc.Metrics, sc.Logger)

	var chatOpts []chat.Option
	if sc.Config.Chat.PersistUserOnFailure {
		chatOpts = append(chatOpts, chat.WithPersistUserOnFailure(true))
	}
	if fb := sc.Config.FallbackReply(); fb != "" {
		chatOpts = append(chatOpts, chat.WithFallbackReply(fb))
	}
	g.Bind(chat.NewController(sc.History, sc.Client, sc.Formatter, g, sc.Logger, sc.Metrics, chatOpts...))

	return g.Start(ctx)
}
