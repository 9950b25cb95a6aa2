// Package cli implements the interactive chat REPL for rafiq.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/common/expfmt"

	"github.com/rafiqlabs/rafiq/internal/backend"
	"github.com/rafiqlabs/rafiq/internal/chat"
	"github.com/rafiqlabs/rafiq/internal/history"
	"github.com/rafiqlabs/rafiq/internal/observability"
	"github.com/rafiqlabs/rafiq/internal/settings"
)

// Gateway is the interactive command-line interface. It doubles as the
// controller's presentation sink: rendered markup is written straight
// to the terminal.
type Gateway struct {
	ctrl     *chat.Controller
	store    *history.Store
	settings *settings.Manager
	client   *backend.Client
	metrics  *observability.MetricsCollector
	logger   *slog.Logger

	in        io.Reader
	out       io.Writer
	exportDir string
	done      chan struct{} // closed by Stop to signal shutdown
}

var _ chat.Sink = (*Gateway)(nil)

// Option configures the Gateway.
type Option func(*Gateway)

// WithIO overrides the terminal streams (tests).
func WithIO(in io.Reader, out io.Writer) Option {
	return func(g *Gateway) {
		g.in = in
		g.out = out
	}
}

// WithExportDir sets the directory export files are written to.
// Default is the current working directory.
func WithExportDir(dir string) Option {
	return func(g *Gateway) { g.exportDir = dir }
}

// NewGateway creates a CLI gateway. The gateway is the controller's
// presentation sink, so the controller is attached afterwards with
// Bind.
func NewGateway(store *history.Store, sm *settings.Manager, client *backend.Client, metrics *observability.MetricsCollector, logger *slog.Logger, opts ...Option) *Gateway {
	g := &Gateway{
		store:    store,
		settings: sm,
		client:   client,
		metrics:  metrics,
		logger:   logger,
		in:       os.Stdin,
		out:      os.Stdout,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Bind attaches the session controller. Must be called before Start.
func (g *Gateway) Bind(ctrl *chat.Controller) {
	g.ctrl = ctrl
}

// --- chat.Sink ---

// ShowUser is a no-op: the terminal already echoes the user's line.
func (g *Gateway) ShowUser(string) {}

// ShowTyping prints the waiting indicator.
func (g *Gateway) ShowTyping() {
	fmt.Fprintln(g.out, "...")
}

// HideTyping is a no-op on a line-oriented terminal.
func (g *Gateway) HideTyping() {}

// ShowAssistant prints the rendered assistant reply.
func (g *Gateway) ShowAssistant(markup string) {
	fmt.Fprintf(g.out, "\n%s\n\n", markup)
}

// ThreadsChanged is a no-op: the REPL renders the thread list on
// demand via /history.
func (g *Gateway) ThreadsChanged() {}

// Start runs the interactive REPL. Blocks until ctx is cancelled,
// Stop is called, or the user types "exit".
func (g *Gateway) Start(ctx context.Context) error {
	scanner := bufio.NewScanner(g.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	status := "offline"
	if g.client.Ping(ctx) {
		status = "online"
	}
	prefs := g.settings.Load(ctx)
	fmt.Fprintln(g.out, "Rafiq ul-Islam — your companion for Islamic knowledge")
	fmt.Fprintf(g.out, "backend: %s (%s)\n", status, g.client.BaseURL())
	fmt.Fprintf(g.out, "theme: %s, font: %dpt\n", prefs.Theme, settings.FontSizePoints(prefs.FontSize))
	fmt.Fprintln(g.out, `Type your message, "/help" for commands, or "exit" to quit.`)
	fmt.Fprintln(g.out)

	for {
		fmt.Fprint(g.out, "rafiq> ")

		// Check for context cancellation or Stop signal between prompts.
		select {
		case <-ctx.Done():
			fmt.Fprintln(g.out, "\nShutting down.")
			return nil
		case <-g.done:
			fmt.Fprintln(g.out, "\nShutting down.")
			return nil
		default:
		}

		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			fmt.Fprintln(g.out, "Ma'a salama.")
			return nil
		}

		if strings.HasPrefix(line, "/") {
			g.handleCommand(ctx, line)
			continue
		}

		if err := g.ctrl.SendMessage(ctx, line); err != nil {
			// Single in-flight exchange: extra sends are dropped.
			fmt.Fprintln(g.out, "Still waiting on the previous message.")
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	return nil
}

// Stop signals the REPL to shut down.
func (g *Gateway) Stop(_ context.Context) error {
	select {
	case <-g.done:
		// Already closed.
	default:
		close(g.done)
	}
	return nil
}

func (g *Gateway) handleCommand(ctx context.Context, line string) {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/help":
		fmt.Fprintln(g.out, `Commands:
  /new            start a fresh conversation
  /history        list stored conversations
  /search <text>  search all messages
  /export [all]   write the current (or every) conversation to a JSON file
  /clear          delete all stored conversations
  /stats          show session statistics
  /help           this list`)

	case "/new":
		id := g.ctrl.NewSession()
		fmt.Fprintf(g.out, "Started a new conversation (%s).\n", id)

	case "/history":
		threads := g.store.Threads()
		if len(threads) == 0 {
			fmt.Fprintln(g.out, "No conversations yet.")
			return
		}
		for _, t := range threads {
			fmt.Fprintf(g.out, "  [%s] %s  (%s, %d messages)\n",
				history.BucketOf(t.Timestamp, time.Now()), t.Title(), t.ID, len(t.Messages))
		}

	case "/search":
		if arg == "" {
			fmt.Fprintln(g.out, "Usage: /search <text>")
			return
		}
		results := g.store.Search(arg)
		if len(results) == 0 {
			fmt.Fprintln(g.out, "No matches.")
			return
		}
		for _, r := range results {
			fmt.Fprintf(g.out, "  [%s] %s: %s\n", r.ThreadID, r.Role, r.Content)
		}

	case "/export":
		g.export(arg == "all")

	case "/clear":
		g.store.ClearAll(ctx)
		g.metrics.ThreadsStored.Set(0)
		fmt.Fprintln(g.out, "All conversations deleted.")

	case "/stats":
		fmt.Fprintf(g.out, "conversations: %d, messages: %d\n", g.store.ThreadCount(), g.store.MessageCount())
		families, err := g.metrics.Registry.Gather()
		if err != nil {
			return
		}
		enc := expfmt.NewEncoder(g.out, expfmt.NewFormat(expfmt.TypeTextPlain))
		for _, mf := range families {
			if err := enc.Encode(mf); err != nil {
				return
			}
		}

	default:
		fmt.Fprintf(g.out, "Unknown command %q. Try /help.\n", cmd)
	}
}

func (g *Gateway) export(all bool) {
	var (
		data []byte
		err  error
		name string
	)
	if all {
		data, err = g.store.Export()
		name = history.ExportFilename("")
	} else {
		id := g.ctrl.ThreadID()
		if g.store.Find(id) == nil {
			fmt.Fprintln(g.out, "Nothing to export yet in this conversation.")
			return
		}
		data, err = g.store.Export(id)
		name = history.ExportFilename(id)
	}
	if err != nil {
		fmt.Fprintf(g.out, "Export failed: %v\n", err)
		return
	}

	path := filepath.Join(g.exportDir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		fmt.Fprintf(g.out, "Export failed: %v\n", err)
		return
	}
	g.logger.Info("exported chat history", slog.String("path", path))
	fmt.Fprintf(g.out, "Wrote %s\n", path)
}
