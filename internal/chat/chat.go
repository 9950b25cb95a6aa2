// Package chat implements the session controller: the single-in-flight
// state machine that drives one exchange from user input through the
// remote API to rendered output and persisted history.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rafiqlabs/rafiq/internal/backend"
	"github.com/rafiqlabs/rafiq/internal/format"
	"github.com/rafiqlabs/rafiq/internal/history"
	"github.com/rafiqlabs/rafiq/internal/observability"
)

// ErrBusy is returned when a send arrives while another exchange is
// still in flight. The message is dropped, not queued.
var ErrBusy = errors.New("chat: an exchange is already in flight")

// DefaultFallbackReply is shown as the assistant turn when the remote
// call fails. It is presentation only and never persisted as a real
// reply.
const DefaultFallbackReply = "Assalamu alaikum! There seems to be a temporary connection issue. Please check your internet and try again."

// Sink receives presentation events. The controller never prints
// anything itself; whatever front end is attached decides how markup
// and state changes appear.
type Sink interface {
	ShowUser(markup string)
	ShowTyping()
	HideTyping()
	ShowAssistant(markup string)
	ThreadsChanged()
}

type state int

const (
	stateIdle state = iota
	stateSending
)

// Controller coordinates one chat session. All collaborators are
// injected; the controller holds no ambient state beyond the active
// thread ID and the in-flight flag.
type Controller struct {
	store     *history.Store
	client    *backend.Client
	formatter *format.Formatter
	sink      Sink
	logger    *slog.Logger
	metrics   *observability.MetricsCollector

	fallbackReply        string
	persistUserOnFailure bool

	mu       sync.Mutex
	state    state
	threadID string
}

// Option configures the Controller.
type Option func(*Controller)

// WithFallbackReply overrides the assistant text shown when the remote
// call fails.
func WithFallbackReply(text string) Option {
	return func(c *Controller) {
		if text != "" {
			c.fallbackReply = text
		}
	}
}

// WithPersistUserOnFailure controls whether the user half of a failed
// exchange is stored. Off by default: a failed exchange leaves no
// trace in history.
func WithPersistUserOnFailure(on bool) Option {
	return func(c *Controller) { c.persistUserOnFailure = on }
}

// NewController creates a session controller with a fresh thread ID.
func NewController(store *history.Store, client *backend.Client, formatter *format.Formatter, sink Sink, logger *slog.Logger, metrics *observability.MetricsCollector, opts ...Option) *Controller {
	c := &Controller{
		store:         store,
		client:        client,
		formatter:     formatter,
		sink:          sink,
		logger:        logger,
		metrics:       metrics,
		fallbackReply: DefaultFallbackReply,
		threadID:      history.NewThreadID(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ThreadID returns the active thread ID.
func (c *Controller) ThreadID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.threadID
}

// Busy reports whether an exchange is in flight.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateSending
}

// NewSession rotates to a fresh thread ID and returns it. The old
// thread stays in history; subsequent exchanges land on the new one.
func (c *Controller) NewSession() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.threadID = history.NewThreadID()
	c.logger.Info("new chat session", slog.String("thread_id", c.threadID))
	return c.threadID
}

// Resume switches the controller onto an existing thread so further
// exchanges append to it.
func (c *Controller) Resume(threadID string) error {
	if c.store.Find(threadID) == nil {
		return fmt.Errorf("chat: unknown thread %s", threadID)
	}
	c.mu.Lock()
	c.threadID = threadID
	c.mu.Unlock()
	return nil
}

// SendMessage runs one exchange. Empty input (after trimming) is a
// no-op. While an exchange is in flight further sends return ErrBusy.
// The user message is rendered optimistically before the network call;
// on success the reply is rendered and the pair persisted, on failure
// the fallback reply is rendered and nothing is persisted as an
// assistant turn. Remote failure is handled in-band and is not an
// error to the caller.
func (c *Controller) SendMessage(ctx context.Context, rawText string) error {
	text := strings.TrimSpace(rawText)
	if text == "" {
		return nil
	}

	c.mu.Lock()
	if c.state == stateSending {
		c.mu.Unlock()
		return ErrBusy
	}
	c.state = stateSending
	threadID := c.threadID
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.state = stateIdle
		c.mu.Unlock()
	}()

	exchangeID := uuid.New().String()
	c.logger.Debug("sending message",
		slog.String("exchange_id", exchangeID),
		slog.String("thread_id", threadID),
		slog.Int("length", len(text)),
	)

	c.sink.ShowUser(c.formatter.Render(text))
	c.sink.ShowTyping()

	start := time.Now()
	reply, err := c.client.Send(ctx, text)
	c.metrics.ExchangeDuration.Observe(time.Since(start).Seconds())

	c.sink.HideTyping()

	if err != nil {
		c.metrics.ExchangesTotal.WithLabelValues("failure").Inc()
		c.logger.Error("exchange failed",
			slog.String("exchange_id", exchangeID),
			slog.String("thread_id", threadID),
			slog.String("error", err.Error()),
		)

		c.sink.ShowAssistant(c.formatter.Render(c.fallbackReply))
		if c.persistUserOnFailure {
			c.store.AppendUser(threadID, text)
			c.store.Persist(ctx)
			c.metrics.ThreadsStored.Set(float64(c.store.ThreadCount()))
			c.sink.ThreadsChanged()
		}
		return nil
	}

	c.metrics.ExchangesTotal.WithLabelValues("success").Inc()
	c.sink.ShowAssistant(c.formatter.Render(reply))

	c.store.Append(threadID, text, reply)
	c.store.Persist(ctx)
	c.metrics.ThreadsStored.Set(float64(c.store.ThreadCount()))
	c.sink.ThreadsChanged()

	c.logger.Debug("exchange completed",
		slog.String("exchange_id", exchangeID),
		slog.String("thread_id", threadID),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}
