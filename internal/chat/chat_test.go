package chat

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rafiqlabs/rafiq/internal/backend"
	"github.com/rafiqlabs/rafiq/internal/format"
	"github.com/rafiqlabs/rafiq/internal/history"
	"github.com/rafiqlabs/rafiq/internal/kvstore"
	"github.com/rafiqlabs/rafiq/internal/observability"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordSink captures presentation events for assertions.
type recordSink struct {
	mu             sync.Mutex
	user           []string
	assistant      []string
	typingShown    int
	typingHidden   int
	threadsChanged int
}

func (s *recordSink) ShowUser(markup string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = append(s.user, markup)
}

func (s *recordSink) ShowAssistant(markup string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assistant = append(s.assistant, markup)
}

func (s *recordSink) ShowTyping() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.typingShown++
}

func (s *recordSink) HideTyping() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.typingHidden++
}

func (s *recordSink) ThreadsChanged() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threadsChanged++
}

func newTestController(t *testing.T, backendURL string, opts ...Option) (*Controller, *history.Store, *recordSink) {
	t.Helper()
	logger := discardLogger()
	store := history.NewStore(kvstore.NewMemoryStore(kvstore.DefaultQuotaBytes), logger)
	sink := &recordSink{}
	client := backend.NewClient(backendURL, logger)
	ctrl := NewController(store, client, format.New(), sink, logger, observability.NewMetricsCollector(), opts...)
	return ctrl, store, sink
}

func echoServer(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"reply": reply})
	}))
}

func TestSendMessageSuccess(t *testing.T) {
	srv := echoServer(t, "Wa alaikum assalam, how can I help?")
	defer srv.Close()

	ctrl, store, sink := newTestController(t, srv.URL)

	if err := ctrl.SendMessage(context.Background(), "Assalamu alaikum"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(sink.user) != 1 || sink.user[0] != "Assalamu alaikum" {
		t.Errorf("user renders = %v", sink.user)
	}
	if len(sink.assistant) != 1 || sink.assistant[0] != "Wa alaikum assalam, how can I help?" {
		t.Errorf("assistant renders = %v", sink.assistant)
	}
	if sink.typingShown != 1 || sink.typingHidden != 1 {
		t.Errorf("typing shown/hidden = %d/%d", sink.typingShown, sink.typingHidden)
	}
	if sink.threadsChanged != 1 {
		t.Errorf("threadsChanged = %d", sink.threadsChanged)
	}

	thread := store.Find(ctrl.ThreadID())
	if thread == nil {
		t.Fatal("thread not stored")
	}
	if len(thread.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(thread.Messages))
	}
	if thread.Messages[0].Role != history.RoleUser || thread.Messages[1].Role != history.RoleAssistant {
		t.Errorf("roles = %q, %q", thread.Messages[0].Role, thread.Messages[1].Role)
	}

	// Persisted, not just in memory.
	store.Reload(context.Background())
	if store.ThreadCount() != 1 {
		t.Errorf("persisted threads = %d, want 1", store.ThreadCount())
	}
}

func TestSendMessageRendersMarkup(t *testing.T) {
	srv := echoServer(t, "**bold** reply")
	defer srv.Close()

	ctrl, store, sink := newTestController(t, srv.URL)
	if err := ctrl.SendMessage(context.Background(), "hi"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sink.assistant[0] != "<strong>bold</strong> reply" {
		t.Errorf("assistant markup = %q", sink.assistant[0])
	}
	// History stores the raw reply, not markup.
	thread := store.Find(ctrl.ThreadID())
	if thread.Messages[1].Content != "**bold** reply" {
		t.Errorf("stored content = %q", thread.Messages[1].Content)
	}
}

func TestSendMessageEmptyInputIsNoOp(t *testing.T) {
	srv := echoServer(t, "never called")
	defer srv.Close()

	ctrl, store, sink := newTestController(t, srv.URL)
	for _, in := range []string{"", "   ", "\n\t"} {
		if err := ctrl.SendMessage(context.Background(), in); err != nil {
			t.Errorf("SendMessage(%q) = %v, want nil", in, err)
		}
	}
	if len(sink.user) != 0 || store.ThreadCount() != 0 {
		t.Errorf("empty input reached sink or store")
	}
}

func TestSendMessageFailureFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctrl, store, sink := newTestController(t, srv.URL)

	if err := ctrl.SendMessage(context.Background(), "hello"); err != nil {
		t.Fatalf("remote failure must not surface: %v", err)
	}

	if len(sink.assistant) != 1 || !strings.Contains(sink.assistant[0], "connection issue") {
		t.Errorf("assistant renders = %v, want fallback", sink.assistant)
	}
	if sink.typingHidden != 1 {
		t.Errorf("typing not hidden on failure")
	}
	// Default policy: nothing persisted on failure.
	if store.ThreadCount() != 0 {
		t.Errorf("threads = %d, want 0", store.ThreadCount())
	}
	if sink.threadsChanged != 0 {
		t.Errorf("threadsChanged = %d, want 0", sink.threadsChanged)
	}
}

func TestSendMessageFailurePersistsUserWhenConfigured(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ctrl, store, sink := newTestController(t, srv.URL, WithPersistUserOnFailure(true))

	if err := ctrl.SendMessage(context.Background(), "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	thread := store.Find(ctrl.ThreadID())
	if thread == nil {
		t.Fatal("user half not stored")
	}
	if len(thread.Messages) != 1 || thread.Messages[0].Role != history.RoleUser {
		t.Errorf("messages = %+v, want single user turn", thread.Messages)
	}
	if sink.threadsChanged != 1 {
		t.Errorf("threadsChanged = %d, want 1", sink.threadsChanged)
	}
}

func TestSendMessageCustomFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctrl, _, sink := newTestController(t, srv.URL, WithFallbackReply("backend is down"))
	if err := ctrl.SendMessage(context.Background(), "hi"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sink.assistant[0] != "backend is down" {
		t.Errorf("assistant = %q", sink.assistant[0])
	}
}

func TestSendMessageBusy(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"reply": "done"})
	}))
	defer srv.Close()
	defer close(release)

	ctrl, _, _ := newTestController(t, srv.URL)

	done := make(chan error, 1)
	go func() {
		done <- ctrl.SendMessage(context.Background(), "first")
	}()

	// Wait for the first exchange to be in flight.
	deadline := time.Now().Add(2 * time.Second)
	for !ctrl.Busy() {
		if time.Now().After(deadline) {
			t.Fatal("first exchange never entered Sending")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := ctrl.SendMessage(context.Background(), "second"); err != ErrBusy {
		t.Errorf("concurrent send = %v, want ErrBusy", err)
	}

	release <- struct{}{}
	if err := <-done; err != nil {
		t.Errorf("first send = %v", err)
	}
	if ctrl.Busy() {
		t.Error("controller still busy after completion")
	}
}

func TestNewSessionRotatesThread(t *testing.T) {
	srv := echoServer(t, "ok")
	defer srv.Close()

	ctrl, store, _ := newTestController(t, srv.URL)

	if err := ctrl.SendMessage(context.Background(), "one"); err != nil {
		t.Fatal(err)
	}
	first := ctrl.ThreadID()

	second := ctrl.NewSession()
	if second == first {
		t.Fatal("NewSession did not rotate thread ID")
	}
	if ctrl.ThreadID() != second {
		t.Errorf("ThreadID = %q, want %q", ctrl.ThreadID(), second)
	}

	if err := ctrl.SendMessage(context.Background(), "two"); err != nil {
		t.Fatal(err)
	}
	if store.ThreadCount() != 2 {
		t.Errorf("threads = %d, want 2", store.ThreadCount())
	}
	// New thread sits first; the old one keeps its own messages.
	threads := store.Threads()
	if threads[0].ID != second || threads[1].ID != first {
		t.Errorf("thread order = %q, %q", threads[0].ID, threads[1].ID)
	}
}

func TestResume(t *testing.T) {
	srv := echoServer(t, "ok")
	defer srv.Close()

	ctrl, _, _ := newTestController(t, srv.URL)
	if err := ctrl.SendMessage(context.Background(), "one"); err != nil {
		t.Fatal(err)
	}
	first := ctrl.ThreadID()
	ctrl.NewSession()

	if err := ctrl.Resume(first); err != nil {
		t.Fatalf("Resume(%q) = %v", first, err)
	}
	if ctrl.ThreadID() != first {
		t.Errorf("ThreadID = %q, want %q", ctrl.ThreadID(), first)
	}

	if err := ctrl.Resume("chat_0_nosuch"); err == nil {
		t.Error("Resume of unknown thread succeeded")
	}
}
