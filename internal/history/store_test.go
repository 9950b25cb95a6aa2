package history

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/rafiqlabs/rafiq/internal/kvstore"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T, opts ...Option) (*Store, kvstore.Store) {
	t.Helper()
	kv := kvstore.NewMemoryStore(0)
	return NewStore(kv, discardLogger(), opts...), kv
}

func TestNewThreadIDFormat(t *testing.T) {
	id := NewThreadID()
	if !regexp.MustCompile(`^chat_\d+_[0-9a-z]{9}$`).MatchString(id) {
		t.Errorf("unexpected thread ID format: %q", id)
	}
	if id == NewThreadID() {
		t.Error("two generated IDs collided")
	}
}

func TestAppendCreatesAndOrders(t *testing.T) {
	s, _ := newTestStore(t)

	s.Append("t1", "hello", "hi there")
	s.Append("t2", "second", "reply")

	threads := s.Threads()
	if len(threads) != 2 {
		t.Fatalf("expected 2 threads, got %d", len(threads))
	}
	// Most recently created first.
	if threads[0].ID != "t2" || threads[1].ID != "t1" {
		t.Errorf("unexpected order: %s, %s", threads[0].ID, threads[1].ID)
	}

	got := s.Find("t1")
	if got == nil {
		t.Fatal("Find(t1) = nil")
	}
	if len(got.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got.Messages))
	}
	if got.Messages[0].Role != RoleUser || got.Messages[0].Content != "hello" {
		t.Errorf("unexpected first message: %+v", got.Messages[0])
	}
	if got.Messages[1].Role != RoleAssistant || got.Messages[1].Content != "hi there" {
		t.Errorf("unexpected second message: %+v", got.Messages[1])
	}
	if got.Timestamp == "" {
		t.Error("timestamp not set on creation")
	}
	if _, err := time.Parse(time.RFC3339, got.Timestamp); err != nil {
		t.Errorf("timestamp not RFC3339: %v", err)
	}
}

func TestAppendToExistingThreadKeepsTimestamp(t *testing.T) {
	clock := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	s, _ := newTestStore(t, WithClock(func() time.Time { return clock }))

	s.Append("t1", "first", "reply one")
	created := s.Find("t1").Timestamp

	clock = clock.Add(48 * time.Hour)
	s.Append("t1", "second", "reply two")

	got := s.Find("t1")
	if got.Timestamp != created {
		t.Errorf("timestamp changed on append: %s -> %s", created, got.Timestamp)
	}
	if len(got.Messages) != 4 {
		t.Errorf("expected 4 messages, got %d", len(got.Messages))
	}
	if s.ThreadCount() != 1 {
		t.Errorf("append to existing thread created a new one")
	}
}

func TestRetentionCapEvictsOldest(t *testing.T) {
	s, _ := newTestStore(t, WithRetentionCap(3))

	for i := 0; i < 5; i++ {
		s.Append(fmt.Sprintf("t%d", i), "q", "a")
	}

	if s.ThreadCount() != 3 {
		t.Fatalf("thread count = %d, want 3", s.ThreadCount())
	}
	threads := s.Threads()
	// Newest three survive, newest first.
	for i, want := range []string{"t4", "t3", "t2"} {
		if threads[i].ID != want {
			t.Errorf("threads[%d] = %s, want %s", i, threads[i].ID, want)
		}
	}
	if s.Find("t0") != nil || s.Find("t1") != nil {
		t.Error("evicted threads still findable")
	}
}

func TestPersistLoadRoundTrip(t *testing.T) {
	kv := kvstore.NewMemoryStore(0)
	s := NewStore(kv, discardLogger())
	ctx := context.Background()

	s.Append("t1", "as-salamu alaykum", "wa alaykum as-salam")
	s.Append("t2", "what are the five pillars?", "they are...")
	s.Persist(ctx)

	s2 := NewStore(kv, discardLogger())
	before, after := s.Threads(), s2.Threads()
	if len(after) != len(before) {
		t.Fatalf("reloaded %d threads, want %d", len(after), len(before))
	}
	for i := range before {
		if after[i].ID != before[i].ID || after[i].Timestamp != before[i].Timestamp {
			t.Errorf("thread %d mismatch: %+v vs %+v", i, after[i], before[i])
		}
		if len(after[i].Messages) != len(before[i].Messages) {
			t.Fatalf("thread %d message count mismatch", i)
		}
		for j := range before[i].Messages {
			if after[i].Messages[j] != before[i].Messages[j] {
				t.Errorf("thread %d message %d mismatch", i, j)
			}
		}
	}
}

func TestLoadCorruptBlobStartsEmpty(t *testing.T) {
	kv := kvstore.NewMemoryStore(0)
	ctx := context.Background()
	_ = kv.Set(ctx, kvstore.KeyChatHistory, "{not json")

	s := NewStore(kv, discardLogger())
	if s.ThreadCount() != 0 {
		t.Errorf("expected empty store on corrupt blob, got %d threads", s.ThreadCount())
	}

	// Wrong shape (object instead of array) also starts empty.
	_ = kv.Set(ctx, kvstore.KeyChatHistory, `{"id":"x"}`)
	s.Reload(ctx)
	if s.ThreadCount() != 0 {
		t.Errorf("expected empty store on shape mismatch, got %d threads", s.ThreadCount())
	}
}

func TestPersistFailureDoesNotPropagate(t *testing.T) {
	kv := kvstore.NewMemoryStore(8) // tiny quota: every persist fails
	s := NewStore(kv, discardLogger())

	s.Append("t1", "a long enough message", "and a long reply")
	s.Persist(context.Background()) // must not panic or error

	if s.ThreadCount() != 1 {
		t.Error("in-memory state lost after failed persist")
	}
}

func TestSearch(t *testing.T) {
	s, _ := newTestStore(t)
	s.Append("t1", "Tell me about Salah", "Salah is the daily prayer")
	s.Append("t2", "what is zakat?", "Zakat is obligatory charity")

	tests := []struct {
		query string
		want  int
	}{
		{"", 0},
		{"   ", 0},
		{"salah", 2},
		{"ZAKAT", 2},
		{"prayer", 1},
		{"fasting", 0},
	}
	for _, tc := range tests {
		t.Run(fmt.Sprintf("q=%q", tc.query), func(t *testing.T) {
			got := s.Search(tc.query)
			if len(got) != tc.want {
				t.Fatalf("Search(%q) returned %d results, want %d", tc.query, len(got), tc.want)
			}
		})
	}

	// Result ordering: thread order (newest first), then message order.
	results := s.Search("salah")
	if results[0].ThreadID != "t1" || results[0].Role != RoleUser {
		t.Errorf("unexpected first result: %+v", results[0])
	}
	if results[1].ThreadID != "t1" || results[1].Role != RoleAssistant {
		t.Errorf("unexpected second result: %+v", results[1])
	}
	if results[0].Timestamp == "" {
		t.Error("search result missing thread timestamp")
	}
}

func TestClearAll(t *testing.T) {
	kv := kvstore.NewMemoryStore(0)
	s := NewStore(kv, discardLogger())
	ctx := context.Background()

	s.Append("t1", "q", "a")
	s.Persist(ctx)
	s.ClearAll(ctx)

	if s.ThreadCount() != 0 {
		t.Error("threads remain after ClearAll")
	}
	// ClearAll persists immediately: a fresh load sees nothing.
	s2 := NewStore(kv, discardLogger())
	if s2.ThreadCount() != 0 {
		t.Error("persisted threads remain after ClearAll")
	}
}

func TestExport(t *testing.T) {
	s, _ := newTestStore(t)
	s.Append("t1", "hello", "hi")
	s.Append("t2", "bye", "farewell")

	data, err := s.Export("t1")
	if err != nil {
		t.Fatal(err)
	}
	// Pretty-printed, 2-space indent.
	if !strings.HasPrefix(string(data), "[\n  {") {
		t.Errorf("export not 2-space pretty-printed: %q", string(data[:20]))
	}
	var exported []Thread
	if err := json.Unmarshal(data, &exported); err != nil {
		t.Fatalf("export not valid JSON: %v", err)
	}
	if len(exported) != 1 || exported[0].ID != "t1" {
		t.Errorf("unexpected export selection: %+v", exported)
	}

	all, err := s.Export()
	if err != nil {
		t.Fatal(err)
	}
	var allThreads []Thread
	if err := json.Unmarshal(all, &allThreads); err != nil {
		t.Fatal(err)
	}
	if len(allThreads) != 2 {
		t.Errorf("full export has %d threads, want 2", len(allThreads))
	}

	// Unknown selection exports an empty array, not null.
	empty, err := s.Export("nope")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(empty)) != "[]" {
		t.Errorf("unknown selection export = %q, want []", string(empty))
	}
}

func TestExportFilename(t *testing.T) {
	if got := ExportFilename("chat_1_abc"); got != "rafiq-chat-chat_1_abc.json" {
		t.Errorf("ExportFilename = %q", got)
	}
	if got := ExportFilename(""); got != "rafiq-all-chats.json" {
		t.Errorf("ExportFilename(all) = %q", got)
	}
}

func TestBucketOf(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		ts   string
		want Bucket
	}{
		{"same day", "2025-06-15T08:00:00Z", BucketToday},
		{"yesterday", "2025-06-14T23:00:00Z", BucketPrevious7Days},
		{"six days ago", "2025-06-09T12:30:00Z", BucketPrevious7Days},
		{"eight days ago", "2025-06-07T12:00:00Z", BucketOlder},
		{"garbage", "not-a-time", BucketOlder},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := BucketOf(tc.ts, now); got != tc.want {
				t.Errorf("BucketOf(%q) = %q, want %q", tc.ts, got, tc.want)
			}
		})
	}
}

func TestThreadTitle(t *testing.T) {
	long := strings.Repeat("a", 30)
	tests := []struct {
		name   string
		thread Thread
		want   string
	}{
		{"empty", Thread{}, "New Chat"},
		{"short", Thread{Messages: []Message{{Role: RoleUser, Content: "hello"}}}, "hello"},
		{"long", Thread{Messages: []Message{{Role: RoleUser, Content: long}}}, strings.Repeat("a", 25) + "..."},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.thread.Title(); got != tc.want {
				t.Errorf("Title() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestMessageCount(t *testing.T) {
	s, _ := newTestStore(t)
	s.Append("t1", "a", "b")
	s.Append("t1", "c", "d")
	s.AppendUser("t2", "orphan")

	if got := s.MessageCount(); got != 5 {
		t.Errorf("MessageCount = %d, want 5", got)
	}
	if got := s.ThreadCount(); got != 2 {
		t.Errorf("ThreadCount = %d, want 2", got)
	}
}
