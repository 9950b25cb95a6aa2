package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rafiqlabs/rafiq/internal/kvstore"
)

// DefaultRetentionCap is the default maximum number of retained
// threads. Oldest threads beyond the cap are evicted on insertion.
const DefaultRetentionCap = 50

// Store manages the ordered thread list (most-recently-created first)
// backed by a key-value store. Every operation that can fail against
// the backing store logs and degrades instead of propagating: loss of
// durability must never break an active chat session.
type Store struct {
	kv     kvstore.Store
	logger *slog.Logger
	cap    int
	now    func() time.Time

	mu      sync.Mutex
	threads []*Thread
}

// Option configures the Store.
type Option func(*Store)

// WithRetentionCap overrides the maximum retained thread count.
func WithRetentionCap(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.cap = n
		}
	}
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a Store and loads any persisted history.
func NewStore(kv kvstore.Store, logger *slog.Logger, opts ...Option) *Store {
	s := &Store{
		kv:     kv,
		logger: logger,
		cap:    DefaultRetentionCap,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.threads = s.load(context.Background())
	return s
}

// load reads the persisted blob. Missing key, parse failure, or shape
// mismatch all yield an empty list.
func (s *Store) load(ctx context.Context) []*Thread {
	raw, ok, err := s.kv.Get(ctx, kvstore.KeyChatHistory)
	if err != nil {
		s.logger.Error("loading chat history", slog.String("error", err.Error()))
		return nil
	}
	if !ok || raw == "" {
		return nil
	}

	var threads []*Thread
	if err := json.Unmarshal([]byte(raw), &threads); err != nil {
		s.logger.Error("parsing chat history, starting empty", slog.String("error", err.Error()))
		return nil
	}

	// Drop entries that don't hold a usable thread shape.
	kept := threads[:0]
	for _, t := range threads {
		if t != nil && t.ID != "" {
			kept = append(kept, t)
		}
	}
	return kept
}

// Reload discards the in-memory view and re-reads the persisted blob.
func (s *Store) Reload(ctx context.Context) {
	threads := s.load(ctx)
	s.mu.Lock()
	s.threads = threads
	s.mu.Unlock()
}

// Threads returns a snapshot of the thread list, most recent first.
func (s *Store) Threads() []*Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]*Thread, len(s.threads))
	copy(cp, s.threads)
	return cp
}

// Find returns the thread with the given ID, or nil.
func (s *Store) Find(threadID string) *Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findLocked(threadID)
}

func (s *Store) findLocked(threadID string) *Thread {
	for _, t := range s.threads {
		if t.ID == threadID {
			return t
		}
	}
	return nil
}

// Append records one exchange on the given thread: the user message
// followed by the assistant reply. If the thread does not exist it is
// created with the current time and prepended to the list, after
// which the retention cap is enforced (oldest evicted first).
// Callers must Persist afterwards for the change to survive reload.
func (s *Store) Append(threadID, userText, assistantText string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.findLocked(threadID)
	if t == nil {
		t = &Thread{
			ID:        threadID,
			Timestamp: s.now().UTC().Format(time.RFC3339),
		}
		s.threads = append([]*Thread{t}, s.threads...)
		if len(s.threads) > s.cap {
			s.threads = s.threads[:s.cap]
		}
	}

	t.Messages = append(t.Messages,
		Message{Role: RoleUser, Content: userText},
		Message{Role: RoleAssistant, Content: assistantText},
	)
}

// AppendUser records only the user half of an exchange. Used when the
// remote call failed but the client is configured to keep the user's
// message.
func (s *Store) AppendUser(threadID, userText string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.findLocked(threadID)
	if t == nil {
		t = &Thread{
			ID:        threadID,
			Timestamp: s.now().UTC().Format(time.RFC3339),
		}
		s.threads = append([]*Thread{t}, s.threads...)
		if len(s.threads) > s.cap {
			s.threads = s.threads[:s.cap]
		}
	}

	t.Messages = append(t.Messages, Message{Role: RoleUser, Content: userText})
}

// Persist serializes the full thread list to the backing store.
// Durability is best-effort: failures are logged, never returned.
func (s *Store) Persist(ctx context.Context) {
	s.mu.Lock()
	data, err := json.Marshal(s.threads)
	s.mu.Unlock()
	if err != nil {
		s.logger.Error("serializing chat history", slog.String("error", err.Error()))
		return
	}

	if err := s.kv.Set(ctx, kvstore.KeyChatHistory, string(data)); err != nil {
		s.logger.Error("persisting chat history", slog.String("error", err.Error()))
	}
}

// Search performs a case-insensitive substring match over every
// message across every thread. Results follow thread order, then
// message order within each thread. An empty or whitespace-only query
// yields an empty result set.
func (s *Store) Search(query string) []SearchResult {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var results []SearchResult
	for _, t := range s.threads {
		for _, m := range t.Messages {
			if strings.Contains(strings.ToLower(m.Content), q) {
				results = append(results, SearchResult{
					ThreadID:  t.ID,
					Role:      m.Role,
					Content:   m.Content,
					Timestamp: t.Timestamp,
				})
			}
		}
	}
	return results
}

// ClearAll empties the thread list and persists immediately.
func (s *Store) ClearAll(ctx context.Context) {
	s.mu.Lock()
	s.threads = nil
	s.mu.Unlock()
	s.Persist(ctx)
}

// ThreadCount returns the number of retained threads.
func (s *Store) ThreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.threads)
}

// MessageCount returns the total message count across all threads.
func (s *Store) MessageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.threads {
		n += len(t.Messages)
	}
	return n
}

// Export serializes the selected threads as pretty-printed JSON
// (2-space indent), suitable for writing to a download file. Unknown
// IDs are skipped. An empty ID list selects every thread.
func (s *Store) Export(threadIDs ...string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	selected := s.threads
	if len(threadIDs) > 0 {
		want := make(map[string]bool, len(threadIDs))
		for _, id := range threadIDs {
			want[id] = true
		}
		selected = nil
		for _, t := range s.threads {
			if want[t.ID] {
				selected = append(selected, t)
			}
		}
	}
	if selected == nil {
		selected = []*Thread{}
	}

	data, err := json.MarshalIndent(selected, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("serializing export: %w", err)
	}
	return data, nil
}

// ExportFilename returns the download filename for a single thread
// export, or for a full export when threadID is empty.
func ExportFilename(threadID string) string {
	if threadID == "" {
		return "rafiq-all-chats.json"
	}
	return fmt.Sprintf("rafiq-chat-%s.json", threadID)
}
