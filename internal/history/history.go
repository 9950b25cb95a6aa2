// Package history owns the ordered list of conversation threads and
// their message logs: create, append, lookup, bounded retention,
// full-text search, and export. The whole thread list is persisted as
// a single JSON blob in the key-value store; the in-memory view is the
// source of truth between Persist calls.
package history

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn half. Immutable once created.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Thread is one continuous conversation: an opaque unique ID, the
// creation timestamp (ISO-8601, never changed), and an append-only
// message log.
type Thread struct {
	ID        string    `json:"id"`
	Timestamp string    `json:"timestamp"`
	Messages  []Message `json:"messages"`
}

// Title derives a display title from the first user message,
// truncated to 25 characters with an ellipsis.
func (t *Thread) Title() string {
	if len(t.Messages) == 0 || t.Messages[0].Content == "" {
		return "New Chat"
	}
	content := t.Messages[0].Content
	runes := []rune(content)
	if len(runes) <= 25 {
		return content
	}
	return string(runes[:25]) + "..."
}

// SearchResult is one message matching a search query, annotated with
// its thread's identity and creation time.
type SearchResult struct {
	ThreadID  string `json:"thread_id"`
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// Bucket is a derived, non-persisted recency classification used only
// for display grouping.
type Bucket string

const (
	BucketToday         Bucket = "today"
	BucketPrevious7Days Bucket = "previous_7_days"
	BucketOlder         Bucket = "older"
)

// BucketOf classifies a thread timestamp relative to now.
// Unparseable timestamps classify as BucketOlder.
func BucketOf(timestamp string, now time.Time) Bucket {
	ts, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return BucketOlder
	}
	ts, now = ts.Local(), now.Local()
	if ts.Year() == now.Year() && ts.YearDay() == now.YearDay() {
		return BucketToday
	}
	if ts.After(now.AddDate(0, 0, -7)) {
		return BucketPrevious7Days
	}
	return BucketOlder
}

// NewThreadID produces an opaque thread handle: a millisecond time
// prefix plus a 9-character random base-36 suffix. Unique with
// overwhelming probability, and sortable by creation time.
func NewThreadID() string {
	return fmt.Sprintf("chat_%d_%s", time.Now().UnixMilli(), randomSuffix(9))
}

func randomSuffix(n int) string {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	var b strings.Builder
	b.Grow(n)
	max := big.NewInt(int64(len(alphabet)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails when the platform source is
			// broken; fall back to a fixed digit rather than panic.
			b.WriteByte('0')
			continue
		}
		b.WriteByte(alphabet[idx.Int64()])
	}
	return b.String()
}
