// Package kvstore defines the persistent key-value store that backs
// local application state. Values are opaque strings (JSON blobs in
// practice); keys are flat names such as "chat_history" or "settings".
// Two backends are provided: SQLite (default, durable) and in-memory
// (ephemeral sessions and tests).
package kvstore

import (
	"context"
	"errors"
)

// Store is the persistence interface for local client state.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the value for key. The second return is false when
	// the key has never been set (or was deleted).
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key, replacing any previous value.
	// Returns ErrQuotaExceeded when the value is larger than the
	// configured quota.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases the underlying resources.
	Close() error
}

// ErrQuotaExceeded is returned by Set when a value exceeds the
// per-value size quota. Callers are expected to treat storage as
// best-effort and degrade gracefully.
var ErrQuotaExceeded = errors.New("kvstore: value exceeds size quota")

// Well-known keys.
const (
	// KeyChatHistory holds the serialized conversation thread list.
	KeyChatHistory = "chat_history"

	// KeySettings holds the serialized settings record.
	KeySettings = "settings"
)

// DefaultQuotaBytes is the default per-value size limit (5 MiB),
// mirroring typical browser localStorage quotas.
const DefaultQuotaBytes = 5 << 20
