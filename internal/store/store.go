// Package store provides durable, versioned conversation checkpoints.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/soyeahso/leadreach/internal/domain"
	"github.com/soyeahso/leadreach/internal/logging"
)

// Checkpointer persists conversations keyed by thread id. Writes are
// optimistic: Save only succeeds when the stored version equals
// expectVersion, and then bumps it by one.
type Checkpointer interface {
	// Load returns the latest checkpoint, or a *domain.NotFoundError.
	Load(ctx context.Context, threadID string) (*domain.Conversation, error)

	// Save atomically commits conv. expectVersion 0 creates the thread.
	// A stale expectVersion yields domain.ErrConflict. On success
	// conv.Version holds the new version.
	Save(ctx context.Context, conv *domain.Conversation, expectVersion int64) error

	// Delete removes a thread and its history.
	Delete(ctx context.Context, threadID string) error

	// List returns summaries ordered by most recent update.
	List(ctx context.Context, opts ListOptions) ([]Summary, error)

	// PurgeTerminal deletes finished threads last updated before cutoff.
	PurgeTerminal(ctx context.Context, cutoff time.Time) (int, error)

	Close() error
}

// Historian is implemented by backends that keep a per-thread checkpoint log.
type Historian interface {
	// History returns the committed versions for a thread, oldest first.
	History(ctx context.Context, threadID string) ([]int64, error)
}

var (
	_ Historian = (*SQLiteCheckpointer)(nil)
	_ Historian = (*PebbleCheckpointer)(nil)
)

// ListOptions filters List results.
type ListOptions struct {
	Status domain.Status // empty matches all
	Limit  int           // 0 means no limit
}

// Summary is a lightweight view of a stored conversation.
type Summary struct {
	ThreadID  string        `json:"threadId"`
	LeadEmail string        `json:"leadEmail"`
	Status    domain.Status `json:"status"`
	NextNode  domain.Node   `json:"nextNode,omitempty"`
	Version   int64         `json:"version"`
	Messages  int           `json:"messages"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

func summarize(c *domain.Conversation) Summary {
	return Summary{
		ThreadID:  c.ThreadID,
		LeadEmail: c.LeadEmail,
		Status:    c.Status,
		NextNode:  c.NextNode,
		Version:   c.Version,
		Messages:  len(c.Messages),
		UpdatedAt: c.UpdatedAt,
	}
}

// checkAppendOnly rejects writes that would drop history.
func checkAppendOnly(prev, next *domain.Conversation) error {
	if len(next.Messages) < len(prev.Messages) {
		return fmt.Errorf("checkpoint for %s would shrink history from %d to %d messages",
			next.ThreadID, len(prev.Messages), len(next.Messages))
	}
	if prev.LeadEmail != next.LeadEmail {
		return fmt.Errorf("checkpoint for %s would change the lead email", next.ThreadID)
	}
	return nil
}

// Open creates the checkpoint backend named by driver.
func Open(driver, dsn string, log *logging.Logger) (Checkpointer, error) {
	switch driver {
	case "memory":
		return NewMemory(), nil
	case "sqlite", "":
		db, err := OpenDB(dsn, log)
		if err != nil {
			return nil, err
		}
		return NewSQLiteCheckpointer(db), nil
	case "pebble":
		return OpenPebble(dsn, log)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
