package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/soyeahso/leadreach/internal/domain"
	"github.com/soyeahso/leadreach/internal/logging"
)

const (
	convPrefix = "conv:"
	ckptPrefix = "ckpt:"
)

// PebbleCheckpointer stores each conversation as a JSON document in a
// Pebble key-value store. A process-wide mutex makes the version check and
// batch commit a single critical section.
type PebbleCheckpointer struct {
	mu  sync.Mutex
	db  *pebble.DB
	log *logging.Logger
}

// OpenPebble opens (or creates) a Pebble database in dir.
func OpenPebble(dir string, log *logging.Logger) (*PebbleCheckpointer, error) {
	if dir == "" {
		return nil, fmt.Errorf("pebble store requires a directory")
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0o700); err != nil {
		return nil, fmt.Errorf("creating pebble directory: %w", err)
	}
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("opening pebble: %w", err)
	}
	p := &PebbleCheckpointer{db: db, log: log.Sub("store")}
	p.log.Info().Str("path", dir).Msg("pebble store opened")
	return p, nil
}

func convKey(threadID string) []byte { return []byte(convPrefix + threadID) }

func ckptKey(threadID string, version int64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", ckptPrefix, threadID, version))
}

func (p *PebbleCheckpointer) get(threadID string) (*domain.Conversation, error) {
	v, closer, err := p.db.Get(convKey(threadID))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, &domain.NotFoundError{ThreadID: threadID}
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", threadID, err)
	}
	defer closer.Close()

	var conv domain.Conversation
	if err := json.Unmarshal(v, &conv); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", threadID, err)
	}
	return &conv, nil
}

func (p *PebbleCheckpointer) Load(_ context.Context, threadID string) (*domain.Conversation, error) {
	return p.get(threadID)
}

func (p *PebbleCheckpointer) Save(_ context.Context, conv *domain.Conversation, expectVersion int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	prev, err := p.get(conv.ThreadID)
	switch {
	case domain.IsNotFound(err):
		if expectVersion != 0 {
			return err
		}
	case err != nil:
		return err
	case prev.Version != expectVersion:
		return domain.ErrConflict
	default:
		if err := checkAppendOnly(prev, conv); err != nil {
			return err
		}
	}

	next := conv.Clone()
	next.Version = expectVersion + 1
	next.UpdatedAt = time.Now().UTC()
	if next.CreatedAt.IsZero() {
		next.CreatedAt = next.UpdatedAt
	}
	doc, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", conv.ThreadID, err)
	}
	marker, err := json.Marshal(summarize(next))
	if err != nil {
		return fmt.Errorf("encoding checkpoint marker: %w", err)
	}

	b := p.db.NewBatch()
	defer b.Close()
	if err := b.Set(convKey(conv.ThreadID), doc, nil); err != nil {
		return err
	}
	if err := b.Set(ckptKey(conv.ThreadID, next.Version), marker, nil); err != nil {
		return err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("committing checkpoint for %s: %w", conv.ThreadID, err)
	}

	conv.Version = next.Version
	conv.UpdatedAt = next.UpdatedAt
	conv.CreatedAt = next.CreatedAt
	return nil
}

func (p *PebbleCheckpointer) Delete(_ context.Context, threadID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.deleteLocked(threadID)
}

func (p *PebbleCheckpointer) deleteLocked(threadID string) error {
	if _, err := p.get(threadID); err != nil {
		return err
	}
	b := p.db.NewBatch()
	defer b.Close()
	if err := b.Delete(convKey(threadID), nil); err != nil {
		return err
	}
	start := []byte(ckptPrefix + threadID + ":")
	end := append(bytes.Clone(start[:len(start)-1]), ';')
	if err := b.DeleteRange(start, end, nil); err != nil {
		return err
	}
	return b.Commit(pebble.Sync)
}

// scan calls fn for every stored conversation.
func (p *PebbleCheckpointer) scan(fn func(*domain.Conversation) error) error {
	prefix := []byte(convPrefix)
	it, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: []byte("conv;"),
	})
	if err != nil {
		return err
	}
	defer it.Close()
	for ok := it.First(); ok; ok = it.Next() {
		var conv domain.Conversation
		if err := json.Unmarshal(it.Value(), &conv); err != nil {
			return fmt.Errorf("decoding %s: %w", it.Key(), err)
		}
		if err := fn(&conv); err != nil {
			return err
		}
	}
	return it.Error()
}

func (p *PebbleCheckpointer) List(_ context.Context, opts ListOptions) ([]Summary, error) {
	var out []Summary
	err := p.scan(func(c *domain.Conversation) error {
		if opts.Status == "" || c.Status == opts.Status {
			out = append(out, summarize(c))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (p *PebbleCheckpointer) PurgeTerminal(_ context.Context, cutoff time.Time) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var expired []string
	err := p.scan(func(c *domain.Conversation) error {
		if c.Status == domain.StatusTerminal && c.UpdatedAt.Before(cutoff) {
			expired = append(expired, c.ThreadID)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for i, id := range expired {
		if err := p.deleteLocked(id); err != nil {
			return i, err
		}
	}
	return len(expired), nil
}

// History returns the recorded checkpoint versions for a thread, oldest first.
func (p *PebbleCheckpointer) History(_ context.Context, threadID string) ([]int64, error) {
	prefix := []byte(ckptPrefix + threadID + ":")
	it, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: append(bytes.Clone(prefix[:len(prefix)-1]), ';'),
	})
	if err != nil {
		return nil, err
	}
	defer it.Close()
	var out []int64
	for ok := it.First(); ok; ok = it.Next() {
		var sum Summary
		if err := json.Unmarshal(it.Value(), &sum); err != nil {
			return nil, err
		}
		out = append(out, sum.Version)
	}
	return out, it.Error()
}

func (p *PebbleCheckpointer) Close() error {
	p.log.Info().Msg("closing pebble store")
	return p.db.Close()
}
