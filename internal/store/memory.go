package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/soyeahso/leadreach/internal/domain"
)

// Memory is an in-process Checkpointer. State does not survive restarts.
type Memory struct {
	mu    sync.RWMutex
	convs map[string]*domain.Conversation
}

// NewMemory creates an empty in-memory checkpointer.
func NewMemory() *Memory {
	return &Memory{convs: make(map[string]*domain.Conversation)}
}

func (m *Memory) Load(_ context.Context, threadID string) (*domain.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.convs[threadID]
	if !ok {
		return nil, &domain.NotFoundError{ThreadID: threadID}
	}
	return c.Clone(), nil
}

func (m *Memory) Save(_ context.Context, conv *domain.Conversation, expectVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, exists := m.convs[conv.ThreadID]
	switch {
	case !exists && expectVersion != 0:
		return &domain.NotFoundError{ThreadID: conv.ThreadID}
	case exists && prev.Version != expectVersion:
		return domain.ErrConflict
	case exists:
		if err := checkAppendOnly(prev, conv); err != nil {
			return err
		}
	}

	conv.Version = expectVersion + 1
	conv.UpdatedAt = time.Now().UTC()
	m.convs[conv.ThreadID] = conv.Clone()
	return nil
}

func (m *Memory) Delete(_ context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.convs[threadID]; !ok {
		return &domain.NotFoundError{ThreadID: threadID}
	}
	delete(m.convs, threadID)
	return nil
}

func (m *Memory) List(_ context.Context, opts ListOptions) ([]Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Summary, 0, len(m.convs))
	for _, c := range m.convs {
		if opts.Status != "" && c.Status != opts.Status {
			continue
		}
		out = append(out, summarize(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (m *Memory) PurgeTerminal(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, c := range m.convs {
		if c.Status == domain.StatusTerminal && c.UpdatedAt.Before(cutoff) {
			delete(m.convs, id)
			n++
		}
	}
	return n, nil
}

func (m *Memory) Close() error { return nil }
