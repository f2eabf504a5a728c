package retention

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/leadreach/internal/config"
	"github.com/soyeahso/leadreach/internal/domain"
	"github.com/soyeahso/leadreach/internal/logging"
	"github.com/soyeahso/leadreach/internal/store"
)

func testLogger() *logging.Logger {
	return logging.New(io.Discard, "silent")
}

type fakePurger struct {
	cutoff time.Time
	n      int
	err    error
}

func (f *fakePurger) PurgeTerminal(_ context.Context, cutoff time.Time) (int, error) {
	f.cutoff = cutoff
	return f.n, f.err
}

func TestNew_Validation(t *testing.T) {
	_, err := New(config.RetentionConfig{Cron: "not a cron", MaxAgeDays: 1}, &fakePurger{}, testLogger())
	assert.ErrorContains(t, err, "invalid retention cron")

	_, err = New(config.RetentionConfig{MaxAgeDays: 0}, &fakePurger{}, testLogger())
	assert.ErrorContains(t, err, "maxAgeDays")

	m, err := New(config.RetentionConfig{MaxAgeDays: 7}, &fakePurger{}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, defaultCron, m.cron)
	assert.Equal(t, 7*24*time.Hour, m.maxAge)
}

func TestRunOnce_UsesCutoff(t *testing.T) {
	p := &fakePurger{n: 3}
	m, err := New(config.RetentionConfig{MaxAgeDays: 2}, p, testLogger())
	require.NoError(t, err)
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	n, err := m.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, now.Add(-48*time.Hour), p.cutoff)
}

func TestRunOnce_Error(t *testing.T) {
	m, err := New(config.RetentionConfig{MaxAgeDays: 1}, &fakePurger{err: errors.New("disk full")}, testLogger())
	require.NoError(t, err)
	_, err = m.RunOnce(context.Background())
	assert.ErrorContains(t, err, "disk full")
}

func TestRunOnce_PurgesOnlyOldTerminal(t *testing.T) {
	ctx := context.Background()
	cp := store.NewMemory()

	done := domain.NewConversation("done", "a@acme.org")
	done.Status = domain.StatusTerminal
	require.NoError(t, cp.Save(ctx, done, 0))
	open := domain.NewConversation("open", "b@acme.org")
	open.Status = domain.StatusSuspended
	require.NoError(t, cp.Save(ctx, open, 0))

	m, err := New(config.RetentionConfig{MaxAgeDays: 1}, cp, testLogger())
	require.NoError(t, err)
	m.now = func() time.Time { return time.Now().Add(48 * time.Hour) }

	n, err := m.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = cp.Load(ctx, "done")
	assert.True(t, domain.IsNotFound(err))
	_, err = cp.Load(ctx, "open")
	assert.NoError(t, err)
}

func TestNextRun(t *testing.T) {
	m, err := New(config.RetentionConfig{Cron: "0 2 * * *", MaxAgeDays: 1}, &fakePurger{}, testLogger())
	require.NoError(t, err)

	next, err := m.NextRun(time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 5, 11, 2, 0, 0, 0, time.UTC), next)
}

func TestStart_Disabled(t *testing.T) {
	cancel, err := Start(context.Background(), config.RetentionConfig{}, &fakePurger{}, testLogger())
	require.NoError(t, err)
	cancel()
}

func TestStart_InvalidCron(t *testing.T) {
	_, err := Start(context.Background(), config.RetentionConfig{Enabled: true, Cron: "bogus", MaxAgeDays: 1}, &fakePurger{}, testLogger())
	assert.Error(t, err)
}

func TestStart_StopsOnCancel(t *testing.T) {
	ctx, cancelParent := context.WithCancel(context.Background())
	defer cancelParent()
	cancel, err := Start(ctx, config.RetentionConfig{Enabled: true, Cron: "0 2 * * *", MaxAgeDays: 30}, &fakePurger{}, testLogger())
	require.NoError(t, err)
	cancel()
}
