// Package retention purges finished conversations on a cron schedule.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"github.com/soyeahso/leadreach/internal/config"
	"github.com/soyeahso/leadreach/internal/logging"
)

const defaultCron = "0 2 * * *"

// Purger is the part of the checkpointer retention needs.
type Purger interface {
	PurgeTerminal(ctx context.Context, cutoff time.Time) (int, error)
}

// Manager runs purges of terminal conversations older than MaxAge.
type Manager struct {
	cron   string
	maxAge time.Duration
	store  Purger
	log    *logging.Logger
	now    func() time.Time
}

// New validates the schedule and returns a Manager.
func New(cfg config.RetentionConfig, p Purger, log *logging.Logger) (*Manager, error) {
	cronExpr := cfg.Cron
	if cronExpr == "" {
		cronExpr = defaultCron
	}
	if !gronx.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid retention cron expression: %s", cfg.Cron)
	}
	if cfg.MaxAgeDays < 1 {
		return nil, fmt.Errorf("retention maxAgeDays must be at least 1, got %d", cfg.MaxAgeDays)
	}
	return &Manager{
		cron:   cronExpr,
		maxAge: time.Duration(cfg.MaxAgeDays) * 24 * time.Hour,
		store:  p,
		log:    log.Sub("retention"),
		now:    time.Now,
	}, nil
}

// Start launches the scheduler when retention is enabled. The returned
// cancel func stops it.
func Start(ctx context.Context, cfg config.RetentionConfig, p Purger, log *logging.Logger) (context.CancelFunc, error) {
	if !cfg.Enabled {
		log.Sub("retention").Info().Msg("retention disabled")
		return func() {}, nil
	}
	m, err := New(cfg, p, log)
	if err != nil {
		return nil, err
	}
	ctx2, cancel := context.WithCancel(ctx)
	go m.run(ctx2)
	m.log.Info().Str("cron", m.cron).Dur("maxAge", m.maxAge).Msg("retention scheduler started")
	return cancel, nil
}

// RunOnce deletes terminal conversations last updated before now-MaxAge.
func (m *Manager) RunOnce(ctx context.Context) (int, error) {
	cutoff := m.now().UTC().Add(-m.maxAge)
	n, err := m.store.PurgeTerminal(ctx, cutoff)
	if err != nil {
		return n, fmt.Errorf("purging conversations before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	m.log.Info().Int("purged", n).Time("cutoff", cutoff).Msg("retention run finished")
	return n, nil
}

// NextRun returns the next scheduled tick after t.
func (m *Manager) NextRun(t time.Time) (time.Time, error) {
	return gronx.NextTickAfter(m.cron, t, false)
}

func (m *Manager) run(ctx context.Context) {
	for {
		next, err := m.NextRun(m.now().UTC())
		if err != nil {
			m.log.Error().Err(err).Str("cron", m.cron).Msg("computing next retention tick")
			select {
			case <-time.After(30 * time.Second):
				continue
			case <-ctx.Done():
				m.log.Info().Msg("retention scheduler stopping")
				return
			}
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-timer.C:
			if _, err := m.RunOnce(ctx); err != nil {
				m.log.Error().Err(err).Msg("retention run failed")
			}
		case <-ctx.Done():
			timer.Stop()
			m.log.Info().Msg("retention scheduler stopping")
			return
		}
	}
}
