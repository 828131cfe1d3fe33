package main

import (
	"context"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/spf13/afero"

	"github.com/tonimelisma/sharepoint-mirror/internal/config"
	"github.com/tonimelisma/sharepoint-mirror/internal/journal"
	"github.com/tonimelisma/sharepoint-mirror/internal/mirror"
	"github.com/tonimelisma/sharepoint-mirror/internal/siteops"
)

const hoursPerDay = 24

// liveConfig pairs the config Holder with the engine snapshots derived from
// it. update converts first and only swaps when conversion succeeds, so the
// engine never sees a half-applied reload.
type liveConfig struct {
	holder *config.Holder

	mu      gosync.RWMutex
	syncCfg mirror.SyncConfig
	timing  mirror.Timing
}

func newLiveConfig(holder *config.Holder) (*liveConfig, error) {
	l := &liveConfig{holder: holder}

	if err := l.update(holder.Config()); err != nil {
		return nil, err
	}

	return l, nil
}

func (l *liveConfig) update(cfg *config.Config) error {
	sc, err := config.ToSyncConfig(cfg)
	if err != nil {
		return err
	}

	timing := config.ToTiming(cfg)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.holder.Update(cfg)
	l.syncCfg = sc
	l.timing = timing

	return nil
}

// SyncConfig returns the snapshot for the next run.
func (l *liveConfig) SyncConfig() mirror.SyncConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.syncCfg
}

// Timing returns the scheduler intervals.
func (l *liveConfig) Timing() mirror.Timing {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.timing
}

// engine is everything a sync command needs, built once per process.
type engine struct {
	live     *liveConfig
	provider *siteops.SessionProvider
	journal  *journal.Journal // nil when the journal is unavailable
	orch     *mirror.Orchestrator
	logger   *slog.Logger
	nowFunc  func() time.Time
}

// newEngine wires the session provider, journal and orchestrator. A journal
// that cannot be opened is logged and skipped: history is for operators and
// never blocks mirroring.
func newEngine(cc *CLIContext) (*engine, error) {
	live, err := newLiveConfig(cc.Holder)
	if err != nil {
		return nil, err
	}

	e := &engine{
		live:     live,
		provider: siteops.NewSessionProvider(cc.Holder, afero.NewOsFs(), "spmirror/"+version, cc.Logger),
		logger:   cc.Logger,
		nowFunc:  time.Now,
	}

	if path := config.JournalPath(cc.Cfg); path != "" {
		j, err := journal.Open(path, cc.Logger)
		if err != nil {
			cc.Logger.Warn("journal unavailable, continuing without run history",
				slog.String("path", path), slog.String("error", err.Error()))
		} else {
			e.journal = j
		}
	}

	ocfg := mirror.OrchestratorConfig{
		Provider: e.provider,
		Config:   live.SyncConfig,
		Logger:   cc.Logger,
	}

	// Assigned only when non-nil: a nil *Journal in the interface would not
	// compare equal to nil.
	if e.journal != nil {
		ocfg.Recorder = e.journal
	}

	e.orch = mirror.NewOrchestrator(ocfg)

	return e, nil
}

// runOnce performs one run and then prunes old journal entries.
func (e *engine) runOnce(ctx context.Context) (*mirror.RunReport, error) {
	report, err := e.orch.Run(ctx)
	e.pruneJournal(ctx)

	return report, err
}

func (e *engine) pruneJournal(ctx context.Context) {
	if e.journal == nil {
		return
	}

	days := e.live.holder.Config().State.JournalRetentionDays
	if days <= 0 {
		return
	}

	cutoff := e.nowFunc().Add(-time.Duration(days) * hoursPerDay * time.Hour)
	if _, err := e.journal.Prune(context.WithoutCancel(ctx), cutoff); err != nil {
		e.logger.Warn("pruning journal failed", slog.String("error", err.Error()))
	}
}

// reload re-resolves the config with the original overrides. On failure the
// current config stays in effect.
func (e *engine) reload(cli config.CLIOverrides) {
	cfg, path, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		e.logger.Error("config reload failed, keeping current config",
			slog.String("path", path), slog.String("error", err.Error()))

		return
	}

	if err := e.live.update(cfg); err != nil {
		e.logger.Error("config reload failed, keeping current config",
			slog.String("path", path), slog.String("error", err.Error()))

		return
	}

	e.logger.Info("config reloaded, applies from the next run", slog.String("path", path))
}

func (e *engine) Close() error {
	if e.journal == nil {
		return nil
	}

	if err := e.journal.Close(); err != nil {
		return fmt.Errorf("closing journal: %w", err)
	}

	return nil
}
