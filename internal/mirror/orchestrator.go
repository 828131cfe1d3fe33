package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
)

// OrchestratorConfig holds the collaborators of an Orchestrator.
type OrchestratorConfig struct {
	Provider SessionProvider
	// Config returns the SyncConfig for the next run. It is called once at
	// the start of every run, so a reloaded configuration applies from the
	// following run on.
	Config   func() SyncConfig
	Fs       afero.Fs
	Recorder Recorder // optional
	Clock    clockwork.Clock
	Logger   *slog.Logger
}

// Orchestrator performs one complete run: open a session, resolve the
// library root once, and walk it.
type Orchestrator struct {
	provider SessionProvider
	config   func() SyncConfig
	fs       afero.Fs
	recorder Recorder
	clock    clockwork.Clock
	logger   *slog.Logger
}

// NewOrchestrator creates an Orchestrator. A nil Fs uses the OS filesystem
// and a nil Clock the real clock.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	o := &Orchestrator{
		provider: cfg.Provider,
		config:   cfg.Config,
		fs:       cfg.Fs,
		recorder: cfg.Recorder,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
	}

	if o.fs == nil {
		o.fs = afero.NewOsFs()
	}

	if o.clock == nil {
		o.clock = clockwork.NewRealClock()
	}

	if o.logger == nil {
		o.logger = slog.Default()
	}

	return o
}

// Run executes one run and returns its report. The report is never nil, even
// when the run fails partway through.
func (o *Orchestrator) Run(ctx context.Context) (*RunReport, error) {
	cfg := o.config()
	report := &RunReport{StartedAt: o.clock.Now()}

	o.logger.Info("run starting",
		slog.String("library_root", cfg.LibraryRoot),
		slog.String("local_root", cfg.LocalRoot),
		slog.String("action", cfg.Action.String()),
	)

	runID := o.beginRun(ctx, report)

	err := o.run(ctx, &cfg, report, runID)
	report.Duration = o.clock.Since(report.StartedAt)

	o.finishRun(ctx, runID, report, err)

	attrs := []any{
		slog.Int("folders", report.Folders),
		slog.Int("files", report.Files),
		slog.Int("succeeded", report.Succeeded),
		slog.Int("mismatched", report.Mismatched),
		slog.Int("failed", report.Failed),
		slog.Int("moved", report.Moved),
		slog.Int("deleted", report.Deleted),
		slog.Int64("bytes", report.Bytes),
		slog.Duration("duration", report.Duration),
	}

	switch {
	case err == nil:
		o.logger.Info("run complete", attrs...)
	case errors.Is(err, context.Canceled):
		o.logger.Info("run canceled", attrs...)
	default:
		o.logger.Error("run failed", append(attrs, slog.String("error", err.Error()))...)
	}

	return report, err
}

func (o *Orchestrator) run(ctx context.Context, cfg *SyncConfig, report *RunReport, runID string) error {
	store, err := o.provider.Session(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		return fmt.Errorf("%w: %w", ErrAuth, err)
	}

	webRoot, err := store.WebRoot(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		return fmt.Errorf("loading site web root: %w", err)
	}

	rootURL := LibraryRootURL(webRoot, cfg.LibraryRoot)

	o.logger.Debug("resolved library root",
		slog.String("web_root", webRoot),
		slog.String("root", rootURL),
	)

	walker, err := NewWalker(cfg, store, NewFileSync(cfg, store, webRoot, o.fs, o.logger), o.logger)
	if err != nil {
		return err
	}

	return walker.Walk(ctx, rootURL, report, func(out *Outcome) {
		o.recordOutcome(ctx, runID, out)
	})
}

// Journal writes must land even when the run is being canceled, so they use
// a context detached from cancellation.

func (o *Orchestrator) beginRun(ctx context.Context, report *RunReport) string {
	if o.recorder == nil {
		return ""
	}

	runID, err := o.recorder.BeginRun(context.WithoutCancel(ctx), report)
	if err != nil {
		o.logger.Warn("failed to record run start", slog.String("error", err.Error()))
		return ""
	}

	return runID
}

func (o *Orchestrator) recordOutcome(ctx context.Context, runID string, out *Outcome) {
	if o.recorder == nil || runID == "" {
		return
	}

	if err := o.recorder.RecordOutcome(context.WithoutCancel(ctx), runID, out); err != nil {
		o.logger.Warn("failed to record file outcome",
			slog.String("path", out.File.Path),
			slog.String("error", err.Error()),
		)
	}
}

func (o *Orchestrator) finishRun(ctx context.Context, runID string, report *RunReport, runErr error) {
	if o.recorder == nil || runID == "" {
		return
	}

	if err := o.recorder.FinishRun(context.WithoutCancel(ctx), runID, report, runErr); err != nil {
		o.logger.Warn("failed to record run result", slog.String("error", err.Error()))
	}
}
