package mirror

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	store Store
	err   error
	calls int
}

func (p *fakeProvider) Session(context.Context) (Store, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}

	return p.store, nil
}

type fakeRecorder struct {
	begun    int
	outcomes []*Outcome
	finished *RunReport
	runErr   error
	failAll  bool
}

func (r *fakeRecorder) BeginRun(context.Context, *RunReport) (string, error) {
	r.begun++
	if r.failAll {
		return "", errors.New("disk full")
	}

	return "run-1", nil
}

func (r *fakeRecorder) RecordOutcome(_ context.Context, runID string, o *Outcome) error {
	if runID != "run-1" {
		return errors.New("unknown run")
	}

	r.outcomes = append(r.outcomes, o)

	return nil
}

func (r *fakeRecorder) FinishRun(_ context.Context, _ string, report *RunReport, runErr error) error {
	r.finished = report
	r.runErr = runErr

	return nil
}

func TestOrchestrator_Run(t *testing.T) {
	t.Parallel()

	store := walkStore()
	fs := afero.NewMemMapFs()
	rec := &fakeRecorder{}
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	o := NewOrchestrator(OrchestratorConfig{
		Provider: &fakeProvider{store: store},
		Config:   func() SyncConfig { return *walkConfig() },
		Fs:       fs,
		Recorder: rec,
		Clock:    clock,
		Logger:   testLogger(t),
	})

	report, err := o.Run(t.Context())
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.Equal(t, clock.Now(), report.StartedAt)
	assert.Equal(t, 4, report.Succeeded)
	assert.Equal(t, 4, report.Moved)

	for _, p := range []string{"/m/x_top.txt", "/m/A/x_a.txt", "/m/A/B/x_b.txt", "/m/C/x_c.txt"} {
		ok, statErr := afero.Exists(fs, p)
		require.NoError(t, statErr)
		assert.True(t, ok, p)
	}

	assert.Contains(t, store.files, testRoot+"/A/B/done/x_b.txt")
	assert.Contains(t, store.files, testRoot+"/skip.txt", "unmatched file is not touched")

	assert.Equal(t, 1, rec.begun)
	assert.Len(t, rec.outcomes, 4)
	assert.Same(t, report, rec.finished)
	assert.NoError(t, rec.runErr)
}

func TestOrchestrator_SecondRunFindsNothingToDo(t *testing.T) {
	t.Parallel()

	store := walkStore()
	o := NewOrchestrator(OrchestratorConfig{
		Provider: &fakeProvider{store: store},
		Config:   func() SyncConfig { return *walkConfig() },
		Fs:       afero.NewMemMapFs(),
		Logger:   testLogger(t),
	})

	_, err := o.Run(t.Context())
	require.NoError(t, err)

	report, err := o.Run(t.Context())
	require.NoError(t, err)
	assert.Zero(t, report.Files, "moved files live in excluded folders")
}

func TestOrchestrator_SessionFailureIsAuthError(t *testing.T) {
	t.Parallel()

	errToken := errors.New("invalid_client")
	rec := &fakeRecorder{}

	o := NewOrchestrator(OrchestratorConfig{
		Provider: &fakeProvider{err: errToken},
		Config:   func() SyncConfig { return *walkConfig() },
		Fs:       afero.NewMemMapFs(),
		Recorder: rec,
		Logger:   testLogger(t),
	})

	report, err := o.Run(t.Context())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuth)
	assert.ErrorIs(t, err, errToken)
	assert.NotNil(t, report)
	assert.ErrorIs(t, rec.runErr, ErrAuth)
}

func TestOrchestrator_RecorderFailureDoesNotFailRun(t *testing.T) {
	t.Parallel()

	rec := &fakeRecorder{failAll: true}

	o := NewOrchestrator(OrchestratorConfig{
		Provider: &fakeProvider{store: walkStore()},
		Config:   func() SyncConfig { return *walkConfig() },
		Fs:       afero.NewMemMapFs(),
		Recorder: rec,
		Logger:   testLogger(t),
	})

	report, err := o.Run(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 4, report.Files)
	assert.Empty(t, rec.outcomes)
	assert.Nil(t, rec.finished)
}

func TestOrchestrator_ConfigSnapshotPerRun(t *testing.T) {
	t.Parallel()

	store := walkStore()
	prefix := "x_a"
	calls := 0

	o := NewOrchestrator(OrchestratorConfig{
		Provider: &fakeProvider{store: store},
		Config: func() SyncConfig {
			calls++
			cfg := *walkConfig()
			cfg.FilePrefix = prefix
			cfg.Action = ActionNone

			return cfg
		},
		Fs:     afero.NewMemMapFs(),
		Logger: testLogger(t),
	})

	report, err := o.Run(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Files)

	prefix = "x_"

	report, err = o.Run(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 4, report.Files)
	assert.Equal(t, 2, calls)
}

func TestOrchestrator_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	o := NewOrchestrator(OrchestratorConfig{
		Provider: &fakeProvider{store: walkStore()},
		Config:   func() SyncConfig { return *walkConfig() },
		Fs:       afero.NewMemMapFs(),
		Logger:   testLogger(t),
	})

	_, err := o.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsRunFailure(err))
}
