// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package jobs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/e2epg/internal/config"
)

func autoConfig(enabled bool) func() config.Config {
	return func() config.Config {
		cfg := config.Default()
		cfg.Import.AutoUpdate = enabled
		return cfg
	}
}

func newAutoUpdater(t *testing.T, exec Executor, enabled bool) (*AutoUpdater, *Runner, *StateFile) {
	t.Helper()
	state := NewStateFile(filepath.Join(t.TempDir(), "state.json"))
	runner := NewRunner(exec, nil)
	t.Cleanup(func() { closeRunner(t, runner) })
	a := NewAutoUpdater(runner, state, autoConfig(enabled))
	a.clock = func() time.Time { return testNow }
	return a, runner, state
}

func TestAutoUpdateDisabled(t *testing.T) {
	exec := newBlockingExecutor()
	a, _, _ := newAutoUpdater(t, exec, false)
	assert.False(t, a.Check())
	assert.Zero(t, exec.calls.Load())
}

func TestAutoUpdateTriggersWhenNeverImported(t *testing.T) {
	exec := newBlockingExecutor()
	a, runner, _ := newAutoUpdater(t, exec, true)

	require.True(t, a.Check())
	assert.Equal(t, KindImport, <-exec.started)
	active, ok := runner.Active()
	require.True(t, ok)
	assert.Equal(t, KindImport, active.Kind)

	assert.False(t, a.Check(), "a running import blocks the next trigger")
	close(exec.release)
}

func TestAutoUpdateRespectsMaxAge(t *testing.T) {
	exec := newBlockingExecutor()
	a, _, state := newAutoUpdater(t, exec, true)

	require.NoError(t, state.Update(func(st *PersistedState) { st.LastImport = testNow.Add(-2 * time.Hour) }))
	assert.False(t, a.Check())

	require.NoError(t, state.Update(func(st *PersistedState) { st.LastImport = testNow.Add(-25 * time.Hour) }))
	assert.True(t, a.Check())
	<-exec.started
	close(exec.release)
}

func TestAutoUpdateRunStopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	a, _, _ := newAutoUpdater(t, newBlockingExecutor(), false)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("auto-updater did not stop")
	}
}

func TestStateFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	f := NewStateFile(path)

	st, err := f.Load()
	require.NoError(t, err)
	assert.True(t, st.LastImport.IsZero())

	require.NoError(t, f.Update(func(st *PersistedState) {
		st.LastImport = testNow
		st.LastImportEvents = 42
	}))
	require.NoError(t, f.Update(func(st *PersistedState) { st.LastMap = testNow.Add(time.Minute) }))

	st, err = f.Load()
	require.NoError(t, err)
	assert.True(t, st.LastImport.Equal(testNow))
	assert.Equal(t, 42, st.LastImportEvents)
	assert.True(t, st.LastMap.Equal(testNow.Add(time.Minute)))
}

func TestStateFileReplacesCorruptContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	f := NewStateFile(path)

	_, err := f.Load()
	require.Error(t, err)

	require.NoError(t, f.Update(func(st *PersistedState) { st.LastImport = testNow }))
	st, err := f.Load()
	require.NoError(t, err)
	assert.True(t, st.LastImport.Equal(testNow))
}
