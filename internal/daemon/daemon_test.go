// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/e2epg/internal/config"
	"github.com/ManuGH/e2epg/internal/jobs"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("OK"))
})

func waitForAddr(t *testing.T, m Manager) net.Addr {
	t.Helper()
	var addr net.Addr
	require.Eventually(t, func() bool {
		addr = m.Addr()
		return addr != nil
	}, 5*time.Second, 10*time.Millisecond)
	return addr
}

func TestNewManagerRequiresHandler(t *testing.T) {
	_, err := NewManager(DefaultServerConfig("127.0.0.1:0"), nil)
	assert.ErrorIs(t, err, ErrMissingHandler)
}

func TestManagerServesUntilCancelled(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mgr, err := NewManager(DefaultServerConfig("127.0.0.1:0"), okHandler)
	require.NoError(t, err)

	var hookCalls []string
	var mu sync.Mutex
	for _, name := range []string{"first", "second"} {
		name := name
		mgr.RegisterShutdownHook(name, func(context.Context) error {
			mu.Lock()
			hookCalls = append(hookCalls, name)
			mu.Unlock()
			return nil
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mgr.Start(ctx) }()

	addr := waitForAddr(t, mgr)
	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + addr.String() + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "OK", string(body))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancellation")
	}
	assert.Equal(t, []string{"second", "first"}, hookCalls)
}

func TestManagerListenFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()

	mgr, err := NewManager(DefaultServerConfig(ln.Addr().String()), okHandler)
	require.NoError(t, err)
	err = mgr.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen")
}

func TestManagerShutdownBeforeStart(t *testing.T) {
	mgr, err := NewManager(DefaultServerConfig("127.0.0.1:0"), okHandler)
	require.NoError(t, err)
	assert.ErrorIs(t, mgr.Shutdown(context.Background()), ErrManagerNotStarted)
}

func TestManagerReportsHookErrors(t *testing.T) {
	mgr, err := NewManager(DefaultServerConfig("127.0.0.1:0"), okHandler)
	require.NoError(t, err)
	mgr.RegisterShutdownHook("broken", func(context.Context) error { return errors.New("close failed") })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mgr.Start(ctx) }()
	waitForAddr(t, mgr)
	cancel()

	err = <-done
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hook broken")
}

type idleExecutor struct{}

func (idleExecutor) Execute(ctx context.Context, _ jobs.Kind) (jobs.Summary, error) {
	<-ctx.Done()
	return jobs.Summary{}, ctx.Err()
}

func TestAppRequiresManager(t *testing.T) {
	assert.ErrorIs(t, NewApp(nil, nil, nil, nil).Run(context.Background()), ErrMissingManager)
}

func TestAppCancelsActiveRunOnShutdown(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mgr, err := NewManager(DefaultServerConfig("127.0.0.1:0"), okHandler)
	require.NoError(t, err)
	runner := jobs.NewRunner(idleExecutor{}, nil)

	app := NewApp(mgr, nil, runner, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()
	waitForAddr(t, mgr)

	run, err := runner.Trigger(jobs.KindImport)
	require.NoError(t, err)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}
	got, ok := runner.Status(run.ID)
	require.True(t, ok)
	assert.Equal(t, jobs.StateFailed, got.State)
}

func TestAppReloadsOnSignal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dataDir: "+dir+"\nlogLevel: info\n"), 0o600))

	loader := config.NewLoader(path, "test")
	initial, err := loader.Load()
	require.NoError(t, err)
	holder := config.NewConfigHolder(initial, loader)

	mgr, err := NewManager(DefaultServerConfig("127.0.0.1:0"), okHandler)
	require.NoError(t, err)
	app := NewApp(mgr, holder, nil, nil)
	app.reloadSignal = syscall.SIGUSR1

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()
	waitForAddr(t, mgr)

	require.NoError(t, os.WriteFile(path, []byte("dataDir: "+dir+"\nlogLevel: debug\n"), 0o600))
	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR1))
	assert.Eventually(t, func() bool { return holder.Get().LogLevel == "debug" }, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
