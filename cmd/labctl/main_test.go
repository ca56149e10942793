package main

import (
	"bytes"
	"context"
	"io/fs"
	"os/signal"
	"strings"
	"testing"

	"three-tier-lab/internal/cache"
	"three-tier-lab/internal/config"
	"three-tier-lab/internal/database"
	"three-tier-lab/internal/provision"
	"three-tier-lab/internal/readiness"
	"three-tier-lab/internal/runner"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

func restoreGlobals() {
	exitFunc = func(code int) {}
	loadDotEnv = func() error { return nil }
	loadConfig = config.Load
	newPgxPool = database.NewPgxPool
	newRedisClient = cache.NewRedisClient
	startServer = func(e *echo.Echo, addr string) error { return e.Start(addr) }
	notifyContext = signal.NotifyContext
	newLocalRunner = func() runner.Runner { return runner.NewLocal() }
	dialSSH = func(cfg runner.SSHConfig) (closingRunner, error) { return runner.DialSSH(cfg) }
	converge = provision.Converge
	tcpProbe = readiness.TCP
	httpProbe = readiness.HTTP
	runMigrations = database.RunMigrations
	rollbackAll = database.RollbackAll
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

// nopRunner satisfies runner.Runner for commands whose converge is stubbed.
type nopRunner struct {
	host   string
	closed bool
}

func (n *nopRunner) Run(context.Context, runner.Command) (runner.Result, error) { return runner.Result{}, nil }
func (n *nopRunner) ReadFile(context.Context, string) ([]byte, error)          { return nil, fs.ErrNotExist }
func (n *nopRunner) WriteFile(context.Context, string, []byte, fs.FileMode) error {
	return nil
}
func (n *nopRunner) Host() string { return n.host }
func (n *nopRunner) Close() error { n.closed = true; return nil }

func TestVersion(t *testing.T) {
	t.Cleanup(restoreGlobals)
	out, err := runCmd(t, "version")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "labctl "))
	require.Contains(t, out, version.String())
}

func TestExecute(t *testing.T) {
	t.Cleanup(restoreGlobals)
	require.Equal(t, 0, execute([]string{"version"}))
	require.Equal(t, 1, execute([]string{"no-such-command"}))
}

func TestMainExit(t *testing.T) {
	t.Cleanup(restoreGlobals)
	exitCode := 0
	exitFunc = func(code int) { exitCode = code }
	loadConfig = func() (*config.Config, error) { return nil, errExample }

	oldArgs := osArgs
	t.Cleanup(func() { osArgs = oldArgs })
	osArgs = []string{"labctl", "serve"}
	main()
	require.Equal(t, 1, exitCode)
}
