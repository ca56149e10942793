package provision

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"testing"

	"three-tier-lab/internal/database"
	"three-tier-lab/internal/readiness"
	"three-tier-lab/internal/runner"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

// fakeHost simulates just enough of an Ubuntu machine for the plans.
type fakeHost struct {
	files    map[string][]byte
	modes    map[string]fs.FileMode
	links    map[string]string
	pkgs     map[string]bool
	users    map[string]bool
	dirs     map[string]string
	enabled  map[string]bool
	active   map[string]bool
	restarts map[string]int

	roleExists bool
	password   string
	dbExists   bool
	granted    bool

	nginxTestErr bool
	migrations   int
	// loginErr 模擬與密碼無關的登入失敗
	loginErr error
	calls        []runner.Command
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		files:    map[string][]byte{},
		modes:    map[string]fs.FileMode{},
		links:    map[string]string{},
		pkgs:     map[string]bool{},
		users:    map[string]bool{},
		dirs:     map[string]string{},
		enabled:  map[string]bool{},
		active:   map[string]bool{},
		restarts: map[string]int{},
	}
}

func (h *fakeHost) Host() string { return "fake" }

func fail(cmd runner.Command) (runner.Result, error) {
	return runner.Result{ExitCode: 1}, &runner.ExitError{Cmd: cmd.String(), Code: 1}
}

func (h *fakeHost) Run(_ context.Context, cmd runner.Command) (runner.Result, error) {
	h.calls = append(h.calls, cmd)
	a := cmd.Args
	last := a[len(a)-1]
	switch a[0] {
	case "dpkg-query":
		if h.pkgs[last] {
			return runner.Result{Stdout: "install ok installed"}, nil
		}
		return fail(cmd)
	case "apt-get":
		if a[1] != "install" {
			return runner.Result{}, nil
		}
		for _, p := range a[3:] {
			h.pkgs[p] = true
			switch p {
			case "postgresql":
				h.files["/etc/postgresql/14/main/postgresql.conf"] = []byte("data_directory = '/var/lib/postgresql/14/main'\n#listen_addresses = 'localhost'\t\t# what IP address(es) to listen on;\nport = 5432\n")
				h.files["/etc/postgresql/14/main/pg_hba.conf"] = []byte("local   all   postgres   peer\nhost    all   all   127.0.0.1/32   scram-sha-256\n")
				h.active["postgresql"] = true
			case "nginx":
				h.links[defaultSite] = "/etc/nginx/sites-available/default"
				h.active["nginx"] = true
			}
		}
		return runner.Result{}, nil
	case "sh":
		if h.pkgs["postgresql"] {
			return runner.Result{Stdout: "/etc/postgresql/14/main\n"}, nil
		}
		return runner.Result{}, nil
	case "sha256sum":
		data, ok := h.files[last]
		if !ok {
			return fail(cmd)
		}
		sum := sha256.Sum256(data)
		return runner.Result{Stdout: hex.EncodeToString(sum[:]) + "  " + last + "\n"}, nil
	case "test":
		if _, ok := h.files[a[2]]; ok {
			return runner.Result{}, nil
		}
		if _, ok := h.links[a[2]]; ok {
			return runner.Result{}, nil
		}
		return fail(cmd)
	case "rm":
		delete(h.files, last)
		delete(h.links, last)
		return runner.Result{}, nil
	case "readlink":
		if t, ok := h.links[last]; ok {
			return runner.Result{Stdout: t + "\n"}, nil
		}
		return fail(cmd)
	case "ln":
		h.links[a[3]] = a[2]
		return runner.Result{}, nil
	case "id":
		if h.users[last] {
			return runner.Result{Stdout: "998\n"}, nil
		}
		return fail(cmd)
	case "useradd":
		h.users[last] = true
		return runner.Result{}, nil
	case "stat":
		if d, ok := h.dirs[last]; ok {
			return runner.Result{Stdout: d + "\n"}, nil
		}
		return fail(cmd)
	case "install":
		// install -d -o OWNER -g OWNER -m MODE PATH
		h.dirs[last] = a[3] + " " + a[7]
		return runner.Result{}, nil
	case "nginx":
		if h.nginxTestErr {
			return fail(cmd)
		}
		return runner.Result{}, nil
	case "systemctl":
		return h.systemctl(cmd)
	case "runuser":
		return h.psql(cmd)
	}
	return runner.Result{}, fmt.Errorf("fake host: unexpected command %q", cmd.String())
}

func (h *fakeHost) systemctl(cmd runner.Command) (runner.Result, error) {
	a := cmd.Args
	unit := a[len(a)-1]
	switch a[1] {
	case "is-enabled":
		if h.enabled[unit] {
			return runner.Result{Stdout: "enabled\n"}, nil
		}
		return runner.Result{Stdout: "disabled\n", ExitCode: 1}, &runner.ExitError{Cmd: cmd.String(), Code: 1}
	case "enable":
		h.enabled[unit] = true
	case "is-active":
		if !h.active[unit] {
			return fail(cmd)
		}
	case "start":
		h.active[unit] = true
	case "restart":
		h.active[unit] = true
		h.restarts[unit]++
	case "daemon-reload":
		h.restarts["daemon-reload"]++
	}
	return runner.Result{}, nil
}

func (h *fakeHost) psql(cmd runner.Command) (runner.Result, error) {
	sql := string(cmd.Stdin)
	boolOut := func(b bool, yes, no string) (runner.Result, error) {
		if b {
			return runner.Result{Stdout: yes + "\n"}, nil
		}
		return runner.Result{Stdout: no + "\n"}, nil
	}
	switch {
	case strings.Contains(sql, "FROM pg_roles"):
		return boolOut(h.roleExists, "1", "0")
	case strings.Contains(sql, "FROM pg_database"):
		return boolOut(h.dbExists, "1", "0")
	case strings.HasPrefix(sql, "SELECT has_database_privilege"):
		return boolOut(h.granted, "t", "f")
	case strings.HasPrefix(sql, "CREATE ROLE"), strings.HasPrefix(sql, "ALTER ROLE"):
		h.roleExists = true
		i := strings.Index(sql, "PASSWORD '")
		h.password = strings.ReplaceAll(strings.TrimSuffix(sql[i+len("PASSWORD '"):], "';"), "''", "'")
	case strings.HasPrefix(sql, "CREATE DATABASE"):
		h.dbExists = true
	case strings.HasPrefix(sql, "GRANT"):
		h.granted = true
	default:
		return runner.Result{}, fmt.Errorf("fake psql: unexpected %q", sql)
	}
	return runner.Result{}, nil
}

func (h *fakeHost) ReadFile(_ context.Context, path string) ([]byte, error) {
	data, ok := h.files[path]
	if !ok {
		return nil, &fs.PathError{Op: "read", Path: path, Err: fs.ErrNotExist}
	}
	return data, nil
}

func (h *fakeHost) WriteFile(_ context.Context, path string, data []byte, mode fs.FileMode) error {
	h.files[path] = append([]byte(nil), data...)
	h.modes[path] = mode
	return nil
}

// ran reports how many recorded commands start with prefix.
func (h *fakeHost) ran(prefix string) int {
	n := 0
	for _, c := range h.calls {
		if strings.HasPrefix(c.String(), prefix) {
			n++
		}
	}
	return n
}

// probes replaces the network probes with ones backed by h, and records
// what each gate waited on.
func (h *fakeHost) probes(t *testing.T) *[]string {
	t.Helper()
	var waited []string
	t.Cleanup(func() {
		waitFor = readiness.Wait
		runMigrations = realMigrations
		migrationsCurrent = database.MigrationsCurrent
		tcpProbe = readiness.TCP
		httpProbe = readiness.HTTP
		pgProbe = readiness.Postgres
	})
	waitFor = func(ctx context.Context, name string, probe readiness.Probe, _ readiness.Policy, _ logrus.FieldLogger) error {
		return probe(ctx)
	}
	runMigrations = func(string) error {
		h.migrations++
		return nil
	}
	migrationsCurrent = func(string) (bool, error) {
		return h.migrations > 0, nil
	}
	tcpProbe = func(addr string) readiness.Probe {
		return func(context.Context) error {
			waited = append(waited, "tcp "+addr)
			return nil
		}
	}
	httpProbe = func(u string, want int) readiness.Probe {
		return func(context.Context) error {
			waited = append(waited, "http "+u)
			return nil
		}
	}
	pgProbe = func(dsn string) readiness.Probe {
		return func(context.Context) error {
			u, err := url.Parse(dsn)
			if err != nil {
				return err
			}
			pw, _ := u.User.Password()
			if h.loginErr != nil {
				return h.loginErr
			}
			if !h.roleExists || pw != h.password {
				return fmt.Errorf("failed to connect: %w", &pgconn.PgError{
					Severity: "FATAL",
					Code:     pgInvalidPassword,
					Message:  "password authentication failed for user",
				})
			}
			return nil
		}
	}
	return &waited
}

var realMigrations = runMigrations

func nullLog() logrus.FieldLogger {
	log, _ := test.NewNullLogger()
	return log
}
