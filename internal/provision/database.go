package provision

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"three-tier-lab/internal/runner"
	"three-tier-lab/internal/topology"

	"github.com/jackc/pgx/v5/pgconn"
)

// invalid_password
const pgInvalidPassword = "28P01"

const (
	stepPostgresInstalled = "install postgresql"
	stepLocateCluster     = "locate postgresql cluster"
	stepListenAll         = "listen on all interfaces"
	stepAllowSubnet       = "allow lab subnet"
	stepRestartPostgres   = "restart postgresql"
	stepCreateRole        = "create application role"
	stepCreateDatabase    = "create application database"
	stepGrantDatabase     = "grant database privileges"
	stepRolePassword      = "set role password"
	stepMigrate           = "apply schema migrations"
)

var listenRe = regexp.MustCompile(`^\s*#?\s*listen_addresses\s*=`)

// psql runs script as the postgres superuser over the local socket. The
// script travels on stdin so secrets never reach the process table.
func psql(ctx context.Context, r runner.Runner, script string) (string, error) {
	res, err := r.Run(ctx, runner.Command{
		Args:  []string{"runuser", "-u", "postgres", "--", "psql", "-v", "ON_ERROR_STOP=1", "-X", "-q", "-tA", "-f", "-"},
		Stdin: []byte(script),
		Sudo:  true,
	})
	return strings.TrimSpace(res.Stdout), err
}

func sqlLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func sqlIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// sqlCheck converges when query prints want.
func sqlCheck(query, want string) func(context.Context, runner.Runner) (bool, error) {
	return func(ctx context.Context, r runner.Runner) (bool, error) {
		out, err := psql(ctx, r, query)
		if err != nil {
			return false, err
		}
		return out == want, nil
	}
}

func sqlApply(script string) func(context.Context, runner.Runner) error {
	return func(ctx context.Context, r runner.Runner) error {
		_, err := psql(ctx, r, script)
		return err
	}
}

// DBPlan installs PostgreSQL, opens it to the lab subnet, and creates the
// application role, database and schema.
func DBPlan(topo *topology.Topology, opts Options) (Plan, error) {
	if opts.Password == "" {
		return Plan{}, ErrNoPassword
	}
	log := opts.logger()
	db := topo.Database
	role, dbname := sqlIdent(db.User), sqlIdent(db.Name)

	// 由 locate 步驟填入，例如 /etc/postgresql/14/main
	var confDir string
	confFile := func() string { return path.Join(confDir, "postgresql.conf") }
	hbaFile := func() string { return path.Join(confDir, "pg_hba.conf") }

	dsn := topo.DatabaseURL(opts.Password, opts.DBHost)

	steps := []Step{
		Packages(stepPostgresInstalled, "postgresql", "postgresql-contrib"),
		{
			Name: stepLocateCluster,
			Apply: func(ctx context.Context, r runner.Runner) error {
				res, err := r.Run(ctx, runner.Command{
					Args: []string{"sh", "-c", "ls -d /etc/postgresql/*/main | sort -V | tail -n 1"},
				})
				if err != nil {
					return err
				}
				confDir = strings.TrimSpace(res.Stdout)
				if confDir == "" {
					return fmt.Errorf("no cluster under /etc/postgresql")
				}
				return nil
			},
		},
		SetLine(stepListenAll, confFile, listenRe, "listen_addresses = '*'", 0o644),
		LineInFile(stepAllowSubnet, hbaFile,
			fmt.Sprintf("host    all    all    %s    scram-sha-256", topo.Network.Subnet), 0o640),
		Handler(stepRestartPostgres, []string{stepListenAll, stepAllowSubnet}, "systemctl", "restart", "postgresql"),
		ServiceEnabled("postgresql"),
		ServiceRunning("postgresql"),
		Gate("wait for postgresql port", tcpProbe(topo.DatabaseAddr()), opts.Policy, log),
		{
			Name:  stepCreateRole,
			Check: sqlCheck(fmt.Sprintf("SELECT count(*) FROM pg_roles WHERE rolname = %s;", sqlLiteral(db.User)), "1"),
			Apply: sqlApply(fmt.Sprintf("CREATE ROLE %s LOGIN PASSWORD %s;", role, sqlLiteral(opts.Password))),
		},
		{
			Name:  stepCreateDatabase,
			Check: sqlCheck(fmt.Sprintf("SELECT count(*) FROM pg_database WHERE datname = %s;", sqlLiteral(db.Name)), "1"),
			Apply: sqlApply(fmt.Sprintf("CREATE DATABASE %s OWNER %s;", dbname, role)),
		},
		{
			Name: stepGrantDatabase,
			Check: sqlCheck(fmt.Sprintf("SELECT has_database_privilege(%s, %s, 'CREATE, CONNECT, TEMPORARY');",
				sqlLiteral(db.User), sqlLiteral(db.Name)), "t"),
			Apply: sqlApply(fmt.Sprintf("GRANT ALL PRIVILEGES ON DATABASE %s TO %s;", dbname, role)),
		},
		{
			// 以實際登入驗證密碼；只有密碼錯誤才重設
			Name: stepRolePassword,
			Check: func(ctx context.Context, _ runner.Runner) (bool, error) {
				attempt := ctx
				if opts.Policy.AttemptTimeout > 0 {
					var cancel context.CancelFunc
					attempt, cancel = context.WithTimeout(ctx, opts.Policy.AttemptTimeout)
					defer cancel()
				}
				err := pgProbe(dsn)(attempt)
				var pgErr *pgconn.PgError
				if errors.As(err, &pgErr) && pgErr.Code == pgInvalidPassword {
					return false, nil
				}
				return err == nil, err
			},
			Apply: sqlApply(fmt.Sprintf("ALTER ROLE %s WITH LOGIN PASSWORD %s;", role, sqlLiteral(opts.Password))),
		},
		Gate("wait for application login", pgProbe(dsn), opts.Policy, log),
		{
			Name: stepMigrate,
			Check: func(ctx context.Context, _ runner.Runner) (bool, error) {
				return migrationsCurrent(dsn)
			},
			Apply: func(ctx context.Context, _ runner.Runner) error {
				return runMigrations(dsn)
			},
		},
	}
	return Plan{Role: topology.RoleDB, Steps: steps}, nil
}
