package provision

import (
	"errors"
	"net"
	"path"
	"strconv"

	"three-tier-lab/internal/config"
	"three-tier-lab/internal/render"
	"three-tier-lab/internal/topology"
)

const (
	ServiceName = "labapi"
	EnvFilePath = "/etc/labapi/labapi.env"
	UnitPath    = "/etc/systemd/system/labapi.service"

	stepServiceUser   = "create service account"
	stepAppDir        = "create application directory"
	stepBinary        = "install application binary"
	stepEnvDir        = "create config directory"
	stepEnvFile       = "write environment file"
	stepUnit          = "write systemd unit"
	stepDaemonReload  = "reload systemd"
	stepRestartApp    = "restart labapi"
	defaultAppEnv     = "production"
	defaultAppLogLvl  = "info"
	shutdownGraceSecs = 10
)

// AppPlan installs the API binary as a supervised service pointed at the
// database machine.
func AppPlan(topo *topology.Topology, opts Options) (Plan, error) {
	if opts.Password == "" {
		return Plan{}, ErrNoPassword
	}
	if len(opts.Binary) == 0 {
		return Plan{}, errors.New("application binary is required")
	}
	log := opts.logger()
	app := topo.App
	binPath := path.Join(app.Dir, "labctl")

	appEnv, level := opts.AppEnv, opts.LogLevel
	if appEnv == "" {
		appEnv = defaultAppEnv
	}
	if level == "" {
		level = defaultAppLogLvl
	}
	// 服務啟動時 config.Load 會拒絕這些值，提早失敗
	if err := config.CheckAppEnv(appEnv); err != nil {
		return Plan{}, err
	}
	if err := config.CheckLogLevel(level); err != nil {
		return Plan{}, err
	}
	env := render.EnvFile(map[string]string{
		"DATABASE_URL":     topo.DatabaseURL(opts.Password, ""),
		"APP_ADDR":         net.JoinHostPort("0.0.0.0", strconv.Itoa(app.Port)),
		"APP_WORKERS":      strconv.Itoa(app.Workers),
		"APP_ENV":          appEnv,
		"LOG_LEVEL":        level,
		"SHUTDOWN_TIMEOUT": strconv.Itoa(shutdownGraceSecs) + "s",
	})
	unit, err := render.SystemdUnit(render.Unit{
		Description: "Three tier lab API",
		User:        app.User,
		Dir:         app.Dir,
		EnvFile:     EnvFilePath,
		Binary:      binPath,
	})
	if err != nil {
		return Plan{}, err
	}

	steps := []Step{
		SystemUser(stepServiceUser, app.User, app.Dir),
		Directory(stepAppDir, app.Dir, app.User, 0o755),
		Binary(stepBinary, binPath, opts.Binary),
		Directory(stepEnvDir, path.Dir(EnvFilePath), "root", 0o755),
		File(stepEnvFile, fixed(EnvFilePath), env, 0o600),
		File(stepUnit, fixed(UnitPath), unit, 0o644),
		Handler(stepDaemonReload, []string{stepUnit}, "systemctl", "daemon-reload"),
		Gate("wait for database port", tcpProbe(topo.DatabaseAddr()), opts.Policy, log),
		ServiceEnabled(ServiceName),
		ServiceRunning(ServiceName),
		Handler(stepRestartApp, []string{stepBinary, stepEnvFile, stepUnit}, "systemctl", "restart", ServiceName),
		Gate("wait for api health", httpProbe(topo.AppURL()+"/health", 200), opts.Policy, log),
	}
	return Plan{Role: topology.RoleApp, Steps: steps}, nil
}

func fixed(p string) func() string {
	return func() string { return p }
}
