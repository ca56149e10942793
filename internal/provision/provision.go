package provision

import (
	"errors"
	"fmt"

	"three-tier-lab/internal/database"
	"three-tier-lab/internal/readiness"
	"three-tier-lab/internal/topology"

	"github.com/sirupsen/logrus"
)

var (
	waitFor           = readiness.Wait
	runMigrations     = database.RunMigrations
	migrationsCurrent = database.MigrationsCurrent
	tcpProbe          = readiness.TCP
	httpProbe         = readiness.HTTP
	pgProbe           = readiness.Postgres
)

var ErrNoPassword = errors.New("database password is required (set LAB_DB_PASSWORD)")

// Options carries the per-run inputs that are not part of the topology.
type Options struct {
	// Password for the application database role. Never read from the
	// topology file.
	Password string
	// DBHost overrides the database address used by the provisioner itself,
	// e.g. 127.0.0.1 when running on the database machine.
	DBHost string
	// Binary is the labctl executable installed on the app machine.
	Binary   []byte
	AppEnv   string
	LogLevel string
	Policy   readiness.Policy
	Log      logrus.FieldLogger
}

func (o Options) logger() logrus.FieldLogger {
	if o.Log == nil {
		return logrus.StandardLogger()
	}
	return o.Log
}

// PlanFor builds the convergence plan for role.
func PlanFor(role topology.Role, topo *topology.Topology, opts Options) (Plan, error) {
	switch role {
	case topology.RoleDB:
		return DBPlan(topo, opts)
	case topology.RoleApp:
		return AppPlan(topo, opts)
	case topology.RoleWeb:
		return WebPlan(topo, opts)
	}
	return Plan{}, fmt.Errorf("unknown role %q", role)
}
