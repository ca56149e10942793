package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"text/tabwriter"
	"time"

	"three-tier-lab/internal/logger"
	"three-tier-lab/internal/provision"
	"three-tier-lab/internal/readiness"
	"three-tier-lab/internal/runner"
	"three-tier-lab/internal/topology"

	"github.com/spf13/cobra"
)

type closingRunner interface {
	runner.Runner
	Close() error
}

var (
	newLocalRunner = func() runner.Runner { return runner.NewLocal() }
	dialSSH        = func(cfg runner.SSHConfig) (closingRunner, error) { return runner.DialSSH(cfg) }
	converge       = provision.Converge
	readBinary     = func(path string) ([]byte, error) {
		if path == "" {
			exe, err := os.Executable()
			if err != nil {
				return nil, err
			}
			path = exe
		}
		return os.ReadFile(path)
	}
)

type provisionFlags struct {
	topology   string
	binary     string
	logLevel   string
	appEnv     string
	waitFor    time.Duration
	sshHost    string
	sshUser    string
	sshKey     string
	knownHosts string
	insecure   bool
}

func newProvisionCmd() *cobra.Command {
	var f provisionFlags
	cmd := &cobra.Command{
		Use:   "provision <db|app|web|all>",
		Short: "Converge a host to its role (idempotent)",
		Long: `Converge a host to its role. Without --ssh-host the local machine is
provisioned, as Vagrant's shell provisioner does. "all" provisions every
machine of the topology over SSH in dependency order (db, app, web).

The database password is read from LAB_DB_PASSWORD (or .env).`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"db", "app", "web", "all"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProvision(cmd.Context(), cmd.OutOrStdout(), args[0], f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.topology, "topology", "", "topology YAML (default: built-in lab)")
	fl.StringVar(&f.binary, "binary", "", "labctl binary installed on the app host (default: this executable)")
	fl.StringVar(&f.logLevel, "log-level", "info", "log level")
	fl.StringVar(&f.appEnv, "app-env", "production", "APP_ENV written for the API service")
	fl.DurationVar(&f.waitFor, "wait", 2*time.Minute, "how long readiness gates keep retrying")
	fl.StringVar(&f.sshHost, "ssh-host", "", "provision this host:port over SSH instead of locally")
	fl.StringVar(&f.sshUser, "ssh-user", "vagrant", "SSH user (needs passwordless sudo)")
	fl.StringVar(&f.sshKey, "ssh-key", "", "SSH private key file")
	fl.StringVar(&f.knownHosts, "known-hosts", "", "known_hosts file for host key verification")
	fl.BoolVar(&f.insecure, "insecure", false, "skip SSH host key verification (throwaway VMs only)")
	return cmd
}

func runProvision(ctx context.Context, out io.Writer, target string, f provisionFlags) error {
	if f.waitFor <= 0 {
		return fmt.Errorf("--wait must be positive, got %s", f.waitFor)
	}
	_ = loadDotEnv()
	topo, err := loadTopology(f.topology)
	if err != nil {
		return err
	}
	log := logger.New(f.logLevel, "development")

	policy := readiness.DefaultPolicy()
	policy.MaxElapsed = f.waitFor
	opts := provision.Options{
		Password: os.Getenv("LAB_DB_PASSWORD"),
		AppEnv:   f.appEnv,
		LogLevel: f.logLevel,
		Policy:   policy,
		Log:      log,
	}

	if target == "all" {
		if f.sshHost != "" {
			return fmt.Errorf("--ssh-host cannot be combined with all")
		}
		for _, m := range topo.Ordered() {
			host := net.JoinHostPort(m.IP, "22")
			if err := provisionRemote(ctx, out, topo, m.Role, host, f, opts); err != nil {
				return err
			}
		}
		return nil
	}

	role := topology.Role(target)
	if _, ok := topo.Machine(role); !ok {
		return fmt.Errorf("unknown role %q (want db, app, web or all)", target)
	}
	if f.sshHost != "" {
		return provisionRemote(ctx, out, topo, role, f.sshHost, f, opts)
	}
	if role == topology.RoleDB {
		// 在資料庫主機上直接走 loopback
		opts.DBHost = "127.0.0.1"
	}
	return provisionWith(ctx, out, newLocalRunner(), topo, role, f, opts)
}

func provisionRemote(ctx context.Context, out io.Writer, topo *topology.Topology, role topology.Role, host string, f provisionFlags, opts provision.Options) error {
	r, err := dialSSH(runner.SSHConfig{
		Addr:           host,
		User:           f.sshUser,
		KeyFile:        f.sshKey,
		KnownHostsFile: f.knownHosts,
		Insecure:       f.insecure,
		Timeout:        10 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", role, err)
	}
	defer r.Close()
	return provisionWith(ctx, out, r, topo, role, f, opts)
}

func provisionWith(ctx context.Context, out io.Writer, r runner.Runner, topo *topology.Topology, role topology.Role, f provisionFlags, opts provision.Options) error {
	if role == topology.RoleApp {
		bin, err := readBinary(f.binary)
		if err != nil {
			return fmt.Errorf("read labctl binary: %w", err)
		}
		opts.Binary = bin
	}
	plan, err := provision.PlanFor(role, topo, opts)
	if err != nil {
		return err
	}
	report, err := converge(ctx, r, plan, opts.Log.WithField("component", "provision"))
	if report != nil {
		printReport(out, report)
	}
	return err
}

func printReport(out io.Writer, report *provision.Report) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "%s @ %s\n", report.Role, report.Host)
	fmt.Fprintln(tw, "STEP\tSTATUS\tDURATION")
	for _, r := range report.Results {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Name, r.Status, r.Duration.Round(time.Millisecond))
	}
	fmt.Fprintf(tw, "changed=%d ok=%d skipped=%d failed=%d\n",
		report.Count(provision.StatusChanged), report.Count(provision.StatusOK),
		report.Count(provision.StatusSkipped), report.Count(provision.StatusFailed))
	tw.Flush()
}
