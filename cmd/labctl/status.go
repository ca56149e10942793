package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"three-tier-lab/internal/readiness"
	"three-tier-lab/internal/topology"
	"three-tier-lab/internal/worker"

	"github.com/spf13/cobra"
)

var errUnhealthy = errors.New("one or more checks failed")

type check struct {
	Name   string
	Target string
	Probe  readiness.Probe
}

type checkResult struct {
	check
	Err      error
	Duration time.Duration
}

var (
	tcpProbe  = readiness.TCP
	httpProbe = readiness.HTTP
)

// statusChecks lists every endpoint of the lab, inside out.
func statusChecks(topo *topology.Topology) []check {
	checks := []check{
		{Name: "db port", Target: topo.DatabaseAddr(), Probe: tcpProbe(topo.DatabaseAddr())},
		{Name: "app health", Target: topo.AppURL() + "/health", Probe: httpProbe(topo.AppURL()+"/health", 200)},
		{Name: "proxy health", Target: topo.WebURL() + "/nginx-health", Probe: httpProbe(topo.WebURL()+"/nginx-health", 200)},
		{Name: "proxied api", Target: topo.WebURL() + "/health", Probe: httpProbe(topo.WebURL()+"/health", 200)},
	}
	if u := topo.ForwardedURL(); u != "" {
		checks = append(checks, check{Name: "forwarded port", Target: u + "/health", Probe: httpProbe(u+"/health", 200)})
	}
	return checks
}

func newStatusCmd() *cobra.Command {
	var (
		path    string
		timeout time.Duration
		workers int
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Probe every tier of the lab once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			topo, err := loadTopology(path)
			if err != nil {
				return err
			}
			results := runChecks(cmd.Context(), statusChecks(topo), workers, timeout)
			return printStatus(cmd.OutOrStdout(), results)
		},
	}
	cmd.Flags().StringVar(&path, "topology", "", "topology YAML (default: built-in lab)")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "per-check timeout")
	cmd.Flags().IntVar(&workers, "workers", 4, "checks run concurrently")
	return cmd
}

func runChecks(ctx context.Context, checks []check, workers int, timeout time.Duration) []checkResult {
	results := make([]checkResult, len(checks))
	tasks := make([]worker.Task, len(checks))
	for i, c := range checks {
		i, c := i, c
		tasks[i] = func(ctx context.Context) {
			cctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			start := time.Now()
			err := c.Probe(cctx)
			results[i] = checkResult{check: c, Err: err, Duration: time.Since(start)}
		}
	}
	if err := worker.Run(ctx, workers, tasks...); err != nil {
		// 未送出的檢查視為失敗
		for i := range results {
			if results[i].Probe == nil {
				results[i] = checkResult{check: checks[i], Err: err}
			}
		}
	}
	return results
}

func printStatus(out io.Writer, results []checkResult) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CHECK\tTARGET\tRESULT\tTIME")
	failed := false
	for _, r := range results {
		res := "ok"
		if r.Err != nil {
			res = "FAIL: " + r.Err.Error()
			failed = true
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Name, r.Target, res, r.Duration.Round(time.Millisecond))
	}
	tw.Flush()
	if failed {
		return errUnhealthy
	}
	return nil
}
