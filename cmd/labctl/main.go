// @title        Three Tier Lab API
// @version      1.0
// @description  三層式實驗環境的使用者查詢 API（唯讀）
// @host         localhost:8080
// @BasePath     /
package main

import (
	"fmt"
	"os"

	"three-tier-lab/internal/topology"

	"github.com/joho/godotenv"
	"github.com/maloquacious/semver"
	"github.com/spf13/cobra"
)

var version = semver.Version{Minor: 1, PreRelease: "alpha", Build: semver.Commit()}

var (
	exitFunc   = os.Exit
	osArgs     = os.Args
	loadDotEnv = func() error { return godotenv.Load() }
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "labctl",
		Short:         "Provision and serve the three tier teaching lab",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newServeCmd(),
		newProvisionCmd(),
		newTopologyCmd(),
		newStatusCmd(),
		newMigrateCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the labctl version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "labctl %s\n", version.String())
		},
	}
}

// loadTopology returns the built-in lab when path is empty.
func loadTopology(path string) (*topology.Topology, error) {
	if path == "" {
		t := topology.Default()
		return t, t.Validate()
	}
	return topology.Load(path)
}

func execute(args []string) int {
	root := newRootCmd()
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
		return 1
	}
	return 0
}

func main() {
	if code := execute(osArgs[1:]); code != 0 {
		exitFunc(code)
	}
}
