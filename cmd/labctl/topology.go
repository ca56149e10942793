package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const guestTopologyPath = "/vagrant/topology.yaml"

func newTopologyCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "topology",
		Short: "Inspect, validate and render the lab topology",
	}
	cmd.PersistentFlags().StringVar(&path, "topology", "", "topology YAML (default: built-in lab)")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the topology for errors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			topo, err := loadTopology(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "topology ok: %d machines on %s\n", len(topo.Machines), topo.Network.Subnet)
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective topology as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			topo, err := loadTopology(path)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(topo); err != nil {
				return err
			}
			return enc.Close()
		},
	}

	var output, guestPath string
	renderCmd := &cobra.Command{
		Use:   "render",
		Short: "Write the Vagrantfile for the topology",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			topo, err := loadTopology(path)
			if err != nil {
				return err
			}
			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return topo.RenderVagrantfile(w, guestPath)
		},
	}
	renderCmd.Flags().StringVarP(&output, "output", "o", "-", "destination file, - for stdout")
	renderCmd.Flags().StringVar(&guestPath, "guest-topology", guestTopologyPath, "topology path inside the guests")

	cmd.AddCommand(validateCmd, showCmd, renderCmd)
	return cmd
}
