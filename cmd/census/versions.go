package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/canopyledger/census/internal/ledger"
	"github.com/canopyledger/census/internal/orchestrate"
)

var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "List, show, and diff recorded ledger versions",
}

var versionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every recorded version sequence number",
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := ledger.Open(fs, workspace)
		if err != nil {
			return err
		}
		seqs, err := l.ListVersions()
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(seqs)
			return nil
		}
		for _, seq := range seqs {
			fmt.Println(seq)
		}
		return nil
	},
}

var versionsShowCmd = &cobra.Command{
	Use:   "show SEQ",
	Short: "Show one version's manifest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		seq, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version seq %q", args[0])
		}
		manifest, err := orchestrate.LoadManifest(fs, workspace, seq)
		if err != nil {
			return err
		}
		outputJSON(manifest)
		return nil
	},
}

var versionsDiffCmd = &cobra.Command{
	Use:   "diff SEQ_A SEQ_B",
	Short: "Diff two version manifests",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		seqA, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version seq %q", args[0])
		}
		seqB, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid version seq %q", args[1])
		}
		a, err := orchestrate.LoadManifest(fs, workspace, seqA)
		if err != nil {
			return err
		}
		b, err := orchestrate.LoadManifest(fs, workspace, seqB)
		if err != nil {
			return err
		}
		outputJSON(orchestrate.DiffManifests(a, b))
		return nil
	},
}

func init() {
	versionsCmd.AddCommand(versionsListCmd)
	versionsCmd.AddCommand(versionsShowCmd)
	versionsCmd.AddCommand(versionsDiffCmd)
	rootCmd.AddCommand(versionsCmd)
}
