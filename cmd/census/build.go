package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/canopyledger/census/internal/orchestrate"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Write a fresh version snapshot of the ledger's current artifacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := orchestrate.BuildWorkspace(fs, configDir, workspace, codeVersion())
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(result)
			return nil
		}
		fmt.Printf("wrote version %d from %d recorded transaction(s)\n", result.VersionSeq, result.TxCount)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(buildCmd)
}
