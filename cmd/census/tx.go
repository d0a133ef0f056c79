package main

import (
	"encoding/json"
	"fmt"
	"path"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/canopyledger/census/cmd/census/render"
	"github.com/canopyledger/census/internal/censuserr"
	"github.com/canopyledger/census/internal/orchestrate"
	"github.com/canopyledger/census/internal/txn"
)

var (
	txNewOut     string
	txNewForce   bool
	txLintReport string
)

var txCmd = &cobra.Command{
	Use:   "tx",
	Short: "Scaffold, inspect, and submit transaction directories",
}

var txNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Scaffold an empty transaction directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := txn.Scaffold(fs, txNewOut, txNewForce); err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(map[string]any{"path": txNewOut})
			return nil
		}
		fmt.Printf("scaffolded transaction directory at %s\n", txNewOut)
		return nil
	},
}

var txLintCmd = &cobra.Command{
	Use:   "lint TRANSACTION_DIR",
	Short: "Validate a transaction directory without touching the ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := orchestrate.LintTransaction(fs, args[0], configDir, codeVersion())
		if err != nil {
			return err
		}

		payload := map[string]any{
			"tx_id":             report.TxID,
			"errors":            report.ErrorCount(),
			"warnings":          report.WarningCount(),
			"issues":            report.Issues,
			"tree_view":         report.TreeView,
			"retag_suggestions": report.RetagSuggestions,
		}

		reportPath := txLintReport
		if reportPath == "" {
			reportPath = path.Join(args[0], "lint-report.json")
		}
		encoded, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return err
		}
		if err := afero.WriteFile(fs, reportPath, append(encoded, '\n'), 0o644); err != nil {
			return err
		}

		if jsonOutput {
			outputJSON(payload)
			return nil
		}

		fmt.Println(render.Issues(report.Issues))
		fmt.Printf("\ntx_id: %s (%d error(s), %d warning(s))\n", report.TxID, report.ErrorCount(), report.WarningCount())
		fmt.Printf("report written to %s\n", reportPath)
		if report.ErrorCount() > 0 {
			return censuserr.Validationf("transaction has %d blocking error(s)", report.ErrorCount())
		}
		return nil
	},
}

var txSubmitCmd = &cobra.Command{
	Use:   "submit TRANSACTION_DIR",
	Short: "Lint, then append a transaction's observations and DSL lines to the ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := orchestrate.SubmitTransaction(fs, args[0], configDir, workspace, codeVersion())
		if err != nil {
			return err
		}

		if jsonOutput {
			outputJSON(result)
			return nil
		}

		if !result.Accepted {
			fmt.Printf("tx %s already recorded; nothing to do\n", result.TxID)
			return nil
		}
		fmt.Printf("accepted tx %s as version %d (%d warning(s))\n", result.TxID, result.VersionSeq, result.Warnings)
		return nil
	},
}

func init() {
	txNewCmd.Flags().StringVar(&txNewOut, "out", "", "directory to scaffold the new transaction into (required)")
	txNewCmd.Flags().BoolVar(&txNewForce, "force", false, "overwrite an existing measurements.csv/updates.tdl")
	txNewCmd.MarkFlagRequired("out")

	txLintCmd.Flags().StringVar(&txLintReport, "report", "", "path to write the JSON lint report to (default TRANSACTION_DIR/lint-report.json)")

	txCmd.AddCommand(txNewCmd)
	txCmd.AddCommand(txLintCmd)
	txCmd.AddCommand(txSubmitCmd)
	rootCmd.AddCommand(txCmd)
}
