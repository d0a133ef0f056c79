package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/canopyledger/census/internal/orchestrate"
)

var datasheetOpts orchestrate.DatasheetOptions

var datasheetsCmd = &cobra.Command{
	Use:   "datasheets",
	Short: "Generate field datasheet context files from the ledger",
}

var datasheetsGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write a JSON context file pre-filling a site/plot's next survey",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := orchestrate.GenerateDatasheet(fs, configDir, workspace, datasheetOpts, codeVersion())
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(map[string]any{"path": path})
			return nil
		}
		fmt.Printf("wrote %s\n", path)
		return nil
	},
}

func init() {
	datasheetsGenerateCmd.Flags().StringVar(&datasheetOpts.SurveyID, "survey", "", "survey id to generate a datasheet for (required)")
	datasheetsGenerateCmd.Flags().StringVar(&datasheetOpts.Site, "site", "", "site code (required)")
	datasheetsGenerateCmd.Flags().StringVar(&datasheetOpts.Plot, "plot", "", "plot code (required)")
	datasheetsGenerateCmd.Flags().StringVar(&datasheetOpts.OutputDir, "out", "./datasheets", "directory to write the context file into")
	datasheetsGenerateCmd.MarkFlagRequired("survey")
	datasheetsGenerateCmd.MarkFlagRequired("site")
	datasheetsGenerateCmd.MarkFlagRequired("plot")

	datasheetsCmd.AddCommand(datasheetsGenerateCmd)
	rootCmd.AddCommand(datasheetsCmd)
}
