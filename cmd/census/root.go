package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/afero"

	"github.com/canopyledger/census/internal/logging"
)

var (
	// Version is the running binary's semver string (overridden by ldflags at build time).
	Version = "0.1.0"
	Build   = "dev"
)

var (
	configDir  string
	workspace  string
	logLevel   string
	logFormat  string
	logFile    string
	jsonOutput bool

	fs  afero.Fs = afero.NewOsFs()
	log *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "census",
	Short: "A content-addressed ledger for multi-year forest census data",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := logging.New(logging.Config{Level: logLevel, Format: logFormat, FilePath: logFile})
		if err != nil {
			return err
		}
		log = l
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "./config", "directory holding taxonomy/sites/surveys/validation/datasheets TOML")
	rootCmd.PersistentFlags().StringVar(&workspace, "workspace", "./ledger", "ledger root directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "debug, info, warn, or error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "text or json")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "optional rotated log file path")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit machine-readable JSON instead of rendered tables")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func outputJSON(v any) {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error encoding JSON:", err)
		os.Exit(1)
	}
	fmt.Println(string(encoded))
}

func codeVersion() string {
	return Version
}
