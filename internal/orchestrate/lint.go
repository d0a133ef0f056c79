package orchestrate

import (
	"sort"

	"github.com/spf13/afero"

	"github.com/canopyledger/census/internal/assembler"
	"github.com/canopyledger/census/internal/catalog"
	"github.com/canopyledger/census/internal/config"
	"github.com/canopyledger/census/internal/derived"
	"github.com/canopyledger/census/internal/hashid"
	"github.com/canopyledger/census/internal/txn"
	"github.com/canopyledger/census/internal/types"
	"github.com/canopyledger/census/internal/validate"
)

// LintReport summarizes linting one transaction directory: every
// validation issue found, the fully assembled measurement rows, and
// the derived tree view and retag suggestions a reviewer would want to
// see before submitting.
type LintReport struct {
	TransactionPath  string
	TxID             string
	Issues           []types.ValidationIssue
	MeasurementRows  []types.MeasurementRow
	TreeView         []derived.TreeViewRecord
	RetagSuggestions []derived.RetagSuggestion
}

// ErrorCount returns how many issues are severity error.
func (r *LintReport) ErrorCount() int { return countSeverity(r.Issues, types.SeverityError) }

// WarningCount returns how many issues are severity warning.
func (r *LintReport) WarningCount() int { return countSeverity(r.Issues, types.SeverityWarning) }

// HasErrors reports whether the report carries any blocking issue.
func (r *LintReport) HasErrors() bool { return r.ErrorCount() > 0 }

func countSeverity(issues []types.ValidationIssue, sev types.Severity) int {
	n := 0
	for _, issue := range issues {
		if issue.Severity == sev {
			n++
		}
	}
	return n
}

// LintTransaction loads and validates a transaction directory against
// the configuration at configDir, without touching the ledger.
func LintTransaction(fs afero.Fs, transactionDir, configDir string, codeVersion string) (*LintReport, error) {
	cfg, err := config.Load(fs, configDir, NormalizeCodeVersion(codeVersion))
	if err != nil {
		return nil, err
	}
	normCfg := txn.NormalizationConfig{Rounding: cfg.Validation.Rounding, DefaultOrigin: "field"}

	data, err := txn.Load(fs, transactionDir, normCfg)
	if err != nil {
		return nil, err
	}

	defaultEffective, err := DetermineDefaultEffectiveDate(cfg, data)
	if err != nil {
		return nil, err
	}
	data.Commands = WithDefaultEffective(data.Commands, defaultEffective)

	cat := catalog.FromConfig(cfg)
	assembled := assembler.Assemble(data.Measurements, data.Commands, cat, cfg.Validation.DropAfterAbsentSurveys)

	txID, err := hashid.ComputeTxID(fs, transactionDir)
	if err != nil {
		return nil, err
	}

	issues := collectIssues(assembled, data.Commands, cat, cfg)

	return &LintReport{
		TransactionPath:  transactionDir,
		TxID:             txID,
		Issues:           issues,
		MeasurementRows:  assembled,
		TreeView:         derived.BuildTreeView(assembled, cat),
		RetagSuggestions: derived.BuildRetagSuggestions(assembled, cat, cfg),
	}, nil
}

func collectIssues(rows []types.MeasurementRow, commands []types.Command, cat *catalog.Catalog, cfg *config.Bundle) []types.ValidationIssue {
	var issues []types.ValidationIssue
	issues = append(issues, validate.Rows(rows, cfg)...)
	issues = append(issues, validate.Growth(rows, cat, cfg)...)
	issues = append(issues, validate.DSLCommands(commands)...)

	sort.SliceStable(issues, func(i, j int) bool {
		a, b := issues[i], issues[j]
		if a.Severity != b.Severity {
			return a.Severity < b.Severity
		}
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		return a.Location < b.Location
	})
	return issues
}
