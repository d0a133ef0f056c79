package orchestrate

import (
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/canopyledger/census/internal/assembler"
	"github.com/canopyledger/census/internal/catalog"
	"github.com/canopyledger/census/internal/censuserr"
	"github.com/canopyledger/census/internal/config"
	"github.com/canopyledger/census/internal/derived"
	"github.com/canopyledger/census/internal/hashid"
	"github.com/canopyledger/census/internal/ledger"
	"github.com/canopyledger/census/internal/txn"
	"github.com/canopyledger/census/internal/types"
)

// SubmitResult reports the outcome of submitting one transaction.
type SubmitResult struct {
	TxID       string
	Accepted   bool
	VersionSeq int
	Warnings   int
}

// SubmitTransaction lints a transaction directory and, if it carries
// no blocking errors and has not already been recorded, appends its
// observations and DSL lines to the ledger at workspace and writes a
// new version.
func SubmitTransaction(fs afero.Fs, transactionDir, configDir, workspace string, codeVersion string) (*SubmitResult, error) {
	lintReport, err := LintTransaction(fs, transactionDir, configDir, codeVersion)
	if err != nil {
		return nil, err
	}
	if lintReport.HasErrors() {
		return nil, censuserr.Submitf("transaction rejected due to validation errors")
	}

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
	for i := range assembled {
		assembled[i].SourceTx = lintReport.TxID
	}

	l, err := ledger.Open(fs, workspace)
	if err != nil {
		return nil, err
	}

	hasTx, err := l.HasTransaction(lintReport.TxID)
	if err != nil {
		return nil, err
	}
	if hasTx {
		return &SubmitResult{TxID: lintReport.TxID, Accepted: false, Warnings: lintReport.WarningCount()}, nil
	}

	rawRows, err := l.LoadRawMeasurements()
	if err != nil {
		return nil, err
	}
	priorCommands, err := l.LoadCommands()
	if err != nil {
		return nil, err
	}

	observations, err := ledger.AssembleObservations(assembled, cat, lintReport.TxID)
	if err != nil {
		return nil, err
	}
	rowsAdded, byOrigin, err := l.AppendObservations(observations)
	if err != nil {
		return nil, err
	}

	allCommands := append(priorCommands, data.Commands...)
	allRows := append(rawRows, assembled...)
	reassembled := assembler.Assemble(allRows, allCommands, cat, cfg.Validation.DropAfterAbsentSurveys)

	treeView := derived.BuildTreeView(reassembled, cat)
	retagRows := derived.BuildRetagSuggestions(reassembled, cat, cfg)
	if err := l.WriteTreeOutputs(treeView, retagRows); err != nil {
		return nil, err
	}

	dslLinesAdded, err := l.AppendUpdates(transactionDir)
	if err != nil {
		return nil, err
	}

	configHashes, err := hashConfigFiles(fs, configDir)
	if err != nil {
		return nil, err
	}
	inputHashes, err := hashTransactionInputs(fs, transactionDir)
	if err != nil {
		return nil, err
	}

	validationPayload := map[string]any{
		"tx_id": lintReport.TxID,
		"summary": map[string]int{
			"errors":   lintReport.ErrorCount(),
			"warnings": lintReport.WarningCount(),
		},
		"issues": issuesPayload(lintReport.Issues),
	}
	if err := l.WriteValidationReport(validationPayload); err != nil {
		return nil, err
	}

	if err := l.AppendTransactionEntry(lintReport.TxID, cfg.CodeVersion, configHashes, inputHashes, rowsAdded, dslLinesAdded, byOrigin, lintReport.Issues); err != nil {
		return nil, err
	}

	versionSeq, err := l.WriteVersion([]string{lintReport.TxID}, map[string]int{"errors": lintReport.ErrorCount(), "warnings": lintReport.WarningCount()}, configHashes, inputHashes, cfg.CodeVersion, byOrigin)
	if err != nil {
		return nil, err
	}

	return &SubmitResult{TxID: lintReport.TxID, Accepted: true, VersionSeq: versionSeq, Warnings: lintReport.WarningCount()}, nil
}

func issuesPayload(issues []types.ValidationIssue) []map[string]any {
	out := make([]map[string]any, 0, len(issues))
	for _, issue := range issues {
		out = append(out, map[string]any{
			"code": issue.Code, "severity": string(issue.Severity),
			"message": issue.Message, "location": issue.Location,
		})
	}
	return out
}

func hashConfigFiles(fsys afero.Fs, configDir string) (map[string]string, error) {
	entries, err := afero.ReadDir(fsys, configDir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".toml") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	hashes := map[string]string{}
	for _, name := range names {
		raw, err := afero.ReadFile(fsys, path.Join(configDir, name))
		if err != nil {
			return nil, err
		}
		hashes[name] = hashid.SHA256Hex(raw)
	}
	return hashes, nil
}

func hashTransactionInputs(fsys afero.Fs, transactionDir string) (map[string]string, error) {
	hashes := map[string]string{}
	err := afero.Walk(fsys, transactionDir, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(p, transactionDir), "/")
		raw, err := afero.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		hashes[rel] = hashid.SHA256Hex(raw)
		return nil
	})
	return hashes, err
}
