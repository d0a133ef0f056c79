package orchestrate

import (
	"github.com/spf13/afero"

	"github.com/canopyledger/census/internal/censuserr"
	"github.com/canopyledger/census/internal/config"
	"github.com/canopyledger/census/internal/ledger"
)

// BuildResult reports the outcome of rebuilding workspace artifacts.
type BuildResult struct {
	VersionSeq int
	TxCount    int
}

// BuildWorkspace writes a fresh version snapshot over whatever is
// currently recorded in the ledger, aggregating validation totals
// across every recorded transaction. It does not re-derive
// observations; submit is responsible for keeping those current.
func BuildWorkspace(fs afero.Fs, configDir, workspace string, codeVersion string) (*BuildResult, error) {
	cfg, err := config.Load(fs, configDir, NormalizeCodeVersion(codeVersion))
	if err != nil {
		return nil, err
	}

	l, err := ledger.Open(fs, workspace)
	if err != nil {
		return nil, err
	}

	hasObservations, err := l.HasObservations()
	if err != nil {
		return nil, err
	}
	if !hasObservations {
		return nil, censuserr.Buildf("no observations found; submit a transaction first")
	}

	records, err := l.ReadTransactions()
	if err != nil {
		return nil, err
	}
	var txIDs []string
	for _, record := range records {
		if id, ok := record["tx_id"].(string); ok {
			txIDs = append(txIDs, id)
		}
	}
	if len(txIDs) == 0 {
		return nil, censuserr.Buildf("no transactions recorded; nothing to build")
	}

	validationSummary := aggregateValidation(records)
	configHashes, err := hashConfigFiles(fs, configDir)
	if err != nil {
		return nil, err
	}

	versionSeq, err := l.WriteVersion(txIDs, validationSummary, configHashes, map[string]string{}, cfg.CodeVersion, nil)
	if err != nil {
		return nil, err
	}

	return &BuildResult{VersionSeq: versionSeq, TxCount: len(txIDs)}, nil
}

func aggregateValidation(records []map[string]any) map[string]int {
	totals := map[string]int{"errors": 0, "warnings": 0}
	for _, record := range records {
		summary, _ := record["validation_summary"].(map[string]any)
		for key, value := range summary {
			if n, ok := value.(float64); ok {
				totals[key] += int(n)
			}
		}
	}
	return totals
}
