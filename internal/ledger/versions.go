package ledger

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"path"
	"strconv"
	"time"

	"github.com/spf13/afero"

	"github.com/canopyledger/census/internal/derived"
	"github.com/canopyledger/census/internal/hashid"
)

var treeViewColumns = []string{"tree_uid", "survey_id", "public_tag", "site", "plot", "genus", "species", "code", "origin"}

var retagColumns = []string{
	"survey_id", "plot", "lost_tree_uid", "lost_public_tag", "lost_max_dbh_mm",
	"new_tree_uid", "new_public_tag", "new_max_dbh_mm", "delta_mm", "delta_pct", "suggested_alias_line",
}

// WriteTreeOutputs writes the per-tree view and retag suggestions as CSV.
func (l *Ledger) WriteTreeOutputs(treeRows []derived.TreeViewRecord, retagRows []derived.RetagSuggestion) error {
	if err := l.writeCSV(l.path(treesViewName), treeViewColumns, len(treeRows), func(i int) []string {
		r := treeRows[i]
		return []string{
			r.TreeUID, r.SurveyID, r.PublicTag, r.Site, r.Plot,
			formatOptionalStr(r.Genus), formatOptionalStr(r.Species), formatOptionalStr(r.Code), string(r.Origin),
		}
	}); err != nil {
		return err
	}

	return l.writeCSV(l.path(retagSuggestionsName), retagColumns, len(retagRows), func(i int) []string {
		r := retagRows[i]
		return []string{
			r.SurveyID, r.Plot, r.LostTreeUID, r.LostPublicTag, strconv.Itoa(r.LostMaxDBHMM),
			r.NewTreeUID, r.NewPublicTag, strconv.Itoa(r.NewMaxDBHMM), strconv.Itoa(r.DeltaMM),
			strconv.FormatFloat(r.DeltaPct, 'f', 4, 64), r.SuggestedAliasLine,
		}
	})
}

func (l *Ledger) writeCSV(path string, header []string, n int, row func(int) []string) error {
	f, err := l.fs.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := w.Write(row(i)); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// WriteVersion snapshots the ledger's current artifacts into a new
// sequentially-numbered versions/NNNN directory, writing a manifest
// with sha256 checksums of every copied artifact.
func (l *Ledger) WriteVersion(txIDs []string, validationSummary map[string]int, configHashes, inputHashes map[string]string, codeVersion string, rowCounts map[string]int) (int, error) {
	seq, err := l.nextVersionSeq()
	if err != nil {
		return 0, err
	}
	versionDir := l.path(path.Join(versionsDirName, fmt.Sprintf("%04d", seq)))
	if err := l.fs.MkdirAll(versionDir, 0o755); err != nil {
		return 0, err
	}

	checksums := map[string]string{}
	copyIfExists := func(name string) error {
		src := l.path(name)
		exists, err := afero.Exists(l.fs, src)
		if err != nil || !exists {
			return err
		}
		dest := path.Join(versionDir, name)
		raw, err := afero.ReadFile(l.fs, src)
		if err != nil {
			return err
		}
		if err := afero.WriteFile(l.fs, dest, raw, 0o644); err != nil {
			return err
		}
		checksums[name] = hashid.SHA256Hex(raw)
		return nil
	}

	for _, name := range []string{
		observationsCSVName, observationsSnapshotName, treesViewName,
		retagSuggestionsName, updatesLogName, validationReportName,
	} {
		if err := copyIfExists(name); err != nil {
			return 0, err
		}
	}

	manifest := map[string]any{
		"version_seq":        seq,
		"created_at":         time.Now().UTC().Format(time.RFC3339),
		"code_version":       codeVersion,
		"tx_ids":             txIDs,
		"config_hashes":      configHashes,
		"input_checksums":    inputHashes,
		"validation_summary": validationSummary,
		"row_counts":         rowCounts,
		"artifact_checksums": checksums,
	}
	encoded, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return 0, err
	}
	if err := afero.WriteFile(l.fs, path.Join(versionDir, "manifest.json"), append(encoded, '\n'), 0o644); err != nil {
		return 0, err
	}

	return seq, nil
}

func (l *Ledger) nextVersionSeq() (int, error) {
	versions, err := l.ListVersions()
	if err != nil {
		return 0, err
	}
	if len(versions) == 0 {
		return 1, nil
	}
	return versions[len(versions)-1] + 1, nil
}
