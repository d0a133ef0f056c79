// Package ledger is the filesystem-backed, content-addressed store for
// accepted transactions: the long-form observation history, the
// append-only DSL log, derived tree views, validation reports, and
// immutable numbered versions with checksummed manifests.
package ledger

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/canopyledger/census/internal/dsl"
	"github.com/canopyledger/census/internal/types"
)

const (
	observationsCSVName      = "observations_long.csv"
	observationsSnapshotName = "observations_long.snapshot"
	updatesLogName           = "updates_log.tdl"
	treesViewName            = "trees_view.csv"
	retagSuggestionsName     = "retag_suggestions.csv"
	validationReportName     = "validation_report.json"
	transactionsLogName      = "transactions.jsonl"
	versionsDirName          = "versions"
)

// Ledger is a filesystem-backed store rooted at Root.
type Ledger struct {
	fs   afero.Fs
	Root string
}

// Open returns a Ledger rooted at root, creating the root and its
// versions/ subdirectory if they do not already exist.
func Open(fs afero.Fs, root string) (*Ledger, error) {
	if err := fs.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	l := &Ledger{fs: fs, Root: root}
	if err := fs.MkdirAll(l.path(versionsDirName), 0o755); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Ledger) path(name string) string { return path.Join(l.Root, name) }

// HasTransaction reports whether txID already has an entry in
// transactions.jsonl.
func (l *Ledger) HasTransaction(txID string) (bool, error) {
	exists, err := afero.Exists(l.fs, l.path(transactionsLogName))
	if err != nil || !exists {
		return false, err
	}
	f, err := l.fs.Open(l.path(transactionsLogName))
	if err != nil {
		return false, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		var record map[string]any
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			continue
		}
		if record["tx_id"] == txID {
			return true, nil
		}
	}
	return false, scanner.Err()
}

// AppendUpdates appends the text of txDir/updates.tdl to the ledger's
// cumulative updates_log.tdl, returning the count of its non-blank
// lines.
func (l *Ledger) AppendUpdates(txDir string) (int, error) {
	updatesPath := path.Join(txDir, "updates.tdl")
	exists, err := afero.Exists(l.fs, updatesPath)
	if err != nil || !exists {
		return 0, err
	}
	raw, err := afero.ReadFile(l.fs, updatesPath)
	if err != nil {
		return 0, err
	}
	text := string(raw)

	lineCount := 0
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			lineCount++
		}
	}

	f, err := l.fs.OpenFile(l.path(updatesLogName), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if text != "" && !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	if _, err := f.Write([]byte(text)); err != nil {
		return 0, err
	}
	return lineCount, nil
}

// AppendObservations merges already-assembled observation rows with
// any existing observations_long.csv, re-sorts the
// combined set by (survey_id, site, plot, tag, obs_id), and rewrites
// both the CSV and its columnar snapshot. It returns the number of new
// rows and a count of new rows by origin.
func (l *Ledger) AppendObservations(newRows []ObservationRow) (int, map[string]int, error) {
	existing, err := l.readObservations()
	if err != nil {
		return 0, nil, err
	}

	combined := append(existing, newRows...)
	sort.SliceStable(combined, func(i, j int) bool {
		a, b := combined[i], combined[j]
		if a.SurveyID != b.SurveyID {
			return a.SurveyID < b.SurveyID
		}
		if a.Site != b.Site {
			return a.Site < b.Site
		}
		if a.Plot != b.Plot {
			return a.Plot < b.Plot
		}
		if a.Tag != b.Tag {
			return a.Tag < b.Tag
		}
		return a.ObsID < b.ObsID
	})

	if err := l.writeObservationsCSV(combined); err != nil {
		return 0, nil, err
	}
	if err := WriteObservationsSnapshot(l.fs, l.path(observationsSnapshotName), combined); err != nil {
		return 0, nil, err
	}

	byOrigin := map[string]int{}
	for _, row := range newRows {
		byOrigin[row.Origin]++
	}
	return len(newRows), byOrigin, nil
}

var observationsHeader = []string{
	"obs_id", "survey_id", "date", "site", "plot", "tag", "dbh_mm", "health",
	"standing", "notes", "origin", "source_tx", "tree_uid", "genus", "species", "code",
}

func (l *Ledger) readObservations() ([]ObservationRow, error) {
	p := l.path(observationsCSVName)
	exists, err := afero.Exists(l.fs, p)
	if err != nil || !exists {
		return nil, err
	}
	f, err := l.fs.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	index := map[string]int{}
	for i, h := range header {
		index[h] = i
	}

	var rows []ObservationRow
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, observationFromRecord(rec, index))
	}
	return rows, nil
}

func observationFromRecord(rec []string, index map[string]int) ObservationRow {
	get := func(col string) string {
		if i, ok := index[col]; ok && i < len(rec) {
			return rec[i]
		}
		return ""
	}
	return ObservationRow{
		ObsID:    get("obs_id"),
		SurveyID: get("survey_id"),
		Date:     get("date"),
		Site:     get("site"),
		Plot:     get("plot"),
		Tag:      get("tag"),
		DBHMM:    parseOptionalInt(get("dbh_mm")),
		Health:   parseOptionalInt(get("health")),
		Standing: parseOptionalBoolCSV(get("standing")),
		Notes:    get("notes"),
		Origin:   get("origin"),
		SourceTx: get("source_tx"),
		TreeUID:  nonEmptyPtr(get("tree_uid")),
		Genus:    nonEmptyPtr(get("genus")),
		Species:  nonEmptyPtr(get("species")),
		Code:     nonEmptyPtr(get("code")),
	}
}

func parseOptionalInt(v string) *int {
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil
	}
	return &n
}

func parseOptionalBoolCSV(v string) *bool {
	switch v {
	case "True", "true":
		b := true
		return &b
	case "False", "false":
		b := false
		return &b
	default:
		return nil
	}
}

func nonEmptyPtr(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func (l *Ledger) writeObservationsCSV(rows []ObservationRow) error {
	f, err := l.fs.Create(l.path(observationsCSVName))
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(observationsHeader); err != nil {
		return err
	}
	for _, row := range rows {
		record := []string{
			row.ObsID, row.SurveyID, row.Date, row.Site, row.Plot, row.Tag,
			formatOptionalInt(row.DBHMM), formatOptionalInt(row.Health),
			formatOptionalBool(row.Standing), row.Notes, row.Origin, row.SourceTx,
			formatOptionalStr(row.TreeUID), formatOptionalStr(row.Genus),
			formatOptionalStr(row.Species), formatOptionalStr(row.Code),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func formatOptionalInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func formatOptionalBool(v *bool) string {
	if v == nil {
		return ""
	}
	if *v {
		return "True"
	}
	return "False"
}

func formatOptionalStr(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

// AppendTransactionEntry appends one accepted-transaction record to
// transactions.jsonl. Map values marshal with keys sorted
// alphabetically, matching the original's json.dumps(sort_keys=True).
func (l *Ledger) AppendTransactionEntry(txID, codeVersion string, configHashes, inputHashes map[string]string, rowsAdded, dslLinesAdded int, rowCounts map[string]int, issues []types.ValidationIssue) error {
	record := map[string]any{
		"tx_id":              txID,
		"accepted_at":        time.Now().UTC().Format(time.RFC3339),
		"code_version":       codeVersion,
		"config_hashes":      configHashes,
		"input_checksums":    inputHashes,
		"rows_added":         rowsAdded,
		"dsl_lines_added":    dslLinesAdded,
		"row_counts":         rowCounts,
		"validation_summary": summarizeIssues(issues),
	}
	encoded, err := json.Marshal(record)
	if err != nil {
		return err
	}

	f, err := l.fs.OpenFile(l.path(transactionsLogName), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(encoded, '\n'))
	return err
}

func summarizeIssues(issues []types.ValidationIssue) map[string]int {
	errors, warnings := 0, 0
	for _, issue := range issues {
		if issue.Severity == types.SeverityError {
			errors++
		} else {
			warnings++
		}
	}
	return map[string]int{"errors": errors, "warnings": warnings}
}

// ReadTransactions returns every parseable transaction record in
// transactions.jsonl.
func (l *Ledger) ReadTransactions() ([]map[string]any, error) {
	exists, err := afero.Exists(l.fs, l.path(transactionsLogName))
	if err != nil || !exists {
		return nil, err
	}
	raw, err := afero.ReadFile(l.fs, l.path(transactionsLogName))
	if err != nil {
		return nil, err
	}
	var records []map[string]any
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var record map[string]any
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// ListVersions returns every version sequence number recorded under
// versions/, sorted ascending.
func (l *Ledger) ListVersions() ([]int, error) {
	entries, err := afero.ReadDir(l.fs, l.path(versionsDirName))
	if err != nil {
		return nil, err
	}
	var versions []int
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if n, err := strconv.Atoi(e.Name()); err == nil {
			versions = append(versions, n)
		}
	}
	sort.Ints(versions)
	return versions, nil
}

// WriteValidationReport writes payload as indented JSON.
func (l *Ledger) WriteValidationReport(payload map[string]any) error {
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	return afero.WriteFile(l.fs, l.path(validationReportName), append(encoded, '\n'), 0o644)
}

// LoadRawMeasurements reconstructs measurement rows from the
// accumulated observations_long.csv, for rebuilding derived artifacts
// (datasheets) without replaying every historical transaction
// directory. Rows carry RowNumber 0 since the long-form ledger does
// not preserve a transaction-local row position.
func (l *Ledger) LoadRawMeasurements() ([]types.MeasurementRow, error) {
	observations, err := l.readObservations()
	if err != nil {
		return nil, err
	}
	rows := make([]types.MeasurementRow, 0, len(observations))
	for _, obs := range observations {
		d, err := time.Parse("2006-01-02", obs.Date)
		if err != nil {
			continue
		}
		rows = append(rows, types.MeasurementRow{
			Site: obs.Site, Plot: obs.Plot, Tag: obs.Tag, Date: d,
			DBHMM: obs.DBHMM, Health: obs.Health, Standing: obs.Standing,
			Notes: obs.Notes, Origin: types.Origin(obs.Origin), SourceTx: obs.SourceTx,
			Genus: obs.Genus, Species: obs.Species, Code: obs.Code,
		})
	}
	return rows, nil
}

// LoadCommands parses the cumulative updates_log.tdl into a command
// stream, for replay during workspace rebuilds.
func (l *Ledger) LoadCommands() ([]types.Command, error) {
	p := l.path(updatesLogName)
	exists, err := afero.Exists(l.fs, p)
	if err != nil || !exists {
		return nil, err
	}
	raw, err := afero.ReadFile(l.fs, p)
	if err != nil {
		return nil, err
	}
	return dsl.Parse(p, string(raw))
}

// HasObservations reports whether any observations have been recorded.
func (l *Ledger) HasObservations() (bool, error) {
	return afero.Exists(l.fs, l.path(observationsCSVName))
}

// ReadManifest loads and decodes the manifest.json for version seq.
func (l *Ledger) ReadManifest(seq int) (map[string]any, error) {
	p := path.Join(l.path(versionsDirName), fmt.Sprintf("%04d", seq), "manifest.json")
	raw, err := afero.ReadFile(l.fs, p)
	if err != nil {
		return nil, err
	}
	var manifest map[string]any
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return nil, err
	}
	return manifest, nil
}

