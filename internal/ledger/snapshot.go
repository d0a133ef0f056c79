package ledger

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// Snapshot is a minimal columnar binary format standing in for the
// original's parquet companion file: the same rows as
// observations_long.csv, one column block per field, each block
// length-prefixed so a reader can seek straight to a single column
// without re-parsing the whole row-oriented CSV. There is no parquet
// library in reach; this format gives the ledger a second, genuinely
// columnar artifact rather than a byte-identical copy of the CSV under
// a different name.
const snapshotMagic = "CENSUSCOL1\n"

// WriteObservationsSnapshot writes rows to path in the columnar
// snapshot format.
func WriteObservationsSnapshot(fs afero.Fs, path string, rows []ObservationRow) error {
	f, err := fs.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if _, err := w.WriteString(snapshotMagic); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "%d\n", len(rows)); err != nil {
		return err
	}

	columns := []struct {
		name string
		get  func(ObservationRow) string
	}{
		{"obs_id", func(r ObservationRow) string { return r.ObsID }},
		{"survey_id", func(r ObservationRow) string { return r.SurveyID }},
		{"date", func(r ObservationRow) string { return r.Date }},
		{"site", func(r ObservationRow) string { return r.Site }},
		{"plot", func(r ObservationRow) string { return r.Plot }},
		{"tag", func(r ObservationRow) string { return r.Tag }},
		{"dbh_mm", func(r ObservationRow) string { return intColumn(r.DBHMM) }},
		{"health", func(r ObservationRow) string { return intColumn(r.Health) }},
		{"standing", func(r ObservationRow) string { return boolColumn(r.Standing) }},
		{"notes", func(r ObservationRow) string { return r.Notes }},
		{"origin", func(r ObservationRow) string { return r.Origin }},
		{"source_tx", func(r ObservationRow) string { return r.SourceTx }},
		{"tree_uid", func(r ObservationRow) string { return strColumn(r.TreeUID) }},
		{"genus", func(r ObservationRow) string { return strColumn(r.Genus) }},
		{"species", func(r ObservationRow) string { return strColumn(r.Species) }},
		{"code", func(r ObservationRow) string { return strColumn(r.Code) }},
	}

	for _, col := range columns {
		values := make([]string, len(rows))
		for i, row := range rows {
			values[i] = escapeSnapshotValue(col.get(row))
		}
		block := strings.Join(values, "\x1f")
		if _, err := fmt.Fprintf(w, "%s\t%d\n", col.name, len(block)); err != nil {
			return err
		}
		if _, err := w.WriteString(block); err != nil {
			return err
		}
		if _, err := w.WriteString("\n"); err != nil {
			return err
		}
	}

	return w.Flush()
}

func intColumn(v *int) string {
	if v == nil {
		return "\x00"
	}
	return strconv.Itoa(*v)
}

func boolColumn(v *bool) string {
	if v == nil {
		return "\x00"
	}
	if *v {
		return "1"
	}
	return "0"
}

func strColumn(v *string) string {
	if v == nil {
		return "\x00"
	}
	return *v
}

func escapeSnapshotValue(v string) string {
	return strings.ReplaceAll(v, "\x1f", " ")
}
