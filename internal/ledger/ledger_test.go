package ledger

import (
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/canopyledger/census/internal/catalog"
	"github.com/canopyledger/census/internal/types"
)

func intp(v int) *int       { return &v }
func strp(v string) *string { return &v }

func TestAppendObservationsWritesCSVAndSnapshot(t *testing.T) {
	fs := afero.NewMemMapFs()
	l, err := Open(fs, "/ledger")
	if err != nil {
		t.Fatalf("unexpected error opening ledger: %v", err)
	}

	cat := catalog.New([]types.SurveyWindow{
		{ID: "S2019", Start: mustTestDate("2019-01-01"), End: mustTestDate("2019-12-31")},
	})

	uid := "tree-1"
	measurements := []types.MeasurementRow{
		{RowNumber: 1, Site: "BRNV", Plot: "H4", Tag: "112", Date: mustTestDate("2019-06-16"), DBHMM: intp(171), Origin: types.OriginField, TreeUID: &uid, SourceTx: "tx1"},
	}
	rows, err := AssembleObservations(measurements, cat, "tx1")
	if err != nil {
		t.Fatalf("unexpected error assembling observations: %v", err)
	}

	added, byOrigin, err := l.AppendObservations(rows)
	if err != nil {
		t.Fatalf("unexpected error appending observations: %v", err)
	}
	if added != 1 {
		t.Fatalf("expected 1 row added, got %d", added)
	}
	if byOrigin["field"] != 1 {
		t.Fatalf("expected 1 field-origin row, got %+v", byOrigin)
	}

	exists, _ := afero.Exists(fs, "/ledger/observations_long.csv")
	if !exists {
		t.Fatal("expected observations_long.csv to be written")
	}
	exists, _ = afero.Exists(fs, "/ledger/observations_long.snapshot")
	if !exists {
		t.Fatal("expected observations_long.snapshot to be written")
	}
}

func TestHasTransactionFindsAppendedEntry(t *testing.T) {
	fs := afero.NewMemMapFs()
	l, err := Open(fs, "/ledger")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.AppendTransactionEntry("tx1", "v1", map[string]string{}, map[string]string{}, 1, 0, map[string]int{}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found, err := l.HasTransaction("tx1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found {
		t.Fatal("expected tx1 to be found in transactions.jsonl")
	}
	missing, err := l.HasTransaction("tx2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if missing {
		t.Fatal("expected tx2 to be absent")
	}
}

func TestWriteVersionProducesChecksummedManifest(t *testing.T) {
	fs := afero.NewMemMapFs()
	l, err := Open(fs, "/ledger")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = afero.WriteFile(fs, "/ledger/observations_long.csv", []byte("obs_id\n"), 0o644)
	_ = afero.WriteFile(fs, "/ledger/observations_long.snapshot", []byte("CENSUSCOL1\n0\n"), 0o644)

	seq, err := l.WriteVersion([]string{"tx1"}, map[string]int{"errors": 0}, map[string]string{}, map[string]string{}, "v1", map[string]int{"field": 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seq != 1 {
		t.Fatalf("expected first version to be seq 1, got %d", seq)
	}
	exists, _ := afero.Exists(fs, "/ledger/versions/0001/manifest.json")
	if !exists {
		t.Fatal("expected versions/0001/manifest.json to exist")
	}

	seq2, err := l.WriteVersion(nil, map[string]int{}, nil, nil, "v1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seq2 != 2 {
		t.Fatalf("expected second version to be seq 2, got %d", seq2)
	}
}

func mustTestDate(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}
