package txn

import (
	"testing"

	"github.com/spf13/afero"
)

func TestScaffoldWritesHeaderOnlyCSVAndEmptyDSL(t *testing.T) {
	fs := afero.NewMemMapFs()

	if err := Scaffold(fs, "/tx", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	body, err := afero.ReadFile(fs, "/tx/measurements.csv")
	if err != nil {
		t.Fatalf("expected measurements.csv to exist: %v", err)
	}
	if string(body) != "site,plot,tag,date,dbh_mm,health,standing,notes\n" {
		t.Fatalf("unexpected header: %q", string(body))
	}

	dsl, err := afero.ReadFile(fs, "/tx/updates.tdl")
	if err != nil {
		t.Fatalf("expected updates.tdl to exist: %v", err)
	}
	if len(dsl) != 0 {
		t.Fatalf("expected empty updates.tdl, got %q", string(dsl))
	}
}

func TestScaffoldRejectsExistingFilesWithoutForce(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := Scaffold(fs, "/tx", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := Scaffold(fs, "/tx", false); err == nil {
		t.Fatal("expected an error scaffolding over an existing transaction directory")
	}
}

func TestScaffoldOverwritesWithForce(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := Scaffold(fs, "/tx", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = afero.WriteFile(fs, "/tx/updates.tdl", []byte("ALIAS BRNV/H4/112 TO BRNV/H4/112\n"), 0o644)

	if err := Scaffold(fs, "/tx", true); err != nil {
		t.Fatalf("unexpected error with force: %v", err)
	}

	dsl, err := afero.ReadFile(fs, "/tx/updates.tdl")
	if err != nil {
		t.Fatalf("expected updates.tdl to exist: %v", err)
	}
	if len(dsl) != 0 {
		t.Fatalf("expected force scaffold to reset updates.tdl to empty, got %q", string(dsl))
	}
}
