package hashid

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"

	"github.com/canopyledger/census/internal/types"
)

func TestTreeUIDForKeyIsStable(t *testing.T) {
	k := types.SpatialKey{Site: "BRNV", Plot: "H4", Tag: "112"}
	a := TreeUIDForKey(k)
	b := TreeUIDForKey(k)
	if a != b {
		t.Fatalf("TreeUIDForKey not stable: %s != %s", a, b)
	}
	if a != TreeUIDForKeyParts("BRNV", "H4", "112") {
		t.Fatalf("TreeUIDForKeyParts mismatch")
	}
}

func TestTreeUIDDiffersByKey(t *testing.T) {
	a := TreeUIDForKeyParts("BRNV", "H4", "112")
	b := TreeUIDForKeyParts("BRNV", "H4", "508")
	if a == b {
		t.Fatalf("expected distinct tree_uid for distinct tags")
	}
}

func TestNormalizeTextCRLFInvariant(t *testing.T) {
	lf := "a,b,c\n1,2,3\n"
	crlf := "a,b,c\r\n1,2,3\r\n"
	if NormalizeText(lf) != NormalizeText(crlf) {
		t.Fatalf("normalization not CRLF-invariant")
	}
}

func TestNormalizeTextStripsTrailingWhitespace(t *testing.T) {
	got := NormalizeText("a,b  \nc,d\t\n")
	want := "a,b\nc,d\n"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestDumpCanonicalTOMLSortsKeysAtEveryDepth(t *testing.T) {
	a := map[string]any{
		"z": "1",
		"a": map[string]any{"y": "2", "b": "3"},
	}
	b := map[string]any{
		"a": map[string]any{"b": "3", "y": "2"},
		"z": "1",
	}
	if diff := cmp.Diff(DumpCanonicalTOML(a), DumpCanonicalTOML(b)); diff != "" {
		t.Fatalf("expected identical dumps regardless of map iteration order: %s", diff)
	}
}

func TestComputeTxIDInvariantUnderCRLF(t *testing.T) {
	fsys := afero.NewMemMapFs()
	_ = afero.WriteFile(fsys, "/tx/measurements.csv", []byte("site,plot,tag\nBRNV,H4,112\n"), 0o644)

	id1, err := ComputeTxID(fsys, "/tx")
	if err != nil {
		t.Fatal(err)
	}

	fsys2 := afero.NewMemMapFs()
	_ = afero.WriteFile(fsys2, "/tx/measurements.csv", []byte("site,plot,tag\r\nBRNV,H4,112\r\n"), 0o644)
	id2, err := ComputeTxID(fsys2, "/tx")
	if err != nil {
		t.Fatal(err)
	}

	if id1 != id2 {
		t.Fatalf("tx_id not CRLF-invariant: %s != %s", id1, id2)
	}
}

func TestComputeTxIDInvariantUnderTOMLKeyReorder(t *testing.T) {
	fsys := afero.NewMemMapFs()
	_ = afero.WriteFile(fsys, "/tx/survey_meta.toml", []byte("survey_id = \"S1\"\nnote = \"x\"\n"), 0o644)

	id1, err := ComputeTxID(fsys, "/tx")
	if err != nil {
		t.Fatal(err)
	}

	fsys2 := afero.NewMemMapFs()
	_ = afero.WriteFile(fsys2, "/tx/survey_meta.toml", []byte("note = \"x\"\nsurvey_id = \"S1\"\n"), 0o644)
	id2, err := ComputeTxID(fsys2, "/tx")
	if err != nil {
		t.Fatal(err)
	}

	if id1 != id2 {
		t.Fatalf("tx_id not invariant under TOML key reorder: %s != %s", id1, id2)
	}
}
