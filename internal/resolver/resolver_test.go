package resolver

import (
	"testing"
	"time"

	"github.com/canopyledger/census/internal/hashid"
	"github.com/canopyledger/census/internal/types"
)

func mustDate(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestUnaliasedTagResolvesToStableUUID(t *testing.T) {
	rows := []types.MeasurementRow{
		{Site: "BRNV", Plot: "H4", Tag: "112", Date: mustDate("2019-06-16")},
		{Site: "BRNV", Plot: "H4", Tag: "112", Date: mustDate("2021-06-16")},
	}
	r := Build(rows, nil)
	key := types.SpatialKey{Site: "BRNV", Plot: "H4", Tag: "112"}
	want := hashid.TreeUIDForKey(key)

	for _, row := range rows {
		got := r.Resolve(key, row.Date)
		if got != want {
			t.Fatalf("expected stable uuid5 tree_uid %s, got %s", want, got)
		}
	}
}

func TestAliasRetagsForwardOnly(t *testing.T) {
	rows := []types.MeasurementRow{
		{Site: "BRNV", Plot: "H4", Tag: "112", Date: mustDate("2019-06-16")},
	}
	eff := mustDate("2020-06-15")
	commands := []types.Command{
		{
			Kind: types.CommandAlias,
			Line: 1,
			Alias: &types.AliasCommand{
				Target:        types.TagRef{Site: "BRNV", Plot: "H4", Tag: "508"},
				Tree:          types.NewTreeRefByTag(types.TagRef{Site: "BRNV", Plot: "H4", Tag: "112"}),
				Primary:       true,
				EffectiveDate: &eff,
			},
		},
	}

	r := Build(rows, commands)
	oldKey := types.SpatialKey{Site: "BRNV", Plot: "H4", Tag: "112"}
	newKey := types.SpatialKey{Site: "BRNV", Plot: "H4", Tag: "508"}
	wantUID := hashid.TreeUIDForKey(oldKey)

	if got := r.Resolve(newKey, mustDate("2020-06-16")); got != wantUID {
		t.Fatalf("tag 508 on/after effective date should resolve to original tree, got %s want %s", got, wantUID)
	}
	if got := r.Resolve(newKey, mustDate("2019-01-01")); got == wantUID {
		t.Fatalf("tag 508 before effective date should NOT resolve to original tree (no binding exists yet)")
	}
	if got := r.Resolve(oldKey, mustDate("2019-06-16")); got != wantUID {
		t.Fatalf("original 2019 rows under tag 112 should be unaffected by the alias")
	}
}
