package dsl

import (
	"fmt"
	"time"

	"github.com/mitchellh/hashstructure/v2"

	"github.com/canopyledger/census/internal/types"
)

// Signature returns a deterministic structural hash of a command,
// independent of its line number, used to deduplicate an identical
// command within a single State apply. Across transactions only the
// ledger's tx_id check applies, which covers the whole file.
func Signature(cmd types.Command) (uint64, error) {
	var payload any
	switch cmd.Kind {
	case types.CommandAlias:
		payload = struct {
			Kind    string
			Target  types.SpatialKey
			Tree    string
			Primary bool
			Eff     string
			Note    string
		}{"alias", cmd.Alias.Target.Key(), treeRefKey(cmd.Alias.Tree), cmd.Alias.Primary, dateKey(cmd.Alias.EffectiveDate), cmd.Alias.Note}
	case types.CommandUpdate:
		payload = struct {
			Kind   string
			Tree   string
			Assign map[string]string
			Eff    string
			Note   string
		}{"update", treeRefKey(cmd.Update.Tree), cmd.Update.Assignments, dateKey(cmd.Update.EffectiveDate), cmd.Update.Note}
	case types.CommandSplit:
		var selSig any
		if cmd.Split.Selector != nil {
			selSig = struct {
				Strategy string
				Ranks    []int
				Filter   string
				Start    string
				End      string
			}{
				string(cmd.Split.Selector.Strategy),
				cmd.Split.Selector.Ranks,
				string(cmd.Split.Selector.DateFilter.Kind),
				dateKeyValue(cmd.Split.Selector.DateFilter.Start),
				dateKeyValue(cmd.Split.Selector.DateFilter.End),
			}
		}
		payload = struct {
			Kind     string
			Source   string
			Target   types.SpatialKey
			Primary  bool
			Eff      string
			Note     string
			Selector any
		}{"split", treeRefKey(cmd.Split.Source), cmd.Split.Target.Key(), cmd.Split.Primary, dateKey(cmd.Split.EffectiveDate), cmd.Split.Note, selSig}
	default:
		return 0, fmt.Errorf("unknown command kind %q", cmd.Kind)
	}

	return hashstructure.Hash(payload, hashstructure.FormatV2, nil)
}

func treeRefKey(r types.TreeRef) string {
	if r.IsUUID() {
		return "tree:" + r.UUID()
	}
	return "tag:" + r.Tag().String()
}

func dateKey(d *time.Time) string {
	if d == nil {
		return ""
	}
	return d.Format(dateLayout)
}

func dateKeyValue(d time.Time) string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

// hashPrimarySignature hashes a (tree, target tag, effective date)
// triple, mirroring the PRIMARY-assignment dedup signature.
func hashPrimarySignature(treeKey string, target types.SpatialKey, eff *time.Time) (uint64, error) {
	payload := struct {
		Tree   string
		Target types.SpatialKey
		Eff    string
	}{treeKey, target, dateKey(eff)}
	return hashstructure.Hash(payload, hashstructure.FormatV2, nil)
}
