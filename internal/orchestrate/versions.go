package orchestrate

import (
	"sort"

	"github.com/spf13/afero"

	"github.com/canopyledger/census/internal/censuserr"
	"github.com/canopyledger/census/internal/ledger"
)

// LoadManifest loads version seq's manifest from the ledger at
// workspace, or a VersionNotFound error if it doesn't exist.
func LoadManifest(fs afero.Fs, workspace string, seq int) (map[string]any, error) {
	l, err := ledger.Open(fs, workspace)
	if err != nil {
		return nil, err
	}
	manifest, err := l.ReadManifest(seq)
	if err != nil {
		return nil, censuserr.VersionNotFoundf("version %d not found", seq)
	}
	return manifest, nil
}

// DiffManifests produces a structured diff between two version
// manifests: which tx_ids, artifact checksums, and row counts differ,
// plus the signed delta in validation totals.
func DiffManifests(a, b map[string]any) map[string]any {
	checksumsA, _ := a["artifact_checksums"].(map[string]any)
	checksumsB, _ := b["artifact_checksums"].(map[string]any)
	rowCountsA, _ := a["row_counts"].(map[string]any)
	rowCountsB, _ := b["row_counts"].(map[string]any)
	validationA, _ := a["validation_summary"].(map[string]any)
	validationB, _ := b["validation_summary"].(map[string]any)

	return map[string]any{
		"seq_a":              a["version_seq"],
		"seq_b":              b["version_seq"],
		"tx_ids":             diffSets(toStringSlice(a["tx_ids"]), toStringSlice(b["tx_ids"])),
		"artifact_checksums": diffDicts(checksumsA, checksumsB),
		"row_counts": map[string]any{
			"a": rowCountsA, "b": rowCountsB, "delta": diffNumeric(rowCountsA, rowCountsB),
		},
		"validation_summary": map[string]any{
			"a": validationA, "b": validationB, "delta": diffNumeric(validationA, validationB),
		},
	}
}

func toStringSlice(v any) []string {
	items, _ := v.([]any)
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func diffSets(a, b []string) map[string][]string {
	setA := map[string]bool{}
	for _, v := range a {
		setA[v] = true
	}
	setB := map[string]bool{}
	for _, v := range b {
		setB[v] = true
	}
	var onlyA, onlyB []string
	for v := range setA {
		if !setB[v] {
			onlyA = append(onlyA, v)
		}
	}
	for v := range setB {
		if !setA[v] {
			onlyB = append(onlyB, v)
		}
	}
	sort.Strings(onlyA)
	sort.Strings(onlyB)
	return map[string][]string{"only_in_a": onlyA, "only_in_b": onlyB}
}

func diffDicts(a, b map[string]any) map[string]map[string]any {
	diff := map[string]map[string]any{}
	keys := map[string]bool{}
	for k := range a {
		keys[k] = true
	}
	for k := range b {
		keys[k] = true
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)
	for _, k := range sorted {
		if a[k] != b[k] {
			diff[k] = map[string]any{"a": a[k], "b": b[k]}
		}
	}
	return diff
}

func diffNumeric(a, b map[string]any) map[string]int {
	diff := map[string]int{}
	keys := map[string]bool{}
	for k := range a {
		keys[k] = true
	}
	for k := range b {
		keys[k] = true
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)
	for _, k := range sorted {
		va := asInt(a[k])
		vb := asInt(b[k])
		if delta := vb - va; delta != 0 {
			diff[k] = delta
		}
	}
	return diff
}

func asInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}
