// Package hashid derives the deterministic identifiers the ledger
// relies on: UUIDv5 tree identities from spatial keys, SHA-256
// transaction and observation fingerprints, and the canonical text
// normalisation that makes those fingerprints invariant under
// reformatting.
package hashid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/canopyledger/census/internal/types"
)

// TagNamespace is the fixed UUIDv5 namespace every spatial key is
// hashed under, so the same (site, plot, tag) always derives the same
// tree_uid across runs and machines.
var TagNamespace = uuid.MustParse("f3a1c8e2-7b4d-4e9a-9c3f-1d6a8b2e5c70")

// TreeUIDForKey derives the stable tree_uid a fresh tag receives before
// any alias or split command ever rebinds it.
func TreeUIDForKey(k types.SpatialKey) string {
	return uuid.NewSHA1(TagNamespace, []byte(k.Site+"/"+k.Plot+"/"+k.Tag)).String()
}

// TreeUIDForKeyParts is a convenience wrapper over TreeUIDForKey for
// callers that don't have a types.SpatialKey handy.
func TreeUIDForKeyParts(site, plot, tag string) string {
	return TreeUIDForKey(types.SpatialKey{Site: site, Plot: plot, Tag: tag})
}

// SHA256Hex returns the lowercase hex SHA-256 digest of data.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ObservationID derives the stable obs_id for one observation row:
// sha256(tx_id:row_number:site:plot:tag:date).
func ObservationID(txID string, rowNumber int, site, plot, tag, isoDate string) string {
	payload := fmt.Sprintf("%s:%d:%s:%s:%s:%s", txID, rowNumber, site, plot, tag, isoDate)
	return SHA256Hex([]byte(payload))
}

// NormalizeText canonicalises a text file's content for transaction
// fingerprinting: CRLF/CR collapse to LF, trailing whitespace is
// stripped per line, and the result ends in exactly one trailing
// newline.
func NormalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	joined := strings.Join(lines, "\n")
	return strings.Trim(joined, "\n") + "\n"
}

// DumpCanonicalTOML re-encodes a decoded TOML document (as produced by
// BurntSushi/toml's generic decode into map[string]any) with keys
// sorted at every depth, so byte-level key reordering in the source
// file never changes the canonical form used for hashing.
func DumpCanonicalTOML(data map[string]any) string {
	return dumpTOMLValue(data, 0)
}

func dumpTOMLValue(data any, indent int) string {
	switch v := data.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var lines []string
		for _, key := range keys {
			value := v[key]
			switch vv := value.(type) {
			case map[string]any:
				if len(lines) > 0 {
					lines = append(lines, "")
				}
				lines = append(lines, fmt.Sprintf("%s[%s]", tomlIndent(indent), key))
				lines = append(lines, dumpTOMLValue(vv, indent))
			case []map[string]any:
				for _, table := range vv {
					if len(lines) > 0 {
						lines = append(lines, "")
					}
					lines = append(lines, fmt.Sprintf("%s[[%s]]", tomlIndent(indent), key))
					lines = append(lines, dumpTOMLValue(table, indent))
				}
			case []any:
				if listOfTables(vv) {
					for _, item := range vv {
						table, _ := item.(map[string]any)
						if len(lines) > 0 {
							lines = append(lines, "")
						}
						lines = append(lines, fmt.Sprintf("%s[[%s]]", tomlIndent(indent), key))
						lines = append(lines, dumpTOMLValue(table, indent))
					}
				} else {
					lines = append(lines, fmt.Sprintf("%s%s = %s", tomlIndent(indent), key, serializeTOMLValue(value)))
				}
			default:
				lines = append(lines, fmt.Sprintf("%s%s = %s", tomlIndent(indent), key, serializeTOMLValue(value)))
			}
		}
		return strings.Join(lines, "\n")
	case []any:
		items := make([]string, len(v))
		for i, item := range v {
			items[i] = serializeTOMLValue(item)
		}
		return "[" + strings.Join(items, ", ") + "]"
	default:
		return serializeTOMLValue(data)
	}
}

func listOfTables(items []any) bool {
	if len(items) == 0 {
		return false
	}
	for _, item := range items {
		if _, ok := item.(map[string]any); !ok {
			return false
		}
	}
	return true
}

func serializeTOMLValue(value any) string {
	switch v := value.(type) {
	case string:
		escaped := strings.ReplaceAll(v, `\`, `\\`)
		escaped = strings.ReplaceAll(escaped, `"`, `\"`)
		return `"` + escaped + `"`
	case bool:
		if v {
			return "true"
		}
		return "false"
	case int, int64, float64:
		return fmt.Sprintf("%v", v)
	case fmt.Stringer:
		return fmt.Sprintf("%q", v.String())
	default:
		return fmt.Sprintf("%v", v)
	}
}

func tomlIndent(level int) string {
	return strings.Repeat("    ", level)
}
