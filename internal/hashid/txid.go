package hashid

import (
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/afero"
)

// ComputeTxID walks txDir (via fsys) and hashes the canonical form of
// every file it contains, sorted by relative path: CSV/DSL text files
// are normalised to LF with trailing whitespace stripped, and TOML
// files are decoded and re-emitted through DumpCanonicalTOML. This
// makes tx_id invariant under CRLF<->LF conversion and TOML key
// reordering, per the content-addressing invariant.
func ComputeTxID(fsys afero.Fs, txDir string) (string, error) {
	var relPaths []string
	err := afero.Walk(fsys, txDir, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(p, txDir), "/")
		relPaths = append(relPaths, rel)
		return nil
	})
	if err != nil {
		return "", err
	}
	sort.Strings(relPaths)

	var sb strings.Builder
	for _, rel := range relPaths {
		full := path.Join(txDir, rel)
		raw, err := afero.ReadFile(fsys, full)
		if err != nil {
			return "", err
		}

		var normalized string
		if strings.EqualFold(path.Ext(rel), ".toml") {
			doc := map[string]any{}
			if _, err := toml.Decode(string(raw), &doc); err != nil {
				return "", err
			}
			normalized = DumpCanonicalTOML(doc)
			if !strings.HasSuffix(normalized, "\n") {
				normalized += "\n"
			}
		} else {
			normalized = NormalizeText(string(raw))
		}

		sb.WriteString("## ")
		sb.WriteString(rel)
		sb.WriteString("\n")
		sb.WriteString(normalized)
		if !strings.HasSuffix(normalized, "\n") {
			sb.WriteString("\n")
		}
	}

	return SHA256Hex([]byte(sb.String())), nil
}
