package txn

import (
	"encoding/csv"
	"path"

	"github.com/spf13/afero"

	"github.com/canopyledger/census/internal/censuserr"
)

// Scaffold writes a header-only measurements.csv and an empty
// updates.tdl into dir, creating dir if needed. If dir already holds
// either file, Scaffold fails unless force is set, in which case it
// overwrites them.
func Scaffold(fs afero.Fs, dir string, force bool) error {
	if !force {
		for _, name := range []string{MeasurementsFilename, UpdatesFilename} {
			exists, err := afero.Exists(fs, path.Join(dir, name))
			if err != nil {
				return err
			}
			if exists {
				return censuserr.TransactionFormatf(dir, "%s already exists (use --force to overwrite)", name)
			}
		}
	}

	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	measurementsPath := path.Join(dir, MeasurementsFilename)
	f, err := fs.Create(measurementsPath)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(RequiredColumns); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	return afero.WriteFile(fs, path.Join(dir, UpdatesFilename), []byte{}, 0o644)
}
