package txn

import (
	"path"

	"github.com/BurntSushi/toml"
	"github.com/spf13/afero"

	"github.com/canopyledger/census/internal/censuserr"
	"github.com/canopyledger/census/internal/dsl"
	"github.com/canopyledger/census/internal/types"
)

const (
	UpdatesFilename      = "updates.tdl"
	MeasurementsFilename = "measurements.csv"
	SurveyMetaFilename   = "survey_meta.toml"
)

// SurveyMeta is the freeform contents of a transaction's survey_meta.toml.
type SurveyMeta struct {
	Data map[string]any
}

// Data is one loaded transaction directory: its normalized
// measurements, parsed DSL commands, and optional survey metadata.
type Data struct {
	Path         string
	Measurements []types.MeasurementRow
	Commands     []types.Command
	SurveyMeta   *SurveyMeta
}

// Load reads a transaction directory's measurements.csv, updates.tdl,
// and survey_meta.toml.
func Load(fs afero.Fs, dir string, cfg NormalizationConfig) (*Data, error) {
	isDir, err := afero.DirExists(fs, dir)
	if err != nil {
		return nil, err
	}
	if !isDir {
		return nil, censuserr.TransactionFormatf(dir, "transaction directory not found")
	}

	measurements, err := LoadMeasurements(fs, path.Join(dir, MeasurementsFilename), cfg)
	if err != nil {
		return nil, err
	}

	commands, err := loadUpdates(fs, path.Join(dir, UpdatesFilename))
	if err != nil {
		return nil, err
	}

	meta, err := loadSurveyMeta(fs, path.Join(dir, SurveyMetaFilename))
	if err != nil {
		return nil, err
	}

	return &Data{Path: dir, Measurements: measurements, Commands: commands, SurveyMeta: meta}, nil
}

func loadUpdates(fs afero.Fs, p string) ([]types.Command, error) {
	exists, err := afero.Exists(fs, p)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	text, err := afero.ReadFile(fs, p)
	if err != nil {
		return nil, err
	}
	return dsl.Parse(p, string(text))
}

func loadSurveyMeta(fs afero.Fs, p string) (*SurveyMeta, error) {
	exists, err := afero.Exists(fs, p)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	raw, err := afero.ReadFile(fs, p)
	if err != nil {
		return nil, err
	}
	data := map[string]any{}
	if _, err := toml.Decode(string(raw), &data); err != nil {
		return nil, censuserr.TransactionFormatf(p, "invalid TOML (%v)", err)
	}
	return &SurveyMeta{Data: data}, nil
}
