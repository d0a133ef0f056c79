// Package txn loads a transaction directory — measurements.csv,
// updates.tdl, and survey_meta.toml — into structured, normalized data
// ready for resolver/assembler consumption.
package txn

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/canopyledger/census/internal/censuserr"
	"github.com/canopyledger/census/internal/types"
)

// RequiredColumns lists the measurements.csv columns every transaction
// must carry.
var RequiredColumns = []string{"site", "plot", "tag", "date", "dbh_mm", "health", "standing", "notes"}

// NormalizationConfig parameterises row normalization.
type NormalizationConfig struct {
	Rounding      string // only "half_up" is supported
	DefaultOrigin string
}

// DefaultNormalizationConfig matches the original's dataclass defaults.
func DefaultNormalizationConfig() NormalizationConfig {
	return NormalizationConfig{Rounding: "half_up", DefaultOrigin: "field"}
}

// LoadMeasurements reads and normalizes measurement rows from path.
func LoadMeasurements(fs afero.Fs, path string, cfg NormalizationConfig) ([]types.MeasurementRow, error) {
	exists, err := afero.Exists(fs, path)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, censuserr.TransactionFormatf(path, "measurements.csv not found")
	}

	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.ReuseRecord = false
	header, err := reader.Read()
	if err == io.EOF {
		return nil, censuserr.TransactionFormatf(path, "missing header row")
	}
	if err != nil {
		return nil, censuserr.TransactionFormatf(path, "malformed CSV: %v", err)
	}
	if err := validateRequiredColumns(path, header); err != nil {
		return nil, err
	}

	var rows []types.MeasurementRow
	rowNumber := 1
	for {
		rowNumber++
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, censuserr.TransactionFormatf(path, "malformed CSV: %v", err)
		}
		raw := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				raw[col] = record[i]
			} else {
				raw[col] = ""
			}
		}
		row, err := normalizeRow(path, rowNumber, raw, cfg)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func validateRequiredColumns(path string, header []string) error {
	present := map[string]bool{}
	for _, c := range header {
		present[c] = true
	}
	var missing []string
	for _, c := range RequiredColumns {
		if !present[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return censuserr.TransactionFormatf(path, "missing required columns: %s", strings.Join(missing, ", "))
	}
	return nil
}

func normalizeRow(path string, rowNumber int, raw map[string]string, cfg NormalizationConfig) (types.MeasurementRow, error) {
	require := func(field string) (string, error) {
		v := strings.TrimSpace(raw[field])
		if v == "" {
			return "", censuserr.TransactionDataf(path, rowNumber, field, "value required")
		}
		return v, nil
	}
	optional := func(field string) string {
		return strings.TrimSpace(raw[field])
	}

	site, err := require("site")
	if err != nil {
		return types.MeasurementRow{}, err
	}
	plot, err := require("plot")
	if err != nil {
		return types.MeasurementRow{}, err
	}
	tag, err := require("tag")
	if err != nil {
		return types.MeasurementRow{}, err
	}
	dateValue, err := require("date")
	if err != nil {
		return types.MeasurementRow{}, err
	}
	observedDate, parseErr := time.Parse("2006-01-02", dateValue)
	if parseErr != nil {
		return types.MeasurementRow{}, censuserr.TransactionDataf(path, rowNumber, "date", "invalid date '%s'", dateValue)
	}

	dbhMM, err := parseDBH(path, rowNumber, optional("dbh_mm"))
	if err != nil {
		return types.MeasurementRow{}, err
	}

	health, healthFlags, err := parseHealth(path, rowNumber, optional("health"), cfg)
	if err != nil {
		return types.MeasurementRow{}, err
	}

	standing, err := parseOptionalBool(path, rowNumber, "standing", optional("standing"))
	if err != nil {
		return types.MeasurementRow{}, err
	}

	notes := optional("notes")
	genus := nilIfEmpty(optional("genus"))
	species := nilIfEmpty(optional("species"))
	code := nilIfEmpty(optional("code"))

	originValue := optional("origin")
	if originValue == "" {
		originValue = cfg.DefaultOrigin
	}
	originValue = strings.ToLower(originValue)
	switch types.Origin(originValue) {
	case types.OriginField, types.OriginAI, types.OriginImplied:
	default:
		return types.MeasurementRow{}, censuserr.TransactionDataf(path, rowNumber, "origin", "invalid origin '%s'", originValue)
	}

	flags := append([]string(nil), healthFlags...)

	var aliveFlag *bool
	if aliveRaw, ok := raw["alive"]; ok {
		trimmed := strings.TrimSpace(aliveRaw)
		if trimmed != "" {
			parsed, err := parseOptionalBool(path, rowNumber, "alive", trimmed)
			if err != nil {
				return types.MeasurementRow{}, err
			}
			aliveFlag = parsed
		}
	}

	// alive_override: a living tree recorded at health 0 is bumped to 1,
	// since "alive" and "health==0" contradict each other in the source
	// data.
	if aliveFlag != nil && *aliveFlag && health != nil && *health == 0 {
		one := 1
		health = &one
		flags = append(flags, "alive_override")
	}

	rawCopy := make(map[string]string, len(raw))
	for k, v := range raw {
		rawCopy[k] = v
	}

	return types.MeasurementRow{
		RowNumber: rowNumber,
		Site:      site,
		Plot:      plot,
		Tag:       tag,
		Date:      observedDate,
		DBHMM:     dbhMM,
		Health:    health,
		Standing:  standing,
		Notes:     notes,
		Genus:     genus,
		Species:   species,
		Code:      code,
		Origin:    types.Origin(originValue),
		Flags:     flags,
		Raw:       rawCopy,
	}, nil
}

func parseDBH(path string, row int, value string) (*int, error) {
	if value == "" || strings.ToUpper(value) == "NA" {
		return nil, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return nil, censuserr.TransactionDataf(path, row, "dbh_mm", "invalid integer '%s'", value)
	}
	return &n, nil
}

func parseHealth(path string, row int, value string, cfg NormalizationConfig) (*int, []string, error) {
	if value == "" {
		return nil, nil, nil
	}
	number, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, nil, censuserr.TransactionDataf(path, row, "health", "invalid numeric value '%s'", value)
	}
	if cfg.Rounding != "half_up" {
		return nil, nil, censuserr.TransactionDataf(path, row, "health", "unsupported rounding mode: %s", cfg.Rounding)
	}

	rounded := int(math.Floor(number + 0.5))
	var flags []string
	if float64(rounded) != number {
		flags = append(flags, "health_rounded")
	}

	clamped := rounded
	if clamped < 0 {
		clamped = 0
	}
	if clamped > 10 {
		clamped = 10
	}
	if clamped != rounded {
		flags = append(flags, "health_clamped")
	}

	return &clamped, flags, nil
}

func parseOptionalBool(path string, row int, column, value string) (*bool, error) {
	if value == "" {
		return nil, nil
	}
	lowered := strings.ToLower(value)
	switch lowered {
	case "true", "t", "1", "yes":
		v := true
		return &v, nil
	case "false", "f", "0", "no":
		v := false
		return &v, nil
	case "na", "null", "none":
		return nil, nil
	default:
		return nil, censuserr.TransactionDataf(path, row, column, "invalid boolean '%s'", value)
	}
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
