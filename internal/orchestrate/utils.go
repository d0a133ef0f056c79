// Package orchestrate wires the loader, validators, assembler, and
// ledger together into the lint/submit/build/datasheets/versions
// workflows the CLI surface exposes.
package orchestrate

import (
	"time"

	"github.com/canopyledger/census/internal/catalog"
	"github.com/canopyledger/census/internal/censuserr"
	"github.com/canopyledger/census/internal/config"
	"github.com/canopyledger/census/internal/txn"
	"github.com/canopyledger/census/internal/types"
)

// DetermineDefaultEffectiveDate picks the EFFECTIVE date DSL commands
// fall back to when none is given: survey_meta.toml's survey_id (or
// its start override) if present, otherwise the single survey every
// measurement row in the transaction falls within. A transaction whose
// rows span more than one survey must date its commands explicitly.
func DetermineDefaultEffectiveDate(b *config.Bundle, data *txn.Data) (time.Time, error) {
	cat := catalog.FromConfig(b)

	if data.SurveyMeta != nil {
		surveyID, _ := data.SurveyMeta.Data["survey_id"].(string)
		if surveyID != "" {
			if window, found := cat.Get(surveyID); found {
				return window.Start, nil
			}
		}
		if start, ok := data.SurveyMeta.Data["start"].(string); ok && start != "" {
			d, err := time.Parse("2006-01-02", start)
			if err != nil {
				return time.Time{}, censuserr.TransactionDataf(txn.SurveyMetaFilename, 0, "start", "invalid start date %q", start)
			}
			return d, nil
		}
		if surveyID != "" {
			return time.Time{}, censuserr.TransactionDataf(txn.SurveyMetaFilename, 0, "survey_id", "survey_id %s not found in config and no start provided", surveyID)
		}
	}

	seen := map[string]bool{}
	for _, row := range data.Measurements {
		surveyID, ok := cat.SurveyForDate(row.Date)
		if !ok {
			return time.Time{}, censuserr.TransactionDataf(txn.MeasurementsFilename, row.RowNumber, "date",
				"measurement date %s does not map to a known survey", row.Date.Format("2006-01-02"))
		}
		seen[surveyID] = true
	}
	if len(seen) == 0 {
		return time.Time{}, censuserr.TransactionFormatf(data.Path, "cannot infer default EFFECTIVE date without measurements")
	}
	if len(seen) > 1 {
		return time.Time{}, censuserr.TransactionFormatf(data.Path, "transaction spans multiple surveys; specify EFFECTIVE dates explicitly")
	}
	var surveyID string
	for id := range seen {
		surveyID = id
	}
	window, _ := cat.Get(surveyID)
	return window.Start, nil
}

// WithDefaultEffective fills in EffectiveDate on every command that
// didn't specify one, leaving already-dated commands untouched.
func WithDefaultEffective(commands []types.Command, defaultDate time.Time) []types.Command {
	out := make([]types.Command, len(commands))
	for i, cmd := range commands {
		out[i] = cmd
		switch cmd.Kind {
		case types.CommandAlias:
			if cmd.Alias.EffectiveDate == nil {
				c := *cmd.Alias
				c.EffectiveDate = &defaultDate
				out[i].Alias = &c
			}
		case types.CommandUpdate:
			if cmd.Update.EffectiveDate == nil {
				c := *cmd.Update
				c.EffectiveDate = &defaultDate
				out[i].Update = &c
			}
		case types.CommandSplit:
			if cmd.Split.EffectiveDate == nil {
				c := *cmd.Split
				c.EffectiveDate = &defaultDate
				out[i].Split = &c
			}
		}
	}
	return out
}
