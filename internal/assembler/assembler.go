// Package assembler wires the resolver, splitter, timeline, and implied
// packages together into the single reassembly pipeline that turns raw
// transaction rows and parsed DSL commands into the final dataset.
package assembler

import (
	"sort"

	"github.com/canopyledger/census/internal/catalog"
	"github.com/canopyledger/census/internal/implied"
	"github.com/canopyledger/census/internal/resolver"
	"github.com/canopyledger/census/internal/selector"
	"github.com/canopyledger/census/internal/timeline"
	"github.com/canopyledger/census/internal/types"
)

// cloneRaw deep-copies row but discards any previously derived tree_uid
// or public_tag, so reassembly always starts from field-level identity.
func cloneRaw(row types.MeasurementRow) types.MeasurementRow {
	clone := row.Clone()
	clone.TreeUID = nil
	clone.PublicTag = nil
	return clone
}

// Assemble runs the full reassembly pipeline: resolve tree identity,
// assign tree_uids, apply retroactive splits, apply property and
// primary-tag timelines, append implied-absence rows, and return the
// dataset sorted by (date, site, plot, tag, row_number).
func Assemble(rawRows []types.MeasurementRow, commands []types.Command, cat *catalog.Catalog, dropAfterAbsentSurveys int) []types.MeasurementRow {
	measurements := make([]types.MeasurementRow, len(rawRows))
	for i, row := range rawRows {
		measurements[i] = cloneRaw(row)
	}

	r := resolver.Build(measurements, commands)
	resolver.AssignTreeUIDs(measurements, r)

	var splitCommands []types.Command
	for _, cmd := range commands {
		if cmd.Kind == types.CommandSplit {
			splitCommands = append(splitCommands, cmd)
		}
	}
	selector.ApplySplits(measurements, splitCommands, r, cat)

	var updateCommands []types.Command
	for _, cmd := range commands {
		if cmd.Kind == types.CommandUpdate {
			updateCommands = append(updateCommands, cmd)
		}
	}
	propertyTimelines := timeline.BuildPropertyTimelines(updateCommands, r)
	timeline.ApplyProperties(measurements, propertyTimelines)

	var aliasCommands []types.Command
	for _, cmd := range commands {
		if cmd.Kind == types.CommandAlias {
			aliasCommands = append(aliasCommands, cmd)
		}
	}
	primaryTimelines := timeline.BuildPrimaryTimelines(aliasCommands, r)
	timeline.ApplyPrimaryTags(measurements, primaryTimelines)

	impliedRows := implied.Generate(measurements, cat, dropAfterAbsentSurveys)
	dataset := append(measurements, impliedRows...)

	sort.SliceStable(dataset, func(i, j int) bool {
		a, b := dataset[i], dataset[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.Site != b.Site {
			return a.Site < b.Site
		}
		if a.Plot != b.Plot {
			return a.Plot < b.Plot
		}
		if a.Tag != b.Tag {
			return a.Tag < b.Tag
		}
		return a.RowNumber < b.RowNumber
	})

	return dataset
}
