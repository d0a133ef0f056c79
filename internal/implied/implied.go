// Package implied generates synthetic "implied absence" rows for trees
// that stop appearing in the record for long enough that their absence
// itself becomes a data point.
package implied

import (
	"github.com/canopyledger/census/internal/catalog"
	"github.com/canopyledger/census/internal/types"
)

// Generate emits one implied row per tree_uid whose most recent real
// observation is followed by at least dropAfter consecutive missing
// surveys. The row carries the most recent row's taxonomy, public_tag,
// and source_tx forward, dated to the start of the first missing
// survey, with dbh_mm unset, health 0, standing false, and
// origin "implied".
func Generate(rows []types.MeasurementRow, cat *catalog.Catalog, dropAfter int) []types.MeasurementRow {
	surveys := cat.Windows()
	if len(surveys) == 0 {
		return nil
	}

	type treeSurveys struct {
		lastRow   *types.MeasurementRow
		lastIndex int
	}
	tracked := map[string]*treeSurveys{}
	order := make([]string, 0)

	for i := range rows {
		row := &rows[i]
		if row.TreeUID == nil {
			continue
		}
		surveyID, ok := cat.SurveyForDate(row.Date)
		if !ok {
			continue
		}
		idx := cat.IndexOf(surveyID)
		if idx < 0 {
			continue
		}
		ts, seen := tracked[*row.TreeUID]
		if !seen {
			ts = &treeSurveys{lastIndex: -1}
			tracked[*row.TreeUID] = ts
			order = append(order, *row.TreeUID)
		}
		if idx > ts.lastIndex || (idx == ts.lastIndex && (ts.lastRow == nil || row.Date.After(ts.lastRow.Date))) {
			ts.lastIndex = idx
			ts.lastRow = row
		}
	}

	var implied []types.MeasurementRow
	for _, treeUID := range order {
		ts := tracked[treeUID]
		if ts.lastRow == nil {
			continue
		}
		trailingMissing := len(surveys) - (ts.lastIndex + 1)
		if trailingMissing < dropAfter {
			continue
		}

		impliedIndex := ts.lastIndex + 1
		survey := surveys[impliedIndex]

		last := ts.lastRow
		publicTag := last.Tag
		if last.PublicTag != nil {
			publicTag = *last.PublicTag
		}

		implied = append(implied, types.MeasurementRow{
			RowNumber: 0,
			Site:      last.Site,
			Plot:      last.Plot,
			Tag:       last.Tag,
			Date:      survey.Start,
			DBHMM:     nil,
			Health:    intp(0),
			Standing:  boolp(false),
			Notes:     "",
			Genus:     last.Genus,
			Species:   last.Species,
			Code:      last.Code,
			Origin:    types.OriginImplied,
			Flags:     nil,
			Raw:       map[string]string{},
			TreeUID:   strp(treeUID),
			PublicTag: &publicTag,
			SourceTx:  last.SourceTx,
		})
	}

	return implied
}

func intp(v int) *int       { return &v }
func boolp(v bool) *bool    { return &v }
func strp(v string) *string { return &v }
