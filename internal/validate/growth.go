package validate

import (
	"fmt"

	"github.com/canopyledger/census/internal/catalog"
	"github.com/canopyledger/census/internal/config"
	"github.com/canopyledger/census/internal/types"
)

type treeSurveyRecord struct {
	surveyID string
	maxDBHMM *int
}

type treeKey struct {
	Site, Plot, Tag string
}

// Growth validates DBH change across consecutive surveys for each
// (site, plot, tag), flagging jumps that exceed the warning or error
// thresholds. Grouping is by literal spatial key, not tree_uid — the
// same grouping the original uses, independent of alias resolution.
func Growth(rows []types.MeasurementRow, cat *catalog.Catalog, b *config.Bundle) []types.ValidationIssue {
	history := buildTreeHistory(rows, cat)
	orderedSurveyIDs := cat.OrderedSurveys()

	warnPct := b.Validation.DBHPctWarn
	warnAbs := b.Validation.DBHAbsFloorWarnMM
	errPct := b.Validation.DBHPctError
	errAbs := b.Validation.DBHAbsFloorErrorMM

	var issues []types.ValidationIssue
	for key, bySurvey := range history {
		sorted := sortHistory(bySurvey, orderedSurveyIDs)
		var previous *treeSurveyRecord
		for i := range sorted {
			record := &sorted[i]
			if previous == nil {
				previous = record
				continue
			}
			if previous.maxDBHMM == nil || record.maxDBHMM == nil {
				previous = record
				continue
			}
			delta := *record.maxDBHMM - *previous.maxDBHMM
			if delta < 0 {
				delta = -delta
			}
			if delta == 0 {
				previous = record
				continue
			}
			denom := *previous.maxDBHMM
			if *record.maxDBHMM > denom {
				denom = *record.maxDBHMM
			}
			pctChange := float64(delta) / float64(denom)
			location := fmt.Sprintf("growth:%s/%s/%s:%s", key.Site, key.Plot, key.Tag, record.surveyID)

			switch {
			case pctChange >= errPct && delta >= errAbs:
				issues = append(issues, types.ValidationIssue{
					Code: "E_DBH_GROWTH_ERROR", Severity: types.SeverityError,
					Message: fmt.Sprintf("dbh change %dmm (%.2f%%) between %s and %s exceeds error threshold",
						delta, pctChange*100, previous.surveyID, record.surveyID),
					Location: location,
				})
			case pctChange >= warnPct && delta >= warnAbs:
				issues = append(issues, types.ValidationIssue{
					Code: "W_DBH_GROWTH_WARN", Severity: types.SeverityWarning,
					Message: fmt.Sprintf("dbh change %dmm (%.2f%%) between %s and %s exceeds warning threshold",
						delta, pctChange*100, previous.surveyID, record.surveyID),
					Location: location,
				})
			}
			previous = record
		}
	}

	return issues
}

func buildTreeHistory(rows []types.MeasurementRow, cat *catalog.Catalog) map[treeKey]map[string]treeSurveyRecord {
	history := map[treeKey]map[string]treeSurveyRecord{}
	for _, row := range rows {
		surveyID, ok := cat.SurveyForDate(row.Date)
		if !ok {
			continue
		}
		key := treeKey{Site: row.Site, Plot: row.Plot, Tag: row.Tag}
		bySurvey, ok := history[key]
		if !ok {
			bySurvey = map[string]treeSurveyRecord{}
			history[key] = bySurvey
		}
		existing, ok := bySurvey[surveyID]
		if !ok {
			bySurvey[surveyID] = treeSurveyRecord{surveyID: surveyID, maxDBHMM: row.DBHMM}
			continue
		}
		if row.DBHMM != nil {
			if existing.maxDBHMM == nil || *row.DBHMM > *existing.maxDBHMM {
				bySurvey[surveyID] = treeSurveyRecord{surveyID: surveyID, maxDBHMM: row.DBHMM}
			}
		}
	}
	return history
}

func sortHistory(bySurvey map[string]treeSurveyRecord, orderedSurveyIDs []string) []treeSurveyRecord {
	var out []treeSurveyRecord
	for _, id := range orderedSurveyIDs {
		if rec, ok := bySurvey[id]; ok {
			out = append(out, rec)
		}
	}
	return out
}
