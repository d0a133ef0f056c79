// Package derived computes tree-level outputs from an assembled
// dataset: the one-row-per-tree-per-survey view, and cross-survey retag
// suggestions for trees that disappear while a plausible replacement
// appears nearby.
package derived

import (
	"math"
	"sort"

	"github.com/canopyledger/census/internal/catalog"
	"github.com/canopyledger/census/internal/config"
	"github.com/canopyledger/census/internal/types"
)

// TreeViewRecord is one row of the per-tree-per-survey public view.
type TreeViewRecord struct {
	TreeUID   string
	SurveyID  string
	PublicTag string
	Site      string
	Plot      string
	Genus     *string
	Species   *string
	Code      *string
	Origin    types.Origin
}

type treeSurveyKey struct {
	TreeUID  string
	SurveyID string
}

// BuildTreeView picks, for each (tree_uid, survey_id) pair, the
// highest-priority row — preferring non-implied origin, then the
// latest date — and projects it into a public-facing record. The
// emitted public_tag is the row's own field tag, matching how the
// original view is built: it is not the resolved primary tag.
func BuildTreeView(rows []types.MeasurementRow, cat *catalog.Catalog) []TreeViewRecord {
	selected := map[treeSurveyKey]types.MeasurementRow{}
	var order []treeSurveyKey

	for _, row := range rows {
		if row.TreeUID == nil {
			continue
		}
		surveyID, ok := cat.SurveyForDate(row.Date)
		if !ok {
			continue
		}
		key := treeSurveyKey{TreeUID: *row.TreeUID, SurveyID: surveyID}
		current, seen := selected[key]
		if !seen {
			selected[key] = row
			order = append(order, key)
			continue
		}
		if higherPriority(row, current) {
			selected[key] = row
		}
	}

	records := make([]TreeViewRecord, 0, len(order))
	for _, key := range order {
		row := selected[key]
		records = append(records, TreeViewRecord{
			TreeUID:   key.TreeUID,
			SurveyID:  key.SurveyID,
			PublicTag: row.Tag,
			Site:      row.Site,
			Plot:      row.Plot,
			Genus:     row.Genus,
			Species:   row.Species,
			Code:      row.Code,
			Origin:    row.Origin,
		})
	}

	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.SurveyID != b.SurveyID {
			return a.SurveyID < b.SurveyID
		}
		if a.Site != b.Site {
			return a.Site < b.Site
		}
		if a.Plot != b.Plot {
			return a.Plot < b.Plot
		}
		return a.PublicTag < b.PublicTag
	})
	return records
}

// higherPriority reports whether candidate should replace current: a
// non-implied row always beats an implied one; among equally-implied
// rows the later date wins.
func higherPriority(candidate, current types.MeasurementRow) bool {
	candNonImplied := candidate.Origin != types.OriginImplied
	curNonImplied := current.Origin != types.OriginImplied
	if candNonImplied != curNonImplied {
		return candNonImplied
	}
	return candidate.Date.After(current.Date)
}

// RetagSuggestion proposes an ALIAS line that would unify a tree that
// disappeared in one survey with a new tree that appeared in the next,
// when their final/first diameters are close enough to plausibly be
// the same stem re-tagged in the field.
type RetagSuggestion struct {
	SurveyID           string
	Plot               string
	LostTreeUID        string
	LostPublicTag      string
	LostMaxDBHMM       int
	NewTreeUID         string
	NewPublicTag       string
	NewMaxDBHMM        int
	DeltaMM            int
	DeltaPct           float64
	SuggestedAliasLine string
}

// BuildRetagSuggestions compares each consecutive pair of surveys,
// proposing an alias between a tree last seen in the earlier survey and
// a brand-new tree first seen in the later one, when they sit in the
// same site/plot and their dbh_mm values are within retag_delta_pct of
// each other.
func BuildRetagSuggestions(rows []types.MeasurementRow, cat *catalog.Catalog, b *config.Bundle) []RetagSuggestion {
	surveys := cat.OrderedSurveys()
	if len(surveys) < 2 {
		return nil
	}

	thresholdDBH := b.Validation.NewTreeFlagMinDBHMM
	deltaPct := b.Validation.RetagDeltaPct

	byTree := map[string]map[string][]types.MeasurementRow{}
	firstSeen := map[string]string{}

	for _, row := range rows {
		if row.TreeUID == nil || row.Origin == types.OriginImplied {
			continue
		}
		surveyID, ok := cat.SurveyForDate(row.Date)
		if !ok {
			continue
		}
		bySurvey, exists := byTree[*row.TreeUID]
		if !exists {
			bySurvey = map[string][]types.MeasurementRow{}
			byTree[*row.TreeUID] = bySurvey
		}
		bySurvey[surveyID] = append(bySurvey[surveyID], row)
		if _, ok := firstSeen[*row.TreeUID]; !ok {
			firstSeen[*row.TreeUID] = surveyID
		}
	}

	var suggestions []RetagSuggestion

	for idx := 1; idx < len(surveys); idx++ {
		prevSurvey := surveys[idx-1]
		currSurvey := surveys[idx]
		currWindow, _ := cat.Get(currSurvey)

		type lostEntry struct {
			treeUID string
			row     types.MeasurementRow
		}
		type newEntry struct {
			treeUID string
			row     types.MeasurementRow
		}
		var lostEntries []lostEntry
		var newEntries []newEntry

		for treeUID, bySurvey := range byTree {
			prevRows := bySurvey[prevSurvey]
			currRows := bySurvey[currSurvey]

			if len(prevRows) > 0 && len(currRows) == 0 {
				lostEntries = append(lostEntries, lostEntry{treeUID: treeUID, row: maxByDBHHealth(prevRows)})
			}
			if len(prevRows) == 0 && len(currRows) > 0 && firstSeen[treeUID] == currSurvey {
				newRow := maxByDBHHealth(currRows)
				if dbhOf(newRow) >= thresholdDBH {
					newEntries = append(newEntries, newEntry{treeUID: treeUID, row: newRow})
				}
			}
		}

		for _, lost := range lostEntries {
			for _, nw := range newEntries {
				if lost.row.Site != nw.row.Site || lost.row.Plot != nw.row.Plot {
					continue
				}
				lostDBH := dbhOf(lost.row)
				newDBH := dbhOf(nw.row)
				if lostDBH == 0 || newDBH == 0 {
					continue
				}
				delta := lostDBH - newDBH
				if delta < 0 {
					delta = -delta
				}
				maxDBH := lostDBH
				if newDBH > maxDBH {
					maxDBH = newDBH
				}
				allowed := deltaPct * float64(maxDBH)
				if float64(delta) > allowed {
					continue
				}

				suggestions = append(suggestions, RetagSuggestion{
					SurveyID:      currSurvey,
					Plot:          nw.row.Site + "/" + nw.row.Plot,
					LostTreeUID:   lost.treeUID,
					LostPublicTag: lost.row.Tag,
					LostMaxDBHMM:  lostDBH,
					NewTreeUID:    nw.treeUID,
					NewPublicTag:  nw.row.Tag,
					NewMaxDBHMM:   newDBH,
					DeltaMM:       delta,
					DeltaPct:      math.Round(float64(delta)/float64(maxDBH)*10000) / 10000,
					SuggestedAliasLine: "ALIAS " + nw.row.Site + "/" + nw.row.Plot + "/" + nw.row.Tag +
						" TO " + lost.treeUID + " PRIMARY EFFECTIVE " + currWindow.Start.Format("2006-01-02"),
				})
			}
		}
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		a, b := suggestions[i], suggestions[j]
		if a.SurveyID != b.SurveyID {
			return a.SurveyID < b.SurveyID
		}
		if a.Plot != b.Plot {
			return a.Plot < b.Plot
		}
		return a.NewPublicTag < b.NewPublicTag
	})
	return suggestions
}

func maxByDBHHealth(rows []types.MeasurementRow) types.MeasurementRow {
	best := rows[0]
	bestDBH, bestHealth := dbhOf(best), healthOf(best)
	for _, r := range rows[1:] {
		dbh, health := dbhOf(r), healthOf(r)
		if dbh > bestDBH || (dbh == bestDBH && health > bestHealth) {
			best, bestDBH, bestHealth = r, dbh, health
		}
	}
	return best
}

func dbhOf(r types.MeasurementRow) int {
	if r.DBHMM == nil {
		return 0
	}
	return *r.DBHMM
}

func healthOf(r types.MeasurementRow) int {
	if r.Health == nil {
		return 0
	}
	return *r.Health
}
