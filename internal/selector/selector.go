// Package selector evaluates a split's Selector against the current
// measurement rows of its source tree, retroactively reassigning the
// chosen historical rows to the new tree.
package selector

import (
	"sort"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/canopyledger/census/internal/catalog"
	"github.com/canopyledger/census/internal/resolver"
	"github.com/canopyledger/census/internal/types"
)

// View pairs a row with the survey it falls in, used only during
// selector evaluation.
type View struct {
	Row      *types.MeasurementRow
	SurveyID string
}

// ApplySplits applies every split command's selector (if any), in
// ascending effective-date order, mutating rows' TreeUID in place for
// every selected pre-effective-date row.
func ApplySplits(rows []types.MeasurementRow, commands []types.Command, r *resolver.Resolver, cat *catalog.Catalog) {
	splits := make([]*types.SplitCommand, 0)
	for _, cmd := range commands {
		if cmd.Kind == types.CommandSplit {
			splits = append(splits, cmd.Split)
		}
	}
	sort.SliceStable(splits, func(i, j int) bool {
		return effectiveBefore(splits[i].EffectiveDate, splits[j].EffectiveDate)
	})

	for _, split := range splits {
		if split.Selector == nil || split.EffectiveDate == nil {
			continue
		}
		applySelectorSplit(rows, split, r, cat)
	}
}

func applySelectorSplit(rows []types.MeasurementRow, cmd *types.SplitCommand, r *resolver.Resolver, cat *catalog.Catalog) {
	effDate := *cmd.EffectiveDate
	targetUID := r.Resolve(cmd.Target.Key(), effDate)
	sourceUID := resolveSourceUID(r, cmd, effDate)

	views := collectViews(rows, sourceUID, cat)
	selected := SelectViews(views, cmd.Selector)

	for _, v := range selected {
		if !v.Row.Date.Before(effDate) {
			continue
		}
		v.Row.TreeUID = &targetUID
	}
}

func resolveSourceUID(r *resolver.Resolver, cmd *types.SplitCommand, effDate time.Time) string {
	if cmd.Source.IsUUID() {
		return cmd.Source.UUID()
	}
	tag := cmd.Source.Tag()
	when := effDate
	if tag.At != nil {
		when = *tag.At
	}
	return r.Resolve(tag.Key(), when)
}

func collectViews(rows []types.MeasurementRow, treeUID string, cat *catalog.Catalog) []View {
	var views []View
	for i := range rows {
		if rows[i].TreeUID == nil || *rows[i].TreeUID != treeUID {
			continue
		}
		surveyID, ok := cat.SurveyForDate(rows[i].Date)
		if !ok {
			continue
		}
		views = append(views, View{Row: &rows[i], SurveyID: surveyID})
	}
	return views
}

// SelectViews applies a selector's date filter then strategy to views.
// Exported so validators/tests can exercise selection independent of
// mutation.
func SelectViews(views []View, sel *types.Selector) []View {
	filtered := filterByDate(views, sel.DateFilter)

	switch sel.Strategy {
	case types.SelectorAll:
		return filtered
	case types.SelectorLargest:
		if len(filtered) == 0 {
			return nil
		}
		return []View{maxDBH(filtered)}
	case types.SelectorSmallest:
		if len(filtered) == 0 {
			return nil
		}
		return []View{minDBH(filtered)}
	case types.SelectorRanks:
		return selectRanks(filtered, sel.Ranks)
	default:
		return nil
	}
}

func filterByDate(views []View, filter types.SelectorDateFilter) []View {
	if filter.Kind == types.DateFilterNone {
		return views
	}
	var out []View
	for _, v := range views {
		if filter.Matches(v.Row.Date) {
			out = append(out, v)
		}
	}
	return out
}

// dbhKey returns the (-dbh, -health, row_number) tuple used for
// tie-breaking: ascending order by this key puts the largest dbh
// (then largest health, then smallest row_number) first.
func dbhKey(v View) (int, int, int) {
	dbh := 0
	if v.Row.DBHMM != nil {
		dbh = *v.Row.DBHMM
	}
	health := 0
	if v.Row.Health != nil {
		health = *v.Row.Health
	}
	return -dbh, -health, v.Row.RowNumber
}

func lessDBHKey(a, b View) bool {
	ak1, ak2, ak3 := dbhKey(a)
	bk1, bk2, bk3 := dbhKey(b)
	if ak1 != bk1 {
		return ak1 < bk1
	}
	if ak2 != bk2 {
		return ak2 < bk2
	}
	return ak3 < bk3
}

// maxDBH returns the view with the largest dbh (ties broken by largest
// health, then smallest row_number) — the minimum by dbhKey.
func maxDBH(views []View) View {
	best := views[0]
	for _, v := range views[1:] {
		if lessDBHKey(v, best) {
			best = v
		}
	}
	return best
}

// minDBH returns the view with the smallest dbh (ties broken by
// smallest health, then largest row_number) — the maximum by dbhKey.
func minDBH(views []View) View {
	best := views[0]
	for _, v := range views[1:] {
		if lessDBHKey(best, v) {
			best = v
		}
	}
	return best
}

func selectRanks(views []View, ranks []int) []View {
	perSurvey := orderedmap.New[string, []View]()
	for _, v := range views {
		existing, _ := perSurvey.Get(v.SurveyID)
		existing = append(existing, v)
		perSurvey.Set(v.SurveyID, existing)
	}

	var result []View
	for pair := perSurvey.Oldest(); pair != nil; pair = pair.Next() {
		ordered := append([]View(nil), pair.Value...)
		sort.SliceStable(ordered, func(i, j int) bool { return lessDBHKey(ordered[i], ordered[j]) })
		for _, rank := range ranks {
			idx := rank - 1
			if idx >= 0 && idx < len(ordered) {
				result = append(result, ordered[idx])
			}
		}
	}
	return result
}

func effectiveBefore(a, b *time.Time) bool {
	if a == nil && b == nil {
		return false
	}
	if a == nil {
		return true
	}
	if b == nil {
		return false
	}
	return a.Before(*b)
}
