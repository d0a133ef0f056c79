package timeline

import (
	"sort"
	"time"

	"github.com/canopyledger/census/internal/resolver"
	"github.com/canopyledger/census/internal/types"
)

// PrimaryRecord is one ALIAS...PRIMARY binding, effective from a date.
type PrimaryRecord struct {
	EffectiveDate time.Time
	Tag           string
}

// PrimaryTimeline is a per-tree sorted sequence of public-facing tag
// assignments.
type PrimaryTimeline struct {
	records []PrimaryRecord
}

// Add appends a record and keeps the timeline sorted by date.
func (t *PrimaryTimeline) Add(d time.Time, tag string) {
	t.records = append(t.records, PrimaryRecord{EffectiveDate: d, Tag: tag})
	sort.SliceStable(t.records, func(i, j int) bool { return t.records[i].EffectiveDate.Before(t.records[j].EffectiveDate) })
}

// Resolve returns the tag in effect at date when, or "" if none has
// taken effect yet.
func (t *PrimaryTimeline) Resolve(when time.Time) string {
	var current string
	for _, rec := range t.records {
		if rec.EffectiveDate.After(when) {
			break
		}
		current = rec.Tag
	}
	return current
}

// BuildPrimaryTimelines resolves each primary-marked AliasCommand's
// tree at its effective date and accumulates the target tag onto that
// tree's primary timeline.
func BuildPrimaryTimelines(commands []types.Command, r *resolver.Resolver) map[string]*PrimaryTimeline {
	timelines := map[string]*PrimaryTimeline{}
	for _, cmd := range commands {
		if cmd.Kind != types.CommandAlias || !cmd.Alias.Primary || cmd.Alias.EffectiveDate == nil {
			continue
		}
		treeUID := r.Resolve(cmd.Alias.Target.Key(), *cmd.Alias.EffectiveDate)
		tl, ok := timelines[treeUID]
		if !ok {
			tl = &PrimaryTimeline{}
			timelines[treeUID] = tl
		}
		tl.Add(*cmd.Alias.EffectiveDate, cmd.Alias.Target.Tag)
	}
	return timelines
}

// ApplyPrimaryTags sets each row's PublicTag from its tree's primary
// timeline resolved at the row's date, falling back to an earlier
// public_tag or the row's own field tag.
func ApplyPrimaryTags(rows []types.MeasurementRow, timelines map[string]*PrimaryTimeline) {
	for i := range rows {
		row := &rows[i]
		if row.TreeUID == nil {
			fallbackToFieldTag(row)
			continue
		}
		tl, ok := timelines[*row.TreeUID]
		if !ok {
			fallbackToFieldTag(row)
			continue
		}
		tag := tl.Resolve(row.Date)
		if tag != "" {
			row.PublicTag = &tag
			continue
		}
		fallbackToFieldTag(row)
	}
}

func fallbackToFieldTag(row *types.MeasurementRow) {
	if row.PublicTag != nil {
		return
	}
	tag := row.Tag
	row.PublicTag = &tag
}
