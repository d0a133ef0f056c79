// Package timeline implements the per-tree property timeline (field
// assignments from UPDATE commands) and primary-tag timeline (the
// public-facing tag from ALIAS ... PRIMARY commands), both resolved
// as-of a measurement's date.
package timeline

import (
	"sort"
	"time"

	"github.com/canopyledger/census/internal/resolver"
	"github.com/canopyledger/census/internal/types"
)

// PropertyRecord is one UPDATE's field assignments, effective from a
// date.
type PropertyRecord struct {
	EffectiveDate time.Time
	Fields        map[string]string
}

// PropertyTimeline is a per-tree sorted sequence of property records.
// Resolution accumulates every record with date <= query, later
// records overriding earlier ones per field (not whole-record).
type PropertyTimeline struct {
	records []PropertyRecord
}

// Add appends a record and keeps the timeline sorted by date.
func (t *PropertyTimeline) Add(d time.Time, fields map[string]string) {
	t.records = append(t.records, PropertyRecord{EffectiveDate: d, Fields: fields})
	sort.SliceStable(t.records, func(i, j int) bool { return t.records[i].EffectiveDate.Before(t.records[j].EffectiveDate) })
}

// Resolve returns the accumulated field map in effect at date when.
func (t *PropertyTimeline) Resolve(when time.Time) map[string]string {
	result := map[string]string{}
	for _, rec := range t.records {
		if rec.EffectiveDate.After(when) {
			break
		}
		for k, v := range rec.Fields {
			result[k] = v
		}
	}
	return result
}

// BuildPropertyTimelines resolves each UpdateCommand's tree_uid (at its
// effective date, or at the tree_ref tag's @-date if given) and
// accumulates its assignments onto that tree's timeline.
func BuildPropertyTimelines(commands []types.Command, r *resolver.Resolver) map[string]*PropertyTimeline {
	timelines := map[string]*PropertyTimeline{}
	for _, cmd := range commands {
		if cmd.Kind != types.CommandUpdate || cmd.Update.EffectiveDate == nil {
			continue
		}
		treeUID := resolveTreeUID(r, cmd.Update.Tree, *cmd.Update.EffectiveDate)
		tl, ok := timelines[treeUID]
		if !ok {
			tl = &PropertyTimeline{}
			timelines[treeUID] = tl
		}
		tl.Add(*cmd.Update.EffectiveDate, cmd.Update.Assignments)
	}
	return timelines
}

// ApplyProperties overwrites each row's recognised fields with the
// property timeline resolved at its date, leaving unmentioned fields
// untouched.
func ApplyProperties(rows []types.MeasurementRow, timelines map[string]*PropertyTimeline) {
	for i := range rows {
		row := &rows[i]
		if row.TreeUID == nil {
			continue
		}
		tl, ok := timelines[*row.TreeUID]
		if !ok {
			continue
		}
		fields := tl.Resolve(row.Date)
		if len(fields) == 0 {
			continue
		}
		if v, ok := fields["genus"]; ok {
			row.Genus = &v
		}
		if v, ok := fields["species"]; ok {
			row.Species = &v
		}
		if v, ok := fields["code"]; ok {
			row.Code = &v
		}
		if v, ok := fields["site"]; ok {
			row.Site = v
		}
		if v, ok := fields["plot"]; ok {
			row.Plot = v
		}
		if v, ok := fields["tag"]; ok {
			row.Tag = v
		}
	}
}

func resolveTreeUID(r *resolver.Resolver, ref types.TreeRef, when time.Time) string {
	if ref.IsUUID() {
		return ref.UUID()
	}
	tag := ref.Tag()
	resolveDate := when
	if tag.At != nil {
		resolveDate = *tag.At
	}
	return r.Resolve(tag.Key(), resolveDate)
}
