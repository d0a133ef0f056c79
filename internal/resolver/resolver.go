// Package resolver implements the bitemporal tag-timeline resolver:
// for every (site, plot, tag) ever seen, a time-indexed mapping to the
// current tree_uid, built from alias and split commands in effective
// date order.
package resolver

import (
	"sort"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/canopyledger/census/internal/hashid"
	"github.com/canopyledger/census/internal/types"
)

// Timeline is a sorted sequence of (date, tree_uid) bindings for a
// single tag, with a base entry at -infinity so resolve always finds
// an answer.
type Timeline struct {
	dates []time.Time
	uids  []string
}

var negInfinity = time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC)

// NewTimeline returns a timeline whose base entry is baseTreeUID.
func NewTimeline(baseTreeUID string) *Timeline {
	return &Timeline{dates: []time.Time{negInfinity}, uids: []string{baseTreeUID}}
}

// Bind inserts or replaces the entry at date d. An entry already
// present at exactly d is overwritten (last-in-stream wins at the same
// date); see the resolver's ordering invariant for why a genuine
// conflict never reaches this silently.
func (t *Timeline) Bind(d time.Time, treeUID string) {
	idx := sort.Search(len(t.dates), func(i int) bool { return t.dates[i].After(d) })
	if idx > 0 && t.dates[idx-1].Equal(d) {
		t.uids[idx-1] = treeUID
		return
	}
	t.dates = append(t.dates, time.Time{})
	copy(t.dates[idx+1:], t.dates[idx:])
	t.dates[idx] = d

	t.uids = append(t.uids, "")
	copy(t.uids[idx+1:], t.uids[idx:])
	t.uids[idx] = treeUID
}

// Resolve returns the tree_uid in effect at date d: the entry with the
// greatest date <= d.
func (t *Timeline) Resolve(d time.Time) string {
	idx := sort.Search(len(t.dates), func(i int) bool { return t.dates[i].After(d) }) - 1
	if idx < 0 {
		idx = 0
	}
	return t.uids[idx]
}

// Resolver maps (site, plot, tag) keys to their Timeline.
type Resolver struct {
	tags *orderedmap.OrderedMap[types.SpatialKey, *Timeline]
}

// New returns an empty resolver.
func New() *Resolver {
	return &Resolver{tags: orderedmap.New[types.SpatialKey, *Timeline]()}
}

// EnsureTag lazily creates a timeline for key, if one doesn't already
// exist, seeded with the UUIDv5-derived base tree identity.
func (r *Resolver) EnsureTag(key types.SpatialKey) {
	if _, ok := r.tags.Get(key); !ok {
		r.tags.Set(key, NewTimeline(hashid.TreeUIDForKey(key)))
	}
}

// Bind records that key resolves to treeUID from date d onward.
func (r *Resolver) Bind(key types.SpatialKey, d time.Time, treeUID string) {
	r.EnsureTag(key)
	tl, _ := r.tags.Get(key)
	tl.Bind(d, treeUID)
}

// Resolve returns the tree_uid key resolves to at date d.
func (r *Resolver) Resolve(key types.SpatialKey, d time.Time) string {
	r.EnsureTag(key)
	tl, _ := r.tags.Get(key)
	return tl.Resolve(d)
}

// RegisterCommands ensures a timeline exists for every tag referenced
// by the command stream (alias targets, split targets, and any
// tag-based tree_ref), so later resolution never hits an
// un-registered key.
func (r *Resolver) RegisterCommands(commands []types.Command) {
	for _, cmd := range commands {
		switch cmd.Kind {
		case types.CommandAlias:
			r.EnsureTag(cmd.Alias.Target.Key())
			if !cmd.Alias.Tree.IsUUID() {
				r.EnsureTag(cmd.Alias.Tree.Tag().Key())
			}
		case types.CommandSplit:
			r.EnsureTag(cmd.Split.Target.Key())
		}
	}
}

// Build constructs a fully bound resolver from the raw measurement rows
// and the (already default-dated) command stream: every spatial key is
// registered, then Alias commands bind their target tag to the tree
// resolved from their tree_ref at the effective date (in ascending
// effective-date order), then Split commands bind their target tag to
// a brand-new tree identity (also in ascending effective-date order).
func Build(rows []types.MeasurementRow, commands []types.Command) *Resolver {
	r := New()
	for _, row := range rows {
		r.EnsureTag(row.SpatialKey())
	}
	r.RegisterCommands(commands)

	aliasCmds := make([]types.Command, 0)
	splitCmds := make([]types.Command, 0)
	for _, cmd := range commands {
		switch cmd.Kind {
		case types.CommandAlias:
			aliasCmds = append(aliasCmds, cmd)
		case types.CommandSplit:
			splitCmds = append(splitCmds, cmd)
		}
	}
	sort.SliceStable(aliasCmds, func(i, j int) bool {
		return effectiveBefore(aliasCmds[i].Alias.EffectiveDate, aliasCmds[j].Alias.EffectiveDate)
	})
	sort.SliceStable(splitCmds, func(i, j int) bool {
		return effectiveBefore(splitCmds[i].Split.EffectiveDate, splitCmds[j].Split.EffectiveDate)
	})

	for _, cmd := range aliasCmds {
		if cmd.Alias.EffectiveDate == nil {
			continue
		}
		treeUID := resolveTreeRef(r, cmd.Alias.Tree, *cmd.Alias.EffectiveDate)
		r.Bind(cmd.Alias.Target.Key(), *cmd.Alias.EffectiveDate, treeUID)
	}

	for _, cmd := range splitCmds {
		if cmd.Split.EffectiveDate == nil {
			continue
		}
		r.Bind(cmd.Split.Target.Key(), *cmd.Split.EffectiveDate, hashid.TreeUIDForKey(cmd.Split.Target.Key()))
	}

	return r
}

// AssignTreeUIDs resolves and fills in TreeUID for every row, per the
// row's own (site, plot, tag) and date.
func AssignTreeUIDs(rows []types.MeasurementRow, r *Resolver) {
	for i := range rows {
		uid := r.Resolve(rows[i].SpatialKey(), rows[i].Date)
		rows[i].TreeUID = &uid
	}
}

func resolveTreeRef(r *Resolver, ref types.TreeRef, defaultDate time.Time) string {
	if ref.IsUUID() {
		return ref.UUID()
	}
	tag := ref.Tag()
	when := defaultDate
	if tag.At != nil {
		when = *tag.At
	}
	return r.Resolve(tag.Key(), when)
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
