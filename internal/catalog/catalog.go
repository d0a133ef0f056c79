// Package catalog provides fast date-to-survey lookup over a sorted,
// non-overlapping sequence of closed survey windows.
package catalog

import (
	"sort"
	"time"

	"github.com/canopyledger/census/internal/config"
	"github.com/canopyledger/census/internal/types"
)

// Catalog is an immutable, sorted sequence of survey windows.
type Catalog struct {
	windows []types.SurveyWindow
	starts  []time.Time
	byID    map[string]types.SurveyWindow
}

// New builds a Catalog from windows, sorted by Start. Callers should
// have already validated non-overlap and monotonicity (config.Bundle
// does this at load time); New itself trusts its input.
func New(windows []types.SurveyWindow) *Catalog {
	sorted := append([]types.SurveyWindow(nil), windows...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	starts := make([]time.Time, len(sorted))
	byID := make(map[string]types.SurveyWindow, len(sorted))
	for i, w := range sorted {
		starts[i] = w.Start
		byID[w.ID] = w
	}
	return &Catalog{windows: sorted, starts: starts, byID: byID}
}

// FromConfig builds a Catalog from a loaded configuration bundle.
func FromConfig(b *config.Bundle) *Catalog {
	windows := make([]types.SurveyWindow, 0, len(b.Surveys.Surveys))
	for _, s := range b.Surveys.Surveys {
		windows = append(windows, types.SurveyWindow{ID: s.ID, Start: s.Start, End: s.End})
	}
	return New(windows)
}

// SurveyForDate returns the id of the rightmost window with start <= d,
// provided d also falls within that window's end; otherwise "", false.
func (c *Catalog) SurveyForDate(d time.Time) (string, bool) {
	idx := sort.Search(len(c.starts), func(i int) bool { return c.starts[i].After(d) }) - 1
	if idx < 0 || idx >= len(c.windows) {
		return "", false
	}
	w := c.windows[idx]
	if !d.Before(w.Start) && !d.After(w.End) {
		return w.ID, true
	}
	return "", false
}

// OrderedSurveys returns survey ids in start order.
func (c *Catalog) OrderedSurveys() []string {
	ids := make([]string, len(c.windows))
	for i, w := range c.windows {
		ids[i] = w.ID
	}
	return ids
}

// IndexOf returns the position of survey id in start order, or -1.
func (c *Catalog) IndexOf(id string) int {
	for i, w := range c.windows {
		if w.ID == id {
			return i
		}
	}
	return -1
}

// Get returns the window registered under id.
func (c *Catalog) Get(id string) (types.SurveyWindow, bool) {
	w, ok := c.byID[id]
	return w, ok
}

// Windows returns the full ordered window sequence.
func (c *Catalog) Windows() []types.SurveyWindow {
	return c.windows
}

// Len returns the total number of surveys in the catalog.
func (c *Catalog) Len() int { return len(c.windows) }
