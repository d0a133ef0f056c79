package dsl

import (
	"fmt"
	"sort"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/canopyledger/census/internal/types"
)

// AliasBinding is one accumulated alias assignment for a tag.
type AliasBinding struct {
	Tag           types.TagRef
	Tree          types.TreeRef
	EffectiveDate *time.Time
	Primary       bool
	Note          string
}

// PrimaryBinding is one accumulated primary-tag assignment for a tree.
type PrimaryBinding struct {
	TreeKey       string
	Tag           types.TagRef
	EffectiveDate *time.Time
}

// State accumulates alias, update, split, and primary bindings from a
// command stream, deduplicating by structural signature so replaying
// an identical stream is a no-op, and raising AliasOverlap /
// PrimaryConflict for genuine same-date contradictions. Insertion
// order is preserved per key via an ordered map, matching the
// insertion-stable-map guidance for components where output order
// matters.
type State struct {
	Aliases            *orderedmap.OrderedMap[types.SpatialKey, []AliasBinding]
	aliasSignatures    map[uint64]bool
	PrimaryAssignments *orderedmap.OrderedMap[string, []PrimaryBinding]
	primarySignatures  map[uint64]bool
	Updates            *orderedmap.OrderedMap[string, []*types.UpdateCommand]
	updateSignatures   map[uint64]bool
	Splits             []*types.SplitCommand
	splitSignatures    map[uint64]bool
}

// NewState returns an empty applier state.
func NewState() *State {
	return &State{
		Aliases:            orderedmap.New[types.SpatialKey, []AliasBinding](),
		aliasSignatures:    map[uint64]bool{},
		PrimaryAssignments: orderedmap.New[string, []PrimaryBinding](),
		primarySignatures:  map[uint64]bool{},
		Updates:            orderedmap.New[string, []*types.UpdateCommand](),
		updateSignatures:   map[uint64]bool{},
		splitSignatures:    map[uint64]bool{},
	}
}

// Apply applies a single command, mutating state in place.
func (s *State) Apply(cmd types.Command) error {
	switch cmd.Kind {
	case types.CommandAlias:
		return s.applyAlias(cmd)
	case types.CommandUpdate:
		return s.applyUpdate(cmd)
	case types.CommandSplit:
		return s.applySplit(cmd)
	default:
		return fmt.Errorf("unsupported command kind %q", cmd.Kind)
	}
}

// ApplyMany applies every command in order, stopping at the first
// semantic conflict.
func (s *State) ApplyMany(commands []types.Command) error {
	for _, cmd := range commands {
		if err := s.Apply(cmd); err != nil {
			return err
		}
	}
	return nil
}

func (s *State) applyAlias(cmd types.Command) error {
	sig, err := Signature(cmd)
	if err != nil {
		return err
	}
	if s.aliasSignatures[sig] {
		return nil
	}

	key := cmd.Alias.Target.Key()
	bindings, _ := s.Aliases.Get(key)

	for _, existing := range bindings {
		sameTree := treeRefKey(existing.Tree) == treeRefKey(cmd.Alias.Tree)
		sameDate := equalDatePtr(existing.EffectiveDate, cmd.Alias.EffectiveDate)
		if sameTree && sameDate {
			// Identical logical binding; nothing else to do, but still
			// register primary below and mark the signature seen.
			s.aliasSignatures[sig] = true
			if cmd.Alias.Primary {
				return s.registerPrimary(cmd)
			}
			return nil
		}
		if sameDate && !sameTree {
			return &SemanticError{
				Line:    cmd.Line,
				Code:    "E_ALIAS_OVERLAP",
				Message: fmt.Sprintf("alias for %s conflicts with existing binding at %s", cmd.Alias.Target.String(), displayDate(cmd.Alias.EffectiveDate)),
			}
		}
	}

	bindings = append(bindings, AliasBinding{
		Tag:           cmd.Alias.Target,
		Tree:          cmd.Alias.Tree,
		EffectiveDate: cmd.Alias.EffectiveDate,
		Primary:       cmd.Alias.Primary,
		Note:          cmd.Alias.Note,
	})
	sort.SliceStable(bindings, func(i, j int) bool {
		return effectiveSortLess(bindings[i].EffectiveDate, bindings[j].EffectiveDate)
	})
	s.Aliases.Set(key, bindings)
	s.aliasSignatures[sig] = true

	if cmd.Alias.Primary {
		return s.registerPrimary(cmd)
	}
	return nil
}

func (s *State) registerPrimary(cmd types.Command) error {
	treeKey := treeRefKey(cmd.Alias.Tree)
	sig, err := hashPrimarySignature(treeKey, cmd.Alias.Target.Key(), cmd.Alias.EffectiveDate)
	if err != nil {
		return err
	}
	if s.primarySignatures[sig] {
		return nil
	}

	assignments, _ := s.PrimaryAssignments.Get(treeKey)
	for _, existing := range assignments {
		if equalDatePtr(existing.EffectiveDate, cmd.Alias.EffectiveDate) && existing.Tag.Key() != cmd.Alias.Target.Key() {
			return &SemanticError{
				Line: cmd.Line,
				Code: "E_PRIMARY_DUPLICATE_AT_DATE",
				Message: fmt.Sprintf("PRIMARY for tree %s conflicts with tag %s already primary at %s",
					cmd.Alias.Tree.String(), existing.Tag.String(), displayDate(existing.EffectiveDate)),
			}
		}
	}

	assignments = append(assignments, PrimaryBinding{
		TreeKey:       treeKey,
		Tag:           cmd.Alias.Target,
		EffectiveDate: cmd.Alias.EffectiveDate,
	})
	sort.SliceStable(assignments, func(i, j int) bool {
		return effectiveSortLess(assignments[i].EffectiveDate, assignments[j].EffectiveDate)
	})
	s.PrimaryAssignments.Set(treeKey, assignments)
	s.primarySignatures[sig] = true
	return nil
}

func (s *State) applyUpdate(cmd types.Command) error {
	sig, err := Signature(cmd)
	if err != nil {
		return err
	}
	if s.updateSignatures[sig] {
		return nil
	}
	treeKey := treeRefKey(cmd.Update.Tree)
	entries, _ := s.Updates.Get(treeKey)
	entries = append(entries, cmd.Update)
	sort.SliceStable(entries, func(i, j int) bool {
		return effectiveSortLess(entries[i].EffectiveDate, entries[j].EffectiveDate)
	})
	s.Updates.Set(treeKey, entries)
	s.updateSignatures[sig] = true
	return nil
}

func (s *State) applySplit(cmd types.Command) error {
	sig, err := Signature(cmd)
	if err != nil {
		return err
	}
	if s.splitSignatures[sig] {
		return nil
	}
	s.Splits = append(s.Splits, cmd.Split)
	s.splitSignatures[sig] = true
	return nil
}

// SemanticError is a DSL semantic conflict (AliasOverlap or
// PrimaryConflict), convertible into a types.ValidationIssue.
type SemanticError struct {
	Line    int
	Code    string
	Message string
}

func (e *SemanticError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

// Issue converts a semantic error into a located validation issue.
func (e *SemanticError) Issue() types.ValidationIssue {
	return types.ValidationIssue{
		Code:     e.Code,
		Severity: types.SeverityError,
		Message:  e.Message,
		Location: fmt.Sprintf("line %d", e.Line),
	}
}

func equalDatePtr(a, b *time.Time) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return a.Equal(*b)
}

func effectiveSortLess(a, b *time.Time) bool {
	aZero, bZero := a == nil, b == nil
	if aZero && bZero {
		return false
	}
	if aZero {
		return true
	}
	if bZero {
		return false
	}
	return a.Before(*b)
}

func displayDate(d *time.Time) string {
	if d == nil {
		return "unspecified"
	}
	return d.Format(dateLayout)
}
