package dsl

import (
	"errors"
	"testing"

	"github.com/canopyledger/census/internal/types"
)

func TestStateDedupesIdenticalReplay(t *testing.T) {
	text := `ALIAS BRNV/H4/508 TO BRNV/H4/112 PRIMARY EFFECTIVE 2020-06-15`
	commands, err := Parse("updates.tdl", text)
	if err != nil {
		t.Fatal(err)
	}

	s := NewState()
	if err := s.ApplyMany(commands); err != nil {
		t.Fatal(err)
	}
	if err := s.ApplyMany(commands); err != nil {
		t.Fatalf("replay of identical commands should be a no-op, got: %v", err)
	}

	key := types.SpatialKey{Site: "BRNV", Plot: "H4", Tag: "508"}
	bindings, ok := s.Aliases.Get(key)
	if !ok || len(bindings) != 1 {
		t.Fatalf("expected exactly one binding after replay, got %v", bindings)
	}
}

func TestStateDetectsAliasOverlap(t *testing.T) {
	text := "ALIAS BRNV/H4/508 TO BRNV/H4/112 EFFECTIVE 2020-06-15\n" +
		"ALIAS BRNV/H4/508 TO BRNV/H4/900 EFFECTIVE 2020-06-15\n"
	commands, err := Parse("updates.tdl", text)
	if err != nil {
		t.Fatal(err)
	}

	s := NewState()
	err = s.ApplyMany(commands)
	if err == nil {
		t.Fatalf("expected AliasOverlap error")
	}
	var semErr *SemanticError
	if !errors.As(err, &semErr) {
		t.Fatalf("expected *SemanticError, got %T", err)
	}
	if semErr.Code != "E_ALIAS_OVERLAP" {
		t.Fatalf("unexpected code: %s", semErr.Code)
	}
}

func TestStateDetectsPrimaryConflict(t *testing.T) {
	text := "ALIAS BRNV/H4/508 TO BRNV/H4/112 PRIMARY EFFECTIVE 2020-06-15\n" +
		"ALIAS BRNV/H4/509 TO BRNV/H4/112 PRIMARY EFFECTIVE 2020-06-15\n"
	commands, err := Parse("updates.tdl", text)
	if err != nil {
		t.Fatal(err)
	}

	s := NewState()
	err = s.ApplyMany(commands)
	if err == nil {
		t.Fatalf("expected PrimaryConflict error")
	}
	var semErr *SemanticError
	if !errors.As(err, &semErr) {
		t.Fatalf("expected *SemanticError, got %T", err)
	}
	if semErr.Code != "E_PRIMARY_DUPLICATE_AT_DATE" {
		t.Fatalf("unexpected code: %s", semErr.Code)
	}
}

func TestStateUpdatesSortedByEffectiveDate(t *testing.T) {
	text := "UPDATE BRNV/H4/112 SET genus=Picea EFFECTIVE 2020-01-01\n" +
		"UPDATE BRNV/H4/112 SET genus=Abies EFFECTIVE 2018-01-01\n"
	commands, err := Parse("updates.tdl", text)
	if err != nil {
		t.Fatal(err)
	}

	s := NewState()
	if err := s.ApplyMany(commands); err != nil {
		t.Fatal(err)
	}

	entries, ok := s.Updates.Get("tag:BRNV/H4/112")
	if !ok || len(entries) != 2 {
		t.Fatalf("expected 2 update entries, got %v", entries)
	}
	if entries[0].Assignments["genus"] != "Abies" {
		t.Fatalf("expected earliest effective date first, got %+v", entries[0])
	}
}
