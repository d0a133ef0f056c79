package dsl

import (
	"testing"

	"github.com/canopyledger/census/internal/types"
)

func TestParseAliasPrimaryEffective(t *testing.T) {
	text := `ALIAS BRNV/H4/508 TO BRNV/H4/112 PRIMARY EFFECTIVE 2020-06-15`
	commands, err := Parse("updates.tdl", text)
	if err != nil {
		t.Fatal(err)
	}
	if len(commands) != 1 {
		t.Fatalf("expected 1 command, got %d", len(commands))
	}
	cmd := commands[0]
	if cmd.Kind != types.CommandAlias {
		t.Fatalf("expected alias command, got %s", cmd.Kind)
	}
	if cmd.Alias.Target.String() != "BRNV/H4/508" {
		t.Fatalf("unexpected target: %s", cmd.Alias.Target.String())
	}
	if !cmd.Alias.Primary {
		t.Fatalf("expected primary flag set")
	}
	if cmd.Alias.EffectiveDate == nil || cmd.Alias.EffectiveDate.Format("2006-01-02") != "2020-06-15" {
		t.Fatalf("unexpected effective date: %v", cmd.Alias.EffectiveDate)
	}
	if cmd.Alias.Tree.IsUUID() {
		t.Fatalf("expected tag-based tree ref")
	}
}

func TestParseSplitWithSelectorAndNote(t *testing.T) {
	text := `SPLIT BRNV/H4/112 INTO BRNV/H4/900 PRIMARY EFFECTIVE 2020-06-15 SELECT SMALLEST BEFORE 2020-06-15 NOTE "split off the small stem"`
	commands, err := Parse("updates.tdl", text)
	if err != nil {
		t.Fatal(err)
	}
	cmd := commands[0].Split
	if cmd.Selector == nil || cmd.Selector.Strategy != types.SelectorSmallest {
		t.Fatalf("expected SMALLEST selector, got %+v", cmd.Selector)
	}
	if cmd.Selector.DateFilter.Kind != types.DateFilterBefore {
		t.Fatalf("expected BEFORE filter, got %+v", cmd.Selector.DateFilter)
	}
	if cmd.Note != "split off the small stem" {
		t.Fatalf("unexpected note: %q", cmd.Note)
	}
}

func TestParseSplitRanksSelector(t *testing.T) {
	text := `SPLIT BRNV/H4/112 INTO BRNV/H4/900 SELECT RANKS 1,2 BETWEEN 2020-01-01 AND 2020-12-31`
	commands, err := Parse("updates.tdl", text)
	if err != nil {
		t.Fatal(err)
	}
	sel := commands[0].Split.Selector
	if sel.Strategy != types.SelectorRanks {
		t.Fatalf("expected RANKS strategy")
	}
	if len(sel.Ranks) != 2 || sel.Ranks[0] != 1 || sel.Ranks[1] != 2 {
		t.Fatalf("unexpected ranks: %v", sel.Ranks)
	}
	if sel.DateFilter.Kind != types.DateFilterBetween {
		t.Fatalf("expected BETWEEN filter")
	}
}

func TestParseUpdateAssignments(t *testing.T) {
	text := `UPDATE BRNV/H4/112 SET genus=Picea,species=abies,code=PICEAB EFFECTIVE 2018-01-01`
	commands, err := Parse("updates.tdl", text)
	if err != nil {
		t.Fatal(err)
	}
	upd := commands[0].Update
	if upd.Assignments["genus"] != "Picea" || upd.Assignments["species"] != "abies" || upd.Assignments["code"] != "PICEAB" {
		t.Fatalf("unexpected assignments: %+v", upd.Assignments)
	}
}

func TestParseTreeRefByUUID(t *testing.T) {
	text := `UPDATE 3f6a9c1e-2b4d-4a8e-9c3f-1d6a8b2e5c70 SET genus=Picea`
	commands, err := Parse("updates.tdl", text)
	if err != nil {
		t.Fatal(err)
	}
	if !commands[0].Update.Tree.IsUUID() {
		t.Fatalf("expected UUID tree ref")
	}
}

func TestParseRejectsUnknownCommand(t *testing.T) {
	_, err := Parse("updates.tdl", "FROB foo")
	if err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestParseBlankLinesAndComments(t *testing.T) {
	text := "\n# a comment\n\nUPDATE BRNV/H4/112 SET genus=Picea\n"
	commands, err := Parse("updates.tdl", text)
	if err != nil {
		t.Fatal(err)
	}
	if len(commands) != 1 {
		t.Fatalf("expected 1 command, got %d", len(commands))
	}
}

func TestParseEmptyRanksIsError(t *testing.T) {
	_, err := Parse("updates.tdl", "SPLIT BRNV/H4/112 INTO BRNV/H4/900 SELECT RANKS")
	if err == nil {
		t.Fatalf("expected error for empty RANKS list")
	}
}
