package timeline

import (
	"testing"
	"time"

	"github.com/canopyledger/census/internal/resolver"
	"github.com/canopyledger/census/internal/types"
)

func mustDate(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestPropertyTimelineOverridesPerField(t *testing.T) {
	tl := &PropertyTimeline{}
	tl.Add(mustDate("2018-01-01"), map[string]string{"genus": "Picea", "species": "abies"})
	tl.Add(mustDate("2021-01-01"), map[string]string{"species": "rubens"})

	got := tl.Resolve(mustDate("2022-01-01"))
	if got["genus"] != "Picea" || got["species"] != "rubens" {
		t.Fatalf("expected later record to override only species, got %+v", got)
	}
}

func TestApplyPropertiesRetroactiveUpdate(t *testing.T) {
	eff := mustDate("2018-01-01")
	rows := []types.MeasurementRow{
		{Site: "BRNV", Plot: "H4", Tag: "112", Date: mustDate("2019-06-16")},
	}
	r := resolver.Build(rows, nil)
	resolver.AssignTreeUIDs(rows, r)

	commands := []types.Command{
		{
			Kind: types.CommandUpdate,
			Update: &types.UpdateCommand{
				Tree:          types.NewTreeRefByUUID(*rows[0].TreeUID),
				Assignments:   map[string]string{"genus": "Picea", "species": "abies", "code": "PICEAB"},
				EffectiveDate: &eff,
			},
		},
	}

	timelines := BuildPropertyTimelines(commands, r)
	ApplyProperties(rows, timelines)

	if rows[0].Genus == nil || *rows[0].Genus != "Picea" {
		t.Fatalf("expected genus set by retroactive update, got %+v", rows[0].Genus)
	}
	if rows[0].Code == nil || *rows[0].Code != "PICEAB" {
		t.Fatalf("expected code set by retroactive update, got %+v", rows[0].Code)
	}
}

func TestApplyPrimaryTagsFallsBackToFieldTag(t *testing.T) {
	rows := []types.MeasurementRow{
		{Site: "BRNV", Plot: "H4", Tag: "112", Date: mustDate("2019-06-16")},
	}
	r := resolver.Build(rows, nil)
	resolver.AssignTreeUIDs(rows, r)

	ApplyPrimaryTags(rows, map[string]*PrimaryTimeline{})
	if rows[0].PublicTag == nil || *rows[0].PublicTag != "112" {
		t.Fatalf("expected fallback to field tag, got %+v", rows[0].PublicTag)
	}
}

func TestApplyPrimaryTagsUsesResolvedTimeline(t *testing.T) {
	eff := mustDate("2020-06-15")
	oldRow := types.MeasurementRow{Site: "BRNV", Plot: "H4", Tag: "112", Date: mustDate("2019-06-16")}
	newRow := types.MeasurementRow{Site: "BRNV", Plot: "H4", Tag: "508", Date: mustDate("2020-06-16")}
	rows := []types.MeasurementRow{oldRow, newRow}

	commands := []types.Command{
		{
			Kind: types.CommandAlias,
			Alias: &types.AliasCommand{
				Target:        types.TagRef{Site: "BRNV", Plot: "H4", Tag: "508"},
				Tree:          types.NewTreeRefByTag(types.TagRef{Site: "BRNV", Plot: "H4", Tag: "112"}),
				Primary:       true,
				EffectiveDate: &eff,
			},
		},
	}

	r := resolver.Build(rows, commands)
	resolver.AssignTreeUIDs(rows, r)

	timelines := BuildPrimaryTimelines(commands, r)
	ApplyPrimaryTags(rows, timelines)

	if *rows[0].PublicTag != "112" {
		t.Fatalf("expected pre-alias row to keep public_tag 112, got %s", *rows[0].PublicTag)
	}
	if *rows[1].PublicTag != "508" {
		t.Fatalf("expected post-alias row to report public_tag 508, got %s", *rows[1].PublicTag)
	}
}
