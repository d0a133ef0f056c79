package txn

import (
	"testing"

	"github.com/spf13/afero"
)

func TestLoadMeasurementsNormalizesHealthAndDBH(t *testing.T) {
	fs := afero.NewMemMapFs()
	csvBody := "site,plot,tag,date,dbh_mm,health,standing,notes,origin\n" +
		"BRNV,H4,112,2019-06-16,171,7.6,true,,field\n" +
		"BRNV,H4,113,2019-06-16,NA,,false,dead stem,implied\n"
	_ = afero.WriteFile(fs, "/tx/measurements.csv", []byte(csvBody), 0o644)

	rows, err := LoadMeasurements(fs, "/tx/measurements.csv", DefaultNormalizationConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Health == nil || *rows[0].Health != 8 {
		t.Fatalf("expected health 7.6 to round half-up to 8, got %v", rows[0].Health)
	}
	if rows[1].DBHMM != nil {
		t.Fatalf("expected NA dbh_mm to parse as nil, got %v", *rows[1].DBHMM)
	}
}

func TestLoadMeasurementsAppliesAliveOverride(t *testing.T) {
	fs := afero.NewMemMapFs()
	csvBody := "site,plot,tag,date,dbh_mm,health,standing,notes,alive\n" +
		"BRNV,H4,112,2019-06-16,171,0,true,,true\n"
	_ = afero.WriteFile(fs, "/tx/measurements.csv", []byte(csvBody), 0o644)

	rows, err := LoadMeasurements(fs, "/tx/measurements.csv", DefaultNormalizationConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *rows[0].Health != 1 {
		t.Fatalf("expected alive_override to bump health to 1, got %d", *rows[0].Health)
	}
	found := false
	for _, f := range rows[0].Flags {
		if f == "alive_override" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected alive_override flag, got %v", rows[0].Flags)
	}
}

func TestLoadMeasurementsRejectsMissingRequiredColumn(t *testing.T) {
	fs := afero.NewMemMapFs()
	csvBody := "site,plot,tag,date,health,standing,notes\n" +
		"BRNV,H4,112,2019-06-16,8,true,\n"
	_ = afero.WriteFile(fs, "/tx/measurements.csv", []byte(csvBody), 0o644)

	_, err := LoadMeasurements(fs, "/tx/measurements.csv", DefaultNormalizationConfig())
	if err == nil {
		t.Fatal("expected an error for a missing dbh_mm column")
	}
}

func TestLoadReadsAllThreeTransactionFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	_ = afero.WriteFile(fs, "/tx/measurements.csv",
		[]byte("site,plot,tag,date,dbh_mm,health,standing,notes\nBRNV,H4,112,2019-06-16,171,8,true,\n"), 0o644)
	_ = afero.WriteFile(fs, "/tx/updates.tdl", []byte("# no commands\n"), 0o644)
	_ = afero.WriteFile(fs, "/tx/survey_meta.toml", []byte("note = \"field notes\"\n"), 0o644)

	data, err := Load(fs, "/tx", DefaultNormalizationConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(data.Measurements) != 1 {
		t.Fatalf("expected 1 measurement row, got %d", len(data.Measurements))
	}
	if data.SurveyMeta == nil || data.SurveyMeta.Data["note"] != "field notes" {
		t.Fatalf("expected survey_meta.toml to be loaded, got %+v", data.SurveyMeta)
	}
}
