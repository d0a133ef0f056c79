package config

import (
	"testing"

	"github.com/spf13/afero"
)

const validTaxonomyTOML = `
[[species]]
genus = "Picea"
species = "abies"
code = "PICABI"
`

const validSitesTOML = `
[sites.BRNV]
zone_order = ["H4"]
plots = ["H4"]
`

const validSurveysTOML = `
[[surveys]]
id = "S2019"
start = 2019-01-01
end = 2019-12-31
`

const validValidationTOML = `
rounding = "half_up"
dbh_pct_warn = 0.1
dbh_pct_error = 0.3
dbh_abs_floor_warn_mm = 10
dbh_abs_floor_error_mm = 30
retag_delta_pct = 0.2
new_tree_flag_min_dbh_mm = 50
drop_after_absent_surveys = 2
`

const validDatasheetsTOML = `
show_previous_surveys = 2
sort = "tag"
show_zombie_asterisk = true
`

func writeValidConfig(t *testing.T, fs afero.Fs, dir string) {
	t.Helper()
	files := map[string]string{
		FileTaxonomy:   validTaxonomyTOML,
		FileSites:      validSitesTOML,
		FileSurveys:    validSurveysTOML,
		FileValidation: validValidationTOML,
		FileDatasheets: validDatasheetsTOML,
	}
	for name, content := range files {
		if err := afero.WriteFile(fs, dir+"/"+name, []byte(content), 0o644); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}
}

func TestLoadValidBundle(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeValidConfig(t, fs, "/config")

	b, err := Load(fs, "/config", "v1.0.0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(b.Taxonomy.Species) != 1 || b.Taxonomy.Species[0].Code != "PICABI" {
		t.Fatalf("unexpected taxonomy: %+v", b.Taxonomy)
	}
	if _, ok := b.Sites.Sites["BRNV"]; !ok {
		t.Fatalf("expected site BRNV, got %+v", b.Sites.Sites)
	}
	if len(b.Surveys.Surveys) != 1 || b.Surveys.Surveys[0].ID != "S2019" {
		t.Fatalf("unexpected surveys: %+v", b.Surveys.Surveys)
	}
	if b.CodeVersion != "v1.0.0" {
		t.Fatalf("expected code version to be recorded, got %q", b.CodeVersion)
	}
}

func TestLoadRejectsMismatchedSpeciesCode(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeValidConfig(t, fs, "/config")
	afero.WriteFile(fs, "/config/"+FileTaxonomy, []byte(`
[[species]]
genus = "Picea"
species = "abies"
code = "WRONG"
`), 0o644)

	_, err := Load(fs, "/config", "v1.0.0")
	if err == nil {
		t.Fatal("expected an error for a mismatched species code")
	}
}

func TestLoadRejectsOverlappingSurveys(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeValidConfig(t, fs, "/config")
	afero.WriteFile(fs, "/config/"+FileSurveys, []byte(`
[[surveys]]
id = "S2019"
start = 2019-01-01
end = 2019-12-31

[[surveys]]
id = "S2019B"
start = 2019-06-01
end = 2020-06-01
`), 0o644)

	_, err := Load(fs, "/config", "v1.0.0")
	if err == nil {
		t.Fatal("expected an error for overlapping survey windows")
	}
}

func TestLoadRejectsEmptySites(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeValidConfig(t, fs, "/config")
	afero.WriteFile(fs, "/config/"+FileSites, []byte(`
[sites]
`), 0o644)

	_, err := Load(fs, "/config", "v1.0.0")
	if err == nil {
		t.Fatal("expected an error for an empty sites config")
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := Load(fs, "/config", "v1.0.0")
	if err == nil {
		t.Fatal("expected an error when config files are absent")
	}
}

func TestLoadRejectsInvertedDBHThresholds(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeValidConfig(t, fs, "/config")
	afero.WriteFile(fs, "/config/"+FileValidation, []byte(`
rounding = "half_up"
dbh_pct_warn = 0.3
dbh_pct_error = 0.1
dbh_abs_floor_warn_mm = 10
dbh_abs_floor_error_mm = 30
retag_delta_pct = 0.2
new_tree_flag_min_dbh_mm = 50
drop_after_absent_surveys = 2
`), 0o644)

	_, err := Load(fs, "/config", "v1.0.0")
	if err == nil {
		t.Fatal("expected an error when dbh_pct_warn >= dbh_pct_error")
	}
}
