package orchestrate

import (
	"strings"
	"testing"

	"github.com/spf13/afero"
)

const taxonomyTOML = `
[[species]]
genus = "Picea"
species = "abies"
code = "PICABI"
`

const sitesTOML = `
[sites.BRNV]
zone_order = ["H4"]
plots = ["H4"]
`

const surveysTOML = `
[[surveys]]
id = "S2019"
start = 2019-01-01
end = 2019-12-31

[[surveys]]
id = "S2020"
start = 2020-01-01
end = 2020-12-31
`

const validationTOML = `
rounding = "half_up"
dbh_pct_warn = 0.1
dbh_pct_error = 0.3
dbh_abs_floor_warn_mm = 10
dbh_abs_floor_error_mm = 30
retag_delta_pct = 0.2
new_tree_flag_min_dbh_mm = 50
drop_after_absent_surveys = 2
`

const datasheetsTOML = `
show_previous_surveys = 2
sort = "tag"
show_zombie_asterisk = true
`

func writeConfig(t *testing.T, fs afero.Fs, dir string) {
	t.Helper()
	files := map[string]string{
		"taxonomy.toml":   taxonomyTOML,
		"sites.toml":      sitesTOML,
		"surveys.toml":    surveysTOML,
		"validation.toml": validationTOML,
		"datasheets.toml": datasheetsTOML,
	}
	for name, content := range files {
		if err := afero.WriteFile(fs, dir+"/"+name, []byte(content), 0o644); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}
}

func writeTransaction(t *testing.T, fs afero.Fs, dir, measurementsCSV string) {
	t.Helper()
	if err := afero.WriteFile(fs, dir+"/measurements.csv", []byte(measurementsCSV), 0o644); err != nil {
		t.Fatalf("writing measurements.csv: %v", err)
	}
}

const measurements2019 = `site,plot,tag,date,dbh_mm,health,standing,notes
BRNV,H4,112,2019-06-16,171,1,true,
BRNV,H4,113,2019-06-16,95,1,true,
`

const measurements2020 = `site,plot,tag,date,dbh_mm,health,standing,notes
BRNV,H4,112,2020-06-20,182,1,true,
BRNV,H4,113,2020-06-20,0,0,false,found dead
`

func TestLintTransactionReportsNoErrorsForCleanData(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeConfig(t, fs, "/config")
	writeTransaction(t, fs, "/tx2019", measurements2019)

	report, err := LintTransaction(fs, "/tx2019", "/config", "v1.0.0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.HasErrors() {
		t.Fatalf("expected no errors, got %+v", report.Issues)
	}
	if len(report.MeasurementRows) != 2 {
		t.Fatalf("expected 2 assembled rows, got %d", len(report.MeasurementRows))
	}
	if report.TxID == "" {
		t.Fatal("expected a non-empty tx_id")
	}
}

func TestLintTransactionFlagsUnknownPlot(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeConfig(t, fs, "/config")
	writeTransaction(t, fs, "/tx-bad", `site,plot,tag,date,dbh_mm,health,standing,notes
BRNV,Z9,112,2019-06-16,171,1,true,
`)

	report, err := LintTransaction(fs, "/tx-bad", "/config", "v1.0.0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.HasErrors() {
		t.Fatal("expected the unknown-plot row to raise an error")
	}
}

func TestSubmitTransactionWritesLedgerArtifacts(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeConfig(t, fs, "/config")
	writeTransaction(t, fs, "/tx2019", measurements2019)

	result, err := SubmitTransaction(fs, "/tx2019", "/config", "/ledger", "v1.0.0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Accepted {
		t.Fatal("expected transaction to be accepted")
	}
	if result.VersionSeq != 1 {
		t.Fatalf("expected first version to be seq 1, got %d", result.VersionSeq)
	}

	for _, artifact := range []string{
		"/ledger/observations_long.csv",
		"/ledger/observations_long.snapshot",
		"/ledger/trees_view.csv",
		"/ledger/retag_suggestions.csv",
		"/ledger/validation_report.json",
		"/ledger/transactions.jsonl",
		"/ledger/versions/0001/manifest.json",
	} {
		exists, err := afero.Exists(fs, artifact)
		if err != nil {
			t.Fatalf("checking %s: %v", artifact, err)
		}
		if !exists {
			t.Fatalf("expected %s to exist after submit", artifact)
		}
	}
}

func TestSubmitTransactionIsIdempotent(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeConfig(t, fs, "/config")
	writeTransaction(t, fs, "/tx2019", measurements2019)

	first, err := SubmitTransaction(fs, "/tx2019", "/config", "/ledger", "v1.0.0")
	if err != nil {
		t.Fatalf("unexpected error on first submit: %v", err)
	}
	if !first.Accepted {
		t.Fatal("expected first submit to be accepted")
	}

	second, err := SubmitTransaction(fs, "/tx2019", "/config", "/ledger", "v1.0.0")
	if err != nil {
		t.Fatalf("unexpected error on second submit: %v", err)
	}
	if second.Accepted {
		t.Fatal("expected re-submission of the same transaction to be rejected as a duplicate")
	}
	if second.TxID != first.TxID {
		t.Fatalf("expected the same tx_id across re-submission, got %s vs %s", second.TxID, first.TxID)
	}
}

func TestSubmitTransactionRejectsBlockingErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeConfig(t, fs, "/config")
	writeTransaction(t, fs, "/tx-bad", `site,plot,tag,date,dbh_mm,health,standing,notes
BRNV,Z9,112,2019-06-16,171,1,true,
`)

	_, err := SubmitTransaction(fs, "/tx-bad", "/config", "/ledger", "v1.0.0")
	if err == nil {
		t.Fatal("expected submit to reject a transaction with validation errors")
	}
}

func TestSubmitSecondTransactionAccumulatesVersions(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeConfig(t, fs, "/config")
	writeTransaction(t, fs, "/tx2019", measurements2019)
	writeTransaction(t, fs, "/tx2020", measurements2020)

	if _, err := SubmitTransaction(fs, "/tx2019", "/config", "/ledger", "v1.0.0"); err != nil {
		t.Fatalf("unexpected error submitting 2019 transaction: %v", err)
	}
	second, err := SubmitTransaction(fs, "/tx2020", "/config", "/ledger", "v1.0.0")
	if err != nil {
		t.Fatalf("unexpected error submitting 2020 transaction: %v", err)
	}
	if !second.Accepted {
		t.Fatal("expected second transaction to be accepted")
	}
	if second.VersionSeq != 2 {
		t.Fatalf("expected second submit to produce version seq 2, got %d", second.VersionSeq)
	}

	observations, err := afero.ReadFile(fs, "/ledger/observations_long.csv")
	if err != nil {
		t.Fatalf("reading observations: %v", err)
	}
	if strings.Count(string(observations), "\n") < 5 {
		t.Fatalf("expected both transactions' rows to be present, got:\n%s", observations)
	}
}

func TestBuildWorkspaceAggregatesValidationTotals(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeConfig(t, fs, "/config")
	writeTransaction(t, fs, "/tx2019", measurements2019)
	writeTransaction(t, fs, "/tx2020", measurements2020)

	if _, err := SubmitTransaction(fs, "/tx2019", "/config", "/ledger", "v1.0.0"); err != nil {
		t.Fatalf("unexpected error submitting 2019 transaction: %v", err)
	}
	if _, err := SubmitTransaction(fs, "/tx2020", "/config", "/ledger", "v1.0.0"); err != nil {
		t.Fatalf("unexpected error submitting 2020 transaction: %v", err)
	}

	result, err := BuildWorkspace(fs, "/config", "/ledger", "v1.0.0")
	if err != nil {
		t.Fatalf("unexpected error building workspace: %v", err)
	}
	if result.TxCount != 2 {
		t.Fatalf("expected 2 recorded transactions, got %d", result.TxCount)
	}
	if result.VersionSeq != 3 {
		t.Fatalf("expected build to write version seq 3, got %d", result.VersionSeq)
	}
}

func TestBuildWorkspaceRejectsEmptyLedger(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeConfig(t, fs, "/config")

	_, err := BuildWorkspace(fs, "/config", "/ledger", "v1.0.0")
	if err == nil {
		t.Fatal("expected build to fail with no recorded observations")
	}
}

func TestLoadManifestAndDiffManifests(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeConfig(t, fs, "/config")
	writeTransaction(t, fs, "/tx2019", measurements2019)
	writeTransaction(t, fs, "/tx2020", measurements2020)

	if _, err := SubmitTransaction(fs, "/tx2019", "/config", "/ledger", "v1.0.0"); err != nil {
		t.Fatalf("unexpected error submitting 2019 transaction: %v", err)
	}
	if _, err := SubmitTransaction(fs, "/tx2020", "/config", "/ledger", "v1.0.0"); err != nil {
		t.Fatalf("unexpected error submitting 2020 transaction: %v", err)
	}

	v1, err := LoadManifest(fs, "/ledger", 1)
	if err != nil {
		t.Fatalf("unexpected error loading manifest 1: %v", err)
	}
	v2, err := LoadManifest(fs, "/ledger", 2)
	if err != nil {
		t.Fatalf("unexpected error loading manifest 2: %v", err)
	}

	diff := DiffManifests(v1, v2)
	txDiff, ok := diff["tx_ids"].(map[string][]string)
	if !ok {
		t.Fatalf("expected tx_ids diff to be a map[string][]string, got %T", diff["tx_ids"])
	}
	if len(txDiff["only_in_b"]) != 1 {
		t.Fatalf("expected exactly one tx_id unique to version 2, got %+v", txDiff)
	}
}

func TestLoadManifestReturnsVersionNotFound(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeConfig(t, fs, "/config")
	writeTransaction(t, fs, "/tx2019", measurements2019)
	if _, err := SubmitTransaction(fs, "/tx2019", "/config", "/ledger", "v1.0.0"); err != nil {
		t.Fatalf("unexpected error submitting transaction: %v", err)
	}

	_, err := LoadManifest(fs, "/ledger", 99)
	if err == nil {
		t.Fatal("expected an error loading a non-existent version")
	}
}

func TestGenerateDatasheetProducesContextFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeConfig(t, fs, "/config")
	writeTransaction(t, fs, "/tx2019", measurements2019)
	writeTransaction(t, fs, "/tx2020", measurements2020)

	if _, err := SubmitTransaction(fs, "/tx2019", "/config", "/ledger", "v1.0.0"); err != nil {
		t.Fatalf("unexpected error submitting 2019 transaction: %v", err)
	}
	if _, err := SubmitTransaction(fs, "/tx2020", "/config", "/ledger", "v1.0.0"); err != nil {
		t.Fatalf("unexpected error submitting 2020 transaction: %v", err)
	}

	path, err := GenerateDatasheet(fs, "/config", "/ledger", DatasheetOptions{
		SurveyID: "S2020", Site: "BRNV", Plot: "H4", OutputDir: "/out",
	}, "v1.0.0")
	if err != nil {
		t.Fatalf("unexpected error generating datasheet: %v", err)
	}
	if path != "/out/context_BRNV_H4_S2020.json" {
		t.Fatalf("unexpected output path: %s", path)
	}
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		t.Fatalf("reading generated datasheet: %v", err)
	}
	if !strings.Contains(string(raw), `"survey_id": "S2020"`) {
		t.Fatalf("expected context file to mention survey_id, got:\n%s", raw)
	}
	if !strings.Contains(string(raw), "112") {
		t.Fatalf("expected context file to mention tag 112, got:\n%s", raw)
	}
}

func TestGenerateDatasheetRejectsSurveyWithNoPriorSurveys(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeConfig(t, fs, "/config")
	writeTransaction(t, fs, "/tx2019", measurements2019)

	if _, err := SubmitTransaction(fs, "/tx2019", "/config", "/ledger", "v1.0.0"); err != nil {
		t.Fatalf("unexpected error submitting transaction: %v", err)
	}

	_, err := GenerateDatasheet(fs, "/config", "/ledger", DatasheetOptions{
		SurveyID: "S2019", Site: "BRNV", Plot: "H4", OutputDir: "/out",
	}, "v1.0.0")
	if err == nil {
		t.Fatal("expected datasheet generation to fail for a survey with no prior surveys")
	}
}

func TestNormalizeCodeVersion(t *testing.T) {
	cases := map[string]string{
		"v1.2.3":  "v1.2.3",
		"1.2.3":   "v1.2.3",
		"":        "v0.0.0-unknown",
		"garbage": "v0.0.0-unknown",
	}
	for input, want := range cases {
		if got := NormalizeCodeVersion(input); got != want {
			t.Errorf("NormalizeCodeVersion(%q) = %q, want %q", input, got, want)
		}
	}
}
