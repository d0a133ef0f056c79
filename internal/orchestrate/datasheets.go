package orchestrate

import (
	"encoding/json"
	"path"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/afero"

	"github.com/canopyledger/census/internal/assembler"
	"github.com/canopyledger/census/internal/catalog"
	"github.com/canopyledger/census/internal/censuserr"
	"github.com/canopyledger/census/internal/config"
	"github.com/canopyledger/census/internal/ledger"
	"github.com/canopyledger/census/internal/types"
)

// DatasheetOptions parameterises one datasheet scaffold generation.
type DatasheetOptions struct {
	SurveyID  string
	Site      string
	Plot      string
	OutputDir string
}

// GenerateDatasheet rebuilds the dataset from the ledger, filters it to
// one site/plot, and writes a JSON context file field crews use to
// pre-fill a paper or tablet datasheet for the named survey. It returns
// the path written.
func GenerateDatasheet(fs afero.Fs, configDir, workspace string, opts DatasheetOptions, codeVersion string) (string, error) {
	cfg, err := config.Load(fs, configDir, NormalizeCodeVersion(codeVersion))
	if err != nil {
		return "", err
	}

	l, err := ledger.Open(fs, workspace)
	if err != nil {
		return "", err
	}
	rawRows, err := l.LoadRawMeasurements()
	if err != nil {
		return "", err
	}
	if len(rawRows) == 0 {
		return "", censuserr.Datasheetsf("no observations found; submit transactions before generating datasheets")
	}
	commands, err := l.LoadCommands()
	if err != nil {
		return "", err
	}

	cat := catalog.FromConfig(cfg)
	assembled := assembler.Assemble(rawRows, commands, cat, cfg.Validation.DropAfterAbsentSurveys)

	context, err := buildDatasheetContext(assembled, cat, opts.SurveyID, opts.Site, opts.Plot)
	if err != nil {
		return "", err
	}

	if err := fs.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return "", err
	}
	filename := "context_" + opts.Site + "_" + opts.Plot + "_" + opts.SurveyID + ".json"
	outputPath := path.Join(opts.OutputDir, filename)
	encoded, err := json.MarshalIndent(context, "", "  ")
	if err != nil {
		return "", err
	}
	if err := afero.WriteFile(fs, outputPath, append(encoded, '\n'), 0o644); err != nil {
		return "", err
	}
	return outputPath, nil
}

type datasheetStem struct {
	Rank     int    `json:"rank"`
	DBHMM    *int   `json:"dbh_mm"`
	Health   *int   `json:"health"`
	Standing *bool  `json:"standing"`
	Notes    string `json:"notes,omitempty"`
}

type datasheetTree struct {
	TreeUID     string          `json:"tree_uid"`
	PublicTag   string          `json:"public_tag"`
	ZombieEver  bool            `json:"zombie_ever"`
	StemsNext   []datasheetStem `json:"stems_next"`
	DHS1        []datasheetStem `json:"dhs1"`
	DHS1Marked  bool            `json:"dhs1_marked"`
	DHS2        []datasheetStem `json:"dhs2"`
	DHS2Marked  bool            `json:"dhs2_marked"`
}

func buildDatasheetContext(rows []types.MeasurementRow, cat *catalog.Catalog, surveyID, site, plot string) (map[string]any, error) {
	orderedSurveys := cat.OrderedSurveys()
	surveyIndex := -1
	for i, id := range orderedSurveys {
		if id == surveyID {
			surveyIndex = i
			break
		}
	}
	if surveyIndex < 0 {
		return nil, censuserr.Datasheetsf("unknown survey id %s", surveyID)
	}

	var previousIDs []string
	for _, idx := range []int{surveyIndex - 1, surveyIndex - 2} {
		if idx >= 0 {
			previousIDs = append(previousIDs, orderedSurveys[idx])
		}
	}
	if len(previousIDs) == 0 {
		return nil, censuserr.Datasheetsf("survey %s has no prior surveys; nothing to generate", surveyID)
	}

	targetWindow, _ := cat.Get(surveyID)

	var filtered []types.MeasurementRow
	for _, row := range rows {
		if row.TreeUID == nil || row.Site != site || row.Plot != plot {
			continue
		}
		if _, ok := cat.SurveyForDate(row.Date); !ok {
			continue
		}
		filtered = append(filtered, row)
	}
	if len(filtered) == 0 {
		return nil, censuserr.Datasheetsf("no observations found for site=%s, plot=%s", site, plot)
	}

	tagSeen := map[string]bool{}
	var tagsUsed []string
	for _, row := range filtered {
		if row.Origin == types.OriginImplied {
			continue
		}
		tag := row.Tag
		if row.PublicTag != nil {
			tag = *row.PublicTag
		}
		if !tagSeen[tag] {
			tagSeen[tag] = true
			tagsUsed = append(tagsUsed, tag)
		}
	}
	sort.Slice(tagsUsed, func(i, j int) bool { return tagSortLess(tagsUsed[i], tagsUsed[j]) })

	trees := prepareDatasheetTrees(filtered, cat, previousIDs, targetWindow.End)
	if len(trees) == 0 {
		return nil, censuserr.Datasheetsf("no eligible trees found for datasheet (check prior surveys)")
	}
	sort.Slice(trees, func(i, j int) bool { return tagSortLess(trees[i].PublicTag, trees[j].PublicTag) })

	return map[string]any{
		"survey_id":        surveyID,
		"site":             site,
		"plot":             plot,
		"tags_used":        tagsUsed,
		"trees":            trees,
		"previous_surveys": previousIDs,
	}, nil
}

func prepareDatasheetTrees(rows []types.MeasurementRow, cat *catalog.Catalog, previousIDs []string, targetEnd time.Time) []datasheetTree {
	perTree := map[string]map[string][]types.MeasurementRow{}
	for _, row := range rows {
		surveyID, ok := cat.SurveyForDate(row.Date)
		if !ok {
			continue
		}
		bySurvey, exists := perTree[*row.TreeUID]
		if !exists {
			bySurvey = map[string][]types.MeasurementRow{}
			perTree[*row.TreeUID] = bySurvey
		}
		bySurvey[surveyID] = append(bySurvey[surveyID], row)
	}

	orderedSurveys := cat.OrderedSurveys()

	var treeUIDs []string
	for uid := range perTree {
		treeUIDs = append(treeUIDs, uid)
	}
	sort.Strings(treeUIDs)

	var entries []datasheetTree
	for _, treeUID := range treeUIDs {
		bySurvey := perTree[treeUID]
		if !hasRealRows(bySurvey, previousIDs) {
			continue
		}

		publicTag := publicTagAsOf(bySurvey, targetEnd)
		zombieEver := computeZombieFlag(bySurvey, orderedSurveys)

		var prev1ID, prev2ID string
		if len(previousIDs) > 0 {
			prev1ID = previousIDs[0]
		}
		if len(previousIDs) > 1 {
			prev2ID = previousIDs[1]
		}
		prev1Rows := loadRowsForSurvey(bySurvey, prev1ID)
		prev2Rows := loadRowsForSurvey(bySurvey, prev2ID)

		stemsSource := prev1Rows
		if len(stemsSource) == 0 {
			stemsSource = prev2Rows
		}

		entries = append(entries, datasheetTree{
			TreeUID:    treeUID,
			PublicTag:  publicTag,
			ZombieEver: zombieEver,
			StemsNext:  formatStemsWithNotes(stemsSource),
			DHS1:       formatStems(prev1Rows),
			DHS1Marked: len(prev1Rows) > 0,
			DHS2:       formatStems(prev2Rows),
			DHS2Marked: len(prev2Rows) > 0,
		})
	}
	return entries
}

func hasRealRows(bySurvey map[string][]types.MeasurementRow, surveyIDs []string) bool {
	for _, id := range surveyIDs {
		for _, row := range bySurvey[id] {
			if row.Origin != types.OriginImplied {
				return true
			}
		}
	}
	return false
}

func publicTagAsOf(bySurvey map[string][]types.MeasurementRow, targetEnd time.Time) string {
	var candidates []types.MeasurementRow
	for _, rows := range bySurvey {
		for _, row := range rows {
			if !row.Date.After(targetEnd) {
				candidates = append(candidates, row)
			}
		}
	}
	if len(candidates) == 0 {
		for _, rows := range bySurvey {
			candidates = append(candidates, rows...)
		}
	}
	if len(candidates) == 0 {
		return ""
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.After(b.Date)
		}
		aReal := a.Origin != types.OriginImplied
		bReal := b.Origin != types.OriginImplied
		return aReal && !bReal
	})
	chosen := candidates[0]
	if chosen.PublicTag != nil {
		return *chosen.PublicTag
	}
	return chosen.Tag
}

func computeZombieFlag(bySurvey map[string][]types.MeasurementRow, orderedSurveys []string) bool {
	seenDead := false
	for _, id := range orderedSurveys {
		var realRows []types.MeasurementRow
		for _, row := range bySurvey[id] {
			if row.Origin != types.OriginImplied {
				realRows = append(realRows, row)
			}
		}
		if len(realRows) == 0 {
			continue
		}
		alive := false
		for _, row := range realRows {
			if row.Health != nil && *row.Health > 0 {
				alive = true
				break
			}
		}
		if !alive {
			seenDead = true
		} else if seenDead {
			return true
		}
	}
	return false
}

func loadRowsForSurvey(bySurvey map[string][]types.MeasurementRow, surveyID string) []types.MeasurementRow {
	if surveyID == "" {
		return nil
	}
	var rows []types.MeasurementRow
	for _, row := range bySurvey[surveyID] {
		if row.Origin != types.OriginImplied {
			rows = append(rows, row)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		dbhA, dbhB := dbhOrNeg1(a.DBHMM), dbhOrNeg1(b.DBHMM)
		if dbhA != dbhB {
			return dbhA > dbhB
		}
		healthA, healthB := healthOrNeg1(a.Health), healthOrNeg1(b.Health)
		if healthA != healthB {
			return healthA > healthB
		}
		return a.RowNumber < b.RowNumber
	})
	return rows
}

func dbhOrNeg1(v *int) int {
	if v == nil {
		return -1
	}
	return *v
}

func healthOrNeg1(v *int) int {
	if v == nil {
		return -1
	}
	return *v
}

func formatStems(rows []types.MeasurementRow) []datasheetStem {
	stems := make([]datasheetStem, 0, len(rows))
	for i, row := range rows {
		stems = append(stems, datasheetStem{Rank: i + 1, DBHMM: row.DBHMM, Health: row.Health, Standing: row.Standing})
	}
	return stems
}

func formatStemsWithNotes(rows []types.MeasurementRow) []datasheetStem {
	stems := make([]datasheetStem, 0, len(rows))
	for i, row := range rows {
		stems = append(stems, datasheetStem{Rank: i + 1, DBHMM: row.DBHMM, Health: row.Health, Standing: row.Standing, Notes: row.Notes})
	}
	return stems
}

func tagSortLess(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	if errA == nil && errB == nil {
		return na < nb
	}
	if errA == nil {
		return true
	}
	if errB == nil {
		return false
	}
	return a < b
}
