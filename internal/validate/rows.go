// Package validate implements the row, growth, and DSL validators that
// together produce the issue list surfaced by lint and submit.
package validate

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/canopyledger/census/internal/config"
	"github.com/canopyledger/census/internal/textdist"
	"github.com/canopyledger/census/internal/types"
)

// maxSiteSuggestDistance bounds how different a known site/plot may be
// from an unrecognized one before it stops being offered as a suggestion.
const maxSiteSuggestDistance = 2

// Rows validates each measurement row in isolation: dbh/health ranges,
// implied-only NA dbh, known site/plot, date within a configured
// survey, and taxonomy (genus/species/code) consistency.
func Rows(rows []types.MeasurementRow, b *config.Bundle) []types.ValidationIssue {
	taxonomyPairs := map[[2]string]string{}
	for _, entry := range b.Taxonomy.Species {
		key := [2]string{strings.ToLower(entry.Genus), strings.ToLower(entry.Species)}
		taxonomyPairs[key] = entry.Code
	}
	sitePlots := map[string]map[string]bool{}
	for site, sc := range b.Sites.Sites {
		plots := map[string]bool{}
		for _, p := range sc.Plots {
			plots[p] = true
		}
		sitePlots[site] = plots
	}

	knownPairs := knownSitePlotPairs(sitePlots)

	var issues []types.ValidationIssue
	for _, row := range rows {
		issues = append(issues, validateRow(row, taxonomyPairs, sitePlots, knownPairs, b)...)
	}
	return issues
}

func knownSitePlotPairs(sitePlots map[string]map[string]bool) []string {
	var pairs []string
	for site, plots := range sitePlots {
		for plot := range plots {
			pairs = append(pairs, site+"/"+plot)
		}
	}
	sort.Strings(pairs)
	return pairs
}

func validateRow(row types.MeasurementRow, taxonomyPairs map[[2]string]string, sitePlots map[string]map[string]bool, knownPairs []string, b *config.Bundle) []types.ValidationIssue {
	var issues []types.ValidationIssue
	location := func(column string) string {
		return fmt.Sprintf("measurements.csv:row %d,col %s", row.RowNumber, column)
	}

	if row.DBHMM != nil && *row.DBHMM < 0 {
		issues = append(issues, types.ValidationIssue{
			Code: "E_ROW_DBH_NEG", Severity: types.SeverityError,
			Message: "dbh_mm must be >= 0", Location: location("dbh_mm"),
		})
	}

	if row.DBHMM == nil && row.Origin != types.OriginImplied {
		issues = append(issues, types.ValidationIssue{
			Code: "E_ROW_DBH_NA_NOT_IMPLIED", Severity: types.SeverityError,
			Message: "dbh_mm may be NA only for origin='implied'", Location: location("dbh_mm"),
		})
	}

	if row.Health != nil && (*row.Health < 0 || *row.Health > 10) {
		issues = append(issues, types.ValidationIssue{
			Code: "E_ROW_HEALTH_RANGE", Severity: types.SeverityError,
			Message: "health must be within 0..10", Location: location("health"),
		})
	}

	if !siteKnown(row.Site, row.Plot, sitePlots) {
		message := fmt.Sprintf("unknown site/plot %s/%s", row.Site, row.Plot)
		if suggestion, ok := textdist.Nearest(row.Site+"/"+row.Plot, knownPairs, maxSiteSuggestDistance); ok {
			message += fmt.Sprintf(" (did you mean %s?)", suggestion)
		}
		issues = append(issues, types.ValidationIssue{
			Code: "E_ROW_SITE_OR_PLOT_UNKNOWN", Severity: types.SeverityError,
			Message: message, Location: location("plot"),
		})
	}

	if !dateWithinSurveys(row.Date, b) {
		issues = append(issues, types.ValidationIssue{
			Code: "E_ROW_DATE_OUTSIDE_SURVEY", Severity: types.SeverityError,
			Message: fmt.Sprintf("date %s not within configured surveys", row.Date.Format("2006-01-02")), Location: location("date"),
		})
	}

	if issue := validateTaxonomy(row, taxonomyPairs); issue != nil {
		issues = append(issues, *issue)
	}

	return issues
}

func siteKnown(site, plot string, sitePlots map[string]map[string]bool) bool {
	plots, ok := sitePlots[site]
	if !ok {
		return false
	}
	return plots[plot]
}

func dateWithinSurveys(d time.Time, b *config.Bundle) bool {
	for _, survey := range b.Surveys.Surveys {
		if !d.Before(survey.Start) && !d.After(survey.End) {
			return true
		}
	}
	return false
}

func validateTaxonomy(row types.MeasurementRow, taxonomyPairs map[[2]string]string) *types.ValidationIssue {
	hasGenus := row.Genus != nil && *row.Genus != ""
	hasSpecies := row.Species != nil && *row.Species != ""
	hasCode := row.Code != nil && *row.Code != ""

	if !hasGenus && !hasSpecies && !hasCode {
		return nil
	}

	if !hasGenus || !hasSpecies {
		return &types.ValidationIssue{
			Code: "E_ROW_TAXONOMY_MISMATCH", Severity: types.SeverityError,
			Message:  "genus and species must both be provided when one is present",
			Location: fmt.Sprintf("measurements.csv:row %d,col genus", row.RowNumber),
		}
	}

	key := [2]string{strings.ToLower(*row.Genus), strings.ToLower(*row.Species)}
	expected, ok := taxonomyPairs[key]
	if !ok {
		return &types.ValidationIssue{
			Code: "E_ROW_TAXONOMY_MISMATCH", Severity: types.SeverityError,
			Message:  fmt.Sprintf("species %s %s not in taxonomy", *row.Genus, *row.Species),
			Location: fmt.Sprintf("measurements.csv:row %d,col species", row.RowNumber),
		}
	}

	if hasCode && *row.Code != expected {
		return &types.ValidationIssue{
			Code: "E_ROW_TAXONOMY_MISMATCH", Severity: types.SeverityError,
			Message:  fmt.Sprintf("code must match taxonomy (%s expected %s)", *row.Code, expected),
			Location: fmt.Sprintf("measurements.csv:row %d,col code", row.RowNumber),
		}
	}

	return nil
}
