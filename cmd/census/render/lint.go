package render

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/canopyledger/census/internal/derived"
	"github.com/canopyledger/census/internal/types"
)

// Issues renders a validation issue list as a bordered table in the
// order given, with severity in the first column.
func Issues(issues []types.ValidationIssue) string {
	if len(issues) == 0 {
		return passStyle.Render("no validation issues")
	}

	rows := make([][]string, 0, len(issues))
	for _, issue := range issues {
		rows = append(rows, []string{string(issue.Severity), issue.Code, issue.Location, issue.Message})
	}

	width := Width()
	t := table.New().
		Headers("Severity", "Code", "Location", "Message").
		Rows(rows...).
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Width(width).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			style := lipgloss.NewStyle().Padding(0, 1)
			if col == 0 {
				switch types.Severity(rows[row][0]) {
				case types.SeverityError:
					style = style.Foreground(ColorFail).Bold(true)
				case types.SeverityWarning:
					style = style.Foreground(ColorWarn)
				}
			}
			return style
		})
	return t.String()
}

// RetagSuggestions renders proposed ALIAS lines as a table.
func RetagSuggestions(rows []derived.RetagSuggestion) string {
	if len(rows) == 0 {
		return mutedStyle.Render("no retag suggestions")
	}

	data := make([][]string, 0, len(rows))
	for _, r := range rows {
		data = append(data, []string{
			r.SurveyID, r.Plot, r.LostPublicTag, r.NewPublicTag,
			fmt.Sprintf("%d", r.DeltaMM), r.SuggestedAliasLine,
		})
	}

	t := table.New().
		Headers("Survey", "Plot", "Lost Tag", "New Tag", "Δmm", "Suggested Line").
		Rows(data...).
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Width(Width()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	return t.String()
}
