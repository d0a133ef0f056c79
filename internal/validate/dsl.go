package validate

import (
	"errors"
	"fmt"

	"github.com/canopyledger/census/internal/dsl"
	"github.com/canopyledger/census/internal/types"
)

// DSLCommands replays commands through a fresh dsl.State and converts
// any AliasOverlap/PrimaryConflict semantic error it raises into a
// located ValidationIssue, continuing past the offending command so a
// lint run surfaces every conflict in one pass.
func DSLCommands(commands []types.Command) []types.ValidationIssue {
	state := dsl.NewState()
	var issues []types.ValidationIssue

	for _, cmd := range commands {
		if err := state.Apply(cmd); err != nil {
			var semErr *dsl.SemanticError
			if errors.As(err, &semErr) {
				issue := semErr.Issue()
				issue.Location = fmt.Sprintf("updates.tdl:line %d", semErr.Line)
				issues = append(issues, issue)
				continue
			}
		}
	}

	return issues
}
