// Command census is the CLI surface over the forest census ledger:
// linting and submitting transactions, rebuilding workspace artifacts,
// inspecting versions, and generating field datasheets.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/canopyledger/census/internal/censuserr"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps a command error to the exit code table: 0 clean;
// 2 validation; 3 DSL; 4 I/O; 5 config. Errors outside the
// censuserr.Error taxonomy (e.g. a raw os.Open failure) are treated as
// I/O, the broadest bucket.
func exitCodeFor(err error) int {
	var cerr *censuserr.Error
	if !errors.As(err, &cerr) {
		return 4
	}
	switch cerr.Kind {
	case censuserr.KindConfig:
		return 5
	case censuserr.KindDSLParse:
		return 3
	case censuserr.KindValidation, censuserr.KindTransactionData, censuserr.KindSubmit:
		return 2
	case censuserr.KindTransactionFormat, censuserr.KindBuild, censuserr.KindDatasheets, censuserr.KindVersionNotFound:
		return 4
	default:
		return 4
	}
}
