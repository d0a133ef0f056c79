// Package censuserr defines the error taxonomy shared across the
// ledger pipeline. Each kind is a distinguishing sentinel so callers
// can use errors.Is/errors.As against a stable type regardless of the
// wrapped message, following the fmt.Errorf("...: %w", err) wrapping
// idiom used throughout the codebase.
package censuserr

import "fmt"

// Kind is a taxonomy tag from the error handling design.
type Kind string

const (
	KindConfig            Kind = "config"
	KindTransactionFormat Kind = "transaction_format"
	KindTransactionData   Kind = "transaction_data"
	KindDSLParse          Kind = "dsl_parse"
	KindValidation        Kind = "validation"
	KindSubmit            Kind = "submit"
	KindBuild             Kind = "build"
	KindDatasheets        Kind = "datasheets"
	KindVersionNotFound   Kind = "version_not_found"
)

// Error is the concrete error type for every kind in the taxonomy. It
// carries enough location context to print a useful CLI diagnostic.
type Error struct {
	Kind    Kind
	Path    string
	Row     int // 1-indexed; 0 means not applicable
	Column  string
	Line    int // DSL line number; 0 means not applicable
	Message string
	Err     error // underlying cause, if any
}

func (e *Error) Error() string {
	loc := ""
	switch {
	case e.Path != "" && e.Row > 0 && e.Column != "":
		loc = fmt.Sprintf("%s:row %d:%s: ", e.Path, e.Row, e.Column)
	case e.Path != "" && e.Line > 0:
		loc = fmt.Sprintf("%s:line %d: ", e.Path, e.Line)
	case e.Path != "":
		loc = e.Path + ": "
	}
	if e.Err != nil {
		return fmt.Sprintf("%s%s: %s: %v", loc, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s%s: %s", loc, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports equality by Kind, so errors.Is(err, censuserr.Config)
// style sentinels work against any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinels for errors.Is comparisons: errors.Is(err, censuserr.Config).
var (
	Config            = &Error{Kind: KindConfig}
	TransactionFormat = &Error{Kind: KindTransactionFormat}
	TransactionData   = &Error{Kind: KindTransactionData}
	DSLParse          = &Error{Kind: KindDSLParse}
	Validation        = &Error{Kind: KindValidation}
	Submit            = &Error{Kind: KindSubmit}
	Build             = &Error{Kind: KindBuild}
	Datasheets        = &Error{Kind: KindDatasheets}
	VersionNotFound   = &Error{Kind: KindVersionNotFound}
)

// Configf builds a ConfigError with a formatted message.
func Configf(path, format string, args ...any) *Error {
	return &Error{Kind: KindConfig, Path: path, Message: fmt.Sprintf(format, args...)}
}

// WrapConfig wraps an underlying error as a ConfigError.
func WrapConfig(path string, err error) *Error {
	return &Error{Kind: KindConfig, Path: path, Message: "invalid configuration", Err: err}
}

// TransactionFormatf builds a TransactionFormatError.
func TransactionFormatf(path, format string, args ...any) *Error {
	return &Error{Kind: KindTransactionFormat, Path: path, Message: fmt.Sprintf(format, args...)}
}

// TransactionDataf builds a TransactionDataError with row/column location.
func TransactionDataf(path string, row int, column, format string, args ...any) *Error {
	return &Error{Kind: KindTransactionData, Path: path, Row: row, Column: column, Message: fmt.Sprintf(format, args...)}
}

// DSLParsef builds a DSLParseError with a line number and offending text.
func DSLParsef(path string, line int, format string, args ...any) *Error {
	return &Error{Kind: KindDSLParse, Path: path, Line: line, Message: fmt.Sprintf(format, args...)}
}

// Validationf builds a ValidationError for a set of blocking issues
// a report already carries (row/growth/taxonomy/DSL validation
// failures), as opposed to a format or config problem.
func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Submitf builds a SubmitError aggregating a rejection reason.
func Submitf(format string, args ...any) *Error {
	return &Error{Kind: KindSubmit, Message: fmt.Sprintf(format, args...)}
}

// Buildf builds a BuildError.
func Buildf(format string, args ...any) *Error {
	return &Error{Kind: KindBuild, Message: fmt.Sprintf(format, args...)}
}

// Datasheetsf builds a DatasheetsError.
func Datasheetsf(format string, args ...any) *Error {
	return &Error{Kind: KindDatasheets, Message: fmt.Sprintf(format, args...)}
}

// VersionNotFoundf builds a VersionNotFoundError.
func VersionNotFoundf(format string, args ...any) *Error {
	return &Error{Kind: KindVersionNotFound, Message: fmt.Sprintf(format, args...)}
}
