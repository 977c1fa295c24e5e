// Package diag defines the diagnostic model shared by the build pipeline.
//
// Diagnostics are produced per pipeline stage, keyed by file and byte
// range, and carry a stable string code so suppress comments and
// configured filters can refer to them.
package diag

import "fmt"

// Stage identifies the pipeline stage that produced a diagnostic.
// Stages are ordered; building a file at one stage implies all lower
// stages have run.
type Stage uint8

const (
	StageSyntax Stage = iota
	StageArch
	StageArchEval
	StageValidation
)

// String returns the lowercase stage name.
func (s Stage) String() string {
	switch s {
	case StageSyntax:
		return "syntax"
	case StageArch:
		return "arch"
	case StageArchEval:
		return "arch_eval"
	case StageValidation:
		return "validation"
	}
	return fmt.Sprintf("stage(%d)", uint8(s))
}

// Severity mirrors the LSP diagnostic severity scale.
type Severity uint8

const (
	SeverityError Severity = iota + 1
	SeverityWarning
	SeverityInfo
	SeverityHint
)

// String returns the lowercase severity name.
func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	case SeverityHint:
		return "hint"
	}
	return fmt.Sprintf("severity(%d)", uint8(s))
}

// Codes emitted by the built-in checks.
const (
	CodeSyntaxError       = "syntax-error"
	CodeUndefinedName     = "undefined-name"
	CodeUnresolvedImport  = "unresolved-import"
	CodeInvalidManifest   = "invalid-manifest"
	CodeBaseClassNotFound = "base-class-not-found"
	CodeUnknownModel      = "unknown-model"
)

// Diagnostic is a single finding attached to a byte range of a file.
type Diagnostic struct {
	// Code is the stable identifier, e.g. "undefined-name".
	Code string

	// Severity is the reporting level.
	Severity Severity

	// Message is the human-readable description.
	Message string

	// Start and End are byte offsets into the file content.
	Start int
	End   int
}
