package pipeline

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	KindConfiguration   Kind = "configuration_error"
	KindDiscoveryEmpty  Kind = "discovery_empty"
	KindParse           Kind = "parse_error"
	KindUnsupported     Kind = "unsupported_format"
	KindMissingArtifact Kind = "missing_upstream_artifact"
	KindEmptyDataset    Kind = "empty_dataset"
	KindMissingTarget   Kind = "missing_target_column"
	KindUnknown         Kind = "unknown"
)

// Error is a classified failure. Op names the operation that failed
// (e.g. "ingest: parse dummy_sdg.csv").
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with a kind and operation.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a classified error from a format string.
func Errorf(kind Kind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first classified error in err's chain,
// or KindUnknown.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

// IsKind reports whether err's chain carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// ExitCode maps an error to a process exit status. An empty drop is not a
// failure. Configuration errors exit with 2 so wrappers can tell them apart
// from stage failures.
func ExitCode(err error) int {
	switch {
	case err == nil, IsKind(err, KindDiscoveryEmpty):
		return 0
	case IsKind(err, KindConfiguration):
		return 2
	default:
		return 1
	}
}
