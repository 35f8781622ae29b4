package casereader

import (
	"errors"
	"fmt"
)

// Sentinel errors returned (possibly wrapped) by the reader.
// Use errors.Is to classify failures across layers.
var (
	// ErrInvalidStore indicates the file is missing, unreadable, or not a
	// recognized SQLite container. Raised at Open, before any query runs.
	ErrInvalidStore = errors.New("invalid case store")

	// ErrCaseNotFound indicates a point lookup by coordinate or case name
	// matched no row.
	ErrCaseNotFound = errors.New("case not found")

	// ErrSourceNotFound indicates a requested source string matches no
	// category or hierarchy location in the store.
	ErrSourceNotFound = errors.New("source not found")

	// ErrUnknownVariable indicates a name lookup against the metadata
	// catalog failed, either because the name is absent or because a
	// promoted name is ambiguous.
	ErrUnknownVariable = errors.New("unknown variable")
)

// UnsupportedFormatVersionError is returned from Open when the store's
// format_version is outside the supported range. This is fatal for the
// whole store, never per-case.
type UnsupportedFormatVersionError struct {
	Version int
}

func (e *UnsupportedFormatVersionError) Error() string {
	return fmt.Sprintf("unsupported case store format version %d (supported: 1-%d)",
		e.Version, FormatVersion)
}

// DecodeError wraps a failure to decode one stored value, tagged with the
// table and coordinate of the offending record so callers can identify
// which row is corrupt. Decode failures are never silently skipped.
type DecodeError struct {
	Table      string
	Coordinate string
	Err        error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s row %q: %v", e.Table, e.Coordinate, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// caseNotFound builds a wrapped ErrCaseNotFound for a specific key.
func caseNotFound(category Category, key string) error {
	return fmt.Errorf("%s case %q: %w", category, key, ErrCaseNotFound)
}

// unknownVariable builds a wrapped ErrUnknownVariable with a reason.
func unknownVariable(name, reason string) error {
	return fmt.Errorf("variable %q (%s): %w", name, reason, ErrUnknownVariable)
}
