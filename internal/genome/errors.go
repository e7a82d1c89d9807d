package genome

import (
	"errors"
	"fmt"
)

var (
	// ErrRegionOverflow is returned when extension*2 + width does not fit in an int64.
	ErrRegionOverflow = errors.New("region overflow: total region length exceeds int64")

	// ErrInvalidWindow is returned for a width below 1 or a negative extension.
	ErrInvalidWindow = errors.New("invalid window")

	// ErrInconsistent marks violations of internal invariants. These signal a
	// logic defect, never bad input.
	ErrInconsistent = errors.New("internal consistency violation")
)

// OverflowError reports a position that could not be extended without
// leaving the int64 range.
type OverflowError struct {
	Key       Key
	Extension int64
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("target position overflowed: %s position %d, extension length %d",
		e.Key.Chrom, e.Key.Pos, e.Extension)
}

// StrandError reports an unrecognized strand value.
type StrandError struct {
	Value string
}

func (e *StrandError) Error() string {
	return fmt.Sprintf("unexpected strand %q", e.Value)
}

// ConsistencyError describes an internal invariant violation.
// errors.Is(err, ErrInconsistent) is true for every ConsistencyError.
type ConsistencyError struct {
	Message string
}

func (e *ConsistencyError) Error() string {
	return ErrInconsistent.Error() + ": " + e.Message
}

func (e *ConsistencyError) Is(target error) bool {
	return target == ErrInconsistent
}

// Inconsistent returns a ConsistencyError with a formatted message.
func Inconsistent(format string, args ...any) error {
	return &ConsistencyError{Message: fmt.Sprintf(format, args...)}
}
