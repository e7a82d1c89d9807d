// Package assemble turns looked-up window keys into labeled output rows.
package assemble

import (
	"fmt"
	"strconv"

	"github.com/inodb/kinwin/internal/genome"
)

// Region is a window part.
type Region uint8

const (
	Upstream Region = iota
	Target
	Downstream
)

// String returns the human-readable region name.
func (r Region) String() string {
	switch r {
	case Upstream:
		return "Upstream"
	case Target:
		return "Target"
	case Downstream:
		return "Downstream"
	}
	return "Region(" + strconv.Itoa(int(r)) + ")"
}

// Code returns the one-letter label prefix: s, m or e.
func (r Region) Code() byte {
	switch r {
	case Upstream:
		return 's'
	case Target:
		return 'm'
	}
	return 'e'
}

// LabelError reports an offset outside [1, 2e+w].
type LabelError struct {
	Offset    int64
	Width     int64
	Extension int64
}

func (e *LabelError) Error() string {
	return fmt.Sprintf("offset %d outside window of width %d and extension %d",
		e.Offset, e.Width, e.Extension)
}

// Classify returns the region of 1-based offset p and p's position inside it.
func Classify(p int64, w genome.Window) (Region, int64, error) {
	if p < 1 || p > w.Length() {
		return 0, 0, &LabelError{Offset: p, Width: w.Width, Extension: w.Extension}
	}
	switch {
	case p <= w.Extension:
		return Upstream, p, nil
	case p <= w.Extension+w.Width:
		return Target, p - w.Extension, nil
	default:
		return Downstream, p - w.Extension - w.Width, nil
	}
}

// Label builds the short label for offset p on the given observation strand,
// e.g. s3p or m12m.
func Label(p int64, w genome.Window, strand genome.Strand) (string, Region, error) {
	region, rel, err := Classify(p, w)
	if err != nil {
		return "", 0, err
	}
	b := make([]byte, 0, 24)
	b = append(b, region.Code())
	b = strconv.AppendInt(b, rel, 10)
	b = append(b, strand.LabelCode())
	return string(b), region, nil
}
