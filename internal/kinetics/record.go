// Package kinetics provides per-base PacBio kinetics records (ipdSummary
// output) and the tables used to look them up by genomic key.
package kinetics

import (
	"math"

	"github.com/inodb/kinwin/internal/genome"
)

// NullFloat32 is a float32 that may be absent.
type NullFloat32 struct {
	Float32 float32
	Valid   bool
}

// Float32Of returns a present NullFloat32.
func Float32Of(v float32) NullFloat32 {
	return NullFloat32{Float32: v, Valid: true}
}

// finiteFloat32 treats NaN and infinities as absent.
func finiteFloat32(v float32) NullFloat32 {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return NullFloat32{}
	}
	return Float32Of(v)
}

// Record holds the kinetics measured at one base on one strand.
// The zero Record is the default returned for keys without data.
type Record struct {
	Base            byte // 0 when ipdSummary made no base call
	Score           uint32
	TMean           float32
	TErr            float32
	ModelPrediction float32
	IPDRatio        float32
	Coverage        uint32
	Frac            NullFloat32
	FracLow         NullFloat32
	FracUp          NullFloat32
}

// HasBase reports whether the record carries a base call.
func (r Record) HasBase() bool {
	return r.Base != 0
}

// Row is one parsed ipdSummary line: a key and its record.
type Row struct {
	Key    genome.Key
	Record Record
}

// Table resolves keys to kinetics records. A key without data resolves to the
// zero Record; the only error is an internal consistency violation or a
// failure of the underlying store.
type Table interface {
	Lookup(k genome.Key) (Record, error)
}
