package assemble

import (
	"fmt"

	"github.com/inodb/kinwin/internal/genome"
	"github.com/inodb/kinwin/internal/kinetics"
)

// Row is one output record: a single window offset observed on one strand.
type Row struct {
	Position int64         // 1-based offset within the window, strand-local
	Strand   genome.Strand // observation strand, from the emission index
	Label    string
	Src      int // 1-based index of the source occurrence
	Record   kinetics.Record
	Ref      genome.Key // absolute coordinate the record was read from
	Region   Region
}

// Value returns the measured signal mean.
func (r *Row) Value() float32 {
	return r.Record.TMean
}

// Offset maps an emission index to its window offset and observation strand.
// Consecutive index pairs share one absolute position.
func Offset(j int) (int64, genome.Strand) {
	strand := genome.Plus
	if j%2 == 1 {
		strand = genome.Minus
	}
	return int64(j/2) + 1, strand
}

// Assembler resolves window keys against a kinetics table.
type Assembler struct {
	table  kinetics.Table
	window genome.Window
}

// New creates an assembler for one run.
func New(table kinetics.Table, window genome.Window) *Assembler {
	return &Assembler{table: table, window: window}
}

// Rows looks up every key of one occurrence's window and labels the results
// in emission order. The slice is reused across calls via dst.
func (a *Assembler) Rows(dst []Row, src int, keys []genome.Key) ([]Row, error) {
	dst = dst[:0]
	for j, k := range keys {
		rec, err := a.table.Lookup(k)
		if err != nil {
			return dst, fmt.Errorf("look up %s: %w", k, err)
		}
		p, strand := Offset(j)
		label, region, err := Label(p, a.window, strand)
		if err != nil {
			return dst, err
		}
		dst = append(dst, Row{
			Position: p,
			Strand:   strand,
			Label:    label,
			Src:      src,
			Record:   rec,
			Ref:      k,
			Region:   region,
		})
	}
	return dst, nil
}
