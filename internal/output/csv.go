// Package output writes assembled kinetics window rows.
package output

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/inodb/kinwin/internal/assemble"
)

// Columns is the output header, in order.
var Columns = []string{
	"position",
	"strand",
	"value",
	"label",
	"src",
	"base",
	"score",
	"tErr",
	"modelPrediction",
	"ipdRatio",
	"coverage",
	"ref_chr",
	"ref_position",
	"ref_strand",
	"region",
}

// CSVWriter writes window rows as comma-separated values.
type CSVWriter struct {
	w      *csv.Writer
	record []string
}

// NewCSVWriter creates a new writer.
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{
		w:      csv.NewWriter(w),
		record: make([]string, len(Columns)),
	}
}

// WriteHeader writes the header line.
func (cw *CSVWriter) WriteHeader() error {
	return cw.w.Write(Columns)
}

// Write writes a single row.
func (cw *CSVWriter) Write(r *assemble.Row) error {
	rec := &r.Record

	base := ""
	if rec.HasBase() {
		base = string(rec.Base)
	}

	cw.record[0] = strconv.FormatInt(r.Position, 10)
	cw.record[1] = string(r.Strand.Char())
	cw.record[2] = formatFloat(r.Value())
	cw.record[3] = r.Label
	cw.record[4] = strconv.Itoa(r.Src)
	cw.record[5] = base
	cw.record[6] = strconv.FormatUint(uint64(rec.Score), 10)
	cw.record[7] = formatFloat(rec.TErr)
	cw.record[8] = formatFloat(rec.ModelPrediction)
	cw.record[9] = formatFloat(rec.IPDRatio)
	cw.record[10] = strconv.FormatUint(uint64(rec.Coverage), 10)
	cw.record[11] = r.Ref.Chrom
	cw.record[12] = strconv.FormatInt(r.Ref.Pos, 10)
	cw.record[13] = strconv.Itoa(int(r.Ref.Strand))
	cw.record[14] = r.Region.String()

	return cw.w.Write(cw.record)
}

// WriteAll writes a batch of rows.
func (cw *CSVWriter) WriteAll(rows []assemble.Row) error {
	for i := range rows {
		if err := cw.Write(&rows[i]); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes any buffered data to the underlying writer.
func (cw *CSVWriter) Flush() error {
	cw.w.Flush()
	return cw.w.Error()
}

// formatFloat renders the shortest decimal that round-trips as a float32.
func formatFloat(v float32) string {
	return strconv.FormatFloat(float64(v), 'f', -1, 32)
}
