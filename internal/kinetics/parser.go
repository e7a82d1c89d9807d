package kinetics

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/inodb/kinwin/internal/genome"
)

// ipdSummary CSV column names.
const (
	ColRefName         = "refName"
	ColTpl             = "tpl"
	ColStrand          = "strand"
	ColBase            = "base"
	ColScore           = "score"
	ColTMean           = "tMean"
	ColTErr            = "tErr"
	ColModelPrediction = "modelPrediction"
	ColIPDRatio        = "ipdRatio"
	ColCoverage        = "coverage"
	ColFrac            = "frac"
	ColFracLow         = "fracLow"
	ColFracUp          = "fracUp"
)

// ColumnIndices holds the position of each ipdSummary column, -1 if absent.
type ColumnIndices struct {
	RefName         int
	Tpl             int
	Strand          int
	Base            int
	Score           int
	TMean           int
	TErr            int
	ModelPrediction int
	IPDRatio        int
	Coverage        int
	Frac            int
	FracLow         int
	FracUp          int
}

// Parser reads kinetics rows from an ipdSummary CSV stream.
type Parser struct {
	reader     *csv.Reader
	lineNumber int
	columns    ColumnIndices
}

// NewParser creates a parser and reads the header line from r.
func NewParser(r io.Reader) (*Parser, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	p := &Parser{reader: cr}
	if err := p.parseHeader(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Parser) parseHeader() error {
	header, err := p.reader.Read()
	if err != nil {
		if err == io.EOF {
			return &ParseError{Line: 1, Message: "no header line found"}
		}
		return fmt.Errorf("read kinetics header: %w", err)
	}
	p.lineNumber++

	p.columns = ColumnIndices{
		RefName: -1, Tpl: -1, Strand: -1, Base: -1, Score: -1,
		TMean: -1, TErr: -1, ModelPrediction: -1, IPDRatio: -1, Coverage: -1,
		Frac: -1, FracLow: -1, FracUp: -1,
	}
	for i, col := range header {
		switch strings.TrimSpace(col) {
		case ColRefName:
			p.columns.RefName = i
		case ColTpl:
			p.columns.Tpl = i
		case ColStrand:
			p.columns.Strand = i
		case ColBase:
			p.columns.Base = i
		case ColScore:
			p.columns.Score = i
		case ColTMean:
			p.columns.TMean = i
		case ColTErr:
			p.columns.TErr = i
		case ColModelPrediction:
			p.columns.ModelPrediction = i
		case ColIPDRatio:
			p.columns.IPDRatio = i
		case ColCoverage:
			p.columns.Coverage = i
		case ColFrac:
			p.columns.Frac = i
		case ColFracLow:
			p.columns.FracLow = i
		case ColFracUp:
			p.columns.FracUp = i
		}
	}

	required := []struct {
		name string
		idx  int
	}{
		{ColRefName, p.columns.RefName},
		{ColTpl, p.columns.Tpl},
		{ColStrand, p.columns.Strand},
		{ColScore, p.columns.Score},
		{ColTMean, p.columns.TMean},
		{ColTErr, p.columns.TErr},
		{ColModelPrediction, p.columns.ModelPrediction},
		{ColIPDRatio, p.columns.IPDRatio},
		{ColCoverage, p.columns.Coverage},
	}
	for _, r := range required {
		if r.idx < 0 {
			return &ParseError{Line: p.lineNumber, Message: fmt.Sprintf("missing required column %q", r.name)}
		}
	}
	return nil
}

// Columns returns the column layout found in the header.
func (p *Parser) Columns() ColumnIndices {
	return p.columns
}

// Next reads the next row. It returns nil, nil at the end of the input.
func (p *Parser) Next() (*Row, error) {
	fields, err := p.reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			return nil, &ParseError{Line: perr.Line, Message: perr.Err.Error()}
		}
		return nil, fmt.Errorf("read kinetics row: %w", err)
	}
	p.lineNumber++
	return p.parseFields(fields)
}

func (p *Parser) parseFields(fields []string) (*Row, error) {
	get := func(idx int) (string, bool) {
		if idx < 0 || idx >= len(fields) {
			return "", false
		}
		return fields[idx], true
	}
	need := func(idx int, name string) (string, error) {
		v, ok := get(idx)
		if !ok {
			return "", p.errorf("missing field %s", name)
		}
		return v, nil
	}

	var row Row
	var err error
	var s string

	if s, err = need(p.columns.RefName, ColRefName); err != nil {
		return nil, err
	}
	if s == "" {
		return nil, p.errorf("empty %s", ColRefName)
	}
	row.Key.Chrom = s

	if s, err = need(p.columns.Tpl, ColTpl); err != nil {
		return nil, err
	}
	if row.Key.Pos, err = strconv.ParseInt(s, 10, 64); err != nil {
		return nil, p.errorf("invalid %s: %s", ColTpl, s)
	}

	if s, err = need(p.columns.Strand, ColStrand); err != nil {
		return nil, err
	}
	switch s {
	case "0":
		row.Key.Strand = genome.Plus
	case "1":
		row.Key.Strand = genome.Minus
	default:
		return nil, p.errorf("invalid %s: %s", ColStrand, s)
	}

	if s, ok := get(p.columns.Base); ok && s != "" {
		if len(s) != 1 {
			return nil, p.errorf("invalid %s: %s", ColBase, s)
		}
		row.Record.Base = s[0]
	}

	rec := &row.Record
	if rec.Score, err = p.uint32Field(fields, p.columns.Score, ColScore); err != nil {
		return nil, err
	}
	if rec.TMean, err = p.float32Field(fields, p.columns.TMean, ColTMean); err != nil {
		return nil, err
	}
	if rec.TErr, err = p.float32Field(fields, p.columns.TErr, ColTErr); err != nil {
		return nil, err
	}
	if rec.ModelPrediction, err = p.float32Field(fields, p.columns.ModelPrediction, ColModelPrediction); err != nil {
		return nil, err
	}
	if rec.IPDRatio, err = p.float32Field(fields, p.columns.IPDRatio, ColIPDRatio); err != nil {
		return nil, err
	}
	if rec.Coverage, err = p.uint32Field(fields, p.columns.Coverage, ColCoverage); err != nil {
		return nil, err
	}
	if rec.Frac, err = p.optionalFloat32(fields, p.columns.Frac, ColFrac); err != nil {
		return nil, err
	}
	if rec.FracLow, err = p.optionalFloat32(fields, p.columns.FracLow, ColFracLow); err != nil {
		return nil, err
	}
	if rec.FracUp, err = p.optionalFloat32(fields, p.columns.FracUp, ColFracUp); err != nil {
		return nil, err
	}
	return &row, nil
}

func (p *Parser) uint32Field(fields []string, idx int, name string) (uint32, error) {
	if idx >= len(fields) {
		return 0, p.errorf("missing field %s", name)
	}
	v, err := strconv.ParseUint(fields[idx], 10, 32)
	if err != nil {
		return 0, p.errorf("invalid %s: %s", name, fields[idx])
	}
	return uint32(v), nil
}

func (p *Parser) float32Field(fields []string, idx int, name string) (float32, error) {
	if idx >= len(fields) {
		return 0, p.errorf("missing field %s", name)
	}
	v, err := strconv.ParseFloat(fields[idx], 32)
	if err != nil {
		return 0, p.errorf("invalid %s: %s", name, fields[idx])
	}
	return float32(v), nil
}

// optionalFloat32 parses a fraction column. A missing column, an empty
// field or a non-finite value such as "nan" means the value is absent.
func (p *Parser) optionalFloat32(fields []string, idx int, name string) (NullFloat32, error) {
	if idx < 0 || idx >= len(fields) || fields[idx] == "" {
		return NullFloat32{}, nil
	}
	v, err := strconv.ParseFloat(fields[idx], 32)
	if err != nil {
		return NullFloat32{}, p.errorf("invalid %s: %s", name, fields[idx])
	}
	return finiteFloat32(float32(v)), nil
}

func (p *Parser) errorf(format string, args ...any) error {
	return &ParseError{Line: p.lineNumber, Message: fmt.Sprintf(format, args...)}
}

// LineNumber returns the number of lines read so far.
func (p *Parser) LineNumber() int {
	return p.lineNumber
}

// ParseError represents an error during kinetics parsing with line context.
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("kinetics parse error at line %d: %s", e.Line, e.Message)
}
