// Package occ reads target occurrence lists: headerless, whitespace-delimited
// rows of chromosome, 0-based start and strand.
package occ

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/inodb/kinwin/internal/genome"
)

// Occurrence is one requested target.
type Occurrence struct {
	Chrom  string
	Start  int64 // 0-based left-most position, independent of strand
	Strand genome.Strand
	Line   int
}

// Key returns the occurrence's left-most 1-based coordinate key.
func (o *Occurrence) Key() genome.Key {
	return genome.NewKey(o.Chrom, o.Start+1, o.Strand)
}

// Parser reads occurrences from a stream.
type Parser struct {
	reader     *bufio.Reader
	lineNumber int
}

// NewParser creates a parser reading from r.
func NewParser(r io.Reader) *Parser {
	return &Parser{reader: bufio.NewReader(r)}
}

// Next reads the next occurrence. Returns nil, nil at the end of the input.
// Blank lines and lines starting with '#' are skipped; columns after the
// third are ignored.
func (p *Parser) Next() (*Occurrence, error) {
	for {
		line, err := p.reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("read occurrence line: %w", err)
		}
		if line == "" && err == io.EOF {
			return nil, nil
		}
		p.lineNumber++

		line = strings.TrimRight(line, "\r\n")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			if err == io.EOF {
				return nil, nil
			}
			continue
		}
		return p.parseLine(line)
	}
}

func (p *Parser) parseLine(line string) (*Occurrence, error) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return nil, &ParseError{
			Line:    p.lineNumber,
			Message: fmt.Sprintf("expected 3 columns (chrom start strand), found %d", len(fields)),
		}
	}

	start, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil || start < 0 || start == math.MaxInt64 {
		return nil, &ParseError{
			Line:    p.lineNumber,
			Message: fmt.Sprintf("invalid start: %s", fields[1]),
		}
	}

	strand, err := genome.ParseStrand(fields[2])
	if err != nil {
		return nil, &ParseError{Line: p.lineNumber, Message: err.Error(), Err: err}
	}

	return &Occurrence{
		Chrom:  fields[0],
		Start:  start,
		Strand: strand,
		Line:   p.lineNumber,
	}, nil
}

// LineNumber returns the number of lines read so far.
func (p *Parser) LineNumber() int {
	return p.lineNumber
}

// ParseError represents an error in an occurrence file with line context.
type ParseError struct {
	Line    int
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("occurrence parse error at line %d: %s", e.Line, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsStrandError reports whether err was caused by an unrecognized strand.
func IsStrandError(err error) bool {
	var se *genome.StrandError
	return errors.As(err, &se)
}
