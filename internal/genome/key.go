// Package genome provides strand-aware genomic coordinates and the expansion of
// occurrence windows into ordered coordinate keys.
package genome

import (
	"fmt"
	"strconv"
)

// Strand is the binary strand code used by ipdSummary: 0 = plus, 1 = minus.
type Strand uint8

const (
	Plus  Strand = 0
	Minus Strand = 1
)

// ParseStrand converts a strand character ('+' or '-') into a Strand.
func ParseStrand(c string) (Strand, error) {
	switch c {
	case "+":
		return Plus, nil
	case "-":
		return Minus, nil
	}
	return 0, &StrandError{Value: c}
}

// Valid reports whether s is one of the two strand codes.
func (s Strand) Valid() bool {
	return s == Plus || s == Minus
}

// Opposite returns the other strand.
func (s Strand) Opposite() (Strand, error) {
	switch s {
	case Plus:
		return Minus, nil
	case Minus:
		return Plus, nil
	}
	return 0, &StrandError{Value: strconv.Itoa(int(s))}
}

// Char returns '+' or '-'.
func (s Strand) Char() byte {
	if s == Minus {
		return '-'
	}
	return '+'
}

// LabelCode returns the strand letter used in window labels: 'p' or 'm'.
func (s Strand) LabelCode() byte {
	if s == Minus {
		return 'm'
	}
	return 'p'
}

func (s Strand) String() string {
	return string(s.Char())
}

// Key identifies one base on one strand: (chromosome, 1-based position, strand).
// Keys are comparable and used directly as map keys.
type Key struct {
	Chrom  string
	Pos    int64 // 1-based
	Strand Strand
}

// NewKey returns a Key.
func NewKey(chrom string, pos int64, strand Strand) Key {
	return Key{Chrom: chrom, Pos: pos, Strand: strand}
}

// Opposite returns the same position on the other strand.
func (k Key) Opposite() (Key, error) {
	s, err := k.Strand.Opposite()
	if err != nil {
		return Key{}, err
	}
	return Key{Chrom: k.Chrom, Pos: k.Pos, Strand: s}, nil
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%d:%s", k.Chrom, k.Pos, k.Strand)
}

// addInt64 returns a+b and whether the sum did not overflow.
func addInt64(a, b int64) (int64, bool) {
	c := a + b
	return c, (c > a) == (b > 0)
}

// subInt64 returns a-b and whether the difference did not overflow.
func subInt64(a, b int64) (int64, bool) {
	c := a - b
	return c, (c < a) == (b > 0)
}
