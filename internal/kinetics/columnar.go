package kinetics

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/inodb/kinwin/internal/genome"
)

// MaxIndex is the largest offset a chromosome's columns can hold.
const MaxIndex = math.MaxInt32 - 1

// ErrIndexRange is returned for rows whose key has no column offset.
var ErrIndexRange = errors.New("position outside the columnar index range")

// Index returns the array offset of k in a chromosome's columns:
// (pos-1)*2 + strand. ok is false for positions that cannot be stored.
func Index(k genome.Key) (idx int64, ok bool) {
	if k.Pos < 1 || k.Pos > MaxIndex/2+1 || !k.Strand.Valid() {
		return 0, false
	}
	idx = (k.Pos-1)*2 + int64(k.Strand)
	if idx > MaxIndex {
		return 0, false
	}
	return idx, true
}

// ChromArrays holds one chromosome's kinetics as parallel columns indexed by
// Index. Slots without data have zero coverage. Fraction columns hold NaN
// where no fraction was reported.
type ChromArrays struct {
	Tpl             []int64
	Strand          []uint8
	Base            []byte
	Score           []uint32
	TMean           []float32
	TErr            []float32
	ModelPrediction []float32
	IPDRatio        []float32
	Coverage        []uint32
	Frac            []float32
	FracLow         []float32
	FracUp          []float32
}

// NewChromArrays allocates n empty slots.
func NewChromArrays(n int) *ChromArrays {
	c := &ChromArrays{
		Tpl:             make([]int64, n),
		Strand:          make([]uint8, n),
		Base:            make([]byte, n),
		Score:           make([]uint32, n),
		TMean:           make([]float32, n),
		TErr:            make([]float32, n),
		ModelPrediction: make([]float32, n),
		IPDRatio:        make([]float32, n),
		Coverage:        make([]uint32, n),
		Frac:            make([]float32, n),
		FracLow:         make([]float32, n),
		FracUp:          make([]float32, n),
	}
	nan := float32(math.NaN())
	for i := 0; i < n; i++ {
		c.Frac[i], c.FracLow[i], c.FracUp[i] = nan, nan, nan
	}
	return c
}

// Len returns the number of slots.
func (c *ChromArrays) Len() int {
	return len(c.Coverage)
}

// Set writes a record into slot i.
func (c *ChromArrays) Set(i int, tpl int64, strand genome.Strand, rec Record) {
	c.Tpl[i] = tpl
	c.Strand[i] = uint8(strand)
	c.Base[i] = rec.Base
	c.Score[i] = rec.Score
	c.TMean[i] = rec.TMean
	c.TErr[i] = rec.TErr
	c.ModelPrediction[i] = rec.ModelPrediction
	c.IPDRatio[i] = rec.IPDRatio
	c.Coverage[i] = rec.Coverage
	c.Frac[i] = nullToNaN(rec.Frac)
	c.FracLow[i] = nullToNaN(rec.FracLow)
	c.FracUp[i] = nullToNaN(rec.FracUp)
}

// Record returns the record stored in slot i.
func (c *ChromArrays) Record(i int) Record {
	return Record{
		Base:            c.Base[i],
		Score:           c.Score[i],
		TMean:           c.TMean[i],
		TErr:            c.TErr[i],
		ModelPrediction: c.ModelPrediction[i],
		IPDRatio:        c.IPDRatio[i],
		Coverage:        c.Coverage[i],
		Frac:            finiteFloat32(c.Frac[i]),
		FracLow:         finiteFloat32(c.FracLow[i]),
		FracUp:          finiteFloat32(c.FracUp[i]),
	}
}

func nullToNaN(v NullFloat32) float32 {
	if !v.Valid {
		return float32(math.NaN())
	}
	return v.Float32
}

// lookup resolves k within one chromosome.
func (c *ChromArrays) lookup(k genome.Key) (Record, error) {
	idx, ok := Index(k)
	if !ok || idx >= int64(c.Len()) {
		return Record{}, nil
	}
	i := int(idx)
	if c.Coverage[i] == 0 {
		return Record{}, nil
	}
	if c.Tpl[i] != k.Pos || c.Strand[i] != uint8(k.Strand) {
		return Record{}, genome.Inconsistent("slot %d of %s holds tpl %d strand %d, requested %s",
			i, k.Chrom, c.Tpl[i], c.Strand[i], k)
	}
	return c.Record(i), nil
}

// ChromLoader fetches one chromosome's columns.
// It returns nil, nil when the chromosome is not in the dataset.
type ChromLoader interface {
	LoadChrom(chrom string) (*ChromArrays, error)
}

// ColumnarTable is the columnar backend: chromosomes are loaded on first use
// and kept for the rest of the run.
type ColumnarTable struct {
	loader ChromLoader
	chroms map[string]*ChromArrays
	logger *zap.Logger
}

// NewColumnarTable creates a table that loads chromosomes through loader.
func NewColumnarTable(loader ChromLoader) *ColumnarTable {
	return &ColumnarTable{
		loader: loader,
		chroms: make(map[string]*ChromArrays),
		logger: zap.NewNop(),
	}
}

// SetLogger sets the logger used for chromosome load messages.
func (t *ColumnarTable) SetLogger(l *zap.Logger) {
	t.logger = l
}

// Lookup returns the record at k, or the zero Record when the chromosome, the
// slot or its coverage is missing. A covered slot that does not hold k is an
// internal consistency error.
func (t *ColumnarTable) Lookup(k genome.Key) (Record, error) {
	c, err := t.chrom(k.Chrom)
	if err != nil {
		return Record{}, err
	}
	if c == nil {
		return Record{}, nil
	}
	return c.lookup(k)
}

func (t *ColumnarTable) chrom(name string) (*ChromArrays, error) {
	if c, ok := t.chroms[name]; ok {
		return c, nil
	}
	c, err := t.loader.LoadChrom(name)
	if err != nil {
		return nil, fmt.Errorf("load chromosome %s: %w", name, err)
	}
	if c == nil {
		t.logger.Warn("chromosome not in kinetics dataset", zap.String("chrom", name))
	} else {
		t.logger.Info("loaded chromosome", zap.String("chrom", name), zap.Int("slots", c.Len()))
	}
	t.chroms[name] = c
	return c, nil
}

// Chromosomes returns the sorted names of chromosomes loaded so far,
// including ones that turned out to be absent.
func (t *ColumnarTable) Chromosomes() []string {
	names := make([]string, 0, len(t.chroms))
	for name := range t.chroms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ColumnSource visits chromosome columns in name order.
type ColumnSource interface {
	Each(fn func(chrom string, c *ChromArrays) error) error
}

// MemoryLoader serves chromosomes from a prebuilt map.
type MemoryLoader map[string]*ChromArrays

// LoadChrom implements ChromLoader.
func (m MemoryLoader) LoadChrom(chrom string) (*ChromArrays, error) {
	return m[chrom], nil
}

// Each implements ColumnSource.
func (m MemoryLoader) Each(fn func(chrom string, c *ChromArrays) error) error {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := fn(name, m[name]); err != nil {
			return err
		}
	}
	return nil
}

// ColumnarBuilder collects rows and lays them out as per-chromosome columns.
type ColumnarBuilder struct {
	rows map[string][]Row
}

// NewColumnarBuilder creates an empty builder.
func NewColumnarBuilder() *ColumnarBuilder {
	return &ColumnarBuilder{rows: make(map[string][]Row)}
}

// Add queues a row. Rows whose key has no column offset are rejected with an
// error wrapping ErrIndexRange.
func (b *ColumnarBuilder) Add(row Row) error {
	if _, ok := Index(row.Key); !ok {
		return fmt.Errorf("%w: %s", ErrIndexRange, row.Key)
	}
	b.rows[row.Key.Chrom] = append(b.rows[row.Key.Chrom], row)
	return nil
}

// AddAll queues every row from r.
func (b *ColumnarBuilder) AddAll(r RowReader) error {
	for {
		row, err := r.Next()
		if err != nil {
			return fmt.Errorf("read kinetics row: %w", err)
		}
		if row == nil {
			return nil
		}
		if err := b.Add(*row); err != nil {
			return err
		}
	}
}

// Chromosomes returns the sorted names of the queued chromosomes.
func (b *ColumnarBuilder) Chromosomes() []string {
	names := make([]string, 0, len(b.rows))
	for name := range b.rows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Each lays out one chromosome at a time in name order and passes its
// columns to fn. Only the chromosome being visited is held in dense form.
func (b *ColumnarBuilder) Each(fn func(chrom string, c *ChromArrays) error) error {
	for _, chrom := range b.Chromosomes() {
		c, err := layout(b.rows[chrom])
		if err != nil {
			return fmt.Errorf("lay out %s: %w", chrom, err)
		}
		if err := fn(chrom, c); err != nil {
			return err
		}
	}
	return nil
}

// Build returns the columns of every chromosome added so far. Each
// chromosome's arrays are sized to its highest offset plus one. Later rows
// replace earlier rows with the same key.
func (b *ColumnarBuilder) Build() (MemoryLoader, error) {
	out := make(MemoryLoader, len(b.rows))
	err := b.Each(func(chrom string, c *ChromArrays) error {
		out[chrom] = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func layout(rows []Row) (*ChromArrays, error) {
	var maxIdx int64 = -1
	for _, r := range rows {
		idx, ok := Index(r.Key)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrIndexRange, r.Key)
		}
		maxIdx = max(maxIdx, idx)
	}
	c := NewChromArrays(int(maxIdx + 1))
	for _, r := range rows {
		idx, _ := Index(r.Key)
		c.Set(int(idx), r.Key.Pos, r.Key.Strand, r.Record)
	}
	return c, nil
}
