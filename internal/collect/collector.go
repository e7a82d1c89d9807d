// Package collect drives the per-occurrence loop: expand each occurrence into
// its window keys, resolve them against the kinetics table and stream the
// labeled rows to the output.
package collect

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/inodb/kinwin/internal/assemble"
	"github.com/inodb/kinwin/internal/genome"
	"github.com/inodb/kinwin/internal/kinetics"
	"github.com/inodb/kinwin/internal/metrics"
	"github.com/inodb/kinwin/internal/occ"
)

// progressEvery is how often, in occurrences, progress is logged.
const progressEvery = 10000

// OccurrenceReader yields occurrences in input order; nil, nil at the end.
type OccurrenceReader interface {
	Next() (*occ.Occurrence, error)
}

// RowWriter defines the interface for writing output rows.
type RowWriter interface {
	WriteHeader() error
	WriteAll(rows []assemble.Row) error
	Flush() error
}

// Stats summarizes a run.
type Stats struct {
	Occurrences int
	Rows        int
	Missing     int // rows whose key had no kinetics data
}

// Collector extracts kinetics windows for a stream of occurrences.
type Collector struct {
	window    genome.Window
	mode      genome.Mode
	assembler *assemble.Assembler
	metrics   *metrics.Recorder
	logger    *zap.Logger
}

// New creates a collector reading from table with the given window.
func New(table kinetics.Table, window genome.Window) *Collector {
	return &Collector{
		window:    window,
		mode:      genome.StrandAgnostic,
		assembler: assemble.New(table, window),
		logger:    zap.NewNop(),
	}
}

// SetMode selects the window expansion path. Both modes produce the same keys.
func (c *Collector) SetMode(m genome.Mode) {
	c.mode = m
}

// SetLogger sets the logger for progress messages.
func (c *Collector) SetLogger(l *zap.Logger) {
	c.logger = l
}

// SetMetrics sets the recorder for run counters.
func (c *Collector) SetMetrics(m *metrics.Recorder) {
	c.metrics = m
}

// CollectAll processes every occurrence in order. The header is written first,
// so an empty occurrence list still yields a header-only output. The run stops
// at the first error; ctx is checked between occurrences.
func (c *Collector) CollectAll(ctx context.Context, occs OccurrenceReader, w RowWriter) (Stats, error) {
	var stats Stats
	if err := w.WriteHeader(); err != nil {
		return stats, fmt.Errorf("write header: %w", err)
	}

	var rows []assemble.Row
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		o, err := occs.Next()
		if err != nil {
			return stats, fmt.Errorf("read occurrence: %w", err)
		}
		if o == nil {
			break
		}
		stats.Occurrences++
		src := stats.Occurrences

		start := time.Now()
		keys, err := c.window.Keys(o.Key(), c.mode)
		if err != nil {
			return stats, fmt.Errorf("expand occurrence %d (line %d): %w", src, o.Line, err)
		}
		rows, err = c.assembler.Rows(rows, src, keys)
		if err != nil {
			return stats, fmt.Errorf("assemble occurrence %d: %w", src, err)
		}
		if err := w.WriteAll(rows); err != nil {
			return stats, fmt.Errorf("write rows: %w", err)
		}

		missing := 0
		for i := range rows {
			if rows[i].Record.Coverage == 0 {
				missing++
			}
		}
		stats.Rows += len(rows)
		stats.Missing += missing
		c.metrics.Occurrence(o.Chrom, len(rows), missing, time.Since(start))

		if stats.Occurrences%progressEvery == 0 {
			c.logger.Info("progress",
				zap.Int("occurrences", stats.Occurrences),
				zap.Int("rows", stats.Rows))
		}
	}

	if stats.Occurrences == 0 {
		c.logger.Info("0 occurrences processed")
	}
	if err := w.Flush(); err != nil {
		return stats, fmt.Errorf("flush output: %w", err)
	}
	return stats, nil
}
