package duckdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"math"

	goduckdb "github.com/marcboeker/go-duckdb"
	"go.uber.org/zap"

	"github.com/inodb/kinwin/internal/kinetics"
)

// ErrReadOnly is returned when writing to a Parquet-backed container.
var ErrReadOnly = errors.New("container is read-only")

// WriteChrom appends the covered slots of one chromosome using the Appender API.
func (s *Store) WriteChrom(chrom string, c *kinetics.ChromArrays) (int, error) {
	if s.readOnly {
		return 0, ErrReadOnly
	}
	conn, err := s.db.Conn(context.Background())
	if err != nil {
		return 0, fmt.Errorf("get connection: %w", err)
	}
	defer conn.Close()

	var appender *goduckdb.Appender
	if err := conn.Raw(func(driverConn any) error {
		var err error
		appender, err = goduckdb.NewAppenderFromConn(driverConn.(driver.Conn), "", "kinetics_columns")
		return err
	}); err != nil {
		return 0, fmt.Errorf("create appender: %w", err)
	}
	defer appender.Close()

	written := 0
	for i := 0; i < c.Len(); i++ {
		if c.Coverage[i] == 0 {
			continue
		}
		var base any
		if c.Base[i] != 0 {
			base = string(c.Base[i])
		}
		if err := appender.AppendRow(
			chrom, int64(i), c.Tpl[i], c.Strand[i], base,
			c.Score[i], c.TMean[i], c.TErr[i], c.ModelPrediction[i], c.IPDRatio[i],
			c.Coverage[i], nullable(c.Frac[i]), nullable(c.FracLow[i]), nullable(c.FracUp[i]),
		); err != nil {
			return written, fmt.Errorf("append kinetics slot %d of %s: %w", i, chrom, err)
		}
		written++
	}

	if err := appender.Flush(); err != nil {
		return written, fmt.Errorf("flush appender: %w", err)
	}
	s.logger.Debug("wrote chromosome", zap.String("chrom", chrom), zap.Int("slots", written))
	return written, nil
}

// WriteAll writes every chromosome of src in name order and returns the
// number of slots written.
func (s *Store) WriteAll(src kinetics.ColumnSource) (int, error) {
	total := 0
	err := src.Each(func(chrom string, c *kinetics.ChromArrays) error {
		n, err := s.WriteChrom(chrom, c)
		total += n
		return err
	})
	return total, err
}

// nullable maps NaN fractions to SQL NULL.
func nullable(v float32) any {
	if math.IsNaN(float64(v)) {
		return nil
	}
	return v
}

// LoadChrom reads one chromosome into dense columns sized to its highest
// stored offset. It returns nil, nil when the chromosome is not present.
// Rows are placed by their stored idx; kinetics.ColumnarTable checks that
// each covered slot holds the key it is looked up by.
func (s *Store) LoadChrom(chrom string) (*kinetics.ChromArrays, error) {
	var maxIdx sql.NullInt64
	if err := s.db.QueryRow(
		"SELECT MAX(idx) FROM kinetics_columns WHERE ref_name = ?", chrom,
	).Scan(&maxIdx); err != nil {
		return nil, fmt.Errorf("query extent of %s: %w", chrom, err)
	}
	if !maxIdx.Valid {
		return nil, nil
	}
	if maxIdx.Int64 < 0 || maxIdx.Int64 > kinetics.MaxIndex {
		return nil, fmt.Errorf("chromosome %s has out-of-range offset %d", chrom, maxIdx.Int64)
	}

	rows, err := s.db.Query(`SELECT
		idx, tpl, strand, base, score, t_mean, t_err, model_prediction, ipd_ratio,
		coverage, frac, frac_low, frac_up
		FROM kinetics_columns
		WHERE ref_name = ?`, chrom)
	if err != nil {
		return nil, fmt.Errorf("query chromosome %s: %w", chrom, err)
	}
	defer rows.Close()

	c := kinetics.NewChromArrays(int(maxIdx.Int64 + 1))
	loaded := 0
	for rows.Next() {
		var (
			idx, tpl              int64
			strand                uint8
			base                  sql.NullString
			score, coverage       uint32
			tMean, tErr           float32
			pred, ipd             float32
			frac, fracLow, fracUp sql.NullFloat64
		)
		if err := rows.Scan(&idx, &tpl, &strand, &base, &score,
			&tMean, &tErr, &pred, &ipd, &coverage,
			&frac, &fracLow, &fracUp); err != nil {
			return nil, fmt.Errorf("scan kinetics slot: %w", err)
		}
		if idx < 0 || idx > maxIdx.Int64 {
			return nil, fmt.Errorf("chromosome %s has out-of-range offset %d", chrom, idx)
		}
		i := int(idx)
		c.Tpl[i] = tpl
		c.Strand[i] = strand
		if base.Valid && len(base.String) == 1 {
			c.Base[i] = base.String[0]
		}
		c.Score[i] = score
		c.TMean[i] = tMean
		c.TErr[i] = tErr
		c.ModelPrediction[i] = pred
		c.IPDRatio[i] = ipd
		c.Coverage[i] = coverage
		c.Frac[i] = nanIfNull(frac)
		c.FracLow[i] = nanIfNull(fracLow)
		c.FracUp[i] = nanIfNull(fracUp)
		loaded++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chromosome %s: %w", chrom, err)
	}
	s.logger.Debug("read chromosome", zap.String("chrom", chrom), zap.Int("slots", loaded))
	return c, nil
}

func nanIfNull(v sql.NullFloat64) float32 {
	if !v.Valid {
		return float32(math.NaN())
	}
	return float32(v.Float64)
}
