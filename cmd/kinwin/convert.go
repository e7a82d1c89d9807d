package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/inodb/kinwin/internal/kinetics"
	kduckdb "github.com/inodb/kinwin/internal/kinetics/duckdb"
	"github.com/inodb/kinwin/internal/source"
)

type convertOptions struct {
	input  string
	output string
	chrom  string
	force  bool
}

func newConvertCmd(a *app) *cobra.Command {
	var opts convertOptions
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert an ipdSummary CSV to a columnar kinetics container",
		Long: `Convert an ipdSummary kinetics CSV to a columnar container for --kinetics-db.

Each chromosome is stored as dense columns indexed by (tpl-1)*2+strand, so
collect only loads the chromosomes it needs. The output is a DuckDB database,
or a Parquet file when the output path ends in .parquet.`,
		Example: `  # Convert the whole file
  kinwin convert --kinetics ipd.csv.gz --output ipd.duckdb

  # Convert a single chromosome to Parquet
  kinwin convert -k ipd.csv.gz -o chr1.parquet --chrom chr1`,
		Args: noArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return bindFlags(cmd, map[string]string{})
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd.Context(), a, &opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.input, "kinetics", "k", "", "kinetics CSV generated by PacBio ipdSummary")
	f.StringVarP(&opts.output, "output", "o", "", "output container (.duckdb or .parquet)")
	f.StringVar(&opts.chrom, "chrom", "", "only convert this chromosome")
	f.BoolVar(&opts.force, "force", false, "rebuild even if the container matches the input")
	addS3Flags(cmd)
	return cmd
}

// chromFilter passes through rows of one chromosome.
type chromFilter struct {
	r     kinetics.RowReader
	chrom string
}

func (f *chromFilter) Next() (*kinetics.Row, error) {
	for {
		row, err := f.r.Next()
		if err != nil || row == nil {
			return row, err
		}
		if row.Key.Chrom == f.chrom {
			return row, nil
		}
	}
}

func runConvert(ctx context.Context, a *app, opts *convertOptions) error {
	if opts.input == "" {
		return usagef("--kinetics is required")
	}
	if opts.output == "" {
		return usagef("--output is required")
	}
	parquet := kduckdb.IsParquet(opts.output)
	if !parquet && filepath.Ext(opts.output) != ".duckdb" && filepath.Ext(opts.output) != ".db" {
		opts.output += ".duckdb"
	}

	// Local inputs are fingerprinted so an up-to-date container is not rebuilt.
	var fp *kduckdb.FileFingerprint
	if opts.input != "-" && !source.IsS3(opts.input) && opts.chrom == "" {
		st, err := kduckdb.StatFile(opts.input)
		if err != nil {
			return fmt.Errorf("stat kinetics: %w", err)
		}
		fp = &st
	}
	if fp != nil && !parquet && !opts.force && containerCurrent(opts.output, *fp) {
		a.logger.Info("container up to date", zap.String("output", opts.output))
		return nil
	}

	a.logger.Info("converting kinetics",
		zap.String("input", opts.input),
		zap.String("output", opts.output),
		zap.String("chrom", opts.chrom))

	in, err := newOpener(a).Open(ctx, opts.input)
	if err != nil {
		return fmt.Errorf("open kinetics: %w", err)
	}
	defer in.Close()

	p, err := kinetics.NewParser(in)
	if err != nil {
		return err
	}
	var rows kinetics.RowReader = p
	if opts.chrom != "" {
		rows = &chromFilter{r: p, chrom: opts.chrom}
	}
	b := kinetics.NewColumnarBuilder()
	if err := b.AddAll(rows); err != nil {
		return fmt.Errorf("load kinetics: %w", err)
	}
	chroms := b.Chromosomes()
	if len(chroms) == 0 {
		a.logger.Warn("no kinetics rows to convert")
	}

	if _, err := os.Stat(opts.output); err == nil {
		if err := os.Remove(opts.output); err != nil {
			return fmt.Errorf("remove existing container: %w", err)
		}
	}

	storePath := opts.output
	if parquet {
		storePath = ""
	}
	store, err := kduckdb.Open(storePath)
	if err != nil {
		return err
	}
	defer store.Close()
	store.SetLogger(a.logger)

	written, err := store.WriteAll(b)
	if err != nil {
		return fmt.Errorf("write container: %w", err)
	}
	if parquet {
		if err := store.ExportParquet(opts.output); err != nil {
			return err
		}
	} else if fp != nil {
		if err := store.RecordSource(*fp, a.runID); err != nil {
			return err
		}
	}

	size := int64(-1)
	if st, err := os.Stat(opts.output); err == nil {
		size = st.Size()
	}
	a.logger.Info("conversion complete",
		zap.Strings("chromosomes", chroms),
		zap.Int("slots", written),
		zap.Int64("bytes", size),
		zap.String("output", opts.output))
	return nil
}

func containerCurrent(path string, fp kduckdb.FileFingerprint) bool {
	if _, err := os.Stat(path); err != nil {
		return false
	}
	store, err := kduckdb.Open(path)
	if err != nil {
		return false
	}
	defer store.Close()
	return store.SourceCurrent(fp)
}
