package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/inodb/kinwin/internal/collect"
	"github.com/inodb/kinwin/internal/genome"
	"github.com/inodb/kinwin/internal/kinetics"
	kduckdb "github.com/inodb/kinwin/internal/kinetics/duckdb"
	"github.com/inodb/kinwin/internal/metrics"
	"github.com/inodb/kinwin/internal/occ"
	"github.com/inodb/kinwin/internal/output"
	"github.com/inodb/kinwin/internal/source"
)

type collectOptions struct {
	kinetics   string
	kineticsDB string
	occ        string
	output     string
	mode       string
	profile    string
	profileDir string
}

func newCollectCmd(a *app) *cobra.Command {
	var opts collectOptions
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Collect kinetics windows around target occurrences",
		Long: `Collect per-base kinetics in a window around every occurrence.

The window covers --extend bases upstream, the --occ-width target bases and
--extend bases downstream, read on both strands. Kinetics come from either an
ipdSummary CSV (--kinetics) or a columnar container built by 'kinwin convert'
(--kinetics-db). Inputs may be local paths, '-' for stdin, or s3://bucket/key.`,
		Example: `  kinwin collect -k ipd.csv.gz --occ gatc.txt --occ-width 4 --extend 10 -o out.csv
  kinwin collect --kinetics-db ipd.duckdb --occ gatc.txt --occ-width 4 --extend 10 -o -
  kinwin collect -k s3://runs/ipd.csv.gz --occ - --occ-width 1 --extend 5 -o out.csv < occ.txt`,
		Args: noArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return bindFlags(cmd, map[string]string{
				"occ_width":    "occ-width",
				"extend":       "extend",
				"metrics_file": "metrics-file",
			})
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollect(cmd.Context(), a, &opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.kinetics, "kinetics", "k", "", "kinetics CSV generated by PacBio ipdSummary")
	f.StringVar(&opts.kineticsDB, "kinetics-db", "", "columnar kinetics container (.duckdb or .parquet)")
	f.StringVar(&opts.occ, "occ", "", "occurrence file: chromosome, 0-based start and strand per line, space delimited, no header")
	f.Int64("occ-width", 0, "length of the target region including the start position")
	f.Int64("extend", 0, "length of the extended region at each end of a target region")
	f.StringVarP(&opts.output, "output", "o", "", "output CSV path ('-' for stdout)")
	f.StringVar(&opts.mode, "mode", "agnostic", "window expansion path: agnostic or respecting")
	f.String("metrics-file", "", "write run metrics in Prometheus text format to this file")
	f.StringVar(&opts.profile, "profile", "", "write a cpu or mem profile")
	f.StringVar(&opts.profileDir, "profile-dir", ".", "directory for profile output")
	addS3Flags(cmd)
	f.MarkHidden("mode") //nolint:errcheck
	return cmd
}

func addS3Flags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("s3-region", "", "S3 region for s3:// inputs")
	f.String("s3-endpoint", "", "S3-compatible endpoint URL (e.g. MinIO)")
	f.Bool("s3-path-style", false, "use path-style S3 addressing")
}

// bindFlags binds the running command's flags to viper keys. Binding happens
// per invocation because several commands share key names.
func bindFlags(cmd *cobra.Command, keys map[string]string) error {
	keys["s3.region"] = "s3-region"
	keys["s3.endpoint"] = "s3-endpoint"
	keys["s3.path_style"] = "s3-path-style"
	for key, name := range keys {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			continue
		}
		if err := viper.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

func newOpener(a *app) *source.Opener {
	o := source.NewOpener(source.S3Config{
		Region:    viper.GetString("s3.region"),
		Endpoint:  viper.GetString("s3.endpoint"),
		PathStyle: viper.GetBool("s3.path_style"),
	})
	o.SetLogger(a.logger)
	return o
}

// windowFromConfig validates the window parameters before any input is read.
func windowFromConfig() (genome.Window, error) {
	if !viper.IsSet("occ_width") {
		return genome.Window{}, usagef("--occ-width is required")
	}
	if !viper.IsSet("extend") {
		return genome.Window{}, usagef("--extend is required")
	}
	w, err := genome.NewWindow(viper.GetInt64("occ_width"), viper.GetInt64("extend"))
	if errors.Is(err, genome.ErrInvalidWindow) {
		return genome.Window{}, &usageError{err: err}
	}
	return w, err
}

func (o *collectOptions) validate() error {
	switch {
	case o.kinetics == "" && o.kineticsDB == "":
		return usagef("one of --kinetics or --kinetics-db is required")
	case o.kinetics != "" && o.kineticsDB != "":
		return usagef("--kinetics and --kinetics-db are mutually exclusive")
	case o.occ == "":
		return usagef("--occ is required")
	case o.output == "":
		return usagef("--output is required")
	case o.kinetics == "-" && o.occ == "-":
		return usagef("only one input may be read from stdin")
	case o.kineticsDB == "-":
		return usagef("--kinetics-db cannot be read from stdin")
	}
	switch o.profile {
	case "", "cpu", "mem":
	default:
		return usagef("invalid --profile %q: want cpu or mem", o.profile)
	}
	return nil
}

func runCollect(ctx context.Context, a *app, opts *collectOptions) error {
	started := time.Now()
	if err := opts.validate(); err != nil {
		return err
	}
	mode, err := genome.ParseMode(opts.mode)
	if err != nil {
		return &usageError{err: err}
	}
	window, err := windowFromConfig()
	if err != nil {
		return err
	}

	switch opts.profile {
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(opts.profileDir), profile.Quiet, profile.NoShutdownHook).Stop()
	case "mem":
		defer profile.Start(profile.MemProfile, profile.ProfilePath(opts.profileDir), profile.Quiet, profile.NoShutdownHook).Stop()
	}

	rec := metrics.New(metrics.WithConstLabels(map[string]string{"run_id": a.runID}))
	opener := newOpener(a)

	a.logger.Info("starting collect",
		zap.Int64("occ_width", window.Width),
		zap.Int64("extend", window.Extension),
		zap.Stringer("mode", mode))

	table, closeTable, err := openTable(ctx, a, opener, opts, rec)
	if err != nil {
		return err
	}
	defer closeTable()

	occIn, err := opener.Open(ctx, opts.occ)
	if err != nil {
		return fmt.Errorf("open occurrences: %w", err)
	}
	defer occIn.Close()

	out, closeOut, err := openOutput(a, opts.output)
	if err != nil {
		return err
	}

	c := collect.New(table, window)
	c.SetMode(mode)
	c.SetLogger(a.logger)
	c.SetMetrics(rec)

	stats, err := c.CollectAll(ctx, occ.NewParser(occIn), output.NewCSVWriter(out))
	if cerr := closeOut(); err == nil && cerr != nil {
		err = fmt.Errorf("close output: %w", cerr)
	}
	if err != nil {
		return err
	}

	rec.RunDuration(time.Since(started))
	if path := viper.GetString("metrics_file"); path != "" {
		if err := rec.WriteTextfile(path); err != nil {
			return err
		}
	}

	a.logger.Info("collect complete",
		zap.Int("occurrences", stats.Occurrences),
		zap.Int("rows", stats.Rows),
		zap.Int("missing", stats.Missing),
		zap.Duration("elapsed", time.Since(started)))
	return nil
}

// openTable builds the kinetics table selected by the flags.
func openTable(ctx context.Context, a *app, opener *source.Opener, opts *collectOptions, rec *metrics.Recorder) (kinetics.Table, func(), error) {
	if opts.kinetics != "" {
		in, err := opener.Open(ctx, opts.kinetics)
		if err != nil {
			return nil, nil, fmt.Errorf("open kinetics: %w", err)
		}
		defer in.Close()

		p, err := kinetics.NewParser(in)
		if err != nil {
			return nil, nil, err
		}
		tbl, err := kinetics.LoadMapTable(p)
		if err != nil {
			return nil, nil, fmt.Errorf("load kinetics: %w", err)
		}
		rec.TableRecords(tbl.Len())
		a.logger.Info("loaded kinetics table", zap.String("path", opts.kinetics), zap.Int("records", tbl.Len()))
		return tbl, func() {}, nil
	}

	local, cleanup, err := opener.Localize(ctx, opts.kineticsDB, "")
	if err != nil {
		return nil, nil, fmt.Errorf("fetch kinetics container: %w", err)
	}
	if _, err := os.Stat(local); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("open kinetics container: %w", err)
	}
	store, err := kduckdb.Open(local)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	store.SetLogger(a.logger)
	tbl := kinetics.NewColumnarTable(store)
	tbl.SetLogger(a.logger)
	a.logger.Info("opened kinetics container", zap.String("path", opts.kineticsDB))
	return tbl, func() {
		a.logger.Info("closing kinetics container",
			zap.String("path", opts.kineticsDB),
			zap.Strings("chromosomes", tbl.Chromosomes()))
		store.Close()
		cleanup()
	}, nil
}

func openOutput(a *app, path string) (io.Writer, func() error, error) {
	if path == "-" {
		return a.stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create output file: %w", err)
	}
	return f, f.Close, nil
}
