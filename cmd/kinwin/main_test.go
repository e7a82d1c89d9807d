package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const kineticsCSV = `refName,tpl,strand,base,score,tMean,tErr,modelPrediction,ipdRatio,coverage,frac,fracLow,fracUp
chr1,99,0,A,12,0.812,0.105,0.734,1.106,25,,,
chr1,99,1,T,8,0.5,0.09,0.61,0.82,22,,,
chr1,100,0,C,40,2.25,0.3,0.9,2.5,30,0.42,0.31,0.55
chr1,100,1,G,3,1.1,0.2,1.05,1.048,28,,,
chr1,101,0,T,5,0.9,0.1,0.8,1.125,31,,,
chr2,5,1,,0,0,0,0,0,1,,,
`

const wantHeader = "position,strand,value,label,src,base,score,tErr,modelPrediction,ipdRatio,coverage,ref_chr,ref_position,ref_strand,region"

type fixture struct {
	dir      string
	kinetics string
	occ      string
}

func newFixture(t *testing.T, occurrences string) fixture {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	f := fixture{
		dir:      dir,
		kinetics: filepath.Join(dir, "ipd.csv"),
		occ:      filepath.Join(dir, "occ.txt"),
	}
	require.NoError(t, os.WriteFile(f.kinetics, []byte(kineticsCSV), 0644))
	require.NoError(t, os.WriteFile(f.occ, []byte(occurrences), 0644))
	return f
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func TestVersion(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	code, out, _ := runCLI(t, "version")
	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "kinwin version dev")
}

func TestCollect_CSV(t *testing.T) {
	f := newFixture(t, "chr1 99 +\n")
	out := filepath.Join(f.dir, "out.csv")

	code, _, stderr := runCLI(t, "collect", "--kinetics", f.kinetics, "--occ", f.occ,
		"--occ-width", "1", "--extend", "1", "--output", out)
	require.Equal(t, ExitSuccess, code, stderr)

	lines := readLines(t, out)
	require.Len(t, lines, 7)
	assert.Equal(t, wantHeader, lines[0])
	assert.Equal(t, "1,+,0.812,s1p,1,A,12,0.105,0.734,1.106,25,chr1,99,0,Upstream", lines[1])
	assert.Equal(t, "2,+,2.25,m1p,1,C,40,0.3,0.9,2.5,30,chr1,100,0,Target", lines[3])
	// chr1:101:- has no data.
	assert.Equal(t, "3,-,0,e1m,1,,0,0,0,0,0,chr1,101,1,Downstream", lines[6])
}

func TestCollect_Stdout(t *testing.T) {
	f := newFixture(t, "")
	code, out, _ := runCLI(t, "collect", "-k", f.kinetics, "--occ", f.occ,
		"--occ-width", "3", "--extend", "2", "-o", "-")
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, wantHeader+"\n", out)
}

func TestCollect_ContainerMatchesCSV(t *testing.T) {
	f := newFixture(t, "chr1 98 +\nchr1 99 -\nchr2 4 -\nchr9 0 +\n")

	fromCSV := filepath.Join(f.dir, "csv.out")
	code, _, stderr := runCLI(t, "collect", "-k", f.kinetics, "--occ", f.occ,
		"--occ-width", "2", "--extend", "1", "-o", fromCSV)
	require.Equal(t, ExitSuccess, code, stderr)

	for _, name := range []string{"ipd.duckdb", "ipd.parquet"} {
		container := filepath.Join(f.dir, name)
		code, _, stderr = runCLI(t, "convert", "-k", f.kinetics, "-o", container)
		require.Equal(t, ExitSuccess, code, stderr)

		fromDB := filepath.Join(f.dir, name+".out")
		code, _, stderr = runCLI(t, "collect", "--kinetics-db", container, "--occ", f.occ,
			"--occ-width", "2", "--extend", "1", "-o", fromDB, "--mode", "respecting")
		require.Equal(t, ExitSuccess, code, stderr)
		assert.Equal(t, readLines(t, fromCSV), readLines(t, fromDB), name)
	}
}

func TestConvert_UpToDate(t *testing.T) {
	f := newFixture(t, "")
	container := filepath.Join(f.dir, "ipd.duckdb")

	code, _, _ := runCLI(t, "convert", "-k", f.kinetics, "-o", container)
	require.Equal(t, ExitSuccess, code)
	code, _, _ = runCLI(t, "convert", "-k", f.kinetics, "-o", container)
	require.Equal(t, ExitSuccess, code)
	code, _, _ = runCLI(t, "convert", "-k", f.kinetics, "-o", container, "--force", "--chrom", "chr2")
	require.Equal(t, ExitSuccess, code)
}

func TestCollect_RegionOverflow(t *testing.T) {
	f := newFixture(t, "chr1 99 +\n")
	out := filepath.Join(f.dir, "out.csv")

	code, _, stderr := runCLI(t, "collect", "-k", f.kinetics, "--occ", f.occ,
		"--occ-width", "10", "--extend", "4611686018427387903", "-o", out)
	assert.Equal(t, ExitError, code)
	assert.Contains(t, stderr, "region overflow")
	_, err := os.Stat(out)
	assert.True(t, os.IsNotExist(err), "no output before the region check")
}

func TestCollect_PositionOverflow(t *testing.T) {
	f := newFixture(t, "chr1 9223372036854775800 +\n")
	code, _, stderr := runCLI(t, "collect", "-k", f.kinetics, "--occ", f.occ,
		"--occ-width", "1", "--extend", "100", "-o", filepath.Join(f.dir, "out.csv"))
	assert.Equal(t, ExitError, code)
	assert.Contains(t, stderr, "target position overflowed")
	assert.Contains(t, stderr, "extension length 100")
}

func TestCollect_UsageErrors(t *testing.T) {
	f := newFixture(t, "chr1 99 +\n")
	out := filepath.Join(f.dir, "out.csv")
	tests := []struct {
		name string
		args []string
	}{
		{"no kinetics", []string{"--occ", f.occ, "--occ-width", "1", "--extend", "1", "-o", out}},
		{"both kinetics", []string{"-k", f.kinetics, "--kinetics-db", "x.duckdb", "--occ", f.occ, "--occ-width", "1", "--extend", "1", "-o", out}},
		{"no occ", []string{"-k", f.kinetics, "--occ-width", "1", "--extend", "1", "-o", out}},
		{"no width", []string{"-k", f.kinetics, "--occ", f.occ, "--extend", "1", "-o", out}},
		{"no extend", []string{"-k", f.kinetics, "--occ", f.occ, "--occ-width", "1", "-o", out}},
		{"zero width", []string{"-k", f.kinetics, "--occ", f.occ, "--occ-width", "0", "--extend", "1", "-o", out}},
		{"negative extend", []string{"-k", f.kinetics, "--occ", f.occ, "--occ-width", "1", "--extend", "-1", "-o", out}},
		{"bad mode", []string{"-k", f.kinetics, "--occ", f.occ, "--occ-width", "1", "--extend", "1", "-o", out, "--mode", "sideways"}},
		{"unknown flag", []string{"--bogus"}},
		{"two stdins", []string{"-k", "-", "--occ", "-", "--occ-width", "1", "--extend", "1", "-o", out}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, _ := runCLI(t, append([]string{"collect"}, tt.args...)...)
			assert.Equal(t, ExitUsage, code)
		})
	}
}

func TestCollect_BadStrand(t *testing.T) {
	f := newFixture(t, "chr1 99 x\n")
	code, _, stderr := runCLI(t, "collect", "-k", f.kinetics, "--occ", f.occ,
		"--occ-width", "1", "--extend", "1", "-o", filepath.Join(f.dir, "out.csv"))
	assert.Equal(t, ExitError, code)
	assert.Contains(t, stderr, "unexpected strand")
}

func TestCollect_ConfigAndMetrics(t *testing.T) {
	f := newFixture(t, "chr1 99 +\n")
	cfg := filepath.Join(f.dir, "kinwin.yaml")
	metricsFile := filepath.Join(f.dir, "kinwin.prom")

	code, _, _ := runCLI(t, "--config", cfg, "config", "set", "occ_width", "1")
	require.Equal(t, ExitSuccess, code)
	code, _, _ = runCLI(t, "--config", cfg, "config", "set", "extend", "1")
	require.Equal(t, ExitSuccess, code)

	code, out, _ := runCLI(t, "--config", cfg, "config", "get", "extend")
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, "1\n", out)

	code, _, stderr := runCLI(t, "--config", cfg, "collect", "-k", f.kinetics, "--occ", f.occ,
		"-o", filepath.Join(f.dir, "out.csv"), "--metrics-file", metricsFile)
	require.Equal(t, ExitSuccess, code, stderr)
	assert.Len(t, readLines(t, filepath.Join(f.dir, "out.csv")), 7)

	data, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "kinwin_rows_total")
	assert.Contains(t, string(data), "kinwin_table_records")
}

func TestConfig_GetUnset(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	code, _, stderr := runCLI(t, "config", "get", "nothing.here")
	assert.Equal(t, ExitError, code)
	assert.Contains(t, stderr, "not set")

	code, out, _ := runCLI(t, "config")
	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "No configuration set")
}

func TestConfig_SetValidation(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg := filepath.Join(t.TempDir(), "kinwin.yaml")

	code, _, _ := runCLI(t, "--config", cfg, "config", "set", "windowsize", "3")
	assert.Equal(t, ExitUsage, code)
	code, _, _ = runCLI(t, "--config", cfg, "config", "set", "extend", "ten")
	assert.Equal(t, ExitUsage, code)
	code, _, _ = runCLI(t, "--config", cfg, "config", "set", "s3.path_style", "maybe")
	assert.Equal(t, ExitUsage, code)
	_, err := os.Stat(cfg)
	assert.True(t, os.IsNotExist(err))

	code, out, _ := runCLI(t, "--config", cfg, "config", "set", "s3.path_style", "yes")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "s3.path_style = true")
	code, out, _ = runCLI(t, "--config", cfg, "config")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "path_style: true")
}

func TestConvert_PositionOutOfRange(t *testing.T) {
	f := newFixture(t, "")
	huge := filepath.Join(f.dir, "huge.csv")
	require.NoError(t, os.WriteFile(huge, []byte(kineticsCSV+"chr1,4000000000000000000,0,A,1,1,1,1,1,3,,,\n"), 0644))
	container := filepath.Join(f.dir, "huge.duckdb")

	code, _, stderr := runCLI(t, "convert", "-k", huge, "-o", container)
	assert.Equal(t, ExitError, code)
	assert.Contains(t, stderr, "columnar index range")
	_, err := os.Stat(container)
	assert.True(t, os.IsNotExist(err))
}
