package collect

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/inodb/kinwin/internal/genome"
	"github.com/inodb/kinwin/internal/kinetics"
	"github.com/inodb/kinwin/internal/metrics"
	"github.com/inodb/kinwin/internal/occ"
	"github.com/inodb/kinwin/internal/output"
)

const header = "position,strand,value,label,src,base,score,tErr,modelPrediction,ipdRatio,coverage,ref_chr,ref_position,ref_strand,region"

// One record per strand for positions 99..101 of chr1; tMean encodes the key.
const kineticsCSV = `refName,tpl,strand,base,score,tMean,tErr,modelPrediction,ipdRatio,coverage
chr1,99,0,A,1,99.0,0.1,1,1,10
chr1,99,1,T,1,99.5,0.1,1,1,10
chr1,100,0,C,1,100.0,0.1,1,1,10
chr1,100,1,G,1,100.5,0.1,1,1,10
chr1,101,0,G,1,101.0,0.1,1,1,10
chr1,101,1,C,1,101.5,0.1,1,1,10
`

func tables(t *testing.T) map[string]kinetics.Table {
	t.Helper()
	read := func() *kinetics.Parser {
		p, err := kinetics.NewParser(strings.NewReader(kineticsCSV))
		require.NoError(t, err)
		return p
	}
	mt, err := kinetics.LoadMapTable(read())
	require.NoError(t, err)
	b := kinetics.NewColumnarBuilder()
	require.NoError(t, b.AddAll(read()))
	columns, err := b.Build()
	require.NoError(t, err)
	return map[string]kinetics.Table{
		"map":      mt,
		"columnar": kinetics.NewColumnarTable(columns),
	}
}

func run(t *testing.T, tbl kinetics.Table, occurrences string, width, ext int64, mode genome.Mode) ([]string, Stats, error) {
	t.Helper()
	w, err := genome.NewWindow(width, ext)
	require.NoError(t, err)
	c := New(tbl, w)
	c.SetMode(mode)

	var buf bytes.Buffer
	stats, err := c.CollectAll(context.Background(),
		occ.NewParser(strings.NewReader(occurrences)), output.NewCSVWriter(&buf))
	return strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n"), stats, err
}

// field returns column i of each data line.
func field(lines []string, i int) []string {
	var out []string
	for _, l := range lines[1:] {
		out = append(out, strings.Split(l, ",")[i])
	}
	return out
}

func TestCollectAll_PlusOccurrence(t *testing.T) {
	for name, tbl := range tables(t) {
		t.Run(name, func(t *testing.T) {
			lines, stats, err := run(t, tbl, "chr1 99 +\n", 1, 1, genome.StrandAgnostic)
			require.NoError(t, err)
			require.Len(t, lines, 7)
			assert.Equal(t, header, lines[0])

			assert.Equal(t, []string{"s1p", "s1m", "m1p", "m1m", "e1p", "e1m"}, field(lines, 3))
			assert.Equal(t, []string{"99", "99", "100", "100", "101", "101"}, field(lines, 12))
			assert.Equal(t, []string{"0", "1", "0", "1", "0", "1"}, field(lines, 13))
			assert.Equal(t, []string{"99", "99.5", "100", "100.5", "101", "101.5"}, field(lines, 2))
			assert.Equal(t, "1,+,99,s1p,1,A,1,0.1,1,1,10,chr1,99,0,Upstream", lines[1])

			assert.Equal(t, Stats{Occurrences: 1, Rows: 6}, stats)
		})
	}
}

func TestCollectAll_MinusOccurrence(t *testing.T) {
	for name, tbl := range tables(t) {
		t.Run(name, func(t *testing.T) {
			lines, _, err := run(t, tbl, "chr1 99 -\n", 1, 1, genome.StrandAgnostic)
			require.NoError(t, err)
			require.Len(t, lines, 7)

			assert.Equal(t, []string{"s1p", "s1m", "m1p", "m1m", "e1p", "e1m"}, field(lines, 3))
			assert.Equal(t, []string{"101", "101", "100", "100", "99", "99"}, field(lines, 12))
			assert.Equal(t, []string{"1", "0", "1", "0", "1", "0"}, field(lines, 13))
			assert.Equal(t, []string{"Upstream", "Upstream", "Target", "Target", "Downstream", "Downstream"}, field(lines, 14))
		})
	}
}

func TestCollectAll_ModesAgree(t *testing.T) {
	occurrences := "chr1 99 +\nchr1 97 -\nchr1 95 +\nchr2 10 -\n"
	tbl := tables(t)["map"]
	for _, dims := range [][2]int64{{1, 0}, {1, 1}, {3, 2}, {4, 5}} {
		agnostic, _, err := run(t, tbl, occurrences, dims[0], dims[1], genome.StrandAgnostic)
		require.NoError(t, err)
		respecting, _, err := run(t, tbl, occurrences, dims[0], dims[1], genome.StrandRespecting)
		require.NoError(t, err)
		assert.Equal(t, agnostic, respecting, "width %d extension %d", dims[0], dims[1])
	}
}

func TestCollectAll_BackendsAgree(t *testing.T) {
	occurrences := "chr1 96 +\nchr1 98 -\nchrX 5 +\n"
	tbls := tables(t)
	a, _, err := run(t, tbls["map"], occurrences, 2, 3, genome.StrandAgnostic)
	require.NoError(t, err)
	b, _, err := run(t, tbls["columnar"], occurrences, 2, 3, genome.StrandAgnostic)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestCollectAll_Empty(t *testing.T) {
	lines, stats, err := run(t, tables(t)["map"], "", 1, 1, genome.StrandAgnostic)
	require.NoError(t, err)
	assert.Equal(t, []string{header}, lines)
	assert.Zero(t, stats.Occurrences)
}

func TestCollectAll_SourceIndex(t *testing.T) {
	lines, stats, err := run(t, tables(t)["map"], "chr1 99 +\nchrZ 0 -\n", 1, 0, genome.StrandAgnostic)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "1", "2", "2"}, field(lines, 4))
	assert.Equal(t, 2, stats.Missing)
}

func TestCollectAll_Overflow(t *testing.T) {
	start := "9223372036854775805"
	_, _, err := run(t, tables(t)["map"], "chr1 5 +\nchr1 "+start+" +\n", 1, 5, genome.StrandAgnostic)
	var oe *genome.OverflowError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, int64(math.MaxInt64-1), oe.Key.Pos)
	assert.Contains(t, err.Error(), "occurrence 2")
}

func TestCollectAll_BadStrand(t *testing.T) {
	_, _, err := run(t, tables(t)["map"], "chr1 5 +\nchr1 6 *\n", 1, 1, genome.StrandAgnostic)
	var pe *occ.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 2, pe.Line)
	assert.True(t, occ.IsStrandError(err))
}

func TestCollectAll_Canceled(t *testing.T) {
	w, err := genome.NewWindow(1, 1)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	_, err = New(tables(t)["map"], w).CollectAll(ctx,
		occ.NewParser(strings.NewReader("chr1 99 +\n")), output.NewCSVWriter(&buf))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestCollectAll_MetricsAndLogging(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	w, err := genome.NewWindow(1, 1)
	require.NoError(t, err)

	rec := metrics.New()
	c := New(tables(t)["map"], w)
	c.SetLogger(zap.New(core))
	c.SetMetrics(rec)

	var buf bytes.Buffer
	stats, err := c.CollectAll(context.Background(),
		occ.NewParser(strings.NewReader("")), output.NewCSVWriter(&buf))
	require.NoError(t, err)
	assert.Zero(t, stats.Rows)
	assert.Equal(t, 1, logs.FilterMessage("0 occurrences processed").Len())
}
